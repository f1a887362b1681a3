package model

import "fmt"

// MatchTier identifies which deduplication tier grouped a set of leads.
type MatchTier string

const (
	MatchContactID   MatchTier = "contact_id"
	MatchPhone       MatchTier = "phone"
	MatchCompanyName MatchTier = "company_name"
)

// DuplicateGroup is a set of leads judged to be the same real-world
// company/contact. Exactly one member is kept; the rest are marked dropped
// but retained for audit.
type DuplicateGroup struct {
	MatchTier MatchTier `json:"match_tier"`
	Identity  string    `json:"identity"`
	Kept      *Lead     `json:"kept"`
	Dropped   []*Lead   `json:"dropped"`
}

// Size returns the total number of members, kept included.
func (g DuplicateGroup) Size() int {
	return 1 + len(g.Dropped)
}

// Reason renders the drop reason recorded on every dropped member.
func (g DuplicateGroup) Reason() string {
	return fmt.Sprintf("%s match on %s", g.MatchTier, g.Identity)
}
