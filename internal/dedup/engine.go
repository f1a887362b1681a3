package dedup

import (
	"go.uber.org/zap"

	"github.com/andre-sav/HADES-sub001/internal/config"
	"github.com/andre-sav/HADES-sub001/internal/model"
)

// IdentitySet holds previously exported lead identities, keyed by
// ExportIdentity.
type IdentitySet map[string]struct{}

// NewIdentitySet builds an IdentitySet from raw identity keys.
func NewIdentitySet(keys []string) IdentitySet {
	s := make(IdentitySet, len(keys))
	for _, k := range keys {
		s[k] = struct{}{}
	}
	return s
}

// Contains reports whether the identity is present.
func (s IdentitySet) Contains(key string) bool {
	_, ok := s[key]
	return ok
}

// ExportIdentity derives the stable identity recorded in export history:
// normalized phone and normalized company name joined by "|". An
// unidentifiable lead (no usable phone, no usable name) yields "|", which
// never matches history.
func ExportIdentity(lead *model.Lead) string {
	phone, _ := NormalizePhone(lead.Phone)
	return phone + "|" + NormalizeName(lead.CompanyName)
}

// Result summarizes one Deduplicate pass. RemovedCount counts members
// dropped by the match tiers; export-excluded leads are tracked separately
// because they are a caller-controlled filter, not batch duplicates.
type Result struct {
	Kept           []*model.Lead
	Groups         []model.DuplicateGroup
	RemovedCount   int
	ExportFlagged  int
	ExportExcluded int
}

// Engine collapses duplicate leads by provider contact identity, normalized
// phone, and fuzzy company name, then flags leads already exported. It
// holds no state across calls; all decisions are deterministic in input
// order.
type Engine struct {
	cfg config.DedupConfig
}

// New builds an Engine from a dedup configuration snapshot.
func New(cfg config.DedupConfig) *Engine {
	return &Engine{cfg: cfg}
}

// CollapseContacts collapses entries sharing a provider contact_id down to
// the first-seen entry. This absorbs provider pagination returning the same
// contact on multiple pages, and runs before any company-level grouping so
// inflated per-company counts are corrected first.
func (e *Engine) CollapseContacts(leads []*model.Lead) ([]*model.Lead, []model.DuplicateGroup) {
	firstSeen := make(map[string]*model.Lead, len(leads))
	groupIdx := make(map[string]int)
	var groups []model.DuplicateGroup
	kept := make([]*model.Lead, 0, len(leads))

	for _, lead := range leads {
		if lead.ContactID == "" {
			kept = append(kept, lead)
			continue
		}

		first, seen := firstSeen[lead.ContactID]
		if !seen {
			firstSeen[lead.ContactID] = lead
			kept = append(kept, lead)
			continue
		}

		idx, ok := groupIdx[lead.ContactID]
		if !ok {
			groups = append(groups, model.DuplicateGroup{
				MatchTier: model.MatchContactID,
				Identity:  lead.ContactID,
				Kept:      first,
			})
			idx = len(groups) - 1
			groupIdx[lead.ContactID] = idx
		}
		markDropped(lead, &groups[idx])
	}

	return kept, groups
}

// Deduplicate runs every tier over the batch: contact-identity collapse,
// exact phone matching, fuzzy company-name matching, then export-history
// flagging. Kept leads come back in input order; the caller owns final
// ordering. Running Deduplicate on its own kept output removes nothing.
func (e *Engine) Deduplicate(leads []*model.Lead, exported IdentitySet) *Result {
	kept, groups := e.CollapseContacts(leads)

	kept, phoneGroups := e.collapsePhones(kept)
	groups = append(groups, phoneGroups...)

	kept, nameGroups := e.collapseNames(kept)
	groups = append(groups, nameGroups...)

	res := &Result{Groups: groups}
	for _, g := range groups {
		res.RemovedCount += len(g.Dropped)
	}

	res.Kept = e.flagExported(kept, exported, res)

	zap.L().Info("dedup: batch collapsed",
		zap.Int("input", len(leads)),
		zap.Int("kept", len(res.Kept)),
		zap.Int("removed", res.RemovedCount),
		zap.Int("groups", len(res.Groups)),
		zap.Int("export_flagged", res.ExportFlagged),
	)

	return res
}

// collapsePhones groups leads whose phones normalize to the same 10-digit
// key. Identical keys mean the same company/contact regardless of source
// workflow. Leads without a usable phone pass through untouched.
func (e *Engine) collapsePhones(leads []*model.Lead) ([]*model.Lead, []model.DuplicateGroup) {
	buckets := make(map[string][]*model.Lead)
	var keyOrder []string

	for _, lead := range leads {
		key, ok := NormalizePhone(lead.Phone)
		if !ok {
			if lead.Phone != "" {
				zap.L().Debug("dedup: unusable phone, tier skipped",
					zap.String("contact_id", lead.ContactID),
					zap.String("phone", lead.Phone),
				)
			}
			continue
		}
		if _, seen := buckets[key]; !seen {
			keyOrder = append(keyOrder, key)
		}
		buckets[key] = append(buckets[key], lead)
	}

	var groups []model.DuplicateGroup
	dropped := make(map[*model.Lead]bool)

	for _, key := range keyOrder {
		members := buckets[key]
		if len(members) < 2 {
			continue
		}
		g := buildGroup(model.MatchPhone, key, members)
		for _, m := range g.Dropped {
			dropped[m] = true
		}
		groups = append(groups, g)
	}

	return survivors(leads, dropped), groups
}

// collapseNames groups leads whose normalized company names are judged the
// same company. Grouping is single-linkage over the whole batch: a lead
// matching members of several groups merges those groups, so the survivors
// of distinct groups never match each other and a second pass removes
// nothing. The fuzzy tier stays within one workflow unless cross-workflow
// matching is enabled.
func (e *Engine) collapseNames(leads []*model.Lead) ([]*model.Lead, []model.DuplicateGroup) {
	type nameGroup struct {
		identity string
		workflow model.Workflow
		members  []*model.Lead
		norms    []string
	}

	var gs []*nameGroup
	for _, lead := range leads {
		norm := NormalizeName(lead.CompanyName)
		if norm == "" {
			if lead.CompanyName != "" {
				zap.L().Debug("dedup: company name normalized to nothing, tier skipped",
					zap.String("contact_id", lead.ContactID),
					zap.String("company_name", lead.CompanyName),
				)
			}
			continue
		}

		var matched []int
		for i, g := range gs {
			if !e.cfg.CrossWorkflow && g.workflow != lead.Workflow {
				continue
			}
			for _, gn := range g.norms {
				if sameCompanyNormalized(norm, gn) {
					matched = append(matched, i)
					break
				}
			}
		}

		if len(matched) == 0 {
			gs = append(gs, &nameGroup{
				identity: norm,
				workflow: lead.Workflow,
				members:  []*model.Lead{lead},
				norms:    []string{norm},
			})
			continue
		}

		home := gs[matched[0]]
		home.members = append(home.members, lead)
		home.norms = append(home.norms, norm)
		for i := len(matched) - 1; i >= 1; i-- {
			other := gs[matched[i]]
			home.members = append(home.members, other.members...)
			home.norms = append(home.norms, other.norms...)
			gs = append(gs[:matched[i]], gs[matched[i]+1:]...)
		}
	}

	var groups []model.DuplicateGroup
	dropped := make(map[*model.Lead]bool)

	for _, g := range gs {
		if len(g.members) < 2 {
			continue
		}
		dg := buildGroup(model.MatchCompanyName, g.identity, g.members)
		for _, m := range dg.Dropped {
			dropped[m] = true
		}
		groups = append(groups, dg)
	}

	return survivors(leads, dropped), groups
}

// flagExported marks kept leads whose identity is already in export
// history. Matches are always flagged and counted so the caller can banner
// on a nonzero count; the exclude toggle decides whether they stay in the
// kept output.
func (e *Engine) flagExported(kept []*model.Lead, exported IdentitySet, res *Result) []*model.Lead {
	if len(exported) == 0 {
		return kept
	}

	out := kept[:0]
	for _, lead := range kept {
		key := ExportIdentity(lead)
		if key == "|" || !exported.Contains(key) {
			out = append(out, lead)
			continue
		}

		lead.PreviouslyExported = true
		res.ExportFlagged++
		if !e.cfg.ExcludeExported {
			out = append(out, lead)
			continue
		}
		lead.DedupReason = "previously exported"
		res.ExportExcluded++
	}
	return out
}

// buildGroup selects the member to keep and marks the rest dropped with the
// group's reason string. Kept is the highest-scored member; ties fall to
// the fresher tier, then to first-seen order.
func buildGroup(tier model.MatchTier, identity string, members []*model.Lead) model.DuplicateGroup {
	winner := members[0]
	for _, m := range members[1:] {
		if m.RanksAbove(winner) {
			winner = m
		}
	}

	g := model.DuplicateGroup{
		MatchTier: tier,
		Identity:  identity,
		Kept:      winner,
	}
	for _, m := range members {
		if m != winner {
			markDropped(m, &g)
		}
	}
	return g
}

func markDropped(lead *model.Lead, g *model.DuplicateGroup) {
	lead.IsDuplicate = true
	lead.DedupReason = g.Reason()
	g.Dropped = append(g.Dropped, lead)
}

// survivors rebuilds the slice in input order without the dropped members.
func survivors(leads []*model.Lead, dropped map[*model.Lead]bool) []*model.Lead {
	if len(dropped) == 0 {
		return leads
	}
	out := make([]*model.Lead, 0, len(leads)-len(dropped))
	for _, lead := range leads {
		if !dropped[lead] {
			out = append(out, lead)
		}
	}
	return out
}
