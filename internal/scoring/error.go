package scoring

import (
	"fmt"

	"github.com/andre-sav/HADES-sub001/internal/model"
)

// Error is a per-lead scoring failure. It carries the lead's identity so
// the orchestrator can report the rejection and continue with the rest of
// the batch.
type Error struct {
	ContactID   string
	CompanyName string
	Reason      string
}

func (e *Error) Error() string {
	return fmt.Sprintf("scoring: lead %s (%s): %s", e.ContactID, e.CompanyName, e.Reason)
}

func newError(lead *model.Lead, reason string) *Error {
	return &Error{
		ContactID:   lead.ContactID,
		CompanyName: lead.CompanyName,
		Reason:      reason,
	}
}
