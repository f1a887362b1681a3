package budget

import (
	"fmt"
	"time"
)

// PeriodKey renders the ISO-8601 week containing t, e.g. "2026-W35".
// Budget periods are ISO calendar weeks: usage resets at the week boundary
// simply because reads sum only records carrying the current key, and the
// append-only log keeps prior weeks auditable.
func PeriodKey(t time.Time) string {
	year, week := t.UTC().ISOWeek()
	return fmt.Sprintf("%d-W%02d", year, week)
}

// CurrentPeriodKey returns the key for the week containing now.
func CurrentPeriodKey() string {
	return PeriodKey(time.Now())
}
