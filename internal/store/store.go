package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/andre-sav/HADES-sub001/internal/model"
)

// ErrRunNotFound is returned by GetRun when no run exists for the given id.
var ErrRunNotFound = eris.New("store: run not found")

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Workflow model.Workflow `json:"workflow,omitempty"`
	Limit    int            `json:"limit,omitempty"`
	Offset   int            `json:"offset,omitempty"`
}

// Store defines the persistence interface for the qualification pipeline:
// the append-only credit usage log, the export history used to flag
// previously delivered leads, and the run archive.
type Store interface {
	// Usage log
	AppendUsage(ctx context.Context, rec model.CreditUsageRecord) error
	UsageTotal(ctx context.Context, workflow model.Workflow, periodKey string) (int, error)
	ListUsage(ctx context.Context, workflow model.Workflow, periodKey string) ([]model.CreditUsageRecord, error)

	// Export history
	RecordExports(ctx context.Context, identities []string, exportedAt time.Time) error
	ExportedIdentities(ctx context.Context) ([]string, error)

	// Runs
	CreateRun(ctx context.Context, result *model.Result) (*model.Run, error)
	GetRun(ctx context.Context, runID string) (*model.Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
