// Package store is the local run journal. It records backfill runs and the
// batches that permanently failed classification, for later inspection.
// It never feeds articles back into a run: failed batches stay dropped.
package store

import (
	"context"
	"time"

	"github.com/sells-group/cropwatch/internal/model"
)

// RunStatus tracks the lifecycle of a backfill run.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// Run is one backfill invocation.
type Run struct {
	ID        string     `json:"id"`
	StartDate string     `json:"start_date"`
	EndDate   string     `json:"end_date"`
	Status    RunStatus  `json:"status"`
	Counts    *RunCounts `json:"counts,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunCounts summarizes what a completed run did.
type RunCounts struct {
	Searched      int `json:"searched"`
	Unique        int `json:"unique"`
	Classified    int `json:"classified"`
	Appended      int `json:"appended"`
	FailedBatches int `json:"failed_batches"`
}

// FailedBatch records one batch the classifier gave up on, with the articles
// it contained so an operator can see what was lost.
type FailedBatch struct {
	ID        string             `json:"id"`
	RunID     string             `json:"run_id"`
	Reason    string             `json:"reason"` // "rate_limit_exhausted", "parse_empty", "error"
	Error     string             `json:"error,omitempty"`
	Articles  []model.RawArticle `json:"articles"`
	CreatedAt time.Time          `json:"created_at"`
}

// Store defines the journal persistence interface.
type Store interface {
	CreateRun(ctx context.Context, startDate, endDate string) (*Run, error)
	CompleteRun(ctx context.Context, runID string, counts RunCounts) error
	FailRun(ctx context.Context, runID string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, limit int) ([]Run, error)

	RecordFailedBatch(ctx context.Context, runID, reason, errMsg string, articles []model.RawArticle) error
	ListFailedBatches(ctx context.Context, runID string) ([]FailedBatch, error)

	Migrate(ctx context.Context) error
	Close() error
}
