package pipeline

import (
	"context"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/cropwatch/internal/config"
	"github.com/sells-group/cropwatch/internal/model"
	"github.com/sells-group/cropwatch/internal/store"
	"github.com/sells-group/cropwatch/pkg/serper"
)

// Backfill drives a full historical run: every configured query is searched
// over the date range, the concatenated results are deduplicated, classified
// batch by batch, and the relevant net-new records appended to the sheet.
//
// Everything is strictly sequential. The two rate limiters implement the
// fixed inter-query and inter-batch pauses that keep the run inside the
// search and LLM providers' rate limits; the third suspension point, the
// retry backoff, lives inside the Classifier.
type Backfill struct {
	search     serper.Client
	classifier *Classifier
	persister  *Persister
	journal    store.Store // optional; nil disables journaling

	queries   []string
	batchSize int

	queryLimiter *rate.Limiter
	batchLimiter *rate.Limiter

	// now is swapped out in tests.
	now func() time.Time
}

// NewBackfill wires the orchestrator from config. journal may be nil.
func NewBackfill(search serper.Client, classifier *Classifier, persister *Persister, journal store.Store, cfg config.BackfillConfig) *Backfill {
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = 3
	}
	return &Backfill{
		search:       search,
		classifier:   classifier,
		persister:    persister,
		journal:      journal,
		queries:      cfg.Queries,
		batchSize:    batchSize,
		queryLimiter: pauseLimiter(cfg.QueryPauseSecs),
		batchLimiter: pauseLimiter(cfg.BatchPauseSecs),
		now:          time.Now,
	}
}

// pauseLimiter builds a limiter whose first Wait is free and whose later
// Waits are spaced by the configured pause.
func pauseLimiter(pauseSecs int) *rate.Limiter {
	if pauseSecs <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(time.Duration(pauseSecs)*time.Second), 1)
}

// Run executes one full backfill from startDate through today. Search and
// classification failures are absorbed per query/batch; the only errors
// returned are context cancellation from the limiters.
func (b *Backfill) Run(ctx context.Context, startDate string) (store.RunCounts, error) {
	endDate := b.now().Format("2006-01-02")
	var counts store.RunCounts

	runID := b.journalCreateRun(ctx, startDate, endDate)

	zap.L().Info("backfill: starting",
		zap.String("start_date", startDate),
		zap.String("end_date", endDate),
		zap.Int("queries", len(b.queries)),
	)

	var all []model.RawArticle
	for i, query := range b.queries {
		if err := b.queryLimiter.Wait(ctx); err != nil {
			b.journalFailRun(ctx, runID)
			return counts, err
		}

		results, err := b.search.SearchNews(ctx, query, startDate, endDate)
		if err != nil {
			zap.L().Warn("backfill: search failed, skipping query",
				zap.String("query", query),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("backfill: search done",
			zap.String("query", query),
			zap.Int("progress", i+1),
			zap.Int("of", len(b.queries)),
			zap.Int("results", len(results)),
		)
		for _, r := range results {
			all = append(all, model.RawArticle{
				Title:   r.Title,
				Link:    r.Link,
				Date:    r.Date,
				Source:  r.Source,
				Snippet: r.Snippet,
			})
		}
	}
	counts.Searched = len(all)

	unique := DedupeByLink(all)
	counts.Unique = len(unique)

	totalBatches := (len(unique) + b.batchSize - 1) / b.batchSize
	zap.L().Info("backfill: classifying",
		zap.Int("articles", len(unique)),
		zap.Int("batches", totalBatches),
		zap.Int("batch_size", b.batchSize),
	)

	var classified []model.ClassifiedRecord
	for start := 0; start < len(unique); start += b.batchSize {
		if err := b.batchLimiter.Wait(ctx); err != nil {
			b.journalFailRun(ctx, runID)
			return counts, err
		}

		end := min(start+b.batchSize, len(unique))
		batch := unique[start:end]
		batchNum := start/b.batchSize + 1

		records, failure := b.classifier.ClassifyBatch(ctx, batch)
		if failure != nil {
			counts.FailedBatches++
			b.journalFailedBatch(ctx, runID, failure, batch)
		}
		classified = append(classified, records...)

		zap.L().Info("backfill: batch done",
			zap.Int("batch", batchNum),
			zap.Int("of", totalBatches),
			zap.Int("records", len(records)),
		)
	}
	counts.Classified = len(classified)

	appended, err := b.persister.Persist(ctx, classified)
	if err != nil {
		// Run-survivable: classified data for this run is lost, but
		// everything already in the sheet stays the resumption point.
		zap.L().Error("backfill: persist failed", zap.Error(err))
	}
	counts.Appended = appended

	b.journalCompleteRun(ctx, runID, counts)

	zap.L().Info("backfill: complete",
		zap.Int("searched", counts.Searched),
		zap.Int("unique", counts.Unique),
		zap.Int("classified", counts.Classified),
		zap.Int("appended", counts.Appended),
		zap.Int("failed_batches", counts.FailedBatches),
	)
	return counts, nil
}

// Journal writes are best-effort: losing the journal never loses the run.

func (b *Backfill) journalCreateRun(ctx context.Context, startDate, endDate string) string {
	if b.journal == nil {
		return ""
	}
	run, err := b.journal.CreateRun(ctx, startDate, endDate)
	if err != nil {
		zap.L().Warn("backfill: journal create run failed", zap.Error(err))
		return ""
	}
	return run.ID
}

func (b *Backfill) journalCompleteRun(ctx context.Context, runID string, counts store.RunCounts) {
	if b.journal == nil || runID == "" {
		return
	}
	if err := b.journal.CompleteRun(ctx, runID, counts); err != nil {
		zap.L().Warn("backfill: journal complete run failed", zap.Error(err))
	}
}

func (b *Backfill) journalFailRun(ctx context.Context, runID string) {
	if b.journal == nil || runID == "" {
		return
	}
	if err := b.journal.FailRun(context.WithoutCancel(ctx), runID); err != nil {
		zap.L().Warn("backfill: journal fail run failed", zap.Error(err))
	}
}

func (b *Backfill) journalFailedBatch(ctx context.Context, runID string, failure *BatchFailure, batch []model.RawArticle) {
	if b.journal == nil || runID == "" {
		return
	}
	errMsg := ""
	if failure.Err != nil {
		errMsg = failure.Err.Error()
	}
	if err := b.journal.RecordFailedBatch(ctx, runID, string(failure.Reason), errMsg, batch); err != nil {
		zap.L().Warn("backfill: journal failed batch failed", zap.Error(err))
	}
}
