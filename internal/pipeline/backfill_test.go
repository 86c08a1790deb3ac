package pipeline

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cropwatch/internal/config"
	"github.com/sells-group/cropwatch/internal/store"
	"github.com/sells-group/cropwatch/pkg/serper"
)

func fastBackfillConfig(queries []string) config.BackfillConfig {
	return config.BackfillConfig{
		Queries:        queries,
		BatchSize:      3,
		QueryPauseSecs: 0,
		BatchPauseSecs: 0,
	}
}

func testJournal(t *testing.T) store.Store {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate(context.Background()))
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBackfillRunEndToEnd(t *testing.T) {
	sheet := &StubSheetClient{Existing: []string{"Link"}}
	classifier, _ := newTestClassifier(&StubAIClient{})
	journal := testJournal(t)

	b := NewBackfill(&StubSearchClient{}, classifier, NewPersister(sheet), journal,
		fastBackfillConfig([]string{"Ghana cocoa news", "Ghana agriculture startup funding"}))
	b.now = func() time.Time {
		return time.Date(2025, 11, 5, 9, 0, 0, 0, time.UTC)
	}

	counts, err := b.Run(context.Background(), "2025-11-01")
	require.NoError(t, err)

	// Two queries of three results each, one of them with a fourth; the
	// three shared links collapse to one occurrence apiece.
	assert.Equal(t, 7, counts.Searched)
	assert.Equal(t, 4, counts.Unique)
	assert.Equal(t, 4, counts.Classified)
	assert.Equal(t, 4, counts.Appended)
	assert.Equal(t, 0, counts.FailedBatches)
	assert.Len(t, sheet.Appended, 4)

	runs, err := journal.ListRuns(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusComplete, runs[0].Status)
	assert.Equal(t, "2025-11-01", runs[0].StartDate)
	assert.Equal(t, "2025-11-05", runs[0].EndDate)
	require.NotNil(t, runs[0].Counts)
	assert.Equal(t, counts, *runs[0].Counts)
}

func TestBackfillRunIdempotentAcrossRuns(t *testing.T) {
	sheet := &StubSheetClient{Existing: []string{"Link"}}
	classifier, _ := newTestClassifier(&StubAIClient{})

	b := NewBackfill(&StubSearchClient{}, classifier, NewPersister(sheet), nil,
		fastBackfillConfig([]string{"Ghana cocoa news"}))

	first, err := b.Run(context.Background(), "2025-11-01")
	require.NoError(t, err)
	assert.Equal(t, 3, first.Appended)

	second, err := b.Run(context.Background(), "2025-11-01")
	require.NoError(t, err)
	assert.Equal(t, 3, second.Classified)
	assert.Equal(t, 0, second.Appended)
	assert.Len(t, sheet.Appended, 3)
}

// failingSearchClient fails one query and delegates the rest.
type failingSearchClient struct {
	failOn   string
	delegate StubSearchClient
}

func (f *failingSearchClient) SearchNews(ctx context.Context, query, dateFrom, dateTo string) ([]serper.NewsResult, error) {
	if query == f.failOn {
		return nil, errors.New("search provider unavailable")
	}
	return f.delegate.SearchNews(ctx, query, dateFrom, dateTo)
}

func TestBackfillSearchFailureSkipsQuery(t *testing.T) {
	sheet := &StubSheetClient{Existing: []string{"Link"}}
	classifier, _ := newTestClassifier(&StubAIClient{})

	b := NewBackfill(
		&failingSearchClient{failOn: "broken query"},
		classifier, NewPersister(sheet), nil,
		fastBackfillConfig([]string{"broken query", "Ghana cocoa news"}))

	counts, err := b.Run(context.Background(), "2025-11-01")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Searched)
	assert.Equal(t, 3, counts.Appended)
}

func TestBackfillFailedBatchJournaled(t *testing.T) {
	sheet := &StubSheetClient{Existing: []string{"Link"}}
	classifier, _ := newTestClassifier(&scriptedAIClient{responses: []scriptedResponse{
		{err: errors.New("invalid request")},
	}})
	journal := testJournal(t)

	b := NewBackfill(&StubSearchClient{}, classifier, NewPersister(sheet), journal,
		fastBackfillConfig([]string{"Ghana cocoa news"}))

	counts, err := b.Run(context.Background(), "2025-11-01")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Unique)
	assert.Equal(t, 0, counts.Classified)
	assert.Equal(t, 0, counts.Appended)
	assert.Equal(t, 1, counts.FailedBatches)

	runs, err := journal.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)

	batches, err := journal.ListFailedBatches(context.Background(), runs[0].ID)
	require.NoError(t, err)
	require.Len(t, batches, 1)
	assert.Equal(t, string(FailureError), batches[0].Reason)
	assert.Contains(t, batches[0].Error, "invalid request")
	assert.Len(t, batches[0].Articles, 3)
}

func TestBackfillNilJournal(t *testing.T) {
	sheet := &StubSheetClient{Existing: []string{"Link"}}
	classifier, _ := newTestClassifier(&StubAIClient{})

	b := NewBackfill(&StubSearchClient{}, classifier, NewPersister(sheet), nil,
		fastBackfillConfig([]string{"Ghana cocoa news"}))

	counts, err := b.Run(context.Background(), "2025-11-01")
	require.NoError(t, err)
	assert.Equal(t, 3, counts.Appended)
}

// cancellingSearchClient cancels the run context while returning results,
// as if the operator hit Ctrl-C mid-search.
type cancellingSearchClient struct {
	cancel   context.CancelFunc
	delegate StubSearchClient
}

func (c *cancellingSearchClient) SearchNews(ctx context.Context, query, dateFrom, dateTo string) ([]serper.NewsResult, error) {
	results, err := c.delegate.SearchNews(ctx, query, dateFrom, dateTo)
	c.cancel()
	return results, err
}

func TestBackfillContextCancelled(t *testing.T) {
	sheet := &StubSheetClient{Existing: []string{"Link"}}
	classifier, _ := newTestClassifier(&StubAIClient{})
	journal := testJournal(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	b := NewBackfill(
		&cancellingSearchClient{cancel: cancel},
		classifier, NewPersister(sheet), journal,
		fastBackfillConfig([]string{"Ghana cocoa news"}))

	_, err := b.Run(ctx, "2025-11-01")
	require.Error(t, err)

	runs, err := journal.ListRuns(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.RunStatusFailed, runs[0].Status)
}
