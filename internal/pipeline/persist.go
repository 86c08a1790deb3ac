package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/cropwatch/internal/model"
	"github.com/sells-group/cropwatch/pkg/sheets"
)

// linkColumn is the worksheet column holding each row's article link, the
// identity key for idempotent persistence.
const linkColumn = "H"

const ingestedAtLayout = "2006-01-02 15:04"

// Persister appends classified records to the spreadsheet, skipping
// irrelevant records and anything already stored. Existing links are read in
// one bulk call and new rows written in one bulk call, so the cost of the
// idempotency check does not grow with the input.
type Persister struct {
	sheet sheets.Client

	// now is swapped out in tests.
	now func() time.Time
}

// NewPersister creates a Persister over the given sheet.
func NewPersister(sheet sheets.Client) *Persister {
	return &Persister{
		sheet: sheet,
		now:   time.Now,
	}
}

// Persist appends the net-new relevant records and returns the count
// actually written. Running it twice with identical input appends rows only
// the first time.
func (p *Persister) Persist(ctx context.Context, records []model.ClassifiedRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}

	column, err := p.sheet.ColumnValues(ctx, linkColumn)
	if err != nil {
		return 0, eris.Wrap(err, "persist: read existing links")
	}
	existing := make(map[string]struct{}, len(column))
	for i, link := range column {
		if i == 0 {
			continue // header row
		}
		existing[link] = struct{}{}
	}

	var (
		rows              [][]string
		skippedRelevance  int
		skippedDuplicates int
	)
	seen := make(map[string]struct{}, len(records))
	ingestedAt := p.now().Format(ingestedAtLayout)

	for _, rec := range records {
		if !rec.Relevance {
			skippedRelevance++
			continue
		}
		if _, ok := existing[rec.OriginalLink]; ok {
			skippedDuplicates++
			continue
		}
		if _, ok := seen[rec.OriginalLink]; ok {
			skippedDuplicates++
			continue
		}
		seen[rec.OriginalLink] = struct{}{}
		rows = append(rows, rowFor(rec, ingestedAt))
	}

	zap.L().Info("persist: filtered records",
		zap.Int("input", len(records)),
		zap.Int("existing_links", len(existing)),
		zap.Int("skipped_irrelevant", skippedRelevance),
		zap.Int("skipped_duplicate", skippedDuplicates),
		zap.Int("to_append", len(rows)),
	)

	if len(rows) == 0 {
		return 0, nil
	}
	if err := p.sheet.AppendRows(ctx, rows); err != nil {
		return 0, eris.Wrap(err, "persist: append rows")
	}
	return len(rows), nil
}

// rowFor maps a record to the fixed column layout: date, title, source,
// category, companies, funding amount, summary, link, key entities,
// ingestion timestamp. Sequence fields render as comma-separated strings.
func rowFor(rec model.ClassifiedRecord, ingestedAt string) []string {
	return []string{
		rec.OriginalDate,
		rec.OriginalTitle,
		rec.OriginalSource,
		string(rec.Category),
		strings.Join(rec.CompaniesMentioned, ", "),
		rec.FundingAmount,
		rec.Summary,
		rec.OriginalLink,
		strings.Join(rec.KeyEntities, ", "),
		ingestedAt,
	}
}
