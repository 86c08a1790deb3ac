package pipeline

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/sells-group/cropwatch/pkg/anthropic"
	"github.com/sells-group/cropwatch/pkg/serper"
	"github.com/sells-group/cropwatch/pkg/sheets"
)

// Offline stubs back the --offline flag and the pipeline tests. They keep the
// full orchestration path exercisable without any credentials: the search stub
// returns a canned result set, the AI stub echoes the articles it is asked to
// classify, and the sheet stub is an in-memory worksheet.

// StubSearchClient returns the same canned Ghana news results for every
// query. The set deliberately contains duplicate links across queries so a
// run through it exercises deduplication.
type StubSearchClient struct{}

var _ serper.Client = (*StubSearchClient)(nil)

func (s *StubSearchClient) SearchNews(_ context.Context, query, dateFrom, _ string) ([]serper.NewsResult, error) {
	results := []serper.NewsResult{
		{
			Title:   "COCOBOD raises producer price for 2025/26 cocoa season",
			Link:    "https://example.com/cocobod-producer-price",
			Date:    dateFrom,
			Source:  "Ghana Business News",
			Snippet: "The Ghana Cocoa Board announced a new farm-gate price.",
		},
		{
			Title:   "Shea butter cooperative in Tamale secures processing grant",
			Link:    "https://example.com/shea-tamale-grant",
			Date:    dateFrom,
			Source:  "Joy Online",
			Snippet: "A women-led cooperative will expand its processing plant.",
		},
		{
			Title:   "Cashew exports from Ghana hit record volume",
			Link:    "https://example.com/cashew-record",
			Date:    dateFrom,
			Source:  "Citi Newsroom",
			Snippet: "Raw cashew nut shipments rose sharply year on year.",
		},
	}
	// The first result repeats across every query, the way wire-service
	// stories do across related searches.
	if strings.Contains(strings.ToLower(query), "funding") {
		results = append(results, serper.NewsResult{
			Title:   "Agritech startup closes seed round to finance cocoa farmers",
			Link:    "https://example.com/agritech-seed-round",
			Date:    dateFrom,
			Source:  "TechCabal",
			Snippet: "The round was led by a pan-African venture fund.",
		})
	}
	return results, nil
}

// StubAIClient classifies without an API: it reads the articles back out of
// the user prompt and returns a well-formed JSON array marking every article
// relevant.
type StubAIClient struct{}

var _ anthropic.Client = (*StubAIClient)(nil)

func (s *StubAIClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	articles := articlesFromPrompt(req)

	records := make([]map[string]any, 0, len(articles))
	for _, a := range articles {
		records = append(records, map[string]any{
			"original_title":      a.Title,
			"original_link":       a.Link,
			"original_date":       a.Date,
			"original_source":     a.Source,
			"relevance":           true,
			"category":            "cocoa",
			"companies_mentioned": []string{},
			"funding_amount":      nil,
			"key_entities":        []string{"COCOBOD"},
			"summary":             "Stub classification of: " + a.Title,
		})
	}

	payload, err := json.Marshal(records)
	if err != nil {
		return nil, err
	}
	return &anthropic.MessageResponse{
		ID:      "stub",
		Model:   req.Model,
		Content: []anthropic.ContentBlock{{Type: "text", Text: string(payload)}},
	}, nil
}

// articlesFromPrompt recovers the article list embedded by buildUserPrompt.
func articlesFromPrompt(req anthropic.MessageRequest) []promptArticle {
	for _, m := range req.Messages {
		if m.Role != "user" {
			continue
		}
		_, rest, ok := strings.Cut(m.Content, "Articles:\n")
		if !ok {
			continue
		}
		body, _, _ := strings.Cut(rest, "\n\nJSON array:")
		var articles []promptArticle
		if err := json.Unmarshal([]byte(body), &articles); err == nil {
			return articles
		}
	}
	return nil
}

// StubSheetClient is an in-memory worksheet. Existing seeds the pre-run
// contents of the link column (header first); Appended collects the rows
// written by the persister.
type StubSheetClient struct {
	mu       sync.Mutex
	Existing []string
	Appended [][]string
}

var _ sheets.Client = (*StubSheetClient)(nil)

func (s *StubSheetClient) ColumnValues(_ context.Context, _ string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	values := make([]string, 0, len(s.Existing)+len(s.Appended))
	values = append(values, s.Existing...)
	for _, row := range s.Appended {
		if len(row) >= 8 {
			values = append(values, row[7])
		}
	}
	return values, nil
}

func (s *StubSheetClient) AppendRows(_ context.Context, rows [][]string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Appended = append(s.Appended, rows...)
	return nil
}
