package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/cropwatch/internal/config"
	"github.com/sells-group/cropwatch/internal/model"
	"github.com/sells-group/cropwatch/internal/resilience"
	"github.com/sells-group/cropwatch/pkg/anthropic"
)

const (
	maxTitleLen   = 100
	maxSnippetLen = 200
)

const classifySystemPrompt = `You analyze news articles about Ghana agriculture and cash crops. Return ONLY a JSON array with one object per input article, using this exact structure:
{"original_title":"<title>","original_link":"<link>","original_date":"<date>","original_source":"<source>","relevance":true,"category":"cocoa","companies_mentioned":[],"funding_amount":null,"key_entities":[],"summary":"<brief>"}

Categories: %s
Set relevance=true only if the article is about Ghana/Africa cash crops or agricultural investment.`

// FailureReason categorizes why a batch was abandoned.
type FailureReason string

const (
	FailureRateLimitExhausted FailureReason = "rate_limit_exhausted"
	FailureParseEmpty         FailureReason = "parse_empty"
	FailureError              FailureReason = "error"
)

// BatchFailure describes a batch the classifier gave up on. The articles in
// it are dropped from the run; the orchestrator journals the failure.
type BatchFailure struct {
	Reason FailureReason
	Err    error
}

// Classifier owns the request/response cycle with the LLM backend for one
// batch at a time. Batches are never classified concurrently: the caller
// paces calls to respect the backend's aggregate rate limit.
type Classifier struct {
	ai          anthropic.Client
	model       string
	maxTokens   int64
	maxAttempts int

	rateLimitBackoff time.Duration
	parseRetryDelay  time.Duration

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewClassifier builds a Classifier from config.
func NewClassifier(ai anthropic.Client, aiCfg config.AnthropicConfig, cfg config.ClassifierConfig) *Classifier {
	c := &Classifier{
		ai:               ai,
		model:            aiCfg.Model,
		maxTokens:        aiCfg.MaxTokens,
		maxAttempts:      cfg.MaxAttempts,
		rateLimitBackoff: time.Duration(cfg.RateLimitBackoffSecs) * time.Second,
		parseRetryDelay:  time.Duration(cfg.ParseRetryDelaySecs) * time.Second,
		sleep:            sleepCtx,
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = 4
	}
	return c
}

// ClassifyBatch submits one batch of articles and returns the classified
// records. It never returns an error to the caller: a batch that cannot be
// classified yields a nil slice and a non-nil BatchFailure.
//
// The retry state machine: a rate-limit failure sleeps attempt×backoff and
// retries, up to maxAttempts total calls. A response that parses to zero
// records but was non-empty retries once after a short fixed delay. Either
// budget exhausting, or any other failure, abandons the batch.
func (c *Classifier) ClassifyBatch(ctx context.Context, articles []model.RawArticle) ([]model.ClassifiedRecord, *BatchFailure) {
	if len(articles) == 0 {
		return nil, nil
	}

	prompt, err := buildUserPrompt(articles)
	if err != nil {
		return nil, &BatchFailure{Reason: FailureError, Err: err}
	}
	req := anthropic.MessageRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System:    anthropic.BuildCachedSystemBlocks(buildSystemPrompt()),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}

	attempt := 1
	parseRetried := false
	for {
		resp, err := c.ai.CreateMessage(ctx, req)
		if err != nil {
			if !resilience.IsRateLimited(err) {
				zap.L().Warn("classify: batch abandoned",
					zap.Int("articles", len(articles)),
					zap.Error(err),
				)
				return nil, &BatchFailure{Reason: FailureError, Err: err}
			}

			if attempt >= c.maxAttempts {
				zap.L().Warn("classify: rate limit budget exhausted",
					zap.Int("attempts", attempt),
					zap.Int("articles", len(articles)),
				)
				return nil, &BatchFailure{Reason: FailureRateLimitExhausted, Err: err}
			}

			wait := time.Duration(attempt) * c.rateLimitBackoff
			zap.L().Warn("classify: rate limited, backing off",
				zap.Int("attempt", attempt),
				zap.Duration("wait", wait),
			)
			if err := c.sleep(ctx, wait); err != nil {
				return nil, &BatchFailure{Reason: FailureError, Err: err}
			}
			attempt++
			continue
		}

		text := resp.Text()
		resp.Usage.LogUsage(c.model, "classify")

		mappings := ParseRecords(Repair(text))
		if len(mappings) == 0 {
			if text != "" && !parseRetried {
				parseRetried = true
				zap.L().Warn("classify: response parsed to zero records, retrying once",
					zap.Int("response_len", len(text)),
				)
				if err := c.sleep(ctx, c.parseRetryDelay); err != nil {
					return nil, &BatchFailure{Reason: FailureError, Err: err}
				}
				continue
			}
			zap.L().Warn("classify: unparseable batch dropped",
				zap.Int("articles", len(articles)),
				zap.String("preview", preview(text, 200)),
			)
			return nil, &BatchFailure{Reason: FailureParseEmpty}
		}

		records := make([]model.ClassifiedRecord, 0, len(mappings))
		for _, m := range mappings {
			records = append(records, model.RecordFromMap(m))
		}
		zap.L().Debug("classify: batch classified",
			zap.Int("articles", len(articles)),
			zap.Int("records", len(records)),
		)
		return records, nil
	}
}

func buildSystemPrompt() string {
	names := make([]string, 0, len(model.AllCategories()))
	for _, cat := range model.AllCategories() {
		names = append(names, string(cat))
	}
	return fmt.Sprintf(classifySystemPrompt, strings.Join(names, ", "))
}

// promptArticle is the trimmed view of an article embedded in the prompt.
type promptArticle struct {
	Title   string `json:"title"`
	Link    string `json:"link"`
	Date    string `json:"date"`
	Source  string `json:"source"`
	Snippet string `json:"snippet,omitempty"`
}

func buildUserPrompt(articles []model.RawArticle) (string, error) {
	list := make([]promptArticle, 0, len(articles))
	for _, a := range articles {
		list = append(list, promptArticle{
			Title:   truncate(a.Title, maxTitleLen),
			Link:    a.Link,
			Date:    a.Date,
			Source:  a.Source,
			Snippet: truncate(a.Snippet, maxSnippetLen),
		})
	}

	payload, err := json.Marshal(list)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("Articles:\n%s\n\nJSON array:", payload), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}

func preview(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
