package main

import (
	"context"
	"encoding/json"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/cropwatch/internal/pipeline"
	"github.com/sells-group/cropwatch/internal/store"
	anthropicpkg "github.com/sells-group/cropwatch/pkg/anthropic"
	"github.com/sells-group/cropwatch/pkg/serper"
	"github.com/sells-group/cropwatch/pkg/sheets"
)

var (
	backfillStartDate string
	backfillQueries   string
	backfillOffline   bool
	backfillDryRun    bool
)

var backfillCmd = &cobra.Command{
	Use:   "backfill",
	Short: "Run a historical backfill from a start date through today",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		startDate := backfillStartDate
		if startDate == "" {
			startDate = cfg.Backfill.StartDate
		}

		if backfillQueries != "" {
			queries, err := loadQueriesFile(backfillQueries)
			if err != nil {
				return err
			}
			cfg.Backfill.Queries = queries
		}

		if !backfillOffline {
			if missing := cfg.MissingCredentials(); len(missing) > 0 {
				return eris.New("missing required credentials: " + strings.Join(missing, ", "))
			}
		}

		// Init clients
		var (
			searchClient serper.Client
			aiClient     anthropicpkg.Client
			sheetClient  sheets.Client
			err          error
		)
		if backfillOffline {
			zap.L().Info("offline mode: using stub clients")
			searchClient = &pipeline.StubSearchClient{}
			aiClient = &pipeline.StubAIClient{}
			sheetClient = &pipeline.StubSheetClient{Existing: []string{"Link"}}
		} else {
			searchClient = serper.NewClient(cfg.Serper.Key,
				serper.WithBaseURL(cfg.Serper.BaseURL),
				serper.WithCountry(cfg.Serper.Country),
				serper.WithNumResults(cfg.Serper.NumResults),
			)
			aiClient = anthropicpkg.NewClient(cfg.Anthropic.Key)
			sheetClient, err = sheets.NewClient(ctx, sheets.Config{
				SpreadsheetID:   cfg.Sheets.SpreadsheetID,
				Worksheet:       cfg.Sheets.Worksheet,
				CredentialsJSON: cfg.Sheets.CredentialsJSON,
			})
			if err != nil {
				return eris.Wrap(err, "init sheets client")
			}
		}

		if backfillDryRun {
			return printDryRunPlan(startDate)
		}

		journal, err := initJournal(ctx)
		if err != nil {
			zap.L().Warn("journal unavailable, continuing without it", zap.Error(err))
			journal = nil
		} else {
			defer journal.Close()
		}

		classifier := pipeline.NewClassifier(aiClient, cfg.Anthropic, cfg.Classifier)
		persister := pipeline.NewPersister(sheetClient)
		backfill := pipeline.NewBackfill(searchClient, classifier, persister, journal, cfg.Backfill)

		counts, err := backfill.Run(ctx, startDate)
		if err != nil {
			return eris.Wrap(err, "backfill run")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(counts)
	},
}

// queriesFile is the YAML shape accepted by --queries.
type queriesFile struct {
	Queries []string `yaml:"queries"`
}

func loadQueriesFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "read queries file")
	}

	var qf queriesFile
	if err := yaml.Unmarshal(data, &qf); err != nil {
		return nil, eris.Wrap(err, "parse queries file")
	}
	if len(qf.Queries) == 0 {
		return nil, eris.New("queries file contains no queries")
	}
	return qf.Queries, nil
}

func printDryRunPlan(startDate string) error {
	plan := struct {
		StartDate string   `json:"start_date"`
		Queries   []string `json:"queries"`
		BatchSize int      `json:"batch_size"`
		Worksheet string   `json:"worksheet"`
		Offline   bool     `json:"offline"`
	}{
		StartDate: startDate,
		Queries:   cfg.Backfill.Queries,
		BatchSize: cfg.Backfill.BatchSize,
		Worksheet: cfg.Sheets.Worksheet,
		Offline:   backfillOffline,
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(plan)
}

func initJournal(ctx context.Context) (store.Store, error) {
	st, err := store.NewSQLite(cfg.Journal.Path)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}

func init() {
	backfillCmd.Flags().StringVar(&backfillStartDate, "start-date", "", "backfill start date, YYYY-MM-DD (default from config)")
	backfillCmd.Flags().StringVar(&backfillQueries, "queries", "", "path to a YAML file overriding the query list")
	backfillCmd.Flags().BoolVar(&backfillOffline, "offline", false, "run against stub clients, no credentials needed")
	backfillCmd.Flags().BoolVar(&backfillDryRun, "dry-run", false, "print the run plan without searching or classifying")
	rootCmd.AddCommand(backfillCmd)
}
