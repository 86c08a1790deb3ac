// Package sheets provides the Google Sheets tabular store used to persist
// classified articles. It exposes exactly two operations: a bulk read of one
// column and a bulk append of rows, which is all the idempotent persister
// needs.
package sheets

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	gsheets "google.golang.org/api/sheets/v4"
)

// Client defines the spreadsheet operations used by the persister.
type Client interface {
	// ColumnValues returns every cell value in the given column letter of
	// the worksheet, top to bottom, header included.
	ColumnValues(ctx context.Context, column string) ([]string, error)
	// AppendRows appends all rows after the worksheet's current data in a
	// single call.
	AppendRows(ctx context.Context, rows [][]string) error
}

// Config identifies the target spreadsheet.
type Config struct {
	SpreadsheetID   string
	Worksheet       string
	CredentialsJSON string
}

type apiClient struct {
	svc           *gsheets.Service
	spreadsheetID string
	worksheet     string
}

// NewClient creates a Sheets client authenticated with a service account.
// Extra ClientOptions are appended after the JWT credentials, so tests can
// override the endpoint and authentication.
func NewClient(ctx context.Context, cfg Config, opts ...option.ClientOption) (Client, error) {
	if cfg.SpreadsheetID == "" {
		return nil, eris.New("sheets: spreadsheet id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsJSON != "" {
		jwtCfg, err := google.JWTConfigFromJSON([]byte(cfg.CredentialsJSON), gsheets.SpreadsheetsScope)
		if err != nil {
			return nil, eris.Wrap(err, "sheets: parse service account credentials")
		}
		clientOpts = append(clientOpts, option.WithHTTPClient(jwtCfg.Client(ctx)))
	}
	clientOpts = append(clientOpts, opts...)

	svc, err := gsheets.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, eris.Wrap(err, "sheets: create service")
	}

	return &apiClient{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		worksheet:     cfg.Worksheet,
	}, nil
}

func (c *apiClient) ColumnValues(ctx context.Context, column string) ([]string, error) {
	readRange := fmt.Sprintf("%s!%s:%s", c.worksheet, column, column)

	resp, err := c.svc.Spreadsheets.Values.Get(c.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, eris.Wrapf(err, "sheets: read column %s", column)
	}

	values := make([]string, 0, len(resp.Values))
	for _, row := range resp.Values {
		if len(row) == 0 {
			values = append(values, "")
			continue
		}
		values = append(values, fmt.Sprintf("%v", row[0]))
	}
	return values, nil
}

func (c *apiClient) AppendRows(ctx context.Context, rows [][]string) error {
	if len(rows) == 0 {
		return nil
	}

	values := make([][]any, len(rows))
	for i, row := range rows {
		cells := make([]any, len(row))
		for j, cell := range row {
			cells[j] = cell
		}
		values[i] = cells
	}

	_, err := c.svc.Spreadsheets.Values.
		Append(c.spreadsheetID, c.worksheet, &gsheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return eris.Wrapf(err, "sheets: append %d rows", len(rows))
	}
	return nil
}
