package source

import (
	"context"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/teranos/rota/errors"
)

// SheetsWorkbook reads and writes Google Sheets tabs. Locator.Book is the
// spreadsheet ID and Locator.Tab the sheet title.
type SheetsWorkbook struct {
	svc *sheets.Service
}

// NewSheetsWorkbook authenticates with a service-account JSON key file. An
// empty path falls back to Application Default Credentials.
func NewSheetsWorkbook(ctx context.Context, credentialsFile string, opts ...option.ClientOption) (*SheetsWorkbook, error) {
	var creds *google.Credentials
	var err error
	if credentialsFile != "" {
		data, rerr := os.ReadFile(credentialsFile)
		if rerr != nil {
			return nil, errors.Wrapf(rerr, "read credentials %s", credentialsFile)
		}
		creds, err = google.CredentialsFromJSON(ctx, data, sheets.SpreadsheetsScope)
	} else {
		creds, err = google.FindDefaultCredentials(ctx, sheets.SpreadsheetsScope)
	}
	if err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "load Google credentials"),
			"set source.credentials_file to a service-account key shared on the spreadsheet")
	}
	return NewSheetsWorkbookWithOptions(ctx, append([]option.ClientOption{option.WithCredentials(creds)}, opts...)...)
}

// NewSheetsWorkbookWithOptions builds the service from explicit client
// options (endpoint, HTTP client, credentials).
func NewSheetsWorkbookWithOptions(ctx context.Context, opts ...option.ClientOption) (*SheetsWorkbook, error) {
	svc, err := sheets.NewService(ctx, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "create sheets service")
	}
	return &SheetsWorkbook{svc: svc}, nil
}

// a1Range addresses a whole sheet.
func a1Range(tab string) string {
	return "'" + strings.ReplaceAll(tab, "'", "''") + "'"
}

// ReadTable implements Workbook
func (w *SheetsWorkbook) ReadTable(ctx context.Context, loc Locator) ([][]string, error) {
	vr, err := w.svc.Spreadsheets.Values.Get(loc.Book, a1Range(loc.Tab)).
		ValueRenderOption("FORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, classifyGoogle(err, loc, "read")
	}
	rows := make([][]string, len(vr.Values))
	for i, r := range vr.Values {
		rows[i] = make([]string, len(r))
		for j, c := range r {
			if c != nil {
				rows[i][j] = fmt.Sprint(c)
			}
		}
	}
	return rows, nil
}

// WriteTable implements Workbook. The tab is created when missing, cleared,
// then written from A1.
func (w *SheetsWorkbook) WriteTable(ctx context.Context, loc Locator, rows [][]string) error {
	if err := w.ensureTab(ctx, loc); err != nil {
		return err
	}
	rng := a1Range(loc.Tab)
	if _, err := w.svc.Spreadsheets.Values.Clear(loc.Book, rng, &sheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return classifyGoogle(err, loc, "clear")
	}

	values := make([][]interface{}, len(rows))
	for i, r := range rows {
		values[i] = make([]interface{}, len(r))
		for j, c := range r {
			values[i][j] = c
		}
	}
	_, err := w.svc.Spreadsheets.Values.Update(loc.Book, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("RAW").
		Context(ctx).Do()
	return classifyGoogle(err, loc, "write")
}

func (w *SheetsWorkbook) ensureTab(ctx context.Context, loc Locator) error {
	ss, err := w.svc.Spreadsheets.Get(loc.Book).Fields("sheets.properties.title").Context(ctx).Do()
	if err != nil {
		return classifyGoogle(err, loc, "inspect")
	}
	for _, sh := range ss.Sheets {
		if sh.Properties != nil && sh.Properties.Title == loc.Tab {
			return nil
		}
	}
	req := &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{{
			AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: loc.Tab}},
		}},
	}
	_, err = w.svc.Spreadsheets.BatchUpdate(loc.Book, req).Context(ctx).Do()
	return classifyGoogle(err, loc, "add tab")
}
