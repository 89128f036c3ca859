package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"certdash/internal/core"
	"certdash/internal/log"
	ports "certdash/internal/sheets"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

// Options configures the Sheets client.
type Options struct {
	SpreadsheetID   string
	SheetName       string
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	// Base name without year (e.g. "Dashboard"); tabs are "<year> <base> <table>".
	sheetBase string
	logger    *log.Logger

	mu     sync.Mutex
	known  map[string]bool
	loaded bool
}

// Ensure interface conformance
var (
	_ ports.TableWriter      = (*Client)(nil)
	_ ports.ActivityAppender = (*Client)(nil)
)

// New creates a Sheets client authenticated with a service account.
func New(ctx context.Context, opts Options, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(opts.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	logger = logger.WithComponent(log.ComponentSheets)

	creds, err := credentials(opts)
	if err != nil {
		return nil, err
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsScope),
		goption.WithHTTPClient(newHTTPClientWithPooling()))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	logger.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", opts.SpreadsheetID)
	return newWithService(svc, opts.SpreadsheetID, opts.SheetName, logger), nil
}

func newWithService(svc *gsheet.Service, spreadsheetID, sheetBase string, logger *log.Logger) *Client {
	if strings.TrimSpace(sheetBase) == "" {
		sheetBase = "Dashboard"
	}
	return &Client{
		svc:           svc,
		spreadsheetID: spreadsheetID,
		sheetBase:     strings.TrimSpace(sheetBase),
		logger:        logger,
		known:         make(map[string]bool),
	}
}

// credentials returns the service account JSON, preferring the inline value
// and falling back to GOOGLE_APPLICATION_CREDENTIALS.
func credentials(opts Options) ([]byte, error) {
	inline := strings.TrimSpace(opts.CredentialsJSON)
	file := strings.TrimSpace(opts.CredentialsFile)
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	switch {
	case inline != "":
		return []byte(inline), nil
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		return data, nil
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
}

// newHTTPClientWithPooling creates an HTTP client tuned for the Sheets API.
func newHTTPClientWithPooling() *http.Client {
	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		DialContext:           dialer.DialContext,
		MaxIdleConns:          100,
		MaxIdleConnsPerHost:   10,
		MaxConnsPerHost:       50,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,
	}

	return &http.Client{
		Transport: transport,
		Timeout:   60 * time.Second,
	}
}

// WriteTable clears the table's tab and writes header and rows from A1.
func (c *Client) WriteTable(ctx context.Context, t ports.Table) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if len(t.Header) == 0 {
		return "", errors.New("table has no header")
	}

	title := c.tabName(t.Name, t.Year)
	if err := c.ensureSheet(ctx, title); err != nil {
		return "", err
	}

	whole := quoteRange(title, "A:Z")
	if _, err := c.svc.Spreadsheets.Values.Clear(c.spreadsheetID, whole, &gsheet.ClearValuesRequest{}).
		Context(ctx).Do(); err != nil {
		return "", fmt.Errorf("clear %s: %w", whole, err)
	}

	values := make([][]any, 0, len(t.Rows)+1)
	header := make([]any, len(t.Header))
	for i, h := range t.Header {
		header[i] = h
	}
	values = append(values, header)
	values = append(values, t.Rows...)

	ref := quoteRange(title, fmt.Sprintf("A1:%s%d", columnName(len(t.Header)), len(values)))
	_, err := c.svc.Spreadsheets.Values.Update(c.spreadsheetID, ref, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("update %s: %w", ref, err)
	}

	c.logger.InfoContext(ctx, "Table written",
		log.FieldOperation, log.OpExport,
		"sheet", title,
		log.FieldRecords, len(t.Rows))
	return ref, nil
}

// AppendActivity appends e to the activity tab of the year it occurred in.
func (c *Client) AppendActivity(ctx context.Context, e core.ActivityEvent) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	year := e.OccurredAt.Year()
	title := c.tabName("Activity", year)
	created, err := c.ensureSheetCreated(ctx, title)
	if err != nil {
		return "", err
	}

	values := [][]any{ports.ActivityRow(e)}
	if created {
		header := make([]any, len(ports.ActivityHeader))
		for i, h := range ports.ActivityHeader {
			header[i] = h
		}
		values = append([][]any{header}, values...)
	}

	rng := quoteRange(title, "A:I")
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, &gsheet.ValueRange{Values: values}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("append to %s: %w", rng, err)
	}
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		return resp.Updates.UpdatedRange, nil
	}
	return rng, nil
}

func (c *Client) tabName(table string, year int) string {
	return yearPrefixedName(strings.TrimSpace(c.sheetBase+" "+table), year)
}

func (c *Client) ensureSheet(ctx context.Context, title string) error {
	_, err := c.ensureSheetCreated(ctx, title)
	return err
}

// ensureSheetCreated adds the tab when missing and reports whether it did.
func (c *Client) ensureSheetCreated(ctx context.Context, title string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.loaded {
		ss, err := c.svc.Spreadsheets.Get(c.spreadsheetID).Fields("sheets.properties.title").Context(ctx).Do()
		if err != nil {
			return false, fmt.Errorf("read spreadsheet %s: %w", c.spreadsheetID, err)
		}
		for _, sh := range ss.Sheets {
			if sh.Properties != nil {
				c.known[sh.Properties.Title] = true
			}
		}
		c.loaded = true
	}
	if c.known[title] {
		return false, nil
	}

	req := &gsheet.BatchUpdateSpreadsheetRequest{
		Requests: []*gsheet.Request{{
			AddSheet: &gsheet.AddSheetRequest{Properties: &gsheet.SheetProperties{Title: title}},
		}},
	}
	if _, err := c.svc.Spreadsheets.BatchUpdate(c.spreadsheetID, req).Context(ctx).Do(); err != nil {
		return false, fmt.Errorf("add sheet %s: %w", title, err)
	}
	c.known[title] = true
	c.logger.InfoContext(ctx, "Sheet created", "sheet", title)
	return true, nil
}

// yearPrefixedName returns "<year> <base>" unless base already starts with a 4-digit year.
func yearPrefixedName(base string, year int) string {
	base = strings.TrimSpace(base)
	if base == "" {
		return base
	}
	if len(base) >= 5 {
		if y, err := strconv.Atoi(base[0:4]); err == nil && base[4] == ' ' && y > 1900 && y < 3000 {
			return base
		}
	}
	return fmt.Sprintf("%d %s", year, base)
}

func quoteRange(title, cells string) string {
	return fmt.Sprintf("'%s'!%s", strings.ReplaceAll(title, "'", "''"), cells)
}

// columnName converts a 1-based column index to its letter form (1 -> A, 27 -> AA).
func columnName(n int) string {
	if n < 1 {
		return "A"
	}
	var out []byte
	for n > 0 {
		n--
		out = append([]byte{byte('A' + n%26)}, out...)
		n /= 26
	}
	return string(out)
}
