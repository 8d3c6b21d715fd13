// Package google appends journal rows to a Google Sheets spreadsheet using
// service account credentials.
package google

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	"golang.org/x/oauth2"
	oauth2google "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"khanevadati/internal/log"
	"khanevadati/internal/sheets"
)

var _ sheets.JournalWriter = (*Client)(nil)

const defaultSheetName = "Journal"

type Config struct {
	SpreadsheetID string
	SheetName     string
	// CredentialsJSON takes precedence over CredentialsFile.
	CredentialsJSON string
	CredentialsFile string
}

type Client struct {
	svc           *gsheet.Service
	spreadsheetID string
	sheetName     string
	logger        *log.Logger
}

// New creates a Sheets client authenticated as a service account. When
// neither credential field is set GOOGLE_APPLICATION_CREDENTIALS is used.
func New(ctx context.Context, cfg Config, logger *log.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	creds, err := credentials(cfg)
	if err != nil {
		return nil, err
	}
	jwtCfg, err := oauth2google.JWTConfigFromJSON(creds, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("parse service account credentials: %w", err)
	}
	base := context.WithValue(ctx, oauth2.HTTPClient, newHTTPClientWithPooling())
	svc, err := gsheet.NewService(ctx, goption.WithHTTPClient(jwtCfg.Client(base)))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	return newWithService(svc, cfg, logger), nil
}

func newWithService(svc *gsheet.Service, cfg Config, logger *log.Logger) *Client {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = defaultSheetName
	}
	return &Client{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     name,
		logger:        logger.WithComponent(log.ComponentSheets),
	}
}

func credentials(cfg Config) ([]byte, error) {
	if j := strings.TrimSpace(cfg.CredentialsJSON); j != "" {
		return []byte(j), nil
	}
	path := strings.TrimSpace(cfg.CredentialsFile)
	if path == "" {
		path = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}
	if path == "" {
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read service account file: %w", err)
	}
	return data, nil
}

// newHTTPClientWithPooling is the base transport under the token source.
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
	return &http.Client{Transport: transport, Timeout: 60 * time.Second}
}

// AppendEntry appends e below the last journal row and returns the updated range.
func (c *Client) AppendEntry(ctx context.Context, e sheets.Entry) (string, error) {
	if c.svc == nil {
		return "", errors.New("sheets service not initialized")
	}
	if e.EventID == "" {
		return "", errors.New("journal entry requires an event id")
	}

	rng := fmt.Sprintf("%s!A:%c", c.sheetName, 'A'+len(sheets.Header)-1)
	vr := &gsheet.ValueRange{Values: [][]any{e.Row()}}
	resp, err := c.svc.Spreadsheets.Values.Append(c.spreadsheetID, rng, vr).
		ValueInputOption("USER_ENTERED").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return "", fmt.Errorf("append to sheet %s: %w", c.sheetName, err)
	}

	ref := rng
	if resp.Updates != nil && resp.Updates.UpdatedRange != "" {
		ref = resp.Updates.UpdatedRange
	}
	c.logger.DebugContext(ctx, "Journal row appended",
		log.FieldEventID, e.EventID, "range", ref)
	return ref, nil
}
