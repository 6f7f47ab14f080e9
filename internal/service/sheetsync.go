package service

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"license-server/internal/model"
	"license-server/internal/store"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const sheetSyncTimeout = 30 * time.Second

// sheetClient is the slice of the Sheets values API the sync uses.
type sheetClient interface {
	Read(ctx context.Context, rng string) ([][]interface{}, error)
	Update(ctx context.Context, rng string, values [][]interface{}) error
	Append(ctx context.Context, rng string, values [][]interface{}) error
}

// SheetSyncService mirrors license records into a Google Sheet, one row per
// license id. Only activate and revoke events trigger a sync. Syncs run one at
// a time so the row lookup and the write cannot interleave.
type SheetSyncService struct {
	mu        sync.Mutex
	client    sheetClient
	records   store.Store
	sheetName string
	logger    *slog.Logger
	async     bool
}

// NewSheetSyncService returns nil when sync is disabled; a nil service is a
// valid no-op recorder.
func NewSheetSyncService(ctx context.Context, enableSync bool, credentialPath, spreadsheetID, sheetName string, records store.Store) (*SheetSyncService, error) {
	if !enableSync {
		return nil, nil
	}

	b, err := os.ReadFile(credentialPath)
	if err != nil {
		return nil, fmt.Errorf("read sheets credentials: %w", err)
	}

	creds, err := google.CredentialsFromJSON(ctx, b, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("load sheets credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("create sheets client: %w", err)
	}

	return newSheetSync(&googleSheets{srv: srv, spreadsheetID: spreadsheetID}, records, sheetName, true), nil
}

func newSheetSync(client sheetClient, records store.Store, sheetName string, async bool) *SheetSyncService {
	return &SheetSyncService{
		client:    client,
		records:   records,
		sheetName: sheetName,
		logger:    slog.Default().With("component", "sheetsync"),
		async:     async,
	}
}

func (s *SheetSyncService) Record(ctx context.Context, event model.LicenseEvent) error {
	if s == nil {
		return nil
	}
	if event.Action != model.ActionActivate && event.Action != model.ActionRevoke {
		return nil
	}
	if !s.async {
		return s.SyncLicense(ctx, event.LicenseID)
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sheetSyncTimeout)
		defer cancel()
		if err := s.SyncLicense(ctx, event.LicenseID); err != nil {
			s.logger.Warn("sync license to sheet failed", "license_id", event.LicenseID, "error", err)
		}
	}()
	return nil
}

// SyncLicense writes the current record for id, updating its row if the id is
// already in column A and appending otherwise.
func (s *SheetSyncService) SyncLicense(ctx context.Context, id string) error {
	if s == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	license, err := s.records.Lookup(ctx, id)
	if err != nil {
		return fmt.Errorf("load license %s: %w", id, err)
	}

	ids, err := s.client.Read(ctx, fmt.Sprintf("%s!A2:A", s.sheetName))
	if err != nil {
		return fmt.Errorf("read sheet ids: %w", err)
	}

	rowIndex := 0
	for i, row := range ids {
		if len(row) > 0 && fmt.Sprint(row[0]) == id {
			rowIndex = i + 2 // data starts at row 2
			break
		}
	}

	values := [][]interface{}{sheetRow(license)}
	if rowIndex > 0 {
		err = s.client.Update(ctx, fmt.Sprintf("%s!A%d:H%d", s.sheetName, rowIndex, rowIndex), values)
	} else {
		err = s.client.Append(ctx, s.sheetName+"!A2:H", values)
	}
	if err != nil {
		return fmt.Errorf("write sheet row: %w", err)
	}

	s.logger.Debug("license synced to sheet", "license_id", id, "updated", rowIndex > 0)
	return nil
}

func sheetRow(l *model.License) []interface{} {
	lastSeen := ""
	if l.LastSeen > 0 {
		lastSeen = time.Unix(l.LastSeen, 0).UTC().Format(time.RFC3339)
	}
	return []interface{}{
		l.ID,
		l.LicenseKey,
		l.HWID,
		l.User,
		time.Unix(l.IssuedAt, 0).UTC().Format(time.RFC3339),
		time.Unix(l.ExpiresAt, 0).UTC().Format(time.RFC3339),
		strconv.FormatBool(l.Revoked),
		lastSeen,
	}
}

type googleSheets struct {
	srv           *sheets.Service
	spreadsheetID string
}

func (g *googleSheets) Read(ctx context.Context, rng string) ([][]interface{}, error) {
	resp, err := g.srv.Spreadsheets.Values.Get(g.spreadsheetID, rng).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (g *googleSheets) Update(ctx context.Context, rng string, values [][]interface{}) error {
	_, err := g.srv.Spreadsheets.Values.Update(g.spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	return err
}

func (g *googleSheets) Append(ctx context.Context, rng string, values [][]interface{}) error {
	_, err := g.srv.Spreadsheets.Values.Append(g.spreadsheetID, rng, &sheets.ValueRange{Values: values}).
		ValueInputOption("USER_ENTERED").
		Context(ctx).
		Do()
	return err
}
