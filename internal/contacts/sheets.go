// File: internal/contacts/sheets.go
package contacts

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"github.com/mpellegro/wasend-cli/internal/config"
)

// SheetSource reads pending contacts from, and writes delivery status back
// to, a Google Sheet with four ordered columns: status, ID, sort name, phone.
type SheetSource struct {
	svc           *sheets.Service
	spreadsheetID string
	sheetName     string
	limiter       *rate.Limiter
	logger        *zap.Logger
}

// NewSheetSource builds the Sheets API client from the configured OAuth
// credential files. The first call may run the installed-app consent flow.
func NewSheetSource(ctx context.Context, cfg config.SheetsConfig, logger *zap.Logger) (*SheetSource, error) {
	if cfg.SpreadsheetID == "" {
		return nil, fmt.Errorf("sheets.spreadsheet_id is not configured")
	}

	client, err := newOAuthClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build sheets oauth client: %w", err)
	}

	svc, err := sheets.NewService(ctx, option.WithHTTPClient(client))
	if err != nil {
		return nil, fmt.Errorf("failed to create sheets service: %w", err)
	}

	return &SheetSource{
		svc:           svc,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     cfg.SheetName,
		limiter:       rate.NewLimiter(rate.Limit(cfg.RateLimit), 1),
		logger:        logger.Named("sheets"),
	}, nil
}

// WithSpreadsheetID returns a copy of the source addressing a different
// spreadsheet, sharing the client and limiter. Used for per-run overrides.
func (s *SheetSource) WithSpreadsheetID(id string) *SheetSource {
	clone := *s
	clone.spreadsheetID = id
	return &clone
}

// PendingContacts fetches up to limit rows whose status column is empty,
// in row order.
func (s *SheetSource) PendingContacts(ctx context.Context, limit int) ([]Contact, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	readRange := fmt.Sprintf("'%s'!A:D", s.sheetName)
	resp, err := s.svc.Spreadsheets.Values.Get(s.spreadsheetID, readRange).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("failed to read range %s: %w", readRange, err)
	}

	rows := make([][]string, len(resp.Values))
	for i, row := range resp.Values {
		cells := make([]string, len(row))
		for j, cell := range row {
			cells[j] = fmt.Sprint(cell)
		}
		rows[i] = cells
	}

	pending := ParseRows(rows, limit)
	s.logger.Debug("Fetched pending contacts",
		zap.Int("rows_read", len(rows)),
		zap.Int("pending", len(pending)),
		zap.Int("limit", limit))
	return pending, nil
}

// WriteStatus sets the status column of the given row to 1 (success) or
// 0 (failure).
func (s *SheetSource) WriteStatus(ctx context.Context, rowNumber int, success bool) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	value := 0
	if success {
		value = 1
	}

	writeRange := fmt.Sprintf("'%s'!A%d", s.sheetName, rowNumber)
	vr := &sheets.ValueRange{Values: [][]interface{}{{value}}}

	_, err := s.svc.Spreadsheets.Values.
		Update(s.spreadsheetID, writeRange, vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	if err != nil {
		return fmt.Errorf("failed to write status to %s: %w", writeRange, err)
	}
	return nil
}
