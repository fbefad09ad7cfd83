package services

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/logging"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/timeledger/internal/server/storage"
	"github.com/dmitrijs2005/timeledger/internal/timex"
	"github.com/google/uuid"
)

const (
	maxExportPeriod    = 366 * 24 * time.Hour
	DefaultExportLimit = 20
	MaxExportLimit     = 100
)

var timesheetHeader = []string{"date", "started_at", "minutes", "task", "category", "external_ref", "note", "amount"}

// ExportResult is a stored export plus a temporary download link.
type ExportResult struct {
	Export    *models.Export
	URL       string
	ExpiresAt time.Time
}

// ExportService renders timesheets as CSV and uploads them to object
// storage. A nil store disables every operation with ErrExportDisabled.
type ExportService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       storage.ObjectStore
	urlTTL      time.Duration
	logger      logging.Logger
	now         timex.Clock
}

func NewExportService(db *sql.DB, m repomanager.RepositoryManager, store storage.ObjectStore, urlTTL time.Duration, l logging.Logger) *ExportService {
	return &ExportService{
		db:          db,
		repomanager: m,
		store:       store,
		urlTTL:      urlTTL,
		logger:      l.With("module", "export_service"),
		now:         timex.UTCNow,
	}
}

// ExportTimesheet writes every time entry started in [from, to) to a CSV
// object and returns a presigned link to it. When the tenant has a rate
// config the amount column is filled in.
func (s *ExportService) ExportTimesheet(ctx context.Context, tenantID string, from, to time.Time) (*ExportResult, error) {
	if s.store == nil {
		return nil, common.ErrExportDisabled
	}
	if !from.Before(to) || to.Sub(from) > maxExportPeriod {
		return nil, fmt.Errorf("export period must be non-empty and at most %s: %w", maxExportPeriod, common.ErrInvalidInput)
	}
	from, to = from.UTC(), to.UTC()

	rows, err := s.repomanager.TimeEntries(s.db).ListTimesheet(ctx, tenantID, from, to)
	if err != nil {
		return nil, fmt.Errorf("error listing timesheet: %w", err)
	}

	rate, err := s.rateConfig(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := writeTimesheetCSV(&buf, rows, rate); err != nil {
		return nil, fmt.Errorf("error rendering timesheet: %w", err)
	}

	id := uuid.NewString()
	export, err := s.repomanager.Exports(s.db).Create(ctx, tenantID, &models.Export{
		ID:         id,
		StorageKey: exportKey(tenantID, from, to, id),
		PeriodFrom: from,
		PeriodTo:   to,
	})
	if err != nil {
		return nil, fmt.Errorf("error creating export: %w", err)
	}

	if err := s.store.Put(ctx, export.StorageKey, "text/csv", buf.Bytes()); err != nil {
		s.logger.Error(ctx, "export upload failed", "export_id", export.ID, "error", err)
		return nil, fmt.Errorf("error uploading export: %w", err)
	}

	if err := s.repomanager.Exports(s.db).MarkUploaded(ctx, tenantID, export.ID, len(rows)); err != nil {
		return nil, fmt.Errorf("error completing export: %w", err)
	}
	export.Status = models.ExportStatusCompleted
	export.RowCount = len(rows)

	s.logger.Info(ctx, "timesheet exported", "account_id", tenantID, "export_id", export.ID, "rows", len(rows))

	return s.link(ctx, export)
}

// GetExport returns a fresh download link for a completed export.
func (s *ExportService) GetExport(ctx context.Context, tenantID, id string) (*ExportResult, error) {
	if s.store == nil {
		return nil, common.ErrExportDisabled
	}
	export, err := s.repomanager.Exports(s.db).Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if export.Status != models.ExportStatusCompleted {
		return nil, fmt.Errorf("export %s was never uploaded: %w", id, common.ErrNotFound)
	}
	return s.link(ctx, export)
}

func (s *ExportService) ListExports(ctx context.Context, tenantID string, limit int) ([]models.Export, error) {
	if s.store == nil {
		return nil, common.ErrExportDisabled
	}
	switch {
	case limit <= 0:
		limit = DefaultExportLimit
	case limit > MaxExportLimit:
		limit = MaxExportLimit
	}
	return s.repomanager.Exports(s.db).ListByAccount(ctx, tenantID, limit)
}

func (s *ExportService) link(ctx context.Context, export *models.Export) (*ExportResult, error) {
	url, err := s.store.PresignGet(ctx, export.StorageKey, s.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("error presigning export: %w", err)
	}
	return &ExportResult{Export: export, URL: url, ExpiresAt: s.now().Add(s.urlTTL)}, nil
}

func (s *ExportService) rateConfig(ctx context.Context, tenantID string) (*models.RateConfig, error) {
	stored, err := s.repomanager.Configs(s.db).Get(ctx, tenantID, models.ConfigKindRate)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("error loading rate config: %w", err)
	}
	rate, ok := stored.Value.(*models.RateConfig)
	if !ok {
		return nil, fmt.Errorf("unexpected rate config type %T", stored.Value)
	}
	return rate, nil
}

func exportKey(tenantID string, from, to time.Time, id string) string {
	return fmt.Sprintf("exports/%s/%s_%s_%s.csv", tenantID, from.Format("20060102"), to.Format("20060102"), id)
}

func writeTimesheetCSV(w io.Writer, rows []models.TimesheetRow, rate *models.RateConfig) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(timesheetHeader); err != nil {
		return err
	}
	for _, r := range rows {
		amount := ""
		if rate != nil {
			amount = formatAmount(billedAmountCents(r.DurationSeconds, rate), rate.Currency)
		}
		record := []string{
			r.StartedAt.UTC().Format(time.DateOnly),
			r.StartedAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(billedMinutes(r.DurationSeconds, 0), 10),
			r.TaskTitle,
			r.CategoryName,
			r.ExternalRef,
			r.Note,
			amount,
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// billedMinutes rounds seconds up to whole minutes, then up to a multiple
// of roundTo when roundTo > 0.
func billedMinutes(seconds int64, roundTo int) int64 {
	minutes := (seconds + 59) / 60
	if roundTo > 0 {
		step := int64(roundTo)
		minutes = (minutes + step - 1) / step * step
	}
	return minutes
}

func billedAmountCents(seconds int64, rate *models.RateConfig) int64 {
	minutes := billedMinutes(seconds, rate.RoundToMinutes)
	return (minutes*rate.HourlyRateCents + 30) / 60
}

func formatAmount(cents int64, currency string) string {
	return fmt.Sprintf("%d.%02d %s", cents/100, cents%100, currency)
}
