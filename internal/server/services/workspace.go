package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/dbx"
	"github.com/dmitrijs2005/timeledger/internal/logging"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/timeledger/internal/timex"
)

const (
	maxTitleLength = 200
	maxNameLength  = 64
	maxEntryLength = 24 * time.Hour
)

// WorkspaceService implements the tenant business operations. Every method
// takes the authenticated tenant id and passes it to the repositories.
type WorkspaceService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
	now         timex.Clock
}

func NewWorkspaceService(db *sql.DB, m repomanager.RepositoryManager, l logging.Logger) *WorkspaceService {
	return &WorkspaceService{
		db:          db,
		repomanager: m,
		logger:      l.With("module", "workspace_service"),
		now:         timex.UTCNow,
	}
}

// ProvisionDefaults creates the default categories and currency settings
// for a new tenant. Existing items are left untouched.
func (s *WorkspaceService) ProvisionDefaults(ctx context.Context, tenantID string) error {
	if err := s.repomanager.Categories(s.db).CreateDefaults(ctx, tenantID, models.DefaultCategories); err != nil {
		return fmt.Errorf("error creating default categories: %w", err)
	}
	if err := s.repomanager.Configs(s.db).PutIfAbsent(ctx, tenantID, models.DefaultCurrencyConfig()); err != nil {
		return fmt.Errorf("error creating default currency config: %w", err)
	}
	return nil
}

// --- tasks ---

func (s *WorkspaceService) CreateTask(ctx context.Context, tenantID string, t *models.Task) (*models.Task, error) {
	if t.Status == "" {
		t.Status = models.TaskStatusOpen
	}
	if err := s.validateTask(ctx, tenantID, t); err != nil {
		return nil, err
	}
	return s.repomanager.Tasks(s.db).Create(ctx, tenantID, t)
}

func (s *WorkspaceService) GetTask(ctx context.Context, tenantID, id string) (*models.Task, error) {
	return s.repomanager.Tasks(s.db).Get(ctx, tenantID, id)
}

func (s *WorkspaceService) ListTasks(ctx context.Context, tenantID string, f models.TaskFilter) ([]models.Task, error) {
	if f.Status != "" && !validStatus(f.Status) {
		return nil, fmt.Errorf("unknown status %q: %w", f.Status, common.ErrInvalidInput)
	}
	return s.repomanager.Tasks(s.db).List(ctx, tenantID, f)
}

func (s *WorkspaceService) UpdateTask(ctx context.Context, tenantID string, t *models.Task) (*models.Task, error) {
	if err := s.validateTask(ctx, tenantID, t); err != nil {
		return nil, err
	}
	if err := s.repomanager.Tasks(s.db).Update(ctx, tenantID, t); err != nil {
		return nil, err
	}
	return t, nil
}

// ArchiveTask is the soft delete of a task; its time entries are kept.
func (s *WorkspaceService) ArchiveTask(ctx context.Context, tenantID, id string) error {
	return s.repomanager.Tasks(s.db).Archive(ctx, tenantID, id)
}

// PurgeArchivedTasks deletes all archived tasks of the tenant together with
// their time entries.
func (s *WorkspaceService) PurgeArchivedTasks(ctx context.Context, tenantID string) (int64, error) {
	n, err := s.repomanager.Tasks(s.db).DeleteArchived(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "archived tasks purged", "account_id", tenantID, "count", n)
	return n, nil
}

func (s *WorkspaceService) validateTask(ctx context.Context, tenantID string, t *models.Task) error {
	t.Title = strings.TrimSpace(t.Title)
	if t.Title == "" || len(t.Title) > maxTitleLength {
		return fmt.Errorf("title must be 1-%d characters: %w", maxTitleLength, common.ErrInvalidInput)
	}
	if !validStatus(t.Status) {
		return fmt.Errorf("unknown status %q: %w", t.Status, common.ErrInvalidInput)
	}
	if t.CategoryID != nil && *t.CategoryID != "" {
		if _, err := s.repomanager.Categories(s.db).Get(ctx, tenantID, *t.CategoryID); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return fmt.Errorf("category %s: %w", *t.CategoryID, common.ErrNotFound)
			}
			return err
		}
	}
	return nil
}

func validStatus(status string) bool {
	switch status {
	case models.TaskStatusOpen, models.TaskStatusDone, models.TaskStatusArchived:
		return true
	}
	return false
}

// --- categories ---

func (s *WorkspaceService) CreateCategory(ctx context.Context, tenantID, name, color string) (*models.Category, error) {
	name, err := categoryName(name)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Categories(s.db).Create(ctx, tenantID, &models.Category{Name: name, Color: color})
}

func (s *WorkspaceService) ListCategories(ctx context.Context, tenantID string) ([]models.Category, error) {
	return s.repomanager.Categories(s.db).List(ctx, tenantID)
}

func (s *WorkspaceService) RenameCategory(ctx context.Context, tenantID, id, name string) error {
	name, err := categoryName(name)
	if err != nil {
		return err
	}
	return s.repomanager.Categories(s.db).Rename(ctx, tenantID, id, name)
}

func (s *WorkspaceService) DeleteCategory(ctx context.Context, tenantID, id string) error {
	return s.repomanager.Categories(s.db).Delete(ctx, tenantID, id)
}

func categoryName(name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" || len(name) > maxNameLength {
		return "", fmt.Errorf("category name must be 1-%d characters: %w", maxNameLength, common.ErrInvalidInput)
	}
	return name, nil
}

// --- configs ---

func (s *WorkspaceService) GetConfig(ctx context.Context, tenantID string, kind models.ConfigKind) (*models.StoredConfig, error) {
	if _, err := models.NewConfigValue(kind); err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrInvalidInput)
	}
	return s.repomanager.Configs(s.db).Get(ctx, tenantID, kind)
}

// PutConfig decodes raw as a document of kind and stores it.
func (s *WorkspaceService) PutConfig(ctx context.Context, tenantID string, kind models.ConfigKind, raw []byte) (*models.StoredConfig, error) {
	v, err := models.DecodeConfigValue(kind, raw)
	if err != nil {
		return nil, fmt.Errorf("%v: %w", err, common.ErrInvalidInput)
	}
	return s.repomanager.Configs(s.db).Put(ctx, tenantID, v)
}

// --- time entries ---

// LogTime records a time entry and adds its duration to the task aggregate
// in one transaction. It returns the entry and the task's new total.
func (s *WorkspaceService) LogTime(ctx context.Context, tenantID string, e *models.TimeEntry) (*models.TimeEntry, int64, error) {
	if e.DurationSeconds <= 0 || time.Duration(e.DurationSeconds)*time.Second > maxEntryLength {
		return nil, 0, fmt.Errorf("duration must be between 1s and %s: %w", maxEntryLength, common.ErrInvalidInput)
	}
	if e.StartedAt.IsZero() {
		e.StartedAt = s.now().Add(-time.Duration(e.DurationSeconds) * time.Second)
	}

	var (
		created *models.TimeEntry
		total   int64
	)
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		tasks := s.repomanager.Tasks(tx)

		task, err := tasks.Get(ctx, tenantID, e.TaskID)
		if err != nil {
			return err
		}
		if task.Status == models.TaskStatusArchived {
			return fmt.Errorf("task %s is archived: %w", task.ID, common.ErrInvalidInput)
		}

		created, err = s.repomanager.TimeEntries(tx).Create(ctx, tenantID, e)
		if err != nil {
			return err
		}
		total, err = tasks.AddTimeSpent(ctx, tenantID, task.ID, e.DurationSeconds)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return created, total, nil
}

func (s *WorkspaceService) ListTimeEntries(ctx context.Context, tenantID, taskID string) ([]models.TimeEntry, error) {
	if _, err := s.repomanager.Tasks(s.db).Get(ctx, tenantID, taskID); err != nil {
		return nil, err
	}
	return s.repomanager.TimeEntries(s.db).ListByTask(ctx, tenantID, taskID)
}

// DeleteTimeEntry removes an entry and subtracts its duration from the task
// aggregate in one transaction. It returns the task's new total.
func (s *WorkspaceService) DeleteTimeEntry(ctx context.Context, tenantID, id string) (int64, error) {
	var total int64
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		deleted, err := s.repomanager.TimeEntries(tx).Delete(ctx, tenantID, id)
		if err != nil {
			return err
		}
		total, err = s.repomanager.Tasks(tx).AddTimeSpent(ctx, tenantID, deleted.TaskID, -deleted.DurationSeconds)
		return err
	})
	if err != nil {
		return 0, err
	}
	return total, nil
}
