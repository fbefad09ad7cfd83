package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/dbx"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/audit"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/categories"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/configs"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/exports"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/timeentries"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

type errBoom struct{}

func (errBoom) Error() string { return "boom" }

// newTxDB returns an in-memory SQLite handle. The fakes below ignore the
// DBTX they are given; the handle only has to begin and commit transactions.
func newTxDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// memStore keeps every table in maps and enforces tenant ownership the way
// the PostgreSQL repositories do.
type memStore struct {
	mu sync.Mutex

	accounts   map[string]models.Account
	refresh    map[string]models.RefreshToken
	audit      []models.AuditEntry
	categories map[string]models.Category
	tasks      map[string]models.Task
	configs    map[string]models.ConfigValue
	entries    map[string]models.TimeEntry
	exports    map[string]models.Export

	auditErr         error
	refreshCreateErr error
	timesheetErr     error
	beforeRowLock    func(id string)
	seq              int
}

func newMemStore() *memStore {
	return &memStore{
		accounts:   map[string]models.Account{},
		refresh:    map[string]models.RefreshToken{},
		categories: map[string]models.Category{},
		tasks:      map[string]models.Task{},
		configs:    map[string]models.ConfigValue{},
		entries:    map[string]models.TimeEntry{},
		exports:    map[string]models.Export{},
	}
}

// tick returns strictly increasing timestamps so ordering by creation time
// is deterministic.
func (s *memStore) tick() time.Time {
	s.seq++
	return time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(s.seq) * time.Second)
}

func (s *memStore) account(id string) models.Account {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.accounts[id]
}

func (s *memStore) auditActions(accountID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, e := range s.audit {
		if e.AccountID != nil && *e.AccountID == accountID {
			out = append(out, e.Action)
		}
	}
	return out
}

func (s *memStore) refreshCount(accountID string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, r := range s.refresh {
		if r.AccountID == accountID {
			n++
		}
	}
	return n
}

type memRepoManager struct {
	s *memStore
}

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error    { return nil }
func (m *memRepoManager) Accounts(dbx.DBTX) accounts.Repository           { return memAccounts{m.s} }
func (m *memRepoManager) Audit(dbx.DBTX) audit.Repository                 { return memAudit{m.s} }
func (m *memRepoManager) RefreshTokens(dbx.DBTX) refreshtokens.Repository { return memRefresh{m.s} }
func (m *memRepoManager) Categories(dbx.DBTX) categories.Repository       { return memCategories{m.s} }
func (m *memRepoManager) Tasks(dbx.DBTX) tasks.Repository                 { return memTasks{m.s} }
func (m *memRepoManager) Configs(dbx.DBTX) configs.Repository             { return memConfigs{m.s} }
func (m *memRepoManager) TimeEntries(dbx.DBTX) timeentries.Repository     { return memEntries{m.s} }
func (m *memRepoManager) Exports(dbx.DBTX) exports.Repository             { return memExports{m.s} }

// --- accounts ---

type memAccounts struct{ s *memStore }

func (r memAccounts) Create(_ context.Context, a *models.Account) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.accounts {
		if existing.Email == a.Email || existing.Username == a.Username {
			return nil, common.ErrDuplicateIdentity
		}
	}
	a.CreatedAt = r.s.tick()
	a.UpdatedAt = a.CreatedAt
	r.s.accounts[a.ID] = *a
	out := *a
	return &out, nil
}

func (r memAccounts) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &a, nil
}

func (r memAccounts) GetByIDForUpdate(ctx context.Context, id string) (*models.Account, error) {
	if hook := r.s.beforeRowLock; hook != nil {
		hook(id)
	}
	return r.GetByID(ctx, id)
}

func (r memAccounts) find(match func(models.Account) bool) (*models.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, a := range r.s.accounts {
		if match(a) {
			out := a
			return &out, nil
		}
	}
	return nil, common.ErrNotFound
}

func (r memAccounts) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	return r.find(func(a models.Account) bool { return a.Email == email })
}

func (r memAccounts) GetByUsername(_ context.Context, username string) (*models.Account, error) {
	return r.find(func(a models.Account) bool { return a.Username == username })
}

func (r memAccounts) update(id string, fn func(a *models.Account)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	a, ok := r.s.accounts[id]
	if !ok {
		return common.ErrNotFound
	}
	fn(&a)
	r.s.accounts[id] = a
	return nil
}

func (r memAccounts) SaveLockState(_ context.Context, id string, st models.LockState) error {
	return r.update(id, func(a *models.Account) {
		a.FailedLoginAttempts = st.FailedLoginAttempts
		a.LockedUntil = st.LockedUntil
	})
}

func (r memAccounts) RecordLogin(_ context.Context, id string, at time.Time) error {
	return r.update(id, func(a *models.Account) { a.LastLoginAt = &at })
}

func (r memAccounts) UpdatePassword(_ context.Context, id string, hash string) error {
	return r.update(id, func(a *models.Account) { a.PasswordHash = hash })
}

func (r memAccounts) SetOnboarded(_ context.Context, id string) error {
	return r.update(id, func(a *models.Account) { a.Onboarded = true })
}

// --- audit ---

type memAudit struct{ s *memStore }

func (r memAudit) Append(_ context.Context, e *models.AuditEntry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.auditErr != nil {
		return r.s.auditErr
	}
	e.ID = int64(len(r.s.audit) + 1)
	r.s.audit = append(r.s.audit, *e)
	return nil
}

func (r memAudit) ListByAccount(_ context.Context, accountID string, limit int) ([]models.AuditEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []models.AuditEntry
	for i := len(r.s.audit) - 1; i >= 0 && len(out) < limit; i-- {
		e := r.s.audit[i]
		if e.AccountID != nil && *e.AccountID == accountID {
			out = append(out, e)
		}
	}
	return out, nil
}

// --- refresh tokens ---

type memRefresh struct{ s *memStore }

func (r memRefresh) Create(_ context.Context, t *models.RefreshToken) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.refreshCreateErr != nil {
		return r.s.refreshCreateErr
	}
	t.CreatedAt = r.s.tick()
	r.s.refresh[t.ID] = *t
	return nil
}

func (r memRefresh) Find(_ context.Context, jti, accountID string) (*models.RefreshToken, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refresh[jti]
	if !ok || t.AccountID != accountID {
		return nil, common.ErrNotFound
	}
	return &t, nil
}

func (r memRefresh) Consume(_ context.Context, jti, accountID string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.refresh[jti]
	if !ok || t.AccountID != accountID {
		return common.ErrNotFound
	}
	delete(r.s.refresh, jti)
	return nil
}

func (r memRefresh) DeleteByAccount(_ context.Context, accountID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.refresh {
		if t.AccountID == accountID {
			delete(r.s.refresh, id)
			n++
		}
	}
	return n, nil
}

// --- categories ---

type memCategories struct{ s *memStore }

func (r memCategories) Create(_ context.Context, tenantID string, c *models.Category) (*models.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, existing := range r.s.categories {
		if existing.AccountID == tenantID && existing.Name == c.Name {
			return nil, fmt.Errorf("category %q: %w", c.Name, common.ErrAlreadyExists)
		}
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.AccountID = tenantID
	c.CreatedAt = r.s.tick()
	r.s.categories[c.ID] = *c
	out := *c
	return &out, nil
}

func (r memCategories) Get(_ context.Context, tenantID, id string) (*models.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.categories[id]
	if !ok || c.AccountID != tenantID {
		return nil, common.ErrNotFound
	}
	return &c, nil
}

func (r memCategories) List(_ context.Context, tenantID string) ([]models.Category, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Category{}
	for _, c := range r.s.categories {
		if c.AccountID == tenantID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (r memCategories) Rename(_ context.Context, tenantID, id, name string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.categories[id]
	if !ok || c.AccountID != tenantID {
		return common.ErrNotFound
	}
	for _, existing := range r.s.categories {
		if existing.AccountID == tenantID && existing.Name == name && existing.ID != id {
			return fmt.Errorf("category %q: %w", name, common.ErrAlreadyExists)
		}
	}
	c.Name = name
	r.s.categories[id] = c
	return nil
}

func (r memCategories) Delete(_ context.Context, tenantID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	c, ok := r.s.categories[id]
	if !ok || c.AccountID != tenantID {
		return common.ErrNotFound
	}
	delete(r.s.categories, id)
	for tid, t := range r.s.tasks {
		if t.CategoryID != nil && *t.CategoryID == id {
			t.CategoryID = nil
			r.s.tasks[tid] = t
		}
	}
	return nil
}

func (r memCategories) CreateDefaults(ctx context.Context, tenantID string, defaults []models.DefaultCategory) error {
	for _, d := range defaults {
		_, err := r.Create(ctx, tenantID, &models.Category{Name: d.Name, Color: d.Color})
		if err != nil && !errors.Is(err, common.ErrAlreadyExists) {
			return err
		}
	}
	return nil
}

// --- tasks ---

type memTasks struct{ s *memStore }

// ownsCategory mirrors the tenant-scoped category reference of tasks.
// Callers hold r.s.mu.
func (r memTasks) ownsCategory(tenantID string, categoryID *string) bool {
	if categoryID == nil || *categoryID == "" {
		return true
	}
	c, ok := r.s.categories[*categoryID]
	return ok && c.AccountID == tenantID
}

func (r memTasks) Create(_ context.Context, tenantID string, t *models.Task) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if !r.ownsCategory(tenantID, t.CategoryID) {
		return nil, fmt.Errorf("category: %w", common.ErrNotFound)
	}
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.Status == "" {
		t.Status = models.TaskStatusOpen
	}
	t.AccountID = tenantID
	t.TimeSpentSeconds = 0
	t.CreatedAt = r.s.tick()
	t.UpdatedAt = t.CreatedAt
	r.s.tasks[t.ID] = *t
	out := *t
	return &out, nil
}

func (r memTasks) Get(_ context.Context, tenantID, id string) (*models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok || t.AccountID != tenantID {
		return nil, common.ErrNotFound
	}
	return &t, nil
}

func (r memTasks) List(_ context.Context, tenantID string, f models.TaskFilter) ([]models.Task, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Task{}
	for _, t := range r.s.tasks {
		if t.AccountID != tenantID {
			continue
		}
		if f.Status != "" && t.Status != f.Status {
			continue
		}
		if f.CategoryID != "" && (t.CategoryID == nil || *t.CategoryID != f.CategoryID) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (r memTasks) Update(_ context.Context, tenantID string, t *models.Task) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	cur, ok := r.s.tasks[t.ID]
	if !ok || cur.AccountID != tenantID || !r.ownsCategory(tenantID, t.CategoryID) {
		return common.ErrNotFound
	}
	cur.CategoryID = t.CategoryID
	cur.Title = t.Title
	cur.Description = t.Description
	cur.Status = t.Status
	cur.ExternalRef = t.ExternalRef
	cur.UpdatedAt = r.s.tick()
	r.s.tasks[t.ID] = cur
	*t = cur
	return nil
}

func (r memTasks) Archive(_ context.Context, tenantID, id string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok || t.AccountID != tenantID {
		return common.ErrNotFound
	}
	t.Status = models.TaskStatusArchived
	r.s.tasks[id] = t
	return nil
}

func (r memTasks) AddTimeSpent(_ context.Context, tenantID, id string, delta int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.tasks[id]
	if !ok || t.AccountID != tenantID {
		return 0, common.ErrNotFound
	}
	if t.TimeSpentSeconds+delta < 0 {
		return 0, fmt.Errorf("time spent of task %s would become negative", id)
	}
	t.TimeSpentSeconds += delta
	r.s.tasks[id] = t
	return t.TimeSpentSeconds, nil
}

func (r memTasks) DeleteArchived(_ context.Context, tenantID string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var n int64
	for id, t := range r.s.tasks {
		if t.AccountID != tenantID || t.Status != models.TaskStatusArchived {
			continue
		}
		delete(r.s.tasks, id)
		for eid, e := range r.s.entries {
			if e.TaskID == id {
				delete(r.s.entries, eid)
			}
		}
		n++
	}
	return n, nil
}

// --- configs ---

type memConfigs struct{ s *memStore }

func configKey(tenantID string, kind models.ConfigKind) string {
	return tenantID + "/" + string(kind)
}

func (r memConfigs) Get(_ context.Context, tenantID string, kind models.ConfigKind) (*models.StoredConfig, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	v, ok := r.s.configs[configKey(tenantID, kind)]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &models.StoredConfig{AccountID: tenantID, Value: v}, nil
}

func (r memConfigs) Put(_ context.Context, tenantID string, v models.ConfigValue) (*models.StoredConfig, error) {
	if v == nil || v.Validate() != nil {
		return nil, common.ErrInvalidInput
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.configs[configKey(tenantID, v.Kind())] = v
	return &models.StoredConfig{AccountID: tenantID, Value: v, UpdatedAt: r.s.tick()}, nil
}

func (r memConfigs) PutIfAbsent(_ context.Context, tenantID string, v models.ConfigValue) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	key := configKey(tenantID, v.Kind())
	if _, ok := r.s.configs[key]; !ok {
		r.s.configs[key] = v
	}
	return nil
}

// --- time entries ---

type memEntries struct{ s *memStore }

func (r memEntries) Create(_ context.Context, tenantID string, e *models.TimeEntry) (*models.TimeEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t, ok := r.s.tasks[e.TaskID]; !ok || t.AccountID != tenantID {
		return nil, fmt.Errorf("task: %w", common.ErrNotFound)
	}
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.AccountID = tenantID
	e.CreatedAt = r.s.tick()
	r.s.entries[e.ID] = *e
	out := *e
	return &out, nil
}

func (r memEntries) ListByTask(_ context.Context, tenantID, taskID string) ([]models.TimeEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.TimeEntry{}
	for _, e := range r.s.entries {
		if e.AccountID == tenantID && e.TaskID == taskID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

func (r memEntries) Delete(_ context.Context, tenantID, id string) (*models.TimeEntry, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.entries[id]
	if !ok || e.AccountID != tenantID {
		return nil, common.ErrNotFound
	}
	delete(r.s.entries, id)
	return &e, nil
}

func (r memEntries) ListTimesheet(_ context.Context, tenantID string, from, to time.Time) ([]models.TimesheetRow, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.timesheetErr != nil {
		return nil, r.s.timesheetErr
	}
	out := []models.TimesheetRow{}
	for _, e := range r.s.entries {
		if e.AccountID != tenantID || e.StartedAt.Before(from) || !e.StartedAt.Before(to) {
			continue
		}
		t := r.s.tasks[e.TaskID]
		row := models.TimesheetRow{
			EntryID:         e.ID,
			StartedAt:       e.StartedAt,
			DurationSeconds: e.DurationSeconds,
			Note:            e.Note,
			TaskID:          t.ID,
			TaskTitle:       t.Title,
			ExternalRef:     t.ExternalRef,
		}
		if t.CategoryID != nil {
			row.CategoryName = r.s.categories[*t.CategoryID].Name
		}
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out, nil
}

// --- exports ---

type memExports struct{ s *memStore }

func (r memExports) Create(_ context.Context, tenantID string, e *models.Export) (*models.Export, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	e.AccountID = tenantID
	e.Status = models.ExportStatusPending
	e.CreatedAt = r.s.tick()
	r.s.exports[e.ID] = *e
	out := *e
	return &out, nil
}

func (r memExports) Get(_ context.Context, tenantID, id string) (*models.Export, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.exports[id]
	if !ok || e.AccountID != tenantID {
		return nil, common.ErrNotFound
	}
	return &e, nil
}

func (r memExports) ListByAccount(_ context.Context, tenantID string, limit int) ([]models.Export, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []models.Export{}
	for _, e := range r.s.exports {
		if e.AccountID == tenantID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memExports) MarkUploaded(_ context.Context, tenantID, id string, rowCount int) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	e, ok := r.s.exports[id]
	if !ok || e.AccountID != tenantID || e.Status != models.ExportStatusPending {
		return common.ErrNotFound
	}
	e.Status = models.ExportStatusCompleted
	e.RowCount = rowCount
	r.s.exports[id] = e
	return nil
}
