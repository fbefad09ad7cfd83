package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/logging"
	"github.com/dmitrijs2005/timeledger/internal/server/auth"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/dmitrijs2005/timeledger/internal/server/services"
)

const (
	goodToken = "good-access-token"
	accountA  = "acc-a"
)

// ---- fakes ----

type fakeAuth struct {
	registerResp *models.Account
	registerErr  error
	gotEmail     string
	gotClient    models.ClientInfo

	loginResp *auth.TokenPair
	loginErr  error
	gotLogin  string

	refreshResp *auth.TokenPair
	refreshErr  error

	logoutErr    error
	loggedOut    string
	account      *models.Account
	accountErr   error
	passwordErr  error
	gotPasswords [2]string
	auditResp    []models.AuditEntry
	gotLimit     int
}

func (f *fakeAuth) Register(_ context.Context, email, _, _ string, client models.ClientInfo) (*models.Account, error) {
	f.gotEmail = email
	f.gotClient = client
	return f.registerResp, f.registerErr
}

func (f *fakeAuth) Login(_ context.Context, login, _ string, client models.ClientInfo) (*auth.TokenPair, error) {
	f.gotLogin = login
	f.gotClient = client
	return f.loginResp, f.loginErr
}

func (f *fakeAuth) RefreshToken(context.Context, string, models.ClientInfo) (*auth.TokenPair, error) {
	return f.refreshResp, f.refreshErr
}

func (f *fakeAuth) Logout(_ context.Context, token string, _ models.ClientInfo) error {
	f.loggedOut = token
	return f.logoutErr
}

func (f *fakeAuth) RequireAuthenticated(_ context.Context, token string) (string, error) {
	if token != goodToken {
		return "", common.ErrTokenInvalid
	}
	return accountA, nil
}

func (f *fakeAuth) GetAccount(_ context.Context, accountID string) (*models.Account, error) {
	if f.accountErr != nil {
		return nil, f.accountErr
	}
	if f.account != nil && f.account.ID == accountID {
		return f.account, nil
	}
	return nil, common.ErrNotFound
}

func (f *fakeAuth) ChangePassword(_ context.Context, _, current, next string, _ models.ClientInfo) error {
	f.gotPasswords = [2]string{current, next}
	return f.passwordErr
}

func (f *fakeAuth) CompleteOnboarding(ctx context.Context, accountID string, _ models.ClientInfo) (*models.Account, error) {
	a, err := f.GetAccount(ctx, accountID)
	if err != nil {
		return nil, err
	}
	a.Onboarded = true
	return a, nil
}

func (f *fakeAuth) ListAudit(_ context.Context, _ string, limit int) ([]models.AuditEntry, error) {
	f.gotLimit = limit
	return f.auditResp, nil
}

// fakeWorkspace keeps tasks per tenant so handlers can be checked for
// passing the authenticated tenant through.
type fakeWorkspace struct {
	tasks      map[string]map[string]*models.Task
	createErr  error
	gotFilter  models.TaskFilter
	gotRaw     []byte
	gotEntry   *models.TimeEntry
	logTotal   int64
	deleteErr  error
	categories []models.Category
}

func newFakeWorkspace() *fakeWorkspace {
	return &fakeWorkspace{tasks: map[string]map[string]*models.Task{}}
}

func (f *fakeWorkspace) CreateTask(_ context.Context, tenantID string, t *models.Task) (*models.Task, error) {
	if f.createErr != nil {
		return nil, f.createErr
	}
	if f.tasks[tenantID] == nil {
		f.tasks[tenantID] = map[string]*models.Task{}
	}
	t.ID = "task-1"
	t.AccountID = tenantID
	if t.Status == "" {
		t.Status = models.TaskStatusOpen
	}
	f.tasks[tenantID][t.ID] = t
	return t, nil
}

func (f *fakeWorkspace) GetTask(_ context.Context, tenantID, id string) (*models.Task, error) {
	t, ok := f.tasks[tenantID][id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return t, nil
}

func (f *fakeWorkspace) ListTasks(_ context.Context, tenantID string, filter models.TaskFilter) ([]models.Task, error) {
	f.gotFilter = filter
	out := []models.Task{}
	for _, t := range f.tasks[tenantID] {
		out = append(out, *t)
	}
	return out, nil
}

func (f *fakeWorkspace) UpdateTask(ctx context.Context, tenantID string, t *models.Task) (*models.Task, error) {
	if _, err := f.GetTask(ctx, tenantID, t.ID); err != nil {
		return nil, err
	}
	f.tasks[tenantID][t.ID] = t
	return t, nil
}

func (f *fakeWorkspace) ArchiveTask(ctx context.Context, tenantID, id string) error {
	t, err := f.GetTask(ctx, tenantID, id)
	if err != nil {
		return err
	}
	t.Status = models.TaskStatusArchived
	return nil
}

func (f *fakeWorkspace) PurgeArchivedTasks(context.Context, string) (int64, error) { return 3, nil }

func (f *fakeWorkspace) CreateCategory(_ context.Context, tenantID, name, color string) (*models.Category, error) {
	return &models.Category{ID: "cat-1", AccountID: tenantID, Name: name, Color: color}, nil
}

func (f *fakeWorkspace) ListCategories(context.Context, string) ([]models.Category, error) {
	return f.categories, nil
}

func (f *fakeWorkspace) RenameCategory(context.Context, string, string, string) error { return nil }

func (f *fakeWorkspace) DeleteCategory(context.Context, string, string) error { return common.ErrNotFound }

func (f *fakeWorkspace) GetConfig(_ context.Context, tenantID string, kind models.ConfigKind) (*models.StoredConfig, error) {
	if kind != models.ConfigKindCurrency {
		return nil, common.ErrNotFound
	}
	return &models.StoredConfig{AccountID: tenantID, Value: models.DefaultCurrencyConfig()}, nil
}

func (f *fakeWorkspace) PutConfig(_ context.Context, tenantID string, kind models.ConfigKind, raw []byte) (*models.StoredConfig, error) {
	f.gotRaw = raw
	v, err := models.DecodeConfigValue(kind, raw)
	if err != nil {
		return nil, common.ErrInvalidInput
	}
	return &models.StoredConfig{AccountID: tenantID, Value: v}, nil
}

func (f *fakeWorkspace) LogTime(_ context.Context, tenantID string, e *models.TimeEntry) (*models.TimeEntry, int64, error) {
	f.gotEntry = e
	e.ID = "entry-1"
	e.AccountID = tenantID
	return e, f.logTotal, nil
}

func (f *fakeWorkspace) ListTimeEntries(context.Context, string, string) ([]models.TimeEntry, error) {
	return nil, nil
}

func (f *fakeWorkspace) DeleteTimeEntry(context.Context, string, string) (int64, error) {
	return 600, f.deleteErr
}

type fakeExports struct {
	result  *services.ExportResult
	err     error
	gotFrom time.Time
	gotTo   time.Time
	list    []models.Export
}

func (f *fakeExports) ExportTimesheet(_ context.Context, _ string, from, to time.Time) (*services.ExportResult, error) {
	f.gotFrom, f.gotTo = from, to
	return f.result, f.err
}

func (f *fakeExports) GetExport(context.Context, string, string) (*services.ExportResult, error) {
	return f.result, f.err
}

func (f *fakeExports) ListExports(context.Context, string, int) ([]models.Export, error) {
	return f.list, f.err
}

// ---- helpers ----

type testEnv struct {
	auth      *fakeAuth
	workspace *fakeWorkspace
	exports   *fakeExports
	handler   http.Handler
}

func newTestEnv(opts Options) *testEnv {
	env := &testEnv{auth: &fakeAuth{}, workspace: newFakeWorkspace(), exports: &fakeExports{}}
	env.handler = NewServer(opts, env.auth, env.workspace, env.exports, logging.NewNop()).Handler()
	return env
}

func (e *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		if err := json.NewEncoder(&buf).Encode(b); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.7:51000"
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	e.handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return v
}
