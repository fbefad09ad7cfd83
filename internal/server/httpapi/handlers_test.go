package httpapi

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/logging"
	"github.com/dmitrijs2005/timeledger/internal/server/auth"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/dmitrijs2005/timeledger/internal/server/policy"
	"github.com/dmitrijs2005/timeledger/internal/server/services"
)

var created = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func TestHealthLive(t *testing.T) {
	rec := newTestEnv(Options{}).do(t, http.MethodGet, "/health/live", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody[map[string]string](t, rec)["status"]; got != "ok" {
		t.Fatalf("status field = %q", got)
	}
}

func TestRegister_CreatedWithoutSecrets(t *testing.T) {
	env := newTestEnv(Options{})
	env.auth.registerResp = &models.Account{
		ID:           accountA,
		Email:        "alice@example.com",
		Username:     "alice",
		PasswordHash: "$2a$12$secret",
		CreatedAt:    created,
	}

	rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{
		Email: "Alice@Example.com", Username: "alice", Password: "Corr3ct-Horse!",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	if strings.Contains(rec.Body.String(), "secret") || strings.Contains(rec.Body.String(), "password") {
		t.Fatalf("response leaks credentials: %s", rec.Body.String())
	}
	got := decodeBody[accountResponse](t, rec)
	if got.ID != accountA || got.Email != "alice@example.com" {
		t.Fatalf("unexpected account: %+v", got)
	}
	if env.auth.gotEmail != "Alice@Example.com" {
		t.Fatalf("email not passed through: %q", env.auth.gotEmail)
	}
	if env.auth.gotClient.IPAddress != "203.0.113.7" {
		t.Fatalf("client ip = %q", env.auth.gotClient.IPAddress)
	}
}

func TestRegister_ErrorStatuses(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
	}{
		{"weak", &policy.Violation{Rule: policy.RuleMinLength, Reason: "too short"}, http.StatusUnprocessableEntity},
		{"duplicate", common.ErrDuplicateIdentity, http.StatusConflict},
		{"invalid", fmt.Errorf("email: %w", common.ErrInvalidInput), http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(Options{})
			env.auth.registerErr = tt.err
			rec := env.do(t, http.MethodPost, "/api/v1/auth/register", "", registerRequest{Email: "a@b.c", Username: "abc", Password: "x"})
			if rec.Code != tt.status {
				t.Fatalf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestDecode_RejectsMalformedBodies(t *testing.T) {
	env := newTestEnv(Options{})

	for _, body := range []string{`{"login":`, `{"login":"a","password":"b","admin":true}`} {
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("body %s: status = %d", body, rec.Code)
		}
	}
	if env.auth.gotLogin != "" {
		t.Fatal("service called with malformed body")
	}
}

func TestLogin(t *testing.T) {
	expires := created.Add(15 * time.Minute)

	t.Run("ok", func(t *testing.T) {
		env := newTestEnv(Options{})
		env.auth.loginResp = &auth.TokenPair{AccessToken: "a", AccessExpiresAt: expires, RefreshToken: "r", RefreshID: "jti"}

		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Login: "alice", Password: "pw"})
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
		got := decodeBody[tokenResponse](t, rec)
		if got.AccessToken != "a" || got.RefreshToken != "r" || got.TokenType != "Bearer" || !got.AccessExpiresAt.Equal(expires) {
			t.Fatalf("unexpected tokens: %+v", got)
		}
		if strings.Contains(rec.Body.String(), "jti") {
			t.Fatal("refresh id exposed")
		}
	})

	t.Run("locked", func(t *testing.T) {
		env := newTestEnv(Options{})
		env.auth.loginErr = common.ErrAccountLocked
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Login: "alice", Password: "pw"})
		if rec.Code != http.StatusLocked {
			t.Fatalf("status = %d", rec.Code)
		}
	})

	t.Run("bad credentials", func(t *testing.T) {
		env := newTestEnv(Options{})
		env.auth.loginErr = common.ErrInvalidCredentials
		rec := env.do(t, http.MethodPost, "/api/v1/auth/login", "", loginRequest{Login: "alice", Password: "pw"})
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("status = %d", rec.Code)
		}
		if got := decodeBody[APIError](t, rec); got.Message != "unauthorized" {
			t.Fatalf("message = %q", got.Message)
		}
	})
}

func TestRefreshAndLogout(t *testing.T) {
	env := newTestEnv(Options{})
	env.auth.refreshErr = common.ErrTokenInvalid

	rec := env.do(t, http.MethodPost, "/api/v1/auth/refresh", "", refreshRequest{RefreshToken: "reused"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("refresh status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/auth/logout", "", refreshRequest{RefreshToken: "r1"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("logout status = %d", rec.Code)
	}
	if env.auth.loggedOut != "r1" {
		t.Fatalf("logged out %q", env.auth.loggedOut)
	}
}

func TestMe(t *testing.T) {
	env := newTestEnv(Options{})
	env.auth.account = &models.Account{ID: accountA, Email: "alice@example.com", Username: "alice"}

	rec := env.do(t, http.MethodGet, "/api/v1/me", goodToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got := decodeBody[accountResponse](t, rec); got.Username != "alice" || got.Onboarded {
		t.Fatalf("unexpected account: %+v", got)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/me/onboarding", goodToken, nil)
	if got := decodeBody[accountResponse](t, rec); !got.Onboarded {
		t.Fatalf("onboarding not reflected: %+v", got)
	}

	env.auth.passwordErr = common.ErrAccountLocked
	rec = env.do(t, http.MethodPost, "/api/v1/me/password", goodToken, changePasswordRequest{CurrentPassword: "old", NewPassword: "new"})
	if rec.Code != http.StatusLocked {
		t.Fatalf("change password status = %d", rec.Code)
	}
	if env.auth.gotPasswords != [2]string{"old", "new"} {
		t.Fatalf("passwords = %v", env.auth.gotPasswords)
	}
}

func TestListAudit_Limit(t *testing.T) {
	env := newTestEnv(Options{})
	env.auth.auditResp = []models.AuditEntry{{Action: models.AuditLogout, CreatedAt: created}}

	rec := env.do(t, http.MethodGet, "/api/v1/me/audit?limit=5", goodToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if env.auth.gotLimit != 5 {
		t.Fatalf("limit = %d", env.auth.gotLimit)
	}
	if got := decodeBody[[]auditResponse](t, rec); len(got) != 1 || got[0].Action != models.AuditLogout {
		t.Fatalf("unexpected audit: %+v", got)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/me/audit?limit=-1", goodToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("negative limit status = %d", rec.Code)
	}
}

func TestTasks_TenantFromToken(t *testing.T) {
	env := newTestEnv(Options{})

	rec := env.do(t, http.MethodPost, "/api/v1/tasks", goodToken, taskRequest{Title: "Design"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create status = %d body=%s", rec.Code, rec.Body.String())
	}
	task := decodeBody[taskResponse](t, rec)
	if task.Status != models.TaskStatusOpen {
		t.Fatalf("status = %q", task.Status)
	}
	if _, ok := env.workspace.tasks[accountA][task.ID]; !ok {
		t.Fatal("task not stored under the authenticated tenant")
	}

	rec = env.do(t, http.MethodGet, "/api/v1/tasks/"+task.ID, goodToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/tasks/missing", goodToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("missing status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/tasks/"+task.ID, goodToken, taskRequest{Title: "Design v2"})
	if got := decodeBody[taskResponse](t, rec); got.Title != "Design v2" || got.Status != models.TaskStatusOpen {
		t.Fatalf("unexpected update: %+v", got)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/tasks/"+task.ID+"/archive", goodToken, nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("archive status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/tasks?status=archived&category_id=cat-1", goodToken, nil)
	if env.workspace.gotFilter != (models.TaskFilter{Status: "archived", CategoryID: "cat-1"}) {
		t.Fatalf("filter = %+v", env.workspace.gotFilter)
	}
	if got := decodeBody[[]taskResponse](t, rec); len(got) != 1 || got[0].Status != models.TaskStatusArchived {
		t.Fatalf("unexpected list: %+v", got)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/tasks/archived", goodToken, nil)
	if got := decodeBody[map[string]int64](t, rec); got["deleted"] != 3 {
		t.Fatalf("purge = %v", got)
	}
}

func TestLogTime(t *testing.T) {
	env := newTestEnv(Options{})
	env.workspace.logTotal = 5400
	started := time.Date(2025, 3, 3, 10, 0, 0, 0, time.FixedZone("CET", 3600))

	rec := env.do(t, http.MethodPost, "/api/v1/tasks/task-1/entries", goodToken, timeEntryRequest{
		DurationSeconds: 1800, Note: "review", StartedAt: &started,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	got := decodeBody[logTimeResponse](t, rec)
	if got.TimeSpentSeconds != 5400 || got.Entry.TaskID != "task-1" {
		t.Fatalf("unexpected response: %+v", got)
	}
	if e := env.workspace.gotEntry; e.StartedAt.Location() != time.UTC || !e.StartedAt.Equal(started) {
		t.Fatalf("started_at = %v", e.StartedAt)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/entries/entry-1", goodToken, nil)
	if got := decodeBody[totalResponse](t, rec); got.TimeSpentSeconds != 600 {
		t.Fatalf("delete total = %d", got.TimeSpentSeconds)
	}
}

func TestCategories(t *testing.T) {
	env := newTestEnv(Options{})
	env.workspace.categories = []models.Category{{ID: "cat-1", Name: "Development"}}

	rec := env.do(t, http.MethodPost, "/api/v1/categories", goodToken, categoryRequest{Name: "Design", Color: "#fff"})
	if got := decodeBody[categoryResponse](t, rec); rec.Code != http.StatusCreated || got.Name != "Design" {
		t.Fatalf("create: %d %+v", rec.Code, got)
	}

	rec = env.do(t, http.MethodGet, "/api/v1/categories", goodToken, nil)
	if got := decodeBody[[]categoryResponse](t, rec); len(got) != 1 {
		t.Fatalf("list: %+v", got)
	}

	rec = env.do(t, http.MethodPatch, "/api/v1/categories/cat-1", goodToken, categoryRequest{Name: "Dev"})
	if rec.Code != http.StatusNoContent {
		t.Fatalf("rename status = %d", rec.Code)
	}

	rec = env.do(t, http.MethodDelete, "/api/v1/categories/other-tenant", goodToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("delete status = %d", rec.Code)
	}
}

func TestConfigs(t *testing.T) {
	env := newTestEnv(Options{})

	rec := env.do(t, http.MethodGet, "/api/v1/configs/currency", goodToken, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"code":"EUR"`) {
		t.Fatalf("get: %d %s", rec.Code, rec.Body.String())
	}

	raw := `{"version":1,"hourly_rate_cents":9000,"currency":"EUR","round_to_minutes":15}`
	rec = env.do(t, http.MethodPut, "/api/v1/configs/rate", goodToken, raw)
	if rec.Code != http.StatusOK {
		t.Fatalf("put status = %d body=%s", rec.Code, rec.Body.String())
	}
	if string(env.workspace.gotRaw) != raw {
		t.Fatalf("raw body = %s", env.workspace.gotRaw)
	}

	rec = env.do(t, http.MethodPut, "/api/v1/configs/rate", goodToken, `{"version":2}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("invalid put status = %d", rec.Code)
	}
}

func TestExports(t *testing.T) {
	env := newTestEnv(Options{})
	expires := created.Add(15 * time.Minute)
	env.exports.result = &services.ExportResult{
		Export:    &models.Export{ID: "exp-1", Status: models.ExportStatusCompleted, RowCount: 4},
		URL:       "https://s3.test/bucket/exports/acc-a/x.csv?X-Amz-Signature=abc",
		ExpiresAt: expires,
	}

	rec := env.do(t, http.MethodPost, "/api/v1/exports", goodToken, exportRequest{From: "2025-03-01", To: "2025-04-01T00:00:00+02:00"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d body=%s", rec.Code, rec.Body.String())
	}
	got := decodeBody[exportResponse](t, rec)
	if got.URL == "" || got.ExpiresAt == nil || !got.ExpiresAt.Equal(expires) || got.RowCount != 4 {
		t.Fatalf("unexpected export: %+v", got)
	}
	if !env.exports.gotFrom.Equal(time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("from = %v", env.exports.gotFrom)
	}
	if !env.exports.gotTo.Equal(time.Date(2025, 3, 31, 22, 0, 0, 0, time.UTC)) {
		t.Fatalf("to = %v", env.exports.gotTo)
	}

	rec = env.do(t, http.MethodPost, "/api/v1/exports", goodToken, exportRequest{From: "March", To: "2025-04-01"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("bad date status = %d", rec.Code)
	}

	env.exports.list = []models.Export{{ID: "exp-1"}, {ID: "exp-0"}}
	rec = env.do(t, http.MethodGet, "/api/v1/exports", goodToken, nil)
	if got := decodeBody[[]exportResponse](t, rec); len(got) != 2 || got[0].URL != "" {
		t.Fatalf("list: %+v", got)
	}

	env.exports.err = common.ErrExportDisabled
	rec = env.do(t, http.MethodGet, "/api/v1/exports/exp-1", goodToken, nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("disabled status = %d", rec.Code)
	}
}

func TestServe_GracefulShutdown(t *testing.T) {
	listen, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	s := NewServer(Options{ShutdownTimeout: time.Second}, &fakeAuth{}, newFakeWorkspace(), &fakeExports{}, logging.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, listen) }()

	resp, err := http.Get("http://" + listen.Addr().String() + "/health/live")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("serve returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
