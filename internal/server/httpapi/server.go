// Package httpapi exposes the auth and workspace services over JSON/HTTP.
// Handlers only translate requests and map service errors to status codes.
package httpapi

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/logging"
	"github.com/dmitrijs2005/timeledger/internal/server/auth"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/dmitrijs2005/timeledger/internal/server/services"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// AuthAPI is the subset of services.AuthService used by the handlers.
type AuthAPI interface {
	Register(ctx context.Context, email, username, password string, client models.ClientInfo) (*models.Account, error)
	Login(ctx context.Context, login, password string, client models.ClientInfo) (*auth.TokenPair, error)
	RefreshToken(ctx context.Context, refreshToken string, client models.ClientInfo) (*auth.TokenPair, error)
	Logout(ctx context.Context, refreshToken string, client models.ClientInfo) error
	RequireAuthenticated(ctx context.Context, accessToken string) (string, error)
	GetAccount(ctx context.Context, accountID string) (*models.Account, error)
	ChangePassword(ctx context.Context, accountID, current, next string, client models.ClientInfo) error
	CompleteOnboarding(ctx context.Context, accountID string, client models.ClientInfo) (*models.Account, error)
	ListAudit(ctx context.Context, accountID string, limit int) ([]models.AuditEntry, error)
}

// WorkspaceAPI is the subset of services.WorkspaceService used by the handlers.
type WorkspaceAPI interface {
	CreateTask(ctx context.Context, tenantID string, t *models.Task) (*models.Task, error)
	GetTask(ctx context.Context, tenantID, id string) (*models.Task, error)
	ListTasks(ctx context.Context, tenantID string, f models.TaskFilter) ([]models.Task, error)
	UpdateTask(ctx context.Context, tenantID string, t *models.Task) (*models.Task, error)
	ArchiveTask(ctx context.Context, tenantID, id string) error
	PurgeArchivedTasks(ctx context.Context, tenantID string) (int64, error)
	CreateCategory(ctx context.Context, tenantID, name, color string) (*models.Category, error)
	ListCategories(ctx context.Context, tenantID string) ([]models.Category, error)
	RenameCategory(ctx context.Context, tenantID, id, name string) error
	DeleteCategory(ctx context.Context, tenantID, id string) error
	GetConfig(ctx context.Context, tenantID string, kind models.ConfigKind) (*models.StoredConfig, error)
	PutConfig(ctx context.Context, tenantID string, kind models.ConfigKind, raw []byte) (*models.StoredConfig, error)
	LogTime(ctx context.Context, tenantID string, e *models.TimeEntry) (*models.TimeEntry, int64, error)
	ListTimeEntries(ctx context.Context, tenantID, taskID string) ([]models.TimeEntry, error)
	DeleteTimeEntry(ctx context.Context, tenantID, id string) (int64, error)
}

// ExportAPI is the subset of services.ExportService used by the handlers.
type ExportAPI interface {
	ExportTimesheet(ctx context.Context, tenantID string, from, to time.Time) (*services.ExportResult, error)
	GetExport(ctx context.Context, tenantID, id string) (*services.ExportResult, error)
	ListExports(ctx context.Context, tenantID string, limit int) ([]models.Export, error)
}

// Options carries the transport settings taken from the server config.
type Options struct {
	Address            string
	CORSAllowedOrigins []string
	TrustProxy         bool
	ShutdownTimeout    time.Duration
}

type Server struct {
	opts       Options
	auth       AuthAPI
	workspace  WorkspaceAPI
	exports    ExportAPI
	logger     logging.Logger
	trustProxy bool
}

func NewServer(opts Options, a AuthAPI, ws WorkspaceAPI, ex ExportAPI, l logging.Logger) *Server {
	return &Server{
		opts:       opts,
		auth:       a,
		workspace:  ws,
		exports:    ex,
		logger:     l.With("module", "http_server"),
		trustProxy: opts.TrustProxy,
	}
}

// Handler builds the chi router with the full middleware stack.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.Recoverer)
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	if len(s.opts.CORSAllowedOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: s.opts.CORSAllowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{common.AuthorizationHeaderName, "Content-Type", common.RequestIDHeaderName},
			ExposedHeaders: []string{common.RequestIDHeaderName},
			MaxAge:         300,
		}))
	}

	r.Get("/health/live", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", s.register)
			r.Post("/login", s.login)
			r.Post("/refresh", s.refresh)
			r.Post("/logout", s.logout)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/me", s.me)
			r.Post("/me/password", s.changePassword)
			r.Post("/me/onboarding", s.completeOnboarding)
			r.Get("/me/audit", s.listAudit)

			r.Route("/tasks", func(r chi.Router) {
				r.Get("/", s.listTasks)
				r.Post("/", s.createTask)
				r.Delete("/archived", s.purgeArchivedTasks)
				r.Get("/{id}", s.getTask)
				r.Put("/{id}", s.updateTask)
				r.Post("/{id}/archive", s.archiveTask)
				r.Get("/{id}/entries", s.listTimeEntries)
				r.Post("/{id}/entries", s.logTime)
			})
			r.Delete("/entries/{id}", s.deleteTimeEntry)

			r.Route("/categories", func(r chi.Router) {
				r.Get("/", s.listCategories)
				r.Post("/", s.createCategory)
				r.Patch("/{id}", s.renameCategory)
				r.Delete("/{id}", s.deleteCategory)
			})

			r.Get("/configs/{kind}", s.getConfig)
			r.Put("/configs/{kind}", s.putConfig)

			r.Route("/exports", func(r chi.Router) {
				r.Get("/", s.listExports)
				r.Post("/", s.createExport)
				r.Get("/{id}", s.getExport)
			})
		})
	})

	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully within the
// configured timeout.
func (s *Server) Run(ctx context.Context) error {
	listen, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, listen)
}

func (s *Server) Serve(ctx context.Context, listen net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(context.Background(), "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", listen.Addr().String())

	if err := srv.Serve(listen); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}
