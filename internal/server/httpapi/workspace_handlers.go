package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/timeledger/internal/common"
	"github.com/dmitrijs2005/timeledger/internal/server/models"
	"github.com/go-chi/chi/v5"
)

type taskRequest struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	Status      string  `json:"status"`
	CategoryID  *string `json:"category_id"`
	ExternalRef string  `json:"external_ref"`
}

type taskResponse struct {
	ID               string    `json:"id"`
	CategoryID       *string   `json:"category_id,omitempty"`
	Title            string    `json:"title"`
	Description      string    `json:"description,omitempty"`
	Status           string    `json:"status"`
	TimeSpentSeconds int64     `json:"time_spent_seconds"`
	ExternalRef      string    `json:"external_ref,omitempty"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

type categoryRequest struct {
	Name  string `json:"name"`
	Color string `json:"color"`
}

type categoryResponse struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Color     string    `json:"color,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type configResponse struct {
	Kind      models.ConfigKind  `json:"kind"`
	Value     models.ConfigValue `json:"value"`
	UpdatedAt time.Time          `json:"updated_at"`
}

type timeEntryRequest struct {
	DurationSeconds int64      `json:"duration_seconds"`
	Note            string     `json:"note"`
	StartedAt       *time.Time `json:"started_at"`
}

type timeEntryResponse struct {
	ID              string    `json:"id"`
	TaskID          string    `json:"task_id"`
	DurationSeconds int64     `json:"duration_seconds"`
	Note            string    `json:"note,omitempty"`
	StartedAt       time.Time `json:"started_at"`
	CreatedAt       time.Time `json:"created_at"`
}

type logTimeResponse struct {
	Entry            timeEntryResponse `json:"entry"`
	TimeSpentSeconds int64             `json:"time_spent_seconds"`
}

type totalResponse struct {
	TimeSpentSeconds int64 `json:"time_spent_seconds"`
}

func toTaskResponse(t *models.Task) taskResponse {
	return taskResponse{
		ID:               t.ID,
		CategoryID:       t.CategoryID,
		Title:            t.Title,
		Description:      t.Description,
		Status:           t.Status,
		TimeSpentSeconds: t.TimeSpentSeconds,
		ExternalRef:      t.ExternalRef,
		CreatedAt:        t.CreatedAt,
		UpdatedAt:        t.UpdatedAt,
	}
}

func toCategoryResponse(c *models.Category) categoryResponse {
	return categoryResponse{ID: c.ID, Name: c.Name, Color: c.Color, CreatedAt: c.CreatedAt}
}

func toTimeEntryResponse(e *models.TimeEntry) timeEntryResponse {
	return timeEntryResponse{
		ID:              e.ID,
		TaskID:          e.TaskID,
		DurationSeconds: e.DurationSeconds,
		Note:            e.Note,
		StartedAt:       e.StartedAt,
		CreatedAt:       e.CreatedAt,
	}
}

func (req *taskRequest) task(id string) *models.Task {
	return &models.Task{
		ID:          id,
		Title:       req.Title,
		Description: req.Description,
		Status:      req.Status,
		CategoryID:  req.CategoryID,
		ExternalRef: req.ExternalRef,
	}
}

// --- tasks ---

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	q := r.URL.Query()
	tasks, err := s.workspace.ListTasks(r.Context(), tenantID, models.TaskFilter{
		Status:     q.Get("status"),
		CategoryID: q.Get("category_id"),
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]taskResponse, 0, len(tasks))
	for i := range tasks {
		out = append(out, toTaskResponse(&tasks[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	task, err := s.workspace.CreateTask(r.Context(), tenantID, req.task(""))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toTaskResponse(task))
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	task, err := s.workspace.GetTask(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

// updateTask replaces the editable fields of a task. An omitted status keeps
// the task open.
func (s *Server) updateTask(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	var req taskRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}
	if req.Status == "" {
		req.Status = models.TaskStatusOpen
	}

	task, err := s.workspace.UpdateTask(r.Context(), tenantID, req.task(chi.URLParam(r, "id")))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toTaskResponse(task))
}

func (s *Server) archiveTask(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	if err := s.workspace.ArchiveTask(r.Context(), tenantID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) purgeArchivedTasks(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	n, err := s.workspace.PurgeArchivedTasks(r.Context(), tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]int64{"deleted": n})
}

// --- time entries ---

func (s *Server) logTime(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	var req timeEntryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	e := &models.TimeEntry{
		TaskID:          chi.URLParam(r, "id"),
		DurationSeconds: req.DurationSeconds,
		Note:            req.Note,
	}
	if req.StartedAt != nil {
		e.StartedAt = req.StartedAt.UTC()
	}

	created, total, err := s.workspace.LogTime(r.Context(), tenantID, e)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, logTimeResponse{Entry: toTimeEntryResponse(created), TimeSpentSeconds: total})
}

func (s *Server) listTimeEntries(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	entries, err := s.workspace.ListTimeEntries(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]timeEntryResponse, 0, len(entries))
	for i := range entries {
		out = append(out, toTimeEntryResponse(&entries[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteTimeEntry(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	total, err := s.workspace.DeleteTimeEntry(r.Context(), tenantID, chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, totalResponse{TimeSpentSeconds: total})
}

// --- categories ---

func (s *Server) listCategories(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	categories, err := s.workspace.ListCategories(r.Context(), tenantID)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	out := make([]categoryResponse, 0, len(categories))
	for i := range categories {
		out = append(out, toCategoryResponse(&categories[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) createCategory(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	c, err := s.workspace.CreateCategory(r.Context(), tenantID, req.Name, req.Color)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toCategoryResponse(c))
}

func (s *Server) renameCategory(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	var req categoryRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, r, err)
		return
	}

	if err := s.workspace.RenameCategory(r.Context(), tenantID, chi.URLParam(r, "id"), req.Name); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteCategory(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())

	if err := s.workspace.DeleteCategory(r.Context(), tenantID, chi.URLParam(r, "id")); err != nil {
		s.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// --- configs ---

func (s *Server) getConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())
	kind := models.ConfigKind(chi.URLParam(r, "kind"))

	c, err := s.workspace.GetConfig(r.Context(), tenantID, kind)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, configResponse{Kind: kind, Value: c.Value, UpdatedAt: c.UpdatedAt})
}

// putConfig stores the request body verbatim as the document of kind.
func (s *Server) putConfig(w http.ResponseWriter, r *http.Request) {
	tenantID, _ := AccountID(r.Context())
	kind := models.ConfigKind(chi.URLParam(r, "kind"))

	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		s.writeError(w, r, fmt.Errorf("read body: %v: %w", err, common.ErrInvalidInput))
		return
	}

	c, err := s.workspace.PutConfig(r.Context(), tenantID, kind, raw)
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, configResponse{Kind: kind, Value: c.Value, UpdatedAt: c.UpdatedAt})
}
