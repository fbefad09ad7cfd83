package models

import "time"

// Task statuses.
const (
	TaskStatusOpen     = "open"
	TaskStatusDone     = "done"
	TaskStatusArchived = "archived"
)

// Task is a tenant-owned unit of billable work. TimeSpentSeconds is the
// aggregate of all time entries logged against it.
type Task struct {
	ID               string
	AccountID        string
	CategoryID       *string
	Title            string
	Description      string
	Status           string
	TimeSpentSeconds int64
	ExternalRef      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TaskFilter narrows task listings. Zero values mean "any".
type TaskFilter struct {
	Status     string
	CategoryID string
}

// TimeEntry records a span of work logged against a task.
type TimeEntry struct {
	ID              string
	AccountID       string
	TaskID          string
	DurationSeconds int64
	Note            string
	StartedAt       time.Time
	CreatedAt       time.Time
}
