package models

import "time"

// Export upload states.
const (
	ExportStatusPending   = "pending"
	ExportStatusCompleted = "completed"
)

// Export records a timesheet file written to object storage.
type Export struct {
	ID         string
	AccountID  string
	StorageKey string
	Status     string
	RowCount   int
	PeriodFrom time.Time
	PeriodTo   time.Time
	CreatedAt  time.Time
}

// TimesheetRow is one time entry joined with its task and category.
type TimesheetRow struct {
	EntryID         string
	StartedAt       time.Time
	DurationSeconds int64
	Note            string
	TaskID          string
	TaskTitle       string
	ExternalRef     string
	CategoryName    string
}
