package models

import "time"

// Category groups tasks. Every account gets DefaultCategories on registration.
type Category struct {
	ID        string
	AccountID string
	Name      string
	Color     string
	CreatedAt time.Time
}

// DefaultCategory is a name/colour pair provisioned for new accounts.
type DefaultCategory struct {
	Name  string
	Color string
}

// DefaultCategories are created for each new tenant.
var DefaultCategories = []DefaultCategory{
	{Name: "Development", Color: "#2563eb"},
	{Name: "Meetings", Color: "#16a34a"},
	{Name: "Administration", Color: "#9333ea"},
}
