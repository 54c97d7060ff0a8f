package models

import "time"

// PeriodStatus captures the lifecycle of an academic period. Transitions are
// one-directional: upcoming -> active -> completed.
type PeriodStatus string

const (
	PeriodStatusUpcoming  PeriodStatus = "upcoming"
	PeriodStatusActive    PeriodStatus = "active"
	PeriodStatusCompleted PeriodStatus = "completed"
)

// AcademicYear models one institutional year, labelled "YYYY/YYYY".
// Exactly one year is active at a time; only the transition engine flips status.
type AcademicYear struct {
	ID        string       `db:"id" json:"id"`
	Label     string       `db:"label" json:"label"`
	StartDate time.Time    `db:"start_date" json:"start_date"`
	EndDate   time.Time    `db:"end_date" json:"end_date"`
	Status    PeriodStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// AcademicYearFilter defines filters supported by list endpoints.
type AcademicYearFilter struct {
	Label     string
	Status    PeriodStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
