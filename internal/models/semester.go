package models

import "time"

// Track tags the program schedule a semester belongs to. Regular students sit
// two semesters per year, weekend students three trimesters.
type Track string

const (
	TrackRegular Track = "Regular"
	TrackWeekend Track = "Weekend"
)

// AcademicSemester is one teaching period inside an academic year. For a
// given (year, track) pair at most one semester is active.
type AcademicSemester struct {
	ID        string       `db:"id" json:"id"`
	YearID    string       `db:"year_id" json:"year_id"`
	Name      string       `db:"name" json:"name"`
	Number    int          `db:"number" json:"number"`
	Track     Track        `db:"track" json:"track"`
	StartDate time.Time    `db:"start_date" json:"start_date"`
	EndDate   time.Time    `db:"end_date" json:"end_date"`
	Status    PeriodStatus `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
}

// SemesterFilter defines filters supported by semester list endpoints.
type SemesterFilter struct {
	YearID    string
	Track     Track
	Status    PeriodStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
