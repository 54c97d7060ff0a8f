package models

import "time"

// PeriodPointer is the singleton record every other subsystem reads to learn
// the current academic year and semester. It is only ever written inside a
// transition transaction, together with the underlying status flips.
type PeriodPointer struct {
	ID            int        `db:"id" json:"-"`
	YearID        string     `db:"year_id" json:"year_id"`
	YearLabel     string     `db:"year_label" json:"year_label"`
	SemesterID    *string    `db:"semester_id" json:"semester_id,omitempty"`
	SemesterLabel string     `db:"semester_label" json:"semester_label"`
	UpdatedAt     time.Time  `db:"updated_at" json:"updated_at"`
	UpdatedBy     string     `db:"updated_by" json:"updated_by"`
}
