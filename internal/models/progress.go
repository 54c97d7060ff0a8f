package models

import "time"

// ProgressionStatus records where a student sits in the yearly progression
// cycle. A progress record is closed out (progressed) rather than deleted.
type ProgressionStatus string

const (
	ProgressionNotEligible ProgressionStatus = "not-eligible"
	ProgressionEligible    ProgressionStatus = "eligible"
	ProgressionProgressed  ProgressionStatus = "progressed"
)

// PeriodCompletion is one finished teaching period inside a student's year.
type PeriodCompletion struct {
	ID               string    `db:"id" json:"id"`
	ProgressID       string    `db:"progress_id" json:"progress_id"`
	PeriodName       string    `db:"period_name" json:"period_name"`
	Status           string    `db:"status" json:"status"`
	CompletedAt      time.Time `db:"completed_at" json:"completed_at"`
	CreditsEarned    int       `db:"credits_earned" json:"credits_earned"`
	CreditsAttempted int       `db:"credits_attempted" json:"credits_attempted"`
	GradeMetric      float64   `db:"grade_metric" json:"grade_metric"`
}

// PeriodCompletionStatusCompleted marks a period that counts toward
// progression.
const PeriodCompletionStatusCompleted = "completed"

// StudentProgress is one record per (student, academic year). Completions are
// append-only until a progression decision closes the record out.
type StudentProgress struct {
	ID          string             `db:"id" json:"id"`
	StudentID   string             `db:"student_id" json:"student_id"`
	YearLabel   string             `db:"year_label" json:"year_label"`
	CurrentLevel string            `db:"current_level" json:"current_level"`
	EntryLevel  string             `db:"entry_level" json:"entry_level"`
	Track       Track              `db:"track" json:"track"`
	Status      ProgressionStatus  `db:"status" json:"status"`
	Completions []PeriodCompletion `db:"-" json:"completions,omitempty"`
	CreatedAt   time.Time          `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time          `db:"updated_at" json:"updated_at"`
}

// CompletedPeriods counts completions that actually finished.
func (p *StudentProgress) CompletedPeriods() int {
	count := 0
	for _, c := range p.Completions {
		if c.Status == PeriodCompletionStatusCompleted {
			count++
		}
	}
	return count
}

// ProgressionRule is the per-track policy: how many completed periods unlock
// advancement and from which calendar day advancement may be considered.
type ProgressionRule struct {
	Track           Track `db:"track" json:"track"`
	RequiredPeriods int   `db:"required_periods" json:"required_periods"`
	WindowMonth     int   `db:"window_month" json:"window_month"`
	WindowDay       int   `db:"window_day" json:"window_day"`
	LevelStep       int   `db:"level_step" json:"level_step"`
	MaxLevel        int   `db:"max_level" json:"max_level"`
}
