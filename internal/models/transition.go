package models

import "time"

// TransitionKind distinguishes the two horizons of the state machine.
type TransitionKind string

const (
	TransitionKindSemester TransitionKind = "semester"
	TransitionKindYear     TransitionKind = "academic-year"
)

// TransitionRunStatus tracks an in-flight or settled transition attempt.
type TransitionRunStatus string

const (
	TransitionRunRunning  TransitionRunStatus = "running"
	TransitionRunFinished TransitionRunStatus = "finished"
	TransitionRunFailed   TransitionRunStatus = "failed"
)

// TransitionRun is the persisted record of one transition or progression
// batch attempt. The protection guard reads these rows to refuse overlapping
// work.
type TransitionRun struct {
	ID         string              `db:"id" json:"id"`
	Kind       TransitionKind      `db:"kind" json:"kind"`
	TargetID   string              `db:"target_id" json:"target_id"`
	Status     TransitionRunStatus `db:"status" json:"status"`
	Actor      string              `db:"actor" json:"actor"`
	StartedAt  time.Time           `db:"started_at" json:"started_at"`
	FinishedAt *time.Time          `db:"finished_at" json:"finished_at,omitempty"`
	Error      *string             `db:"error" json:"error,omitempty"`
}

// TransitionKindProgressionBatch marks the year-boundary student batch so the
// guard can block a new year transition while one is still running.
const TransitionKindProgressionBatch TransitionKind = "progression-batch"

// PeriodRef names a period in trigger responses.
type PeriodRef struct {
	ID    string `json:"id,omitempty"`
	Label string `json:"label"`
}

// TransitionResult is what a transition attempt returns. Performed=false with
// an empty Error means the timing gate has not opened yet; NextEligible then
// carries the first date the transition would run.
type TransitionResult struct {
	Kind         TransitionKind       `json:"kind"`
	Performed    bool                 `json:"performed"`
	Forced       bool                 `json:"forced"`
	Message      string               `json:"message,omitempty"`
	Previous     PeriodRef            `json:"previous"`
	Current      PeriodRef            `json:"current"`
	NextEligible *time.Time           `json:"next_eligible,omitempty"`
	Batch        *StudentBatchSummary `json:"batch,omitempty"`
}

// StudentBatchOutcome classifies one student's result inside a batch.
type StudentBatchOutcome string

const (
	BatchOutcomeProgressed StudentBatchOutcome = "progressed"
	BatchOutcomeSkipped    StudentBatchOutcome = "skipped"
	BatchOutcomeErrored    StudentBatchOutcome = "errored"
)

// StudentBatchItem records one student's outcome in a level-advance batch.
type StudentBatchItem struct {
	StudentID string              `json:"student_id"`
	FromLevel string              `json:"from_level,omitempty"`
	ToLevel   string              `json:"to_level,omitempty"`
	Outcome   StudentBatchOutcome `json:"outcome"`
	Reason    string              `json:"reason,omitempty"`
}

// StudentBatchSummary aggregates a batch run. One student's failure never
// aborts the batch; it lands here as an errored item instead.
type StudentBatchSummary struct {
	Total      int                `json:"total"`
	Progressed int                `json:"progressed"`
	Skipped    int                `json:"skipped"`
	Errored    int                `json:"errored"`
	Items      []StudentBatchItem `json:"items"`
}

// Add appends an item and bumps the matching counter.
func (s *StudentBatchSummary) Add(item StudentBatchItem) {
	s.Total++
	switch item.Outcome {
	case BatchOutcomeProgressed:
		s.Progressed++
	case BatchOutcomeSkipped:
		s.Skipped++
	case BatchOutcomeErrored:
		s.Errored++
	}
	s.Items = append(s.Items, item)
}
