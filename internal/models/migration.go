package models

import "time"

// MigrationResult is returned by the migration pipeline. AlreadyMigrated is
// set when a registration for the application existed before this call; the
// identifiers then reference the existing record.
type MigrationResult struct {
	ApplicationID      string    `json:"application_id"`
	RegistrationID     string    `json:"registration_id"`
	RegistrationNumber string    `json:"registration_number"`
	AlreadyMigrated    bool      `json:"already_migrated"`
	MigratedAt         time.Time `json:"migrated_at"`
}

// SweepOutcome classifies one application's result in a bulk sweep.
type SweepOutcome string

const (
	SweepOutcomeMigrated SweepOutcome = "migrated"
	SweepOutcomeSkipped  SweepOutcome = "skipped"
	SweepOutcomeFailed   SweepOutcome = "failed"
)

// SweepItem records one application processed by a sweep.
type SweepItem struct {
	ApplicationID      string       `json:"application_id"`
	RegistrationNumber string       `json:"registration_number,omitempty"`
	Outcome            SweepOutcome `json:"outcome"`
	Reason             string       `json:"reason,omitempty"`
}

// SweepSummary aggregates a bulk migration sweep.
type SweepSummary struct {
	Total    int         `json:"total"`
	Migrated int         `json:"migrated"`
	Skipped  int         `json:"skipped"`
	Failed   int         `json:"failed"`
	Items    []SweepItem `json:"items"`
}

// Add appends an item and bumps the matching counter.
func (s *SweepSummary) Add(item SweepItem) {
	s.Total++
	switch item.Outcome {
	case SweepOutcomeMigrated:
		s.Migrated++
	case SweepOutcomeSkipped:
		s.Skipped++
	case SweepOutcomeFailed:
		s.Failed++
	}
	s.Items = append(s.Items, item)
}
