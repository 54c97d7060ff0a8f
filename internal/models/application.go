package models

import (
	"strings"
	"time"
)

// MigrationStatus tracks the pipeline outcome on an application. Absent means
// the application has never been picked up.
type MigrationStatus string

const (
	MigrationStatusCompleted MigrationStatus = "completed"
	MigrationStatusFailed    MigrationStatus = "failed"
)

// Application is the admissions record owned by the external admissions
// workflow. The engine reads it and owns only the migration_* columns.
type Application struct {
	ID              string           `db:"id" json:"id"`
	OwnerUserID     string           `db:"owner_user_id" json:"owner_user_id"`
	Status          string           `db:"status" json:"status"`
	FirstName       string           `db:"first_name" json:"first_name"`
	LastName        string           `db:"last_name" json:"last_name"`
	OtherNames      string           `db:"other_names" json:"other_names"`
	Gender          string           `db:"gender" json:"gender"`
	DateOfBirth     string           `db:"date_of_birth" json:"date_of_birth"`
	Nationality     string           `db:"nationality" json:"nationality"`
	Email           string           `db:"email" json:"email"`
	Phone           string           `db:"phone" json:"phone"`
	Address         string           `db:"address" json:"address"`
	GuardianName    string           `db:"guardian_name" json:"guardian_name"`
	GuardianPhone   string           `db:"guardian_phone" json:"guardian_phone"`
	Program         string           `db:"program" json:"program"`
	Track           Track            `db:"track" json:"track"`
	EntryYearLabel  string           `db:"entry_year_label" json:"entry_year_label"`
	MigrationStatus *MigrationStatus `db:"migration_status" json:"migration_status,omitempty"`
	MigrationError  *string          `db:"migration_error" json:"migration_error,omitempty"`
	MigratedAt      *time.Time       `db:"migrated_at" json:"migrated_at,omitempty"`
	RegistrationID  *string          `db:"registration_id" json:"registration_id,omitempty"`
	CreatedAt       time.Time        `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time        `db:"updated_at" json:"updated_at"`
}

// IsApproved reports whether the admissions status denotes approval.
// Matching is case-insensitive against the accepted/approved family because
// the admissions workflow has used both spellings over time.
func (a *Application) IsApproved() bool {
	return IsApprovedStatus(a.Status)
}

// IsApprovedStatus reports whether a raw admissions status string denotes
// approval.
func IsApprovedStatus(status string) bool {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "accepted", "approved":
		return true
	default:
		return false
	}
}

// ApplicationSnapshot carries the before/after state emitted by the
// admissions collaborator when an application changes.
type ApplicationSnapshot struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
