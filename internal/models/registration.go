package models

import "time"

// LevelEntry is the level every migrated student starts at.
const LevelEntry = "100"

// Registration is the permanent student record created exactly once per
// approved application. source_application_id carries a UNIQUE constraint so
// concurrent migrations of the same application cannot both insert.
type Registration struct {
	ID                  string    `db:"id" json:"id"`
	RegistrationNumber  string    `db:"registration_number" json:"registration_number"`
	SourceApplicationID string    `db:"source_application_id" json:"source_application_id"`
	OwnerUserID         string    `db:"owner_user_id" json:"owner_user_id"`
	FirstName           string    `db:"first_name" json:"first_name"`
	LastName            string    `db:"last_name" json:"last_name"`
	OtherNames          string    `db:"other_names" json:"other_names"`
	Gender              string    `db:"gender" json:"gender"`
	DateOfBirth         string    `db:"date_of_birth" json:"date_of_birth"`
	Nationality         string    `db:"nationality" json:"nationality"`
	Email               string    `db:"email" json:"email"`
	Phone               string    `db:"phone" json:"phone"`
	Address             string    `db:"address" json:"address"`
	GuardianName        string    `db:"guardian_name" json:"guardian_name"`
	GuardianPhone       string    `db:"guardian_phone" json:"guardian_phone"`
	Program             string    `db:"program" json:"program"`
	Track               Track     `db:"track" json:"track"`
	Level               string    `db:"level" json:"level"`
	EntryYearLabel      string    `db:"entry_year_label" json:"entry_year_label"`
	Active              bool      `db:"active" json:"active"`
	CreatedAt           time.Time `db:"created_at" json:"created_at"`
}

// RegistrationFilter defines search parameters for listing registrations.
type RegistrationFilter struct {
	Program   string
	Track     Track
	Level     string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
