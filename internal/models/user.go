package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// UserRole mirrors the roles issued by the campus auth service.
type UserRole string

const (
	RoleAdmin     UserRole = "ADMIN"
	RoleRegistrar UserRole = "REGISTRAR"
	RoleStudent   UserRole = "STUDENT"
)

// UserAccount is the portal account record the migration pipeline merges
// student identity into. The auth service owns credentials; the engine only
// upserts identity fields keyed by the application's owning user.
type UserAccount struct {
	ID                 string    `db:"id" json:"id"`
	Email              string    `db:"email" json:"email"`
	FullName           string    `db:"full_name" json:"full_name"`
	Role               UserRole  `db:"role" json:"role"`
	RegistrationNumber *string   `db:"registration_number" json:"registration_number,omitempty"`
	RegistrationID     *string   `db:"registration_id" json:"registration_id,omitempty"`
	CreatedAt          time.Time `db:"created_at" json:"created_at"`
	UpdatedAt          time.Time `db:"updated_at" json:"updated_at"`
}

// JWTClaims represents the JWT payload for access tokens issued by the
// external auth service.
type JWTClaims struct {
	UserID   string   `json:"user_id"`
	Role     UserRole `json:"role"`
	Email    string   `json:"email"`
	FullName string   `json:"full_name"`
	jwt.RegisteredClaims
}

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}
