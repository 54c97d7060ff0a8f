package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ucaes/academic-engine/internal/models"
)

// UserRepository upserts portal account identity and writes audit entries.
// Credentials and sessions belong to the external auth service.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository instantiates a user repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// UpsertStudentIdentity merges student identity fields into the account
// record keyed by the application's owning user.
func (r *UserRepository) UpsertStudentIdentity(ctx context.Context, account *models.UserAccount) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	if account.Role == "" {
		account.Role = models.RoleStudent
	}

	const query = `INSERT INTO user_accounts (id, email, full_name, role, registration_number, registration_id, created_at, updated_at)
VALUES (:id, :email, :full_name, :role, :registration_number, :registration_id, :created_at, :updated_at)
ON CONFLICT (id)
DO UPDATE SET email = EXCLUDED.email, full_name = EXCLUDED.full_name,
              registration_number = EXCLUDED.registration_number, registration_id = EXCLUDED.registration_id,
              updated_at = EXCLUDED.updated_at`
	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("upsert student identity: %w", err)
	}
	return nil
}

// CreateAuditLog records an audit trail entry.
func (r *UserRepository) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if entry.ID == "" {
		entry.ID = uuid.NewString()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO audit_logs (id, user_id, action, resource, resource_id, old_values, new_values, ip_address, user_agent, created_at)
VALUES (:id, :user_id, :action, :resource, :resource_id, :old_values, :new_values, :ip_address, :user_agent, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, entry); err != nil {
		return fmt.Errorf("create audit log: %w", err)
	}
	return nil
}
