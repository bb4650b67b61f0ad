package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// AuditRepository defines the data access contract for the audit log.
type AuditRepository interface {
	// Insert appends an entry and sets its ID.
	Insert(ctx context.Context, entry *Entry) error

	// CountLoginAttempts counts LOGIN_SUCCESS and LOGIN_FAILED rows for
	// email created at or after since.
	CountLoginAttempts(ctx context.Context, email string, since time.Time) (int, error)

	// CountFailedLogins counts LOGIN_FAILED rows for email created at or
	// after since.
	CountFailedLogins(ctx context.Context, email string, since time.Time) (int, error)
}

// auditRepository implements AuditRepository with MariaDB queries.
type auditRepository struct {
	db *sql.DB
}

// NewAuditRepository creates a new audit repository.
func NewAuditRepository(db *sql.DB) AuditRepository {
	return &auditRepository{db: db}
}

// Insert writes an entry. Metadata is serialized to JSON; empty optional
// fields are stored as NULL.
func (r *auditRepository) Insert(ctx context.Context, entry *Entry) error {
	query := `INSERT INTO audit_log (action, email, user_id, ip_address, user_agent, success, failure_reason, metadata, created_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	var metadata any
	if len(entry.Metadata) > 0 {
		b, err := json.Marshal(entry.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling audit metadata: %w", err)
		}
		metadata = string(b)
	}

	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		string(entry.Action),
		entry.Email,
		nullString(entry.UserID),
		entry.IPAddress,
		nullString(entry.UserAgent),
		entry.Success,
		nullString(string(entry.FailureReason)),
		metadata,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("inserting audit entry: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("getting audit entry id: %w", err)
	}
	entry.ID = id
	return nil
}

func (r *auditRepository) CountLoginAttempts(ctx context.Context, email string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM audit_log
	          WHERE email = ? AND action IN (?, ?) AND created_at >= ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query,
		email, string(ActionLoginSuccess), string(ActionLoginFailed), since,
	).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting login attempts: %w", err)
	}
	return count, nil
}

func (r *auditRepository) CountFailedLogins(ctx context.Context, email string, since time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM audit_log
	          WHERE email = ? AND action = ? AND created_at >= ?`

	var count int
	if err := r.db.QueryRowContext(ctx, query, email, string(ActionLoginFailed), since).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting failed logins: %w", err)
	}
	return count, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
