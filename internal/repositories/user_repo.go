package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openhearth/casekeeper/internal/database"
	"github.com/openhearth/casekeeper/internal/models"
)

type UserRepository struct {
	db   *database.DB
	pool *pgxpool.Pool
}

func NewUserRepository(db *database.DB) *UserRepository {
	return &UserRepository{db: db, pool: db.Pool}
}

// rowScanner interface for scanning user rows (single row or multiple rows)
type rowScanner interface {
	Scan(dest ...interface{}) error
}

const userColumns = `id, email, password_hash, role, contact_id, totp_enabled, totp_secret, totp_pending_secret, totp_enabled_at, created_at, updated_at`

// scanUserRow handles nullable fields and populates a UserCredential from a row
func scanUserRow(scanner rowScanner) (*models.UserCredential, error) {
	var user models.UserCredential

	err := scanner.Scan(
		&user.ID, &user.Email, &user.PasswordHash, &user.Role, &user.ContactID,
		&user.TOTPEnabled, &user.TOTPSecret, &user.TOTPPendingSecret, &user.TOTPEnabledAt,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &user, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.UserCredential, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, id))
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.UserCredential, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanUserRow(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) Create(ctx context.Context, user *models.UserCredential) (*models.UserCredential, error) {
	user.ID = uuid.New().String()

	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	if user.Role == "" {
		user.Role = "staff"
	}

	query := `
		INSERT INTO users (id, email, password_hash, role, contact_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID, user.Email, user.PasswordHash, user.Role, user.ContactID,
		user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return user, nil
}

// SetPendingTOTPSecret stores an encrypted pending secret, replacing any
// earlier pending enrollment that was never confirmed.
func (r *UserRepository) SetPendingTOTPSecret(ctx context.Context, userID, envelope string) error {
	query := `
		UPDATE users
		SET totp_pending_secret = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, envelope)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// PromoteTOTPSecret flips a pending secret to active in one statement.
// The WHERE clause pins the exact envelope that was just verified, so a
// concurrent re-enroll that replaced the pending secret cannot be
// promoted by a stale confirmation.
func (r *UserRepository) PromoteTOTPSecret(ctx context.Context, userID, pendingEnvelope string) error {
	query := `
		UPDATE users
		SET totp_secret = totp_pending_secret,
		    totp_pending_secret = NULL,
		    totp_enabled = TRUE,
		    totp_enabled_at = CURRENT_TIMESTAMP,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND totp_pending_secret = $2
	`

	tag, err := r.pool.Exec(ctx, query, userID, pendingEnvelope)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNoPendingEnrollment
	}
	return nil
}

// ClearTOTP removes both active and pending secrets and disables the factor.
func (r *UserRepository) ClearTOTP(ctx context.Context, userID string) error {
	query := `
		UPDATE users
		SET totp_secret = NULL,
		    totp_pending_secret = NULL,
		    totp_enabled = FALSE,
		    totp_enabled_at = NULL,
		    updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *UserRepository) UpdatePassword(ctx context.Context, userID, passwordHash string) error {
	query := `
		UPDATE users
		SET password_hash = $2, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1
	`

	tag, err := r.pool.Exec(ctx, query, userID, passwordHash)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// RotateTOTPSecrets re-encrypts every stored secret using the supplied
// rotate function. Runs in a single transaction so a mid-rotation
// failure leaves every envelope under the old key.
func (r *UserRepository) RotateTOTPSecrets(ctx context.Context, rotate func(envelope string) (string, error)) error {
	return r.db.WithTransaction(ctx, func(tx pgx.Tx) error {
		rows, err := tx.Query(ctx, `SELECT id, totp_secret, totp_pending_secret FROM users WHERE totp_secret IS NOT NULL OR totp_pending_secret IS NOT NULL FOR UPDATE`)
		if err != nil {
			return database.MapPostgresError(err)
		}
		defer rows.Close()

		type secretRow struct {
			id      string
			active  *string
			pending *string
		}

		var updates []secretRow
		for rows.Next() {
			var row secretRow
			if err := rows.Scan(&row.id, &row.active, &row.pending); err != nil {
				return fmt.Errorf("failed to scan secret row: %w", err)
			}
			updates = append(updates, row)
		}
		if err := rows.Err(); err != nil {
			return fmt.Errorf("error iterating rows: %w", err)
		}
		rows.Close()

		for _, row := range updates {
			if row.active != nil {
				rotated, err := rotate(*row.active)
				if err != nil {
					return fmt.Errorf("failed to rotate active secret for %s: %w", row.id, err)
				}
				row.active = &rotated
			}
			if row.pending != nil {
				rotated, err := rotate(*row.pending)
				if err != nil {
					return fmt.Errorf("failed to rotate pending secret for %s: %w", row.id, err)
				}
				row.pending = &rotated
			}

			_, err := tx.Exec(ctx,
				`UPDATE users SET totp_secret = $2, totp_pending_secret = $3, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
				row.id, row.active, row.pending,
			)
			if err != nil {
				return database.MapPostgresError(err)
			}
		}

		return nil
	})
}
