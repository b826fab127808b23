package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openhearth/casekeeper/internal/database"
	"github.com/openhearth/casekeeper/internal/models"
)

// LoginAttemptRepository handles database operations for login attempts
type LoginAttemptRepository struct {
	pool *pgxpool.Pool
}

func NewLoginAttemptRepository(db *database.DB) *LoginAttemptRepository {
	return &LoginAttemptRepository{pool: db.Pool}
}

// RecordAttempt appends a login attempt. Rows are never mutated.
func (r *LoginAttemptRepository) RecordAttempt(ctx context.Context, attempt *models.LoginAttempt) error {
	attempt.ID = uuid.New().String()
	if attempt.AttemptTime.IsZero() {
		attempt.AttemptTime = time.Now()
	}

	query := `
		INSERT INTO login_attempts (id, email, user_id, ip_address, success, attempt_time, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		attempt.ID, attempt.Email, attempt.UserID, attempt.IPAddress,
		attempt.Success, attempt.AttemptTime, attempt.ExpiresAt,
	)
	return database.MapPostgresError(err)
}

// GetFailedAttemptCount counts failures for an email within the window,
// excluding anything before the most recent success: a successful login
// resets the effective failure count.
func (r *LoginAttemptRepository) GetFailedAttemptCount(ctx context.Context, email string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*) FROM login_attempts
		WHERE email = $1 AND success = false AND attempt_time >= $2
		  AND attempt_time > COALESCE(
		      (SELECT MAX(attempt_time) FROM login_attempts WHERE email = $1 AND success = true),
		      'epoch'::timestamptz)
	`

	var count int
	err := r.pool.QueryRow(ctx, query, email, since).Scan(&count)
	return count, err
}

// GetOldestFailureTime returns the oldest qualifying failure within the
// window, used to derive remaining lockout time.
func (r *LoginAttemptRepository) GetOldestFailureTime(ctx context.Context, email string, since time.Time) (*time.Time, error) {
	query := `
		SELECT attempt_time FROM login_attempts
		WHERE email = $1 AND success = false AND attempt_time >= $2
		  AND attempt_time > COALESCE(
		      (SELECT MAX(attempt_time) FROM login_attempts WHERE email = $1 AND success = true),
		      'epoch'::timestamptz)
		ORDER BY attempt_time ASC
		LIMIT 1
	`

	var failureTime time.Time
	err := r.pool.QueryRow(ctx, query, email, since).Scan(&failureTime)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &failureTime, nil
}

// DeleteExpiredAttempts removes login attempts past their retention time
func (r *LoginAttemptRepository) DeleteExpiredAttempts(ctx context.Context) (int64, error) {
	query := `DELETE FROM login_attempts WHERE expires_at <= CURRENT_TIMESTAMP`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
