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

type PasskeyRepository struct {
	pool *pgxpool.Pool
}

func NewPasskeyRepository(db *database.DB) *PasskeyRepository {
	return &PasskeyRepository{pool: db.Pool}
}

const passkeyColumns = `id, user_id, credential_id, public_key, attestation_type, aaguid, sign_count, transports, backup_eligible, backup_state, name, last_used_at, created_at`

func scanPasskeyRow(scanner rowScanner) (*models.PasskeyCredential, error) {
	var cred models.PasskeyCredential

	err := scanner.Scan(
		&cred.ID, &cred.UserID, &cred.CredentialID, &cred.PublicKey,
		&cred.AttestationType, &cred.AAGUID, &cred.SignCount, &cred.Transports,
		&cred.BackupEligible, &cred.BackupState, &cred.Name, &cred.LastUsedAt,
		&cred.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &cred, nil
}

func scanPasskeyRows(rows pgx.Rows) ([]*models.PasskeyCredential, error) {
	defer rows.Close()

	creds := make([]*models.PasskeyCredential, 0)

	for rows.Next() {
		cred, err := scanPasskeyRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan passkey credential: %w", err)
		}
		creds = append(creds, cred)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return creds, nil
}

func (r *PasskeyRepository) Create(ctx context.Context, cred *models.PasskeyCredential) (*models.PasskeyCredential, error) {
	cred.ID = uuid.New().String()
	cred.CreatedAt = time.Now()

	if cred.Name == "" {
		cred.Name = "Passkey"
	}
	if cred.Transports == nil {
		cred.Transports = []string{}
	}

	query := `
		INSERT INTO passkey_credentials (id, user_id, credential_id, public_key, attestation_type, aaguid, sign_count, transports, backup_eligible, backup_state, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`

	_, err := r.pool.Exec(ctx, query,
		cred.ID, cred.UserID, cred.CredentialID, cred.PublicKey,
		cred.AttestationType, cred.AAGUID, cred.SignCount, cred.Transports,
		cred.BackupEligible, cred.BackupState, cred.Name, cred.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return cred, nil
}

func (r *PasskeyRepository) GetByUserID(ctx context.Context, userID string) ([]*models.PasskeyCredential, error) {
	query := `SELECT ` + passkeyColumns + ` FROM passkey_credentials WHERE user_id = $1 ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query passkey credentials: %w", err)
	}

	return scanPasskeyRows(rows)
}

func (r *PasskeyRepository) GetByCredentialID(ctx context.Context, credentialID []byte) (*models.PasskeyCredential, error) {
	query := `SELECT ` + passkeyColumns + ` FROM passkey_credentials WHERE credential_id = $1`
	return scanPasskeyRow(r.pool.QueryRow(ctx, query, credentialID))
}

// UpdateSignCount records the authenticator-reported counter and the
// last-used timestamp after a successful assertion.
func (r *PasskeyRepository) UpdateSignCount(ctx context.Context, credentialID []byte, signCount uint32) error {
	query := `
		UPDATE passkey_credentials
		SET sign_count = $2, last_used_at = CURRENT_TIMESTAMP
		WHERE credential_id = $1
	`

	tag, err := r.pool.Exec(ctx, query, credentialID, signCount)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PasskeyRepository) Rename(ctx context.Context, id, userID, name string) error {
	query := `UPDATE passkey_credentials SET name = $3 WHERE id = $1 AND user_id = $2`

	tag, err := r.pool.Exec(ctx, query, id, userID, name)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *PasskeyRepository) Delete(ctx context.Context, id, userID string) error {
	query := `DELETE FROM passkey_credentials WHERE id = $1 AND user_id = $2`

	tag, err := r.pool.Exec(ctx, query, id, userID)
	if err != nil {
		return database.MapPostgresError(err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}
