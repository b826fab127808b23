package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/openhearth/casekeeper/internal/database"
	"github.com/openhearth/casekeeper/internal/models"
)

type ChallengeRepository struct {
	pool *pgxpool.Pool
}

func NewChallengeRepository(db *database.DB) *ChallengeRepository {
	return &ChallengeRepository{pool: db.Pool}
}

func (r *ChallengeRepository) Create(ctx context.Context, challenge *models.CeremonyChallenge) (*models.CeremonyChallenge, error) {
	challenge.ID = uuid.New().String()
	challenge.CreatedAt = time.Now()

	query := `
		INSERT INTO ceremony_challenges (id, user_id, challenge, type, session_data, expires_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		challenge.ID, challenge.UserID, challenge.Challenge, challenge.Type,
		challenge.SessionData, challenge.ExpiresAt, challenge.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return challenge, nil
}

// Consume atomically deletes a challenge and returns it. Two concurrent
// verification attempts against the same id cannot both succeed: only
// one DELETE returns the row. Expiry is checked by the caller; expired
// rows are still removed here so they cannot linger.
func (r *ChallengeRepository) Consume(ctx context.Context, id string) (*models.CeremonyChallenge, error) {
	query := `
		DELETE FROM ceremony_challenges
		WHERE id = $1
		RETURNING id, user_id, challenge, type, session_data, expires_at, created_at
	`

	var challenge models.CeremonyChallenge
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&challenge.ID, &challenge.UserID, &challenge.Challenge, &challenge.Type,
		&challenge.SessionData, &challenge.ExpiresAt, &challenge.CreatedAt,
	)
	if err != nil {
		return nil, database.MapPostgresError(err)
	}

	return &challenge, nil
}

// DeleteByUser removes any outstanding challenges of one ceremony type
// for a user, so a fresh options call supersedes older ones.
func (r *ChallengeRepository) DeleteByUser(ctx context.Context, userID string, ceremonyType models.CeremonyType) error {
	query := `DELETE FROM ceremony_challenges WHERE user_id = $1 AND type = $2`
	_, err := r.pool.Exec(ctx, query, userID, ceremonyType)
	return database.MapPostgresError(err)
}

// DeleteExpired removes challenges past their TTL.
func (r *ChallengeRepository) DeleteExpired(ctx context.Context) (int64, error) {
	query := `DELETE FROM ceremony_challenges WHERE expires_at <= CURRENT_TIMESTAMP`
	tag, err := r.pool.Exec(ctx, query)
	if err != nil {
		return 0, database.MapPostgresError(err)
	}
	return tag.RowsAffected(), nil
}
