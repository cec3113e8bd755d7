package magictokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aformulationoftruth/server/internal/common"
	"github.com/aformulationoftruth/server/internal/dbx"
	"github.com/aformulationoftruth/server/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, token *models.MagicToken) (*models.MagicToken, error) {
	query := `
		INSERT INTO magic_tokens (token_hash, user_id, purpose, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		token.TokenHash, token.UserID, token.Purpose, token.ExpiresAt,
	).Scan(&token.ID, &token.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

func (r *PostgresRepository) FindForRedemption(ctx context.Context, tokenHash string, now time.Time) (*models.MagicToken, error) {
	query := `
		SELECT id, token_hash, user_id, purpose, expires_at, used_at, created_at
		FROM magic_tokens
		WHERE token_hash = $1 AND used_at IS NULL AND expires_at > $2
		FOR UPDATE
	`

	token := &models.MagicToken{}
	err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(
		&token.ID, &token.TokenHash, &token.UserID, &token.Purpose,
		&token.ExpiresAt, &token.UsedAt, &token.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return token, nil
}

func (r *PostgresRepository) MarkUsed(ctx context.Context, id string, now time.Time) error {
	query := `
		UPDATE magic_tokens SET used_at = $2
		WHERE id = $1 AND used_at IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, id, now)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if affected == 0 {
		return common.ErrNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteSpent(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM magic_tokens
		WHERE expires_at <= $1 OR used_at IS NOT NULL
	`

	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return affected, nil
}
