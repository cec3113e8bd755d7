package users

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/aformulationoftruth/server/internal/common"
	"github.com/aformulationoftruth/server/internal/cryptox"
	"github.com/aformulationoftruth/server/internal/dbx"
	"github.com/aformulationoftruth/server/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const userColumns = `id, email_hash, email_ciphertext, email_nonce, email_tag, email_salt, email_version,
		display_name, role, locale, timezone, created_at`

func (r *PostgresRepository) UpsertByEmail(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (email_hash, email_ciphertext, email_nonce, email_tag, email_salt, email_version, locale, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (email_hash) DO UPDATE SET
			locale   = COALESCE(NULLIF(EXCLUDED.locale, ''), users.locale),
			timezone = COALESCE(NULLIF(EXCLUDED.timezone, ''), users.timezone)
		RETURNING id, role, created_at
	`

	err := r.db.QueryRowContext(ctx, query,
		user.EmailHash,
		user.Email.Ciphertext, user.Email.Nonce, user.Email.Tag, user.Email.Salt, user.Email.Version,
		user.Locale, user.Timezone,
	).Scan(&user.ID, &user.Role, &user.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *PostgresRepository) GetByEmailHash(ctx context.Context, emailHash []byte) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email_hash = $1`
	return r.scanUser(r.db.QueryRowContext(ctx, query, emailHash))
}

func (r *PostgresRepository) scanUser(row *sql.Row) (*models.User, error) {
	user := &models.User{Email: &cryptox.EncryptedField{}}
	err := row.Scan(
		&user.ID, &user.EmailHash,
		&user.Email.Ciphertext, &user.Email.Nonce, &user.Email.Tag, &user.Email.Salt, &user.Email.Version,
		&user.DisplayName, &user.Role, &user.Locale, &user.Timezone, &user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return user, nil
}
