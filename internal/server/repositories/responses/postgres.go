package responses

import (
	"context"
	"database/sql"
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

func (r *PostgresRepository) Insert(ctx context.Context, response *models.Response) (*models.Response, error) {
	query := `
		INSERT INTO responses (session_id, question_id, answer, answer_ciphertext, answer_nonce, answer_tag, answer_salt, answer_version, declined, version)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9,
			(SELECT COALESCE(MAX(version), 0) + 1 FROM responses WHERE session_id = $1 AND question_id = $2))
		RETURNING id, version, created_at
	`

	var ct, nonce, tag, salt []byte
	var encVersion sql.NullInt64
	if response.AnswerEnc != nil {
		ct, nonce, tag, salt = response.AnswerEnc.Ciphertext, response.AnswerEnc.Nonce, response.AnswerEnc.Tag, response.AnswerEnc.Salt
		encVersion = sql.NullInt64{Int64: int64(response.AnswerEnc.Version), Valid: true}
	}

	err := r.db.QueryRowContext(ctx, query,
		response.SessionID, response.QuestionID, response.Answer,
		ct, nonce, tag, salt, encVersion, response.Declined,
	).Scan(&response.ID, &response.Version, &response.CreatedAt)

	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return response, nil
}

const responseColumns = `id, session_id, question_id, answer, answer_ciphertext, answer_nonce, answer_tag, answer_salt, answer_version, declined, version, created_at`

func (r *PostgresRepository) Current(ctx context.Context, sessionID string, questionID int) (*models.Response, error) {
	query := `
		SELECT ` + responseColumns + `
		FROM responses
		WHERE session_id = $1 AND question_id = $2
		ORDER BY version DESC
		LIMIT 1
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID, questionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		return nil, common.ErrNotFound
	}

	response, err := scanResponse(rows)
	if err != nil {
		return nil, err
	}
	return response, rows.Err()
}

func (r *PostgresRepository) ListCurrent(ctx context.Context, sessionID string) ([]*models.Response, error) {
	query := `
		SELECT DISTINCT ON (question_id) ` + responseColumns + `
		FROM responses
		WHERE session_id = $1
		ORDER BY question_id, version DESC
	`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Response
	for rows.Next() {
		response, err := scanResponse(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, response)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return result, nil
}

func scanResponse(rows *sql.Rows) (*models.Response, error) {
	response := &models.Response{}
	var ct, nonce, tag, salt []byte
	var encVersion sql.NullInt64

	err := rows.Scan(
		&response.ID, &response.SessionID, &response.QuestionID, &response.Answer,
		&ct, &nonce, &tag, &salt, &encVersion,
		&response.Declined, &response.Version, &response.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	if encVersion.Valid {
		response.AnswerEnc = &cryptox.EncryptedField{
			Ciphertext: ct,
			Nonce:      nonce,
			Tag:        tag,
			Salt:       salt,
			Version:    int(encVersion.Int64),
		}
	}

	return response, nil
}
