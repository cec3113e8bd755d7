package sessions

import (
	"context"
	"database/sql"
	"encoding/json"
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

func (r *PostgresRepository) Create(ctx context.Context, session *models.QuestionnaireSession) (bool, error) {
	order, err := json.Marshal(session.QuestionOrder)
	if err != nil {
		return false, fmt.Errorf("order encode error: %w", err)
	}

	query := `
		INSERT INTO questionnaire_sessions (id, user_id, question_order, encrypt_answers, reminder_opt_in, share_opt_in)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO NOTHING
	`

	res, err := r.db.ExecContext(ctx, query,
		session.ID, session.UserID, order,
		session.EncryptAnswers, session.ReminderOptIn, session.ShareOptIn,
	)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected == 1, nil
}

func (r *PostgresRepository) Get(ctx context.Context, id string) (*models.QuestionnaireSession, error) {
	query := `
		SELECT id, user_id, question_order, position, completed, completed_at,
			share_id, encrypt_answers, reminder_opt_in, share_opt_in, created_at
		FROM questionnaire_sessions
		WHERE id = $1
	`

	session := &models.QuestionnaireSession{}
	var order []byte
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&session.ID, &session.UserID, &order, &session.Position,
		&session.Completed, &session.CompletedAt, &session.ShareID,
		&session.EncryptAnswers, &session.ReminderOptIn, &session.ShareOptIn,
		&session.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	if err := json.Unmarshal(order, &session.QuestionOrder); err != nil {
		return nil, fmt.Errorf("order decode error: %w", err)
	}

	return session, nil
}

func (r *PostgresRepository) AdvancePosition(ctx context.Context, id string, from, to int) error {
	query := `
		UPDATE questionnaire_sessions SET position = $3
		WHERE id = $1 AND position = $2 AND completed = false
	`

	res, err := r.db.ExecContext(ctx, query, id, from, to)
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

func (r *PostgresRepository) LinkUser(ctx context.Context, id, userID string) error {
	query := `
		UPDATE questionnaire_sessions SET user_id = $2
		WHERE id = $1 AND user_id IS NULL
	`

	res, err := r.db.ExecContext(ctx, query, id, userID)
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

func (r *PostgresRepository) SetOptIns(ctx context.Context, id string, reminder, share bool) error {
	query := `
		UPDATE questionnaire_sessions SET reminder_opt_in = $2, share_opt_in = $3
		WHERE id = $1
	`

	if _, err := r.db.ExecContext(ctx, query, id, reminder, share); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) ListRecent(ctx context.Context, limit int) ([]*models.QuestionnaireSession, error) {
	query := `
		SELECT id, user_id, question_order, position, completed, completed_at,
			share_id, encrypt_answers, reminder_opt_in, share_opt_in, created_at
		FROM questionnaire_sessions
		ORDER BY created_at DESC
		LIMIT $1
	`

	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var sessions []*models.QuestionnaireSession
	for rows.Next() {
		session := &models.QuestionnaireSession{}
		var order []byte
		err := rows.Scan(
			&session.ID, &session.UserID, &order, &session.Position,
			&session.Completed, &session.CompletedAt, &session.ShareID,
			&session.EncryptAnswers, &session.ReminderOptIn, &session.ShareOptIn,
			&session.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		if err := json.Unmarshal(order, &session.QuestionOrder); err != nil {
			return nil, fmt.Errorf("order decode error: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return sessions, nil
}

func (r *PostgresRepository) Complete(ctx context.Context, id, shareID string, now time.Time) (bool, error) {
	query := `
		UPDATE questionnaire_sessions SET completed = true, completed_at = $3, share_id = $2
		WHERE id = $1 AND completed = false
	`

	res, err := r.db.ExecContext(ctx, query, id, shareID, now)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return affected == 1, nil
}
