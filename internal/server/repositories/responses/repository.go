// Package responses declares the persistence contract for versioned
// questionnaire answers.
package responses

import (
	"context"

	"github.com/aformulationoftruth/server/internal/server/models"
)

type Repository interface {
	// Insert writes a new response version for (session, question); the
	// version number is allocated in the same statement as max+1.
	Insert(ctx context.Context, response *models.Response) (*models.Response, error)

	// Current returns the highest-version response for the question, or
	// common.ErrNotFound when the question is still unanswered.
	Current(ctx context.Context, sessionID string, questionID int) (*models.Response, error)

	// ListCurrent returns the latest response per question for a session.
	ListCurrent(ctx context.Context, sessionID string) ([]*models.Response, error)
}
