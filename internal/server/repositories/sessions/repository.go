// Package sessions declares the persistence contract for questionnaire
// sessions and their frozen question order.
package sessions

import (
	"context"
	"time"

	"github.com/aformulationoftruth/server/internal/server/models"
)

type Repository interface {
	// Create inserts the session with its materialized question order.
	// The insert is idempotent on the primary key: a concurrent duplicate
	// "first access" loses harmlessly and the committed order wins.
	// Returns false when the row already existed.
	Create(ctx context.Context, session *models.QuestionnaireSession) (bool, error)

	// Get returns the session or common.ErrNotFound.
	Get(ctx context.Context, id string) (*models.QuestionnaireSession, error)

	// AdvancePosition moves position from -> to. The from guard makes a
	// replayed advance a no-op rather than a double step.
	AdvancePosition(ctx context.Context, id string, from, to int) error

	// LinkUser attaches an authenticated user to a gate session created
	// before login. Only sessions with no owner can be linked.
	LinkUser(ctx context.Context, id, userID string) error

	// SetOptIns records reminder/share opt-in choices.
	SetOptIns(ctx context.Context, id string, reminder, share bool) error

	// Complete flips the completion flag iff it is still false, recording
	// the share id and completion time. Returns false when another caller
	// completed first; the artifact step must then not run again.
	Complete(ctx context.Context, id, shareID string, now time.Time) (bool, error)

	// ListRecent returns the newest sessions first, up to limit.
	ListRecent(ctx context.Context, limit int) ([]*models.QuestionnaireSession, error)
}
