// Package magictokens declares the persistence contract for single-use
// login tokens. The PENDING -> USED transition is the one concurrency
// sensitive write in the system; FindForRedemption and MarkUsed must run
// inside one transaction so the row lock covers both.
package magictokens

import (
	"context"
	"time"

	"github.com/aformulationoftruth/server/internal/server/models"
)

type Repository interface {
	// Create inserts a PENDING token row. The stored value is the hash;
	// the raw token never reaches this layer.
	Create(ctx context.Context, token *models.MagicToken) (*models.MagicToken, error)

	// FindForRedemption selects the redeemable row for tokenHash with an
	// exclusive row lock: not used, not expired at now. A zero-row result
	// maps to common.ErrNotFound and intentionally does not say which of
	// never-existed / used / expired applied. Must be called on a
	// transaction handle.
	FindForRedemption(ctx context.Context, tokenHash string, now time.Time) (*models.MagicToken, error)

	// MarkUsed sets used_at for a row previously locked by
	// FindForRedemption in the same transaction.
	MarkUsed(ctx context.Context, id string, now time.Time) error

	// DeleteSpent removes rows that are expired or already used. Purely
	// storage reclamation; redemption excludes such rows regardless.
	DeleteSpent(ctx context.Context, now time.Time) (int64, error)
}
