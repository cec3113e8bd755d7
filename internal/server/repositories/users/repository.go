// Package users declares the persistence contract for identity records.
package users

import (
	"context"

	"github.com/aformulationoftruth/server/internal/server/models"
)

type Repository interface {
	// UpsertByEmail creates the user on first sight of the email hash, or
	// refreshes request-time profile hints (locale, timezone) on an
	// existing row. The returned user carries the stored ID and role.
	UpsertByEmail(ctx context.Context, user *models.User) (*models.User, error)

	// GetByID returns the user or common.ErrNotFound.
	GetByID(ctx context.Context, id string) (*models.User, error)

	// GetByEmailHash returns the user owning the normalized-email hash,
	// or common.ErrNotFound.
	GetByEmailHash(ctx context.Context, emailHash []byte) (*models.User, error)
}
