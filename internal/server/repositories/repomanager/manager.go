// Package repomanager hands out repositories over any DBTX handle, so a
// service can run several repositories inside one transaction.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/aformulationoftruth/server/internal/dbx"
	"github.com/aformulationoftruth/server/internal/server/repositories/magictokens"
	"github.com/aformulationoftruth/server/internal/server/repositories/responses"
	"github.com/aformulationoftruth/server/internal/server/repositories/sessions"
	"github.com/aformulationoftruth/server/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(ctx context.Context, db *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	MagicTokens(db dbx.DBTX) magictokens.Repository
	Sessions(db dbx.DBTX) sessions.Repository
	Responses(db dbx.DBTX) responses.Repository
}
