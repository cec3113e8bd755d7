package repomanager

import (
	"context"
	"database/sql"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/aformulationoftruth/server/internal/dbx"
	"github.com/aformulationoftruth/server/internal/server/migrations"
	"github.com/aformulationoftruth/server/internal/server/repositories/magictokens"
	"github.com/aformulationoftruth/server/internal/server/repositories/responses"
	"github.com/aformulationoftruth/server/internal/server/repositories/sessions"
	"github.com/aformulationoftruth/server/internal/server/repositories/users"
)

type PostgresRepositoryManager struct {
}

func NewPostgresRepositoryManager() *PostgresRepositoryManager {
	return &PostgresRepositoryManager{}
}

func (m *PostgresRepositoryManager) Users(db dbx.DBTX) users.Repository {
	return users.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) MagicTokens(db dbx.DBTX) magictokens.Repository {
	return magictokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Sessions(db dbx.DBTX) sessions.Repository {
	return sessions.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Responses(db dbx.DBTX) responses.Repository {
	return responses.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return err
	}

	if err := goose.UpContext(ctx, db, "."); err != nil {
		return err
	}

	return nil
}
