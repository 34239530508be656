package repomanager

import (
	"context"
	"database/sql"

	"github.com/cliptube/cliptube/internal/dbx"
	"github.com/cliptube/cliptube/internal/server/repositories/users"
)

// RepositoryManager vends repository implementations bound to a DBTX
// (either the pooled *sql.DB or a transaction) and exposes the schema
// migration hook.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
}
