// Package repomanager vends the Postgres-backed repositories and applies the
// schema migrations they depend on.
package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authcore/internal/dbx"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/authcore/internal/server/repositories/users"
)

type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Registry
}
