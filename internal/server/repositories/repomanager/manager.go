package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/timeledger/internal/dbx"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/audit"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/categories"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/configs"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/exports"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/tasks"
	"github.com/dmitrijs2005/timeledger/internal/server/repositories/timeentries"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code
// path works with a pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Audit(db dbx.DBTX) audit.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Categories(db dbx.DBTX) categories.Repository
	Tasks(db dbx.DBTX) tasks.Repository
	Configs(db dbx.DBTX) configs.Repository
	TimeEntries(db dbx.DBTX) timeentries.Repository
	Exports(db dbx.DBTX) exports.Repository
}
