package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/privylock/internal/dbx"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/categories"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/devices"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/documents"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/folders"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/notifications"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/preferences"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/users"
	"github.com/dmitrijs2005/privylock/internal/server/repositories/versions"
)

// RepositoryManager vends repositories bound to either *sql.DB or a
// transaction, so services can run several repositories in one unit.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	RefreshTokens(db dbx.DBTX) refreshtokens.Repository
	Devices(db dbx.DBTX) devices.Repository
	Categories(db dbx.DBTX) categories.Repository
	Folders(db dbx.DBTX) folders.Repository
	Documents(db dbx.DBTX) documents.Repository
	Versions(db dbx.DBTX) versions.Repository
	Notifications(db dbx.DBTX) notifications.Repository
	Preferences(db dbx.DBTX) preferences.Repository
}
