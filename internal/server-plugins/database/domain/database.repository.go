package database

import (
	"context"

	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
)

// Membership is a database together with whether one given app is linked to it.
type Membership struct {
	Database *Database
	Linked   bool
}

type Repository interface {
	SaveDatabase(ctx context.Context, db *Database) error
	// FetchWithMembership returns ErrDatabaseNotFound for unknown ids.
	FetchWithMembership(ctx context.Context, databaseID, appID string) (*Membership, error)
	// AddMember records the link; added is false when it already existed.
	AddMember(ctx context.Context, databaseID, appID string) (added bool, err error)
}

// Manager drives Dokku service commands.
type Manager interface {
	// Exists reports whether the service is present on the host.
	Exists(ctx context.Context, db *Database) (bool, error)
	Link(ctx context.Context, db *Database, appName string, out app.OutputSink) error
}
