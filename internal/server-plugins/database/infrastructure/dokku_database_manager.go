package infrastructure

import (
	"context"
	"fmt"
	"log/slog"

	dokkuApi "github.com/alex-galey/dokku-deployer/internal/dokku-api"
	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
)

type DokkuDatabaseManager struct {
	session dokkuApi.Session
	logger  *slog.Logger
}

var _ database.Manager = (*DokkuDatabaseManager)(nil)

func NewDokkuDatabaseManager(session dokkuApi.Session, logger *slog.Logger) *DokkuDatabaseManager {
	return &DokkuDatabaseManager{session: session, logger: logger}
}

func (m *DokkuDatabaseManager) Exists(ctx context.Context, db *database.Database) (bool, error) {
	command, err := db.Type.ExistsCommand()
	if err != nil {
		return false, err
	}
	if _, err := m.session.Output(ctx, command, []string{db.Name}); err != nil {
		if dokkuApi.IsNotFoundError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to check service %s: %w", db.Name, err)
	}
	return true, nil
}

func (m *DokkuDatabaseManager) Link(ctx context.Context, db *database.Database, appName string, out app.OutputSink) error {
	command, err := db.Type.LinkCommand()
	if err != nil {
		return err
	}

	m.logger.Info("Linking database",
		"database", db.Name,
		"database_type", db.Type,
		"app_name", appName)

	if _, err := m.session.Run(ctx, command, []string{db.Name, appName}, out); err != nil {
		return fmt.Errorf("failed to link %s to %s: %w", db.Name, appName, err)
	}
	return nil
}
