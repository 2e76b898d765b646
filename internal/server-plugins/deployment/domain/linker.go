package domain

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alex-galey/dokku-deployer/internal/events"
	"github.com/alex-galey/dokku-deployer/internal/jobs"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
)

type LinkOutcome string

const (
	LinkOutcomeQueued        LinkOutcome = "queued"
	LinkOutcomeAlreadyLinked LinkOutcome = "already_linked"
)

// Linker turns a database link request into a link_database job. Both deploy
// variants go through it.
type Linker struct {
	databases database.Repository
	enqueuer  jobs.Enqueuer
	publisher events.Publisher
	logger    *slog.Logger
}

func NewLinker(databases database.Repository, enqueuer jobs.Enqueuer, publisher events.Publisher, logger *slog.Logger) *Linker {
	return &Linker{
		databases: databases,
		enqueuer:  enqueuer,
		publisher: publisher,
		logger:    logger,
	}
}

// Request links databaseID with the application unless it already is.
// An existing link is reported on the DATABASE_LINKED topic, not as an error.
func (l *Linker) Request(ctx context.Context, databaseID, appID, appName, userName string) (LinkOutcome, error) {
	membership, err := l.databases.FetchWithMembership(ctx, databaseID, appID)
	if err != nil {
		return "", fmt.Errorf("failed to load database %s: %w", databaseID, err)
	}

	if membership.Linked {
		l.logger.Info("Database already linked",
			"database", membership.Database.Name,
			"app_name", appName)
		l.publisher.Publish(events.TopicDatabaseLinked, events.LogPayload{
			ReferenceID: databaseID,
			Message:     fmt.Sprintf("%s database is already linked to %s app", membership.Database.Name, appName),
			Type:        events.TypeAlreadyLinked,
		})
		return LinkOutcomeAlreadyLinked, nil
	}

	job, err := l.enqueuer.Enqueue(ctx, jobs.TypeLinkDatabase, jobs.Payload{
		AppID:      appID,
		AppName:    appName,
		DatabaseID: databaseID,
		UserName:   userName,
	})
	if err != nil {
		return "", fmt.Errorf("failed to queue database link: %w", err)
	}

	l.logger.Info("Database link queued",
		"database", membership.Database.Name,
		"app_name", appName,
		"job_id", job.ID)
	return LinkOutcomeQueued, nil
}
