package memory

import (
	"context"
	"slices"
	"sync"
	"time"

	app "github.com/alex-galey/dokku-deployer/internal/server-plugins/app/domain"
	database "github.com/alex-galey/dokku-deployer/internal/server-plugins/database/domain"
	"github.com/alex-galey/dokku-deployer/internal/shared/activity"
)

// Store keeps applications, databases and activity in process.
type Store struct {
	mu            sync.RWMutex
	apps          map[string]*app.Application
	logs          map[string][]app.LogEntry
	databases     map[string]*database.Database
	activity      []activity.Record
	logBufferSize int
}

var (
	_ app.Repository      = (*Store)(nil)
	_ database.Repository = (*Store)(nil)
	_ activity.Sink       = (*Store)(nil)
	_ activity.Reader     = (*Store)(nil)
)

func NewStore(logBufferSize int) *Store {
	return &Store{
		apps:          make(map[string]*app.Application),
		logs:          make(map[string][]app.LogEntry),
		databases:     make(map[string]*database.Database),
		logBufferSize: logBufferSize,
	}
}

func cloneApp(a *app.Application) *app.Application {
	c := *a
	if a.Source != nil {
		src := *a.Source
		c.Source = &src
	}
	c.DatabaseIDs = slices.Clone(a.DatabaseIDs)
	return &c
}

func (s *Store) Save(ctx context.Context, a *app.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := cloneApp(a)
	if existing, ok := s.apps[a.ID]; ok {
		stored.DatabaseIDs = existing.DatabaseIDs
	}
	s.apps[a.ID] = stored
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*app.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.apps[id]
	if !ok {
		return nil, app.ErrApplicationNotFound
	}
	return cloneApp(a), nil
}

func (s *Store) UpdateStatus(ctx context.Context, id string, status app.Status) error {
	if !status.IsValid() {
		return app.ErrInvalidStatus
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.apps[id]
	if !ok {
		return app.ErrApplicationNotFound
	}
	a.Status = status
	a.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *Store) AddLog(ctx context.Context, id string, entry app.LogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[id]; !ok {
		return app.ErrApplicationNotFound
	}
	logs := append(s.logs[id], entry)
	if s.logBufferSize > 0 && len(logs) > s.logBufferSize {
		logs = slices.Clone(logs[len(logs)-s.logBufferSize:])
	}
	s.logs[id] = logs
	return nil
}

func (s *Store) ClearLogs(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.logs, id)
	return nil
}

func (s *Store) ListLogs(ctx context.Context, id string, limit int) ([]app.LogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	logs := s.logs[id]
	if limit > 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	return slices.Clone(logs), nil
}

func (s *Store) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[id]; !ok {
		return app.ErrApplicationNotFound
	}
	delete(s.apps, id)
	delete(s.logs, id)
	for _, db := range s.databases {
		db.AppIDs = slices.DeleteFunc(db.AppIDs, func(appID string) bool { return appID == id })
	}
	return nil
}

func (s *Store) SaveDatabase(ctx context.Context, db *database.Database) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored := *db
	if existing, ok := s.databases[db.ID]; ok {
		stored.AppIDs = existing.AppIDs
	} else {
		stored.AppIDs = slices.Clone(db.AppIDs)
	}
	s.databases[db.ID] = &stored
	return nil
}

func (s *Store) FetchWithMembership(ctx context.Context, databaseID, appID string) (*database.Membership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	db, ok := s.databases[databaseID]
	if !ok {
		return nil, database.ErrDatabaseNotFound
	}
	c := *db
	c.AppIDs = slices.Clone(db.AppIDs)
	return &database.Membership{Database: &c, Linked: c.IsLinkedTo(appID)}, nil
}

func (s *Store) AddMember(ctx context.Context, databaseID, appID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	db, ok := s.databases[databaseID]
	if !ok {
		return false, database.ErrDatabaseNotFound
	}
	a, ok := s.apps[appID]
	if !ok {
		return false, app.ErrApplicationNotFound
	}
	if db.IsLinkedTo(appID) {
		return false, nil
	}
	db.AppIDs = append(db.AppIDs, appID)
	a.DatabaseIDs = append(a.DatabaseIDs, databaseID)
	return true, nil
}

func (s *Store) Record(ctx context.Context, record activity.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.activity = append(s.activity, record)
	return nil
}

func (s *Store) ListActivity(ctx context.Context, referenceID string, limit int) ([]activity.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []activity.Record
	for i := len(s.activity) - 1; i >= 0; i-- {
		if s.activity[i].ReferenceID != referenceID {
			continue
		}
		records = append(records, s.activity[i])
		if limit > 0 && len(records) == limit {
			break
		}
	}
	return records, nil
}
