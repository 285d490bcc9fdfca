// Package credentials resolves project ids to target URLs and admin
// credentials. The core only reads from it.
package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"compliance/internal/domain"
	"compliance/observability"
	"compliance/observability/types"

	"github.com/Masterminds/squirrel"
)

// Database is the query surface the PostgreSQL store needs.
type Database interface {
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

// PostgresStore reads the project_credentials table.
type PostgresStore struct {
	db      Database
	qb      squirrel.StatementBuilderType
	logger  types.Logger
	metrics types.Metrics
}

func NewPostgresStore(db Database, provider observability.Provider) *PostgresStore {
	return &PostgresStore{
		db:      db,
		qb:      squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger:  provider.Logger("credentials.postgres"),
		metrics: provider.Metrics("credentials.postgres"),
	}
}

// Get returns the project or a NOT_FOUND domain error.
func (s *PostgresStore) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	query, args, err := s.qb.
		Select("id", "project_name", "project_url", "service_role_key", "user_id", "created_at").
		From("project_credentials").
		Where(squirrel.Eq{"id": projectID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var project domain.Project
	err = s.db.Get(ctx, &project, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		s.metrics.RecordError("get", "not_found")
		return nil, domain.NewNotFoundError(fmt.Sprintf("project %s not found", projectID))
	}
	if err != nil {
		s.metrics.RecordError("get", "query_failed")
		s.logger.Error(ctx, "Failed to load project credentials", err, types.Fields{
			"project_id": projectID,
		})
		return nil, fmt.Errorf("get project: %w", err)
	}

	s.metrics.RecordSuccess("get")
	return &project, nil
}

// MemoryStore is an in-process store for local runs and tests.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]domain.Project
}

func NewMemoryStore(projects ...domain.Project) *MemoryStore {
	s := &MemoryStore{projects: make(map[string]domain.Project, len(projects))}
	for _, p := range projects {
		s.projects[p.ID] = p
	}
	return s
}

// Put registers or replaces a project.
func (s *MemoryStore) Put(project domain.Project) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.projects[project.ID] = project
}

func (s *MemoryStore) Get(ctx context.Context, projectID string) (*domain.Project, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.projects[projectID]
	if !ok {
		return nil, domain.NewNotFoundError(fmt.Sprintf("project %s not found", projectID))
	}
	return &p, nil
}
