package ledger

import (
	"context"
	"fmt"
	"time"

	"compliance/internal/domain"
	"compliance/observability"
	"compliance/observability/types"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"
)

const checksTable = "compliance_checks"

type checkRow struct {
	ID        string    `db:"id"`
	ProjectID string    `db:"project_id"`
	CheckType string    `db:"check_type"`
	Status    bool      `db:"status"`
	Details   []byte    `db:"details"`
	CreatedAt time.Time `db:"created_at"`
	CreatedBy string    `db:"created_by"`
}

// PostgresLedger keeps checks in the compliance_checks table. A trigger
// installed by the migrations rejects UPDATE and DELETE.
type PostgresLedger struct {
	db       Database
	maxLimit int
	qb       squirrel.StatementBuilderType
	logger   types.Logger
	metrics  types.Metrics
}

func NewPostgresLedger(db Database, maxLimit int, provider observability.Provider) *PostgresLedger {
	return &PostgresLedger{
		db:       db,
		maxLimit: maxLimit,
		qb:       squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		logger:   provider.Logger("ledger.postgres"),
		metrics:  provider.Metrics("ledger.postgres"),
	}
}

// Append inserts check, filling in its ID and CreatedAt.
func (l *PostgresLedger) Append(ctx context.Context, check *domain.ComplianceCheck) (string, error) {
	if err := validate(check); err != nil {
		l.metrics.RecordError("append", "invalid_check")
		return "", err
	}

	details, err := domain.MarshalMetrics(check.Metrics)
	if err != nil {
		l.metrics.RecordError("append", "encode_failed")
		return "", err
	}

	id := check.ID
	if id == "" {
		id = uuid.NewString()
	}

	// lib/pq sends []byte as bytea; jsonb needs text.
	query, args, err := l.qb.Insert(checksTable).
		Columns("id", "project_id", "check_type", "status", "details", "created_by").
		Values(id, check.ProjectID, string(check.CheckType), check.Passed, string(details), check.CreatedBy).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return "", fmt.Errorf("build query: %w", err)
	}

	var createdAt time.Time
	if err := l.db.Get(ctx, &createdAt, query, args...); err != nil {
		l.metrics.RecordError("append", "insert_failed")
		l.logger.Error(ctx, "Failed to append check", err, types.Fields{
			"project_id": check.ProjectID,
			"check_type": string(check.CheckType),
		})
		return "", fmt.Errorf("insert check: %w", err)
	}

	check.ID = id
	check.CreatedAt = createdAt.UTC()
	l.metrics.RecordSuccess("append")
	l.metrics.RecordPayloadSize("details", int64(len(details)))

	return id, nil
}

// List returns up to limit checks for the project and type, newest first.
func (l *PostgresLedger) List(ctx context.Context, projectID string, checkType domain.CheckType, limit int) ([]domain.ComplianceCheck, error) {
	limit = clampLimit(limit, l.maxLimit)

	query, args, err := l.qb.
		Select("id", "project_id", "check_type", "status", "details", "created_at", "created_by").
		From(checksTable).
		Where(squirrel.Eq{"project_id": projectID}).
		Where(squirrel.Eq{"check_type": string(checkType)}).
		OrderBy("created_at DESC", "id DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var rows []checkRow
	if err := l.db.Select(ctx, &rows, query, args...); err != nil {
		l.metrics.RecordError("list", "select_failed")
		l.logger.Error(ctx, "Failed to list checks", err, types.Fields{
			"project_id": projectID,
			"check_type": string(checkType),
		})
		return nil, fmt.Errorf("list checks: %w", err)
	}

	checks := make([]domain.ComplianceCheck, 0, len(rows))
	for _, row := range rows {
		check, err := row.toDomain()
		if err != nil {
			l.metrics.RecordError("list", "decode_failed")
			return nil, fmt.Errorf("decode check %s: %w", row.ID, err)
		}
		checks = append(checks, check)
	}

	l.metrics.RecordSuccess("list")
	return checks, nil
}

func (r checkRow) toDomain() (domain.ComplianceCheck, error) {
	ct := domain.CheckType(r.CheckType)
	metrics, err := domain.UnmarshalMetrics(ct, r.Details)
	if err != nil {
		return domain.ComplianceCheck{}, err
	}

	return domain.ComplianceCheck{
		ID:        r.ID,
		ProjectID: r.ProjectID,
		CheckType: ct,
		Passed:    r.Status,
		Metrics:   metrics,
		CreatedAt: r.CreatedAt.UTC(),
		CreatedBy: r.CreatedBy,
	}, nil
}
