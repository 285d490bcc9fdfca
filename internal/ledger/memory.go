package ledger

import (
	"context"
	"sync"
	"time"

	"compliance/internal/domain"

	"github.com/google/uuid"
)

// MemoryLedger is an in-process ledger for local runs and tests. Metrics
// are stored as encoded JSON so callers cannot mutate recorded rows.
type MemoryLedger struct {
	mu       sync.RWMutex
	rows     []memoryRow
	maxLimit int
	now      func() time.Time
}

type memoryRow struct {
	check   domain.ComplianceCheck
	details []byte
}

func NewMemoryLedger(maxLimit int) *MemoryLedger {
	return &MemoryLedger{
		maxLimit: maxLimit,
		now:      time.Now,
	}
}

// Append records a copy of check. CreatedAt is strictly increasing.
func (l *MemoryLedger) Append(ctx context.Context, check *domain.ComplianceCheck) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if err := validate(check); err != nil {
		return "", err
	}

	details, err := domain.MarshalMetrics(check.Metrics)
	if err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	createdAt := l.now().UTC()
	if n := len(l.rows); n > 0 {
		if last := l.rows[n-1].check.CreatedAt; !createdAt.After(last) {
			createdAt = last.Add(time.Microsecond)
		}
	}

	id := check.ID
	if id == "" {
		id = uuid.NewString()
	}

	stored := *check
	stored.ID = id
	stored.CreatedAt = createdAt
	stored.Metrics = nil
	l.rows = append(l.rows, memoryRow{check: stored, details: details})

	check.ID = id
	check.CreatedAt = createdAt
	return id, nil
}

func (l *MemoryLedger) List(ctx context.Context, projectID string, checkType domain.CheckType, limit int) ([]domain.ComplianceCheck, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = clampLimit(limit, l.maxLimit)

	l.mu.RLock()
	defer l.mu.RUnlock()

	checks := make([]domain.ComplianceCheck, 0, limit)
	for i := len(l.rows) - 1; i >= 0 && len(checks) < limit; i-- {
		row := l.rows[i]
		if row.check.ProjectID != projectID || row.check.CheckType != checkType {
			continue
		}

		metrics, err := domain.UnmarshalMetrics(row.check.CheckType, row.details)
		if err != nil {
			return nil, err
		}
		check := row.check
		check.Metrics = metrics
		checks = append(checks, check)
	}
	return checks, nil
}
