// Package ledger stores compliance check results. Rows are append-only:
// neither implementation exposes update or delete.
package ledger

import (
	"context"
	"fmt"
	"strings"

	"compliance/internal/domain"
)

// Database is the query surface the PostgreSQL ledger needs.
type Database interface {
	Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error
	Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error
}

func validate(check *domain.ComplianceCheck) error {
	if check == nil {
		return fmt.Errorf("check is required")
	}
	if strings.TrimSpace(check.ProjectID) == "" {
		return fmt.Errorf("project id is required")
	}
	if !check.CheckType.Valid() {
		return fmt.Errorf("unsupported check type %q", check.CheckType)
	}
	if check.Metrics == nil {
		return fmt.Errorf("metrics are required")
	}
	if check.Metrics.CheckType() != check.CheckType {
		return fmt.Errorf("metrics are for %s, not %s", check.Metrics.CheckType(), check.CheckType)
	}
	if strings.TrimSpace(check.CreatedBy) == "" {
		return fmt.Errorf("created by is required")
	}
	return nil
}

// clampLimit maps non-positive and oversized limits onto max.
func clampLimit(limit, max int) int {
	if limit <= 0 || limit > max {
		return max
	}
	return limit
}
