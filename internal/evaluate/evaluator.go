// Package evaluate turns raw probe output into metrics and a verdict.
// Evaluation is pure: the same raw status and policy always give the
// same result.
package evaluate

import (
	"fmt"

	"compliance/internal/domain"
)

// Evaluation is the scored form of a raw status.
type Evaluation struct {
	Metrics domain.CheckMetrics
	Passed  bool
}

// Evaluator scores raw statuses against a policy.
type Evaluator struct {
	policy Policy
}

func NewEvaluator(policy Policy) *Evaluator {
	return &Evaluator{policy: policy}
}

// Policy returns the thresholds in effect.
func (e *Evaluator) Policy() Policy {
	return e.policy
}

// Evaluate scores raw. The check type of raw must match checkType.
func (e *Evaluator) Evaluate(checkType domain.CheckType, raw domain.RawStatus) (Evaluation, error) {
	if raw == nil {
		return Evaluation{}, fmt.Errorf("no raw status for %s check", checkType)
	}
	if raw.CheckType() != checkType {
		return Evaluation{}, fmt.Errorf("raw status is for %s, not %s", raw.CheckType(), checkType)
	}

	var m domain.CheckMetrics
	switch status := raw.(type) {
	case *domain.MFAStatus:
		m = EvaluateMFA(status)
	case *domain.RLSStatus:
		m = EvaluateRLS(status)
	case *domain.PITRStatus:
		m = EvaluatePITR(status)
	default:
		return Evaluation{}, fmt.Errorf("unsupported raw status %T", raw)
	}
	return Evaluation{Metrics: m, Passed: e.Passed(m)}, nil
}

// Passed derives the verdict for metrics, fresh or previously recorded.
func (e *Evaluator) Passed(m domain.CheckMetrics) bool {
	switch v := m.(type) {
	case *domain.MFAMetrics:
		return e.MFAPassed(v)
	case *domain.RLSMetrics:
		return e.RLSPassed(v)
	case *domain.PITRMetrics:
		return e.PITRPassed(v)
	}
	return false
}

func (e *Evaluator) MFAPassed(m *domain.MFAMetrics) bool {
	return m.Percentage >= e.policy.MFAMinPercentage
}

func (e *Evaluator) RLSPassed(m *domain.RLSMetrics) bool {
	return m.TotalTables > 0 && m.Percentage >= e.policy.RLSMinPercentage
}

func (e *Evaluator) PITRPassed(m *domain.PITRMetrics) bool {
	return m.Enabled && e.policy.acceptsWALLevel(m.WALLevel)
}

func EvaluateMFA(status *domain.MFAStatus) *domain.MFAMetrics {
	m := &domain.MFAMetrics{TotalUsers: len(status.Users)}
	for _, u := range status.Users {
		if u.HasVerified {
			m.MFAEnabledUsers++
			continue
		}
		if u.Email != "" {
			m.NonCompliantUsers = append(m.NonCompliantUsers, u.Email)
		} else {
			m.NonCompliantUsers = append(m.NonCompliantUsers, u.ID)
		}
	}
	m.Percentage = Percentage(m.MFAEnabledUsers, m.TotalUsers)
	return m
}

func EvaluateRLS(status *domain.RLSStatus) *domain.RLSMetrics {
	m := &domain.RLSMetrics{
		TotalTables: len(status.Tables),
		Tables:      make([]domain.TableStatus, len(status.Tables)),
	}
	copy(m.Tables, status.Tables)
	for _, t := range status.Tables {
		if t.HasRLS {
			m.RLSEnabledTables++
		}
	}
	m.Percentage = Percentage(m.RLSEnabledTables, m.TotalTables)
	return m
}

func EvaluatePITR(status *domain.PITRStatus) *domain.PITRMetrics {
	return &domain.PITRMetrics{
		Enabled:        status.Enabled,
		WALLevel:       status.WALLevel,
		ArchiveCommand: status.ArchiveCommand,
	}
}

// Percentage returns part/total as a percentage in [0,100], and 0 for an
// empty total.
func Percentage(part, total int) float64 {
	if total <= 0 {
		return 0
	}
	return float64(part) * 100 / float64(total)
}
