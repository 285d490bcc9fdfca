package domain

import (
	"fmt"
	"strings"
	"time"
)

// CheckType identifies one of the audited policies.
type CheckType string

const (
	CheckMFA  CheckType = "mfa"
	CheckRLS  CheckType = "rls"
	CheckPITR CheckType = "pitr"
)

// CheckTypes lists every supported check type.
var CheckTypes = []CheckType{CheckMFA, CheckRLS, CheckPITR}

// ParseCheckType normalizes and validates a check type name.
func ParseCheckType(s string) (CheckType, error) {
	ct := CheckType(strings.ToLower(strings.TrimSpace(s)))
	if !ct.Valid() {
		return "", NewUnsupportedCheckTypeError(s)
	}
	return ct, nil
}

// NewUnsupportedCheckTypeError rejects name and lists the accepted types.
func NewUnsupportedCheckTypeError(name string) *DomainError {
	names := make([]string, len(CheckTypes))
	for i, ct := range CheckTypes {
		names[i] = string(ct)
	}
	return NewValidationError(fmt.Sprintf("unsupported check type %q (expected one of %s)", name, strings.Join(names, ", ")))
}

// Valid reports whether ct is a supported check type.
func (ct CheckType) Valid() bool {
	for _, known := range CheckTypes {
		if ct == known {
			return true
		}
	}
	return false
}

func (ct CheckType) String() string {
	return string(ct)
}

// Verdict is the outcome reported for a check run.
type Verdict string

const (
	VerdictPass          Verdict = "pass"
	VerdictFail          Verdict = "fail"
	VerdictIndeterminate Verdict = "indeterminate"
)

// VerdictOf maps a completed evaluation onto a verdict.
func VerdictOf(passed bool) Verdict {
	if passed {
		return VerdictPass
	}
	return VerdictFail
}

// Identity is an already authenticated caller.
type Identity struct {
	UserID string
	Token  string
}

// Authenticated reports whether the identity carries a user id.
func (i Identity) Authenticated() bool {
	return strings.TrimSpace(i.UserID) != ""
}

// Project is a registered target together with its admin credential.
type Project struct {
	ID              string    `db:"id"`
	Name            string    `db:"project_name"`
	URL             string    `db:"project_url"`
	AdminCredential string    `db:"service_role_key"`
	UserID          string    `db:"user_id"`
	CreatedAt       time.Time `db:"created_at"`
}

// ComplianceCheck is one append-only ledger row. Passed is always derived
// from Metrics by the evaluator that produced them.
type ComplianceCheck struct {
	ID        string       `json:"id"`
	ProjectID string       `json:"project_id"`
	CheckType CheckType    `json:"check_type"`
	Passed    bool         `json:"passed"`
	Metrics   CheckMetrics `json:"metrics"`
	CreatedAt time.Time    `json:"created_at"`
	CreatedBy string       `json:"created_by"`
}

// Verdict returns pass or fail for a recorded check.
func (c ComplianceCheck) Verdict() Verdict {
	return VerdictOf(c.Passed)
}

// CheckResult is what a check run reports back to the caller. A probe
// failure yields VerdictIndeterminate, a nil Check and the ProbeError.
type CheckResult struct {
	Verdict    Verdict          `json:"verdict"`
	Check      *ComplianceCheck `json:"check,omitempty"`
	ProbeError *ProbeError      `json:"probe_error,omitempty"`
}

// Trend compares the two newest ledger rows of a history.
type Trend string

const (
	TrendFirstRun  Trend = "FIRST_RUN"
	TrendImproving Trend = "IMPROVING"
	TrendDeclining Trend = "DECLINING"
	TrendUnchanged Trend = "UNCHANGED"
)

// TrendOf derives the trend from newest-first checks. An empty history
// and a single row both report FIRST_RUN.
func TrendOf(checks []ComplianceCheck) Trend {
	if len(checks) < 2 {
		return TrendFirstRun
	}

	latest, previous := checks[0], checks[1]
	switch {
	case latest.Passed && !previous.Passed:
		return TrendImproving
	case !latest.Passed && previous.Passed:
		return TrendDeclining
	}

	lp, lok := coverage(latest.Metrics)
	pp, pok := coverage(previous.Metrics)
	if lok && pok {
		switch {
		case lp > pp:
			return TrendImproving
		case lp < pp:
			return TrendDeclining
		}
	}
	return TrendUnchanged
}

func coverage(m CheckMetrics) (float64, bool) {
	switch v := m.(type) {
	case *MFAMetrics:
		return v.Percentage, true
	case *RLSMetrics:
		return v.Percentage, true
	}
	return 0, false
}

// History is a newest-first slice of ledger rows plus its trend.
type History struct {
	ProjectID string            `json:"project_id"`
	CheckType CheckType         `json:"check_type"`
	Checks    []ComplianceCheck `json:"checks"`
	Trend     Trend             `json:"trend"`
}
