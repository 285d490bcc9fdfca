package advisor

import (
	"fmt"
	"strings"

	"compliance/internal/domain"
)

// Persona is the system message sent ahead of every prompt.
const Persona = "You are a database security expert helping to fix compliance issues in a Supabase PostgreSQL database."

// ComposePrompt renders the remediation request for a check. Output depends
// only on the metrics.
func ComposePrompt(checkType domain.CheckType, metrics domain.CheckMetrics) (string, error) {
	if metrics == nil {
		return "", domain.NewValidationError("metrics are required to compose a prompt")
	}
	if metrics.CheckType() != checkType {
		return "", domain.NewValidationError(fmt.Sprintf("metrics are for %s, not %s", metrics.CheckType(), checkType))
	}

	switch m := metrics.(type) {
	case *domain.MFAMetrics:
		return mfaPrompt(m), nil
	case *domain.RLSMetrics:
		return rlsPrompt(m), nil
	case *domain.PITRMetrics:
		return pitrPrompt(m), nil
	default:
		return "", domain.NewValidationError(fmt.Sprintf("no prompt for %T", metrics))
	}
}

func mfaPrompt(m *domain.MFAMetrics) string {
	return fmt.Sprintf(`I need help enforcing Multi-Factor Authentication (MFA) for my Supabase users. Here are the current details:

Total Users: %d
Users with MFA: %d
MFA Coverage: %.1f%%

Please provide:
1. Steps to enforce MFA for all users
2. Code examples for implementing MFA in the application
3. Best practices for MFA implementation`, m.TotalUsers, m.MFAEnabledUsers, m.Percentage)
}

func rlsPrompt(m *domain.RLSMetrics) string {
	missing := m.TablesMissingRLS()
	lines := make([]string, len(missing))
	for i, name := range missing {
		lines[i] = "- " + name
	}

	return fmt.Sprintf(`I need help enabling Row Level Security (RLS) for my database tables. Here are the current details:

Total Tables: %d
Tables with RLS: %d
RLS Coverage: %.1f%%

Tables missing RLS:
%s

Please provide SQL commands to:
1. Enable RLS for these tables
2. Create basic security policies
3. Explain each step`, m.TotalTables, m.RLSEnabledTables, m.Percentage, strings.Join(lines, "\n"))
}

func pitrPrompt(m *domain.PITRMetrics) string {
	status := "Disabled"
	if m.Enabled {
		status = "Enabled"
	}
	archive := m.ArchiveCommand
	if archive == "" {
		archive = "Not configured"
	}

	return fmt.Sprintf(`I need help enabling Point-in-Time Recovery (PITR) for my database. Here are the current details:

PITR Status: %s
WAL Level: %s
Archive Command: %s

Please provide:
1. Steps to enable PITR
2. Recommended retention period
3. Any additional configuration needed
4. Best practices for backup strategy`, status, m.WALLevel, archive)
}
