package advisor

import (
	"strings"
	"testing"

	"compliance/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComposePrompt_MFA(t *testing.T) {
	prompt, err := ComposePrompt(domain.CheckMFA, &domain.MFAMetrics{TotalUsers: 3, MFAEnabledUsers: 1, Percentage: 100.0 / 3})
	require.NoError(t, err)

	assert.Equal(t, `I need help enforcing Multi-Factor Authentication (MFA) for my Supabase users. Here are the current details:

Total Users: 3
Users with MFA: 1
MFA Coverage: 33.3%

Please provide:
1. Steps to enforce MFA for all users
2. Code examples for implementing MFA in the application
3. Best practices for MFA implementation`, prompt)
}

func TestComposePrompt_RLSListsOnlyMissingTables(t *testing.T) {
	metrics := &domain.RLSMetrics{
		TotalTables:      4,
		RLSEnabledTables: 2,
		Percentage:       50,
		Tables: []domain.TableStatus{
			{Name: "profiles", HasRLS: true},
			{Name: "orders", HasRLS: false},
			{Name: "audit_log", HasRLS: true},
			{Name: "invoices", HasRLS: false},
		},
	}

	prompt, err := ComposePrompt(domain.CheckRLS, metrics)
	require.NoError(t, err)

	assert.Contains(t, prompt, "Total Tables: 4\nTables with RLS: 2\nRLS Coverage: 50.0%")
	assert.Contains(t, prompt, "Tables missing RLS:\n- orders\n- invoices\n\nPlease provide SQL commands to:")
	assert.NotContains(t, prompt, "profiles")
	assert.NotContains(t, prompt, "audit_log")
	assert.Less(t, strings.Index(prompt, "- orders"), strings.Index(prompt, "- invoices"))
}

func TestComposePrompt_PITR(t *testing.T) {
	tests := []struct {
		name     string
		metrics  *domain.PITRMetrics
		contains []string
	}{
		{
			name:     "disabled without archive command",
			metrics:  &domain.PITRMetrics{Enabled: false, WALLevel: "minimal"},
			contains: []string{"PITR Status: Disabled", "WAL Level: minimal", "Archive Command: Not configured"},
		},
		{
			name:     "enabled",
			metrics:  &domain.PITRMetrics{Enabled: true, WALLevel: "logical", ArchiveCommand: "wal-g wal-push %p"},
			contains: []string{"PITR Status: Enabled", "WAL Level: logical", "Archive Command: wal-g wal-push %p", "2. Recommended retention period"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prompt, err := ComposePrompt(domain.CheckPITR, tt.metrics)
			require.NoError(t, err)
			for _, s := range tt.contains {
				assert.Contains(t, prompt, s)
			}
		})
	}
}

func TestComposePrompt_Deterministic(t *testing.T) {
	metrics := &domain.RLSMetrics{TotalTables: 2, Percentage: 0, Tables: []domain.TableStatus{{Name: "a"}, {Name: "b"}}}

	first, err := ComposePrompt(domain.CheckRLS, metrics)
	require.NoError(t, err)
	second, err := ComposePrompt(domain.CheckRLS, metrics)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestComposePrompt_Invalid(t *testing.T) {
	_, err := ComposePrompt(domain.CheckRLS, &domain.MFAMetrics{})
	de, ok := domain.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, domain.CodeValidation, de.Code)

	_, err = ComposePrompt(domain.CheckMFA, nil)
	assert.Error(t, err)
}
