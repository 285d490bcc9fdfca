package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"compliance/infrastructure/queue"
	"compliance/internal/advisor"
	"compliance/internal/domain"
	"compliance/internal/evaluate"
	"compliance/internal/mocks"
	obmocks "compliance/observability/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const projectUUID = "7c9e6679-7425-40de-944b-e07fc1f63ca2"

var owner = domain.Identity{UserID: "user-1", Token: "jwt"}

type fixture struct {
	credentials *mocks.MockCredentialStore
	probe       *mocks.MockProbeClient
	ledger      *mocks.MockAuditLedger
	publisher   *mocks.MockPublisher
	archive     *mocks.MockArchive
	advisor     *mocks.MockAdvisor
	metrics     *obmocks.MockMetrics
	service     *CheckService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		credentials: &mocks.MockCredentialStore{},
		probe:       &mocks.MockProbeClient{},
		ledger:      &mocks.MockAuditLedger{},
		publisher:   &mocks.MockPublisher{},
		archive:     &mocks.MockArchive{},
		advisor:     &mocks.MockAdvisor{},
		metrics:     obmocks.NewPermissiveMetrics(),
	}

	provider := &obmocks.MockProvider{}
	provider.On("Logger", "service").Return(obmocks.NewPermissiveLogger())
	provider.On("Metrics", "service").Return(f.metrics)

	f.service = NewCheckService(Dependencies{
		Credentials:  f.credentials,
		Probes:       map[domain.CheckType]domain.ProbeClient{domain.CheckRLS: f.probe},
		Evaluator:    evaluate.NewEvaluator(evaluate.BaselinePolicy()),
		Ledger:       f.ledger,
		Advisor:      f.advisor,
		Publisher:    f.publisher,
		Archive:      f.archive,
		EventTarget:  "compliance-events",
		HistoryLimit: 10,
	}, provider)

	return f
}

func (f *fixture) expectProject() {
	f.credentials.On("Get", mock.Anything, projectUUID).Return(&domain.Project{
		ID:              projectUUID,
		URL:             "https://acme.supabase.co",
		AdminCredential: "service-role",
		UserID:          "user-1",
	}, nil)
}

func rlsStatus(enabled ...bool) *domain.RLSStatus {
	status := &domain.RLSStatus{}
	for i, on := range enabled {
		status.Tables = append(status.Tables, domain.TableStatus{
			Name:   string(rune('a' + i)),
			HasRLS: on,
		})
	}
	return status
}

func TestCheckService_Run(t *testing.T) {
	t.Run("records passing check and notifies", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()
		f.probe.On("Probe", mock.Anything, "https://acme.supabase.co", "service-role").
			Return(rlsStatus(true, true), nil)
		f.ledger.ExpectAppend("check-1")
		f.publisher.On("Publish", mock.Anything, mock.MatchedBy(func(m *queue.Message) bool {
			event, ok := m.Body.(CheckRecordedEvent)
			return ok &&
				m.Target == "compliance-events" &&
				m.Type == EventCheckRecorded &&
				m.Attributes["project_id"] == projectUUID &&
				m.Attributes["check_type"] == "rls" &&
				event.CheckID == "check-1" &&
				event.Verdict == domain.VerdictPass
		})).Return(nil)
		f.archive.On("Put", mock.Anything, "checks/"+projectUUID+"/rls/check-1.json", mock.Anything).Return(nil)

		result, err := f.service.Run(context.Background(), owner, projectUUID, domain.CheckRLS)

		require.NoError(t, err)
		assert.Equal(t, domain.VerdictPass, result.Verdict)
		require.NotNil(t, result.Check)
		assert.Equal(t, "check-1", result.Check.ID)
		assert.Equal(t, "user-1", result.Check.CreatedBy)
		metrics := result.Check.Metrics.(*domain.RLSMetrics)
		assert.Equal(t, 2, metrics.TotalTables)
		assert.Equal(t, float64(100), metrics.Percentage)

		f.ledger.AssertExpectations(t)
		f.publisher.AssertExpectations(t)
		f.archive.AssertExpectations(t)
		f.metrics.AssertCalled(t, "RecordSuccess", "check")
	})

	t.Run("records failing check", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()
		f.probe.On("Probe", mock.Anything, mock.Anything, mock.Anything).Return(rlsStatus(true, false), nil)
		f.ledger.ExpectAppend("check-2")
		f.publisher.On("Publish", mock.Anything, mock.Anything).Return(nil)
		f.archive.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(nil)

		result, err := f.service.Run(context.Background(), owner, projectUUID, domain.CheckRLS)

		require.NoError(t, err)
		assert.Equal(t, domain.VerdictFail, result.Verdict)
		assert.False(t, result.Check.Passed)
	})

	t.Run("probe failure is indeterminate and writes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()
		f.probe.On("Probe", mock.Anything, mock.Anything, mock.Anything).
			Return(nil, domain.NewMissingFunctionError(domain.CheckRLS, 404))

		result, err := f.service.Run(context.Background(), owner, projectUUID, domain.CheckRLS)

		require.Error(t, err)
		pe, ok := domain.AsProbeError(err)
		require.True(t, ok)
		assert.Equal(t, domain.ProbeMissingFunction, pe.Kind)
		require.NotNil(t, result)
		assert.Equal(t, domain.VerdictIndeterminate, result.Verdict)
		assert.Nil(t, result.Check)
		assert.Same(t, pe, result.ProbeError)

		f.ledger.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
		f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
		f.metrics.AssertCalled(t, "RecordError", "check", "probe_missing_function")
	})

	t.Run("cancelled during probe writes nothing", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()
		ctx, cancel := context.WithCancel(context.Background())
		f.probe.On("Probe", mock.Anything, mock.Anything, mock.Anything).
			Run(func(mock.Arguments) { cancel() }).
			Return(rlsStatus(true), nil)

		result, err := f.service.Run(ctx, owner, projectUUID, domain.CheckRLS)

		assert.ErrorIs(t, err, context.Canceled)
		assert.Nil(t, result)
		f.ledger.AssertNotCalled(t, "Append", mock.Anything, mock.Anything)
	})

	t.Run("ledger failure", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()
		f.probe.On("Probe", mock.Anything, mock.Anything, mock.Anything).Return(rlsStatus(true), nil)
		f.ledger.On("Append", mock.Anything, mock.Anything).Return("", errors.New("connection refused"))

		result, err := f.service.Run(context.Background(), owner, projectUUID, domain.CheckRLS)

		assert.Nil(t, result)
		de, ok := domain.AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, domain.CodeLedgerError, de.Code)
		f.publisher.AssertNotCalled(t, "Publish", mock.Anything, mock.Anything)
	})

	t.Run("notification failures do not fail the run", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()
		f.probe.On("Probe", mock.Anything, mock.Anything, mock.Anything).Return(rlsStatus(true), nil)
		f.ledger.ExpectAppend("check-3")
		f.publisher.On("Publish", mock.Anything, mock.Anything).Return(errors.New("broker down"))
		f.archive.On("Put", mock.Anything, mock.Anything, mock.Anything).Return(errors.New("bucket missing"))

		result, err := f.service.Run(context.Background(), owner, projectUUID, domain.CheckRLS)

		require.NoError(t, err)
		assert.Equal(t, "check-3", result.Check.ID)
		f.metrics.AssertCalled(t, "RecordError", "notify", "publish_failed")
		f.metrics.AssertCalled(t, "RecordError", "notify", "archive_failed")
	})

	t.Run("foreign project is not found", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()

		_, err := f.service.Run(context.Background(), domain.Identity{UserID: "user-2"}, projectUUID, domain.CheckRLS)

		de, ok := domain.AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, domain.CodeNotFound, de.Code)
		f.probe.AssertNotCalled(t, "Probe", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("rejects invalid requests before any I/O", func(t *testing.T) {
		tests := []struct {
			name      string
			identity  domain.Identity
			projectID string
			checkType domain.CheckType
			code      string
		}{
			{"anonymous", domain.Identity{}, projectUUID, domain.CheckRLS, domain.CodeAuthRequired},
			{"missing project", owner, " ", domain.CheckRLS, domain.CodeValidation},
			{"malformed project id", owner, "abc", domain.CheckRLS, domain.CodeValidation},
			{"quoted project id", owner, "1' OR '1'='1", domain.CheckRLS, domain.CodeValidation},
			{"urn project id", owner, "urn:uuid:" + projectUUID, domain.CheckRLS, domain.CodeValidation},
			{"unknown type", owner, projectUUID, domain.CheckType("ssl"), domain.CodeValidation},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				f := newFixture(t)

				_, err := f.service.Run(context.Background(), tt.identity, tt.projectID, tt.checkType)

				de, ok := domain.AsDomainError(err)
				require.True(t, ok)
				assert.Equal(t, tt.code, de.Code)
				f.credentials.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
			})
		}
	})
}

func TestCheckService_History(t *testing.T) {
	newer := domain.ComplianceCheck{
		ID: "c2", ProjectID: projectUUID, CheckType: domain.CheckRLS, Passed: true,
		Metrics:   &domain.RLSMetrics{TotalTables: 2, RLSEnabledTables: 2, Percentage: 100},
		CreatedAt: time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC),
	}
	older := domain.ComplianceCheck{
		ID: "c1", ProjectID: projectUUID, CheckType: domain.CheckRLS, Passed: false,
		Metrics:   &domain.RLSMetrics{TotalTables: 2, RLSEnabledTables: 1, Percentage: 50},
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}

	t.Run("returns checks with trend", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()
		f.ledger.On("List", mock.Anything, projectUUID, domain.CheckRLS, 5).
			Return([]domain.ComplianceCheck{newer, older}, nil)

		history, err := f.service.History(context.Background(), owner, projectUUID, domain.CheckRLS, 5)

		require.NoError(t, err)
		assert.Len(t, history.Checks, 2)
		assert.Equal(t, domain.TrendImproving, history.Trend)
	})

	t.Run("limit is clamped to configured maximum", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()
		f.ledger.On("List", mock.Anything, projectUUID, domain.CheckRLS, 10).
			Return([]domain.ComplianceCheck{}, nil).Twice()

		history, err := f.service.History(context.Background(), owner, projectUUID, domain.CheckRLS, 500)
		require.NoError(t, err)
		assert.Equal(t, domain.TrendFirstRun, history.Trend)

		_, err = f.service.History(context.Background(), owner, projectUUID, domain.CheckRLS, 0)
		require.NoError(t, err)

		f.ledger.AssertExpectations(t)
	})

	t.Run("ledger failure", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()
		f.ledger.On("List", mock.Anything, mock.Anything, mock.Anything, mock.Anything).
			Return(nil, errors.New("timeout"))

		_, err := f.service.History(context.Background(), owner, projectUUID, domain.CheckRLS, 5)

		de, ok := domain.AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, domain.CodeLedgerError, de.Code)
	})
}

func TestCheckService_Remediate(t *testing.T) {
	t.Run("uses latest recorded metrics", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()
		metrics := &domain.RLSMetrics{
			TotalTables: 2, RLSEnabledTables: 1, Percentage: 50,
			Tables: []domain.TableStatus{{Name: "orders", HasRLS: false}, {Name: "users", HasRLS: true}},
		}
		f.ledger.On("List", mock.Anything, projectUUID, domain.CheckRLS, 1).
			Return([]domain.ComplianceCheck{{ID: "c1", CheckType: domain.CheckRLS, Metrics: metrics}}, nil)

		expected, err := advisor.ComposePrompt(domain.CheckRLS, metrics)
		require.NoError(t, err)
		f.advisor.On("RequestFix", mock.Anything, "jwt", expected).
			Return(advisor.Advice{Text: "ALTER TABLE orders ENABLE ROW LEVEL SECURITY;", Role: advisor.RoleAssistant})

		advice, err := f.service.Remediate(context.Background(), owner, RemediateRequest{ProjectID: projectUUID, CheckType: domain.CheckRLS})

		require.NoError(t, err)
		assert.False(t, advice.Failed)
		assert.Contains(t, advice.Text, "orders")
		f.advisor.AssertExpectations(t)
	})

	t.Run("supplied metrics skip the ledger", func(t *testing.T) {
		f := newFixture(t)
		f.advisor.On("RequestFix", mock.Anything, "jwt", mock.AnythingOfType("string")).
			Return(advisor.Advice{Text: advisor.MsgUnexpected, Failed: true})

		advice, err := f.service.Remediate(context.Background(), owner, RemediateRequest{
			CheckType: domain.CheckPITR,
			Metrics:   &domain.PITRMetrics{WALLevel: "minimal"},
		})

		require.NoError(t, err)
		assert.True(t, advice.Failed)
		f.ledger.AssertNotCalled(t, "List", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
		f.metrics.AssertCalled(t, "RecordError", "fix", "gateway_error")
	})

	t.Run("no recorded check", func(t *testing.T) {
		f := newFixture(t)
		f.expectProject()
		f.ledger.On("List", mock.Anything, projectUUID, domain.CheckMFA, 1).Return([]domain.ComplianceCheck{}, nil)

		_, err := f.service.Remediate(context.Background(), owner, RemediateRequest{ProjectID: projectUUID, CheckType: domain.CheckMFA})

		de, ok := domain.AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, domain.CodeNotFound, de.Code)
		f.advisor.AssertNotCalled(t, "RequestFix", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("anonymous caller", func(t *testing.T) {
		f := newFixture(t)

		_, err := f.service.Remediate(context.Background(), domain.Identity{}, RemediateRequest{CheckType: domain.CheckMFA})

		de, ok := domain.AsDomainError(err)
		require.True(t, ok)
		assert.Equal(t, domain.CodeAuthRequired, de.Code)
	})
}

func TestCheckService_Continue(t *testing.T) {
	f := newFixture(t)
	conv := advisor.Reduce(advisor.Conversation{}, advisor.UserSubmitted{Content: "why?"})
	reply := advisor.Reduce(conv, advisor.AssistantReplied{Content: "because"})
	f.advisor.On("Continue", mock.Anything, "jwt", conv).Return(reply)

	next, err := f.service.Continue(context.Background(), owner, conv)

	require.NoError(t, err)
	assert.False(t, next.Pending)
	assert.Len(t, next.Messages, 2)

	_, err = f.service.Continue(context.Background(), domain.Identity{}, conv)
	assert.Error(t, err)
}
