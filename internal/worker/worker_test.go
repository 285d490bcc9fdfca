package worker

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"compliance/config"
	"compliance/handler"
	httpclient "compliance/infrastructure/http"
	"compliance/internal/advisor"
	"compliance/internal/domain"
	"compliance/internal/evaluate"
	ports "compliance/internal/mocks"
	"compliance/internal/service"
	"compliance/internal/worker/mocks"
	obmocks "compliance/observability/mocks"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const projectUUID = "7c9e6679-7425-40de-944b-e07fc1f63ca2"

var caller = domain.Identity{UserID: "user-1", Token: "jwt"}

func newWorker() (*ComplianceWorker, *mocks.MockCheckService, *obmocks.MockMetrics) {
	svc := &mocks.MockCheckService{}
	metrics := obmocks.NewPermissiveMetrics()
	return NewComplianceWorker(svc, obmocks.NewPermissiveLogger(), metrics), svc, metrics
}

func newRequest(t *testing.T, requestType string, payload interface{}) handler.Request {
	t.Helper()
	req, err := handler.NewRequest(requestType, payload)
	require.NoError(t, err)
	req.SetMetadata(handler.MetadataUserID, caller.UserID)
	req.SetMetadata(handler.MetadataAuthToken, caller.Token)
	return req
}

func TestComplianceWorker_Name(t *testing.T) {
	w, _, _ := newWorker()
	assert.Equal(t, "compliance", w.Name())
}

func TestComplianceWorker_Check(t *testing.T) {
	t.Run("success sets verdict", func(t *testing.T) {
		w, svc, metrics := newWorker()
		check := &domain.ComplianceCheck{
			ID:        "check-1",
			ProjectID: projectUUID,
			CheckType: domain.CheckPITR,
			Passed:    true,
			Metrics:   &domain.PITRMetrics{Enabled: true, WALLevel: "replica"},
			CreatedAt: time.Now(),
		}
		svc.On("Run", mock.Anything, caller, projectUUID, domain.CheckPITR).
			Return(&domain.CheckResult{Verdict: domain.VerdictPass, Check: check}, nil)

		resp, err := w.Process(context.Background(), newRequest(t, TypeCheck, CheckRequest{ProjectID: projectUUID, CheckType: "PITR"}))

		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Equal(t, "pass", resp.Metadata[MetadataVerdict])

		var data struct {
			Verdict string `json:"verdict"`
			Check   struct {
				ID string `json:"id"`
			} `json:"check"`
		}
		require.NoError(t, json.Unmarshal(resp.Data, &data))
		assert.Equal(t, "pass", data.Verdict)
		assert.Equal(t, "check-1", data.Check.ID)
		metrics.AssertCalled(t, "RecordSuccess", "worker_process")
	})

	t.Run("missing function returns setup sql", func(t *testing.T) {
		w, svc, metrics := newWorker()
		pe := domain.NewMissingFunctionError(domain.CheckRLS, 404)
		svc.On("Run", mock.Anything, caller, projectUUID, domain.CheckRLS).
			Return(&domain.CheckResult{Verdict: domain.VerdictIndeterminate, ProbeError: pe}, pe)

		resp, err := w.Process(context.Background(), newRequest(t, TypeCheck, CheckRequest{ProjectID: projectUUID, CheckType: "rls"}))

		require.NoError(t, err)
		assert.False(t, resp.Success)
		require.NotNil(t, resp.Error)
		assert.Equal(t, handler.CodeMissingFunction, resp.Error.Code)
		assert.Equal(t, domain.SetupSQL(domain.CheckRLS), resp.Error.Details)
		assert.False(t, resp.Error.Retryable)
		assert.Equal(t, "indeterminate", resp.Metadata[MetadataVerdict])
		assert.JSONEq(t, `{"verdict":"indeterminate","check":null}`, string(resp.Data))
		metrics.AssertCalled(t, "RecordError", "worker_process", "probe_missing_function")
		metrics.AssertNotCalled(t, "RecordError", "worker_process", "marshal_failed")
	})

	t.Run("unreachable target is retryable", func(t *testing.T) {
		w, svc, _ := newWorker()
		pe := domain.NewProbeError(domain.ProbeUnreachable, domain.CheckMFA, "target unreachable", errors.New("dial tcp"))
		svc.On("Run", mock.Anything, caller, projectUUID, domain.CheckMFA).
			Return(&domain.CheckResult{Verdict: domain.VerdictIndeterminate, ProbeError: pe}, pe)

		resp, err := w.Process(context.Background(), newRequest(t, TypeCheck, CheckRequest{ProjectID: projectUUID, CheckType: "mfa"}))

		require.NoError(t, err)
		assert.Equal(t, handler.CodeTargetUnreachable, resp.Error.Code)
		assert.True(t, resp.Error.Retryable)
	})

	t.Run("service errors map to codes", func(t *testing.T) {
		tests := []struct {
			name string
			err  error
			code string
		}{
			{"auth", domain.NewAuthError(), handler.CodeAuthRequired},
			{"validation", domain.NewValidationError("bad"), handler.CodeValidationError},
			{"not found", domain.NewNotFoundError("missing"), handler.CodeNotFound},
			{"ledger", domain.NewLedgerError("down", errors.New("eof")), handler.CodeLedgerError},
			{"timeout", context.DeadlineExceeded, handler.CodeTimeout},
			{"cancelled", context.Canceled, handler.CodeCancelled},
			{"unknown", errors.New("boom"), handler.CodeInternalError},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				w, svc, _ := newWorker()
				svc.On("Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, tt.err)

				resp, err := w.Process(context.Background(), newRequest(t, TypeCheck, CheckRequest{ProjectID: "p", CheckType: "rls"}))

				require.NoError(t, err)
				require.NotNil(t, resp.Error)
				assert.Equal(t, tt.code, resp.Error.Code)
				assert.Empty(t, resp.Metadata[MetadataVerdict])
			})
		}
	})

	t.Run("unknown check type reaches service unvalidated", func(t *testing.T) {
		w, svc, _ := newWorker()
		svc.On("Run", mock.Anything, domain.Identity{}, "p", domain.CheckType("ssl")).
			Return(nil, domain.NewAuthError())

		req, err := handler.NewRequest(TypeCheck, CheckRequest{ProjectID: "p", CheckType: "ssl"})
		require.NoError(t, err)

		resp, err := w.Process(context.Background(), req)

		require.NoError(t, err)
		assert.Equal(t, handler.CodeAuthRequired, resp.Error.Code)
	})

	t.Run("invalid payload", func(t *testing.T) {
		w, svc, _ := newWorker()
		req := handler.Request{ID: "req-1", Type: TypeCheck, Payload: []byte(`{"project_id":1}`)}

		resp, err := w.Process(context.Background(), req)

		require.NoError(t, err)
		assert.Equal(t, handler.CodeInvalidRequest, resp.Error.Code)
		svc.AssertNotCalled(t, "Run", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestComplianceWorker_History(t *testing.T) {
	w, svc, _ := newWorker()
	svc.On("History", mock.Anything, caller, projectUUID, domain.CheckMFA, 3).
		Return(&domain.History{ProjectID: projectUUID, CheckType: domain.CheckMFA, Trend: domain.TrendFirstRun}, nil)

	resp, err := w.Process(context.Background(), newRequest(t, TypeHistory, HistoryRequest{ProjectID: projectUUID, CheckType: "mfa", Limit: 3}))

	require.NoError(t, err)
	assert.True(t, resp.Success)
	assert.Contains(t, string(resp.Data), "FIRST_RUN")
}

func TestComplianceWorker_Fix(t *testing.T) {
	t.Run("decodes supplied metrics", func(t *testing.T) {
		w, svc, _ := newWorker()
		svc.On("Remediate", mock.Anything, caller, mock.MatchedBy(func(r service.RemediateRequest) bool {
			m, ok := r.Metrics.(*domain.MFAMetrics)
			return ok && r.CheckType == domain.CheckMFA && m.TotalUsers == 4 && m.MFAEnabledUsers == 1
		})).Return(&advisor.Advice{Text: "Enable MFA", Role: advisor.RoleAssistant}, nil)

		payload := map[string]interface{}{
			"project_id": projectUUID,
			"check_type": "mfa",
			"metrics":    map[string]interface{}{"totalUsers": 4, "mfaEnabledUsers": 1, "percentage": 25},
		}
		resp, err := w.Process(context.Background(), newRequest(t, TypeFix, payload))

		require.NoError(t, err)
		assert.True(t, resp.Success)
		assert.Contains(t, string(resp.Data), "Enable MFA")
		svc.AssertExpectations(t)
	})

	t.Run("gateway failure is a successful response", func(t *testing.T) {
		w, svc, _ := newWorker()
		svc.On("Remediate", mock.Anything, caller, service.RemediateRequest{ProjectID: projectUUID, CheckType: domain.CheckRLS}).
			Return(&advisor.Advice{Text: advisor.MsgUnexpected, Failed: true}, nil)

		resp, err := w.Process(context.Background(), newRequest(t, TypeFix, FixRequest{ProjectID: projectUUID, CheckType: "rls"}))

		require.NoError(t, err)
		assert.True(t, resp.Success)

		var advice advisor.Advice
		require.NoError(t, json.Unmarshal(resp.Data, &advice))
		assert.True(t, advice.Failed)
		assert.Equal(t, advisor.MsgUnexpected, advice.Text)
	})
}

func TestComplianceWorker_FixSlowGatewayWithinHandlerDeadline(t *testing.T) {
	gateway := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(300 * time.Millisecond):
			_, _ = w.Write([]byte(`{"message":"too late","role":"assistant"}`))
		}
	}))
	defer gateway.Close()

	provider := obmocks.NewPermissiveProvider()
	client := httpclient.NewClient(
		config.HTTPConfig{Timeout: 2 * time.Second},
		config.RetryConfig{MaxAttempts: 1, InitialBackoff: time.Millisecond, BackoffMultiplier: 1},
		provider,
	)
	svc := service.NewCheckService(service.Dependencies{
		Evaluator: evaluate.NewEvaluator(evaluate.BaselinePolicy()),
		Advisor:   advisor.NewAdvisor(client, gateway.URL, provider),
	}, provider)

	w := NewComplianceWorker(svc, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics()).
		WithAdviceTimeout(100 * time.Millisecond)

	cfg := config.DefaultHandlerConfig()
	cfg.Timeout = 500 * time.Millisecond
	h := handler.NewFactory(w, provider).
		WithHandlerConfig(cfg).
		WithRetryConfig(config.RetryConfig{MaxAttempts: 1}).
		CreateHTTP()

	metrics := json.RawMessage(`{"totalTables":2,"rlsEnabledTables":1,"percentage":50,"tables":[{"name":"a","hasRLS":true},{"name":"b","hasRLS":false}]}`)
	resp, err := h.Handle(context.Background(), newRequest(t, TypeFix, FixRequest{ProjectID: projectUUID, CheckType: "rls", Metrics: metrics}))

	require.NoError(t, err)
	require.True(t, resp.Success, "%+v", resp.Error)

	var advice advisor.Advice
	require.NoError(t, json.Unmarshal(resp.Data, &advice))
	assert.True(t, advice.Failed)
	assert.Equal(t, advisor.MsgUnexpected, advice.Text)
}

func TestComplianceWorker_MalformedProjectID(t *testing.T) {
	credentials := &ports.MockCredentialStore{}
	svc := service.NewCheckService(service.Dependencies{
		Credentials: credentials,
		Evaluator:   evaluate.NewEvaluator(evaluate.BaselinePolicy()),
	}, obmocks.NewPermissiveProvider())
	w := NewComplianceWorker(svc, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics())

	for _, requestType := range []string{TypeCheck, TypeHistory, TypeFix} {
		t.Run(requestType, func(t *testing.T) {
			resp, err := w.Process(context.Background(), newRequest(t, requestType, CheckRequest{ProjectID: "abc", CheckType: "rls"}))

			require.NoError(t, err)
			require.NotNil(t, resp.Error)
			assert.Equal(t, handler.CodeValidationError, resp.Error.Code)
			assert.False(t, resp.Error.Retryable)
		})
	}
	credentials.AssertNotCalled(t, "Get", mock.Anything, mock.Anything)
}

func TestComplianceWorker_Chat(t *testing.T) {
	t.Run("submits message", func(t *testing.T) {
		w, svc, _ := newWorker()
		pending := advisor.Conversation{
			Messages: []advisor.Message{{Role: advisor.RoleUser, Content: "how do I enable RLS?"}},
			Pending:  true,
		}
		reply := advisor.Reduce(pending, advisor.AssistantReplied{Content: "ALTER TABLE ..."})
		svc.On("Continue", mock.Anything, caller, pending).Return(reply, nil)

		resp, err := w.Process(context.Background(), newRequest(t, TypeChat, ChatRequest{Message: " how do I enable RLS? "}))

		require.NoError(t, err)
		assert.True(t, resp.Success)

		var conv advisor.Conversation
		require.NoError(t, json.Unmarshal(resp.Data, &conv))
		assert.Len(t, conv.Messages, 2)
		assert.False(t, conv.Pending)
	})

	t.Run("blank message is rejected", func(t *testing.T) {
		w, svc, _ := newWorker()

		resp, err := w.Process(context.Background(), newRequest(t, TypeChat, ChatRequest{Message: "   "}))

		require.NoError(t, err)
		assert.Equal(t, handler.CodeValidationError, resp.Error.Code)
		svc.AssertNotCalled(t, "Continue", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestComplianceWorker_UnknownType(t *testing.T) {
	w, _, _ := newWorker()

	resp, err := w.Process(context.Background(), newRequest(t, "delete", map[string]string{}))

	require.NoError(t, err)
	assert.Equal(t, handler.CodeInvalidRequest, resp.Error.Code)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

func TestComplianceWorker_Health(t *testing.T) {
	svc := &mocks.MockCheckService{}

	healthy := NewComplianceWorker(svc, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics(), stubPinger{})
	assert.NoError(t, healthy.Health(context.Background()))

	unhealthy := NewComplianceWorker(svc, obmocks.NewPermissiveLogger(), obmocks.NewPermissiveMetrics(), stubPinger{err: errors.New("db down")})
	err := unhealthy.Health(context.Background())
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}
