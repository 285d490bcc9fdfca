// Package worker adapts the check service to handler.Worker.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"compliance/handler"
	"compliance/internal/advisor"
	"compliance/internal/domain"
	"compliance/internal/service"
	"compliance/observability/types"
)

// Request types served by ComplianceWorker.
const (
	TypeCheck   = "check"
	TypeHistory = "history"
	TypeFix     = "fix"
	TypeChat    = "chat"
)

// MetadataVerdict is the response metadata key carrying the check verdict.
const MetadataVerdict = "verdict"

// CheckService is the business surface the worker dispatches to.
type CheckService interface {
	Run(ctx context.Context, identity domain.Identity, projectID string, checkType domain.CheckType) (*domain.CheckResult, error)
	History(ctx context.Context, identity domain.Identity, projectID string, checkType domain.CheckType, limit int) (*domain.History, error)
	Remediate(ctx context.Context, identity domain.Identity, req service.RemediateRequest) (*advisor.Advice, error)
	Continue(ctx context.Context, identity domain.Identity, conv advisor.Conversation) (advisor.Conversation, error)
}

// Pinger is a dependency checked by Health.
type Pinger interface {
	Ping(ctx context.Context) error
}

// CheckRequest is the payload of a check request.
type CheckRequest struct {
	ProjectID string `json:"project_id"`
	CheckType string `json:"check_type"`
}

// HistoryRequest is the payload of a history request.
type HistoryRequest struct {
	ProjectID string `json:"project_id"`
	CheckType string `json:"check_type"`
	Limit     int    `json:"limit,omitempty"`
}

// FixRequest is the payload of a fix request. Metrics, when present, are
// decoded for CheckType instead of reading the latest ledger row.
type FixRequest struct {
	ProjectID string          `json:"project_id"`
	CheckType string          `json:"check_type"`
	Metrics   json.RawMessage `json:"metrics,omitempty"`
}

// ChatRequest appends Message to Conversation and asks for a reply.
type ChatRequest struct {
	Conversation advisor.Conversation `json:"conversation"`
	Message      string               `json:"message"`
}

// CheckResponse is the data of a successful check.
type CheckResponse struct {
	Verdict domain.Verdict          `json:"verdict"`
	Check   *domain.ComplianceCheck `json:"check"`
}

// ComplianceWorker implements handler.Worker for compliance requests.
type ComplianceWorker struct {
	service       CheckService
	pingers       []Pinger
	adviceTimeout time.Duration
	logger        types.Logger
	metrics       types.Metrics
}

func NewComplianceWorker(svc CheckService, logger types.Logger, metrics types.Metrics, pingers ...Pinger) *ComplianceWorker {
	return &ComplianceWorker{
		service: svc,
		pingers: pingers,
		logger:  logger,
		metrics: metrics,
	}
}

// WithAdviceTimeout bounds fix and chat requests by d. It must stay below
// the handler timeout so a slow gateway ends in a failed Advice rather
// than a TIMEOUT response.
func (w *ComplianceWorker) WithAdviceTimeout(d time.Duration) *ComplianceWorker {
	w.adviceTimeout = d
	return w
}

func (w *ComplianceWorker) Name() string {
	return "compliance"
}

// Process dispatches on request type. Failures are returned as error
// responses; the error return stays nil.
func (w *ComplianceWorker) Process(ctx context.Context, request handler.Request) (handler.Response, error) {
	w.metrics.StartOperation("worker_process")
	defer w.metrics.EndOperation("worker_process")

	startTime := time.Now()
	defer func() {
		w.metrics.RecordDuration("worker_process", time.Since(startTime).Seconds())
	}()

	identity := identityFrom(request)

	var resp handler.Response
	switch request.Type {
	case TypeCheck:
		resp = w.check(ctx, request, identity)
	case TypeHistory:
		resp = w.history(ctx, request, identity)
	case TypeFix:
		resp = w.fix(ctx, request, identity)
	case TypeChat:
		resp = w.chat(ctx, request, identity)
	default:
		w.metrics.RecordError("worker_process", "unknown_type")
		return handler.NewErrorResponse(
			request.ID,
			handler.CodeInvalidRequest,
			fmt.Sprintf("Unsupported request type %q", request.Type),
			"",
		), nil
	}

	if resp.Success {
		w.metrics.RecordSuccess("worker_process")
	}
	return resp, nil
}

func (w *ComplianceWorker) check(ctx context.Context, request handler.Request, identity domain.Identity) handler.Response {
	var req CheckRequest
	if err := request.Unmarshal(&req); err != nil {
		return w.invalidPayload(ctx, request, err)
	}

	checkType := checkTypeOf(req.CheckType)

	result, err := w.service.Run(ctx, identity, req.ProjectID, checkType)
	if err != nil {
		resp := w.failure(ctx, request, err)
		if result != nil {
			resp.Metadata[MetadataVerdict] = string(result.Verdict)
			if merr := resp.Marshal(CheckResponse{Verdict: result.Verdict}); merr != nil {
				w.metrics.RecordError("worker_process", "marshal_failed")
				w.logger.Warn(ctx, "Failed to attach verdict to error response", types.Fields{
					"request_id": request.ID,
					"error":      merr.Error(),
				})
			}
		}
		return resp
	}

	resp, err := handler.NewSuccessResponse(request.ID, CheckResponse{
		Verdict: result.Verdict,
		Check:   result.Check,
	})
	if err != nil {
		return w.failure(ctx, request, err)
	}
	resp.Metadata[MetadataVerdict] = string(result.Verdict)

	w.logger.Info(ctx, "Check completed", types.Fields{
		"request_id": request.ID,
		"check_type": string(checkType),
		"verdict":    string(result.Verdict),
	})
	return resp
}

func (w *ComplianceWorker) history(ctx context.Context, request handler.Request, identity domain.Identity) handler.Response {
	var req HistoryRequest
	if err := request.Unmarshal(&req); err != nil {
		return w.invalidPayload(ctx, request, err)
	}

	checkType := checkTypeOf(req.CheckType)

	history, err := w.service.History(ctx, identity, req.ProjectID, checkType, req.Limit)
	if err != nil {
		return w.failure(ctx, request, err)
	}

	resp, err := handler.NewSuccessResponse(request.ID, history)
	if err != nil {
		return w.failure(ctx, request, err)
	}
	return resp
}

func (w *ComplianceWorker) fix(ctx context.Context, request handler.Request, identity domain.Identity) handler.Response {
	var req FixRequest
	if err := request.Unmarshal(&req); err != nil {
		return w.invalidPayload(ctx, request, err)
	}

	checkType := checkTypeOf(req.CheckType)

	remediate := service.RemediateRequest{ProjectID: req.ProjectID, CheckType: checkType}
	if len(req.Metrics) > 0 && string(req.Metrics) != "null" && checkType.Valid() {
		metrics, err := domain.UnmarshalMetrics(checkType, req.Metrics)
		if err != nil {
			return w.failure(ctx, request, domain.NewValidationError(fmt.Sprintf("invalid %s metrics: %v", checkType, err)))
		}
		remediate.Metrics = metrics
	}

	ctx, cancel := w.adviceContext(ctx)
	defer cancel()

	advice, err := w.service.Remediate(ctx, identity, remediate)
	if err != nil {
		return w.failure(ctx, request, err)
	}

	// gateway failures are data for the caller, not request errors
	resp, err := handler.NewSuccessResponse(request.ID, advice)
	if err != nil {
		return w.failure(ctx, request, err)
	}
	return resp
}

func (w *ComplianceWorker) chat(ctx context.Context, request handler.Request, identity domain.Identity) handler.Response {
	var req ChatRequest
	if err := request.Unmarshal(&req); err != nil {
		return w.invalidPayload(ctx, request, err)
	}

	conv := advisor.Reduce(req.Conversation, advisor.UserSubmitted{Content: req.Message})
	if !conv.Pending {
		return w.failure(ctx, request, domain.NewValidationError("message is empty or a reply is still pending"))
	}

	ctx, cancel := w.adviceContext(ctx)
	defer cancel()

	next, err := w.service.Continue(ctx, identity, conv)
	if err != nil {
		return w.failure(ctx, request, err)
	}

	resp, err := handler.NewSuccessResponse(request.ID, next)
	if err != nil {
		return w.failure(ctx, request, err)
	}
	return resp
}

func (w *ComplianceWorker) adviceContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if w.adviceTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, w.adviceTimeout)
}

func (w *ComplianceWorker) invalidPayload(ctx context.Context, request handler.Request, err error) handler.Response {
	w.metrics.RecordError("worker_process", "invalid_payload")
	w.logger.Warn(ctx, "Failed to parse request payload", types.Fields{
		"request_id": request.ID,
		"error":      err.Error(),
	})
	return handler.NewErrorResponse(request.ID, handler.CodeInvalidRequest, "Failed to parse request payload", err.Error())
}

// failure converts a service error to an error response.
func (w *ComplianceWorker) failure(ctx context.Context, request handler.Request, err error) handler.Response {
	code, message, details := classify(err)
	errorType := categorizeError(err)
	w.metrics.RecordError("worker_process", errorType)

	fields := types.Fields{
		"request_id": request.ID,
		"type":       request.Type,
		"error_type": errorType,
	}
	if code == handler.CodeInternalError || code == handler.CodeLedgerError {
		w.logger.Error(ctx, "Request failed", err, fields)
	} else {
		fields["error"] = err.Error()
		w.logger.Warn(ctx, "Request failed", fields)
	}

	return handler.NewErrorResponse(request.ID, code, message, details)
}

func classify(err error) (code, message, details string) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return handler.CodeTimeout, "Request timed out", ""
	case errors.Is(err, context.Canceled):
		return handler.CodeCancelled, "Request cancelled", ""
	}

	if pe, ok := domain.AsProbeError(err); ok {
		return pe.Code(), pe.Message, pe.SetupSQL
	}
	if de, ok := domain.AsDomainError(err); ok {
		return de.Code, de.Message, ""
	}
	return handler.CodeInternalError, "Internal error", ""
}

// categorizeError maps errors to metric labels.
func categorizeError(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	if pe, ok := domain.AsProbeError(err); ok {
		return "probe_" + string(pe.Kind)
	}
	if de, ok := domain.AsDomainError(err); ok {
		switch de.Code {
		case domain.CodeAuthRequired:
			return "auth_required"
		case domain.CodeValidation:
			return "validation_error"
		case domain.CodeNotFound:
			return "not_found"
		case domain.CodeLedgerError:
			return "ledger_error"
		default:
			return "domain_error"
		}
	}
	return "processing_error"
}

// checkTypeOf normalizes s without validating it; the service rejects
// unknown types after authenticating the caller.
func checkTypeOf(s string) domain.CheckType {
	if ct, err := domain.ParseCheckType(s); err == nil {
		return ct
	}
	return domain.CheckType(s)
}

func identityFrom(request handler.Request) domain.Identity {
	userID, _ := request.GetMetadata(handler.MetadataUserID)
	token, _ := request.GetMetadata(handler.MetadataAuthToken)
	return domain.Identity{UserID: userID, Token: token}
}

// Health pings every registered dependency.
func (w *ComplianceWorker) Health(ctx context.Context) error {
	for _, p := range w.pingers {
		if err := p.Ping(ctx); err != nil {
			w.metrics.RecordError("health_check", "dependency_unavailable")
			return fmt.Errorf("dependency unhealthy: %w", err)
		}
	}
	w.metrics.RecordSuccess("health_check")
	return nil
}
