// Package service runs compliance checks end to end and serves their
// history and remediation.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"compliance/infrastructure/queue"
	"compliance/infrastructure/storage"
	"compliance/internal/advisor"
	"compliance/internal/domain"
	"compliance/internal/evaluate"
	"compliance/observability"
	"compliance/observability/types"

	"github.com/google/uuid"
)

// EventCheckRecorded is published after every appended check.
const EventCheckRecorded = "compliance.check.recorded"

// Evaluator scores raw probe output.
type Evaluator interface {
	Evaluate(checkType domain.CheckType, raw domain.RawStatus) (evaluate.Evaluation, error)
}

// Advisor drafts remediation through the LLM gateway.
type Advisor interface {
	RequestFix(ctx context.Context, token, prompt string) advisor.Advice
	Continue(ctx context.Context, token string, conv advisor.Conversation) advisor.Conversation
}

// Dependencies are the collaborators of CheckService. Publisher and
// Archive may be nil.
type Dependencies struct {
	Credentials  domain.CredentialStore
	Probes       map[domain.CheckType]domain.ProbeClient
	Evaluator    Evaluator
	Ledger       domain.AuditLedger
	Advisor      Advisor
	Publisher    queue.Publisher
	Archive      storage.Archive
	EventTarget  string
	HistoryLimit int
}

// CheckRecordedEvent is the body of EventCheckRecorded.
type CheckRecordedEvent struct {
	Event     string           `json:"event"`
	CheckID   string           `json:"check_id"`
	ProjectID string           `json:"project_id"`
	CheckType domain.CheckType `json:"check_type"`
	Passed    bool             `json:"passed"`
	Verdict   domain.Verdict   `json:"verdict"`
	CreatedAt time.Time        `json:"created_at"`
	CreatedBy string           `json:"created_by"`
}

// RemediateRequest selects the metrics to remediate. When Metrics is nil
// the newest ledger row for the project and type is used.
type RemediateRequest struct {
	ProjectID string
	CheckType domain.CheckType
	Metrics   domain.CheckMetrics
}

// CheckService runs probe, evaluate and append for one project and check
// type at a time. It holds no per-run state.
type CheckService struct {
	deps    Dependencies
	logger  types.Logger
	metrics types.Metrics
}

func NewCheckService(deps Dependencies, provider observability.Provider) *CheckService {
	if deps.HistoryLimit <= 0 {
		deps.HistoryLimit = 10
	}
	return &CheckService{
		deps:    deps,
		logger:  provider.Logger("service"),
		metrics: provider.Metrics("service"),
	}
}

// Run probes the project, scores the result and appends it to the ledger.
// A probe failure returns an indeterminate result together with the
// *domain.ProbeError and writes nothing.
func (s *CheckService) Run(ctx context.Context, identity domain.Identity, projectID string, checkType domain.CheckType) (*domain.CheckResult, error) {
	s.metrics.StartOperation("check")
	defer s.metrics.EndOperation("check")
	start := time.Now()
	defer func() {
		s.metrics.RecordDuration("check", time.Since(start).Seconds())
	}()

	project, err := s.authorize(ctx, identity, projectID, checkType)
	if err != nil {
		s.metrics.RecordError("check", errorType(err))
		return nil, err
	}

	ctx = context.WithValue(ctx, types.ProjectIDKey, projectID)
	logger := s.logger.WithFields(types.Fields{
		"check_type": string(checkType),
		"user_id":    identity.UserID,
	})

	probe, ok := s.deps.Probes[checkType]
	if !ok {
		s.metrics.RecordError("check", "no_probe")
		return nil, fmt.Errorf("no probe registered for %s", checkType)
	}

	raw, err := probe.Probe(ctx, project.URL, project.AdminCredential)
	if err != nil {
		if pe, ok := domain.AsProbeError(err); ok {
			s.metrics.RecordError("check", "probe_"+string(pe.Kind))
			logger.Warn(ctx, "Check is indeterminate", types.Fields{
				"kind": string(pe.Kind),
			})
			return &domain.CheckResult{Verdict: domain.VerdictIndeterminate, ProbeError: pe}, err
		}
		s.metrics.RecordError("check", errorType(err))
		return nil, err
	}

	evaluation, err := s.deps.Evaluator.Evaluate(checkType, raw)
	if err != nil {
		s.metrics.RecordError("check", "evaluation_failed")
		return nil, fmt.Errorf("evaluate %s: %w", checkType, err)
	}

	// nothing is written once the caller has gone away
	if err := ctx.Err(); err != nil {
		s.metrics.RecordError("check", errorType(err))
		return nil, err
	}

	check := &domain.ComplianceCheck{
		ProjectID: projectID,
		CheckType: checkType,
		Passed:    evaluation.Passed,
		Metrics:   evaluation.Metrics,
		CreatedBy: identity.UserID,
	}

	if _, err := s.deps.Ledger.Append(ctx, check); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			s.metrics.RecordError("check", errorType(ctxErr))
			return nil, ctxErr
		}
		s.metrics.RecordError("check", "ledger_error")
		logger.Error(ctx, "Failed to append check", err, nil)
		return nil, domain.NewLedgerError("failed to record compliance check", err)
	}

	s.notify(ctx, check)

	s.metrics.RecordSuccess("check")
	logger.Info(ctx, "Check recorded", types.Fields{
		"check_id": check.ID,
		"passed":   check.Passed,
	})

	return &domain.CheckResult{Verdict: check.Verdict(), Check: check}, nil
}

// History returns up to limit checks, newest first, with their trend.
// limit defaults to and is capped at the configured history limit.
func (s *CheckService) History(ctx context.Context, identity domain.Identity, projectID string, checkType domain.CheckType, limit int) (*domain.History, error) {
	if _, err := s.authorize(ctx, identity, projectID, checkType); err != nil {
		s.metrics.RecordError("history", errorType(err))
		return nil, err
	}

	if limit <= 0 || limit > s.deps.HistoryLimit {
		limit = s.deps.HistoryLimit
	}

	checks, err := s.deps.Ledger.List(ctx, projectID, checkType, limit)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		s.metrics.RecordError("history", "ledger_error")
		return nil, domain.NewLedgerError("failed to load compliance history", err)
	}

	s.metrics.RecordSuccess("history")
	return &domain.History{
		ProjectID: projectID,
		CheckType: checkType,
		Checks:    checks,
		Trend:     domain.TrendOf(checks),
	}, nil
}

// Remediate composes the prompt for a check and asks the advisor for a
// fix. Gateway failures are reported inside the returned Advice.
func (s *CheckService) Remediate(ctx context.Context, identity domain.Identity, req RemediateRequest) (*advisor.Advice, error) {
	if !identity.Authenticated() {
		s.metrics.RecordError("fix", "auth_required")
		return nil, domain.NewAuthError()
	}
	if !req.CheckType.Valid() {
		s.metrics.RecordError("fix", "validation_error")
		return nil, domain.NewUnsupportedCheckTypeError(string(req.CheckType))
	}

	metrics := req.Metrics
	if metrics == nil {
		latest, err := s.latest(ctx, identity, req.ProjectID, req.CheckType)
		if err != nil {
			s.metrics.RecordError("fix", errorType(err))
			return nil, err
		}
		metrics = latest.Metrics
	}

	prompt, err := advisor.ComposePrompt(req.CheckType, metrics)
	if err != nil {
		s.metrics.RecordError("fix", "validation_error")
		return nil, err
	}

	advice := s.deps.Advisor.RequestFix(ctx, identity.Token, prompt)
	if advice.Failed {
		s.metrics.RecordError("fix", "gateway_error")
	} else {
		s.metrics.RecordSuccess("fix")
	}
	return &advice, nil
}

// Continue sends a pending conversation to the advisor.
func (s *CheckService) Continue(ctx context.Context, identity domain.Identity, conv advisor.Conversation) (advisor.Conversation, error) {
	if !identity.Authenticated() {
		s.metrics.RecordError("chat", "auth_required")
		return conv, domain.NewAuthError()
	}

	next := s.deps.Advisor.Continue(ctx, identity.Token, conv)
	if next.Error != "" {
		s.metrics.RecordError("chat", "gateway_error")
	} else {
		s.metrics.RecordSuccess("chat")
	}
	return next, nil
}

func (s *CheckService) latest(ctx context.Context, identity domain.Identity, projectID string, checkType domain.CheckType) (*domain.ComplianceCheck, error) {
	if _, err := s.authorize(ctx, identity, projectID, checkType); err != nil {
		return nil, err
	}

	checks, err := s.deps.Ledger.List(ctx, projectID, checkType, 1)
	if err != nil {
		return nil, domain.NewLedgerError("failed to load latest check", err)
	}
	if len(checks) == 0 {
		return nil, domain.NewNotFoundError(fmt.Sprintf("no %s check recorded for project %s", checkType, projectID))
	}
	return &checks[0], nil
}

// authorize validates the request and loads a project owned by the caller.
// Projects owned by someone else are reported as not found.
func (s *CheckService) authorize(ctx context.Context, identity domain.Identity, projectID string, checkType domain.CheckType) (*domain.Project, error) {
	if !identity.Authenticated() {
		return nil, domain.NewAuthError()
	}
	if strings.TrimSpace(projectID) == "" {
		return nil, domain.NewValidationError("project_id is required")
	}
	if !validProjectID(projectID) {
		return nil, domain.NewValidationError(fmt.Sprintf("project_id %q is not a valid UUID", projectID))
	}
	if !checkType.Valid() {
		return nil, domain.NewUnsupportedCheckTypeError(string(checkType))
	}

	project, err := s.deps.Credentials.Get(ctx, projectID)
	if err != nil {
		if _, ok := domain.AsDomainError(err); ok {
			return nil, err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("load project credentials: %w", err)
	}

	if project.UserID != "" && project.UserID != identity.UserID {
		return nil, domain.NewNotFoundError(fmt.Sprintf("project %s not found", projectID))
	}
	return project, nil
}

// validProjectID accepts only the canonical 36 character UUID form, which
// is what the credential and ledger tables key on.
func validProjectID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	}
	if de, ok := domain.AsDomainError(err); ok {
		return strings.ToLower(de.Code)
	}
	return "internal_error"
}
