// Package advisor drafts remediation guidance for failed checks by sending
// a deterministic prompt to the LLM gateway.
package advisor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	httpclient "compliance/infrastructure/http"
	"compliance/internal/domain"
	"compliance/observability"
	"compliance/observability/types"
)

// Failure texts returned in place of advice.
const (
	MsgAuthRequired = "Authentication required. Please sign in."
	MsgUnexpected   = "An error occurred while generating the fix. Please try again."
)

func msgGatewayStatus(status int) string {
	return fmt.Sprintf("Failed to generate fix (%d). Please try again.", status)
}

// HTTPClient is the request surface the advisor needs.
type HTTPClient interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*httpclient.Response, error)
}

// Advice is the result of a gateway exchange. When Failed is set, Text is
// a human readable failure message and Err holds the cause.
type Advice struct {
	Text   string `json:"text"`
	Role   string `json:"role,omitempty"`
	Failed bool   `json:"failed"`
	Err    error  `json:"-"`
}

type gatewayRequest struct {
	Messages []Message `json:"messages"`
}

type gatewayResponse struct {
	Message string `json:"message"`
	Role    string `json:"role"`
}

// Advisor talks to the LLM gateway on behalf of a signed-in caller.
type Advisor struct {
	client     HTTPClient
	gatewayURL string
	logger     types.Logger
	metrics    types.Metrics
}

func NewAdvisor(client HTTPClient, gatewayURL string, provider observability.Provider) *Advisor {
	return &Advisor{
		client:     client,
		gatewayURL: gatewayURL,
		logger:     provider.Logger("advisor"),
		metrics:    provider.Metrics("advisor"),
	}
}

// RequestFix sends the persona and prompt and returns the completion
// verbatim. It never returns an error; failures come back as Advice with
// Failed set.
func (a *Advisor) RequestFix(ctx context.Context, token, prompt string) Advice {
	return a.send(ctx, "fix", token, []Message{
		{Role: RoleSystem, Content: Persona},
		{Role: RoleUser, Content: prompt},
	})
}

// Continue sends a pending conversation and reduces the reply into it.
// Conversations without a pending user turn are returned unchanged.
func (a *Advisor) Continue(ctx context.Context, token string, conv Conversation) Conversation {
	if !conv.Pending {
		return conv
	}

	messages := make([]Message, 0, len(conv.Messages)+1)
	messages = append(messages, Message{Role: RoleSystem, Content: Persona})
	messages = append(messages, conv.Messages...)

	advice := a.send(ctx, "chat", token, messages)
	if advice.Failed {
		return Reduce(conv, RequestFailed{Error: advice.Text})
	}
	return Reduce(conv, AssistantReplied{Content: advice.Text})
}

func (a *Advisor) send(ctx context.Context, op, token string, messages []Message) Advice {
	if strings.TrimSpace(token) == "" {
		a.metrics.RecordError(op, "auth_required")
		return Advice{Text: MsgAuthRequired, Failed: true, Err: domain.NewAuthError()}
	}

	start := time.Now()
	defer func() {
		a.metrics.RecordDuration(op, time.Since(start).Seconds())
	}()

	normalized := make([]Message, len(messages))
	for i, m := range messages {
		normalized[i] = Message{Role: NormalizeRole(m.Role), Content: m.Content}
	}

	body, err := json.Marshal(gatewayRequest{Messages: normalized})
	if err != nil {
		return a.fail(ctx, op, MsgUnexpected, err)
	}
	a.metrics.RecordPayloadSize("gateway_request", int64(len(body)))

	resp, err := a.client.Do(ctx, http.MethodPost, a.gatewayURL, map[string]string{
		"Authorization": "Bearer " + token,
	}, body)
	if err != nil {
		return a.fail(ctx, op, MsgUnexpected, &domain.GatewayError{Err: err})
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return a.fail(ctx, op, msgGatewayStatus(resp.StatusCode), &domain.GatewayError{Status: resp.StatusCode})
	}

	var out gatewayResponse
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		return a.fail(ctx, op, MsgUnexpected, &domain.GatewayError{Err: err})
	}

	role := out.Role
	if role == "" {
		role = RoleAssistant
	}

	a.metrics.RecordSuccess(op)
	return Advice{Text: out.Message, Role: role}
}

func (a *Advisor) fail(ctx context.Context, op, text string, err error) Advice {
	a.metrics.RecordError(op, "gateway_error")
	a.logger.Error(ctx, "Gateway request failed", err, types.Fields{
		"operation": op,
	})
	return Advice{Text: text, Failed: true, Err: err}
}
