// Package probe fetches raw policy state from target projects over their
// admin REST surface.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	httpclient "compliance/infrastructure/http"
	"compliance/internal/domain"
	"compliance/observability"
	"compliance/observability/types"
)

// PostgREST codes reported when an RPC does not exist.
const (
	codeFunctionNotFound  = "PGRST202"
	codeUndefinedFunction = "42883"
)

// HTTPClient is the request surface probes need from the outbound client.
type HTTPClient interface {
	Do(ctx context.Context, method, url string, headers map[string]string, body []byte) (*httpclient.Response, error)
}

// NewProbeClients returns one client per supported check type.
func NewProbeClients(client HTTPClient, provider observability.Provider) map[domain.CheckType]domain.ProbeClient {
	return map[domain.CheckType]domain.ProbeClient{
		domain.CheckMFA:  NewMFAProbe(client, provider),
		domain.CheckRLS:  NewRLSProbe(client, provider),
		domain.CheckPITR: NewPITRProbe(client, provider),
	}
}

type postgrestError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Hint    string `json:"hint"`
}

func authHeaders(credential string) map[string]string {
	return map[string]string{
		"apikey":        credential,
		"Authorization": "Bearer " + credential,
	}
}

func endpoint(projectURL, path string) string {
	return strings.TrimRight(projectURL, "/") + path
}

// send performs the request and turns transport and status failures into
// probe errors. A nil error means a 2xx response.
func send(ctx context.Context, client HTTPClient, ct domain.CheckType, method, url, credential string, body []byte) (*httpclient.Response, error) {
	resp, err := client.Do(ctx, method, url, authHeaders(credential), body)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.NewProbeError(domain.ProbeUnreachable, ct, "target project is unreachable", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	return nil, classifyStatus(ct, resp)
}

func classifyStatus(ct domain.CheckType, resp *httpclient.Response) error {
	var pgErr postgrestError
	_ = json.Unmarshal(resp.Body, &pgErr)

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		pe := domain.NewProbeError(domain.ProbeUnauthorized, ct, "target project rejected the admin credential", nil)
		pe.StatusCode = resp.StatusCode
		return pe

	case domain.SetupFunctionName(ct) != "" &&
		(resp.StatusCode == http.StatusNotFound || pgErr.Code == codeFunctionNotFound || pgErr.Code == codeUndefinedFunction):
		return domain.NewMissingFunctionError(ct, resp.StatusCode)

	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		pe := domain.NewProbeError(domain.ProbeUnreachable, ct, fmt.Sprintf("target project returned status %d", resp.StatusCode), nil)
		pe.StatusCode = resp.StatusCode
		return pe

	default:
		msg := fmt.Sprintf("unexpected status %d", resp.StatusCode)
		if pgErr.Message != "" {
			msg += ": " + pgErr.Message
		}
		pe := domain.NewProbeError(domain.ProbeBadResponse, ct, msg, nil)
		pe.StatusCode = resp.StatusCode
		return pe
	}
}

func badResponse(ct domain.CheckType, err error) error {
	return domain.NewProbeError(domain.ProbeBadResponse, ct, "could not decode target response", err)
}

// observe records the outcome of a probe run.
func observe(ctx context.Context, logger types.Logger, metrics types.Metrics, ct domain.CheckType, err error) {
	op := "probe_" + string(ct)
	if err == nil {
		metrics.RecordSuccess(op)
		return
	}

	if pe, ok := domain.AsProbeError(err); ok {
		metrics.RecordError(op, string(pe.Kind))
		logger.Warn(ctx, "Probe failed", types.Fields{
			"check_type":  string(ct),
			"kind":        string(pe.Kind),
			"status_code": pe.StatusCode,
			"error":       err.Error(),
		})
		return
	}

	metrics.RecordError(op, "cancelled")
}
