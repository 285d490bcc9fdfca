package probe

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"compliance/internal/domain"
	"compliance/observability"
	"compliance/observability/types"
)

type rlsRow struct {
	TableName string `json:"table_name"`
	HasRLS    *bool  `json:"has_rls"`
}

// RLSProbe calls check_rls_status on the target.
type RLSProbe struct {
	client  HTTPClient
	logger  types.Logger
	metrics types.Metrics
}

func NewRLSProbe(client HTTPClient, provider observability.Provider) *RLSProbe {
	return &RLSProbe{
		client:  client,
		logger:  provider.Logger("probe.rls"),
		metrics: provider.Metrics("probe.rls"),
	}
}

func (p *RLSProbe) CheckType() domain.CheckType {
	return domain.CheckRLS
}

func (p *RLSProbe) Probe(ctx context.Context, projectURL, credential string) (domain.RawStatus, error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordDuration("probe_rls", time.Since(start).Seconds())
	}()

	status, err := p.fetch(ctx, projectURL, credential)
	observe(ctx, p.logger, p.metrics, domain.CheckRLS, err)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (p *RLSProbe) fetch(ctx context.Context, projectURL, credential string) (*domain.RLSStatus, error) {
	url := endpoint(projectURL, "/rest/v1/rpc/"+domain.SetupFunctionName(domain.CheckRLS))

	resp, err := send(ctx, p.client, domain.CheckRLS, http.MethodPost, url, credential, []byte("{}"))
	if err != nil {
		return nil, err
	}

	var rows []rlsRow
	if err := json.Unmarshal(resp.Body, &rows); err != nil {
		return nil, badResponse(domain.CheckRLS, err)
	}

	status := &domain.RLSStatus{Tables: make([]domain.TableStatus, 0, len(rows))}
	for _, r := range rows {
		status.Tables = append(status.Tables, domain.TableStatus{
			Name:   r.TableName,
			HasRLS: r.HasRLS != nil && *r.HasRLS,
		})
	}
	return status, nil
}
