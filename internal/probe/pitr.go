package probe

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"compliance/internal/domain"
	"compliance/observability"
	"compliance/observability/types"
)

var errEmptySettings = errors.New("empty settings result")

type pitrSettings struct {
	Enabled        bool    `json:"enabled"`
	WALLevel       *string `json:"wal_level"`
	ArchiveCommand *string `json:"archive_command"`
}

// PITRProbe calls check_pitr_status on the target.
type PITRProbe struct {
	client  HTTPClient
	logger  types.Logger
	metrics types.Metrics
}

func NewPITRProbe(client HTTPClient, provider observability.Provider) *PITRProbe {
	return &PITRProbe{
		client:  client,
		logger:  provider.Logger("probe.pitr"),
		metrics: provider.Metrics("probe.pitr"),
	}
}

func (p *PITRProbe) CheckType() domain.CheckType {
	return domain.CheckPITR
}

func (p *PITRProbe) Probe(ctx context.Context, projectURL, credential string) (domain.RawStatus, error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordDuration("probe_pitr", time.Since(start).Seconds())
	}()

	status, err := p.fetch(ctx, projectURL, credential)
	observe(ctx, p.logger, p.metrics, domain.CheckPITR, err)
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (p *PITRProbe) fetch(ctx context.Context, projectURL, credential string) (*domain.PITRStatus, error) {
	url := endpoint(projectURL, "/rest/v1/rpc/"+domain.SetupFunctionName(domain.CheckPITR))

	resp, err := send(ctx, p.client, domain.CheckPITR, http.MethodPost, url, credential, []byte("{}"))
	if err != nil {
		return nil, err
	}

	settings, err := decodeSettings(resp.Body)
	if err != nil {
		return nil, badResponse(domain.CheckPITR, err)
	}

	status := &domain.PITRStatus{Enabled: settings.Enabled}
	if settings.WALLevel != nil {
		status.WALLevel = *settings.WALLevel
	}
	if settings.ArchiveCommand != nil {
		status.ArchiveCommand = *settings.ArchiveCommand
	}
	return status, nil
}

// decodeSettings accepts the json object or a single element array, which
// PostgREST returns depending on the function's declared return type.
func decodeSettings(body []byte) (*pitrSettings, error) {
	body = bytes.TrimSpace(body)
	if len(body) > 0 && body[0] == '[' {
		var rows []pitrSettings
		if err := json.Unmarshal(body, &rows); err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, errEmptySettings
		}
		return &rows[0], nil
	}

	var s pitrSettings
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
