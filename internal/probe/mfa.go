package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"compliance/internal/domain"
	"compliance/observability"
	"compliance/observability/types"
)

const (
	defaultUsersPerPage = 1000
	maxUserPages        = 1000
)

type adminUser struct {
	ID      string `json:"id"`
	Email   string `json:"email"`
	Factors []struct {
		Status string `json:"status"`
	} `json:"factors"`
}

type adminUserPage struct {
	Users []adminUser `json:"users"`
}

// MFAProbe lists every user through the admin API and records whether
// each has at least one verified factor.
type MFAProbe struct {
	client  HTTPClient
	perPage int
	logger  types.Logger
	metrics types.Metrics
}

func NewMFAProbe(client HTTPClient, provider observability.Provider) *MFAProbe {
	return &MFAProbe{
		client:  client,
		perPage: defaultUsersPerPage,
		logger:  provider.Logger("probe.mfa"),
		metrics: provider.Metrics("probe.mfa"),
	}
}

// WithPageSize overrides the admin listing page size.
func (p *MFAProbe) WithPageSize(n int) *MFAProbe {
	if n > 0 {
		p.perPage = n
	}
	return p
}

func (p *MFAProbe) CheckType() domain.CheckType {
	return domain.CheckMFA
}

func (p *MFAProbe) Probe(ctx context.Context, projectURL, credential string) (domain.RawStatus, error) {
	start := time.Now()
	defer func() {
		p.metrics.RecordDuration("probe_mfa", time.Since(start).Seconds())
	}()

	status, err := p.listUsers(ctx, projectURL, credential)
	observe(ctx, p.logger, p.metrics, domain.CheckMFA, err)
	if err != nil {
		return nil, err
	}

	p.logger.Debug(ctx, "MFA probe completed", types.Fields{
		"total_users": len(status.Users),
	})
	return status, nil
}

func (p *MFAProbe) listUsers(ctx context.Context, projectURL, credential string) (*domain.MFAStatus, error) {
	status := &domain.MFAStatus{}

	for page := 1; page <= maxUserPages; page++ {
		url := endpoint(projectURL, fmt.Sprintf("/auth/v1/admin/users?page=%d&per_page=%d", page, p.perPage))

		resp, err := send(ctx, p.client, domain.CheckMFA, http.MethodGet, url, credential, nil)
		if err != nil {
			return nil, err
		}

		var listing adminUserPage
		if err := json.Unmarshal(resp.Body, &listing); err != nil {
			return nil, badResponse(domain.CheckMFA, err)
		}

		for _, u := range listing.Users {
			status.Users = append(status.Users, domain.UserFactors{
				ID:          u.ID,
				Email:       u.Email,
				HasVerified: hasVerifiedFactor(u),
			})
		}

		if len(listing.Users) < p.perPage {
			return status, nil
		}
	}

	return nil, domain.NewProbeError(domain.ProbeBadResponse, domain.CheckMFA,
		fmt.Sprintf("user listing exceeded %d pages", maxUserPages), nil)
}

func hasVerifiedFactor(u adminUser) bool {
	for _, f := range u.Factors {
		if f.Status == "verified" {
			return true
		}
	}
	return false
}
