package domain

import "context"

// CredentialStore resolves a project id to its target URL and credential.
type CredentialStore interface {
	Get(ctx context.Context, projectID string) (*Project, error)
}

// AuditLedger is the append-only store of check results. There is no
// update or delete operation.
type AuditLedger interface {
	Append(ctx context.Context, check *ComplianceCheck) (string, error)
	List(ctx context.Context, projectID string, checkType CheckType, limit int) ([]ComplianceCheck, error)
}

// ProbeClient fetches the raw status of one policy from a target project.
type ProbeClient interface {
	CheckType() CheckType
	Probe(ctx context.Context, projectURL, credential string) (RawStatus, error)
}
