package domain

import (
	"encoding/json"
	"fmt"
)

// CheckMetrics is the tagged union of per-policy metrics. The concrete
// type is selected by CheckType.
type CheckMetrics interface {
	CheckType() CheckType
}

// MFAMetrics summarizes multi-factor adoption across a project's users.
type MFAMetrics struct {
	TotalUsers        int      `json:"totalUsers"`
	MFAEnabledUsers   int      `json:"mfaEnabledUsers"`
	Percentage        float64  `json:"percentage"`
	NonCompliantUsers []string `json:"nonCompliantUsers,omitempty"`
}

func (*MFAMetrics) CheckType() CheckType { return CheckMFA }

// TableStatus is the row level security flag of one public table.
type TableStatus struct {
	Name   string `json:"name"`
	HasRLS bool   `json:"hasRLS"`
}

// RLSMetrics summarizes row level security coverage across public tables.
type RLSMetrics struct {
	TotalTables      int           `json:"totalTables"`
	RLSEnabledTables int           `json:"rlsEnabledTables"`
	Percentage       float64       `json:"percentage"`
	Tables           []TableStatus `json:"tables"`
}

func (*RLSMetrics) CheckType() CheckType { return CheckRLS }

// TablesMissingRLS returns the tables without RLS in their original order.
func (m *RLSMetrics) TablesMissingRLS() []string {
	var names []string
	for _, t := range m.Tables {
		if !t.HasRLS {
			names = append(names, t.Name)
		}
	}
	return names
}

// PITRMetrics describes point-in-time recovery readiness.
type PITRMetrics struct {
	Enabled        bool   `json:"enabled"`
	WALLevel       string `json:"wal_level"`
	ArchiveCommand string `json:"archive_command"`
}

func (*PITRMetrics) CheckType() CheckType { return CheckPITR }

// MarshalMetrics encodes metrics for the ledger details column.
func MarshalMetrics(m CheckMetrics) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("metrics are required")
	}
	return json.Marshal(m)
}

// UnmarshalMetrics decodes a details payload into the variant owned by ct.
func UnmarshalMetrics(ct CheckType, data []byte) (CheckMetrics, error) {
	var m CheckMetrics
	switch ct {
	case CheckMFA:
		m = &MFAMetrics{}
	case CheckRLS:
		m = &RLSMetrics{}
	case CheckPITR:
		m = &PITRMetrics{}
	default:
		return nil, fmt.Errorf("unknown check type %q", ct)
	}

	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("failed to decode %s metrics: %w", ct, err)
	}
	return m, nil
}

// UnmarshalJSON decodes a check whose metrics variant follows check_type.
func (c *ComplianceCheck) UnmarshalJSON(data []byte) error {
	type alias ComplianceCheck
	var raw struct {
		alias
		Metrics json.RawMessage `json:"metrics"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	*c = ComplianceCheck(raw.alias)
	c.Metrics = nil
	if len(raw.Metrics) == 0 || string(raw.Metrics) == "null" {
		return nil
	}

	m, err := UnmarshalMetrics(c.CheckType, raw.Metrics)
	if err != nil {
		return err
	}
	c.Metrics = m
	return nil
}
