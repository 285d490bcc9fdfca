package evaluate

import (
	"fmt"
	"strings"

	"compliance/config"
)

// Policy holds the thresholds a check must meet to pass.
type Policy struct {
	// MFAMinPercentage is the minimum share of users with a verified factor.
	MFAMinPercentage float64
	// RLSMinPercentage is the minimum share of public tables with RLS.
	// At 100 only full coverage passes.
	RLSMinPercentage float64
	// PITRWALLevels are the accepted wal_level values when archiving is on.
	PITRWALLevels []string
}

// Profile names a predefined policy.
type Profile string

const (
	ProfileBaseline Profile = "baseline"
	ProfileStrict   Profile = "strict"
)

// Normalize lowercases a profile name and maps "" to baseline.
func (p Profile) Normalize() Profile {
	n := Profile(strings.ToLower(strings.TrimSpace(string(p))))
	if n == "" {
		return ProfileBaseline
	}
	return n
}

// BaselinePolicy is the default policy: 80% MFA, full RLS coverage and
// archiving with wal_level replica.
func BaselinePolicy() Policy {
	return Policy{
		MFAMinPercentage: 80,
		RLSMinPercentage: 100,
		PITRWALLevels:    []string{"replica"},
	}
}

// StrictPolicy additionally requires every user to have MFA.
func StrictPolicy() Policy {
	p := BaselinePolicy()
	p.MFAMinPercentage = 100
	return p
}

// PolicyFor returns the policy of a named profile.
func PolicyFor(profile Profile) (Policy, error) {
	switch profile.Normalize() {
	case ProfileBaseline:
		return BaselinePolicy(), nil
	case ProfileStrict:
		return StrictPolicy(), nil
	default:
		return Policy{}, fmt.Errorf("unknown policy profile %q", profile)
	}
}

// PolicyFromConfig resolves the configured profile and applies overrides.
func PolicyFromConfig(cfg config.PolicyConfig) (Policy, error) {
	p, err := PolicyFor(Profile(cfg.Profile))
	if err != nil {
		return Policy{}, err
	}

	if cfg.MFAMinPercentage != nil {
		p.MFAMinPercentage = *cfg.MFAMinPercentage
	}
	if cfg.RLSMinPercentage != nil {
		p.RLSMinPercentage = *cfg.RLSMinPercentage
	}
	if len(cfg.PITRWALLevels) > 0 {
		levels := make([]string, 0, len(cfg.PITRWALLevels))
		for _, l := range cfg.PITRWALLevels {
			if l = strings.TrimSpace(l); l != "" {
				levels = append(levels, l)
			}
		}
		if len(levels) > 0 {
			p.PITRWALLevels = levels
		}
	}

	return p, nil
}

func (p Policy) acceptsWALLevel(level string) bool {
	for _, l := range p.PITRWALLevels {
		if l == level {
			return true
		}
	}
	return false
}
