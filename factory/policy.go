/*
Package factory provides JSON to Go configuration conversion and the
in-memory configuration stores built from it.

PURPOSE:
  Converts JSON definitions into leave.LeaveTypeConfiguration and
  approval.WorkflowConfiguration objects. This enables configuration
  without code changes - HR can define leave types and approval workflows
  in JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify configurations
  - Easy integration with admin UI
  - Version control for configuration definitions
  - Database storage of configs

JSON SCHEMA (leave type):
  {
    "code": "annual",
    "region": "IN",
    "name": "Annual Leave",
    "default_entitlement": 18,
    "max_carry_forward": 5,
    "allow_negative_balance": false,
    "min_advance_notice_days": 3,
    "max_consecutive_days": 15,
    "granularity": {"full_day": true, "half_day": true}
  }

USAGE:
  policies, err := factory.ParsePolicies(jsonStr)
  store := factory.NewPolicySet(policies...)

  // Or from presets
  store := factory.NewPolicySet(factory.StandardPolicies("IN")...)

SEE ALSO:
  - leave/policy.go: LeaveTypeConfiguration definition
  - workflow.go: Workflow JSON schema and presets
  - directory.go: Static employee directory for tests and demos
*/
package factory

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a leave-type configuration.
type PolicyJSON struct {
	Code                   string           `json:"code"`
	Region                 string           `json:"region"`
	Name                   string           `json:"name"`
	DefaultEntitlement     float64          `json:"default_entitlement"`
	MaxCarryForward        float64          `json:"max_carry_forward,omitempty"`
	AllowNegativeBalance   bool             `json:"allow_negative_balance,omitempty"`
	NegativeBalanceLimit   float64          `json:"negative_balance_limit,omitempty"`
	RequiresDocumentation  bool             `json:"requires_documentation,omitempty"`
	DocumentationThreshold float64          `json:"documentation_threshold,omitempty"`
	MinAdvanceNoticeDays   int              `json:"min_advance_notice_days,omitempty"`
	MaxConsecutiveDays     int              `json:"max_consecutive_days,omitempty"`
	Granularity            *GranularityJSON `json:"granularity,omitempty"`
	ValidFrom              string           `json:"valid_from,omitempty"`
	ValidTo                string           `json:"valid_to,omitempty"`
}

// GranularityJSON flags the accepted request durations.
type GranularityJSON struct {
	FullDay    bool `json:"full_day"`
	HalfDay    bool `json:"half_day,omitempty"`
	QuarterDay bool `json:"quarter_day,omitempty"`
	Hourly     bool `json:"hourly,omitempty"`
}

// ParsePolicies parses a JSON array of leave-type configurations.
func ParsePolicies(jsonStr string) ([]leave.LeaveTypeConfiguration, error) {
	var pjs []PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pjs); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}

	var configs []leave.LeaveTypeConfiguration
	for _, pj := range pjs {
		config, err := PolicyFromJSON(pj)
		if err != nil {
			return nil, err
		}
		configs = append(configs, config)
	}
	return configs, nil
}

// PolicyFromJSON converts PolicyJSON to a LeaveTypeConfiguration.
func PolicyFromJSON(pj PolicyJSON) (leave.LeaveTypeConfiguration, error) {
	if pj.Code == "" {
		return leave.LeaveTypeConfiguration{}, fmt.Errorf("leave type requires a code")
	}
	if pj.DefaultEntitlement < 0 {
		return leave.LeaveTypeConfiguration{}, fmt.Errorf("leave type %s: negative entitlement", pj.Code)
	}

	config := leave.LeaveTypeConfiguration{
		Code:                   leave.LeaveTypeCode(pj.Code),
		Region:                 pj.Region,
		Name:                   pj.Name,
		DefaultEntitlement:     leave.Days(pj.DefaultEntitlement),
		MaxCarryForward:        leave.Days(pj.MaxCarryForward),
		AllowNegativeBalance:   pj.AllowNegativeBalance,
		NegativeBalanceLimit:   leave.Days(pj.NegativeBalanceLimit),
		RequiresDocumentation:  pj.RequiresDocumentation,
		DocumentationThreshold: leave.Days(pj.DocumentationThreshold),
		MinAdvanceNoticeDays:   pj.MinAdvanceNoticeDays,
		MaxConsecutiveDays:     pj.MaxConsecutiveDays,
		DurationGranularity:    parseGranularity(pj.Granularity),
	}

	var err error
	if config.ValidFrom, err = parseOptionalDate(pj.ValidFrom); err != nil {
		return config, fmt.Errorf("leave type %s: %w", pj.Code, err)
	}
	if config.ValidTo, err = parseOptionalDate(pj.ValidTo); err != nil {
		return config, fmt.Errorf("leave type %s: %w", pj.Code, err)
	}
	return config, nil
}

func parseGranularity(gj *GranularityJSON) leave.Granularity {
	if gj == nil {
		// Default: whole days only.
		return leave.Granularity{FullDay: true}
	}
	return leave.Granularity{
		FullDay:    gj.FullDay,
		HalfDay:    gj.HalfDay,
		QuarterDay: gj.QuarterDay,
		Hourly:     gj.Hourly,
	}
}

func parseOptionalDate(s string) (leave.Date, error) {
	if s == "" {
		return leave.Date{}, nil
	}
	return leave.ParseDate(s)
}

// =============================================================================
// POLICY SET - In-memory PolicyStore
// =============================================================================

// PolicySet is an in-memory leave.PolicyStore. Configurations are loaded
// once at startup; the set is immutable afterwards.
type PolicySet struct {
	configs []leave.LeaveTypeConfiguration
}

func NewPolicySet(configs ...leave.LeaveTypeConfiguration) *PolicySet {
	return &PolicySet{configs: configs}
}

// Policy returns the configuration for (code, region) valid on asOf. A
// region-specific configuration wins over a blank-region fallback.
func (s *PolicySet) Policy(ctx context.Context, code leave.LeaveTypeCode, region string, asOf leave.Date) (*leave.LeaveTypeConfiguration, error) {
	var fallback *leave.LeaveTypeConfiguration
	for i := range s.configs {
		c := s.configs[i]
		if c.Code != code || !c.ValidAt(asOf) {
			continue
		}
		if c.Region == region {
			return &c, nil
		}
		if c.Region == "" && fallback == nil {
			fallback = &c
		}
	}
	if fallback != nil {
		return fallback, nil
	}
	return nil, fmt.Errorf("leave type %s in region %q as of %s: %w", code, region, asOf, leave.ErrPolicyNotFound)
}

// Policies returns every configuration valid on asOf for the region,
// region-specific entries shadowing blank-region fallbacks per code.
func (s *PolicySet) Policies(ctx context.Context, region string, asOf leave.Date) ([]leave.LeaveTypeConfiguration, error) {
	byCode := make(map[leave.LeaveTypeCode]leave.LeaveTypeConfiguration)
	for _, c := range s.configs {
		if !c.ValidAt(asOf) {
			continue
		}
		if c.Region != region && c.Region != "" {
			continue
		}
		existing, seen := byCode[c.Code]
		if seen && existing.Region == region && c.Region == "" {
			continue // keep the region-specific one
		}
		byCode[c.Code] = c
	}

	var out []leave.LeaveTypeConfiguration
	for _, c := range byCode {
		out = append(out, c)
	}
	return out, nil
}

// =============================================================================
// PRESET POLICIES
// =============================================================================

// StandardPolicies returns a ready-to-use configuration set for one
// region: annual, sick, and personal leave with common defaults.
func StandardPolicies(region string) []leave.LeaveTypeConfiguration {
	return []leave.LeaveTypeConfiguration{
		{
			Code:                 leave.LeaveAnnual,
			Region:               region,
			Name:                 "Annual Leave",
			DefaultEntitlement:   leave.DaysFromInt(18),
			MaxCarryForward:      leave.DaysFromInt(5),
			MinAdvanceNoticeDays: 3,
			MaxConsecutiveDays:   15,
			DurationGranularity:  leave.Granularity{FullDay: true, HalfDay: true},
		},
		{
			Code:                   leave.LeaveSick,
			Region:                 region,
			Name:                   "Sick Leave",
			DefaultEntitlement:     leave.DaysFromInt(12),
			AllowNegativeBalance:   true,
			NegativeBalanceLimit:   leave.DaysFromInt(3),
			RequiresDocumentation:  true,
			DocumentationThreshold: leave.DaysFromInt(3),
			DurationGranularity:    leave.Granularity{FullDay: true, HalfDay: true},
		},
		{
			Code:                leave.LeavePersonal,
			Region:              region,
			Name:                "Personal Leave",
			DefaultEntitlement:  leave.DaysFromInt(6),
			DurationGranularity: leave.Granularity{FullDay: true, HalfDay: true, QuarterDay: true},
		},
	}
}
