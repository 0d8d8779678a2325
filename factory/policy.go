/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts JSON policy definitions into ledger.Policy values. Operators can
  switch a deployment between the strict and the lenient rule variants
  without code changes.

JSON SCHEMA:
  {
    "branch": "1234",
    "default_daily_limit": "1000.00",
    "limit_mode": "cumulative",
    "reject_repeated_block": true,
    "allow_delete_with_history": false,
    "account_number_max_attempts": 0
  }

  Every field is optional. Missing fields keep the DefaultPolicy() value.
  default_daily_limit accepts a JSON number or a decimal string.

PRESETS:
  "strict"  DefaultPolicy()
  "lenient" per-withdrawal limit, repeated block is a no-op, accounts with
            history can be deleted

USAGE:
  factory := NewPolicyFactory()

  // From JSON string
  policy, err := factory.ParsePolicy(jsonString)

  // From a preset name or a file path
  policy, err := factory.Load("lenient")
  policy, err := factory.Load("./config/policy.json")

SEE ALSO:
  - ledger/policy.go: Policy type definition
*/
package factory

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/shopspring/decimal"
	"github.com/warp/conta-online/ledger"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a policy.
// Pointer fields distinguish "absent" from the zero value.
type PolicyJSON struct {
	Branch                   *string          `json:"branch,omitempty"`
	DefaultDailyLimit        *decimal.Decimal `json:"default_daily_limit,omitempty"`
	LimitMode                *string          `json:"limit_mode,omitempty"`
	RejectRepeatedBlock      *bool            `json:"reject_repeated_block,omitempty"`
	AllowDeleteWithHistory   *bool            `json:"allow_delete_with_history,omitempty"`
	AccountNumberMaxAttempts *int             `json:"account_number_max_attempts,omitempty"`
}

// =============================================================================
// PRESETS
// =============================================================================

// Preset names accepted by Load.
const (
	PresetStrict  = "strict"
	PresetLenient = "lenient"
)

var presets = map[string]func() ledger.Policy{
	PresetStrict: ledger.DefaultPolicy,
	PresetLenient: func() ledger.Policy {
		p := ledger.DefaultPolicy()
		p.LimitMode = ledger.LimitPerWithdrawal
		p.RejectRepeatedBlock = false
		p.AllowDeleteWithHistory = true
		return p
	},
}

// Presets returns the available preset names, sorted.
func Presets() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to ledger.Policy.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a validated Policy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (ledger.Policy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return ledger.Policy{}, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON overlays pj on DefaultPolicy and validates the result.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (ledger.Policy, error) {
	p := ledger.DefaultPolicy()

	if pj.Branch != nil {
		p.Branch = *pj.Branch
	}
	if pj.DefaultDailyLimit != nil {
		p.DefaultDailyLimit = *pj.DefaultDailyLimit
	}
	if pj.LimitMode != nil {
		p.LimitMode = ledger.LimitMode(*pj.LimitMode)
	}
	if pj.RejectRepeatedBlock != nil {
		p.RejectRepeatedBlock = *pj.RejectRepeatedBlock
	}
	if pj.AllowDeleteWithHistory != nil {
		p.AllowDeleteWithHistory = *pj.AllowDeleteWithHistory
	}
	if pj.AccountNumberMaxAttempts != nil {
		p.AccountNumberMaxAttempts = *pj.AccountNumberMaxAttempts
	}

	if err := p.Validate(); err != nil {
		return ledger.Policy{}, err
	}
	return p, nil
}

// LoadFile reads a JSON policy file.
func (f *PolicyFactory) LoadFile(path string) (ledger.Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return ledger.Policy{}, fmt.Errorf("failed to read policy file: %w", err)
	}
	return f.ParsePolicy(string(data))
}

// Load resolves ref as a preset name, or else as a JSON file path.
// An empty ref yields DefaultPolicy().
func (f *PolicyFactory) Load(ref string) (ledger.Policy, error) {
	if ref == "" {
		return ledger.DefaultPolicy(), nil
	}
	if preset, ok := presets[ref]; ok {
		return preset(), nil
	}
	return f.LoadFile(ref)
}

// ToJSON renders p in the file format, e.g. for GET endpoints or dumps.
func ToJSON(p ledger.Policy) PolicyJSON {
	mode := string(p.LimitMode)
	limit := p.DefaultDailyLimit
	return PolicyJSON{
		Branch:                   &p.Branch,
		DefaultDailyLimit:        &limit,
		LimitMode:                &mode,
		RejectRepeatedBlock:      &p.RejectRepeatedBlock,
		AllowDeleteWithHistory:   &p.AllowDeleteWithHistory,
		AccountNumberMaxAttempts: &p.AccountNumberMaxAttempts,
	}
}
