package netpolicy

import (
	"fmt"

	"github.com/tbckr/posture/internal/apperr"
)

// Rule identifies the admission rule that rejected an operation.
type Rule string

// Rules, one per distinct rejection reason.
const (
	RuleInvalidURL    Rule = "invalid_url"
	RuleOffDomainHead Rule = "off_domain_head"
	RulePassiveMode   Rule = "passive_mode"
	RuleRedirects     Rule = "redirects_enabled"
	RuleMethod        Rule = "method_not_allowed"
	RuleTotalBudget   Rule = "total_budget"
	RuleHostBudget    Rule = "host_budget"
	RuleMinuteBudget  Rule = "minute_budget"
	RuleScope         Rule = "out_of_scope"
	RuleResolution    Rule = "resolution_failed"
	RuleUnsafeAddress Rule = "unsafe_address"
	RuleDNSDisabled   Rule = "dns_disabled"
	RuleDNSBudget     Rule = "dns_budget"
	RuleDNSMinimal    Rule = "dns_minimal_allowlist"
	RuleResponseSize  Rule = "response_size"
)

// Violation is the typed error returned for every rejected operation.
type Violation struct {
	Rule   Rule
	Detail string
}

func violation(rule Rule, format string, args ...any) *Violation {
	return &Violation{Rule: rule, Detail: fmt.Sprintf(format, args...)}
}

// NewViolation builds a Violation for rules enforced outside the guard, such as the
// response-size cap applied while a body is streamed.
func NewViolation(rule Rule, format string, args ...any) *Violation {
	return violation(rule, format, args...)
}

func (v *Violation) Error() string {
	return fmt.Sprintf("%s: %s (%s)", apperr.ErrPolicyViolation, v.Detail, v.Rule)
}

// Is makes errors.Is(err, apperr.ErrPolicyViolation) true for every Violation.
func (v *Violation) Is(target error) bool {
	return target == apperr.ErrPolicyViolation
}
