// Package netpolicy implements the egress guard that every outbound network operation of a
// posture run must pass before it is sent.
//
// Two closed tags govern a run:
//
//	Mode:      passive (no direct target contact) or low-noise (small, capped HEAD/GET checks)
//	DNSPolicy: none, minimal (apex MX/TXT and _dmarc TXT only) or full (budget-limited)
//
// A Guard classifies each destination (target_http, third_party_http, target_dns), checks it
// against the run's budgets, verifies that target hosts resolve only to public addresses, and
// debits the counters. Every rejection is a *Violation naming the rule that fired; nothing is
// approved by default.
package netpolicy
