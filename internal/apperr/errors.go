package apperr

import "errors"

// ErrInvalidInput is returned when a domain, URL, or configuration value fails validation.
var ErrInvalidInput = errors.New("invalid input")

// ErrRequestFailed is returned when a lookup or API call completes but yields an unusable
// answer (non-2xx status, DNS error rcode, undecodable payload).
var ErrRequestFailed = errors.New("request failed")

// ErrTransport is returned by the guarded HTTP client once every retry of a transport-level
// failure (timeout, connection error) has been exhausted.
var ErrTransport = errors.New("transport error")

// ErrPolicyViolation is matched by every rejection issued by the network policy guard.
// Use errors.Is(err, apperr.ErrPolicyViolation) to detect rejections uniformly; use
// errors.As with *netpolicy.Violation to recover the rule that fired.
var ErrPolicyViolation = errors.New("network policy violation")
