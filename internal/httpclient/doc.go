// Package httpclient builds the req transport used by posture and wraps it in Guarded, the
// only way recon modules reach the network over HTTP. Guarded admits every attempt through
// the network policy guard, paces it with the rate limiter, enforces the response byte cap
// while streaming, and records exactly one ledger entry per attempt.
package httpclient
