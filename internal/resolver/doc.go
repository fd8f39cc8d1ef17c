// Package resolver provides the DNS transports posture can resolve target records with:
// the system resolver (optionally tunnelled through a SOCKS5 proxy to prevent DNS leaks),
// a direct wire-format client against a chosen nameserver, and DNS-over-HTTPS.
//
// All transports implement RecordResolver and render answers as presentation-format
// strings, so callers never depend on which one a run was configured with.
package resolver
