// Package ledger records every outbound network operation a posture run attempts, whether it
// was allowed, blocked, or failed. Entries are immutable once added; the ledger only grows.
//
// Totals aggregate by category without mutating entries, Snapshot exports the full sequence
// for persistence, and WriteAudit renders the network-activity block consumed by reports.
package ledger
