package ledger

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/tbckr/posture/internal/appdir"
)

// Snapshot is the persisted form of a ledger.
type Snapshot struct {
	RunInfo
	Entries []Entry `json:"entries"`
	Totals  Totals  `json:"totals"`
}

// NewSnapshot builds a snapshot of entries read back from a sink, computing its totals.
func NewSnapshot(info RunInfo, entries []Entry) Snapshot {
	if entries == nil {
		entries = []Entry{}
	}
	return Snapshot{RunInfo: info, Entries: entries, Totals: computeTotals(entries)}
}

// Snapshot exports the full entry sequence plus totals computed over the same entries.
func (l *Ledger) Snapshot() Snapshot {
	entries := l.Entries()
	return Snapshot{
		RunInfo: l.info,
		Entries: entries,
		Totals:  computeTotals(entries),
	}
}

// WriteJSON encodes s as indented JSON.
func (s Snapshot) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

// ReadSnapshot decodes a snapshot written by WriteJSON. Totals are recomputed from the
// entries so a hand-edited file cannot misreport them.
func ReadSnapshot(r io.Reader) (Snapshot, error) {
	var s Snapshot
	if err := json.NewDecoder(r).Decode(&s); err != nil {
		return Snapshot{}, fmt.Errorf("decoding ledger snapshot: %w", err)
	}
	s.Totals = computeTotals(s.Entries)
	return s, nil
}

// WriteSnapshotFile writes s to path, creating parent directories.
func WriteSnapshotFile(path string, s Snapshot) error {
	if err := appdir.EnsureParent(path); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("creating ledger file: %w", err)
	}
	if err := s.WriteJSON(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("writing ledger file: %w", err)
	}
	return f.Close()
}

// ReadSnapshotFile reads a snapshot written by WriteSnapshotFile.
func ReadSnapshotFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("opening ledger file: %w", err)
	}
	defer f.Close()
	return ReadSnapshot(f)
}
