package cli

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/tbckr/posture/internal/appdir"
	"github.com/tbckr/posture/internal/config"
	"github.com/tbckr/posture/internal/ledger"
	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/output"
)

var auditCategories = []netpolicy.Category{
	netpolicy.CategoryThirdPartyHTTP,
	netpolicy.CategoryTargetDNS,
	netpolicy.CategoryTargetHTTP,
}

// auditReport re-renders a persisted ledger.
type auditReport struct {
	ledger.Snapshot
	Blocked []ledger.Entry `json:"blocked"`
}

func newAuditReport(snap ledger.Snapshot) *auditReport {
	r := &auditReport{Snapshot: snap, Blocked: []ledger.Entry{}}
	for _, e := range snap.Entries {
		if e.Status == "blocked" {
			r.Blocked = append(r.Blocked, e)
		}
	}
	return r
}

// WriteText renders the network activity block, per-category totals and every blocked
// operation.
func (r *auditReport) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# %s (run %s)\n\n", output.StripANSI(r.Domain), r.RunID); err != nil {
		return err
	}
	if err := ledger.WriteAudit(w, r.Snapshot); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w); err != nil {
		return err
	}

	table := output.NewTable(w, 40, false)
	table.Header([]string{"Category", "Operations", "Bytes Out", "Bytes In"})
	rows := make([][]string, 0, len(auditCategories))
	for _, c := range auditCategories {
		rows = append(rows, []string{
			string(c),
			fmt.Sprint(r.Totals.Counts[c]),
			fmt.Sprint(r.Totals.BytesOut[c]),
			fmt.Sprint(r.Totals.BytesIn[c]),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if len(r.Blocked) == 0 {
		_, err := fmt.Fprintln(w, "\nNo operations were blocked.")
		return err
	}
	if _, err := fmt.Fprintf(w, "\nBlocked operations (%d):\n", len(r.Blocked)); err != nil {
		return err
	}
	for _, e := range r.Blocked {
		target := e.URL
		if target == "" {
			target = e.QueryName + " " + e.RecordType
		}
		if _, err := fmt.Fprintf(w, "- [%s] %s: %s\n", e.Category, output.StripANSI(target), e.Error); err != nil {
			return err
		}
	}
	return nil
}

// readLedgerFile loads a network_ledger.json snapshot or a network_ledger.jsonl stream. A
// stream carries no run settings: the run ID and domain come from its <domain>-<run id>
// directory and the mode and DNS policy from cfg.
func readLedgerFile(path string, cfg *config.Config) (ledger.Snapshot, error) {
	if !strings.EqualFold(filepath.Ext(path), ".jsonl") {
		return ledger.ReadSnapshotFile(path)
	}
	entries, err := ledger.ReadJSONL(path)
	if err != nil {
		return ledger.Snapshot{}, fmt.Errorf("reading ledger stream: %w", err)
	}
	info := ledger.RunInfo{Mode: cfg.Mode, DNSPolicy: cfg.DNSPolicy}
	info.Domain, info.RunID = splitRunDir(filepath.Base(filepath.Dir(path)))
	return ledger.NewSnapshot(info, entries), nil
}

// splitRunDir splits a run directory name <domain>-<uuid>. Names without a UUID suffix are
// returned whole as the run ID.
func splitRunDir(name string) (domain, runID string) {
	const idLen = 36
	if len(name) > idLen+1 && name[len(name)-idLen-1] == '-' {
		if id, err := uuid.Parse(name[len(name)-idLen:]); err == nil {
			return name[:len(name)-idLen-1], id.String()
		}
	}
	return "", name
}

// runList is the output of audit --list.
type runList []ledger.RunSummary

func (l runList) WriteText(w io.Writer) error {
	if len(l) == 0 {
		_, err := fmt.Fprintln(w, "No stored runs.")
		return err
	}
	table := output.NewTable(w, 80, false)
	table.Header([]string{"Run ID", "Domain", "Mode", "DNS Policy", "Saved", "Entries"})
	rows := make([][]string, 0, len(l))
	for _, rs := range l {
		rows = append(rows, []string{
			rs.RunID, rs.Domain, rs.Mode, rs.DNSPolicy,
			rs.SavedAt.Format(time.RFC3339), fmt.Sprint(rs.Entries),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func newAuditCmd(d *deps) *cobra.Command {
	var (
		sqlitePath string
		runID      string
		list       bool
	)
	cmd := &cobra.Command{
		Use:     "audit [network_ledger.json|network_ledger.jsonl]",
		Short:   "Re-render the network activity of a finished run",
		GroupID: "assess",
		Long: `Read a persisted network ledger and print its network activity block, totals per
category and every blocked operation.

The ledger is read from a network_ledger.json snapshot, a network_ledger.jsonl
stream, or from the SQLite store with --run-id. --list prints every run held in the
SQLite store. A stream records no run settings, so its mode and DNS policy are the
ones currently configured.`,
		Example: `  posture audit runs/example.com-<run id>/network_ledger.json
  posture audit --mode low-noise runs/example.com-<run id>/network_ledger.jsonl
  posture audit --list
  posture audit --run-id <run id>`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if sqlitePath == "" {
				sqlitePath = d.cfg.SQLitePath
			}
			if sqlitePath == "" {
				var err error
				if sqlitePath, err = config.DefaultSQLitePath(); err != nil {
					return err
				}
			}
			switch {
			case len(args) == 1:
				if list || runID != "" {
					return fmt.Errorf("a snapshot file cannot be combined with --list or --run-id")
				}
				snap, err := readLedgerFile(args[0], d.cfg)
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), d, newAuditReport(snap))
			case list || runID != "":
				if err := appdir.EnsureParent(sqlitePath); err != nil {
					return err
				}
				store, err := ledger.NewSQLiteStore(sqlitePath)
				if err != nil {
					return err
				}
				defer store.Close()
				if list {
					runs, err := store.ListRuns(cmd.Context())
					if err != nil {
						return err
					}
					if runs == nil {
						runs = []ledger.RunSummary{}
					}
					return writeResult(cmd.OutOrStdout(), d, runList(runs))
				}
				snap, err := store.LoadSnapshot(cmd.Context(), runID)
				if err != nil {
					return err
				}
				return writeResult(cmd.OutOrStdout(), d, newAuditReport(snap))
			default:
				return fmt.Errorf("no ledger: pass a snapshot file, --run-id or --list")
			}
		},
	}
	cmd.Flags().StringVar(&sqlitePath, "db", "", "SQLite ledger store (default is the sqlite_path setting)")
	cmd.Flags().StringVar(&runID, "run-id", "", "run to load from the SQLite store")
	cmd.Flags().BoolVar(&list, "list", false, "list the runs held in the SQLite store")
	cmd.MarkFlagsMutuallyExclusive("run-id", "list")
	return cmd
}
