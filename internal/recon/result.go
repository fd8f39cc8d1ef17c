package recon

import (
	"fmt"
	"io"
	"strings"

	"github.com/tbckr/posture/internal/ledger"
	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/output"
)

// Module names in execution order.
const (
	ModuleSubdomains = "passive_subdomains"
	ModuleMail       = "dns_mail_profile"
	ModuleWeb        = "web_signals"
	ModuleDocs       = "doc_signals"
	ModuleUsers      = "passive_users"
)

// Module status values.
const (
	StatusOK      = "ok"
	StatusError   = "error"
	StatusSkipped = "skipped"
)

// ModuleStatus is the outcome and timing of one module.
type ModuleStatus struct {
	Name       string `json:"name"`
	Status     string `json:"status"`
	Error      string `json:"error,omitempty"`
	DurationMS int64  `json:"duration_ms"`
}

// Result aggregates every module of one run.
type Result struct {
	RunID      string             `json:"run_id"`
	Domain     string             `json:"domain"`
	Mode       string             `json:"mode"`
	DNSPolicy  string             `json:"dns_policy"`
	Modules    []ModuleStatus     `json:"modules"`
	Subdomains *SubdomainsResult  `json:"passive_subdomains,omitempty"`
	Mail       *MailProfileResult `json:"dns_mail_profile,omitempty"`
	Web        *WebSignalsResult  `json:"web_signals,omitempty"`
	Docs       *DocSignalsResult  `json:"doc_signals,omitempty"`
	Users      *UsersResult       `json:"passive_users,omitempty"`
	Network    *ledger.Snapshot   `json:"network_ledger,omitempty"`
	Budget     *BudgetUsage       `json:"budget_usage,omitempty"`
}

// BudgetUsage is how much of each target budget a run consumed.
type BudgetUsage struct {
	Used   netpolicy.Usage   `json:"used"`
	Limits netpolicy.Budgets `json:"limits"`
}

// Results is the output of a multi-domain invocation.
type Results []*Result

// WriteText renders each result in order, separated by a blank line.
func (rs Results) WriteText(w io.Writer) error {
	for i, r := range rs {
		if i > 0 {
			if _, err := fmt.Fprintln(w); err != nil {
				return err
			}
		}
		if err := r.WriteText(w); err != nil {
			return err
		}
	}
	return nil
}

// Status returns the status of the named module, or "" when it did not run.
func (r *Result) Status(name string) string {
	for _, m := range r.Modules {
		if m.Name == name {
			return m.Status
		}
	}
	return ""
}

// WriteText renders the result for a terminal, ending with the network activity block when
// the ledger snapshot is attached.
func (r *Result) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "# %s (run %s, mode %s, dns policy %s)\n\n",
		output.StripANSI(r.Domain), r.RunID, r.Mode, r.DNSPolicy); err != nil {
		return err
	}

	table := output.NewTable(w, 40, false)
	table.Header([]string{"Module", "Status", "Duration", "Error"})
	var rows [][]string
	for _, m := range r.Modules {
		rows = append(rows, []string{m.Name, m.Status, fmt.Sprintf("%dms", m.DurationMS), m.Error})
	}
	if err := table.Bulk(rows); err != nil {
		return err
	}
	if err := table.Render(); err != nil {
		return err
	}

	if r.Subdomains != nil {
		if err := r.writeSubdomains(w); err != nil {
			return err
		}
	}
	if r.Mail != nil {
		if err := r.writeMail(w); err != nil {
			return err
		}
	}
	if r.Web != nil {
		if err := r.writeWeb(w); err != nil {
			return err
		}
	}
	if r.Docs != nil {
		if err := r.writeDocs(w); err != nil {
			return err
		}
	}
	if r.Users != nil {
		if err := r.writeUsers(w); err != nil {
			return err
		}
	}
	if r.Network != nil {
		if _, err := fmt.Fprintln(w); err != nil {
			return err
		}
		if err := ledger.WriteAudit(w, *r.Network); err != nil {
			return err
		}
	}
	if r.Budget != nil {
		return r.writeBudget(w)
	}
	return nil
}

func (r *Result) writeBudget(w io.Writer) error {
	u, l := r.Budget.Used, r.Budget.Limits
	if _, err := fmt.Fprintf(w, "\n## Budget Use\n- Target HTTP: %d of %d\n- Target DNS: %d of %d\n",
		u.TargetHTTPTotal, l.MaxTargetHTTPTotal, u.TargetDNSTotal, l.MaxTargetDNSQueries); err != nil {
		return err
	}
	for _, host := range output.SortedKeys(u.TargetHTTPPerHost) {
		if _, err := fmt.Fprintf(w, "  - %s: %d of %d\n",
			output.StripANSI(host), u.TargetHTTPPerHost[host], l.MaxTargetHTTPPerHost); err != nil {
			return err
		}
	}
	return nil
}

func (r *Result) writeSubdomains(w io.Writer) error {
	s := r.Subdomains
	if _, err := fmt.Fprintf(w, "\n## Subdomains (%d unique, %d seen, %d wildcards, %d invalid)\n",
		len(s.Subdomains), s.TotalSeen, s.RemovedWildcards, s.InvalidEntries); err != nil {
		return err
	}
	for _, src := range s.Sources {
		if _, err := fmt.Fprintf(w, "- %s: %d\n", src.Name, s.PerSourceCounts[src.Name]); err != nil {
			return err
		}
	}
	if err := writeList(w, "Warnings", s.Warnings); err != nil {
		return err
	}
	return writeList(w, "Names", s.Subdomains)
}

func (r *Result) writeMail(w io.Writer) error {
	m := r.Mail
	if _, err := fmt.Fprintln(w, "\n## Mail Profile"); err != nil {
		return err
	}
	var rows [][]string
	for _, rt := range recordTypes {
		for _, v := range m.Records[rt] {
			rows = append(rows, []string{rt, output.StripANSI(v)})
		}
	}
	for _, v := range m.DMARCRecords {
		rows = append(rows, []string{"_dmarc TXT", output.StripANSI(v)})
	}
	if len(rows) > 0 {
		table := output.NewTable(w, 20, true)
		table.Header([]string{"Type", "Value"})
		if err := table.Bulk(rows); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w, "- SPF: %s\n- DMARC: %s\n- DKIM: %s (%s)\n",
		presence(m.SPF.Present(), m.SPF.All), presence(m.DMARC.Present(), m.DMARC.Policy),
		m.DKIM.Status, m.DKIM.Note); err != nil {
		return err
	}
	var providers []string
	for _, d := range m.Providers {
		providers = append(providers, fmt.Sprintf("%s (%s via %s)", d.Provider, d.Type, d.Source))
	}
	if err := writeList(w, "Providers", providers); err != nil {
		return err
	}
	if err := writeList(w, "Risk flags", m.RiskFlags); err != nil {
		return err
	}
	return writeList(w, "Recommendations", m.Recommendations)
}

func (r *Result) writeWeb(w io.Writer) error {
	web := r.Web
	if _, err := fmt.Fprintln(w, "\n## Web Signals"); err != nil {
		return err
	}
	if err := writeList(w, "Portal candidates", web.PortalCandidates); err != nil {
		return err
	}
	if err := writeList(w, "Technology hints", web.TechnologyHints); err != nil {
		return err
	}
	var checks []string
	for _, s := range web.SecurityHeaders {
		checks = append(checks, fmt.Sprintf("%s missing: %s", s.URL, strings.Join(s.Missing, ", ")))
	}
	if err := writeList(w, "Security headers", checks); err != nil {
		return err
	}
	if err := writeList(w, "Blocked", web.Blocked); err != nil {
		return err
	}
	return writeList(w, "Errors", web.Errors)
}

func (r *Result) writeDocs(w io.Writer) error {
	d := r.Docs
	if _, err := fmt.Fprintf(w, "\n## Document Signals (%d candidates)\n", len(d.Candidates)); err != nil {
		return err
	}
	if err := writeList(w, "Policy pages", d.PolicyPages); err != nil {
		return err
	}
	var docs []string
	for _, doc := range d.Documents {
		docs = append(docs, fmt.Sprintf("%s (%s)", doc.URL, doc.ContentType))
	}
	if err := writeList(w, "Documents", docs); err != nil {
		return err
	}
	if err := writeList(w, "Skipped as oversized", d.Oversized); err != nil {
		return err
	}
	if err := writeList(w, "Blocked", d.Blocked); err != nil {
		return err
	}
	return writeList(w, "Errors", d.Errors)
}

func (r *Result) writeUsers(w io.Writer) error {
	u := r.Users
	if _, err := fmt.Fprintf(w, "\n## Public Accounts (%d)\n%s\n", len(u.Users), u.Note); err != nil {
		return err
	}
	if len(u.Users) > 0 {
		table := output.NewTable(w, 40, false)
		table.Header([]string{"Handle", "Source", "Confidence", "Profile"})
		rows := make([][]string, 0, len(u.Users))
		for _, acc := range u.Users {
			rows = append(rows, []string{
				output.StripANSI(acc.Handle), acc.Source, acc.Confidence, output.StripANSI(acc.ProfileURL),
			})
		}
		if err := table.Bulk(rows); err != nil {
			return err
		}
		if err := table.Render(); err != nil {
			return err
		}
	}
	return writeList(w, "Warnings", u.Warnings)
}

func presence(ok bool, detail string) string {
	switch {
	case !ok:
		return "missing"
	case detail == "":
		return "present"
	default:
		return "present (" + detail + ")"
	}
}

func writeList(w io.Writer, title string, items []string) error {
	if len(items) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "%s:\n", title); err != nil {
		return err
	}
	for _, it := range items {
		if _, err := fmt.Fprintf(w, "  - %s\n", output.StripANSI(it)); err != nil {
			return err
		}
	}
	return nil
}
