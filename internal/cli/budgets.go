package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/output"
	"github.com/tbckr/posture/internal/validate"
)

// budgetsView renders the policy a run against a domain would start with.
type budgetsView struct {
	netpolicy.BudgetsSnapshot
}

func (v budgetsView) WriteText(w io.Writer) error {
	rows := [][]string{
		{"domain", output.StripANSI(v.Domain)},
		{"mode", v.Mode.String()},
		{"dns_policy", v.DNSPolicy.String()},
		{"allow_target_http", fmt.Sprint(v.AllowTargetHTTP)},
		{"max_target_http_requests_total", fmt.Sprint(v.MaxTargetHTTPTotal)},
		{"max_target_http_per_host", fmt.Sprint(v.MaxTargetHTTPPerHost)},
		{"max_target_http_per_minute", fmt.Sprint(v.MaxTargetHTTPPerMinute)},
		{"max_redirects", fmt.Sprint(v.MaxRedirects)},
		{"max_bytes_per_response", fmt.Sprint(v.MaxResponseBytes)},
		{"max_target_dns_queries", fmt.Sprint(v.MaxTargetDNSQueries)},
	}
	table := output.NewTable(w, 40, false)
	table.Header([]string{"Setting", "Value"})
	if err := table.Bulk(rows); err != nil {
		return err
	}
	return table.Render()
}

func newBudgetsCmd(d *deps) *cobra.Command {
	var asYAML bool
	cmd := &cobra.Command{
		Use:     "budgets <domain>",
		Short:   "Print the network policy and budgets a run would use",
		GroupID: "assess",
		Long: `Resolve the effective mode, DNS policy and budgets for a run against domain
without sending any network traffic. --yaml prints the same settings in config
file form.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			domain, err := validate.Domain(args[0])
			if err != nil {
				return err
			}
			guard, err := netpolicy.New(d.cfg.GuardConfig(domain), netpolicy.WithLogger(d.logger))
			if err != nil {
				return err
			}
			view := budgetsView{guard.Budgets()}
			if asYAML {
				enc := yaml.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent(2)
				if err := enc.Encode(view.BudgetsSnapshot); err != nil {
					return err
				}
				return enc.Close()
			}
			return writeResult(cmd.OutOrStdout(), d, view)
		},
	}
	cmd.Flags().BoolVar(&asYAML, "yaml", false, "print the settings as YAML")
	return cmd
}
