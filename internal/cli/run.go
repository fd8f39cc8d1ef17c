package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tbckr/posture/internal/detect"
	"github.com/tbckr/posture/internal/recon"
	"github.com/tbckr/posture/internal/runctx"
)

func newRunCmd(d *deps) *cobra.Command {
	return &cobra.Command{
		Use:     "run [domain...]",
		Short:   "Assess the external posture of one or more domains",
		GroupID: "assess",
		Long: `Run passive subdomain discovery, the DNS mail profile and web signals against each
domain, one domain at a time. Every outbound operation passes the network policy
guard and is recorded in the run's ledger.

When --out-dir is set each run writes network_ledger.jsonl, network_ledger.json
(or the SQLite store) and network_activity.md to <out_dir>/<domain>-<run id>.

Domains are read from stdin, one per line, when no argument is given.`,
		Example: `  posture run example.com
  posture run --mode low-noise --dns-policy full example.com
  cat domains.txt | posture run -o json --out-dir ./runs`,
		RunE: func(cmd *cobra.Command, args []string) error {
			domains, err := resolveInputs(cmd, args)
			if err != nil {
				return err
			}
			det, err := detect.Default()
			if err != nil {
				return fmt.Errorf("loading detection patterns: %w", err)
			}

			results := make(recon.Results, 0, len(domains))
			var errs []error
			for _, domain := range domains {
				res, err := runDomain(cmd.Context(), d, det, domain)
				if err != nil {
					d.logger.Error("run failed", "domain", domain, "error", err)
					errs = append(errs, fmt.Errorf("%s: %w", domain, err))
				}
				if res != nil {
					results = append(results, res)
				}
			}

			if len(results) == 1 {
				if err := writeResult(cmd.OutOrStdout(), d, results[0]); err != nil {
					return err
				}
			} else if len(results) > 1 {
				if err := writeResult(cmd.OutOrStdout(), d, results); err != nil {
					return err
				}
			}
			return errors.Join(errs...)
		},
	}
}

// runDomain opens a run for domain, executes the pipeline and always closes the run, so the
// ledger is flushed and persisted even when the pipeline was interrupted.
func runDomain(ctx context.Context, d *deps, det *detect.Detector, domain string, opts ...runctx.Option) (res *recon.Result, err error) {
	run, err := runctx.Open(ctx, d.cfg, domain, d.logger, opts...)
	if err != nil {
		return nil, err
	}
	defer func() {
		snap, closeErr := run.Close(context.WithoutCancel(ctx))
		if res != nil {
			res.Network = &snap
			res.Budget = &recon.BudgetUsage{Used: run.Guard.Usage(), Limits: run.Guard.Budgets().Budgets}
		}
		err = errors.Join(err, closeErr)
	}()

	p := &recon.Pipeline{
		HTTP:      run.HTTP,
		DNS:       run.DNS,
		Detector:  det,
		Pool:      run.Pool,
		Mode:      d.cfg.Mode,
		DNSPolicy: d.cfg.DNSPolicy,
		MaxPages:  d.cfg.MaxPages,
		Company:   d.cfg.Company,
		MaxUsers:  d.cfg.MaxUsers,
		Cache:     run.Cache,
		Logger:    d.logger.With("run_id", run.ID),
	}
	return p.Run(ctx, run.ID, run.Domain), nil
}
