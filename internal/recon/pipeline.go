package recon

import (
	"context"
	"log/slog"
	"time"

	"github.com/tbckr/posture/internal/detect"
	"github.com/tbckr/posture/internal/netpolicy"
	"github.com/tbckr/posture/internal/worker"
)

// Pipeline runs the modules in order against one domain.
type Pipeline struct {
	HTTP      HTTPClient
	DNS       RecordLookup
	Detector  *detect.Detector
	Pool      *worker.Pool
	Mode      netpolicy.Mode
	DNSPolicy netpolicy.DNSPolicy
	MaxPages  int
	// Company adds organisation-name search terms to passive user discovery.
	Company  string
	MaxUsers int
	// Cache, when set, answers repeated third-party lookups without network traffic.
	Cache  Cache
	Logger *slog.Logger
	Now    func() time.Time
}

// Run executes passive_subdomains, dns_mail_profile, web_signals, doc_signals and
// passive_users. A module error is
// recorded in its status and does not stop later modules; a done context marks the
// remaining modules skipped.
func (p *Pipeline) Run(ctx context.Context, runID, domain string) *Result {
	logger := p.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	now := p.Now
	if now == nil {
		now = time.Now
	}
	pool := p.Pool
	if pool == nil {
		pool = worker.NewPool(1, logger)
	}

	res := &Result{
		RunID:     runID,
		Domain:    domain,
		Mode:      p.Mode.String(),
		DNSPolicy: p.DNSPolicy.String(),
		Modules:   []ModuleStatus{},
	}

	step := func(name string, fn func() error) {
		if err := ctx.Err(); err != nil {
			res.Modules = append(res.Modules, ModuleStatus{Name: name, Status: StatusSkipped, Error: err.Error()})
			return
		}
		start := now()
		err := fn()
		st := ModuleStatus{Name: name, Status: StatusOK, DurationMS: now().Sub(start).Milliseconds()}
		if err != nil {
			st.Status = StatusError
			st.Error = err.Error()
			logger.Warn("module failed", "module", name, "domain", domain, "error", err)
		} else {
			logger.Debug("module finished", "module", name, "domain", domain, "duration_ms", st.DurationMS)
		}
		res.Modules = append(res.Modules, st)
	}

	step(ModuleSubdomains, func() error {
		subs, err := Subdomains(ctx, p.HTTP, p.Cache, domain)
		res.Subdomains = subs
		return err
	})
	step(ModuleMail, func() error {
		res.Mail = MailProfile(ctx, p.DNS, p.Detector, domain, p.Mode, p.DNSPolicy)
		return nil
	})
	var subs []string
	step(ModuleWeb, func() error {
		if res.Subdomains != nil {
			subs = res.Subdomains.Subdomains
		}
		res.Web = WebSignals(ctx, p.HTTP, domain, subs, p.Mode, p.MaxPages, pool, logger)
		return nil
	})
	step(ModuleDocs, func() error {
		res.Docs = DocSignals(ctx, p.HTTP, domain, subs, p.Mode, p.MaxPages, pool, logger)
		return nil
	})
	step(ModuleUsers, func() error {
		users, err := PassiveUsers(ctx, p.HTTP, p.Cache, domain, p.Company, p.MaxUsers)
		res.Users = users
		return err
	})
	return res
}
