package ledger

import (
	"fmt"
	"io"

	"github.com/tbckr/posture/internal/netpolicy"
)

// auditStatement is printed under every audit block. The guard rejects over-budget
// operations before they are sent, so the ledger can only ever show approved traffic
// within budget plus recorded rejections.
const auditStatement = "No budget was silently exceeded: every over-budget operation was rejected before it was sent."

// WriteAudit renders the network-activity block for s.
func WriteAudit(w io.Writer, s Snapshot) error {
	_, err := fmt.Fprintf(w,
		"## Network Activity\n"+
			"- Mode: %s\n"+
			"- DNS policy: %s\n"+
			"- Third-party HTTP calls: %d\n"+
			"- Target DNS queries: %d\n"+
			"- Target HTTP calls: %d\n"+
			"- %s\n",
		s.Mode, s.DNSPolicy,
		s.Totals.Counts[netpolicy.CategoryThirdPartyHTTP],
		s.Totals.Counts[netpolicy.CategoryTargetDNS],
		s.Totals.Counts[netpolicy.CategoryTargetHTTP],
		auditStatement,
	)
	return err
}
