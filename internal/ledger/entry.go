package ledger

import (
	"time"

	"github.com/tbckr/posture/internal/netpolicy"
)

// Entry is one attempted network operation.
type Entry struct {
	Timestamp  time.Time          `json:"timestamp"`
	Category   netpolicy.Category `json:"type"`
	Host       string             `json:"destination_host"`
	URL        string             `json:"url,omitempty"`
	Method     string             `json:"method,omitempty"`
	QueryName  string             `json:"query_name,omitempty"`
	RecordType string             `json:"record_type,omitempty"`
	Status     string             `json:"status,omitempty"`
	Error      string             `json:"error,omitempty"`
	Values     []string           `json:"values,omitempty"`
	BytesOut   int64              `json:"bytes_out"`
	BytesIn    int64              `json:"bytes_in"`
	DurationMS int64              `json:"duration_ms"`
	Success    bool               `json:"success"`
}

// clone returns a copy of e that shares no slices with it.
func (e Entry) clone() Entry {
	if e.Values != nil {
		e.Values = append([]string(nil), e.Values...)
	}
	return e
}
