package recon

import (
	"context"

	"github.com/tbckr/posture/internal/httpclient"
)

// HTTPClient is the guarded HTTP surface the modules use. *httpclient.Guarded satisfies it.
type HTTPClient interface {
	Get(ctx context.Context, rawURL string, headers map[string]string) (*httpclient.Response, error)
	Head(ctx context.Context, rawURL string, headers map[string]string) (*httpclient.Response, error)
}

// RecordLookup is the degrade-gracefully DNS surface. *dnsclient.Client satisfies it.
type RecordLookup interface {
	Records(ctx context.Context, name, recordType string) []string
}

// Cache holds decoded third-party answers between runs. cache.Store satisfies it; a nil
// Cache disables caching.
type Cache interface {
	Get(ctx context.Context, key string, v any) (bool, error)
	Set(ctx context.Context, key string, v any) error
}
