package sut

import (
	"context"

	"github.com/variantlab/tradeharness/internal/snapshot"
	"github.com/variantlab/tradeharness/internal/synth"
)

// System is the system-under-test contract the orchestrator drives.
type System interface {
	// IngestWebhook feeds one webhook alert into the system.
	IngestWebhook(ctx context.Context, ev *synth.WebhookEvent) error

	// IngestGEX feeds one gamma-exposure record into the system.
	IngestGEX(ctx context.Context, rec *synth.GEXRecord) error

	// QueryState returns the system's full observable state. Read-only.
	QueryState(ctx context.Context) (snapshot.Snapshot, error)

	// Close releases system resources.
	Close() error
}

// ExternalClient performs the system's outbound calls (enrichment lookups,
// brokerage orders). The orchestrator supplies the implementation so that
// network interception stays scoped per test context.
//
// The returned real flag reports whether a genuine call was performed;
// mocked/blocked calls return real=false with a nil error.
type ExternalClient interface {
	Call(ctx context.Context, service, endpoint string, payload map[string]any) (real bool, err error)
}

// NoopExternalClient mocks every outbound call.
type NoopExternalClient struct{}

// Call records nothing and performs nothing.
func (NoopExternalClient) Call(context.Context, string, string, map[string]any) (bool, error) {
	return false, nil
}
