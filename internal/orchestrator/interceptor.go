package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/variantlab/tradeharness/internal/faults"
)

// Interceptor scopes outbound network policy to one test context and
// implements sut.ExternalClient for the system it serves.
//
// In mock mode every outbound call is blocked (recorded, not performed)
// unless its service is on the allow-list. Outside mock mode calls go over
// HTTP through a transport that still enforces the allow-list at the host
// level, so a misbehaving system cannot reach arbitrary endpoints.
type Interceptor struct {
	contextID string
	mock      bool
	allowed   map[string]struct{}
	client    *http.Client

	mu      sync.Mutex
	closed  bool
	blocked []string
}

// allowlistTransport rejects requests to hosts outside the allow-list.
type allowlistTransport struct {
	allowed map[string]struct{}
	base    http.RoundTripper
}

func (t *allowlistTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if _, ok := t.allowed[req.URL.Hostname()]; !ok {
		return nil, fmt.Errorf("outbound call to %q blocked by test interceptor", req.URL.Hostname())
	}
	return t.base.RoundTrip(req)
}

func newInterceptor(contextID string, mock bool, allowedHosts []string) *Interceptor {
	allowed := make(map[string]struct{}, len(allowedHosts))
	for _, h := range allowedHosts {
		allowed[h] = struct{}{}
	}
	return &Interceptor{
		contextID: contextID,
		mock:      mock,
		allowed:   allowed,
		client: &http.Client{
			Transport: &allowlistTransport{allowed: allowed, base: http.DefaultTransport},
		},
	}
}

// Call implements sut.ExternalClient. The real flag is true only when a
// genuine HTTP call was performed and answered.
func (i *Interceptor) Call(ctx context.Context, service, endpoint string, payload map[string]any) (bool, error) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return false, faults.NewEnvironmentError(i.contextID, "interceptor used after teardown")
	}
	_, allowed := i.allowed[service]
	if i.mock && !allowed {
		i.blocked = append(i.blocked, service+endpoint)
		i.mu.Unlock()
		return false, nil
	}
	i.mu.Unlock()

	body, err := json.Marshal(payload)
	if err != nil {
		return false, fmt.Errorf("marshal outbound payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://"+service+endpoint, bytes.NewReader(body))
	if err != nil {
		return false, fmt.Errorf("build outbound request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := i.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("outbound call %s%s: %w", service, endpoint, err)
	}
	resp.Body.Close()
	return true, nil
}

// Blocked returns the calls this interceptor refused to perform, in order.
func (i *Interceptor) Blocked() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.blocked...)
}

// close removes the interceptor: subsequent calls fail instead of leaking
// past the context's lifetime. Idempotent.
func (i *Interceptor) close() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.closed = true
}
