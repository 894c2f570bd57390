// Package cloud pushes resource and action declarations to the cloud
// management API so they show up in the policy dashboard.
//
// The push is strictly fire-and-forget: registration and enforcement never
// block on, or fail because of, the cloud. Failed pushes are logged and the
// declaration stays marked unsynced so a later SyncAll can retry it.
package cloud

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/aegisauth/aegis/pkg/registry"
)

const defaultTimeout = 10 * time.Second

// syncResponse is the cloud API's acknowledgment of a declaration.
type syncResponse struct {
	ID string `json:"id"`
}

// Reporter mirrors registry mutations to the cloud management API. It
// implements registry.Notifier.
type Reporter struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger

	mu     sync.Mutex
	synced map[string]string // declaration key -> remote id
}

var _ registry.Notifier = (*Reporter)(nil)

// Option configures a Reporter.
type Option func(*Reporter)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(r *Reporter) {
		r.token = token
	}
}

// WithTimeout sets the per-request timeout. Zero keeps the default.
func WithTimeout(timeout time.Duration) Option {
	return func(r *Reporter) {
		if timeout > 0 {
			r.httpClient.Timeout = timeout
		}
	}
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(r *Reporter) {
		if hc != nil {
			r.httpClient = hc
		}
	}
}

// WithLogger sets the logger for sync events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reporter) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// NewReporter creates a Reporter for the given cloud API base URL.
func NewReporter(baseURL string, opts ...Option) *Reporter {
	r := &Reporter{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     slog.Default(),
		synced:     make(map[string]string),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResourceRegistered pushes a resource declaration, including its actions,
// to the cloud. Already-synced declarations are skipped.
func (r *Reporter) ResourceRegistered(ctx context.Context, def registry.ResourceDefinition) {
	key := "resource/" + def.Name
	if r.isSynced(key) {
		return
	}

	r.logger.Info("Syncing resource declaration", "resource", def.Name)
	remoteID, ok := r.put(ctx, "/cloud/resources/"+url.PathEscape(def.Name), def)
	if !ok {
		return
	}
	r.markSynced(key, remoteID)
	for _, action := range def.Actions {
		r.markSynced("action/"+def.Name+"/"+action.Name, "")
	}
}

// ActionRegistered pushes a late-registered action declaration to the cloud,
// addressed by the owning resource's remote id when one is known.
func (r *Reporter) ActionRegistered(ctx context.Context, resource string, def registry.ActionDefinition) {
	key := "action/" + resource + "/" + def.Name
	if r.isSynced(key) {
		return
	}

	ref := resource
	if remoteID := r.remoteID("resource/" + resource); remoteID != "" {
		ref = remoteID
	}

	r.logger.Info("Syncing action declaration", "resource", resource, "action", def.Name)
	remoteID, ok := r.put(ctx, "/cloud/resources/"+url.PathEscape(ref)+"/actions", def)
	if !ok {
		return
	}
	r.markSynced(key, remoteID)
}

// SyncAll re-pushes every declaration the cloud has not acknowledged yet.
// Call it once after startup registration, or periodically if the cloud was
// unreachable during registration.
func (r *Reporter) SyncAll(ctx context.Context, reg *registry.Registry) {
	for _, def := range reg.Resources() {
		r.ResourceRegistered(ctx, def)
	}
}

// put sends one declaration and returns the remote id on success. All
// failures are logged and reported as ok=false; nothing propagates.
func (r *Reporter) put(ctx context.Context, path string, payload any) (string, bool) {
	body, err := json.Marshal(payload)
	if err != nil {
		r.logger.Error("Failed to encode declaration", "path", path, "error", err)
		return "", false
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.baseURL+path, bytes.NewReader(body))
	if err != nil {
		r.logger.Error("Failed to build sync request", "path", path, "error", err)
		return "", false
	}
	req.Header.Set("Content-Type", "application/json")
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		r.logger.Error("Cloud sync request failed", "path", path, "error", err)
		return "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		r.logger.Error("Cloud sync request rejected", "path", path, "status", resp.StatusCode)
		return "", false
	}

	var ack syncResponse
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		r.logger.Error("Failed to decode sync acknowledgment", "path", path, "error", err)
		return "", false
	}
	return ack.ID, true
}

func (r *Reporter) isSynced(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.synced[key]
	return ok
}

func (r *Reporter) markSynced(key, remoteID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.synced[key] = remoteID
}

func (r *Reporter) remoteID(key string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.synced[key]
}
