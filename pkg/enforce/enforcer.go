// Package enforce answers "can user U perform action A on resource R?" by
// resolving the target through the resource registry, assembling the decision
// context and delegating the verdict to the PDP.
//
// The enforcement contract is that IsAllowed always returns a boolean:
// resolution failures deny without a network call, and PDP failures are
// converted by the configured fail policy, never raised to the caller.
package enforce

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/metric"

	"github.com/aegisauth/aegis/internal/telemetry"
	"github.com/aegisauth/aegis/pkg/identity"
	"github.com/aegisauth/aegis/pkg/pdp"
	"github.com/aegisauth/aegis/pkg/registry"
)

// Transform rewrites the decision context before dispatch. Transforms run in
// registration order; each receives the output of the previous one.
type Transform func(map[string]string) map[string]string

// Enforcer resolves and dispatches authorization queries. It is safe for
// concurrent use; every call builds its own query state.
type Enforcer struct {
	registry   *registry.Registry
	decider    pdp.Decider
	policy     FailPolicy
	tenant     string
	transforms []Transform
	metrics    *telemetry.DecisionMetrics
	logger     *slog.Logger
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithFailPolicy sets the verdict applied on PDP failure. The default is
// FailClosed.
func WithFailPolicy(policy FailPolicy) Option {
	return func(e *Enforcer) {
		if policy == FailOpen {
			e.policy = FailOpen
		}
	}
}

// WithDefaultTenant sets the tenant attached to queries whose context does
// not name one.
func WithDefaultTenant(tenant string) Option {
	return func(e *Enforcer) {
		e.tenant = tenant
	}
}

// WithTransform appends a context transform.
func WithTransform(t Transform) Option {
	return func(e *Enforcer) {
		e.transforms = append(e.transforms, t)
	}
}

// WithMeterProvider enables decision metrics on the given provider.
func WithMeterProvider(provider metric.MeterProvider) Option {
	return func(e *Enforcer) {
		metrics, err := telemetry.NewDecisionMetrics(provider)
		if err != nil {
			e.logger.Error("Failed to create decision metrics", "error", err)
			return
		}
		e.metrics = metrics
	}
}

// WithLogger sets the logger for decision events.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Enforcer) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// New creates an Enforcer over a registry and a PDP decider.
func New(reg *registry.Registry, decider pdp.Decider, opts ...Option) *Enforcer {
	e := &Enforcer{
		registry: reg,
		decider:  decider,
		policy:   FailClosed,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// IsAllowed reports whether the user may perform the action on the resource.
// The resource argument is either a declared resource name or a concrete
// path; a string containing the path delimiter that is not a declared name
// is matched against the registered templates. The user argument is an
// opaque key or a JWT.
func (e *Enforcer) IsAllowed(ctx context.Context, user, action, resource string) bool {
	return e.Check(ctx, user, action, e.classify(resource), nil).Allowed
}

// Check is the full-fidelity form of IsAllowed: it accepts an explicit
// resource reference and extra context attributes, and returns the decision
// with its source. Extra attributes win over extracted path variables on key
// collision.
func (e *Enforcer) Check(ctx context.Context, user, action string, resource ResourceRef, attributes map[string]string) Decision {
	start := time.Now()
	queryID := uuid.NewString()

	query, resolved := e.buildQuery(user, action, resource, attributes)
	if !resolved {
		e.logger.Warn("Denying unresolvable enforcement query",
			"query_id", queryID,
			"action", action,
			"resource", resource.String(),
		)
		e.metrics.RecordDecision(ctx, false, telemetry.SourceUnresolved, time.Since(start))
		return Decision{Allowed: false, Source: SourceUnresolved, QueryID: queryID}
	}

	allowed, err := e.decider.Allowed(ctx, query)
	if err != nil {
		allowed = e.policy == FailOpen
		e.logger.Error("PDP decision failed, applying fail policy",
			"query_id", queryID,
			"policy", string(e.policy),
			"allowed", allowed,
			"action", action,
			"resource", resource.String(),
			"error", err,
		)
		e.metrics.RecordPDPError(ctx)
		e.metrics.RecordDecision(ctx, allowed, telemetry.SourceFailPolicy, time.Since(start))
		return Decision{Allowed: allowed, Source: SourceFailPolicy, QueryID: queryID, Err: err}
	}

	e.logger.Debug("PDP decision",
		"query_id", queryID,
		"allowed", allowed,
		"user", query.User.Key,
		"action", action,
		"resource", query.Resource.Type,
	)
	e.metrics.RecordDecision(ctx, allowed, telemetry.SourcePDP, time.Since(start))
	return Decision{Allowed: allowed, Source: SourcePDP, QueryID: queryID}
}

// classify decides how a raw resource string should be resolved: a declared
// resource name wins; otherwise anything containing the path delimiter is
// treated as a path.
func (e *Enforcer) classify(resource string) ResourceRef {
	if e.registry.HasResource(resource) {
		return ByName(resource)
	}
	if strings.Contains(resource, "/") {
		return ByPath(resource)
	}
	return ByName(resource)
}

// buildQuery resolves the target and assembles the decision payload. It
// reports resolved=false when the resource or action is not registered; that
// outcome is an automatic deny and must not reach the PDP.
func (e *Enforcer) buildQuery(user, action string, resource ResourceRef, attributes map[string]string) (*pdp.Query, bool) {
	var (
		resDef   registry.ResourceDefinition
		actDef   registry.ActionDefinition
		instance string
	)
	contextAttrs := make(map[string]string)

	if resource.IsPath() {
		match, err := e.registry.ResolveByPath(resource.path)
		if err != nil {
			return nil, false
		}
		resDef, actDef, err = e.registry.ResolveByName(match.Resource, action)
		if err != nil {
			return nil, false
		}
		for name, value := range match.Variables {
			contextAttrs[name] = value
		}
		instance = resource.path
	} else {
		var err error
		resDef, actDef, err = e.registry.ResolveByName(resource.name, action)
		if err != nil {
			return nil, false
		}
	}

	if e.tenant != "" && contextAttrs["tenant"] == "" {
		contextAttrs["tenant"] = e.tenant
	}
	// Explicit input overrides inferred input.
	for name, value := range attributes {
		contextAttrs[name] = value
	}
	for _, transform := range e.transforms {
		contextAttrs = transform(contextAttrs)
	}

	path := actDef.Path
	if path == "" {
		path = resDef.Path
	}

	u := identity.Parse(user)
	if len(contextAttrs) == 0 {
		contextAttrs = nil
	}
	return &pdp.Query{
		User:   pdp.User{Key: u.Key, Attributes: u.Attributes},
		Action: action,
		Resource: pdp.Resource{
			Type:     resDef.Name,
			Path:     path,
			Instance: instance,
			Tenant:   contextAttrs["tenant"],
			Context:  contextAttrs,
		},
	}, true
}
