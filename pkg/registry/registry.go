// Package registry holds the in-process declarations of protected resources
// and their actions, and answers "which resource/action does this path belong
// to?" during enforcement.
//
// Registration is expected to happen once at application startup; lookups
// happen on every enforced request. The registry therefore uses a read-mostly
// locking discipline: an exclusive lock for mutation and a shared lock for
// resolution.
package registry

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aegisauth/aegis/pkg/template"
)

// ActionDefinition declares an operation performable on a resource.
type ActionDefinition struct {
	// Name identifies the action; unique within its owning resource.
	Name string `json:"name" yaml:"name"`

	// Title is a human-readable label shown in dashboards.
	Title string `json:"title,omitempty" yaml:"title,omitempty"`

	// Description documents the action.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Path optionally overrides the resource path template when matching.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Attributes is an opaque mapping used for auxiliary matching,
	// e.g. the HTTP verb the action corresponds to.
	Attributes map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
}

// ResourceDefinition declares a protected resource and its actions.
type ResourceDefinition struct {
	// Name is the unique registry key; immutable after registration.
	Name string `json:"name" yaml:"name"`

	// Description documents the resource.
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	// Type tags the resource kind, e.g. "rest".
	Type string `json:"type" yaml:"type"`

	// Path is the optional path template actions inherit by default.
	Path string `json:"path,omitempty" yaml:"path,omitempty"`

	// Actions declared together with the resource, in declaration order.
	Actions []ActionDefinition `json:"actions,omitempty" yaml:"actions,omitempty"`
}

// MatchResult is the outcome of resolving a concrete path against the
// registered templates. Action is empty when a resource-level template
// matched rather than an action-level one.
type MatchResult struct {
	Resource  string
	Action    string
	Variables map[string]string
}

// Notifier receives registry mutations after they have been applied. The
// registry fires notifications synchronously but ignores their outcome
// entirely; implementations must not block registration on remote failures.
type Notifier interface {
	ResourceRegistered(ctx context.Context, def ResourceDefinition)
	ActionRegistered(ctx context.Context, resource string, def ActionDefinition)
}

type actionEntry struct {
	def  ActionDefinition
	tmpl *template.Template
}

type resourceEntry struct {
	def     ResourceDefinition
	tmpl    *template.Template
	actions map[string]*actionEntry
	order   []string
}

// matcher is one compiled template in registration order. action is empty
// for resource-level templates.
type matcher struct {
	resource string
	action   string
	tmpl     *template.Template
}

// Registry is the in-process resource/action store. Construct one per
// application with New and share it between registration and enforcement.
type Registry struct {
	mu        sync.RWMutex
	resources map[string]*resourceEntry
	order     []string
	matchers  []matcher
	// bySegments indexes matcher positions by segment count so path
	// resolution only walks structurally possible candidates. Positions are
	// appended in registration order, preserving the first-registered
	// tie-break.
	bySegments map[int][]int

	notifier Notifier
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithNotifier sets the collaborator notified after successful mutations,
// typically a cloud sync reporter.
func WithNotifier(n Notifier) Option {
	return func(r *Registry) {
		r.notifier = n
	}
}

// WithLogger sets the logger used for registration events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// New creates an empty registry.
func New(opts ...Option) *Registry {
	r := &Registry{
		resources:  make(map[string]*resourceEntry),
		bySegments: make(map[int][]int),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ResourceStub is the handle returned from RegisterResource, letting callers
// attach further actions to the resource fluently.
type ResourceStub struct {
	registry *Registry
	name     string
}

// Name returns the resource name the stub refers to.
func (s *ResourceStub) Name() string {
	return s.name
}

// Action registers an additional action on the stub's resource.
func (s *ResourceStub) Action(ctx context.Context, def ActionDefinition) error {
	return s.registry.RegisterAction(ctx, s.name, def)
}

// RegisterResource adds a resource and its embedded actions to the registry.
// It fails with ErrDuplicateResource when the name is taken and with
// template.ErrInvalidTemplate when a declared path does not compile. The
// registry is left untouched on any failure.
func (r *Registry) RegisterResource(ctx context.Context, def ResourceDefinition) (*ResourceStub, error) {
	if def.Name == "" {
		return nil, fmt.Errorf("%w: empty resource name", ErrUnknownResource)
	}

	entry, err := buildResourceEntry(def)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	if _, exists := r.resources[def.Name]; exists {
		r.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrDuplicateResource, def.Name)
	}

	r.resources[def.Name] = entry
	r.order = append(r.order, def.Name)
	if entry.tmpl != nil {
		r.appendMatcherLocked(matcher{resource: def.Name, tmpl: entry.tmpl})
	}
	for _, name := range entry.order {
		act := entry.actions[name]
		if act.def.Path != "" && act.tmpl != nil {
			r.appendMatcherLocked(matcher{resource: def.Name, action: name, tmpl: act.tmpl})
		}
	}
	r.mu.Unlock()

	r.logger.Debug("registered resource",
		"resource", def.Name,
		"type", def.Type,
		"path", def.Path,
		"actions", len(def.Actions),
	)

	if r.notifier != nil {
		r.notifier.ResourceRegistered(ctx, def)
	}
	return &ResourceStub{registry: r, name: def.Name}, nil
}

// RegisterAction adds an action to an already registered resource. When the
// action declares no path of its own it inherits the resource template.
func (r *Registry) RegisterAction(ctx context.Context, resource string, def ActionDefinition) error {
	if def.Name == "" {
		return fmt.Errorf("%w: empty action name on resource %q", ErrUnknownAction, resource)
	}

	var tmpl *template.Template
	if def.Path != "" {
		var err error
		if tmpl, err = template.Compile(def.Path); err != nil {
			return err
		}
	}

	r.mu.Lock()
	entry, exists := r.resources[resource]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	if _, dup := entry.actions[def.Name]; dup {
		r.mu.Unlock()
		return fmt.Errorf("%w: %q on resource %q", ErrDuplicateAction, def.Name, resource)
	}

	act := &actionEntry{def: def, tmpl: tmpl}
	if act.tmpl == nil {
		act.tmpl = entry.tmpl
	}
	entry.actions[def.Name] = act
	entry.order = append(entry.order, def.Name)
	if def.Path != "" {
		r.appendMatcherLocked(matcher{resource: resource, action: def.Name, tmpl: tmpl})
	}
	r.mu.Unlock()

	r.logger.Debug("registered action",
		"resource", resource,
		"action", def.Name,
		"path", def.Path,
	)

	if r.notifier != nil {
		r.notifier.ActionRegistered(ctx, resource, def)
	}
	return nil
}

// ResolveByName looks up a resource and one of its actions by name.
func (r *Registry) ResolveByName(resource, action string) (ResourceDefinition, ActionDefinition, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entry, exists := r.resources[resource]
	if !exists {
		return ResourceDefinition{}, ActionDefinition{}, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
	}
	act, exists := entry.actions[action]
	if !exists {
		return ResourceDefinition{}, ActionDefinition{}, fmt.Errorf("%w: %q on resource %q", ErrUnknownAction, action, resource)
	}
	return entry.def, act.def, nil
}

// HasResource reports whether a resource name is registered.
func (r *Registry) HasResource(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.resources[name]
	return exists
}

// ResolveByPath matches a concrete path against all compiled templates in
// registration order and returns the first structural match. Candidates are
// pruned by segment count; the pruning preserves registration order, so the
// first-registered template still wins when several match.
func (r *Registry) ResolveByPath(path string) (MatchResult, error) {
	segments := len(template.SplitPath(path))

	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, idx := range r.bySegments[segments] {
		m := r.matchers[idx]
		values, ok := m.tmpl.Match(path)
		if !ok {
			continue
		}
		return MatchResult{
			Resource:  m.resource,
			Action:    m.action,
			Variables: values,
		}, nil
	}
	return MatchResult{}, fmt.Errorf("%w: %q", ErrNoMatch, path)
}

// Resources returns a snapshot of all resource definitions in registration
// order, with separately registered actions folded in.
func (r *Registry) Resources() []ResourceDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]ResourceDefinition, 0, len(r.order))
	for _, name := range r.order {
		entry := r.resources[name]
		def := entry.def
		def.Actions = make([]ActionDefinition, 0, len(entry.order))
		for _, actionName := range entry.order {
			def.Actions = append(def.Actions, entry.actions[actionName].def)
		}
		out = append(out, def)
	}
	return out
}

func (r *Registry) appendMatcherLocked(m matcher) {
	idx := len(r.matchers)
	r.matchers = append(r.matchers, m)
	n := m.tmpl.NumSegments()
	r.bySegments[n] = append(r.bySegments[n], idx)
}

// buildResourceEntry validates and compiles a full definition before any
// registry state is touched, so a failed registration has no side effects.
func buildResourceEntry(def ResourceDefinition) (*resourceEntry, error) {
	entry := &resourceEntry{
		def:     def,
		actions: make(map[string]*actionEntry, len(def.Actions)),
	}

	if def.Path != "" {
		tmpl, err := template.Compile(def.Path)
		if err != nil {
			return nil, err
		}
		entry.tmpl = tmpl
	}

	for _, action := range def.Actions {
		if action.Name == "" {
			return nil, fmt.Errorf("%w: empty action name on resource %q", ErrUnknownAction, def.Name)
		}
		if _, dup := entry.actions[action.Name]; dup {
			return nil, fmt.Errorf("%w: %q on resource %q", ErrDuplicateAction, action.Name, def.Name)
		}
		act := &actionEntry{def: action}
		if action.Path != "" {
			tmpl, err := template.Compile(action.Path)
			if err != nil {
				return nil, err
			}
			act.tmpl = tmpl
		} else {
			act.tmpl = entry.tmpl
		}
		entry.actions[action.Name] = act
		entry.order = append(entry.order, action.Name)
	}

	return entry, nil
}
