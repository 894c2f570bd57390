package enforce

import "github.com/aegisauth/aegis/internal/telemetry"

// FailPolicy controls the verdict returned when the PDP cannot be reached or
// answers with garbage.
type FailPolicy string

const (
	// FailClosed denies on PDP failure. This is the default.
	FailClosed FailPolicy = "closed"

	// FailOpen allows on PDP failure, for deployments that prioritize
	// availability over strict enforcement. Opt-in only.
	FailOpen FailPolicy = "open"
)

// Source tells where a decision came from, so callers and operators can
// distinguish a real PDP verdict from an unresolved-resource deny or a
// fail-policy fallback without giving up the always-boolean contract.
type Source string

const (
	// SourcePDP marks a verbatim PDP verdict.
	SourcePDP Source = telemetry.SourcePDP

	// SourceUnresolved marks an automatic deny for a resource or action the
	// registry does not know. No network call was made.
	SourceUnresolved Source = telemetry.SourceUnresolved

	// SourceFailPolicy marks a verdict produced by the fail policy after a
	// PDP failure.
	SourceFailPolicy Source = telemetry.SourceFailPolicy
)

// Decision is the outcome of a Check call.
type Decision struct {
	// Allowed is the verdict. Always set; never "unknown".
	Allowed bool

	// Source tells how the verdict was produced.
	Source Source

	// QueryID correlates this decision with log lines and PDP traffic.
	QueryID string

	// Err carries the underlying PDP failure when Source is
	// SourceFailPolicy. Informational only; the verdict already reflects
	// the configured policy.
	Err error
}

// ResourceRef is the explicit form of the resource argument: either a
// declared resource name or a concrete path to be matched against declared
// templates.
type ResourceRef struct {
	name string
	path string
}

// ByName references a resource by its declared name.
func ByName(name string) ResourceRef {
	return ResourceRef{name: name}
}

// ByPath references a resource by a concrete request path.
func ByPath(path string) ResourceRef {
	return ResourceRef{path: path}
}

// IsPath reports whether the reference is a path lookup.
func (r ResourceRef) IsPath() bool {
	return r.path != ""
}

// String returns the name or path the reference was created with.
func (r ResourceRef) String() string {
	if r.path != "" {
		return r.path
	}
	return r.name
}
