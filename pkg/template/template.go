// Package template compiles declared resource paths into matchable templates.
//
// A template is a sequence of segments separated by "/". A segment wrapped in
// braces (e.g. "{task_id}") is a variable segment that captures the
// corresponding segment of a concrete path; every other segment is a literal
// that must match verbatim. There are no wildcards and no optional segments,
// so matching is a pure structural comparison with a fixed segment count.
package template

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidTemplate is returned when a path template cannot be compiled.
var ErrInvalidTemplate = errors.New("invalid path template")

// segment is a single compiled path segment. Exactly one of literal or
// variable is set; variable segments are identified by a non-empty name.
type segment struct {
	literal  string
	variable string
}

// Template is the compiled, immutable form of a declared path.
type Template struct {
	raw      string
	segments []segment
	vars     []string
}

// Compile parses a path string into a Template. It fails when the path is
// empty, a segment is empty (double slash), braces are unmatched, or the same
// variable name appears more than once.
func Compile(path string) (*Template, error) {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil, fmt.Errorf("%w: empty path %q", ErrInvalidTemplate, path)
	}

	parts := strings.Split(trimmed, "/")
	segments := make([]segment, 0, len(parts))
	vars := make([]string, 0, 2)
	seen := make(map[string]struct{})

	for _, part := range parts {
		if part == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidTemplate, path)
		}

		if strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}") {
			name := part[1 : len(part)-1]
			if name == "" || strings.ContainsAny(name, "{}") {
				return nil, fmt.Errorf("%w: malformed variable segment %q in %q", ErrInvalidTemplate, part, path)
			}
			if _, dup := seen[name]; dup {
				return nil, fmt.Errorf("%w: duplicate variable %q in %q", ErrInvalidTemplate, name, path)
			}
			seen[name] = struct{}{}
			vars = append(vars, name)
			segments = append(segments, segment{variable: name})
			continue
		}

		if strings.ContainsAny(part, "{}") {
			return nil, fmt.Errorf("%w: unmatched brace in segment %q of %q", ErrInvalidTemplate, part, path)
		}

		segments = append(segments, segment{literal: part})
	}

	return &Template{
		raw:      path,
		segments: segments,
		vars:     vars,
	}, nil
}

// Match compares a concrete path against the template. On success it returns
// the captured variable values keyed by variable name. Matching never fails
// with an error: a structural mismatch simply returns false.
func (t *Template) Match(path string) (map[string]string, bool) {
	parts := SplitPath(path)
	if len(parts) != len(t.segments) {
		return nil, false
	}

	values := make(map[string]string, len(t.vars))
	for i, seg := range t.segments {
		if seg.variable != "" {
			if parts[i] == "" {
				return nil, false
			}
			values[seg.variable] = parts[i]
			continue
		}
		if parts[i] != seg.literal {
			return nil, false
		}
	}

	return values, true
}

// Vars returns the variable names in declaration order.
func (t *Template) Vars() []string {
	out := make([]string, len(t.vars))
	copy(out, t.vars)
	return out
}

// NumSegments returns the fixed segment count of the template.
func (t *Template) NumSegments() int {
	return len(t.segments)
}

// String returns the original path the template was compiled from.
func (t *Template) String() string {
	return t.raw
}

// SplitPath splits a concrete path into segments the same way templates are
// compiled, ignoring leading and trailing slashes.
func SplitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}
