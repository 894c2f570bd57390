package registry

import "errors"

var (
	// ErrDuplicateResource is returned when registering a resource name that
	// already exists.
	ErrDuplicateResource = errors.New("registry: resource already registered")

	// ErrDuplicateAction is returned when registering an action name that
	// already exists on the same resource.
	ErrDuplicateAction = errors.New("registry: action already registered")

	// ErrUnknownResource is returned when a resource name is not registered.
	ErrUnknownResource = errors.New("registry: unknown resource")

	// ErrUnknownAction is returned when an action name is not registered on
	// the resource.
	ErrUnknownAction = errors.New("registry: unknown action")

	// ErrNoMatch is returned when no compiled template matches a path.
	ErrNoMatch = errors.New("registry: no matching resource for path")
)
