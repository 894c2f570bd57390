package pdp

import "fmt"

// User is the wire form of the user identity in a decision query.
type User struct {
	Key        string            `json:"key"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

// Resource is the wire form of the decision target. Type is the declared
// resource name, Path the declared template and Instance the concrete path
// the enforcement call was made with (when resolved by path).
type Resource struct {
	Type     string            `json:"type"`
	Path     string            `json:"path,omitempty"`
	Instance string            `json:"instance,omitempty"`
	Tenant   string            `json:"tenant,omitempty"`
	Context  map[string]string `json:"context,omitempty"`
}

// Query is the decision payload sent to the PDP's /allowed endpoint.
type Query struct {
	User     User     `json:"user"`
	Action   string   `json:"action"`
	Resource Resource `json:"resource"`
}

// allowedResponse is the PDP's decision verdict.
type allowedResponse struct {
	Allow bool `json:"allow"`
}

// HTTPError represents a non-success response from the PDP.
type HTTPError struct {
	StatusCode int
	Message    string
	URL        string
}

// Error returns the error message.
func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d for URL %s: %s", e.StatusCode, e.URL, e.Message)
}

// NewHTTPError creates a new HTTP error.
func NewHTTPError(statusCode int, url, message string) error {
	return &HTTPError{
		StatusCode: statusCode,
		URL:        url,
		Message:    message,
	}
}
