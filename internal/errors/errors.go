// internal/errors/errors.go
package errors

import "fmt"

// ErrInvalidProjectURL is returned when a project's source URL cannot be
// mapped to a GitHub repository endpoint.
type ErrInvalidProjectURL struct {
	URL string
}

func (e *ErrInvalidProjectURL) Error() string {
	return fmt.Sprintf("invalid project URL: %q, expected https://github.com/{owner}/{repo}", e.URL)
}
