package backend

import (
	"errors"
	"fmt"
)

// ErrAuth is matched (via errors.Is) by every authentication failure:
// missing local credentials, a missing token, or a 401/403 response.
var ErrAuth = errors.New("authentication required")

// ErrNotLoggedIn is matched by the AuthError returned when no session token
// is set.
var ErrNotLoggedIn = errors.New("not logged in")

// ErrNotFound is matched by 404 responses.
var ErrNotFound = errors.New("not found")

// AuthError reports missing or rejected credentials.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	return "backend: auth: " + e.Reason
}

// Is makes errors.Is(err, ErrAuth) true for any *AuthError.
func (e *AuthError) Is(target error) bool { return target == ErrAuth }

func (e *AuthError) Unwrap() error { return e.Err }

// NetworkError reports a transport failure: the request never produced an
// HTTP response.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("backend: %s: network: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ServerError reports a non-2xx response other than 401/403, or a 2xx
// response whose body could not be decoded (Err is then set).
type ServerError struct {
	Op         string
	StatusCode int
	Detail     string
	Err        error
}

func (e *ServerError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("backend: %s: server returned %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("backend: %s: server returned %d: %s", e.Op, e.StatusCode, e.Detail)
}

func (e *ServerError) Unwrap() error { return e.Err }

// Is makes errors.Is(err, ErrNotFound) true for 404 responses.
func (e *ServerError) Is(target error) bool {
	return target == ErrNotFound && e.StatusCode == 404
}
