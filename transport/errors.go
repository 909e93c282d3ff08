package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError is a non-2xx response. Message is the body's "error" field when
// the server sent one, otherwise the status text.
type HTTPError struct {
	Method  string
	URL     string
	Status  int
	Message string

	// FromServer is true when Message came from the response body.
	FromServer bool
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("api error (%d): %s", e.Status, e.Message)
}

// StatusCode lets retry policies classify the error without importing this
// package.
func (e *HTTPError) StatusCode() int { return e.Status }

// Application reports a business-rule rejection: a client error the server
// explained in its body.
func (e *HTTPError) Application() bool {
	return e.FromServer && e.Status >= 400 && e.Status < 500
}

// ApplicationError is the business-rule view of an HTTPError.
type ApplicationError struct {
	Status  int
	Message string
	Err     *HTTPError
}

func (e *ApplicationError) Error() string { return e.Message }
func (e *ApplicationError) Unwrap() error { return e.Err }

// AsApplicationError finds an HTTPError in err's chain that the server
// rejected on business grounds.
func AsApplicationError(err error) (*ApplicationError, bool) {
	var herr *HTTPError
	if !errors.As(err, &herr) || !herr.Application() {
		return nil, false
	}
	return &ApplicationError{Status: herr.Status, Message: herr.Message, Err: herr}, true
}

// TransportError is a request that never produced a response.
type TransportError struct {
	Op  string
	URL string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.URL, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsStatus reports whether err carries an HTTPError with the given status.
func IsStatus(err error, status int) bool {
	var herr *HTTPError
	return errors.As(err, &herr) && herr.Status == status
}

// IsNotFound is IsStatus(err, 404).
func IsNotFound(err error) bool { return IsStatus(err, http.StatusNotFound) }
