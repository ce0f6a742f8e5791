package remote

import "fmt"

// Error describes a failed remote submission.
type Error struct {
	// Op names the remote operation, e.g. "submit daily log".
	Op string
	// StatusCode is the HTTP status, or 0 when the request never got a
	// response (network error, timeout).
	StatusCode int
	// Err is the underlying cause, if any.
	Err error
}

func (e *Error) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: status %d", e.Op, e.StatusCode)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return e.Op
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Temporary reports whether the failure looks transient: no response at all,
// a 5xx, a timeout (408), or throttling (429). A 4xx body rejection is
// permanent; retrying it without changing the payload cannot succeed.
func (e *Error) Temporary() bool {
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode >= 500 {
		return true
	}
	return e.StatusCode == 408 || e.StatusCode == 429
}
