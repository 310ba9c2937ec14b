package gateway

import "fmt"

// RemoteError is the single error shape surfaced for any transport or HTTP
// failure. Code is the HTTP status where available, 0 for network-level
// failures (timeout, connect failure, open circuit).
type RemoteError struct {
	Code    int
	Message string
}

func (e *RemoteError) Error() string {
	if e.Code == 0 {
		return fmt.Sprintf("remote store: %s", e.Message)
	}
	return fmt.Sprintf("remote store: status %d: %s", e.Code, e.Message)
}

func transportError(err error) *RemoteError {
	return &RemoteError{Code: 0, Message: err.Error()}
}
