package ai

import (
	"errors"
	"fmt"
	"strings"

	"google.golang.org/api/googleapi"
)

// RemoteErrorKind classifies failures surfaced by the remote model API
type RemoteErrorKind string

const (
	RemoteTransport         RemoteErrorKind = "transport"
	RemoteRejected          RemoteErrorKind = "rejected"
	RemoteContextTooLarge   RemoteErrorKind = "context_too_large"
	RemoteStreamInterrupted RemoteErrorKind = "stream_interrupted"
)

// RemoteError wraps an error from the remote vision/chat API with its
// classification. Callers decide on retry policy; this layer never
// retries on its own.
type RemoteError struct {
	Kind RemoteErrorKind
	Code int
	Err  error
}

func (e *RemoteError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("remote %s error (code %d): %v", e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("remote %s error: %v", e.Kind, e.Err)
}

func (e *RemoteError) Unwrap() error {
	return e.Err
}

// IsRemoteKind reports whether err is a RemoteError of the given kind
func IsRemoteKind(err error, kind RemoteErrorKind) bool {
	var re *RemoteError
	if errors.As(err, &re) {
		return re.Kind == kind
	}
	return false
}

// classifyRemoteError maps an error from the Gemini SDK to the
// RemoteError taxonomy. API-reported errors carry an HTTP status code;
// everything else is a transport failure.
func classifyRemoteError(err error) *RemoteError {
	var re *RemoteError
	if errors.As(err, &re) {
		return re
	}

	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		msg := strings.ToLower(apiErr.Message)
		if apiErr.Code == 400 && strings.Contains(msg, "token") {
			return &RemoteError{Kind: RemoteContextTooLarge, Code: apiErr.Code, Err: err}
		}
		return &RemoteError{Kind: RemoteRejected, Code: apiErr.Code, Err: err}
	}

	return &RemoteError{Kind: RemoteTransport, Err: err}
}
