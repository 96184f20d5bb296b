package jira

import (
	"errors"
)

// Error taxonomy for tracker interactions. Callers classify failures with
// errors.Is against these sentinels.
var (
	// ErrUnauthorized indicates a missing or rejected credential.
	ErrUnauthorized = errors.New("jira credential missing or rejected")

	// ErrInvalidRequest indicates malformed client input; never retried.
	ErrInvalidRequest = errors.New("invalid request")

	// ErrRemoteUnavailable indicates a transient failure (network, 5xx,
	// rate limit) that persisted through retries.
	ErrRemoteUnavailable = errors.New("jira unavailable")

	// ErrRemoteRejected indicates the tracker explicitly refused the
	// request (permissions, validation); never retried.
	ErrRemoteRejected = errors.New("jira rejected the request")

	// ErrNotFound indicates the referenced issue does not exist.
	ErrNotFound = errors.New("issue not found")
)

// ErrorCode returns the stable taxonomy code for an error, for use in HTTP
// error bodies.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrRemoteRejected):
		return "remote_rejected"
	case errors.Is(err, ErrRemoteUnavailable):
		return "remote_unavailable"
	default:
		return "internal"
	}
}
