package backend

import (
	"context"
	"errors"
	"fmt"
)

// ErrNotFound is returned when the backend has no such task.
var ErrNotFound = errors.New("task not found")

// StatusError is a reply whose envelope status differs from what the endpoint promises.
type StatusError struct {
	Endpoint string
	Code     int
	Want     int
	Message  string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: status %d: %s", e.Endpoint, e.Code, e.Message)
	}
	return fmt.Sprintf("%s: status %d, want %d", e.Endpoint, e.Code, e.Want)
}

// Kind classifies a failed call.
type Kind int

const (
	// KindNone means no error.
	KindNone Kind = iota
	// KindCanceled is an aborted request; it is never shown to the user.
	KindCanceled
	// KindRejected is a business rejection carrying the backend's message.
	KindRejected
	// KindTransport is a network failure or an unreadable reply.
	KindTransport
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "none"
	case KindCanceled:
		return "canceled"
	case KindRejected:
		return "rejected"
	default:
		return "transport"
	}
}

// Classify sorts err into one of the error kinds.
func Classify(err error) Kind {
	if err == nil {
		return KindNone
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	var se *StatusError
	if errors.As(err, &se) {
		return KindRejected
	}
	return KindTransport
}

// Message returns the text to show the user for err.
func Message(err error) string {
	var se *StatusError
	if errors.As(err, &se) && se.Message != "" {
		return se.Message
	}
	return err.Error()
}
