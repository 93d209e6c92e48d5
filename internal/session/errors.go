package session

import "github.com/pkg/errors"

// Registry and session errors.
var (
	ErrBusy              = errors.New("BUSY")
	ErrNotFound          = errors.New("NOT_FOUND")
	ErrInvalidTransition = errors.New("INVALID_TRANSITION")
	ErrClosed            = errors.New("SESSION_CLOSED")
	ErrSendTimeout       = errors.New("SEND_TIMEOUT")
)
