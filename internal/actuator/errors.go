package actuator

import (
	"context"
	"fmt"
	"net"
	"os"
	"syscall"

	"github.com/pkg/errors"
)

// Normalized link errors.
var (
	ErrUnavailable = errors.New("UNAVAILABLE")
	ErrInternal    = errors.New("INTERNAL")
)

// LinkError wraps a transport error with its normalized code.
type LinkError struct {
	Code     error
	Op       string
	Original error
}

func (e *LinkError) Error() string {
	return fmt.Sprintf("%v: %s (transport: %v)", e.Code, e.Op, e.Original)
}

func (e *LinkError) Unwrap() error {
	return e.Code
}

// unavailableErrors are transport conditions where the actuator endpoint is
// unreachable but may come back without operator intervention.
var unavailableErrors = []error{
	syscall.ECONNREFUSED,
	syscall.EHOSTUNREACH,
	syscall.ENETUNREACH,
	syscall.EHOSTDOWN,
	syscall.ENETDOWN,
	net.ErrClosed,
	os.ErrDeadlineExceeded,
	context.DeadlineExceeded,
	context.Canceled,
}

// Normalize maps a transport error to ErrUnavailable or ErrInternal.
func Normalize(op string, err error) error {
	if err == nil {
		return nil
	}
	return &LinkError{Code: codeFor(err), Op: op, Original: err}
}

// Code returns the normalized code carried by err, or nil.
func Code(err error) error {
	var linkErr *LinkError
	if errors.As(err, &linkErr) {
		return linkErr.Code
	}
	return nil
}

func codeFor(err error) error {
	if code := Code(err); code != nil {
		return code
	}
	if errors.Is(err, ErrUnavailable) {
		return ErrUnavailable
	}

	for _, target := range unavailableErrors {
		if errors.Is(err, target) {
			return ErrUnavailable
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return ErrUnavailable
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ErrUnavailable
	}

	return ErrInternal
}
