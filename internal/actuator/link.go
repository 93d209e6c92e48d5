package actuator

import (
	"context"

	"github.com/yannnico/rc-car-project/internal/codec"
)

// Link is the outbound port to the actuator. Implementations must be safe
// for concurrent use: connection handlers and the watchdog share one Link.
type Link interface {
	// Send emits one datagram carrying frame.
	Send(ctx context.Context, frame codec.Frame) error

	// Addr returns the actuator endpoint as host:port.
	Addr() string

	// Close releases the underlying socket.
	Close() error
}
