package command

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/yannnico/rc-car-project/internal/codec"
	"github.com/yannnico/rc-car-project/internal/telemetry"
	"github.com/yannnico/rc-car-project/internal/watchdog"
)

// Watchdog is the failsafe timer as seen by the orchestrator.
type Watchdog interface {
	Touch()
	SinceLastForward() (time.Duration, bool)
	Tripped() bool
}

// TelemetryPublisher fans out forwarded frames.
type TelemetryPublisher interface {
	Publish(frame codec.Frame, ts time.Time)
	Last() (telemetry.Record, bool)
}

// AuditLogger records role changes.
type AuditLogger interface {
	LogAction(ctx context.Context, action, sessionID, outcome string, params map[string]interface{})
}

var (
	_ Watchdog           = (*watchdog.Watchdog)(nil)
	_ TelemetryPublisher = (*telemetry.Hub)(nil)
)

// Drop reasons. None of them is reported to the client.
var (
	ErrNotDriver       = errors.New("NOT_DRIVER")
	ErrUnsupportedRole = errors.New("UNSUPPORTED_ROLE")
)
