package api

import (
	"context"

	"github.com/yannnico/rc-car-project/internal/command"
)

// StatusPort is what the status endpoint needs from the orchestrator.
type StatusPort interface {
	Status(ctx context.Context) command.Status
}

var _ StatusPort = (*command.Orchestrator)(nil)
