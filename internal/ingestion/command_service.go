package ingestion

import (
	"context"

	errorsmod "cosmossdk.io/errors"

	"PerpClearing/internal/core"
	"PerpClearing/internal/event"
)

// CommandService submits commands synchronously for the HTTP and admin
// surfaces. NATS remains the high-throughput path.
type CommandService struct {
	dispatcher Dispatcher
}

func NewCommandService(d Dispatcher) *CommandService {
	return &CommandService{dispatcher: d}
}

// Submit parses payload as a command for op and dispatches it. A duplicate
// returns (nil, nil).
func (s *CommandService) Submit(ctx context.Context, op event.Operation, payload []byte) (*event.Envelope, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, errorsmod.Wrap(core.ErrInvalidCommand, "empty payload")
	}

	cmd, err := ParseCommand(op, payload)
	if err != nil {
		return nil, err
	}
	return s.dispatcher.Process(cmd, payload)
}
