package dimse

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anthonypark/dicomgo/assoc"
	dicomerrors "github.com/anthonypark/dicomgo/errors"
)

// HandlerFunc processes one complete incoming request against a bound
// Operation. Implementations write their response(s) through x.Send,
// transitioning op via WritePending/WriteTerminal as they go; the
// Router transitions op to Processing before calling the handler and
// expects it to reach Done (or Aborting, by returning an error) by the
// time it returns.
type HandlerFunc func(ctx context.Context, op *Operation, req *Command, dataset []byte, x *Exchange) error

// Router dispatches incoming DIMSE requests to registered handlers by
// request CommandField, implementing the provider-side half of spec.md
// §4.6 step 7 ("dispatch to a registered handler keyed by command
// type").
type Router struct {
	handlers map[uint16]HandlerFunc
	logger   *slog.Logger
}

// NewRouter returns an empty Router.
func NewRouter(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{handlers: make(map[uint16]HandlerFunc), logger: logger}
}

// Handle registers fn for requests whose CommandField is commandField
// (e.g. CEchoRQ, CFindRQ).
func (r *Router) Handle(commandField uint16, fn HandlerFunc) {
	r.handlers[commandField] = fn
}

// Serve drives the per-association message loop of spec.md §4.6 step 7:
// read the next message, dispatch it to its registered handler, repeat
// until the peer releases or aborts. It returns nil on a clean
// A-RELEASE, and an error (typically *errors.AbortError) otherwise.
func (r *Router) Serve(ctx context.Context, a *assoc.Association) error {
	x := NewExchange(a)
	for {
		contextID, cmd, dataset, err := x.Receive()
		if err != nil {
			if errors.Is(err, dicomerrors.ErrConnectionClosed) {
				return nil
			}
			return err
		}

		if cmd.CommandField == CCancelRQ {
			r.logger.InfoContext(ctx, "received C-CANCEL", "message_id_being_responded_to", cmd.MessageIDBeingRespondedTo)
			continue
		}

		op := NewOperation(cmd, contextID)
		if err := op.Begin(); err != nil {
			return fmt.Errorf("begin operation: %w", err)
		}

		handler, ok := r.handlers[cmd.CommandField]
		if !ok {
			r.logger.WarnContext(ctx, "no handler registered for command", "command_field", fmt.Sprintf("0x%04x", cmd.CommandField))
			resp := &Command{
				CommandField:              cmd.CommandField | 0x8000,
				MessageIDBeingRespondedTo: cmd.MessageID,
				AffectedSOPClassUID:       cmd.AffectedSOPClassUID,
				CommandDataSetType:        DataSetTypeNone,
				Status:                    uint16(0x0211), // unrecognized operation, §4.7 0x02?? failure range
			}
			if err := x.Send(contextID, resp, nil); err != nil {
				return fmt.Errorf("send unsupported-command response: %w", err)
			}
			_ = op.WriteTerminal(Status(resp.Status))
			continue
		}

		if err := handler(ctx, op, cmd, dataset, x); err != nil {
			op.Abort()
			r.logger.ErrorContext(ctx, "handler failed, aborting association", "error", err)
			_ = a.Abort(0x02, 0x02)
			op.Closed()
			return fmt.Errorf("dispatch 0x%04x: %w", cmd.CommandField, err)
		}
	}
}
