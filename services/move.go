package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthonypark/dicomgo/client"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/interfaces"
)

// MoveRouter resolves a C-MOVE destination AE title to the network
// address the move handler should dial to forward matched instances,
// the "C-MOVE routing table" an operator configures a service provider
// with.
type MoveRouter interface {
	Resolve(destinationAETitle string) (address string, ok bool)
}

// StaticMoveRouter is the simplest MoveRouter: a fixed AE-title-to-
// address map, suitable for a single operator-configured routing table.
type StaticMoveRouter map[string]string

// Resolve looks destinationAETitle up in the map.
func (r StaticMoveRouter) Resolve(destinationAETitle string) (string, bool) {
	address, ok := r[destinationAETitle]
	return address, ok
}

// Move returns a dimse.HandlerFunc implementing C-MOVE: for every
// instance store.Retrieve matches, open a sub-association toward
// router's resolved destination and forward it via C-STORE, reporting
// progress counters as it goes, per spec.md §4.7. Unlike C-GET, the
// C-STORE sub-operations travel over a new association the provider
// opens to the destination AE, not back over the requesting
// association.
func Move(store interfaces.QueryStore, router MoveRouter, callingAETitle string) dimse.HandlerFunc {
	return func(ctx context.Context, op *dimse.Operation, req *dimse.Command, dataset []byte, x *dimse.Exchange) error {
		transferSyntax, err := x.TransferSyntaxFor(op.ContextID)
		if err != nil {
			return fmt.Errorf("move: %w", err)
		}
		identifier, err := decodeDataset(dataset, transferSyntax)
		if err != nil {
			return fmt.Errorf("move: decode identifier: %w", err)
		}

		address, ok := router.Resolve(req.MoveDestination)
		if !ok {
			slog.WarnContext(ctx, "C-MOVE destination unknown", "destination", req.MoveDestination)
			resp := dimse.MoveResponse{
				MessageIDBeingRespondedTo: req.MessageID,
				AffectedSOPClassUID:       req.AffectedSOPClassUID,
				Status:                    dimse.Status(0xA801),
			}
			if err := x.Send(op.ContextID, resp.ToCommand(), nil); err != nil {
				return err
			}
			return op.WriteTerminal(dimse.Status(0xA801))
		}

		instances, err := store.Retrieve(ctx, queryLevel(identifier), identifier)
		if err != nil {
			slog.ErrorContext(ctx, "C-MOVE query failed", "error", err)
			resp := dimse.MoveResponse{
				MessageIDBeingRespondedTo: req.MessageID,
				AffectedSOPClassUID:       req.AffectedSOPClassUID,
				Status:                    dimse.Status(0xA700),
			}
			if err := x.Send(op.ContextID, resp.ToCommand(), nil); err != nil {
				return err
			}
			return op.WriteTerminal(dimse.Status(0xA700))
		}

		total := len(instances)
		var completed, failed, warning uint16

		if total > 0 {
			dest, err := client.Connect(ctx, address, client.Config{
				CallingAETitle: callingAETitle,
				CalledAETitle:  req.MoveDestination,
			})
			if err != nil {
				slog.ErrorContext(ctx, "C-MOVE could not connect to destination", "error", err, "destination", req.MoveDestination)
				failed = uint16(total)
			} else {
				defer dest.Release()
				for _, instance := range instances {
					data, err := encodeDataset(instance, transferSyntax)
					if err != nil {
						failed++
						continue
					}
					_, err = dest.Store(client.StoreRequest{
						Instance: client.StoreInstance{
							SOPClassUID:    instance.GetString(sopClassUIDTag),
							SOPInstanceUID: instance.GetString(sopInstanceUIDTag),
							TransferSyntax: transferSyntax,
							Data:           data,
						},
					})
					if err != nil {
						slog.ErrorContext(ctx, "C-MOVE sub-operation C-STORE failed", "error", err)
						failed++
					} else {
						completed++
					}

					remaining := uint16(total) - completed - failed
					pending := dimse.MoveResponse{
						MessageIDBeingRespondedTo: req.MessageID,
						AffectedSOPClassUID:       req.AffectedSOPClassUID,
						Status:                    dimse.StatusPendingA,
						Counters:                  dimse.SubOpCounters{Remaining: remaining, Completed: completed, Failed: failed, Warning: warning},
					}
					if err := x.Send(op.ContextID, pending.ToCommand(), nil); err != nil {
						return err
					}
					if err := op.WritePending(); err != nil {
						return err
					}
				}
			}
		}

		status := dimse.StatusSuccess
		if failed > 0 && completed == 0 {
			status = dimse.Status(0xA702)
		}
		final := dimse.MoveResponse{
			MessageIDBeingRespondedTo: req.MessageID,
			AffectedSOPClassUID:       req.AffectedSOPClassUID,
			Status:                    status,
			Counters:                  dimse.SubOpCounters{Remaining: 0, Completed: completed, Failed: failed, Warning: warning},
		}
		if err := x.Send(op.ContextID, final.ToCommand(), nil); err != nil {
			return err
		}
		return op.WriteTerminal(status)
	}
}
