package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/interfaces"
	"github.com/anthonypark/dicomgo/tag"
)

var (
	sopClassUIDTag    = tag.Tag{Group: 0x0008, Element: 0x0016}
	sopInstanceUIDTag = tag.Tag{Group: 0x0008, Element: 0x0018}
)

// Get returns a dimse.HandlerFunc implementing C-GET: for every
// instance store.Retrieve matches, perform a C-STORE sub-operation back
// over the same association (the defining trait that separates C-GET
// from C-MOVE), sending a pending response with the progress counters
// before each, per spec.md §4.7.
func Get(store interfaces.QueryStore) dimse.HandlerFunc {
	return func(ctx context.Context, op *dimse.Operation, req *dimse.Command, dataset []byte, x *dimse.Exchange) error {
		transferSyntax, err := x.TransferSyntaxFor(op.ContextID)
		if err != nil {
			return fmt.Errorf("get: %w", err)
		}
		identifier, err := decodeDataset(dataset, transferSyntax)
		if err != nil {
			return fmt.Errorf("get: decode identifier: %w", err)
		}

		instances, err := store.Retrieve(ctx, queryLevel(identifier), identifier)
		if err != nil {
			slog.ErrorContext(ctx, "C-GET query failed", "error", err)
			resp := dimse.GetResponse{
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

		for i, instance := range instances {
			remaining := uint16(total - i - 1)

			pending := dimse.GetResponse{
				MessageIDBeingRespondedTo: req.MessageID,
				AffectedSOPClassUID:       req.AffectedSOPClassUID,
				Status:                    dimse.StatusPendingA,
				Counters:                  dimse.SubOpCounters{Remaining: remaining + 1, Completed: completed, Failed: failed, Warning: warning},
			}
			if err := x.Send(op.ContextID, pending.ToCommand(), nil); err != nil {
				return err
			}
			if err := op.WritePending(); err != nil {
				return err
			}

			data, err := encodeDataset(instance, transferSyntax)
			if err != nil {
				return fmt.Errorf("get: encode instance: %w", err)
			}
			storeReq := dimse.StoreRequest{
				MessageID:              dimse.NextMessageID(),
				AffectedSOPClassUID:    instance.GetString(sopClassUIDTag),
				AffectedSOPInstanceUID: instance.GetString(sopInstanceUIDTag),
			}
			if err := x.Send(op.ContextID, storeReq.ToCommand(), data); err != nil {
				return err
			}
			_, storeRsp, _, err := x.Receive()
			if err != nil {
				return fmt.Errorf("get: sub-operation C-STORE-RSP: %w", err)
			}
			if dimse.Status(storeRsp.Status).Classify() == dimse.ClassSuccess {
				completed++
			} else {
				failed++
			}
		}

		final := dimse.GetResponse{
			MessageIDBeingRespondedTo: req.MessageID,
			AffectedSOPClassUID:       req.AffectedSOPClassUID,
			Status:                    dimse.StatusSuccess,
			Counters:                  dimse.SubOpCounters{Remaining: 0, Completed: completed, Failed: failed, Warning: warning},
		}
		if err := x.Send(op.ContextID, final.ToCommand(), nil); err != nil {
			return err
		}
		return op.WriteTerminal(dimse.StatusSuccess)
	}
}
