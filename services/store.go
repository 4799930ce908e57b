package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/interfaces"
)

// Store returns a dimse.HandlerFunc implementing C-STORE: decode the
// incoming instance, hand it to store.Store, and report a single
// success/failure status, per spec.md §4.7.
func Store(store interfaces.QueryStore) dimse.HandlerFunc {
	return func(ctx context.Context, op *dimse.Operation, req *dimse.Command, dataset []byte, x *dimse.Exchange) error {
		transferSyntax, err := x.TransferSyntaxFor(op.ContextID)
		if err != nil {
			return fmt.Errorf("store: %w", err)
		}
		instance, err := decodeDataset(dataset, transferSyntax)
		if err != nil {
			return fmt.Errorf("store: decode instance: %w", err)
		}

		status := dimse.StatusSuccess
		if err := store.Store(ctx, instance); err != nil {
			slog.ErrorContext(ctx, "C-STORE failed", "error", err, "sop_instance", req.AffectedSOPInstanceUID)
			status = dimse.Status(0xA700)
		}

		resp := dimse.StoreResponse{
			MessageIDBeingRespondedTo: req.MessageID,
			AffectedSOPClassUID:       req.AffectedSOPClassUID,
			AffectedSOPInstanceUID:    req.AffectedSOPInstanceUID,
			Status:                    status,
		}
		if err := x.Send(op.ContextID, resp.ToCommand(), nil); err != nil {
			return err
		}
		return op.WriteTerminal(status)
	}
}
