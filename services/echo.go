// Package services provides reusable DICOM service implementations.
//
// This package contains standard DICOM service implementations that can be
// used by any DICOM server application. These implementations follow the
// DICOM standard and have no external backend dependencies.
package services

import (
	"context"
	"log/slog"

	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/uid"
)

// Echo returns a dimse.HandlerFunc implementing C-ECHO verification: a
// stateless "ping" that always reports success, per spec.md §4.7.
//
// C-ECHO is used to verify connectivity and application-level
// communication between two DICOM Application Entities. It has no
// dataset and no external dependencies.
func Echo() dimse.HandlerFunc {
	return func(ctx context.Context, op *dimse.Operation, req *dimse.Command, dataset []byte, x *dimse.Exchange) error {
		slog.DebugContext(ctx, "processing C-ECHO request", "message_id", req.MessageID)

		resp := dimse.EchoResponse{
			MessageIDBeingRespondedTo: req.MessageID,
			AffectedSOPClassUID:       uid.VerificationSOPClass,
			Status:                    dimse.StatusSuccess,
		}
		if err := x.Send(op.ContextID, resp.ToCommand(), nil); err != nil {
			return err
		}
		return op.WriteTerminal(dimse.StatusSuccess)
	}
}
