package services

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthonypark/dicomgo/dicom"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/interfaces"
	"github.com/anthonypark/dicomgo/tag"
)

var queryRetrieveLevelTag = tag.Tag{Group: 0x0008, Element: 0x0052}

// queryLevel reads the (0008,0052) QueryRetrieveLevel element off an
// identifier dataset, defaulting to study level when absent.
func queryLevel(identifier *dicom.Dataset) interfaces.QueryLevel {
	switch identifier.GetString(queryRetrieveLevelTag) {
	case "PATIENT":
		return interfaces.LevelPatient
	case "SERIES":
		return interfaces.LevelSeries
	case "IMAGE":
		return interfaces.LevelImage
	default:
		return interfaces.LevelStudy
	}
}

// Find returns a dimse.HandlerFunc implementing C-FIND: one pending
// C-FIND-RSP per match store.Find returns, followed by a final success
// response, per spec.md §4.7's composite-find description. Matching
// itself is store's concern; this handler only drives the DIMSE
// exchange around it.
func Find(store interfaces.QueryStore) dimse.HandlerFunc {
	return func(ctx context.Context, op *dimse.Operation, req *dimse.Command, dataset []byte, x *dimse.Exchange) error {
		transferSyntax, err := x.TransferSyntaxFor(op.ContextID)
		if err != nil {
			return fmt.Errorf("find: %w", err)
		}
		identifier, err := decodeDataset(dataset, transferSyntax)
		if err != nil {
			return fmt.Errorf("find: decode identifier: %w", err)
		}

		matches, err := store.Find(ctx, queryLevel(identifier), identifier)
		if err != nil {
			slog.ErrorContext(ctx, "C-FIND query failed", "error", err)
			resp := dimse.FindResponse{
				MessageIDBeingRespondedTo: req.MessageID,
				AffectedSOPClassUID:       req.AffectedSOPClassUID,
				Status:                    dimse.Status(0xA700),
			}
			if err := x.Send(op.ContextID, resp.ToCommand(), nil); err != nil {
				return err
			}
			return op.WriteTerminal(dimse.Status(0xA700))
		}

		for _, match := range matches {
			data, err := encodeDataset(match, transferSyntax)
			if err != nil {
				return fmt.Errorf("find: encode match: %w", err)
			}
			pending := dimse.FindResponse{
				MessageIDBeingRespondedTo: req.MessageID,
				AffectedSOPClassUID:       req.AffectedSOPClassUID,
				Status:                    dimse.StatusPendingA,
				HasDataset:                true,
			}
			if err := x.Send(op.ContextID, pending.ToCommand(), data); err != nil {
				return err
			}
			if err := op.WritePending(); err != nil {
				return err
			}
		}

		final := dimse.FindResponse{
			MessageIDBeingRespondedTo: req.MessageID,
			AffectedSOPClassUID:       req.AffectedSOPClassUID,
			Status:                    dimse.StatusSuccess,
		}
		if err := x.Send(op.ContextID, final.ToCommand(), nil); err != nil {
			return err
		}
		return op.WriteTerminal(dimse.StatusSuccess)
	}
}
