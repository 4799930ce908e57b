package client

import (
	"fmt"

	"github.com/anthonypark/dicomgo/dimse"
	dicomerrors "github.com/anthonypark/dicomgo/errors"
)

// StoreInstance carries one SOP instance's identity and encoded dataset,
// whether being pushed by this client (StoreRequest) or received as a
// C-GET sub-operation (client.Get's StoreHandler).
type StoreInstance struct {
	SOPClassUID    string
	SOPInstanceUID string
	TransferSyntax string
	Data           []byte // encoded dataset bytes under TransferSyntax
}

// StoreRequest requests storage of one SOP instance.
type StoreRequest struct {
	MessageID uint16
	Instance  StoreInstance
}

// StoreResult is the response to a C-STORE.
type StoreResult struct {
	Status         dimse.Status
	MessageID      uint16
	SOPClassUID    string
	SOPInstanceUID string
}

// Store sends a C-STORE request carrying an already-encoded instance and
// waits for the response.
func (a *Association) Store(req StoreRequest) (*StoreResult, error) {
	messageID := req.MessageID
	if messageID == 0 {
		messageID = dimse.NextMessageID()
	}

	contextID, err := a.ContextID(req.Instance.SOPClassUID)
	if err != nil {
		return nil, fmt.Errorf("no presentation context for SOP class %s: %w", req.Instance.SOPClassUID, err)
	}

	cmd := dimse.StoreRequest{
		MessageID:              messageID,
		AffectedSOPClassUID:    req.Instance.SOPClassUID,
		AffectedSOPInstanceUID: req.Instance.SOPInstanceUID,
	}.ToCommand()

	if err := a.send(contextID, cmd, req.Instance.Data); err != nil {
		return nil, fmt.Errorf("send C-STORE-RQ: %w", err)
	}

	a.logger.Debug("sent C-STORE-RQ", "sop_class", req.Instance.SOPClassUID, "sop_instance", req.Instance.SOPInstanceUID, "data_size", len(req.Instance.Data))

	_, respCmd, _, err := a.receive()
	if err != nil {
		return nil, fmt.Errorf("receive C-STORE-RSP: %w", err)
	}
	if respCmd.CommandField != dimse.CStoreRSP {
		return nil, fmt.Errorf("unexpected command: 0x%04x (expected C-STORE-RSP)", respCmd.CommandField)
	}
	if dimse.Status(respCmd.Status).Classify() == dimse.ClassInvalid {
		return nil, &dicomerrors.UnexpectedCommandStatusError{Status: respCmd.Status}
	}

	return &StoreResult{
		Status:         dimse.Status(respCmd.Status),
		MessageID:      respCmd.MessageIDBeingRespondedTo,
		SOPClassUID:    respCmd.AffectedSOPClassUID,
		SOPInstanceUID: respCmd.AffectedSOPInstanceUID,
	}, nil
}
