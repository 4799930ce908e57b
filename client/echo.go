package client

import (
	"fmt"

	"github.com/anthonypark/dicomgo/dimse"
	dicomerrors "github.com/anthonypark/dicomgo/errors"
	"github.com/anthonypark/dicomgo/uid"
)

// EchoResponse is the result of a C-ECHO verification.
type EchoResponse struct {
	Status    dimse.Status
	MessageID uint16
}

// Echo performs a DICOM C-ECHO (verification) request and returns the
// response status. messageID of 0 gets a fresh one from
// dimse.NextMessageID.
func (a *Association) Echo(messageID uint16) (*EchoResponse, error) {
	if messageID == 0 {
		messageID = dimse.NextMessageID()
	}

	contextID, err := a.ContextID(uid.VerificationSOPClass)
	if err != nil {
		return nil, err
	}

	req := dimse.EchoRequest{MessageID: messageID, AffectedSOPClassUID: uid.VerificationSOPClass}
	if err := a.send(contextID, req.ToCommand(), nil); err != nil {
		return nil, fmt.Errorf("send C-ECHO-RQ: %w", err)
	}

	_, cmd, _, err := a.receive()
	if err != nil {
		return nil, fmt.Errorf("receive C-ECHO-RSP: %w", err)
	}
	if cmd.CommandField != dimse.CEchoRSP {
		return nil, fmt.Errorf("unexpected command: 0x%04x (expected C-ECHO-RSP)", cmd.CommandField)
	}
	if dimse.Status(cmd.Status).Classify() == dimse.ClassInvalid {
		return nil, &dicomerrors.UnexpectedCommandStatusError{Status: cmd.Status}
	}

	return &EchoResponse{
		Status:    dimse.Status(cmd.Status),
		MessageID: cmd.MessageIDBeingRespondedTo,
	}, nil
}
