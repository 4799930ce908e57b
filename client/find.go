package client

import (
	"fmt"

	"github.com/anthonypark/dicomgo/dicom"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/uid"
)

// FindRequest encapsulates the information required to perform a C-FIND
// query.
type FindRequest struct {
	SOPClassUID string // defaults to Study Root Query/Retrieve - FIND
	MessageID   uint16
	Priority    uint16
	Identifier  *dicom.Dataset // the matching-key query
}

// FindResult is one C-FIND-RSP from the SCP.
type FindResult struct {
	Status     dimse.Status
	MessageID  uint16
	Identifier *dicom.Dataset // nil on the final (non-pending) response
}

// Find performs a DICOM C-FIND query and returns every response in
// order, including the final terminal-status response.
func (a *Association) Find(req FindRequest) ([]FindResult, error) {
	if req.Identifier == nil {
		return nil, fmt.Errorf("client: C-FIND requires an identifier dataset")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = uid.StudyRootQueryRetrieveInformationModelFind
	}
	messageID := req.MessageID
	if messageID == 0 {
		messageID = dimse.NextMessageID()
	}

	contextID, err := a.ContextID(sopClass)
	if err != nil {
		return nil, err
	}
	transferSyntax, err := a.TransferSyntaxFor(sopClass)
	if err != nil {
		return nil, err
	}

	identifierBytes, err := encodeDataset(req.Identifier, transferSyntax)
	if err != nil {
		return nil, fmt.Errorf("encode C-FIND identifier: %w", err)
	}

	cmd := dimse.FindRequest{MessageID: messageID, AffectedSOPClassUID: sopClass, Priority: req.Priority}.ToCommand()
	if err := a.send(contextID, cmd, identifierBytes); err != nil {
		return nil, fmt.Errorf("send C-FIND-RQ: %w", err)
	}

	var results []FindResult
	for {
		_, respCmd, data, err := a.receive()
		if err != nil {
			return results, fmt.Errorf("receive C-FIND-RSP: %w", err)
		}
		if respCmd.CommandField != dimse.CFindRSP {
			return results, fmt.Errorf("unexpected command: 0x%04x (expected C-FIND-RSP)", respCmd.CommandField)
		}

		var identifier *dicom.Dataset
		if len(data) > 0 {
			identifier, err = decodeDataset(data, transferSyntax)
			if err != nil {
				a.logger.Warn("failed to decode C-FIND response identifier", "error", err, "message_id", respCmd.MessageIDBeingRespondedTo)
			}
		}

		status := dimse.Status(respCmd.Status)
		results = append(results, FindResult{Status: status, MessageID: respCmd.MessageIDBeingRespondedTo, Identifier: identifier})

		if status.Classify() != dimse.ClassPending {
			break
		}
	}

	return results, nil
}
