package client

import (
	"fmt"

	"github.com/anthonypark/dicomgo/dicom"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/uid"
)

// GetRequest encapsulates the information required to perform a C-GET
// retrieval.
type GetRequest struct {
	SOPClassUID string // defaults to Study Root Query/Retrieve - GET
	MessageID   uint16
	Priority    uint16
	Identifier  *dicom.Dataset // the matching-key query identifying what to retrieve
}

// GetResult is one C-GET-RSP, carrying sub-operation progress.
type GetResult struct {
	Status    dimse.Status
	MessageID uint16
	Counters  dimse.SubOpCounters
}

// StoreHandler processes one unsolicited C-STORE-RQ the SCP sends back
// over the same association while servicing a C-GET, and returns the
// status to report back in the C-STORE-RSP.
type StoreHandler func(instance StoreInstance) dimse.Status

// Get performs a DICOM C-GET retrieval. The SCP answers with C-STORE
// sub-operations interleaved with C-GET-RSP progress reports on the same
// association; storeHandler is invoked for each sub-operation's instance
// and its return value is sent back as that C-STORE's status.
func (a *Association) Get(req GetRequest, storeHandler StoreHandler) ([]GetResult, error) {
	if req.Identifier == nil {
		return nil, fmt.Errorf("client: C-GET requires an identifier dataset")
	}
	if storeHandler == nil {
		return nil, fmt.Errorf("client: C-GET requires a StoreHandler for incoming sub-operations")
	}

	sopClass := req.SOPClassUID
	if sopClass == "" {
		sopClass = uid.StudyRootQueryRetrieveInformationModelGet
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
		return nil, fmt.Errorf("encode C-GET identifier: %w", err)
	}

	cmd := dimse.GetRequest{MessageID: messageID, AffectedSOPClassUID: sopClass, Priority: req.Priority}.ToCommand()
	if err := a.send(contextID, cmd, identifierBytes); err != nil {
		return nil, fmt.Errorf("send C-GET-RQ: %w", err)
	}

	var results []GetResult
	for {
		storeContextID, respCmd, data, err := a.receive()
		if err != nil {
			return results, fmt.Errorf("receive during C-GET: %w", err)
		}

		switch respCmd.CommandField {
		case dimse.CStoreRQ:
			instance := StoreInstance{
				SOPClassUID:    respCmd.AffectedSOPClassUID,
				SOPInstanceUID: respCmd.AffectedSOPInstanceUID,
				TransferSyntax: transferSyntax,
				Data:           data,
			}
			status := storeHandler(instance)
			rsp := dimse.StoreResponse{
				MessageIDBeingRespondedTo: respCmd.MessageID,
				AffectedSOPClassUID:       respCmd.AffectedSOPClassUID,
				AffectedSOPInstanceUID:    respCmd.AffectedSOPInstanceUID,
				Status:                    status,
			}.ToCommand()
			if err := a.send(storeContextID, rsp, nil); err != nil {
				return results, fmt.Errorf("send C-STORE-RSP sub-operation response: %w", err)
			}

		case dimse.CGetRSP:
			counters := dimse.SubOpCounters{}
			if respCmd.NumberOfRemaining != nil {
				counters.Remaining = *respCmd.NumberOfRemaining
			}
			if respCmd.NumberOfCompleted != nil {
				counters.Completed = *respCmd.NumberOfCompleted
			}
			if respCmd.NumberOfFailed != nil {
				counters.Failed = *respCmd.NumberOfFailed
			}
			if respCmd.NumberOfWarning != nil {
				counters.Warning = *respCmd.NumberOfWarning
			}
			status := dimse.Status(respCmd.Status)
			results = append(results, GetResult{Status: status, MessageID: respCmd.MessageIDBeingRespondedTo, Counters: counters})
			if status.Classify() != dimse.ClassPending {
				return results, nil
			}

		default:
			return results, fmt.Errorf("unexpected command during C-GET: 0x%04x", respCmd.CommandField)
		}
	}
}
