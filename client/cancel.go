package client

import (
	"fmt"

	"github.com/anthonypark/dicomgo/dimse"
)

// Cancel sends a C-CANCEL-RQ asking the SCP to stop sending pending
// responses for the running C-FIND/C-GET/C-MOVE operation identified by
// messageID (the MessageID of the original request) on sopClassUID's
// presentation context. C-CANCEL has no response of its own.
func (a *Association) Cancel(messageID uint16, sopClassUID string) error {
	if messageID == 0 {
		return fmt.Errorf("client: messageID must be non-zero for C-CANCEL")
	}
	if sopClassUID == "" {
		return fmt.Errorf("client: sopClassUID must be provided for C-CANCEL")
	}

	contextID, err := a.ContextID(sopClassUID)
	if err != nil {
		return err
	}

	cmd := dimse.CancelRequest{MessageIDBeingRespondedTo: messageID}.ToCommand()
	if err := a.send(contextID, cmd, nil); err != nil {
		return fmt.Errorf("send C-CANCEL-RQ: %w", err)
	}

	a.logger.Debug("sent C-CANCEL-RQ", "message_id", messageID, "sop_class", sopClassUID)
	return nil
}
