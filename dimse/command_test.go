package dimse

import "testing"

func TestCommandEncodeDecodeRoundTrip(t *testing.T) {
	remaining := uint16(3)
	completed := uint16(1)

	cmd := &Command{
		CommandField:           CStoreRQ,
		MessageID:              7,
		AffectedSOPClassUID:    "1.2.840.10008.5.1.4.1.1.7",
		AffectedSOPInstanceUID: "1.2.3.4.5.6.7.8",
		Priority:               PriorityMedium,
		CommandDataSetType:     DataSetTypePresent,
		NumberOfRemaining:      &remaining,
		NumberOfCompleted:      &completed,
	}

	raw, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := DecodeCommand(raw)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}

	if got.CommandField != cmd.CommandField {
		t.Errorf("CommandField = 0x%04x, want 0x%04x", got.CommandField, cmd.CommandField)
	}
	if got.MessageID != cmd.MessageID {
		t.Errorf("MessageID = %d, want %d", got.MessageID, cmd.MessageID)
	}
	if got.AffectedSOPClassUID != cmd.AffectedSOPClassUID {
		t.Errorf("AffectedSOPClassUID = %q, want %q", got.AffectedSOPClassUID, cmd.AffectedSOPClassUID)
	}
	if got.AffectedSOPInstanceUID != cmd.AffectedSOPInstanceUID {
		t.Errorf("AffectedSOPInstanceUID = %q, want %q", got.AffectedSOPInstanceUID, cmd.AffectedSOPInstanceUID)
	}
	if got.CommandDataSetType != cmd.CommandDataSetType {
		t.Errorf("CommandDataSetType = 0x%04x, want 0x%04x", got.CommandDataSetType, cmd.CommandDataSetType)
	}
	if got.NumberOfRemaining == nil || *got.NumberOfRemaining != remaining {
		t.Errorf("NumberOfRemaining = %v, want %d", got.NumberOfRemaining, remaining)
	}
	if got.NumberOfCompleted == nil || *got.NumberOfCompleted != completed {
		t.Errorf("NumberOfCompleted = %v, want %d", got.NumberOfCompleted, completed)
	}
	if got.NumberOfFailed != nil {
		t.Errorf("NumberOfFailed = %v, want nil (never set)", got.NumberOfFailed)
	}
}

func TestCommandResponseRoundTripUsesMessageIDBeingRespondedTo(t *testing.T) {
	cmd := &Command{
		CommandField:              CEchoRSP,
		MessageIDBeingRespondedTo: 42,
		AffectedSOPClassUID:       "1.2.840.10008.1.1",
		CommandDataSetType:        DataSetTypeNone,
		Status:                    uint16(StatusSuccess),
	}

	raw, err := cmd.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := DecodeCommand(raw)
	if err != nil {
		t.Fatalf("DecodeCommand: %v", err)
	}

	if got.MessageIDBeingRespondedTo != 42 {
		t.Errorf("MessageIDBeingRespondedTo = %d, want 42", got.MessageIDBeingRespondedTo)
	}
	if got.Status != uint16(StatusSuccess) {
		t.Errorf("Status = 0x%04x, want 0x%04x", got.Status, uint16(StatusSuccess))
	}
	if got.HasDataset() {
		t.Error("HasDataset() = true for a CommandDataSetType of DataSetTypeNone")
	}
}

func TestCommandHasDataset(t *testing.T) {
	present := &Command{CommandDataSetType: DataSetTypePresent}
	if !present.HasDataset() {
		t.Error("HasDataset() = false for DataSetTypePresent")
	}

	none := &Command{CommandDataSetType: DataSetTypeNone}
	if none.HasDataset() {
		t.Error("HasDataset() = true for DataSetTypeNone")
	}
}
