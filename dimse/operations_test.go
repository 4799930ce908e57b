package dimse

import "testing"

func newTestOperation() *Operation {
	return NewOperation(&Command{MessageID: 1, CommandField: CEchoRQ, AffectedSOPClassUID: "1.2.840.10008.1.1"}, 1)
}

func TestOperationHappyPath(t *testing.T) {
	op := newTestOperation()
	if op.State() != StateIdle {
		t.Fatalf("initial state = %v, want Idle", op.State())
	}

	if err := op.Begin(); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	if op.State() != StateProcessing {
		t.Fatalf("state after Begin = %v, want Processing", op.State())
	}

	if err := op.WritePending(); err != nil {
		t.Fatalf("WritePending: %v", err)
	}
	if op.State() != StateProcessing {
		t.Fatalf("state after WritePending = %v, want Processing", op.State())
	}
	if op.IsComplete() {
		t.Error("IsComplete() = true while still Processing")
	}

	if err := op.WriteTerminal(StatusSuccess); err != nil {
		t.Fatalf("WriteTerminal: %v", err)
	}
	if op.State() != StateDone {
		t.Fatalf("state after WriteTerminal = %v, want Done", op.State())
	}
	if !op.IsComplete() {
		t.Error("IsComplete() = false once Done")
	}
}

func TestOperationCancelPath(t *testing.T) {
	op := newTestOperation()
	_ = op.Begin()

	if err := op.Cancel(); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	if op.State() != StateCancelling {
		t.Fatalf("state after Cancel = %v, want Cancelling", op.State())
	}

	if err := op.WriteTerminal(StatusCancel); err != nil {
		t.Fatalf("WriteTerminal after Cancel: %v", err)
	}
	if op.State() != StateDone {
		t.Fatalf("state after terminal write from Cancelling = %v, want Done", op.State())
	}
}

func TestOperationAbortPath(t *testing.T) {
	op := newTestOperation()
	_ = op.Begin()

	op.Abort()
	if op.State() != StateAborting {
		t.Fatalf("state after Abort = %v, want Aborting", op.State())
	}

	op.Closed()
	if op.State() != StateClosed {
		t.Fatalf("state after Closed = %v, want Closed", op.State())
	}
	if !op.IsComplete() {
		t.Error("IsComplete() = false once Closed")
	}
}

func TestOperationInvalidTransitions(t *testing.T) {
	op := newTestOperation()

	if err := op.WritePending(); err == nil {
		t.Error("WritePending from Idle should fail")
	}
	if err := op.WriteTerminal(StatusSuccess); err == nil {
		t.Error("WriteTerminal from Idle should fail")
	}
	if err := op.Cancel(); err == nil {
		t.Error("Cancel from Idle should fail")
	}

	_ = op.Begin()
	if err := op.Begin(); err == nil {
		t.Error("Begin called twice should fail the second time")
	}

	_ = op.WriteTerminal(StatusSuccess)
	if err := op.WritePending(); err == nil {
		t.Error("WritePending after Done should fail")
	}
	if err := op.Cancel(); err == nil {
		t.Error("Cancel after Done should fail")
	}
}

func TestNextMessageIDIsMonotonicallyIncreasing(t *testing.T) {
	a := NextMessageID()
	b := NextMessageID()
	if b <= a {
		t.Errorf("NextMessageID() not increasing: got %d then %d", a, b)
	}
}

func TestEchoRequestResponseToCommand(t *testing.T) {
	req := EchoRequest{MessageID: 5, AffectedSOPClassUID: "1.2.840.10008.1.1"}
	cmd := req.ToCommand()
	if cmd.CommandField != CEchoRQ || cmd.HasDataset() {
		t.Errorf("EchoRequest.ToCommand() = %+v, want CEchoRQ with no dataset", cmd)
	}

	resp := EchoResponse{MessageIDBeingRespondedTo: 5, AffectedSOPClassUID: "1.2.840.10008.1.1", Status: StatusSuccess}
	respCmd := resp.ToCommand()
	if respCmd.CommandField != CEchoRSP || respCmd.Status != uint16(StatusSuccess) {
		t.Errorf("EchoResponse.ToCommand() = %+v, want CEchoRSP/success", respCmd)
	}
}

func TestFindResponseDataSetTypeReflectsHasDataset(t *testing.T) {
	pending := FindResponse{MessageIDBeingRespondedTo: 1, Status: StatusPendingA, HasDataset: true}
	if cmd := pending.ToCommand(); cmd.CommandDataSetType != DataSetTypePresent {
		t.Errorf("pending FindResponse CommandDataSetType = 0x%04x, want DataSetTypePresent", cmd.CommandDataSetType)
	}

	final := FindResponse{MessageIDBeingRespondedTo: 1, Status: StatusSuccess, HasDataset: false}
	if cmd := final.ToCommand(); cmd.CommandDataSetType != DataSetTypeNone {
		t.Errorf("final FindResponse CommandDataSetType = 0x%04x, want DataSetTypeNone", cmd.CommandDataSetType)
	}
}

func TestMoveResponseCarriesSubOpCounters(t *testing.T) {
	resp := MoveResponse{
		MessageIDBeingRespondedTo: 9,
		Status:                    StatusPendingA,
		Counters:                  SubOpCounters{Remaining: 2, Completed: 1, Failed: 0, Warning: 0},
	}
	cmd := resp.ToCommand()
	if cmd.NumberOfRemaining == nil || *cmd.NumberOfRemaining != 2 {
		t.Errorf("NumberOfRemaining = %v, want 2", cmd.NumberOfRemaining)
	}
	if cmd.NumberOfCompleted == nil || *cmd.NumberOfCompleted != 1 {
		t.Errorf("NumberOfCompleted = %v, want 1", cmd.NumberOfCompleted)
	}
}
