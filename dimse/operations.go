package dimse

import (
	"fmt"
	"sync/atomic"
)

// OpState is the provider-side per-operation state, spec.md §4.7.
type OpState int

const (
	StateIdle OpState = iota
	StateProcessing
	StateCancelling
	StateAborting
	StateDone
	StateClosed
)

func (s OpState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateProcessing:
		return "processing"
	case StateCancelling:
		return "cancelling"
	case StateAborting:
		return "aborting"
	case StateDone:
		return "done"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

var messageIDSeq uint32

// NextMessageID returns a process-wide, monotonically increasing message
// ID for the user side to stamp on new requests. DICOM message IDs are
// 16-bit and only need to be unique within one association's lifetime;
// wrapping is harmless.
func NextMessageID() uint16 {
	return uint16(atomic.AddUint32(&messageIDSeq, 1))
}

// Operation tracks one in-flight DIMSE exchange's state machine:
//
//	Idle --recv(req)--> Processing
//	Processing --write(pending,data)--> Processing
//	Processing --write(terminal,status)--> Done
//	Processing --recv(cancel)--> Cancelling --write(cancel)--> Done
//	Processing --fatal--> Aborting --write(A-ABORT)--> Closed
//
// Initial state is Idle; Done and Closed are terminal.
type Operation struct {
	MessageID           uint16
	ContextID           byte
	AffectedSOPClassUID string
	CommandField        uint16

	state OpState
}

// NewOperation begins an operation in Idle state, bound to a request's
// message-id, presentation-context-id and affected-SOP-class UID.
func NewOperation(req *Command, contextID byte) *Operation {
	return &Operation{
		MessageID:           req.MessageID,
		ContextID:           contextID,
		AffectedSOPClassUID: req.AffectedSOPClassUID,
		CommandField:        req.CommandField,
		state:               StateIdle,
	}
}

// State returns the operation's current state.
func (o *Operation) State() OpState { return o.state }

// IsComplete reports whether the operation has reached a terminal state,
// mirroring the `is_complete` flag spec.md §4.7 attaches to operation
// objects.
func (o *Operation) IsComplete() bool {
	return o.state == StateDone || o.state == StateClosed
}

// Begin transitions Idle -> Processing on receipt of the initiating
// request.
func (o *Operation) Begin() error {
	if o.state != StateIdle {
		return fmt.Errorf("operation %d: begin called in state %s", o.MessageID, o.state)
	}
	o.state = StateProcessing
	return nil
}

// Cancel transitions Processing -> Cancelling on receipt of a C-CANCEL
// bound to this operation by message-id-being-responded-to.
func (o *Operation) Cancel() error {
	if o.state != StateProcessing {
		return fmt.Errorf("operation %d: cancel called in state %s", o.MessageID, o.state)
	}
	o.state = StateCancelling
	return nil
}

// WritePending records emission of a non-terminal (pending) response;
// the operation remains in Processing.
func (o *Operation) WritePending() error {
	if o.state != StateProcessing {
		return fmt.Errorf("operation %d: pending write in state %s", o.MessageID, o.state)
	}
	return nil
}

// WriteTerminal records emission of a final status response, moving
// Processing or Cancelling to Done.
func (o *Operation) WriteTerminal(status Status) error {
	switch o.state {
	case StateProcessing, StateCancelling:
		o.state = StateDone
		return nil
	default:
		return fmt.Errorf("operation %d: terminal write in state %s", o.MessageID, o.state)
	}
}

// Abort transitions to Aborting on an unrecoverable fault, then Closed
// once the A-ABORT PDU has actually been written.
func (o *Operation) Abort() {
	o.state = StateAborting
}

// Closed marks the operation Closed once its A-ABORT has been written.
func (o *Operation) Closed() {
	o.state = StateClosed
}

// EchoRequest is a C-ECHO-RQ, spec.md §4.7: verification with no
// dataset.
type EchoRequest struct {
	MessageID           uint16
	AffectedSOPClassUID string
}

// ToCommand renders the request as its wire Command.
func (r EchoRequest) ToCommand() *Command {
	return &Command{
		CommandField:        CEchoRQ,
		MessageID:           r.MessageID,
		AffectedSOPClassUID: r.AffectedSOPClassUID,
		CommandDataSetType:  DataSetTypeNone,
	}
}

// EchoResponse is a C-ECHO-RSP.
type EchoResponse struct {
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	Status                    Status
}

// ToCommand renders the response as its wire Command.
func (r EchoResponse) ToCommand() *Command {
	return &Command{
		CommandField:              CEchoRSP,
		MessageIDBeingRespondedTo: r.MessageIDBeingRespondedTo,
		AffectedSOPClassUID:       r.AffectedSOPClassUID,
		CommandDataSetType:        DataSetTypeNone,
		Status:                    uint16(r.Status),
	}
}

// FindRequest is a C-FIND-RQ: a query dataset follows the command.
type FindRequest struct {
	MessageID           uint16
	AffectedSOPClassUID string
	Priority            uint16
}

func (r FindRequest) ToCommand() *Command {
	return &Command{
		CommandField:        CFindRQ,
		MessageID:           r.MessageID,
		AffectedSOPClassUID: r.AffectedSOPClassUID,
		Priority:            r.Priority,
		CommandDataSetType:  DataSetTypePresent,
	}
}

// FindResponse is one C-FIND-RSP: either a pending response carrying a
// result dataset, or the final response with no dataset.
type FindResponse struct {
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	Status                    Status
	HasDataset                bool
}

func (r FindResponse) ToCommand() *Command {
	dst := DataSetTypeNone
	if r.HasDataset {
		dst = DataSetTypePresent
	}
	return &Command{
		CommandField:              CFindRSP,
		MessageIDBeingRespondedTo: r.MessageIDBeingRespondedTo,
		AffectedSOPClassUID:       r.AffectedSOPClassUID,
		CommandDataSetType:        dst,
		Status:                    uint16(r.Status),
	}
}

// SubOpCounters carries the four C-GET/C-MOVE sub-operation progress
// counters.
type SubOpCounters struct {
	Remaining uint16
	Completed uint16
	Failed    uint16
	Warning   uint16
}

// GetRequest is a C-GET-RQ: like C-FIND, but the provider performs
// C-STORE sub-operations back over the same association.
type GetRequest struct {
	MessageID           uint16
	AffectedSOPClassUID string
	Priority             uint16
}

func (r GetRequest) ToCommand() *Command {
	return &Command{
		CommandField:        CGetRQ,
		MessageID:           r.MessageID,
		AffectedSOPClassUID: r.AffectedSOPClassUID,
		Priority:            r.Priority,
		CommandDataSetType:  DataSetTypePresent,
	}
}

// GetResponse is one C-GET-RSP, carrying sub-operation progress.
type GetResponse struct {
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	Status                    Status
	Counters                  SubOpCounters
}

func (r GetResponse) ToCommand() *Command {
	return &Command{
		CommandField:              CGetRSP,
		MessageIDBeingRespondedTo: r.MessageIDBeingRespondedTo,
		AffectedSOPClassUID:       r.AffectedSOPClassUID,
		CommandDataSetType:        DataSetTypeNone,
		Status:                    uint16(r.Status),
		NumberOfRemaining:         &r.Counters.Remaining,
		NumberOfCompleted:         &r.Counters.Completed,
		NumberOfFailed:            &r.Counters.Failed,
		NumberOfWarning:           &r.Counters.Warning,
	}
}

// MoveRequest is a C-MOVE-RQ: the provider issues C-STORE
// sub-associations toward Destination, forwarding one SOP instance per
// store.
type MoveRequest struct {
	MessageID           uint16
	AffectedSOPClassUID string
	Priority            uint16
	Destination         string
}

func (r MoveRequest) ToCommand() *Command {
	return &Command{
		CommandField:        CMoveRQ,
		MessageID:           r.MessageID,
		AffectedSOPClassUID: r.AffectedSOPClassUID,
		Priority:            r.Priority,
		MoveDestination:     r.Destination,
		CommandDataSetType:  DataSetTypePresent,
	}
}

// MoveResponse is one C-MOVE-RSP, carrying sub-operation progress.
type MoveResponse struct {
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	Status                    Status
	Counters                  SubOpCounters
}

func (r MoveResponse) ToCommand() *Command {
	return &Command{
		CommandField:              CMoveRSP,
		MessageIDBeingRespondedTo: r.MessageIDBeingRespondedTo,
		AffectedSOPClassUID:       r.AffectedSOPClassUID,
		CommandDataSetType:        DataSetTypeNone,
		Status:                    uint16(r.Status),
		NumberOfRemaining:         &r.Counters.Remaining,
		NumberOfCompleted:         &r.Counters.Completed,
		NumberOfFailed:            &r.Counters.Failed,
		NumberOfWarning:           &r.Counters.Warning,
	}
}

// StoreRequest is a C-STORE-RQ. Origin fields are set only when this
// store was originated by a C-MOVE forwarding operation.
type StoreRequest struct {
	MessageID              uint16
	AffectedSOPClassUID    string
	AffectedSOPInstanceUID string
	Priority               uint16
	OriginAETitle          string
	OriginMessageID        uint16
}

func (r StoreRequest) ToCommand() *Command {
	return &Command{
		CommandField:            CStoreRQ,
		MessageID:               r.MessageID,
		AffectedSOPClassUID:     r.AffectedSOPClassUID,
		AffectedSOPInstanceUID:  r.AffectedSOPInstanceUID,
		Priority:                r.Priority,
		MoveOriginatorAETitle:   r.OriginAETitle,
		MoveOriginatorMessageID: r.OriginMessageID,
		CommandDataSetType:      DataSetTypePresent,
	}
}

// StoreResponse is a C-STORE-RSP: a single success/failure status.
type StoreResponse struct {
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	AffectedSOPInstanceUID    string
	Status                    Status
}

func (r StoreResponse) ToCommand() *Command {
	return &Command{
		CommandField:              CStoreRSP,
		MessageIDBeingRespondedTo: r.MessageIDBeingRespondedTo,
		AffectedSOPClassUID:       r.AffectedSOPClassUID,
		AffectedSOPInstanceUID:    r.AffectedSOPInstanceUID,
		CommandDataSetType:        DataSetTypeNone,
		Status:                    uint16(r.Status),
	}
}

// CancelRequest is a C-CANCEL-RQ, binding to a running operation by the
// message-id it is cancelling.
type CancelRequest struct {
	MessageIDBeingRespondedTo uint16
}

func (r CancelRequest) ToCommand() *Command {
	return &Command{
		CommandField:              CCancelRQ,
		MessageIDBeingRespondedTo: r.MessageIDBeingRespondedTo,
		CommandDataSetType:        DataSetTypeNone,
	}
}
