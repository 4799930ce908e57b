package pdu

import "fmt"

// ReleaseRQ/ReleaseRP carry no payload beyond 4 reserved bytes.

// EncodeReleaseRQ renders the A-RELEASE-RQ payload (4 reserved bytes).
func EncodeReleaseRQ() []byte { return make([]byte, 4) }

// EncodeReleaseRP renders the A-RELEASE-RP payload (4 reserved bytes).
func EncodeReleaseRP() []byte { return make([]byte, 4) }

// Abort source codes, spec.md §4.5.
const (
	AbortSourceServiceUser     byte = 0x00
	AbortSourceServiceProvider byte = 0x02
)

// Abort reason codes, spec.md §4.5.
const (
	AbortReasonNotSpecified        byte = 0x00
	AbortReasonUnrecognizedPDU     byte = 0x01
	AbortReasonUnexpectedPDU       byte = 0x02
	AbortReasonUnrecognizedParam   byte = 0x04
	AbortReasonUnexpectedParam     byte = 0x05
	AbortReasonInvalidParamValue   byte = 0x06
)

// Abort is the decoded A-ABORT PDU payload: "1 byte reserved, 1 byte
// reserved, 1 byte source, 1 byte reason".
type Abort struct {
	Source byte
	Reason byte
}

// Encode renders an Abort to its 4-byte wire payload.
func (a Abort) Encode() []byte {
	return []byte{0x00, 0x00, a.Source, a.Reason}
}

// DecodeAbort parses an A-ABORT payload.
func DecodeAbort(data []byte) (*Abort, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("abort payload too short: %d bytes", len(data))
	}
	return &Abort{Source: data[2], Reason: data[3]}, nil
}
