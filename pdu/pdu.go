// Package pdu implements the byte-exact upper-layer PDU codec: the seven
// PDU types and their sub-items, per spec.md §4.5/§6.2. It owns no
// association state or negotiation policy — that belongs to package
// assoc, which uses pdu's types as its wire representation.
package pdu

import (
	"encoding/binary"
	"fmt"
	"io"

	dicomerrors "github.com/anthonypark/dicomgo/errors"
)

// MaxPDUFrameSize bounds the length field of any PDU this implementation
// will read, independent of the negotiated Max PDU Length for P-DATA-TF:
// a corrupt or adversarial length field must not drive an unbounded
// allocation before the frame is even classified.
const MaxPDUFrameSize = 128 * 1024 * 1024

// PDU type octets (spec.md §4.5).
const (
	TypeAssociateRQ = 0x01
	TypeAssociateAC = 0x02
	TypeAssociateRJ = 0x03
	TypePDataTF     = 0x04
	TypeReleaseRQ   = 0x05
	TypeReleaseRP   = 0x06
	TypeAbort       = 0x07
)

// Raw is an undecoded PDU: a type octet and its payload, read/written as
// the common frame "1 byte type, 1 byte reserved, 4 byte length, payload".
type Raw struct {
	Type byte
	Data []byte
}

// ReadRaw reads one complete PDU frame from r.
func ReadRaw(r io.Reader) (*Raw, error) {
	header := make([]byte, 6)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[2:6])
	if length > MaxPDUFrameSize {
		return nil, &dicomerrors.MaxPduSizeExceededError{Size: length, Max: MaxPDUFrameSize}
	}
	data := make([]byte, length)
	if _, err := io.ReadFull(r, data); err != nil {
		return nil, dicomerrors.NewIOError(fmt.Sprintf("read PDU payload (type 0x%02x, %d bytes)", header[0], length), err)
	}
	return &Raw{Type: header[0], Data: data}, nil
}

// WriteRaw writes one complete PDU frame to w.
func WriteRaw(w io.Writer, pduType byte, data []byte) error {
	header := make([]byte, 6)
	header[0] = pduType
	binary.BigEndian.PutUint32(header[2:6], uint32(len(data)))
	if _, err := w.Write(header); err != nil {
		return err
	}
	_, err := w.Write(data)
	return err
}

// item is the common sub-item frame: "1 byte type, 1 byte
// reserved-or-version, 2 byte length, payload".
func encodeItem(itemType byte, payload []byte) []byte {
	out := make([]byte, 4, 4+len(payload))
	out[0] = itemType
	binary.BigEndian.PutUint16(out[2:4], uint16(len(payload)))
	return append(out, payload...)
}

func encodeStringItem(itemType byte, s string) []byte {
	return encodeItem(itemType, padEven(s))
}

// padEven space-pads a UID/string sub-item payload to even length, per
// spec.md §4.5's "all sub-item payloads ... are space-padded to even
// length" rule.
func padEven(s string) []byte {
	b := []byte(s)
	if len(b)%2 != 0 {
		b = append(b, ' ')
	}
	return b
}

// readItems walks a flat run of sub-items starting at offset 0 in data,
// invoking fn with each item's type and payload. It stops at the end of
// data or on the first decode error.
func readItems(data []byte, fn func(itemType byte, payload []byte) error) error {
	offset := 0
	for offset+4 <= len(data) {
		itemType := data[offset]
		length := binary.BigEndian.Uint16(data[offset+2 : offset+4])
		start := offset + 4
		end := start + int(length)
		if end > len(data) {
			return &dicomerrors.ParseError{Detail: fmt.Sprintf("sub-item type 0x%02x length %d exceeds remaining data", itemType, length)}
		}
		if err := fn(itemType, data[start:end]); err != nil {
			return err
		}
		offset = end
	}
	return nil
}

func trimSpacePad(b []byte) string {
	n := len(b)
	for n > 0 && (b[n-1] == ' ' || b[n-1] == 0x00) {
		n--
	}
	return string(b[:n])
}
