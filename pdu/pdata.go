package pdu

import (
	"encoding/binary"
	"fmt"
)

// Message-control-header bits, spec.md §4.5.
const (
	mchIsCommand    byte = 0x01
	mchLastFragment byte = 0x02
)

// PDV is one presentation-data-value: a presentation-context-ID, whether
// this fragment is a command or dataset fragment, whether it is the last
// fragment of its message, and the fragment's value bytes.
type PDV struct {
	ContextID     byte
	IsCommand     bool
	LastFragment  bool
	Value         []byte
}

func (p PDV) messageControlHeader() byte {
	var h byte
	if p.IsCommand {
		h |= mchIsCommand
	}
	if p.LastFragment {
		h |= mchLastFragment
	}
	return h
}

// EncodePDataTF renders a P-DATA-TF payload carrying the given PDVs in
// order, each framed as "4 byte length, 1 byte context-id, 1 byte
// message-control-header, value bytes".
func EncodePDataTF(pdvs []PDV) []byte {
	var out []byte
	for _, pdv := range pdvs {
		pdvLen := make([]byte, 4)
		binary.BigEndian.PutUint32(pdvLen, uint32(2+len(pdv.Value)))
		out = append(out, pdvLen...)
		out = append(out, pdv.ContextID, pdv.messageControlHeader())
		out = append(out, pdv.Value...)
	}
	return out
}

// DecodePDataTF parses a P-DATA-TF payload into its constituent PDVs.
func DecodePDataTF(data []byte) ([]PDV, error) {
	var pdvs []PDV
	offset := 0
	for offset+4 <= len(data) {
		pdvLen := binary.BigEndian.Uint32(data[offset : offset+4])
		start := offset + 4
		end := start + int(pdvLen)
		if end > len(data) {
			return nil, fmt.Errorf("PDV length %d exceeds remaining P-DATA-TF payload", pdvLen)
		}
		if pdvLen < 2 {
			return nil, fmt.Errorf("PDV length %d too short for context-id + control header", pdvLen)
		}
		body := data[start:end]
		pdvs = append(pdvs, PDV{
			ContextID:    body[0],
			IsCommand:    body[1]&mchIsCommand != 0,
			LastFragment: body[1]&mchLastFragment != 0,
			Value:        body[2:],
		})
		offset = end
	}
	return pdvs, nil
}
