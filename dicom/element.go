package dicom

import (
	"github.com/anthonypark/dicomgo/charset"
	"github.com/anthonypark/dicomgo/tag"
)

// SequencePathStep is one (sequence-tag, item-index) hop locating an
// element inside nested sequences/items.
type SequencePathStep struct {
	SequenceTag tag.Tag
	ItemIndex   int
}

// SequencePath is the ordered list of steps from the dataset root to an
// element, per spec.md §3.
type SequencePath []SequencePathStep

// Element is the fundamental parsed unit: a tag, its VR, length semantics,
// the context it was parsed under, and either raw bytes (leaf) or child
// items (sequence-like).
type Element struct {
	Tag     tag.Tag
	VR      string
	Length  Length
	Raw     []byte // leaf value bytes; empty for SQ
	Items   []*Dataset // child item datasets, for SQ / undefined-length UN
	Fragments [][]byte // encapsulated pixel-data item fragments (spec.md §4.2 point 5)

	TransferSyntaxUID string
	Charset           charset.Set
	Path              SequencePath
}

// Length discriminates explicit vs. undefined value length (spec.md §3).
type Length struct {
	Undefined bool
	Value     uint32 // meaningful only when !Undefined
}

// UndefinedLength is the wire encoding of an undefined length.
const UndefinedLength uint32 = 0xFFFFFFFF

// IsSequence reports whether this element carries nested item datasets
// rather than a flat byte value.
func (e *Element) IsSequence() bool {
	return e.Items != nil || e.VR == "SQ"
}

// IsEncapsulatedPixelData reports whether this is a pixel-data element
// whose items are raw compressed-stream fragments rather than nested
// datasets (spec.md §4.2 point 5).
func (e *Element) IsEncapsulatedPixelData() bool {
	return e.Tag == tag.PixelData && e.Fragments != nil
}

// DecodedValue decodes this element's raw bytes via the VR/transfer-syntax
// rules in dicom.DecodeValue. It is computed on demand rather than eagerly
// so that large binary elements (pixel data) are not forced through the
// string/numeric decode path unless a caller asks for it.
func (e *Element) DecodedValue() (Value, error) {
	ts, _ := ResolveTransferSyntax(e.TransferSyntaxUID)
	return DecodeValue(e.Tag, e.VR, e.Raw, ts.BigEndian, e.Charset)
}

// GetString returns the first string value, or "" if the element has none
// or fails to decode. Convenience wrapper used throughout the DIMSE and
// service layers for pulling identifiers out of a dataset.
func (e *Element) GetString() string {
	v, err := e.DecodedValue()
	if err != nil || len(v.Strings) == 0 {
		return ""
	}
	return v.Strings[0]
}
