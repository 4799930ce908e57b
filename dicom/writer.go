package dicom

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	dicomerrors "github.com/anthonypark/dicomgo/errors"
	"github.com/anthonypark/dicomgo/tag"
	"github.com/anthonypark/dicomgo/vr"
)

// Writer is the mirror of Parser (spec.md §4.3): it walks a Dataset and
// emits the exact byte stream for a declared transfer syntax, choosing
// explicit or implicit VR framing, endianness, and delimitation items the
// same way the parser would have read them back.
type Writer struct {
	w                 *bufio.Writer
	transferSyntaxUID string
	bigEndian         bool
	explicitVR        bool
}

// NewWriter constructs a writer for the given transfer syntax. The main
// dataset is framed per that transfer syntax; the file-meta header (if
// WriteFileHeader is used) is always Explicit VR Little Endian regardless
// of this value, per spec.md §4.3.
func NewWriter(w io.Writer, transferSyntaxUID string) *Writer {
	ts, _ := ResolveTransferSyntax(transferSyntaxUID)
	return &Writer{
		w:                 bufio.NewWriterSize(w, 64*1024),
		transferSyntaxUID: transferSyntaxUID,
		bigEndian:         ts.BigEndian,
		explicitVR:        ts.ExplicitVR,
	}
}

func (wr *Writer) endian() binary.ByteOrder {
	if wr.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// WriteFileHeader emits the 128-byte preamble, the "DICM" prefix, and a
// file-meta group built from the given meta elements (command code UID,
// SOP instance UID, transfer syntax UID, etc.), always in Explicit VR
// Little Endian, then switches framing to the dataset's declared transfer
// syntax for everything that follows.
func (wr *Writer) WriteFileHeader(meta *Dataset) error {
	var zero [128]byte
	if _, err := wr.w.Write(zero[:]); err != nil {
		return dicomerrors.NewWriteError("write preamble", err)
	}
	if _, err := wr.w.Write([]byte("DICM")); err != nil {
		return dicomerrors.NewWriteError("write DICM prefix", err)
	}

	metaWriter := &Writer{w: wr.w, explicitVR: true, bigEndian: false}

	groupLen, err := metaWriter.datasetByteSize(meta)
	if err != nil {
		return dicomerrors.NewWriteError("compute file meta group length", err)
	}
	glElem := &Element{
		Tag:    tag.FileMetaInformationGroupLength,
		VR:     vr.UL,
		Length: Length{Value: 4},
		Raw:    encodeUint32s([]uint32{uint32(groupLen)}, binary.LittleEndian),
	}
	if err := metaWriter.writeElement(glElem); err != nil {
		return dicomerrors.NewWriteError("write file meta group length", err)
	}
	for _, e := range meta.Elements() {
		if err := metaWriter.writeElement(e); err != nil {
			return dicomerrors.NewWriteError(fmt.Sprintf("write file meta element %s", e.Tag), err)
		}
	}
	return nil
}

// WriteDataset writes every top-level element of ds using the writer's
// declared transfer syntax, recursing into sequence items and encapsulated
// pixel-data fragments as needed.
func (wr *Writer) WriteDataset(ds *Dataset) error {
	for _, e := range ds.Elements() {
		if err := wr.writeElement(e); err != nil {
			return dicomerrors.NewWriteError(fmt.Sprintf("write element %s", e.Tag), err)
		}
	}
	return nil
}

// Flush flushes any buffered output to the underlying writer.
func (wr *Writer) Flush() error { return wr.w.Flush() }

func (wr *Writer) writeTag(t tag.Tag) error {
	bo := wr.endian()
	buf := make([]byte, 4)
	bo.PutUint16(buf[0:2], t.Group)
	bo.PutUint16(buf[2:4], t.Element)
	_, err := wr.w.Write(buf)
	return err
}

func (wr *Writer) writeUint32(v uint32) error {
	bo := wr.endian()
	buf := make([]byte, 4)
	bo.PutUint32(buf, v)
	_, err := wr.w.Write(buf)
	return err
}

// writeElement emits one element's header plus its body (raw bytes,
// nested items, or pixel-data fragments), per spec.md §4.3.
func (wr *Writer) writeElement(e *Element) error {
	if e.Tag == tag.ItemDelimitationItem || e.Tag == tag.SequenceDelimitationItem {
		if err := wr.writeTag(e.Tag); err != nil {
			return err
		}
		return wr.writeUint32(0)
	}

	if e.IsEncapsulatedPixelData() {
		return wr.writeFragments(e)
	}
	if e.IsSequence() {
		return wr.writeItems(e)
	}
	return wr.writeLeaf(e)
}

func (wr *Writer) writeLeaf(e *Element) error {
	if err := wr.writeTag(e.Tag); err != nil {
		return err
	}

	v, vrErr := vr.Lookup(e.VR)
	length := uint32(len(e.Raw))

	if !wr.explicitVR {
		return wr.writeUint32(length)
	}
	if _, err := wr.w.Write([]byte(e.VR)); err != nil {
		return err
	}
	if vrErr == nil && v.HasExplicit2BytePad {
		if _, err := wr.w.Write([]byte{0, 0}); err != nil { // reserved
			return err
		}
		if err := wr.writeUint32(length); err != nil {
			return err
		}
	} else {
		bo := wr.endian()
		buf := make([]byte, 2)
		bo.PutUint16(buf, uint16(length))
		if _, err := wr.w.Write(buf); err != nil {
			return err
		}
	}
	if len(e.Raw) > 0 {
		if _, err := wr.w.Write(e.Raw); err != nil {
			return err
		}
	}
	return nil
}

// writeItems emits a sequence element: header with either its
// pre-computed explicit length or the undefined-length marker, each
// item's Item header + body, and, for undefined length, the trailing
// SequenceDelimitationItem, per spec.md §4.3.
func (wr *Writer) writeItems(e *Element) error {
	if err := wr.writeTag(e.Tag); err != nil {
		return err
	}

	undefined := e.Length.Undefined
	var length uint32
	if !undefined {
		var err error
		length, err = wr.itemsByteSize(e.Items)
		if err != nil {
			return err
		}
	} else {
		length = UndefinedLength
	}

	if wr.explicitVR {
		if _, err := wr.w.Write([]byte(e.VR)); err != nil {
			return err
		}
		if _, err := wr.w.Write([]byte{0, 0}); err != nil { // reserved, SQ is always wide
			return err
		}
	}
	if err := wr.writeUint32(length); err != nil {
		return err
	}

	for _, item := range e.Items {
		if err := wr.writeItem(item); err != nil {
			return err
		}
	}
	if undefined {
		if err := wr.writeTag(tag.SequenceDelimitationItem); err != nil {
			return err
		}
		if err := wr.writeUint32(0); err != nil {
			return err
		}
	}
	return nil
}

func (wr *Writer) writeItem(item *Dataset) error {
	itemSize, err := wr.datasetByteSize(item)
	if err != nil {
		return err
	}
	if err := wr.writeTag(tag.Item); err != nil {
		return err
	}
	if err := wr.writeUint32(uint32(itemSize)); err != nil {
		return err
	}
	for _, e := range item.Elements() {
		if err := wr.writeElement(e); err != nil {
			return err
		}
	}
	return nil
}

// writeFragments emits an encapsulated pixel-data element: undefined
// length, a Basic Offset Table item (possibly empty) followed by one Item
// per compressed-stream fragment, and the closing SequenceDelimitationItem
// (spec.md §4.2 point 5 / §4.3).
func (wr *Writer) writeFragments(e *Element) error {
	if err := wr.writeTag(e.Tag); err != nil {
		return err
	}
	if wr.explicitVR {
		if _, err := wr.w.Write([]byte(e.VR)); err != nil {
			return err
		}
		if _, err := wr.w.Write([]byte{0, 0}); err != nil {
			return err
		}
	}
	if err := wr.writeUint32(UndefinedLength); err != nil {
		return err
	}
	for _, frag := range e.Fragments {
		if err := wr.writeTag(tag.Item); err != nil {
			return err
		}
		if err := wr.writeUint32(uint32(len(frag))); err != nil {
			return err
		}
		if len(frag) > 0 {
			if _, err := wr.w.Write(frag); err != nil {
				return err
			}
		}
	}
	if err := wr.writeTag(tag.SequenceDelimitationItem); err != nil {
		return err
	}
	return wr.writeUint32(0)
}

// datasetByteSize pre-computes the encoded byte length of a flat dataset
// without writing it, so a caller can emit an explicit item/group length
// ahead of the body (spec.md §4.3's "pre-computes byte size by walking a
// dataset" note).
func (wr *Writer) datasetByteSize(ds *Dataset) (int, error) {
	total := 0
	for _, e := range ds.Elements() {
		n, err := wr.elementByteSize(e)
		if err != nil {
			return 0, err
		}
		total += n
	}
	return total, nil
}

func (wr *Writer) itemsByteSize(items []*Dataset) (uint32, error) {
	var total int
	for _, item := range items {
		n, err := wr.datasetByteSize(item)
		if err != nil {
			return 0, err
		}
		total += 8 + n // Item tag(4) + length(4) + body
	}
	return uint32(total), nil
}

// elementByteSize returns the fully-encoded size of one element,
// including its header, used by both the file-meta group-length
// computation and nested item-length computation.
func (wr *Writer) elementByteSize(e *Element) (int, error) {
	if e.IsEncapsulatedPixelData() {
		headerSize := wr.headerSizeFor(e.VR)
		total := headerSize
		for _, frag := range e.Fragments {
			total += 8 + len(frag)
		}
		total += 8 // closing SequenceDelimitationItem
		return total, nil
	}
	if e.IsSequence() {
		headerSize := wr.headerSizeFor(e.VR)
		itemsSize, err := wr.itemsByteSize(e.Items)
		if err != nil {
			return 0, err
		}
		total := headerSize + int(itemsSize)
		if e.Length.Undefined {
			total += 8 // closing SequenceDelimitationItem
		}
		return total, nil
	}
	return wr.headerSizeFor(e.VR) + len(e.Raw), nil
}

// headerSizeFor returns the header byte count (tag + VR/reserved/length
// fields) for the writer's current VR encoding mode.
func (wr *Writer) headerSizeFor(code string) int {
	if !wr.explicitVR {
		return 8 // tag(4) + length(4)
	}
	if v, err := vr.Lookup(code); err == nil && v.HasExplicit2BytePad {
		return 12 // tag(4) + VR(2) + reserved(2) + length(4)
	}
	return 8 // tag(4) + VR(2) + length(2)
}

