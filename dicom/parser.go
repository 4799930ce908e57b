package dicom

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"

	"github.com/anthonypark/dicomgo/charset"
	dicomerrors "github.com/anthonypark/dicomgo/errors"
	"github.com/anthonypark/dicomgo/tag"
	"github.com/anthonypark/dicomgo/uid"
	"github.com/anthonypark/dicomgo/vr"
)

// maxValueLengthInDetect is the value-length-under-100 heuristic from
// spec.md §4.2/§9, preserved verbatim from
// original_source/.../read/parser/detect.rs: a 4-byte implicit-VR length
// under this threshold is trusted as the real start of the stream; at or
// above it we assume we are still inside preamble garbage.
const maxValueLengthInDetect = 100

// detectTagRangeLow/High bound the group/element range a file-meta tag is
// expected to fall in during detection (group-length through
// SOPInstanceUID), per spec.md §4.2.
const (
	detectTagRangeLow  = 0x00020000
	detectTagRangeHigh = 0x00080018
)

// Parser is the streaming state machine producing elements from a byte
// source, per spec.md §4.2. It owns the byte source, the current transfer
// syntax and the current character set; it keeps no sequence-path stack,
// so the elements it produces carry no Path. Parsing
// proceeds through the named states DetectTransferSyntax -> Preamble ->
// Prefix -> GroupLength -> FileMeta -> Element, expressed here as a chain
// of methods rather than an explicit state enum, per the "drive one step"
// design note: each state's method reads exactly what that state owns and
// returns control to its caller.
type Parser struct {
	r    *bufio.Reader
	pos  int64

	transferSyntaxUID string
	bigEndian         bool
	explicitVR        bool
	charset           charset.Set

	hadPreamble bool
}

// StopAt caps parsing iteration. The zero value means "parse to EOF".
type StopAt struct {
	Tag         *tag.Tag // stop at or before this tag
	Before      bool     // if true, stop before emitting the matching element
	BytePosition *int64  // stop after this many bytes have been consumed
}

// NewParser constructs a parser that performs transfer-syntax
// auto-detection (file mode): no external transfer syntax is declared.
func NewParser(r io.Reader) *Parser {
	return &Parser{r: bufio.NewReaderSize(r, 64*1024), charset: charset.DefaultSet}
}

// NewParserWithTransferSyntax constructs a parser for a stream whose
// transfer syntax is already known (association/DIMSE mode): detection is
// skipped entirely.
func NewParserWithTransferSyntax(r io.Reader, transferSyntaxUID string) *Parser {
	p := &Parser{r: bufio.NewReaderSize(r, 64*1024), charset: charset.DefaultSet}
	p.setTransferSyntax(transferSyntaxUID)
	return p
}

func (p *Parser) setTransferSyntax(u string) {
	p.transferSyntaxUID = u
	ts, _ := ResolveTransferSyntax(u)
	p.bigEndian = ts.BigEndian
	p.explicitVR = ts.ExplicitVR
}

func (p *Parser) endian() binary.ByteOrder {
	if p.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

func (p *Parser) readFull(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(p.r, buf); err != nil {
		if err == io.EOF {
			return nil, err
		}
		if err == io.ErrUnexpectedEOF {
			return nil, &dicomerrors.UnexpectedEOFError{
				Detail: fmt.Sprintf("wanted %d bytes at offset %d", n, p.pos),
				Err:    err,
			}
		}
		return nil, dicomerrors.NewIOError("read dataset stream", err)
	}
	p.pos += int64(n)
	return buf, nil
}

// HadPreamble reports whether a 128-byte preamble was consumed during
// detection.
func (p *Parser) HadPreamble() bool { return p.hadPreamble }

// TransferSyntaxUID returns the transfer syntax in effect (set by
// detection, by file-meta, or by the caller).
func (p *Parser) TransferSyntaxUID() string { return p.transferSyntaxUID }

// Parse drives the parser to completion (no external stop configuration),
// returning the resulting top-level Dataset. File-mode input (preamble +
// DICM + file-meta) and bare-dataset input are both accepted.
func (p *Parser) Parse() (*Dataset, error) {
	return p.ParseUntil(StopAt{})
}

// ParseUntil drives the parser honoring a stop configuration.
func (p *Parser) ParseUntil(stop StopAt) (*Dataset, error) {
	if p.transferSyntaxUID == "" {
		firstTagBuf, err := p.detectTransferSyntax()
		if err != nil {
			return nil, err
		}
		return p.parseElements(firstTagBuf, stop)
	}
	return p.parseElements(nil, stop)
}

// detectTransferSyntax implements the DetectTransferSyntax/Preamble/
// Prefix/GroupLength/FileMeta state chain of spec.md §4.2, returning any
// already-consumed first-tag bytes that parseElements must treat as the
// first element (the "surface the partially read tag" fallback case).
func (p *Parser) detectTransferSyntax() ([]byte, error) {
	for {
		tagBuf, err := p.readFull(4)
		if err != nil {
			return nil, fmt.Errorf("detect transfer syntax: %w", err)
		}
		leGroup := binary.LittleEndian.Uint16(tagBuf[0:2])
		leElem := binary.LittleEndian.Uint16(tagBuf[2:4])

		if leGroup == 0 && leElem == 0 {
			// Preamble: the 4 bytes just read were the first 4 of a
			// 128-byte preamble (all zero is a common but not required
			// preamble convention in this heuristic's narrow interpretation).
			if err := p.skipPreamble(); err != nil {
				return nil, err
			}
			p.hadPreamble = true
			if err := p.readPrefix(); err != nil {
				return nil, err
			}
			return p.readFileMetaAndContinue()
		}

		candidateLE := uint32(leGroup)<<16 | uint32(leElem)
		if candidateLE >= detectTagRangeLow && candidateLE <= detectTagRangeHigh {
			return p.detectHeaderShape(tagBuf, binary.LittleEndian)
		}

		beGroup := binary.BigEndian.Uint16(tagBuf[0:2])
		beElem := binary.BigEndian.Uint16(tagBuf[2:4])
		candidateBE := uint32(beGroup)<<16 | uint32(beElem)
		if candidateBE >= detectTagRangeLow && candidateBE <= detectTagRangeHigh {
			return p.detectHeaderShape(tagBuf, binary.BigEndian)
		}

		if p.hadPreamble {
			// Outside the expected range even after a preamble: default
			// to implicit VR little endian and surface the partial tag.
			p.setTransferSyntax(uid.ImplicitVRLittleEndian)
			return tagBuf, nil
		}

		// Not yet confirmed a preamble: treat these 4 bytes as the start
		// of a 128-byte preamble and keep scanning, per the narrow
		// "skip 128 more bytes plus the prefix" fallback.
		if err := p.skipPreambleRemainder(4); err != nil {
			return nil, err
		}
		p.hadPreamble = true
		if err := p.readPrefix(); err != nil {
			return nil, err
		}
		return p.readFileMetaAndContinue()
	}
}

func (p *Parser) skipPreamble() error {
	_, err := p.readFull(128 - 4)
	return err
}

func (p *Parser) skipPreambleRemainder(alreadyRead int) error {
	_, err := p.readFull(128 - alreadyRead)
	return err
}

func (p *Parser) readPrefix() error {
	prefix, err := p.readFull(4)
	if err != nil {
		return fmt.Errorf("read DICM prefix: %w", err)
	}
	if string(prefix) != "DICM" {
		return &dicomerrors.InvalidDicomPrefixError{Got: string(prefix)}
	}
	return nil
}

// detectHeaderShape finishes classifying implicit-vs-explicit VR once a
// tag is known to be in the file-meta range: it inspects the next 4 bytes
// as a candidate VR code, falling back to the 100-byte-length heuristic
// when they do not look like a VR. bo is the byte order the tag itself was
// read in (big-endian only ever arises for Explicit VR Big Endian; a
// big-endian candidate that turns out implicit has no standard transfer
// syntax of its own and reverts to Implicit VR Little Endian).
func (p *Parser) detectHeaderShape(tagBuf []byte, bo binary.ByteOrder) ([]byte, error) {
	bigEndian := bo == binary.BigEndian

	next4, err := p.readFull(4)
	if err != nil {
		return nil, err
	}
	code := string(next4[0:2])
	if v, err := vr.Lookup(code); err == nil {
		p.explicitVR = true
		p.bigEndian = bigEndian
		if bigEndian {
			p.transferSyntaxUID = uid.ExplicitVRBigEndian
		} else {
			p.transferSyntaxUID = uid.ExplicitVRLittleEndian
		}
		header := append(tagBuf, next4...)
		if v.HasExplicit2BytePad {
			// Wide VR: next4 held [VR(2), reserved(2)]; the real 4-byte
			// length field is still to come.
			lenBytes, err := p.readFull(4)
			if err != nil {
				return nil, err
			}
			header = append(header, lenBytes...)
		}
		return header, nil
	}

	// Not a recognizable VR: reinterpret as a 4-byte implicit-VR length.
	length := bo.Uint32(next4)
	if length < maxValueLengthInDetect {
		p.explicitVR = false
		p.bigEndian = false
		p.transferSyntaxUID = uid.ImplicitVRLittleEndian
		return append(tagBuf, next4...), nil
	}

	// Still preamble garbage: skip 128 more bytes plus the prefix and
	// restart detection from scratch.
	if err := p.skipPreambleRemainder(0); err != nil {
		return nil, err
	}
	p.hadPreamble = true
	if err := p.readPrefix(); err != nil {
		return nil, err
	}
	return p.readFileMetaAndContinue()
}

// readFileMetaAndContinue reads the file-meta block (always Explicit VR
// Little Endian), captures TransferSyntaxUID, then hands off to the main
// dataset transfer syntax with no pending first-tag bytes.
func (p *Parser) readFileMetaAndContinue() ([]byte, error) {
	p.explicitVR = true
	p.bigEndian = false

	groupLenElem, err := p.readOneElement(nil, 0)
	if err != nil {
		return nil, &dicomerrors.ParseError{Detail: "file meta group length", Offset: p.pos, Err: err}
	}
	gl, err := groupLenElem.DecodedValue()
	budget := int64(0)
	if err == nil && len(gl.UInts) > 0 {
		budget = int64(gl.UInts[0])
	}
	start := p.pos

	fileMetaTS := uid.ExplicitVRLittleEndian
	for p.pos-start < budget {
		e, err := p.readOneElement(nil, 0)
		if err != nil {
			return nil, &dicomerrors.ParseError{Detail: "file meta element", Offset: p.pos, Err: err}
		}
		if e.Tag == tag.TransferSyntaxUID {
			if v, err := e.DecodedValue(); err == nil && len(v.Strings) > 0 {
				fileMetaTS = v.Strings[0]
			}
		}
	}
	p.setTransferSyntax(fileMetaTS)
	return nil, nil
}

// parseElements runs the Element state: repeatedly reads one element at
// the current nesting level (the top-level dataset) until EOF or the
// requested stop condition, implementing the element loop of spec.md
// §4.2 including sequence/item recursion and character-set switching.
func (p *Parser) parseElements(pending []byte, stop StopAt) (*Dataset, error) {
	ds := NewDataset(p.transferSyntaxUID)
	ds.Charset = p.charset

	for {
		e, err := p.readOneElement(pending, 0)
		pending = nil
		if err == io.EOF {
			break
		}
		if err != nil {
			return ds, err
		}
		if stop.Tag != nil && e.Tag == *stop.Tag && stop.Before {
			break
		}

		if e.Tag == tag.SpecificCharacterSet {
			if v, derr := e.DecodedValue(); derr == nil {
				if set, serr := charset.Parse(v.Strings); serr == nil {
					p.charset = set
					ds.Charset = set
				}
			}
		}

		ds.Put(e)

		if stop.Tag != nil && e.Tag == *stop.Tag && !stop.Before {
			break
		}
		if stop.BytePosition != nil && p.pos >= *stop.BytePosition {
			break
		}
	}
	return ds, nil
}

// readOneElement reads a single element at the given sequence-item depth,
// recursing into sequence/item children as needed. pending, when
// non-nil, supplies tag+header bytes already consumed by detection.
func (p *Parser) readOneElement(pending []byte, depth int) (*Element, error) {
	bo := p.endian()

	var g, el uint16
	if len(pending) >= 4 {
		g = bo.Uint16(pending[0:2])
		el = bo.Uint16(pending[2:4])
	} else {
		tagBuf, err := p.readFull(4)
		if err != nil {
			return nil, err
		}
		g = bo.Uint16(tagBuf[0:2])
		el = bo.Uint16(tagBuf[2:4])
	}
	t := tag.Tag{Group: g, Element: el}

	// Delimitation items never carry a VR field; they are read as raw
	// implicit 4-byte-length headers regardless of surrounding syntax.
	if t == tag.ItemDelimitationItem || t == tag.SequenceDelimitationItem {
		lenBuf, err := p.readFull(4)
		if err != nil {
			return nil, err
		}
		_ = lenBuf
		return &Element{Tag: t, VR: "", TransferSyntaxUID: p.transferSyntaxUID, Charset: p.charset}, nil
	}

	var code string
	var length uint32
	var undefined bool

	switch {
	case p.explicitVR && len(pending) >= 8:
		code = string(pending[4:6])
		v, verr := vr.Lookup(code)
		if verr != nil {
			unknownVRErr := &dicomerrors.UnknownExplicitVRError{Tag: t.String(), Code: code}
			slog.Warn("unknown explicit VR, falling back to dictionary VR", "tag", t.String(), "vr", code, "error", unknownVRErr)
			code = tag.VRFor(t)
			length = bo.Uint32(pending[4:8])
		} else if v.HasExplicit2BytePad {
			length = bo.Uint32(pending[8:12])
		} else {
			length = uint32(bo.Uint16(pending[6:8]))
		}
		undefined = length == UndefinedLength
	case p.explicitVR:
		vrBuf, err := p.readFull(2)
		if err != nil {
			return nil, err
		}
		code = string(vrBuf)
		v, verr := vr.Lookup(code)
		if verr != nil {
			// Unknown explicit VR: recover internally by falling back to
			// implicit-style 4-byte length against the dictionary VR.
			unknownVRErr := &dicomerrors.UnknownExplicitVRError{Tag: t.String(), Code: code}
			slog.Warn("unknown explicit VR, falling back to dictionary VR", "tag", t.String(), "vr", code, "error", unknownVRErr)
			code = tag.VRFor(t)
			rest, err := p.readFull(2)
			if err != nil {
				return nil, err
			}
			length = bo.Uint32([]byte{vrBuf[0], vrBuf[1], rest[0], rest[1]})
		} else if v.HasExplicit2BytePad {
			// Wide VR header: 2 reserved bytes then the real 4-byte length.
			if _, err := p.readFull(2); err != nil {
				return nil, err
			}
			lenBytes, err := p.readFull(4)
			if err != nil {
				return nil, err
			}
			length = bo.Uint32(lenBytes)
		} else {
			lenBuf, err := p.readFull(2)
			if err != nil {
				return nil, err
			}
			length = uint32(bo.Uint16(lenBuf))
		}
		undefined = length == UndefinedLength
	default:
		code = tag.VRFor(t)
		var lenBuf []byte
		if len(pending) >= 8 {
			// Detection already consumed this element's 4-byte length.
			lenBuf = pending[4:8]
		} else {
			var err error
			lenBuf, err = p.readFull(4)
			if err != nil {
				return nil, err
			}
		}
		length = bo.Uint32(lenBuf)
		undefined = length == UndefinedLength
	}

	e := &Element{
		Tag:               t,
		VR:                code,
		Length:            Length{Undefined: undefined, Value: length},
		TransferSyntaxUID: p.transferSyntaxUID,
		Charset:           p.charset,
	}

	isPixelFragments := t == tag.PixelData && undefined
	isSequence := code == vr.SQ || (code == vr.UN && undefined)

	if isSequence || isPixelFragments {
		if isPixelFragments {
			e.Fragments = [][]byte{}
		} else {
			e.Items = []*Dataset{}
		}
		if err := p.readItems(e, isPixelFragments); err != nil {
			return nil, err
		}
		return e, nil
	}

	if undefined {
		return nil, &dicomerrors.ParseError{
			Detail: fmt.Sprintf("tag %s VR %s: undefined length not permitted", t, code),
			Offset: p.pos,
		}
	}

	raw, err := p.readFull(int(length))
	if err != nil {
		return nil, err
	}
	e.Raw = raw
	return e, nil
}

// readItems reads the Item children of a sequence-like element (SQ,
// undefined-length UN, or encapsulated pixel data), terminating on a
// SequenceDelimitationItem (undefined length) or on exhausting the
// declared byte budget (explicit length). For ordinary sequences each
// item's content is parsed as a nested flat Dataset; for encapsulated
// pixel data (spec.md §4.2 point 5) each item's content is kept as a raw
// fragment and not recursed into.
func (p *Parser) readItems(e *Element, fragments bool) error {
	startPos := p.pos
	budget := int64(e.Length.Value)

	for {
		if !e.Length.Undefined && p.pos-startPos >= budget {
			return nil
		}
		tagBuf, err := p.readFull(4)
		if err != nil {
			return err
		}
		// Item framing is always Implicit VR Little Endian regardless of
		// the surrounding transfer syntax.
		childTag := tag.Tag{
			Group:   binary.LittleEndian.Uint16(tagBuf[0:2]),
			Element: binary.LittleEndian.Uint16(tagBuf[2:4]),
		}
		if childTag == tag.SequenceDelimitationItem {
			if _, err := p.readFull(4); err != nil { // delimiter's own 4-byte length (always 0)
				return err
			}
			return nil
		}
		if childTag != tag.Item {
			return &dicomerrors.ParseError{
				Detail: fmt.Sprintf("expected Item or SequenceDelimitationItem, got %s", childTag),
				Offset: p.pos,
			}
		}
		lenBuf, err := p.readFull(4)
		if err != nil {
			return err
		}
		itemLength := binary.LittleEndian.Uint32(lenBuf)
		itemUndefined := itemLength == UndefinedLength

		if fragments {
			raw, err := p.readFull(int(itemLength))
			if err != nil {
				return err
			}
			e.Fragments = append(e.Fragments, raw)
			continue
		}

		item, err := p.readItemDataset(itemUndefined, itemLength)
		if err != nil {
			return err
		}
		e.Items = append(e.Items, item)
	}
}

// readItemDataset parses one sequence item's nested flat dataset,
// stopping at an ItemDelimitationItem (undefined length) or at the
// item's declared byte budget (explicit length). The item's own
// character-set scope reverts to the enclosing scope once the item ends
// (spec.md §4.2's character-set-switching rule).
func (p *Parser) readItemDataset(undefined bool, length uint32) (*Dataset, error) {
	outerCharset := p.charset
	defer func() { p.charset = outerCharset }()

	item := NewDataset(p.transferSyntaxUID)
	item.Charset = p.charset
	start := p.pos
	budget := int64(length)

	for {
		if !undefined && p.pos-start >= budget {
			return item, nil
		}
		e, err := p.readOneElement(nil, 0)
		if err != nil {
			return nil, err
		}
		if undefined && e.Tag == tag.ItemDelimitationItem {
			return item, nil
		}
		if e.Tag == tag.SpecificCharacterSet {
			if v, derr := e.DecodedValue(); derr == nil {
				if set, serr := charset.Parse(v.Strings); serr == nil {
					p.charset = set
					item.Charset = set
				}
			}
		}
		item.Put(e)
	}
}
