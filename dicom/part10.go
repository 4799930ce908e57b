package dicom

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
)

// StripPart10Header removes a DICOM Part 10 preamble and File Meta
// Information block, returning only the dataset bytes that follow. This is
// useful when a caller needs to hand a bare dataset to DIMSE operations
// (C-STORE, P-DATA) that expect no Part 10 wrapper. Detection and skipping
// reuse Parser's own state chain, so the offset found here agrees with
// what ParseUntil would have consumed, instead of duplicating the file
// meta walk by hand.
//
// Data that does not begin with a preamble/"DICM" prefix is returned
// unchanged: it is already a bare dataset.
func StripPart10Header(data []byte) ([]byte, error) {
	if !HasPart10Header(data) {
		return data, nil
	}

	p := NewParser(bytes.NewReader(data))
	if _, err := p.detectTransferSyntax(); err != nil {
		return nil, fmt.Errorf("strip part 10 header: %w", err)
	}
	return data[p.pos:], nil
}

// HasPart10Header reports whether data begins with the 128-byte preamble
// followed by the "DICM" prefix.
func HasPart10Header(data []byte) bool {
	if len(data) < 132 {
		return false
	}
	return string(data[128:132]) == "DICM"
}

// PeekHasPart10Header reports whether a stream reader begins with a Part
// 10 preamble/prefix, without consuming any bytes, so a caller deciding
// between NewParser (auto-detect) and NewParserWithTransferSyntax (bare
// stream, known syntax) can make that choice up front.
func PeekHasPart10Header(r *bufio.Reader) (bool, error) {
	head, err := r.Peek(132)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return false, nil
		}
		return false, err
	}
	return string(head[128:132]) == "DICM", nil
}
