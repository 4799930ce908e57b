package dicom

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/anthonypark/dicomgo/tag"
	"github.com/anthonypark/dicomgo/uid"
	"github.com/anthonypark/dicomgo/vr"
)

// buildPart10File assembles a minimal but valid Part 10 file: 128-byte
// zero preamble, "DICM" prefix, a file-meta group carrying only
// TransferSyntaxUID, then one dataset element under that syntax.
func buildPart10File(t *testing.T, transferSyntaxUID string) []byte {
	t.Helper()

	meta := NewDataset(uid.ExplicitVRLittleEndian)
	if err := meta.PutString(tag.TransferSyntaxUID, vr.UI, transferSyntaxUID); err != nil {
		t.Fatalf("PutString TransferSyntaxUID: %v", err)
	}

	ds := NewDataset(transferSyntaxUID)
	if err := ds.PutString(tag.Tag{Group: 0x0010, Element: 0x0010}, vr.PN, "Doe^John"); err != nil {
		t.Fatalf("PutString PatientName: %v", err)
	}

	var buf bytes.Buffer
	w := NewWriter(&buf, transferSyntaxUID)
	if err := w.WriteFileHeader(meta); err != nil {
		t.Fatalf("WriteFileHeader: %v", err)
	}
	if err := w.WriteDataset(ds); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	return buf.Bytes()
}

func TestHasPart10Header(t *testing.T) {
	file := buildPart10File(t, uid.ExplicitVRLittleEndian)
	if !HasPart10Header(file) {
		t.Error("HasPart10Header on a well-formed Part 10 file = false, want true")
	}

	if HasPart10Header([]byte("too short")) {
		t.Error("HasPart10Header on a too-short slice = true, want false")
	}

	raw := make([]byte, 200)
	if HasPart10Header(raw) {
		t.Error("HasPart10Header on 200 zero bytes (no DICM at offset 128) = true, want false")
	}
}

func TestStripPart10HeaderRemovesHeader(t *testing.T) {
	file := buildPart10File(t, uid.ExplicitVRLittleEndian)

	stripped, err := StripPart10Header(file)
	if err != nil {
		t.Fatalf("StripPart10Header: %v", err)
	}
	if len(stripped) >= len(file) {
		t.Fatalf("StripPart10Header did not shrink the file: got %d bytes, original %d", len(stripped), len(file))
	}

	ds, err := NewParserWithTransferSyntax(bytes.NewReader(stripped), uid.ExplicitVRLittleEndian).Parse()
	if err != nil {
		t.Fatalf("parsing stripped bytes: %v", err)
	}
	if got := ds.GetString(tag.Tag{Group: 0x0010, Element: 0x0010}); got != "Doe^John" {
		t.Errorf("stripped dataset PatientName = %q, want %q", got, "Doe^John")
	}
}

func TestStripPart10HeaderPassesThroughBareDataset(t *testing.T) {
	ds := NewDataset(uid.ImplicitVRLittleEndian)
	_ = ds.PutString(tag.Tag{Group: 0x0010, Element: 0x0010}, vr.PN, "Doe^John")

	var buf bytes.Buffer
	w := NewWriter(&buf, uid.ImplicitVRLittleEndian)
	if err := w.WriteDataset(ds); err != nil {
		t.Fatalf("WriteDataset: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	bare := buf.Bytes()
	stripped, err := StripPart10Header(bare)
	if err != nil {
		t.Fatalf("StripPart10Header on a bare dataset: %v", err)
	}
	if !bytes.Equal(stripped, bare) {
		t.Error("StripPart10Header must return data unchanged when no preamble/DICM prefix is present")
	}
}

func TestStripPart10HeaderOnShortInput(t *testing.T) {
	short := []byte{0x01, 0x02, 0x03}
	stripped, err := StripPart10Header(short)
	if err != nil {
		t.Fatalf("StripPart10Header on too-short input returned an error: %v", err)
	}
	if !bytes.Equal(stripped, short) {
		t.Error("StripPart10Header on too-short input must pass the bytes through unchanged")
	}
}

func TestPeekHasPart10Header(t *testing.T) {
	file := buildPart10File(t, uid.ExplicitVRLittleEndian)

	r := bufio.NewReader(bytes.NewReader(file))
	has, err := PeekHasPart10Header(r)
	if err != nil {
		t.Fatalf("PeekHasPart10Header: %v", err)
	}
	if !has {
		t.Error("PeekHasPart10Header on a well-formed Part 10 file = false, want true")
	}
	// Peek must not have consumed any bytes.
	if n := r.Buffered(); n != len(file) {
		t.Errorf("PeekHasPart10Header consumed bytes: %d buffered, want %d", n, len(file))
	}

	r2 := bufio.NewReader(bytes.NewReader([]byte("short")))
	has2, err := PeekHasPart10Header(r2)
	if err != nil {
		t.Fatalf("PeekHasPart10Header on short stream: %v", err)
	}
	if has2 {
		t.Error("PeekHasPart10Header on a short stream = true, want false")
	}
}
