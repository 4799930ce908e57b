// Package charset maps DICOM SpecificCharacterSet names to decoders, so
// the dataset value codec can decode character-string VRs in the active
// character set and switch that set mid-stream.
package charset

import (
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Default is ISO-IR-6, 7-bit ASCII with DICOM's default extensions — the
// character set in effect before any SpecificCharacterSet element is seen.
const Default = "ISO_IR 6"

// htmlEncodingNames maps a DICOM defined-term for a character repertoire
// to the golang.org/x/text/encoding/htmlindex name that decodes it. An
// empty string means 7-bit ASCII, requiring no decoder.
var htmlEncodingNames = map[string]string{
	"":                "",
	"ISO_IR 6":        "",
	"ISO 2022 IR 6":   "",
	"ISO_IR 13":       "shift_jis",
	"ISO 2022 IR 13":  "shift_jis",
	"ISO_IR 100":      "",
	"ISO 2022 IR 100": "",
	"ISO_IR 101":      "iso-8859-2",
	"ISO 2022 IR 101": "iso-8859-2",
	"ISO_IR 109":      "iso-8859-3",
	"ISO 2022 IR 109": "iso-8859-3",
	"ISO_IR 110":      "iso-8859-4",
	"ISO 2022 IR 110": "iso-8859-4",
	"ISO_IR 126":      "iso-ir-126",
	"ISO 2022 IR 126": "iso-ir-126",
	"ISO_IR 127":      "iso-ir-127",
	"ISO 2022 IR 127": "iso-ir-127",
	"ISO_IR 138":      "iso-ir-138",
	"ISO 2022 IR 138": "iso-ir-138",
	"ISO_IR 144":      "iso-ir-144",
	"ISO 2022 IR 144": "iso-ir-144",
	"ISO_IR 148":      "iso-ir-148",
	"ISO 2022 IR 148": "iso-ir-148",
	"ISO 2022 IR 149": "euc-kr",
	"ISO 2022 IR 159": "iso-2022-jp",
	"ISO_IR 166":      "iso-ir-166",
	"ISO 2022 IR 166": "iso-ir-166",
	"ISO 2022 IR 87":  "iso-2022-jp",
	"GB18030":         "gb18030",
	"ISO_IR 192":      "utf-8",
}

// ErrUnknownCharset is returned for a defined-term not in the table.
type ErrUnknownCharset struct{ Name string }

func (e ErrUnknownCharset) Error() string {
	return fmt.Sprintf("unknown specific character set %q", e.Name)
}

// Decoder returns a decoder for a single DICOM character-set defined term.
// A nil *encoding.Decoder with a nil error means 7-bit ASCII: the caller
// should treat the bytes as already being valid UTF-8/ASCII.
func Decoder(name string) (*encoding.Decoder, error) {
	htmlName, ok := htmlEncodingNames[strings.TrimSpace(name)]
	if !ok {
		return nil, ErrUnknownCharset{Name: name}
	}
	if htmlName == "" {
		return nil, nil
	}
	enc, err := htmlindex.Get(htmlName)
	if err != nil {
		return nil, fmt.Errorf("charset %q (%s): %w", name, htmlName, err)
	}
	return enc.NewDecoder(), nil
}

// Set is the resolved decoder triple for a SpecificCharacterSet value,
// mirroring DICOM PS3.5 §6.2's three coding roles (alphabetic,
// ideographic, phonetic) used for Person Name values; every other
// character-string VR uses only the Ideographic slot.
type Set struct {
	Name        string
	Alphabetic  *encoding.Decoder
	Ideographic *encoding.Decoder
	Phonetic    *encoding.Decoder
}

// DefaultSet is the ISO-IR-6 set with no decoding required.
var DefaultSet = Set{Name: Default}

// Parse builds a Set from the (possibly multi-valued) decoded contents of
// a SpecificCharacterSet element. Per spec.md §4.2, the dataset's active
// character set is the first non-empty value.
func Parse(values []string) (Set, error) {
	var names []string
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			names = append(names, v)
		}
	}
	if len(names) == 0 {
		return DefaultSet, nil
	}
	decoders := make([]*encoding.Decoder, len(names))
	for i, n := range names {
		d, err := Decoder(n)
		if err != nil {
			return Set{}, err
		}
		decoders[i] = d
	}
	set := Set{Name: names[0]}
	switch len(decoders) {
	case 1:
		set.Alphabetic, set.Ideographic, set.Phonetic = decoders[0], decoders[0], decoders[0]
	case 2:
		set.Alphabetic, set.Ideographic, set.Phonetic = decoders[0], decoders[1], decoders[1]
	default:
		set.Alphabetic, set.Ideographic, set.Phonetic = decoders[0], decoders[1], decoders[2]
	}
	return set, nil
}

// DecodeIdeographic decodes raw bytes using the ideographic slot, which is
// the only slot consulted for non-PN character-string VRs.
func (s Set) DecodeIdeographic(b []byte) (string, error) {
	if s.Ideographic == nil {
		return string(b), nil
	}
	out, err := s.Ideographic.Bytes(b)
	if err != nil {
		return string(b), fmt.Errorf("charset decode under %q: %w", s.Name, err)
	}
	return string(out), nil
}
