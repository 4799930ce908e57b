// Package vr is the Value Representation registry: the per-VR constants
// that drive both the dataset parser's header decoding and the value
// codec's byte<->semantic-value conversion.
package vr

import "fmt"

// VR is one Value Representation's static metadata.
type VR struct {
	Code string // the two-character ASCII code, e.g. "AE"
	Name string
	// Padding is the byte used to pad an odd-length value to even length:
	// space (0x20) for textual VRs except UI, null (0x00) for UI and for
	// binary ones.
	Padding byte
	// IsString reports whether the value is textual (decoded through the
	// active character set) as opposed to binary.
	IsString bool
	// Splittable reports whether a 0x5C byte embedded in the value
	// separates multiple values. LT, ST, UT and UR never split.
	Splittable bool
	// HasExplicit2BytePad reports whether, in explicit-VR encoding, this
	// VR's header carries a 2-byte reserved field before a 4-byte length
	// (true for OB, OD, OF, OL, OV, OW, SQ, SV, UC, UN, UR, UT, UV); all other
	// VRs use a 2-byte length with no reserved field.
	HasExplicit2BytePad bool
}

// Canonical VR identifiers.
const (
	AE = "AE"
	AS = "AS"
	AT = "AT"
	CS = "CS"
	DA = "DA"
	DS = "DS"
	DT = "DT"
	FD = "FD"
	FL = "FL"
	IS = "IS"
	LO = "LO"
	LT = "LT"
	OB = "OB"
	OD = "OD"
	OF = "OF"
	OL = "OL"
	OV = "OV"
	OW = "OW"
	PN = "PN"
	SH = "SH"
	SL = "SL"
	SQ = "SQ"
	SS = "SS"
	ST = "ST"
	SV = "SV"
	TM = "TM"
	UC = "UC"
	UI = "UI"
	UL = "UL"
	UN = "UN"
	UR = "UR"
	US = "US"
	UT = "UT"
	UV = "UV"
)

// registry is keyed by the two-character code. Grounded on
// original_source's core/vr.rs; SV, OV and UV are 2020-edition additions
// absent from that (2018-vintage) source and are added here directly from
// the DICOM standard, taking their padding from their same-shaped siblings
// (SL/UL for SV and UV, OL/OW for OV); unlike SL and UL, all three use the
// explicit-VR header with the 2-byte reserved field.
var registry = map[string]VR{
	AE: {AE, "Application Entity", 0x20, true, true, false},
	AS: {AS, "Age String", 0x20, true, true, false},
	AT: {AT, "Attribute Tag", 0x00, false, false, false},
	CS: {CS, "Code String", 0x20, true, true, false},
	DA: {DA, "Date", 0x20, true, true, false},
	DS: {DS, "Decimal String", 0x20, true, true, false},
	DT: {DT, "Date Time", 0x20, true, true, false},
	FD: {FD, "Floating Point Double", 0x00, false, false, false},
	FL: {FL, "Floating Point Single", 0x00, false, false, false},
	IS: {IS, "Integer String", 0x20, true, true, false},
	LO: {LO, "Long String", 0x20, true, true, false},
	LT: {LT, "Long Text", 0x20, true, false, false},
	OB: {OB, "Other Byte", 0x00, false, false, true},
	OD: {OD, "Other Double", 0x00, false, false, true},
	OF: {OF, "Other Float", 0x00, false, false, true},
	OL: {OL, "Other Long", 0x00, false, false, true},
	OV: {OV, "Other Very Long", 0x00, false, false, true},
	OW: {OW, "Other Word", 0x00, false, false, true},
	PN: {PN, "Person Name", 0x20, true, true, false},
	SH: {SH, "Short String", 0x20, true, true, false},
	SL: {SL, "Signed Long", 0x00, false, false, false},
	SQ: {SQ, "Sequence of Items", 0x00, false, false, true},
	SS: {SS, "Signed Short", 0x00, false, false, false},
	ST: {ST, "Short Text", 0x20, true, false, false},
	SV: {SV, "Signed Very Long", 0x00, false, false, true},
	TM: {TM, "Time", 0x20, true, true, false},
	UC: {UC, "Unlimited Characters", 0x20, true, true, true},
	UI: {UI, "Unique Identifier", 0x00, true, true, false},
	UL: {UL, "Unsigned Long", 0x00, false, false, false},
	UN: {UN, "Unknown", 0x00, false, false, true},
	UR: {UR, "Universal Resource Identifier", 0x20, true, false, true},
	US: {US, "Unsigned Short", 0x00, false, false, false},
	UT: {UT, "Unlimited Text", 0x20, true, false, true},
	UV: {UV, "Unsigned Very Long", 0x00, false, false, true},
}

// ErrUnknownVR is returned by Lookup for a code outside the registry.
type ErrUnknownVR struct{ Code string }

func (e ErrUnknownVR) Error() string { return fmt.Sprintf("unknown VR code %q", e.Code) }

// Lookup returns the canonical VR for a two-character code.
func Lookup(code string) (VR, error) {
	v, ok := registry[code]
	if !ok {
		return VR{}, ErrUnknownVR{Code: code}
	}
	return v, nil
}

// MustLookup is Lookup but panics on an unknown code; for use only with
// compile-time-constant codes such as the ones above.
func MustLookup(code string) VR {
	v, err := Lookup(code)
	if err != nil {
		panic(err)
	}
	return v
}

// ElementSize returns the fixed per-value byte width for VRs that decode
// to fixed-width numeric types, and false for VRs with no fixed width
// (textual VRs, OB/UN byte streams, SQ).
func ElementSize(code string) (int, bool) {
	switch code {
	case SS, US:
		return 2, true
	case SL, UL, FL:
		return 4, true
	case SV, UV, FD:
		return 8, true
	case AT:
		return 4, true
	case OW:
		return 2, true
	case OL:
		return 4, true
	case OV:
		return 8, true
	case OD:
		return 8, true
	case OF:
		return 4, true
	default:
		return 0, false
	}
}
