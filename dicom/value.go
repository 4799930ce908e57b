// Package dicom implements the dataset codec: the streaming parser and
// writer for the DICOM tag-stream, its element/value model, and the
// optional tree access layer.
package dicom

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/anthonypark/dicomgo/charset"
	dicomerrors "github.com/anthonypark/dicomgo/errors"
	"github.com/anthonypark/dicomgo/tag"
	"github.com/anthonypark/dicomgo/vr"
)

// Kind discriminates the variant held by a Value. Per spec.md §4.1/§9,
// this is a tagged union: the VR plus context selects the variant at
// decode time rather than the VR owning a subclass.
type Kind int

const (
	KindBytes Kind = iota
	KindStrings
	KindAttributeTags
	KindShorts
	KindUShorts
	KindInts
	KindUInts
	KindLongs
	KindULongs
	KindFloats
	KindDoubles
)

// Value is the decoded, semantic form of an element's bytes.
type Value struct {
	Kind    Kind
	Strings []string   // CS/LO/PN/SH/... and UI (single-entry)
	Tags    []tag.Tag  // AT
	Shorts  []int16    // SS
	UShorts []uint16   // US, OW (word-typed byte array)
	Ints    []int32    // SL
	UInts   []uint32   // UL, OL
	Longs   []int64    // SV
	ULongs  []uint64   // UV, OV
	Floats  []float32  // FL, OF
	Doubles []float64  // FD, OD
	Bytes   []byte     // OB, UN, fallback
}

// BytesValue wraps raw bytes in the always-succeeding Bytes variant.
func BytesValue(b []byte) Value { return Value{Kind: KindBytes, Bytes: b} }

// endian resolves the byte order for a transfer syntax's big-endian flag.
func endian(bigEndian bool) binary.ByteOrder {
	if bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// DecodeValue converts raw element bytes to a semantic Value per the VR
// and transfer-syntax rules of spec.md §4.1. cs is the character set in
// effect for textual VRs; t names the element's tag, used only to detect
// the private-creator UN special case and for warning diagnostics.
func DecodeValue(t tag.Tag, code string, raw []byte, bigEndian bool, cs charset.Set) (Value, error) {
	if len(raw) == 0 {
		return BytesValue(nil), nil
	}
	bo := endian(bigEndian)

	v, err := vr.Lookup(code)
	if err != nil {
		return Value{}, err
	}

	switch code {
	case vr.AT:
		if len(raw)%4 != 0 {
			return Value{}, fmt.Errorf("AT value length %d not a multiple of 4", len(raw))
		}
		tags := make([]tag.Tag, 0, len(raw)/4)
		for i := 0; i+4 <= len(raw); i += 4 {
			tags = append(tags, tag.Tag{Group: bo.Uint16(raw[i : i+2]), Element: bo.Uint16(raw[i+2 : i+4])})
		}
		return Value{Kind: KindAttributeTags, Tags: tags}, nil

	case vr.UI:
		s := strings.TrimRight(string(raw), "\x00")
		return Value{Kind: KindStrings, Strings: []string{s}}, nil

	case vr.SS:
		return decodeInt16(raw, bo)
	case vr.US:
		return decodeUint16(raw, bo)
	case vr.SL:
		return decodeInt32(raw, bo)
	case vr.UL:
		return decodeUint32(raw, bo)
	case vr.SV:
		return decodeInt64(raw, bo)
	case vr.UV:
		return decodeUint64(raw, bo)
	case vr.FL:
		return decodeFloat32(raw, bo)
	case vr.OF:
		return decodeFloat32(raw, bo)
	case vr.FD:
		return decodeFloat64(raw, bo)
	case vr.OD:
		return decodeFloat64(raw, bo)
	case vr.OW:
		return decodeUint16(raw, bo)
	case vr.OL:
		return decodeUint32(raw, bo)
	case vr.OV:
		return decodeUint64(raw, bo)

	case vr.OB, vr.UN:
		if code == vr.UN && t.IsPrivateCreator() {
			if uidVal, err := DecodeValue(t, vr.UI, raw, bigEndian, cs); err == nil {
				return uidVal, nil
			}
		}
		return BytesValue(raw), nil

	default:
		if v.IsString {
			return decodeString(t, v, raw, cs)
		}
		return BytesValue(raw), nil
	}
}

func decodeInt16(raw []byte, bo binary.ByteOrder) (Value, error) {
	if len(raw)%2 != 0 {
		return Value{}, fmt.Errorf("SS value length %d not a multiple of 2", len(raw))
	}
	out := make([]int16, len(raw)/2)
	for i := range out {
		out[i] = int16(bo.Uint16(raw[i*2:]))
	}
	return Value{Kind: KindShorts, Shorts: out}, nil
}

func decodeUint16(raw []byte, bo binary.ByteOrder) (Value, error) {
	if len(raw)%2 != 0 {
		return Value{}, fmt.Errorf("US value length %d not a multiple of 2", len(raw))
	}
	out := make([]uint16, len(raw)/2)
	for i := range out {
		out[i] = bo.Uint16(raw[i*2:])
	}
	return Value{Kind: KindUShorts, UShorts: out}, nil
}

func decodeInt32(raw []byte, bo binary.ByteOrder) (Value, error) {
	if len(raw)%4 != 0 {
		return Value{}, fmt.Errorf("SL value length %d not a multiple of 4", len(raw))
	}
	out := make([]int32, len(raw)/4)
	for i := range out {
		out[i] = int32(bo.Uint32(raw[i*4:]))
	}
	return Value{Kind: KindInts, Ints: out}, nil
}

func decodeUint32(raw []byte, bo binary.ByteOrder) (Value, error) {
	if len(raw)%4 != 0 {
		return Value{}, fmt.Errorf("UL value length %d not a multiple of 4", len(raw))
	}
	out := make([]uint32, len(raw)/4)
	for i := range out {
		out[i] = bo.Uint32(raw[i*4:])
	}
	return Value{Kind: KindUInts, UInts: out}, nil
}

func decodeInt64(raw []byte, bo binary.ByteOrder) (Value, error) {
	if len(raw)%8 != 0 {
		return Value{}, fmt.Errorf("SV value length %d not a multiple of 8", len(raw))
	}
	out := make([]int64, len(raw)/8)
	for i := range out {
		out[i] = int64(bo.Uint64(raw[i*8:]))
	}
	return Value{Kind: KindLongs, Longs: out}, nil
}

func decodeUint64(raw []byte, bo binary.ByteOrder) (Value, error) {
	if len(raw)%8 != 0 {
		return Value{}, fmt.Errorf("UV value length %d not a multiple of 8", len(raw))
	}
	out := make([]uint64, len(raw)/8)
	for i := range out {
		out[i] = bo.Uint64(raw[i*8:])
	}
	return Value{Kind: KindULongs, ULongs: out}, nil
}

func decodeFloat32(raw []byte, bo binary.ByteOrder) (Value, error) {
	if len(raw)%4 != 0 {
		return Value{}, fmt.Errorf("FL value length %d not a multiple of 4", len(raw))
	}
	out := make([]float32, len(raw)/4)
	for i := range out {
		out[i] = math.Float32frombits(bo.Uint32(raw[i*4:]))
	}
	return Value{Kind: KindFloats, Floats: out}, nil
}

func decodeFloat64(raw []byte, bo binary.ByteOrder) (Value, error) {
	if len(raw)%8 != 0 {
		return Value{}, fmt.Errorf("FD value length %d not a multiple of 8", len(raw))
	}
	out := make([]float64, len(raw)/8)
	for i := range out {
		out[i] = math.Float64frombits(bo.Uint64(raw[i*8:]))
	}
	return Value{Kind: KindDoubles, Doubles: out}, nil
}

// decodeString implements the character-string decode path: charset
// decode, then VR-specific padding trim, then optional 0x5C split.
func decodeString(t tag.Tag, v vr.VR, raw []byte, cs charset.Set) (Value, error) {
	decoded, err := cs.DecodeIdeographic(raw)
	if err != nil {
		charsetErr := &dicomerrors.CharsetError{Detail: fmt.Sprintf("tag %s vr %s", t.String(), v.Code), Err: err}
		slog.Warn("charset decode failed, returning bytes", "tag", t.String(), "vr", v.Code, "error", charsetErr)
		return BytesValue(raw), nil
	}

	decoded = trimPadding(decoded, v)

	var parts []string
	if v.Splittable {
		parts = strings.Split(decoded, "\x5C")
	} else {
		parts = []string{decoded}
	}

	if v.Code == vr.IS || v.Code == vr.DS {
		return decodeNumericString(t, v, parts)
	}

	return Value{Kind: KindStrings, Strings: parts}, nil
}

// trimPadding trims the VR's pad character from the sides its flags
// permit: LT/ST/UT/UR trim only trailing, per spec.md §3/§4.1; the other
// string VRs trim both sides (leading padding is non-standard but
// tolerated defensively, matching the source's lenient trim).
func trimPadding(s string, v vr.VR) string {
	pad := string(v.Padding)
	switch v.Code {
	case vr.LT, vr.ST, vr.UT, vr.UR:
		return strings.TrimRight(s, pad+"\x00")
	default:
		return strings.Trim(s, pad+"\x00")
	}
}

// decodeNumericString implements the IS/DS decode rule: IS parses as a
// base-10 integer; on failure (notably a decimal point, which the DICOM
// standard forbids in IS but which occurs in the wild) it falls back to
// DS (float) parsing, logging a warning, per the Open Question decision
// in DESIGN.md.
func decodeNumericString(t tag.Tag, v vr.VR, parts []string) (Value, error) {
	strs := make([]string, len(parts))
	for i, p := range parts {
		strs[i] = strings.TrimSpace(p)
	}
	if v.Code == vr.DS {
		out := make([]float64, 0, len(strs))
		for _, s := range strs {
			if s == "" {
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Value{}, fmt.Errorf("DS value %q: %w", s, err)
			}
			out = append(out, f)
		}
		return Value{Kind: KindDoubles, Doubles: out, Strings: strs}, nil
	}
	// IS
	out := make([]int64, 0, len(strs))
	fallback := false
	for _, s := range strs {
		if s == "" {
			continue
		}
		n, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			fallback = true
			break
		}
		out = append(out, n)
	}
	if fallback {
		slog.Warn("IS value contains a decimal point, falling back to DS parsing",
			"tag", t.String(), "value", strings.Join(strs, "\\"))
		floats := make([]float64, 0, len(strs))
		for _, s := range strs {
			if s == "" {
				continue
			}
			f, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return Value{}, fmt.Errorf("IS/DS-fallback value %q: %w", s, err)
			}
			floats = append(floats, f)
		}
		return Value{Kind: KindDoubles, Doubles: floats, Strings: strs}, nil
	}
	return Value{Kind: KindLongs, Longs: out, Strings: strs}, nil
}

// EncodeValue is the inverse of DecodeValue: it formats a semantic Value
// back to raw bytes for the given VR and transfer syntax, joining
// multi-values with 0x5C and padding odd results with the VR's pad byte.
func EncodeValue(code string, val Value, bigEndian bool) ([]byte, error) {
	v, err := vr.Lookup(code)
	if err != nil {
		return nil, err
	}
	bo := endian(bigEndian)

	var raw []byte
	switch code {
	case vr.AT:
		raw = make([]byte, 0, len(val.Tags)*4)
		for _, t := range val.Tags {
			buf := make([]byte, 4)
			bo.PutUint16(buf[0:2], t.Group)
			bo.PutUint16(buf[2:4], t.Element)
			raw = append(raw, buf...)
		}
	case vr.SS:
		raw = encodeInt16s(val.Shorts, bo)
	case vr.US, vr.OW:
		raw = encodeUint16s(val.UShorts, bo)
	case vr.SL:
		raw = encodeInt32s(val.Ints, bo)
	case vr.UL, vr.OL:
		raw = encodeUint32s(val.UInts, bo)
	case vr.SV:
		raw = encodeInt64s(val.Longs, bo)
	case vr.UV, vr.OV:
		raw = encodeUint64s(val.ULongs, bo)
	case vr.FL, vr.OF:
		raw = encodeFloat32s(val.Floats, bo)
	case vr.FD, vr.OD:
		raw = encodeFloat64s(val.Doubles, bo)
	case vr.OB, vr.UN:
		raw = append([]byte(nil), val.Bytes...)
	case vr.DS:
		raw = []byte(encodeDS(val))
	case vr.IS:
		raw = []byte(strings.Join(val.Strings, "\x5C"))
	default:
		if v.IsString {
			raw = []byte(strings.Join(val.Strings, "\x5C"))
		} else {
			raw = append([]byte(nil), val.Bytes...)
		}
	}

	if len(raw)%2 != 0 {
		raw = append(raw, v.Padding)
	}
	return raw, nil
}

// encodeDS formats DS values with a minimum of one decimal digit, per
// spec.md §4.3's writer-normalization allowance.
func encodeDS(val Value) string {
	if len(val.Strings) == len(val.Doubles) && len(val.Strings) > 0 {
		return strings.Join(val.Strings, "\x5C")
	}
	parts := make([]string, len(val.Doubles))
	for i, f := range val.Doubles {
		parts[i] = strconv.FormatFloat(f, 'f', -1, 64)
		if !strings.Contains(parts[i], ".") {
			parts[i] += ".0"
		}
	}
	return strings.Join(parts, "\x5C")
}

func encodeInt16s(vs []int16, bo binary.ByteOrder) []byte {
	out := make([]byte, len(vs)*2)
	for i, v := range vs {
		bo.PutUint16(out[i*2:], uint16(v))
	}
	return out
}

func encodeUint16s(vs []uint16, bo binary.ByteOrder) []byte {
	out := make([]byte, len(vs)*2)
	for i, v := range vs {
		bo.PutUint16(out[i*2:], v)
	}
	return out
}

func encodeInt32s(vs []int32, bo binary.ByteOrder) []byte {
	out := make([]byte, len(vs)*4)
	for i, v := range vs {
		bo.PutUint32(out[i*4:], uint32(v))
	}
	return out
}

func encodeUint32s(vs []uint32, bo binary.ByteOrder) []byte {
	out := make([]byte, len(vs)*4)
	for i, v := range vs {
		bo.PutUint32(out[i*4:], v)
	}
	return out
}

func encodeInt64s(vs []int64, bo binary.ByteOrder) []byte {
	out := make([]byte, len(vs)*8)
	for i, v := range vs {
		bo.PutUint64(out[i*8:], uint64(v))
	}
	return out
}

func encodeUint64s(vs []uint64, bo binary.ByteOrder) []byte {
	out := make([]byte, len(vs)*8)
	for i, v := range vs {
		bo.PutUint64(out[i*8:], v)
	}
	return out
}

func encodeFloat32s(vs []float32, bo binary.ByteOrder) []byte {
	out := make([]byte, len(vs)*4)
	for i, v := range vs {
		bo.PutUint32(out[i*4:], math.Float32bits(v))
	}
	return out
}

func encodeFloat64s(vs []float64, bo binary.ByteOrder) []byte {
	out := make([]byte, len(vs)*8)
	for i, v := range vs {
		bo.PutUint64(out[i*8:], math.Float64bits(v))
	}
	return out
}
