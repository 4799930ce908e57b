// Package dimse implements the DIMSE command-message codec, the status
// taxonomy, and the composite service operations (echo/find/get/move/
// store/cancel) of spec.md §4.7, including each operation's provider-side
// state machine.
package dimse

import (
	"bytes"
	"fmt"

	"github.com/anthonypark/dicomgo/dicom"
	dicomerrors "github.com/anthonypark/dicomgo/errors"
	"github.com/anthonypark/dicomgo/tag"
	"github.com/anthonypark/dicomgo/uid"
	"github.com/anthonypark/dicomgo/vr"
)

// Command field values, spec.md §4.7.
const (
	CEchoRQ   uint16 = 0x0030
	CEchoRSP  uint16 = 0x8030
	CFindRQ   uint16 = 0x0020
	CFindRSP  uint16 = 0x8020
	CGetRQ    uint16 = 0x0010
	CGetRSP   uint16 = 0x8010
	CMoveRQ   uint16 = 0x0021
	CMoveRSP  uint16 = 0x8021
	CStoreRQ  uint16 = 0x0001
	CStoreRSP uint16 = 0x8001
	CCancelRQ uint16 = 0x0FFF
)

// CommandDataSetType values: anything other than NoDataSet means a
// dataset PDV follows the command.
const (
	DataSetTypePresent uint16 = 0x0000
	DataSetTypeNone    uint16 = 0x0101
)

// Priority values, spec.md §4.7.
const (
	PriorityMedium uint16 = 0x0000
	PriorityHigh   uint16 = 0x0001
	PriorityLow    uint16 = 0x0002
)

// Command is a DIMSE command message: a thin, typed view over a flat
// implicit-VR-little-endian dataset (the command group, tag group
// 0x0000), per spec.md §4.5's "command PDVs are always implicit-VR
// little-endian" rule.
type Command struct {
	CommandField              uint16
	MessageID                 uint16
	MessageIDBeingRespondedTo uint16
	AffectedSOPClassUID       string
	RequestedSOPClassUID      string
	AffectedSOPInstanceUID    string
	RequestedSOPInstanceUID   string
	MoveDestination           string
	MoveOriginatorAETitle     string
	MoveOriginatorMessageID   uint16
	Priority                  uint16
	CommandDataSetType        uint16
	Status                    uint16
	ErrorComment              string
	NumberOfRemaining         *uint16
	NumberOfCompleted         *uint16
	NumberOfFailed            *uint16
	NumberOfWarning           *uint16
}

// HasDataset reports whether a dataset PDV is expected to follow this
// command, per its CommandDataSetType.
func (c *Command) HasDataset() bool { return c.CommandDataSetType != DataSetTypeNone }

// Encode renders the command to its implicit-VR-little-endian byte form.
func (c *Command) Encode() ([]byte, error) {
	ds := dicom.NewDataset(uid.ImplicitVRLittleEndian)

	put := func(t tag.Tag, s string) error {
		if s == "" {
			return nil
		}
		return ds.PutString(t, tag.VRFor(t), s)
	}
	putUint16 := func(t tag.Tag, v uint16) error {
		return ds.PutValue(t, vr.US, dicom.Value{Kind: dicom.KindUShorts, UShorts: []uint16{v}})
	}

	if err := put(tag.Tag{Group: 0x0000, Element: 0x0002}, c.AffectedSOPClassUID); err != nil {
		return nil, err
	}
	if err := put(tag.Tag{Group: 0x0000, Element: 0x0003}, c.RequestedSOPClassUID); err != nil {
		return nil, err
	}
	if err := putUint16(tag.Tag{Group: 0x0000, Element: 0x0100}, c.CommandField); err != nil {
		return nil, err
	}
	if c.MessageIDBeingRespondedTo != 0 {
		if err := putUint16(tag.Tag{Group: 0x0000, Element: 0x0120}, c.MessageIDBeingRespondedTo); err != nil {
			return nil, err
		}
	} else {
		if err := putUint16(tag.Tag{Group: 0x0000, Element: 0x0110}, c.MessageID); err != nil {
			return nil, err
		}
	}
	if err := put(tag.Tag{Group: 0x0000, Element: 0x0600}, c.MoveDestination); err != nil {
		return nil, err
	}
	if c.Priority != 0 || c.CommandField == CFindRQ || c.CommandField == CGetRQ || c.CommandField == CMoveRQ || c.CommandField == CStoreRQ {
		if err := putUint16(tag.Tag{Group: 0x0000, Element: 0x0700}, c.Priority); err != nil {
			return nil, err
		}
	}
	if err := putUint16(tag.Tag{Group: 0x0000, Element: 0x0800}, c.CommandDataSetType); err != nil {
		return nil, err
	}
	if c.MessageIDBeingRespondedTo != 0 {
		if err := putUint16(tag.Tag{Group: 0x0000, Element: 0x0900}, c.Status); err != nil {
			return nil, err
		}
	}
	if err := put(tag.Tag{Group: 0x0000, Element: 0x0902}, c.ErrorComment); err != nil {
		return nil, err
	}
	if err := put(tag.Tag{Group: 0x0000, Element: 0x1000}, c.AffectedSOPInstanceUID); err != nil {
		return nil, err
	}
	if err := put(tag.Tag{Group: 0x0000, Element: 0x1001}, c.RequestedSOPInstanceUID); err != nil {
		return nil, err
	}
	if err := put(tag.Tag{Group: 0x0000, Element: 0x1030}, c.MoveOriginatorAETitle); err != nil {
		return nil, err
	}
	if c.MoveOriginatorMessageID != 0 {
		if err := putUint16(tag.Tag{Group: 0x0000, Element: 0x1031}, c.MoveOriginatorMessageID); err != nil {
			return nil, err
		}
	}
	if c.NumberOfRemaining != nil {
		if err := putUint16(tag.Tag{Group: 0x0000, Element: 0x1020}, *c.NumberOfRemaining); err != nil {
			return nil, err
		}
	}
	if c.NumberOfCompleted != nil {
		if err := putUint16(tag.Tag{Group: 0x0000, Element: 0x1021}, *c.NumberOfCompleted); err != nil {
			return nil, err
		}
	}
	if c.NumberOfFailed != nil {
		if err := putUint16(tag.Tag{Group: 0x0000, Element: 0x1022}, *c.NumberOfFailed); err != nil {
			return nil, err
		}
	}
	if c.NumberOfWarning != nil {
		if err := putUint16(tag.Tag{Group: 0x0000, Element: 0x1023}, *c.NumberOfWarning); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	w := dicom.NewWriter(&buf, uid.ImplicitVRLittleEndian)
	if err := w.WriteDataset(ds); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCommand parses a command message's implicit-VR-little-endian
// bytes back into a Command.
func DecodeCommand(raw []byte) (*Command, error) {
	p := dicom.NewParserWithTransferSyntax(bytes.NewReader(raw), uid.ImplicitVRLittleEndian)
	ds, err := p.Parse()
	if err != nil {
		return nil, fmt.Errorf("decode command: %w", err)
	}

	getString := func(group, element uint16) string {
		return ds.GetString(tag.Tag{Group: group, Element: element})
	}
	getUint16 := func(group, element uint16) uint16 {
		e := ds.Get(tag.Tag{Group: group, Element: element})
		if e == nil {
			return 0
		}
		v, err := e.DecodedValue()
		if err != nil || len(v.UShorts) == 0 {
			return 0
		}
		return v.UShorts[0]
	}
	getOptionalUint16 := func(group, element uint16) *uint16 {
		e := ds.Get(tag.Tag{Group: group, Element: element})
		if e == nil {
			return nil
		}
		v, err := e.DecodedValue()
		if err != nil || len(v.UShorts) == 0 {
			return nil
		}
		n := v.UShorts[0]
		return &n
	}

	// CommandField and CommandDataSetType are present in every DIMSE
	// command message; a missing one means the peer sent a malformed or
	// truncated command group rather than one that legitimately omits it.
	if ds.Get(tag.Tag{Group: 0x0000, Element: 0x0100}) == nil {
		return nil, &dicomerrors.DimseElementMissingError{Name: "CommandField (0000,0100)"}
	}
	if ds.Get(tag.Tag{Group: 0x0000, Element: 0x0800}) == nil {
		return nil, &dicomerrors.DimseElementMissingError{Name: "CommandDataSetType (0000,0800)"}
	}

	return &Command{
		CommandField:              getUint16(0x0000, 0x0100),
		MessageID:                 getUint16(0x0000, 0x0110),
		MessageIDBeingRespondedTo: getUint16(0x0000, 0x0120),
		AffectedSOPClassUID:       getString(0x0000, 0x0002),
		RequestedSOPClassUID:      getString(0x0000, 0x0003),
		AffectedSOPInstanceUID:    getString(0x0000, 0x1000),
		RequestedSOPInstanceUID:   getString(0x0000, 0x1001),
		MoveDestination:           getString(0x0000, 0x0600),
		MoveOriginatorAETitle:     getString(0x0000, 0x1030),
		MoveOriginatorMessageID:   getUint16(0x0000, 0x1031),
		Priority:                  getUint16(0x0000, 0x0700),
		CommandDataSetType:        getUint16(0x0000, 0x0800),
		Status:                    getUint16(0x0000, 0x0900),
		ErrorComment:              getString(0x0000, 0x0902),
		NumberOfRemaining:         getOptionalUint16(0x0000, 0x1020),
		NumberOfCompleted:         getOptionalUint16(0x0000, 0x1021),
		NumberOfFailed:            getOptionalUint16(0x0000, 0x1022),
		NumberOfWarning:           getOptionalUint16(0x0000, 0x1023),
	}, nil
}
