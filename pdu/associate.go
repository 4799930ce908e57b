package pdu

import (
	"encoding/binary"
	"fmt"
)

// fixedFieldsLength is the byte size of AssociateRQ/AC's fixed header
// block (protocol version, reserved, called/calling AE, reserved),
// before the variable sub-items begin.
const fixedFieldsLength = 68

// AssociateRQ is the decoded A-ASSOCIATE-RQ PDU payload.
type AssociateRQ struct {
	ProtocolVersion       uint16
	CalledAETitle         string
	CallingAETitle        string
	ApplicationContextUID string
	PresentationContexts  []PresentationContextRequest
	UserInfo              UserInformation
}

// Encode renders an AssociateRQ to its wire payload (without the common
// PDU frame header).
func (rq AssociateRQ) Encode() []byte {
	fixed := make([]byte, fixedFieldsLength)
	version := rq.ProtocolVersion
	if version == 0 {
		version = 0x0001
	}
	binary.BigEndian.PutUint16(fixed[0:2], version)
	copyAETitle(fixed[4:20], rq.CalledAETitle)
	copyAETitle(fixed[20:36], rq.CallingAETitle)

	payload := append([]byte(nil), fixed...)
	payload = append(payload, encodeStringItem(ItemApplicationContext, rq.ApplicationContextUID)...)
	for _, pc := range rq.PresentationContexts {
		payload = append(payload, pc.encode()...)
	}
	payload = append(payload, rq.UserInfo.encode()...)
	return payload
}

// DecodeAssociateRQ parses an A-ASSOCIATE-RQ payload.
func DecodeAssociateRQ(data []byte) (*AssociateRQ, error) {
	if len(data) < fixedFieldsLength {
		return nil, fmt.Errorf("associate-rq payload too short: %d bytes", len(data))
	}
	rq := &AssociateRQ{
		ProtocolVersion: binary.BigEndian.Uint16(data[0:2]),
		CalledAETitle:   trimSpacePad(data[4:20]),
		CallingAETitle:  trimSpacePad(data[20:36]),
	}
	err := readItems(data[fixedFieldsLength:], func(itemType byte, payload []byte) error {
		switch itemType {
		case ItemApplicationContext:
			rq.ApplicationContextUID = trimSpacePad(payload)
		case ItemPresentationContextRequest:
			pc, err := decodePresentationContextRequest(payload)
			if err != nil {
				return err
			}
			rq.PresentationContexts = append(rq.PresentationContexts, pc)
		case ItemUserInformation:
			ui, err := decodeUserInformation(payload)
			if err != nil {
				return err
			}
			rq.UserInfo = ui
		}
		return nil
	})
	return rq, err
}

// AssociateAC is the decoded A-ASSOCIATE-AC PDU payload. Field shape
// mirrors AssociateRQ; DICOM echoes the requestor's AE titles back
// unchanged in the accept.
type AssociateAC struct {
	ProtocolVersion       uint16
	CalledAETitle         string
	CallingAETitle        string
	ApplicationContextUID string
	PresentationContexts  []PresentationContextAccept
	UserInfo              UserInformation
}

// Encode renders an AssociateAC to its wire payload.
func (ac AssociateAC) Encode() []byte {
	fixed := make([]byte, fixedFieldsLength)
	version := ac.ProtocolVersion
	if version == 0 {
		version = 0x0001
	}
	binary.BigEndian.PutUint16(fixed[0:2], version)
	copyAETitle(fixed[4:20], ac.CalledAETitle)
	copyAETitle(fixed[20:36], ac.CallingAETitle)

	payload := append([]byte(nil), fixed...)
	payload = append(payload, encodeStringItem(ItemApplicationContext, ac.ApplicationContextUID)...)
	for _, pc := range ac.PresentationContexts {
		payload = append(payload, pc.encode()...)
	}
	payload = append(payload, ac.UserInfo.encode()...)
	return payload
}

// DecodeAssociateAC parses an A-ASSOCIATE-AC payload.
func DecodeAssociateAC(data []byte) (*AssociateAC, error) {
	if len(data) < fixedFieldsLength {
		return nil, fmt.Errorf("associate-ac payload too short: %d bytes", len(data))
	}
	ac := &AssociateAC{
		ProtocolVersion: binary.BigEndian.Uint16(data[0:2]),
		CalledAETitle:   trimSpacePad(data[4:20]),
		CallingAETitle:  trimSpacePad(data[20:36]),
	}
	err := readItems(data[fixedFieldsLength:], func(itemType byte, payload []byte) error {
		switch itemType {
		case ItemApplicationContext:
			ac.ApplicationContextUID = trimSpacePad(payload)
		case ItemPresentationContextAccept:
			pc, err := decodePresentationContextAccept(payload)
			if err != nil {
				return err
			}
			ac.PresentationContexts = append(ac.PresentationContexts, pc)
		case ItemUserInformation:
			ui, err := decodeUserInformation(payload)
			if err != nil {
				return err
			}
			ac.UserInfo = ui
		}
		return nil
	})
	return ac, err
}

// AssociateRJ result codes, spec.md §4.5.
const (
	RJResultPermanent byte = 0x01
	RJResultTransient byte = 0x02
)

// AssociateRJ source codes, spec.md §4.5.
const (
	RJSourceServiceUser                 byte = 0x01
	RJSourceServiceProviderACSE         byte = 0x02
	RJSourceServiceProviderPresentation byte = 0x03
)

// AssociateRJ is the decoded A-ASSOCIATE-RJ PDU payload: "1 byte
// reserved, 1 byte result, 1 byte source, 1 byte reason".
type AssociateRJ struct {
	Result byte
	Source byte
	Reason byte
}

// Encode renders an AssociateRJ to its 4-byte wire payload.
func (rj AssociateRJ) Encode() []byte {
	return []byte{0x00, rj.Result, rj.Source, rj.Reason}
}

// DecodeAssociateRJ parses an A-ASSOCIATE-RJ payload.
func DecodeAssociateRJ(data []byte) (*AssociateRJ, error) {
	if len(data) < 4 {
		return nil, fmt.Errorf("associate-rj payload too short: %d bytes", len(data))
	}
	return &AssociateRJ{Result: data[1], Source: data[2], Reason: data[3]}, nil
}

func copyAETitle(dst []byte, ae string) {
	for i := range dst {
		dst[i] = ' '
	}
	copy(dst, ae)
}
