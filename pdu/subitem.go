package pdu

import (
	"encoding/binary"

	dicomerrors "github.com/anthonypark/dicomgo/errors"
)

// SCU/SCP role-selection values, spec.md §4.5/§4.6.
const (
	RoleNotSupported byte = 0x00
	RoleSupported    byte = 0x01
)

// User-identity type values, spec.md §4.5.
const (
	UserIdentityUsername         byte = 1
	UserIdentityUsernamePasscode byte = 2
	UserIdentityKerberos         byte = 3
	UserIdentitySAML             byte = 4
	UserIdentityJWT              byte = 5
)

// Sub-item type octets, spec.md §4.5.
const (
	ItemApplicationContext          = 0x10
	ItemPresentationContextRequest  = 0x20
	ItemPresentationContextAccept   = 0x21
	ItemAbstractSyntax              = 0x30
	ItemTransferSyntax              = 0x40
	ItemUserInformation             = 0x50
	ItemMaxLength                   = 0x51
	ItemImplementationClassUID      = 0x52
	ItemAsyncOperationsWindow       = 0x53
	ItemRoleSelection               = 0x54
	ItemImplementationVersionName   = 0x55
	ItemSOPClassExtendedNeg         = 0x56
	ItemSOPClassCommonExtendedNeg   = 0x57
	ItemUserIdentityRequest         = 0x58
	ItemUserIdentityResponse        = 0x59
)

// Presentation-context accept result codes, spec.md §4.5.
const (
	ResultAcceptance                  byte = 0x00
	ResultUserRejection               byte = 0x01
	ResultNoReasonGiven               byte = 0x02
	ResultAbstractSyntaxNotSupported  byte = 0x03
	ResultTransferSyntaxesNotSupported byte = 0x04
)

// PresentationContextRequest is one requested presentation context within
// an AssociateRQ: an odd context ID, an abstract syntax, and one or more
// proposed transfer syntaxes.
type PresentationContextRequest struct {
	ID              byte
	AbstractSyntax  string
	TransferSyntaxes []string
}

func (c PresentationContextRequest) encode() []byte {
	payload := make([]byte, 4)
	payload[0] = c.ID
	payload = append(payload, encodeStringItem(ItemAbstractSyntax, c.AbstractSyntax)...)
	for _, ts := range c.TransferSyntaxes {
		payload = append(payload, encodeStringItem(ItemTransferSyntax, ts)...)
	}
	return encodeItem(ItemPresentationContextRequest, payload)
}

func decodePresentationContextRequest(data []byte) (PresentationContextRequest, error) {
	var c PresentationContextRequest
	if len(data) < 4 {
		return c, errShortItem("presentation context request")
	}
	c.ID = data[0]
	err := readItems(data[4:], func(itemType byte, payload []byte) error {
		switch itemType {
		case ItemAbstractSyntax:
			c.AbstractSyntax = trimSpacePad(payload)
		case ItemTransferSyntax:
			c.TransferSyntaxes = append(c.TransferSyntaxes, trimSpacePad(payload))
		}
		return nil
	})
	return c, err
}

// PresentationContextAccept is one accepted/rejected presentation context
// within an AssociateAC.
type PresentationContextAccept struct {
	ID             byte
	Result         byte
	TransferSyntax string // present only when Result == ResultAcceptance
}

func (c PresentationContextAccept) encode() []byte {
	payload := []byte{c.ID, 0x00, c.Result, 0x00}
	if c.Result == ResultAcceptance {
		payload = append(payload, encodeStringItem(ItemTransferSyntax, c.TransferSyntax)...)
	}
	return encodeItem(ItemPresentationContextAccept, payload)
}

func decodePresentationContextAccept(data []byte) (PresentationContextAccept, error) {
	var c PresentationContextAccept
	if len(data) < 4 {
		return c, errShortItem("presentation context accept")
	}
	c.ID = data[0]
	c.Result = data[2]
	err := readItems(data[4:], func(itemType byte, payload []byte) error {
		if itemType == ItemTransferSyntax {
			c.TransferSyntax = trimSpacePad(payload)
		}
		return nil
	})
	return c, err
}

// RoleSelection negotiates, per abstract syntax, which end may invoke
// (SCU) and which may perform (SCP) operations over the association, per
// spec.md §4.5/§4.6's "one role-selection item per abstract syntax" rule.
type RoleSelection struct {
	SOPClassUID string
	SCURole     byte
	SCPRole     byte
}

func (r RoleSelection) encode() []byte {
	uidBytes := padEven(r.SOPClassUID)
	payload := make([]byte, 2, 2+len(uidBytes)+2)
	binary.BigEndian.PutUint16(payload[0:2], uint16(len(uidBytes)))
	payload = append(payload, uidBytes...)
	payload = append(payload, r.SCURole, r.SCPRole)
	return encodeItem(ItemRoleSelection, payload)
}

func decodeRoleSelection(payload []byte) (RoleSelection, error) {
	var r RoleSelection
	if len(payload) < 2 {
		return r, errShortItem("role selection")
	}
	uidLen := int(binary.BigEndian.Uint16(payload[0:2]))
	if len(payload) < 2+uidLen+2 {
		return r, errShortItem("role selection")
	}
	r.SOPClassUID = trimSpacePad(payload[2 : 2+uidLen])
	r.SCURole = payload[2+uidLen]
	r.SCPRole = payload[2+uidLen+1]
	return r, nil
}

// SOPClassExtendedNeg carries service-class-specific application
// information for one SOP class, spec.md §4.5.
type SOPClassExtendedNeg struct {
	SOPClassUID    string
	ApplicationInfo []byte
}

func (e SOPClassExtendedNeg) encode() []byte {
	uidBytes := padEven(e.SOPClassUID)
	payload := make([]byte, 2, 2+len(uidBytes)+len(e.ApplicationInfo))
	binary.BigEndian.PutUint16(payload[0:2], uint16(len(uidBytes)))
	payload = append(payload, uidBytes...)
	payload = append(payload, e.ApplicationInfo...)
	return encodeItem(ItemSOPClassExtendedNeg, payload)
}

func decodeSOPClassExtendedNeg(payload []byte) (SOPClassExtendedNeg, error) {
	var e SOPClassExtendedNeg
	if len(payload) < 2 {
		return e, errShortItem("SOP class extended negotiation")
	}
	uidLen := int(binary.BigEndian.Uint16(payload[0:2]))
	if len(payload) < 2+uidLen {
		return e, errShortItem("SOP class extended negotiation")
	}
	e.SOPClassUID = trimSpacePad(payload[2 : 2+uidLen])
	e.ApplicationInfo = append([]byte(nil), payload[2+uidLen:]...)
	return e, nil
}

// SOPClassCommonExtendedNeg declares a SOP class's service class and any
// related general SOP classes it is a specialization of, spec.md §4.5.
type SOPClassCommonExtendedNeg struct {
	SOPClassUID           string
	ServiceClassUID       string
	RelatedGeneralSOPClasses []string
}

func (e SOPClassCommonExtendedNeg) encode() []byte {
	sopBytes := padEven(e.SOPClassUID)
	svcBytes := padEven(e.ServiceClassUID)

	var related []byte
	for _, uid := range e.RelatedGeneralSOPClasses {
		b := padEven(uid)
		lenBuf := make([]byte, 2)
		binary.BigEndian.PutUint16(lenBuf, uint16(len(b)))
		related = append(related, lenBuf...)
		related = append(related, b...)
	}

	payload := make([]byte, 2, 2+len(sopBytes)+2+len(svcBytes)+2+len(related))
	binary.BigEndian.PutUint16(payload[0:2], uint16(len(sopBytes)))
	payload = append(payload, sopBytes...)

	svcLen := make([]byte, 2)
	binary.BigEndian.PutUint16(svcLen, uint16(len(svcBytes)))
	payload = append(payload, svcLen...)
	payload = append(payload, svcBytes...)

	relatedLen := make([]byte, 2)
	binary.BigEndian.PutUint16(relatedLen, uint16(len(related)))
	payload = append(payload, relatedLen...)
	payload = append(payload, related...)

	return encodeItem(ItemSOPClassCommonExtendedNeg, payload)
}

func decodeSOPClassCommonExtendedNeg(payload []byte) (SOPClassCommonExtendedNeg, error) {
	var e SOPClassCommonExtendedNeg
	off := 0
	readLengthPrefixed := func() ([]byte, error) {
		if len(payload) < off+2 {
			return nil, errShortItem("SOP class common extended negotiation")
		}
		n := int(binary.BigEndian.Uint16(payload[off : off+2]))
		off += 2
		if len(payload) < off+n {
			return nil, errShortItem("SOP class common extended negotiation")
		}
		v := payload[off : off+n]
		off += n
		return v, nil
	}

	sop, err := readLengthPrefixed()
	if err != nil {
		return e, err
	}
	e.SOPClassUID = trimSpacePad(sop)

	svc, err := readLengthPrefixed()
	if err != nil {
		return e, err
	}
	e.ServiceClassUID = trimSpacePad(svc)

	relatedBlock, err := readLengthPrefixed()
	if err != nil {
		return e, err
	}
	roff := 0
	for roff+2 <= len(relatedBlock) {
		n := int(binary.BigEndian.Uint16(relatedBlock[roff : roff+2]))
		roff += 2
		if roff+n > len(relatedBlock) {
			return e, errShortItem("SOP class common extended negotiation related SOP class")
		}
		e.RelatedGeneralSOPClasses = append(e.RelatedGeneralSOPClasses, trimSpacePad(relatedBlock[roff:roff+n]))
		roff += n
	}
	return e, nil
}

// UserIdentityRequest carries the requestor's identity assertion, spec.md
// §4.5: a username, username+passcode, or token-based credential, with an
// optional request for a positive server response.
type UserIdentityRequest struct {
	Type                  byte
	PositiveResponseWanted bool
	PrimaryField          []byte
	SecondaryField        []byte // only meaningful when Type == UserIdentityUsernamePasscode
}

func (u UserIdentityRequest) encode() []byte {
	payload := make([]byte, 2)
	payload[0] = u.Type
	if u.PositiveResponseWanted {
		payload[1] = 0x01
	}
	primaryLen := make([]byte, 2)
	binary.BigEndian.PutUint16(primaryLen, uint16(len(u.PrimaryField)))
	payload = append(payload, primaryLen...)
	payload = append(payload, u.PrimaryField...)

	secondaryLen := make([]byte, 2)
	binary.BigEndian.PutUint16(secondaryLen, uint16(len(u.SecondaryField)))
	payload = append(payload, secondaryLen...)
	payload = append(payload, u.SecondaryField...)

	return encodeItem(ItemUserIdentityRequest, payload)
}

func decodeUserIdentityRequest(payload []byte) (UserIdentityRequest, error) {
	var u UserIdentityRequest
	if len(payload) < 4 {
		return u, errShortItem("user identity request")
	}
	u.Type = payload[0]
	u.PositiveResponseWanted = payload[1] != 0
	primaryLen := int(binary.BigEndian.Uint16(payload[2:4]))
	if len(payload) < 4+primaryLen+2 {
		return u, errShortItem("user identity request")
	}
	u.PrimaryField = append([]byte(nil), payload[4:4+primaryLen]...)
	off := 4 + primaryLen
	secondaryLen := int(binary.BigEndian.Uint16(payload[off : off+2]))
	off += 2
	if len(payload) < off+secondaryLen {
		return u, errShortItem("user identity request")
	}
	u.SecondaryField = append([]byte(nil), payload[off:off+secondaryLen]...)
	return u, nil
}

// UserIdentityResponse carries the acceptor's response to a
// UserIdentityRequest that asked for one, spec.md §4.5.
type UserIdentityResponse struct {
	ServerResponse []byte
}

func (u UserIdentityResponse) encode() []byte {
	payload := make([]byte, 2, 2+len(u.ServerResponse))
	binary.BigEndian.PutUint16(payload[0:2], uint16(len(u.ServerResponse)))
	payload = append(payload, u.ServerResponse...)
	return encodeItem(ItemUserIdentityResponse, payload)
}

func decodeUserIdentityResponse(payload []byte) (UserIdentityResponse, error) {
	var u UserIdentityResponse
	if len(payload) < 2 {
		return u, errShortItem("user identity response")
	}
	n := int(binary.BigEndian.Uint16(payload[0:2]))
	if len(payload) < 2+n {
		return u, errShortItem("user identity response")
	}
	u.ServerResponse = append([]byte(nil), payload[2:2+n]...)
	return u, nil
}

// UserInformation carries the sub-items exchanged inside the
// user-information item (0x50): negotiated PDU size, implementation
// identity, role selection, and the optional extended-negotiation items.
type UserInformation struct {
	MaxPDULength            uint32
	ImplementationClassUID  string
	ImplementationVersionName string
	AsyncOpsInvoked         uint16 // 0 means absent
	AsyncOpsPerformed       uint16
	RoleSelections          []RoleSelection
	ExtendedNegotiations    []SOPClassExtendedNeg
	CommonExtendedNegotiations []SOPClassCommonExtendedNeg
	UserIdentityRequest     *UserIdentityRequest
	UserIdentityResponse    *UserIdentityResponse
}

func (u UserInformation) encode() []byte {
	var payload []byte

	maxLen := make([]byte, 4)
	binary.BigEndian.PutUint32(maxLen, u.MaxPDULength)
	payload = append(payload, encodeItem(ItemMaxLength, maxLen)...)

	if u.ImplementationClassUID != "" {
		payload = append(payload, encodeStringItem(ItemImplementationClassUID, u.ImplementationClassUID)...)
	}
	if u.AsyncOpsInvoked != 0 || u.AsyncOpsPerformed != 0 {
		win := make([]byte, 4)
		binary.BigEndian.PutUint16(win[0:2], u.AsyncOpsInvoked)
		binary.BigEndian.PutUint16(win[2:4], u.AsyncOpsPerformed)
		payload = append(payload, encodeItem(ItemAsyncOperationsWindow, win)...)
	}
	for _, rs := range u.RoleSelections {
		payload = append(payload, rs.encode()...)
	}
	if u.ImplementationVersionName != "" {
		payload = append(payload, encodeStringItem(ItemImplementationVersionName, u.ImplementationVersionName)...)
	}
	for _, ext := range u.ExtendedNegotiations {
		payload = append(payload, ext.encode()...)
	}
	for _, ext := range u.CommonExtendedNegotiations {
		payload = append(payload, ext.encode()...)
	}
	if u.UserIdentityRequest != nil {
		payload = append(payload, u.UserIdentityRequest.encode()...)
	}
	if u.UserIdentityResponse != nil {
		payload = append(payload, u.UserIdentityResponse.encode()...)
	}
	return encodeItem(ItemUserInformation, payload)
}

func decodeUserInformation(data []byte) (UserInformation, error) {
	var u UserInformation
	err := readItems(data, func(itemType byte, payload []byte) error {
		switch itemType {
		case ItemMaxLength:
			if len(payload) == 4 {
				u.MaxPDULength = binary.BigEndian.Uint32(payload)
			}
		case ItemImplementationClassUID:
			u.ImplementationClassUID = trimSpacePad(payload)
		case ItemImplementationVersionName:
			u.ImplementationVersionName = trimSpacePad(payload)
		case ItemAsyncOperationsWindow:
			if len(payload) == 4 {
				u.AsyncOpsInvoked = binary.BigEndian.Uint16(payload[0:2])
				u.AsyncOpsPerformed = binary.BigEndian.Uint16(payload[2:4])
			}
		case ItemRoleSelection:
			rs, err := decodeRoleSelection(payload)
			if err != nil {
				return err
			}
			u.RoleSelections = append(u.RoleSelections, rs)
		case ItemSOPClassExtendedNeg:
			ext, err := decodeSOPClassExtendedNeg(payload)
			if err != nil {
				return err
			}
			u.ExtendedNegotiations = append(u.ExtendedNegotiations, ext)
		case ItemSOPClassCommonExtendedNeg:
			ext, err := decodeSOPClassCommonExtendedNeg(payload)
			if err != nil {
				return err
			}
			u.CommonExtendedNegotiations = append(u.CommonExtendedNegotiations, ext)
		case ItemUserIdentityRequest:
			req, err := decodeUserIdentityRequest(payload)
			if err != nil {
				return err
			}
			u.UserIdentityRequest = &req
		case ItemUserIdentityResponse:
			resp, err := decodeUserIdentityResponse(payload)
			if err != nil {
				return err
			}
			u.UserIdentityResponse = &resp
		}
		return nil
	})
	return u, err
}

func errShortItem(name string) error {
	return &dicomerrors.ParseError{Detail: name + " sub-item too short"}
}
