// Package assoc implements the upper-layer association: provider-side
// and user-side negotiation (spec.md §4.6), and the PDV-level read/write
// primitives that the DIMSE message loop is built on. It depends on pdu
// for wire framing and owns all association state (presentation
// contexts, negotiated max-PDU length); it does not know DIMSE command
// semantics.
package assoc

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"

	"github.com/go-playground/validator/v10"

	"github.com/anthonypark/dicomgo/errors"
	"github.com/anthonypark/dicomgo/pdu"
)

var aeTitleValidate = validator.New()

// aeTitle is the validation shape for a DICOM AE title: 1-16 printable
// ASCII characters, per spec.md §4.6. Both Accept (the peer's titles, off the
// wire) and Request (this process's own titles, from Config) run their
// titles through it, replacing the teacher's ad hoc len(title) checks
// with the pack's validation idiom.
type aeTitle struct {
	Value string `validate:"required,max=16,printascii"`
}

func validateAETitle(label, title string) error {
	if err := aeTitleValidate.Struct(aeTitle{Value: title}); err != nil {
		return &errors.InvalidAETitleError{Label: label, Title: title, Err: err}
	}
	return nil
}

// DefaultMaxPDULength is advertised when a Config does not set one.
const DefaultMaxPDULength = 16384

// ImplementationClassUID and ImplementationVersionName identify this
// implementation in user-information items, spec.md §4.5.
const (
	ImplementationClassUID   = "1.2.840.10008.5.anthonypark.dicomgo"
	ImplementationVersionName = "DICOMGO_1"
)

// PresentationContext is one negotiated abstract-syntax/transfer-syntax
// pairing, keyed by its odd context ID. SCURole/SCPRole carry the
// negotiated role-selection outcome for the context's abstract syntax
// when role selection was proposed (spec.md §4.5/§4.6); both are
// pdu.RoleNotSupported when role selection was not negotiated.
type PresentationContext struct {
	ID             byte
	AbstractSyntax string
	TransferSyntax string
	Result         byte // pdu.ResultAcceptance on success
	SCURole        byte
	SCPRole        byte
}

// Config is the provider-side negotiation policy, spec.md §4.6 steps 1-8.
type Config struct {
	CalledAETitle          string
	CallingAEAllowlist     []string // empty means accept any calling AE
	ApplicationContextUID  string   // defaults to the standard DICOM application context
	SupportedAbstractSyntaxes []string
	SupportedTransferSyntaxes []string
	MaxPDULength           uint32
	Logger                 *slog.Logger
	// RoleSelectionPolicy, when non-nil, is consulted for every
	// role-selection item the peer proposes and returns the roles this
	// provider is willing to grant for that abstract syntax. A nil policy
	// echoes back exactly what the peer proposed.
	RoleSelectionPolicy func(abstractSyntax string, proposedSCU, proposedSCP byte) (scu, scp byte)
}

// RequestConfig is the user-side connect policy.
type RequestConfig struct {
	CalledAETitle         string
	CallingAETitle        string
	ApplicationContextUID string
	AbstractSyntaxes      []string // one presentation context proposed per entry
	TransferSyntaxes      []string // proposed for every abstract syntax
	MaxPDULength          uint32
	Logger                *slog.Logger
	// RoleSelections proposes SCU/SCP role assignment per abstract syntax,
	// spec.md §4.5/§4.6. Abstract syntaxes absent from this map propose no
	// role-selection item (the traditional requestor-is-SCU default).
	RoleSelections map[string]RoleProposal
}

// RoleProposal is one entry of RequestConfig.RoleSelections: whether this
// process wishes to invoke (SCU) and/or perform (SCP) operations for a
// given abstract syntax over the association.
type RoleProposal struct {
	SCU bool
	SCP bool
}

// Association is one negotiated upper-layer association: the
// connection, its accepted presentation contexts, and the negotiated
// peer max-PDU-receive length governing message chunking.
type Association struct {
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	logger *slog.Logger

	contexts         map[byte]PresentationContext
	peerMaxPDULength uint32
	localMaxPDULength uint32
	released         bool
	pending          []pdu.PDV
}

// Contexts returns the negotiated presentation contexts, keyed by ID.
func (a *Association) Contexts() map[byte]PresentationContext { return a.contexts }

// TransferSyntaxFor returns the negotiated transfer syntax for a
// presentation-context ID.
func (a *Association) TransferSyntaxFor(contextID byte) (string, error) {
	pc, ok := a.contexts[contextID]
	if !ok || pc.Result != pdu.ResultAcceptance {
		return "", &errors.NoPresentationContextError{ContextID: contextID}
	}
	return pc.TransferSyntax, nil
}

// RoleFor returns the negotiated SCU/SCP role-selection outcome for a
// presentation-context ID, per spec.md §4.5/§4.6. Both return values are
// pdu.RoleNotSupported when role selection was never negotiated for that
// context's abstract syntax.
func (a *Association) RoleFor(contextID byte) (scu, scp byte, err error) {
	pc, ok := a.contexts[contextID]
	if !ok {
		return 0, 0, &errors.NoPresentationContextError{ContextID: contextID}
	}
	return pc.SCURole, pc.SCPRole, nil
}

// PeerMaxPDULength is the peer's advertised max-PDU-receive length,
// governing how large a PDV the chunking layer may send it.
func (a *Association) PeerMaxPDULength() uint32 { return a.peerMaxPDULength }

func defaultApplicationContext(uid string) string {
	if uid != "" {
		return uid
	}
	return "1.2.840.10008.3.1.1.1"
}

// Accept performs the provider-side negotiation flow of spec.md §4.6
// steps 1-8 over an already-accepted net.Conn. An AE title that fails
// validation gets an A-ABORT and an *errors.InvalidAETitleError; a
// negotiation failure gets the corresponding A-ASSOCIATE-RJ and an
// *errors.AssociationError; on success it writes A-ASSOCIATE-AC and
// returns the negotiated Association.
func Accept(conn net.Conn, cfg Config) (*Association, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxLen := cfg.MaxPDULength
	if maxLen == 0 {
		maxLen = DefaultMaxPDULength
	}
	appContext := defaultApplicationContext(cfg.ApplicationContextUID)

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	raw, err := pdu.ReadRaw(r)
	if err != nil {
		return nil, errors.NewIOError("read associate-rq", err)
	}
	if raw.Type != pdu.TypeAssociateRQ {
		writeAbort(w, pdu.AbortSourceServiceProvider, pdu.AbortReasonUnexpectedPDU)
		return nil, errors.NewUnexpectedPDUTypeError(raw.Type, "expected A-ASSOCIATE-RQ")
	}
	rq, err := pdu.DecodeAssociateRQ(raw.Data)
	if err != nil {
		writeAbort(w, pdu.AbortSourceServiceProvider, pdu.AbortReasonUnrecognizedParam)
		return nil, fmt.Errorf("decode associate-rq: %w", err)
	}

	if err := validateAETitle("calling", rq.CallingAETitle); err != nil {
		writeAbort(w, pdu.AbortSourceServiceProvider, pdu.AbortReasonUnrecognizedParam)
		return nil, err
	}
	if err := validateAETitle("called", rq.CalledAETitle); err != nil {
		writeAbort(w, pdu.AbortSourceServiceProvider, pdu.AbortReasonUnrecognizedParam)
		return nil, err
	}

	if len(cfg.CallingAEAllowlist) > 0 && !contains(cfg.CallingAEAllowlist, rq.CallingAETitle) {
		rj := pdu.AssociateRJ{Result: pdu.RJResultPermanent, Source: pdu.RJSourceServiceUser, Reason: 0x03}
		writeRaw(w, pdu.TypeAssociateRJ, rj.Encode())
		return nil, errors.NewAssociationError(errors.RejectSourceServiceUser, errors.RejectReasonCallingAETitleNotRecognized,
			fmt.Sprintf("calling AE %q not in allowlist", rq.CallingAETitle))
	}
	if cfg.CalledAETitle != "" && rq.CalledAETitle != cfg.CalledAETitle {
		rj := pdu.AssociateRJ{Result: pdu.RJResultPermanent, Source: pdu.RJSourceServiceUser, Reason: 0x07}
		writeRaw(w, pdu.TypeAssociateRJ, rj.Encode())
		return nil, errors.NewAssociationError(errors.RejectSourceServiceUser, errors.RejectReasonCalledAETitleNotRecognized,
			fmt.Sprintf("called AE %q does not match %q", rq.CalledAETitle, cfg.CalledAETitle))
	}
	if rq.ApplicationContextUID != appContext {
		rj := pdu.AssociateRJ{Result: pdu.RJResultPermanent, Source: pdu.RJSourceServiceUser, Reason: 0x02}
		writeRaw(w, pdu.TypeAssociateRJ, rj.Encode())
		return nil, errors.NewAssociationError(errors.RejectSourceServiceUser, errors.RejectReasonApplicationContextNotSupported,
			fmt.Sprintf("application context %q not supported", rq.ApplicationContextUID))
	}

	contexts := make(map[byte]PresentationContext, len(rq.PresentationContexts))
	var accepts []pdu.PresentationContextAccept
	accepted := 0
	for _, pc := range rq.PresentationContexts {
		if !contains(cfg.SupportedAbstractSyntaxes, pc.AbstractSyntax) {
			accepts = append(accepts, pdu.PresentationContextAccept{ID: pc.ID, Result: pdu.ResultAbstractSyntaxNotSupported})
			contexts[pc.ID] = PresentationContext{ID: pc.ID, AbstractSyntax: pc.AbstractSyntax, Result: pdu.ResultAbstractSyntaxNotSupported}
			continue
		}
		chosen := ""
		for _, proposed := range pc.TransferSyntaxes {
			if contains(cfg.SupportedTransferSyntaxes, proposed) {
				chosen = proposed
				break
			}
		}
		if chosen == "" {
			accepts = append(accepts, pdu.PresentationContextAccept{ID: pc.ID, Result: pdu.ResultTransferSyntaxesNotSupported})
			contexts[pc.ID] = PresentationContext{ID: pc.ID, AbstractSyntax: pc.AbstractSyntax, Result: pdu.ResultTransferSyntaxesNotSupported}
			continue
		}
		accepted++
		accepts = append(accepts, pdu.PresentationContextAccept{ID: pc.ID, Result: pdu.ResultAcceptance, TransferSyntax: chosen})
		contexts[pc.ID] = PresentationContext{ID: pc.ID, AbstractSyntax: pc.AbstractSyntax, TransferSyntax: chosen, Result: pdu.ResultAcceptance}
	}

	if accepted == 0 {
		rj := pdu.AssociateRJ{Result: pdu.RJResultPermanent, Source: pdu.RJSourceServiceUser, Reason: 0x01}
		writeRaw(w, pdu.TypeAssociateRJ, rj.Encode())
		return nil, errors.NewAssociationError(errors.RejectSourceServiceUser, errors.RejectReasonNoReasonGiven,
			(&errors.UnsupportedAbstractSyntaxError{}).Error())
	}

	roleSelections, roleByAbstractSyntax := negotiateRoles(cfg, rq.UserInfo.RoleSelections, contexts)
	for id, pc := range contexts {
		if roles, ok := roleByAbstractSyntax[pc.AbstractSyntax]; ok {
			pc.SCURole, pc.SCPRole = roles[0], roles[1]
			contexts[id] = pc
		}
	}

	ac := pdu.AssociateAC{
		ProtocolVersion:       0x0001,
		CalledAETitle:         rq.CalledAETitle,
		CallingAETitle:        rq.CallingAETitle,
		ApplicationContextUID: appContext,
		PresentationContexts:  accepts,
		UserInfo: pdu.UserInformation{
			MaxPDULength:              maxLen,
			ImplementationClassUID:    ImplementationClassUID,
			ImplementationVersionName: ImplementationVersionName,
			AsyncOpsInvoked:           1,
			AsyncOpsPerformed:         1,
			RoleSelections:            roleSelections,
		},
	}
	if err := writeRaw(w, pdu.TypeAssociateAC, ac.Encode()); err != nil {
		return nil, errors.NewIOError("write associate-ac", err)
	}

	peerMax := rq.UserInfo.MaxPDULength
	if peerMax == 0 {
		peerMax = DefaultMaxPDULength
	}
	logger.Info("association accepted", "calling_ae", rq.CallingAETitle, "called_ae", rq.CalledAETitle)
	return &Association{
		conn: conn, reader: r, writer: w, logger: logger,
		contexts: contexts, peerMaxPDULength: peerMax, localMaxPDULength: maxLen,
	}, nil
}

// Request performs the user-side connect flow of spec.md §4.6: propose
// one presentation context per abstract syntax, send AssocRQ, read
// AssocAC, and record the accepted contexts. It fails if none were
// accepted.
func Request(conn net.Conn, cfg RequestConfig) (*Association, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxLen := cfg.MaxPDULength
	if maxLen == 0 {
		maxLen = DefaultMaxPDULength
	}
	appContext := defaultApplicationContext(cfg.ApplicationContextUID)

	if err := validateAETitle("calling", cfg.CallingAETitle); err != nil {
		return nil, err
	}
	if err := validateAETitle("called", cfg.CalledAETitle); err != nil {
		return nil, err
	}

	var proposed []pdu.PresentationContextRequest
	id := byte(1)
	for _, abstract := range cfg.AbstractSyntaxes {
		proposed = append(proposed, pdu.PresentationContextRequest{
			ID: id, AbstractSyntax: abstract, TransferSyntaxes: cfg.TransferSyntaxes,
		})
		id += 2
	}

	var roleSelections []pdu.RoleSelection
	for abstract, role := range cfg.RoleSelections {
		scu, scp := byte(pdu.RoleNotSupported), byte(pdu.RoleNotSupported)
		if role.SCU {
			scu = pdu.RoleSupported
		}
		if role.SCP {
			scp = pdu.RoleSupported
		}
		roleSelections = append(roleSelections, pdu.RoleSelection{SOPClassUID: abstract, SCURole: scu, SCPRole: scp})
	}

	r := bufio.NewReader(conn)
	w := bufio.NewWriter(conn)

	rq := pdu.AssociateRQ{
		ProtocolVersion:       0x0001,
		CalledAETitle:         cfg.CalledAETitle,
		CallingAETitle:        cfg.CallingAETitle,
		ApplicationContextUID: appContext,
		PresentationContexts:  proposed,
		UserInfo: pdu.UserInformation{
			MaxPDULength:              maxLen,
			ImplementationClassUID:    ImplementationClassUID,
			ImplementationVersionName: ImplementationVersionName,
			AsyncOpsInvoked:           1,
			AsyncOpsPerformed:         1,
			RoleSelections:            roleSelections,
		},
	}
	if err := writeRaw(w, pdu.TypeAssociateRQ, rq.Encode()); err != nil {
		return nil, errors.NewIOError("write associate-rq", err)
	}

	raw, err := pdu.ReadRaw(r)
	if err != nil {
		return nil, errors.NewIOError("read associate response", err)
	}
	switch raw.Type {
	case pdu.TypeAssociateRJ:
		rj, err := pdu.DecodeAssociateRJ(raw.Data)
		if err != nil {
			return nil, fmt.Errorf("decode associate-rj: %w", err)
		}
		return nil, errors.NewAssociationError(errors.AssociationRejectSource(rj.Source), errors.AssociationRejectReason(rj.Reason), "association rejected")
	case pdu.TypeAbort:
		ab, err := pdu.DecodeAbort(raw.Data)
		if err != nil {
			return nil, fmt.Errorf("decode abort: %w", err)
		}
		return nil, errors.NewAbortError(ab.Source, ab.Reason)
	case pdu.TypeAssociateAC:
		// fall through
	default:
		return nil, errors.NewUnexpectedPDUTypeError(raw.Type, "expected A-ASSOCIATE-AC")
	}

	ac, err := pdu.DecodeAssociateAC(raw.Data)
	if err != nil {
		return nil, fmt.Errorf("decode associate-ac: %w", err)
	}

	idToAbstractSyntax := make(map[byte]string, len(proposed))
	for _, pc := range proposed {
		idToAbstractSyntax[pc.ID] = pc.AbstractSyntax
	}
	grantedRoles := make(map[string][2]byte, len(ac.UserInfo.RoleSelections))
	for _, rs := range ac.UserInfo.RoleSelections {
		grantedRoles[rs.SOPClassUID] = [2]byte{rs.SCURole, rs.SCPRole}
	}

	contexts := make(map[byte]PresentationContext, len(ac.PresentationContexts))
	accepted := 0
	for _, pc := range ac.PresentationContexts {
		entry := PresentationContext{ID: pc.ID, AbstractSyntax: idToAbstractSyntax[pc.ID], TransferSyntax: pc.TransferSyntax, Result: pc.Result}
		if roles, ok := grantedRoles[entry.AbstractSyntax]; ok {
			entry.SCURole, entry.SCPRole = roles[0], roles[1]
		}
		contexts[pc.ID] = entry
		if pc.Result == pdu.ResultAcceptance {
			accepted++
		}
	}
	if accepted == 0 {
		return nil, errors.ErrNoPresentationCtx
	}

	peerMax := ac.UserInfo.MaxPDULength
	if peerMax == 0 {
		peerMax = DefaultMaxPDULength
	}
	return &Association{
		conn: conn, reader: r, writer: w, logger: logger,
		contexts: contexts, peerMaxPDULength: peerMax, localMaxPDULength: maxLen,
	}, nil
}

// ReadPDV reads the next presentation-data-value off the association,
// transparently unwrapping P-DATA-TF PDUs one PDV at a time. A
// peer-initiated release surfaces as errors.ErrConnectionClosed; an
// A-ABORT surfaces as *errors.AbortError.
func (a *Association) ReadPDV() (pdu.PDV, error) {
	if len(a.pending) > 0 {
		pdv := a.pending[0]
		a.pending = a.pending[1:]
		return pdv, nil
	}
	for {
		raw, err := pdu.ReadRaw(a.reader)
		if err != nil {
			return pdu.PDV{}, errors.NewIOError("read pdu", err)
		}
		switch raw.Type {
		case pdu.TypePDataTF:
			pdvs, err := pdu.DecodePDataTF(raw.Data)
			if err != nil {
				return pdu.PDV{}, fmt.Errorf("decode p-data-tf: %w", err)
			}
			if len(pdvs) == 0 {
				continue
			}
			a.pending = pdvs[1:]
			return pdvs[0], nil
		case pdu.TypeReleaseRQ:
			writeRaw(a.writer, pdu.TypeReleaseRP, pdu.EncodeReleaseRP())
			a.released = true
			return pdu.PDV{}, errors.ErrConnectionClosed
		case pdu.TypeReleaseRP:
			a.released = true
			return pdu.PDV{}, errors.ErrConnectionClosed
		case pdu.TypeAbort:
			ab, _ := pdu.DecodeAbort(raw.Data)
			if ab == nil {
				ab = &pdu.Abort{}
			}
			return pdu.PDV{}, errors.NewAbortError(ab.Source, ab.Reason)
		default:
			writeAbort(a.writer, pdu.AbortSourceServiceProvider, pdu.AbortReasonUnexpectedPDU)
			return pdu.PDV{}, errors.NewUnexpectedPDUTypeError(raw.Type, "unexpected PDU in data phase")
		}
	}
}

// WritePDV wraps a single PDV in its own P-DATA-TF PDU and flushes it.
func (a *Association) WritePDV(pdv pdu.PDV) error {
	if err := writeRaw(a.writer, pdu.TypePDataTF, pdu.EncodePDataTF([]pdu.PDV{pdv})); err != nil {
		return errors.NewIOError("write p-data-tf", err)
	}
	return nil
}

// Release performs a user-initiated A-RELEASE-RQ/RP exchange.
func (a *Association) Release() error {
	if err := writeRaw(a.writer, pdu.TypeReleaseRQ, pdu.EncodeReleaseRQ()); err != nil {
		return errors.NewIOError("write release-rq", err)
	}
	raw, err := pdu.ReadRaw(a.reader)
	if err != nil {
		return errors.NewIOError("read release-rp", err)
	}
	if raw.Type != pdu.TypeReleaseRP {
		return errors.NewUnexpectedPDUTypeError(raw.Type, "expected A-RELEASE-RP")
	}
	a.released = true
	return nil
}

// Abort writes an A-ABORT and closes the underlying connection.
func (a *Association) Abort(source, reason byte) error {
	writeAbort(a.writer, source, reason)
	return a.conn.Close()
}

// Close closes the underlying connection without further protocol
// exchange; used after Release or on error paths.
func (a *Association) Close() error { return a.conn.Close() }

func writeRaw(w *bufio.Writer, pduType byte, data []byte) error {
	if err := pdu.WriteRaw(w, pduType, data); err != nil {
		return err
	}
	return w.Flush()
}

func writeAbort(w *bufio.Writer, source, reason byte) {
	ab := pdu.Abort{Source: source, Reason: reason}
	_ = writeRaw(w, pdu.TypeAbort, ab.Encode())
}

// negotiateRoles answers each peer-proposed role-selection item per
// spec.md §4.5/§4.6: cfg.RoleSelectionPolicy (or, absent one, an echo of
// the peer's proposal) decides the granted SCU/SCP roles for the
// abstract syntax. It returns the role-selection items to place in the
// A-ASSOCIATE-AC's user-information, and a parallel map from abstract
// syntax to the granted (scu, scp) pair for recording onto
// PresentationContext.
func negotiateRoles(cfg Config, proposed []pdu.RoleSelection, contexts map[byte]PresentationContext) ([]pdu.RoleSelection, map[string][2]byte) {
	if len(proposed) == 0 {
		return nil, nil
	}
	out := make([]pdu.RoleSelection, 0, len(proposed))
	granted := make(map[string][2]byte, len(proposed))
	for _, rs := range proposed {
		scu, scp := rs.SCURole, rs.SCPRole
		if cfg.RoleSelectionPolicy != nil {
			scu, scp = cfg.RoleSelectionPolicy(rs.SOPClassUID, rs.SCURole, rs.SCPRole)
		}
		out = append(out, pdu.RoleSelection{SOPClassUID: rs.SOPClassUID, SCURole: scu, SCPRole: scp})
		granted[rs.SOPClassUID] = [2]byte{scu, scp}
	}
	return out, granted
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
