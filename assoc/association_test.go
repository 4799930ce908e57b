package assoc

import (
	"net"
	"testing"

	"github.com/anthonypark/dicomgo/pdu"
	"github.com/anthonypark/dicomgo/uid"
)

func TestAcceptRequestNegotiationRoundTrip(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCfg := Config{
		CalledAETitle:             "SERVER_AE",
		ApplicationContextUID:     uid.ApplicationContextName,
		SupportedAbstractSyntaxes: []string{uid.VerificationSOPClass},
		SupportedTransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
		MaxPDULength:              16384,
	}

	type acceptResult struct {
		assoc *Association
		err   error
	}
	resultCh := make(chan acceptResult, 1)
	go func() {
		a, err := Accept(serverConn, serverCfg)
		resultCh <- acceptResult{a, err}
	}()

	clientCfg := RequestConfig{
		CalledAETitle:         "SERVER_AE",
		CallingAETitle:        "CLIENT_AE",
		ApplicationContextUID: uid.ApplicationContextName,
		AbstractSyntaxes:      []string{uid.VerificationSOPClass},
		TransferSyntaxes:      []string{uid.ImplicitVRLittleEndian},
		MaxPDULength:          16384,
	}
	clientAssoc, err := Request(clientConn, clientCfg)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	res := <-resultCh
	if res.err != nil {
		t.Fatalf("Accept: %v", res.err)
	}
	serverAssoc := res.assoc

	if ts, err := clientAssoc.TransferSyntaxFor(1); err != nil || ts != uid.ImplicitVRLittleEndian {
		t.Errorf("client TransferSyntaxFor(1) = %q, %v, want %q, nil", ts, err, uid.ImplicitVRLittleEndian)
	}
	if ts, err := serverAssoc.TransferSyntaxFor(1); err != nil || ts != uid.ImplicitVRLittleEndian {
		t.Errorf("server TransferSyntaxFor(1) = %q, %v, want %q, nil", ts, err, uid.ImplicitVRLittleEndian)
	}
	if serverAssoc.PeerMaxPDULength() != 16384 {
		t.Errorf("server PeerMaxPDULength() = %d, want 16384", serverAssoc.PeerMaxPDULength())
	}
}

func TestAcceptRejectsUnknownCalledAE(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCfg := Config{
		CalledAETitle:             "SERVER_AE",
		ApplicationContextUID:     uid.ApplicationContextName,
		SupportedAbstractSyntaxes: []string{uid.VerificationSOPClass},
		SupportedTransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
	}

	errCh := make(chan error, 1)
	go func() {
		_, err := Accept(serverConn, serverCfg)
		errCh <- err
	}()

	clientCfg := RequestConfig{
		CalledAETitle:         "WRONG_AE",
		CallingAETitle:        "CLIENT_AE",
		ApplicationContextUID: uid.ApplicationContextName,
		AbstractSyntaxes:      []string{uid.VerificationSOPClass},
		TransferSyntaxes:      []string{uid.ImplicitVRLittleEndian},
	}
	_, clientErr := Request(clientConn, clientCfg)
	if clientErr == nil {
		t.Fatal("Request against a mismatched called AE title should fail")
	}

	if serverErr := <-errCh; serverErr == nil {
		t.Error("Accept should have returned an AssociationError for the mismatched called AE title")
	}
}

func TestAcceptRejectsUnsupportedAbstractSyntax(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCfg := Config{
		CalledAETitle:             "SERVER_AE",
		ApplicationContextUID:     uid.ApplicationContextName,
		SupportedAbstractSyntaxes: []string{"1.2.840.10008.5.1.4.1.1.2"}, // CT Image Storage, not Verification
		SupportedTransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
	}

	type acceptResult struct {
		assoc *Association
		err   error
	}
	resultCh := make(chan acceptResult, 1)
	go func() {
		a, err := Accept(serverConn, serverCfg)
		resultCh <- acceptResult{a, err}
	}()

	clientCfg := RequestConfig{
		CalledAETitle:         "SERVER_AE",
		CallingAETitle:        "CLIENT_AE",
		ApplicationContextUID: uid.ApplicationContextName,
		AbstractSyntaxes:      []string{uid.VerificationSOPClass},
		TransferSyntaxes:      []string{uid.ImplicitVRLittleEndian},
	}
	_, err := Request(clientConn, clientCfg)
	if err == nil {
		t.Fatal("Request should fail when its only proposed context is refused")
	}

	res := <-resultCh
	if res.err == nil {
		t.Fatal("Accept should fail when every proposed context is refused, rather than return an association with nothing negotiated")
	}
	if res.assoc != nil {
		t.Errorf("Accept returned a non-nil association alongside its error")
	}
}

func TestAcceptNegotiatesRoleSelection(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCfg := Config{
		CalledAETitle:             "SERVER_AE",
		ApplicationContextUID:     uid.ApplicationContextName,
		SupportedAbstractSyntaxes: []string{uid.VerificationSOPClass},
		SupportedTransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
		RoleSelectionPolicy: func(abstractSyntax string, proposedSCU, proposedSCP byte) (byte, byte) {
			// Grant SCP even though the peer only proposed SCU, to verify the
			// policy's decision (not the peer's proposal) is what gets
			// recorded and sent back.
			return proposedSCU, pdu.RoleSupported
		},
	}

	type acceptResult struct {
		assoc *Association
		err   error
	}
	resultCh := make(chan acceptResult, 1)
	go func() {
		a, err := Accept(serverConn, serverCfg)
		resultCh <- acceptResult{a, err}
	}()

	clientCfg := RequestConfig{
		CalledAETitle:         "SERVER_AE",
		CallingAETitle:        "CLIENT_AE",
		ApplicationContextUID: uid.ApplicationContextName,
		AbstractSyntaxes:      []string{uid.VerificationSOPClass},
		TransferSyntaxes:      []string{uid.ImplicitVRLittleEndian},
		RoleSelections: map[string]RoleProposal{
			uid.VerificationSOPClass: {SCU: true, SCP: false},
		},
	}
	clientAssoc, err := Request(clientConn, clientCfg)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	res := <-resultCh
	if res.err != nil {
		t.Fatalf("Accept: %v", res.err)
	}
	serverAssoc := res.assoc

	scu, scp, err := serverAssoc.RoleFor(1)
	if err != nil {
		t.Fatalf("server RoleFor(1): %v", err)
	}
	if scu != pdu.RoleSupported || scp != pdu.RoleSupported {
		t.Errorf("server role = %d/%d, want %d/%d (policy grants both)", scu, scp, pdu.RoleSupported, pdu.RoleSupported)
	}

	scu, scp, err = clientAssoc.RoleFor(1)
	if err != nil {
		t.Fatalf("client RoleFor(1): %v", err)
	}
	if scu != pdu.RoleSupported || scp != pdu.RoleSupported {
		t.Errorf("client role = %d/%d, want %d/%d (as granted by the acceptor)", scu, scp, pdu.RoleSupported, pdu.RoleSupported)
	}
}
