package client

import (
	"context"
	"net"
	"testing"

	"github.com/anthonypark/dicomgo/assoc"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/uid"
)

// serveRouter starts a TCP listener, accepts one association per cfg, lets
// register wire up its handlers, and serves it in a goroutine. doneCh
// carries router.Serve's return value once the association ends.
func serveRouter(t *testing.T, cfg assoc.Config, register func(*dimse.Router)) (address string, doneCh chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	doneCh = make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			doneCh <- err
			return
		}
		a, err := assoc.Accept(conn, cfg)
		if err != nil {
			doneCh <- err
			return
		}
		router := dimse.NewRouter(nil)
		register(router)
		doneCh <- router.Serve(context.Background(), a)
	}()
	return ln.Addr().String(), doneCh
}

// listenAndAccept starts a TCP listener and runs assoc.Accept against the
// first connection in a goroutine, returning the address to dial and
// channels carrying the negotiated association or any error.
func listenAndAccept(t *testing.T, cfg assoc.Config) (address string, acceptedCh chan *assoc.Association, errCh chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	acceptedCh = make(chan *assoc.Association, 1)
	errCh = make(chan error, 1)
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			errCh <- err
			return
		}
		a, err := assoc.Accept(conn, cfg)
		if err != nil {
			errCh <- err
			return
		}
		acceptedCh <- a
	}()
	return ln.Addr().String(), acceptedCh, errCh
}

func TestConnectNegotiatesAssociation(t *testing.T) {
	serverCfg := assoc.Config{
		CalledAETitle:             "SCP",
		ApplicationContextUID:     uid.ApplicationContextName,
		SupportedAbstractSyntaxes: []string{uid.VerificationSOPClass},
		SupportedTransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
	}
	address, acceptedCh, errCh := listenAndAccept(t, serverCfg)

	a, err := Connect(context.Background(), address, Config{
		CallingAETitle:    "SCU",
		CalledAETitle:     "SCP",
		AbstractSyntaxes:  []string{uid.VerificationSOPClass},
		TransferSyntaxes:  []string{uid.ImplicitVRLittleEndian},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer a.Close()

	select {
	case serverErr := <-errCh:
		t.Fatalf("Accept: %v", serverErr)
	case <-acceptedCh:
	}

	if ts, err := a.TransferSyntaxFor(uid.VerificationSOPClass); err != nil || ts != uid.ImplicitVRLittleEndian {
		t.Errorf("TransferSyntaxFor = %q, %v, want %q, nil", ts, err, uid.ImplicitVRLittleEndian)
	}
	if _, err := a.ContextID(uid.VerificationSOPClass); err != nil {
		t.Errorf("ContextID: %v", err)
	}
}

func TestConnectRequiresAETitles(t *testing.T) {
	if _, err := Connect(context.Background(), "127.0.0.1:0", Config{CalledAETitle: "SCP"}); err == nil {
		t.Error("Connect without CallingAETitle should fail")
	}
	if _, err := Connect(context.Background(), "127.0.0.1:0", Config{CallingAETitle: "SCU"}); err == nil {
		t.Error("Connect without CalledAETitle should fail")
	}
}

func TestConnectFailsWhenCalledAEMismatches(t *testing.T) {
	serverCfg := assoc.Config{
		CalledAETitle:             "SCP",
		ApplicationContextUID:     uid.ApplicationContextName,
		SupportedAbstractSyntaxes: []string{uid.VerificationSOPClass},
		SupportedTransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
	}
	address, _, errCh := listenAndAccept(t, serverCfg)

	_, err := Connect(context.Background(), address, Config{
		CallingAETitle:   "SCU",
		CalledAETitle:    "WRONG",
		AbstractSyntaxes: []string{uid.VerificationSOPClass},
		TransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
	})
	if err == nil {
		t.Fatal("Connect against a mismatched called AE title should fail")
	}
	if serverErr := <-errCh; serverErr == nil {
		t.Error("Accept should have rejected the mismatched called AE title")
	}
}
