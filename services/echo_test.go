package services

import (
	"context"
	"net"
	"testing"

	"github.com/anthonypark/dicomgo/assoc"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/uid"
)

func TestEchoServesOverAnAssociation(t *testing.T) {
	serverConn, clientConn := net.Pipe()
	defer serverConn.Close()
	defer clientConn.Close()

	serverCfg := assoc.Config{
		CalledAETitle:             "SCP",
		ApplicationContextUID:     uid.ApplicationContextName,
		SupportedAbstractSyntaxes: []string{uid.VerificationSOPClass},
		SupportedTransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
	}

	serveErrCh := make(chan error, 1)
	go func() {
		serverAssoc, err := assoc.Accept(serverConn, serverCfg)
		if err != nil {
			serveErrCh <- err
			return
		}
		router := dimse.NewRouter(nil)
		router.Handle(dimse.CEchoRQ, Echo())
		serveErrCh <- router.Serve(context.Background(), serverAssoc)
	}()

	clientCfg := assoc.RequestConfig{
		CalledAETitle:         "SCP",
		CallingAETitle:        "SCU",
		ApplicationContextUID: uid.ApplicationContextName,
		AbstractSyntaxes:      []string{uid.VerificationSOPClass},
		TransferSyntaxes:      []string{uid.ImplicitVRLittleEndian},
	}
	clientAssoc, err := assoc.Request(clientConn, clientCfg)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}

	x := dimse.NewExchange(clientAssoc)
	req := dimse.EchoRequest{MessageID: dimse.NextMessageID(), AffectedSOPClassUID: uid.VerificationSOPClass}
	if err := x.Send(1, req.ToCommand(), nil); err != nil {
		t.Fatalf("Send C-ECHO-RQ: %v", err)
	}

	_, respCmd, dataset, err := x.Receive()
	if err != nil {
		t.Fatalf("Receive C-ECHO-RSP: %v", err)
	}
	if respCmd.CommandField != dimse.CEchoRSP {
		t.Errorf("response CommandField = 0x%04x, want CEchoRSP", respCmd.CommandField)
	}
	if respCmd.Status != uint16(dimse.StatusSuccess) {
		t.Errorf("response Status = 0x%04x, want success", respCmd.Status)
	}
	if len(dataset) != 0 {
		t.Errorf("C-ECHO-RSP carried a dataset of %d bytes, want none", len(dataset))
	}

	if err := clientAssoc.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := <-serveErrCh; err != nil {
		t.Errorf("router.Serve returned an error after release: %v", err)
	}
}
