package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/anthonypark/dicomgo/assoc"
	"github.com/anthonypark/dicomgo/client"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/services"
	"github.com/anthonypark/dicomgo/uid"
)

func TestServeHandlesEchoOverWorkerPool(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	router := dimse.NewRouter(nil)
	router.Handle(dimse.CEchoRQ, services.Echo())

	srv := New("SCP", assoc.Config{
		ApplicationContextUID:     uid.ApplicationContextName,
		SupportedAbstractSyntaxes: []string{uid.VerificationSOPClass},
		SupportedTransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
	}, router, WithWorkerPoolSize(2))

	ctx, cancel := context.WithCancel(context.Background())
	serveErrCh := make(chan error, 1)
	go func() { serveErrCh <- srv.Serve(ctx, listener) }()

	address := listener.Addr().String()
	a, err := client.Connect(context.Background(), address, client.Config{
		CallingAETitle:   "SCU",
		CalledAETitle:    "SCP",
		AbstractSyntaxes: []string{uid.VerificationSOPClass},
		TransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
	})
	if err != nil {
		t.Fatalf("client.Connect: %v", err)
	}

	resp, err := a.Echo(0)
	if err != nil {
		t.Fatalf("Echo: %v", err)
	}
	if resp.Status.Classify() != dimse.ClassSuccess {
		t.Errorf("Echo status = %v, want success", resp.Status)
	}

	if err := a.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	cancel()
	select {
	case err := <-serveErrCh:
		if err != nil && err != context.Canceled {
			t.Errorf("Serve returned %v, want nil or context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after context cancellation")
	}
}

func TestServeRejectsMissingRouter(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer listener.Close()

	srv := New("SCP", assoc.Config{}, nil)
	if err := srv.Serve(context.Background(), listener); err == nil {
		t.Error("Serve with a nil Router should fail")
	}
}

func TestNewDefaultsCalledAETitleAndPoolSize(t *testing.T) {
	srv := New("SCP", assoc.Config{}, dimse.NewRouter(nil))
	if srv.AssocConfig.CalledAETitle != "SCP" {
		t.Errorf("CalledAETitle = %q, want %q", srv.AssocConfig.CalledAETitle, "SCP")
	}
	if srv.WorkerPoolSize != DefaultWorkerPoolSize {
		t.Errorf("WorkerPoolSize = %d, want %d", srv.WorkerPoolSize, DefaultWorkerPoolSize)
	}
}
