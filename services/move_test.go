package services

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/anthonypark/dicomgo/assoc"
	"github.com/anthonypark/dicomgo/dicom"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/tag"
	"github.com/anthonypark/dicomgo/uid"
	"github.com/anthonypark/dicomgo/vr"
)

// destinationServer runs a minimal C-STORE-only provider on a real TCP
// listener, standing in for the C-MOVE destination AE that Move dials
// out to.
func destinationServer(t *testing.T) (address string, received chan *dicom.Dataset) {
	t.Helper()
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { listener.Close() })

	received = make(chan *dicom.Dataset, 8)
	store := &fakeStore{}
	go func() {
		conn, err := listener.Accept()
		if err != nil {
			return
		}
		serverAssoc, err := assoc.Accept(conn, assoc.Config{
			CalledAETitle:             "DEST",
			ApplicationContextUID:     uid.ApplicationContextName,
			SupportedAbstractSyntaxes: []string{uid.CTImageStorage},
			SupportedTransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
		})
		if err != nil {
			return
		}
		router := dimse.NewRouter(nil)
		router.Handle(dimse.CStoreRQ, Store(store))
		_ = router.Serve(context.Background(), serverAssoc)
		for _, ds := range store.stored {
			received <- ds
		}
		close(received)
	}()

	return listener.Addr().String(), received
}

func TestMoveForwardsMatchesToDestination(t *testing.T) {
	destAddress, received := destinationServer(t)

	instance := dicom.NewDataset(uid.ImplicitVRLittleEndian)
	instance.PutString(tag.Tag{Group: 0x0008, Element: 0x0016}, vr.UI, uid.CTImageStorage)
	instance.PutString(tag.Tag{Group: 0x0008, Element: 0x0018}, vr.UI, "1.2.3.4.5")
	instance.PutString(tag.Tag{Group: 0x0010, Element: 0x0010}, vr.PN, "MOVED^PATIENT")
	store := &fakeStore{datasets: []*dicom.Dataset{instance}}

	sopClass := uid.StudyRootQueryRetrieveInformationModelMove
	router := StaticMoveRouter{"DEST": destAddress}

	clientAssoc, serveErrCh := servePipe(t, sopClass, func(r *dimse.Router) {
		r.Handle(dimse.CMoveRQ, Move(store, router, "SCP"))
	})

	identifier := dicom.NewDataset(uid.ImplicitVRLittleEndian)
	data, err := encodeDataset(identifier, uid.ImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("encodeDataset: %v", err)
	}

	x := dimse.NewExchange(clientAssoc)
	req := dimse.MoveRequest{
		MessageID:           dimse.NextMessageID(),
		AffectedSOPClassUID: sopClass,
		Destination:         "DEST",
	}
	if err := x.Send(1, req.ToCommand(), data); err != nil {
		t.Fatalf("send C-MOVE-RQ: %v", err)
	}

	var finalCompleted uint16
	for {
		_, cmd, _, err := x.Receive()
		if err != nil {
			t.Fatalf("receive: %v", err)
		}
		if dimse.Status(cmd.Status).Classify() == dimse.ClassPending {
			continue
		}
		if cmd.NumberOfCompleted != nil {
			finalCompleted = *cmd.NumberOfCompleted
		}
		break
	}
	if finalCompleted != 1 {
		t.Errorf("final Completed counter = %d, want 1", finalCompleted)
	}

	if err := clientAssoc.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := <-serveErrCh; err != nil {
		t.Errorf("router.Serve returned an error: %v", err)
	}

	select {
	case ds, ok := <-received:
		if !ok {
			t.Fatal("destination never received a C-STORE")
		}
		if got := ds.GetString(tag.Tag{Group: 0x0010, Element: 0x0010}); got != "MOVED^PATIENT" {
			t.Errorf("forwarded PatientName = %q, want MOVED^PATIENT", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for destination C-STORE")
	}
}
