package services

import (
	"context"
	"net"
	"testing"

	"github.com/anthonypark/dicomgo/assoc"
	"github.com/anthonypark/dicomgo/dicom"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/interfaces"
	"github.com/anthonypark/dicomgo/tag"
	"github.com/anthonypark/dicomgo/uid"
	"github.com/anthonypark/dicomgo/vr"
)

// fakeStore is a minimal interfaces.QueryStore backed by a fixed slice,
// enough to exercise Find/Get/Move without a real index.
type fakeStore struct {
	datasets []*dicom.Dataset
	storeErr error
	stored   []*dicom.Dataset
}

func (s *fakeStore) Find(ctx context.Context, level interfaces.QueryLevel, identifier *dicom.Dataset) ([]*dicom.Dataset, error) {
	return s.datasets, nil
}

func (s *fakeStore) Retrieve(ctx context.Context, level interfaces.QueryLevel, identifier *dicom.Dataset) ([]*dicom.Dataset, error) {
	return s.datasets, nil
}

func (s *fakeStore) Store(ctx context.Context, instance *dicom.Dataset) error {
	if s.storeErr != nil {
		return s.storeErr
	}
	s.stored = append(s.stored, instance)
	return nil
}

func servePipe(t *testing.T, sopClass string, register func(*dimse.Router)) (*assoc.Association, chan error) {
	t.Helper()
	serverConn, clientConn := net.Pipe()
	t.Cleanup(func() { serverConn.Close(); clientConn.Close() })

	serverCfg := assoc.Config{
		CalledAETitle:             "SCP",
		ApplicationContextUID:     uid.ApplicationContextName,
		SupportedAbstractSyntaxes: []string{sopClass},
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
		register(router)
		serveErrCh <- router.Serve(context.Background(), serverAssoc)
	}()

	clientCfg := assoc.RequestConfig{
		CalledAETitle:         "SCP",
		CallingAETitle:        "SCU",
		ApplicationContextUID: uid.ApplicationContextName,
		AbstractSyntaxes:      []string{sopClass},
		TransferSyntaxes:      []string{uid.ImplicitVRLittleEndian},
	}
	clientAssoc, err := assoc.Request(clientConn, clientCfg)
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	return clientAssoc, serveErrCh
}

func TestFindReturnsOneResultPerMatch(t *testing.T) {
	sopClass := uid.StudyRootQueryRetrieveInformationModelFind
	match := dicom.NewDataset(uid.ImplicitVRLittleEndian)
	match.PutString(tag.Tag{Group: 0x0010, Element: 0x0010}, vr.PN, "DOE^JOHN")
	store := &fakeStore{datasets: []*dicom.Dataset{match}}

	clientAssoc, serveErrCh := servePipe(t, sopClass, func(r *dimse.Router) {
		r.Handle(dimse.CFindRQ, Find(store))
	})

	identifier := dicom.NewDataset(uid.ImplicitVRLittleEndian)
	data, err := encodeDataset(identifier, uid.ImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("encodeDataset: %v", err)
	}

	x := dimse.NewExchange(clientAssoc)
	req := dimse.FindRequest{MessageID: dimse.NextMessageID(), AffectedSOPClassUID: sopClass}
	if err := x.Send(1, req.ToCommand(), data); err != nil {
		t.Fatalf("send C-FIND-RQ: %v", err)
	}

	var results int
	for {
		_, cmd, dataset, err := x.Receive()
		if err != nil {
			t.Fatalf("receive C-FIND-RSP: %v", err)
		}
		if dimse.Status(cmd.Status).Classify() != dimse.ClassPending {
			break
		}
		ds, err := decodeDataset(dataset, uid.ImplicitVRLittleEndian)
		if err != nil {
			t.Fatalf("decode result: %v", err)
		}
		if got := ds.GetString(tag.Tag{Group: 0x0010, Element: 0x0010}); got != "DOE^JOHN" {
			t.Errorf("PatientName = %q, want DOE^JOHN", got)
		}
		results++
	}
	if results != 1 {
		t.Errorf("got %d pending results, want 1", results)
	}

	if err := clientAssoc.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := <-serveErrCh; err != nil {
		t.Errorf("router.Serve returned an error: %v", err)
	}
}
