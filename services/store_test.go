package services

import (
	"errors"
	"testing"

	"github.com/anthonypark/dicomgo/dicom"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/tag"
	"github.com/anthonypark/dicomgo/uid"
	"github.com/anthonypark/dicomgo/vr"
)

func TestStorePersistsInstanceAndReportsSuccess(t *testing.T) {
	sopClass := uid.CTImageStorage
	store := &fakeStore{}

	clientAssoc, serveErrCh := servePipe(t, sopClass, func(r *dimse.Router) {
		r.Handle(dimse.CStoreRQ, Store(store))
	})

	instance := dicom.NewDataset(uid.ImplicitVRLittleEndian)
	instance.PutString(tag.Tag{Group: 0x0010, Element: 0x0010}, vr.PN, "STORED^PATIENT")
	data, err := encodeDataset(instance, uid.ImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("encodeDataset: %v", err)
	}

	x := dimse.NewExchange(clientAssoc)
	req := dimse.StoreRequest{
		MessageID:              dimse.NextMessageID(),
		AffectedSOPClassUID:    sopClass,
		AffectedSOPInstanceUID: "1.2.3.4",
	}
	if err := x.Send(1, req.ToCommand(), data); err != nil {
		t.Fatalf("send C-STORE-RQ: %v", err)
	}

	_, respCmd, _, err := x.Receive()
	if err != nil {
		t.Fatalf("receive C-STORE-RSP: %v", err)
	}
	if dimse.Status(respCmd.Status).Classify() != dimse.ClassSuccess {
		t.Errorf("status = 0x%04x, want success", respCmd.Status)
	}

	if len(store.stored) != 1 {
		t.Fatalf("store received %d instances, want 1", len(store.stored))
	}
	if got := store.stored[0].GetString(tag.Tag{Group: 0x0010, Element: 0x0010}); got != "STORED^PATIENT" {
		t.Errorf("stored PatientName = %q, want STORED^PATIENT", got)
	}

	if err := clientAssoc.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := <-serveErrCh; err != nil {
		t.Errorf("router.Serve returned an error: %v", err)
	}
}

func TestStoreReportsFailureStatusOnStoreError(t *testing.T) {
	sopClass := uid.CTImageStorage
	store := &fakeStore{storeErr: errors.New("disk full")}

	clientAssoc, serveErrCh := servePipe(t, sopClass, func(r *dimse.Router) {
		r.Handle(dimse.CStoreRQ, Store(store))
	})

	instance := dicom.NewDataset(uid.ImplicitVRLittleEndian)
	data, err := encodeDataset(instance, uid.ImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("encodeDataset: %v", err)
	}

	x := dimse.NewExchange(clientAssoc)
	req := dimse.StoreRequest{MessageID: dimse.NextMessageID(), AffectedSOPClassUID: sopClass}
	if err := x.Send(1, req.ToCommand(), data); err != nil {
		t.Fatalf("send C-STORE-RQ: %v", err)
	}

	_, respCmd, _, err := x.Receive()
	if err != nil {
		t.Fatalf("receive C-STORE-RSP: %v", err)
	}
	if dimse.Status(respCmd.Status).Classify() != dimse.ClassFailure {
		t.Errorf("status = 0x%04x, want failure", respCmd.Status)
	}

	if err := clientAssoc.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := <-serveErrCh; err != nil {
		t.Errorf("router.Serve returned an error: %v", err)
	}
}
