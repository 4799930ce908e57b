package client

import (
	"context"
	"testing"

	"github.com/anthonypark/dicomgo/dicom"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/tag"
	"github.com/anthonypark/dicomgo/uid"
	"github.com/anthonypark/dicomgo/vr"
)

// getHandler simulates a C-GET SCP that forwards one C-STORE sub-operation
// back over the same association before reporting completion.
func getHandler(storeSOPClass string) dimse.HandlerFunc {
	return func(ctx context.Context, op *dimse.Operation, req *dimse.Command, dataset []byte, x *dimse.Exchange) error {
		instance := dicom.NewDataset(uid.ImplicitVRLittleEndian)
		instance.PutString(tag.Tag{Group: 0x0010, Element: 0x0010}, vr.PN, "RETRIEVED^PATIENT")
		data, err := encodeDataset(instance, uid.ImplicitVRLittleEndian)
		if err != nil {
			return err
		}

		storeReq := dimse.StoreRequest{
			MessageID:              dimse.NextMessageID(),
			AffectedSOPClassUID:    storeSOPClass,
			AffectedSOPInstanceUID: "1.2.3.4.5",
		}
		if err := x.Send(op.ContextID, storeReq.ToCommand(), data); err != nil {
			return err
		}
		// Consume the C-STORE-RSP the client sends back.
		if _, _, _, err := x.Receive(); err != nil {
			return err
		}

		remaining, completed := uint16(0), uint16(1)
		final := dimse.GetResponse{
			MessageIDBeingRespondedTo: req.MessageID,
			AffectedSOPClassUID:       req.AffectedSOPClassUID,
			Status:                    dimse.StatusSuccess,
			Counters:                  dimse.SubOpCounters{Remaining: remaining, Completed: completed},
		}
		if err := x.Send(op.ContextID, final.ToCommand(), nil); err != nil {
			return err
		}
		return op.WriteTerminal(dimse.StatusSuccess)
	}
}

func TestGetRoundTripWithStoreSubOperation(t *testing.T) {
	sopClass := uid.StudyRootQueryRetrieveInformationModelGet
	address, doneCh := serveRouter(t, testServerConfig(sopClass), func(r *dimse.Router) {
		r.Handle(dimse.CGetRQ, getHandler(uid.CTImageStorage))
	})

	a := connectToTestServer(t, address, sopClass)

	query := dicom.NewDataset(uid.ImplicitVRLittleEndian)
	query.PutString(tag.Tag{Group: 0x0010, Element: 0x0010}, vr.PN, "*")

	var received []StoreInstance
	results, err := a.Get(GetRequest{SOPClassUID: sopClass, Identifier: query}, func(instance StoreInstance) dimse.Status {
		received = append(received, instance)
		return dimse.StatusSuccess
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(received) != 1 {
		t.Fatalf("got %d sub-operations, want 1", len(received))
	}
	ds, err := decodeDataset(received[0].Data, uid.ImplicitVRLittleEndian)
	if err != nil {
		t.Fatalf("decode sub-operation dataset: %v", err)
	}
	if got := ds.GetString(tag.Tag{Group: 0x0010, Element: 0x0010}); got != "RETRIEVED^PATIENT" {
		t.Errorf("sub-operation PatientName = %q, want RETRIEVED^PATIENT", got)
	}

	if len(results) != 1 {
		t.Fatalf("got %d C-GET-RSP results, want 1", len(results))
	}
	if results[0].Status.Classify() != dimse.ClassSuccess {
		t.Errorf("final Get status = %v, want success", results[0].Status)
	}
	if results[0].Counters.Completed != 1 {
		t.Errorf("Completed = %d, want 1", results[0].Counters.Completed)
	}

	if err := a.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := <-doneCh; err != nil {
		t.Errorf("router.Serve returned an error after release: %v", err)
	}
}
