package client

import (
	"context"
	"testing"

	"github.com/anthonypark/dicomgo/assoc"
	"github.com/anthonypark/dicomgo/dicom"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/services"
	"github.com/anthonypark/dicomgo/tag"
	"github.com/anthonypark/dicomgo/uid"
	"github.com/anthonypark/dicomgo/vr"
)

func testServerConfig(abstractSyntaxes ...string) assoc.Config {
	return assoc.Config{
		CalledAETitle:             "SCP",
		ApplicationContextUID:     uid.ApplicationContextName,
		SupportedAbstractSyntaxes: abstractSyntaxes,
		SupportedTransferSyntaxes: []string{uid.ImplicitVRLittleEndian},
	}
}

func connectToTestServer(t *testing.T, address string, abstractSyntaxes ...string) *Association {
	t.Helper()
	a, err := Connect(context.Background(), address, Config{
		CallingAETitle:    "SCU",
		CalledAETitle:     "SCP",
		AbstractSyntaxes:  abstractSyntaxes,
		TransferSyntaxes:  []string{uid.ImplicitVRLittleEndian},
	})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { a.Close() })
	return a
}

func TestEchoRoundTrip(t *testing.T) {
	address, doneCh := serveRouter(t, testServerConfig(uid.VerificationSOPClass), func(r *dimse.Router) {
		r.Handle(dimse.CEchoRQ, services.Echo())
	})

	a := connectToTestServer(t, address, uid.VerificationSOPClass)

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
	if err := <-doneCh; err != nil {
		t.Errorf("router.Serve returned an error after release: %v", err)
	}
}

func findHandler(results int) dimse.HandlerFunc {
	return func(ctx context.Context, op *dimse.Operation, req *dimse.Command, dataset []byte, x *dimse.Exchange) error {
		for i := 0; i < results; i++ {
			identifier := dicom.NewDataset(uid.ImplicitVRLittleEndian)
			identifier.PutString(tag.Tag{Group: 0x0010, Element: 0x0010}, vr.PN, "MATCH^PATIENT")
			data, err := encodeDataset(identifier, uid.ImplicitVRLittleEndian)
			if err != nil {
				return err
			}
			resp := dimse.FindResponse{
				MessageIDBeingRespondedTo: req.MessageID,
				AffectedSOPClassUID:       req.AffectedSOPClassUID,
				Status:                    dimse.StatusPendingA,
				HasDataset:                true,
			}
			if err := x.Send(op.ContextID, resp.ToCommand(), data); err != nil {
				return err
			}
			if err := op.WritePending(); err != nil {
				return err
			}
		}
		final := dimse.FindResponse{
			MessageIDBeingRespondedTo: req.MessageID,
			AffectedSOPClassUID:       req.AffectedSOPClassUID,
			Status:                    dimse.StatusSuccess,
		}
		if err := x.Send(op.ContextID, final.ToCommand(), nil); err != nil {
			return err
		}
		return op.WriteTerminal(dimse.StatusSuccess)
	}
}

func TestFindRoundTrip(t *testing.T) {
	sopClass := uid.StudyRootQueryRetrieveInformationModelFind
	address, doneCh := serveRouter(t, testServerConfig(sopClass), func(r *dimse.Router) {
		r.Handle(dimse.CFindRQ, findHandler(2))
	})

	a := connectToTestServer(t, address, sopClass)

	query := dicom.NewDataset(uid.ImplicitVRLittleEndian)
	query.PutString(tag.Tag{Group: 0x0010, Element: 0x0010}, vr.PN, "*")

	results, err := a.Find(FindRequest{SOPClassUID: sopClass, Identifier: query})
	if err != nil {
		t.Fatalf("Find: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("got %d results, want 3 (2 pending + 1 final)", len(results))
	}
	for i := 0; i < 2; i++ {
		if results[i].Status.Classify() != dimse.ClassPending {
			t.Errorf("result[%d].Status = %v, want pending", i, results[i].Status)
		}
		if results[i].Identifier == nil {
			t.Errorf("result[%d].Identifier = nil, want a matched dataset", i)
		} else if got := results[i].Identifier.GetString(tag.Tag{Group: 0x0010, Element: 0x0010}); got != "MATCH^PATIENT" {
			t.Errorf("result[%d] PatientName = %q, want MATCH^PATIENT", i, got)
		}
	}
	if results[2].Status.Classify() != dimse.ClassSuccess {
		t.Errorf("final result status = %v, want success", results[2].Status)
	}

	if err := a.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	if err := <-doneCh; err != nil {
		t.Errorf("router.Serve returned an error after release: %v", err)
	}
}
