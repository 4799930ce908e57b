// Command sample_server runs a demo DICOM service provider over this
// module's assoc/dimse/server/services stack: C-ECHO, C-FIND, C-GET, and
// C-MOVE against a small in-memory instance store, seeded either from a
// real DICOM Part10 file or with synthetic studies for a quick smoke test.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/anthonypark/dicomgo/assoc"
	"github.com/anthonypark/dicomgo/dicom"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/interfaces"
	"github.com/anthonypark/dicomgo/server"
	"github.com/anthonypark/dicomgo/services"
	"github.com/anthonypark/dicomgo/tag"
	"github.com/anthonypark/dicomgo/uid"
)

var (
	tagSOPClassUID    = tag.Tag{Group: 0x0008, Element: 0x0016}
	tagSOPInstanceUID = tag.Tag{Group: 0x0008, Element: 0x0018}
	tagStudyUID       = tag.Tag{Group: 0x0020, Element: 0x000D}
	tagSeriesUID      = tag.Tag{Group: 0x0020, Element: 0x000E}
	tagPatientName    = tag.Tag{Group: 0x0010, Element: 0x0010}
	tagPatientID      = tag.Tag{Group: 0x0010, Element: 0x0020}
)

// memStore is an in-memory interfaces.QueryStore: a flat table of
// instances matched by whichever of SOP-instance/series/study UID the
// query identifier names, the simplest store that can exercise
// services.Find/Get/Move/Store without an external index.
type memStore struct {
	mu        sync.RWMutex
	instances []*dicom.Dataset
}

func newMemStore() *memStore {
	return &memStore{}
}

func (s *memStore) Find(ctx context.Context, level interfaces.QueryLevel, identifier *dicom.Dataset) ([]*dicom.Dataset, error) {
	return s.match(identifier), nil
}

func (s *memStore) Retrieve(ctx context.Context, level interfaces.QueryLevel, identifier *dicom.Dataset) ([]*dicom.Dataset, error) {
	return s.match(identifier), nil
}

func (s *memStore) Store(ctx context.Context, instance *dicom.Dataset) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.instances = append(s.instances, instance)
	return nil
}

func (s *memStore) match(identifier *dicom.Dataset) []*dicom.Dataset {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sopUID := identifier.GetString(tagSOPInstanceUID)
	seriesUID := identifier.GetString(tagSeriesUID)
	studyUID := identifier.GetString(tagStudyUID)

	var matches []*dicom.Dataset
	for _, instance := range s.instances {
		switch {
		case sopUID != "":
			if instance.GetString(tagSOPInstanceUID) == sopUID {
				matches = append(matches, instance)
			}
		case seriesUID != "":
			if instance.GetString(tagSeriesUID) == seriesUID {
				matches = append(matches, instance)
			}
		case studyUID != "":
			if instance.GetString(tagStudyUID) == studyUID {
				matches = append(matches, instance)
			}
		default:
			matches = append(matches, instance)
		}
	}
	return matches
}

// loadDicomFile reads a Part10 DICOM file and adds its dataset to the
// store, skipping the 128-byte preamble and "DICM" marker.
func loadDicomFile(store *memStore, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read DICOM file: %w", err)
	}
	if len(data) < 132 || string(data[128:132]) != "DICM" {
		return fmt.Errorf("%s is not a Part10 DICOM file", path)
	}

	p := dicom.NewParserWithTransferSyntax(bytes.NewReader(data[132:]), uid.ExplicitVRLittleEndian)
	ds, err := p.Parse()
	if err != nil {
		return fmt.Errorf("parse DICOM dataset: %w", err)
	}
	return store.Store(context.Background(), ds)
}

// generateSyntheticInstances seeds the store with a handful of CT
// instances in one study/series, so the demo server has something to
// find/get/move without a real DICOM file on hand.
func generateSyntheticInstances(store *memStore, count int) error {
	studyUID := "1.2.840.999.999.1.1.1.1"
	seriesUID := "1.2.840.999.999.1.1.1.1.1"

	for i := 1; i <= count; i++ {
		ds := dicom.NewDataset(uid.ImplicitVRLittleEndian)
		fields := []struct {
			t tag.Tag
			v string
		}{
			{tagSOPClassUID, uid.CTImageStorage},
			{tagSOPInstanceUID, fmt.Sprintf("%s.%d", seriesUID, i)},
			{tagStudyUID, studyUID},
			{tagSeriesUID, seriesUID},
			{tagPatientName, "TEST^PATIENT"},
			{tagPatientID, "12345"},
		}
		for _, f := range fields {
			if err := ds.PutString(f.t, tag.VRFor(f.t), f.v); err != nil {
				return fmt.Errorf("build synthetic instance %d: %w", i, err)
			}
		}
		if err := store.Store(context.Background(), ds); err != nil {
			return err
		}
	}
	return nil
}

func main() {
	port := flag.Int("port", 4242, "TCP port to listen on")
	aeTitle := flag.String("ae", "SAMPLE_SCP", "server AE title")
	dicomFile := flag.String("dicom", "", "path to a sample Part10 DICOM file to seed the store with")
	synthetic := flag.Int("synthetic", 3, "number of synthetic CT instances to seed the store with when -dicom is unset")
	workers := flag.Int("workers", server.DefaultWorkerPoolSize, "worker pool size (concurrent associations served)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	store := newMemStore()
	if *dicomFile != "" {
		if err := loadDicomFile(store, *dicomFile); err != nil {
			logger.Error("failed to load DICOM file", "error", err, "file", *dicomFile)
			os.Exit(1)
		}
	} else if *synthetic > 0 {
		if err := generateSyntheticInstances(store, *synthetic); err != nil {
			logger.Error("failed to generate synthetic instances", "error", err)
			os.Exit(1)
		}
	}

	router := dimse.NewRouter(logger)
	router.Handle(dimse.CEchoRQ, services.Echo())
	router.Handle(dimse.CFindRQ, services.Find(store))
	router.Handle(dimse.CGetRQ, services.Get(store))
	router.Handle(dimse.CStoreRQ, services.Store(store))
	router.Handle(dimse.CMoveRQ, services.Move(store, services.StaticMoveRouter{}, *aeTitle))

	assocConfig := assoc.Config{
		CalledAETitle:         *aeTitle,
		ApplicationContextUID: uid.ApplicationContextName,
		SupportedAbstractSyntaxes: []string{
			uid.VerificationSOPClass,
			uid.CTImageStorage,
			uid.MRImageStorage,
			uid.SecondaryCaptureImageStorage,
			uid.UltrasoundImageStorage,
			uid.StudyRootQueryRetrieveInformationModelFind,
			uid.StudyRootQueryRetrieveInformationModelGet,
			uid.StudyRootQueryRetrieveInformationModelMove,
		},
		SupportedTransferSyntaxes: uid.CommonTransferSyntaxes(),
		Logger:                    logger,
	}

	srv := server.New(*aeTitle, assocConfig, router, server.WithLogger(logger), server.WithWorkerPoolSize(*workers))

	address := fmt.Sprintf(":%d", *port)
	err := server.ListenAndServe(ctx, address, srv)
	switch {
	case err == nil:
		logger.Info("sample server shutdown complete")
	case errors.Is(err, context.Canceled):
		logger.Info("sample server stopped", "reason", err.Error())
	default:
		logger.Error("sample server terminated unexpectedly", "error", err)
		os.Exit(1)
	}
}
