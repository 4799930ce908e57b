// Package interfaces holds the collaborator boundaries this module
// defines but does not implement itself: the backing store a C-FIND/
// C-GET/C-MOVE provider queries and retrieves instances from. Indexing,
// persistence, and query planning are an external collaborator's concern
// per spec.md's Non-goals; this package only names the shape that
// collaborator must expose.
package interfaces

import (
	"context"

	"github.com/anthonypark/dicomgo/dicom"
)

// QueryLevel names the DICOM query/retrieve hierarchy level a QueryStore
// operation addresses.
type QueryLevel string

const (
	LevelPatient QueryLevel = "PATIENT"
	LevelStudy   QueryLevel = "STUDY"
	LevelSeries  QueryLevel = "SERIES"
	LevelImage   QueryLevel = "IMAGE"
)

// QueryStore is the backing store a C-FIND/C-GET/C-MOVE service handler
// queries and retrieves instances from. Matching keys and results both
// travel as dicom.Dataset: the store owns no DICOM-specific types of its
// own, just persistence and matching against whatever elements the
// identifier carries.
type QueryStore interface {
	// Find returns every record at level matching identifier's populated
	// elements, for a pending C-FIND response per match. The matching
	// rules are the implementation's own; this module does no
	// universal or wildcard matching itself.
	Find(ctx context.Context, level QueryLevel, identifier *dicom.Dataset) ([]*dicom.Dataset, error)

	// Retrieve returns the full instance datasets matching identifier at
	// level, for C-GET/C-MOVE to stream back as C-STORE sub-operations.
	Retrieve(ctx context.Context, level QueryLevel, identifier *dicom.Dataset) ([]*dicom.Dataset, error)

	// Store persists one instance received via C-STORE.
	Store(ctx context.Context, instance *dicom.Dataset) error
}
