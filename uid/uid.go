// Package uid holds the static registries of DICOM UIDs this module knows
// about: transfer syntaxes, SOP classes, and the application context. The
// full standard table (Part 6, Annex A) numbers in the thousands; codegen
// from the published data is an external collaborator per spec.md §1. This
// registry carries the UIDs exercised by the rest of the module plus a
// representative slice of the storage/query-retrieve SOP class space.
package uid

// Category distinguishes the kind of thing a UID names.
type Category string

const (
	CategoryTransferSyntax     Category = "transfer-syntax"
	CategorySOPClass           Category = "sop-class"
	CategoryApplicationContext Category = "application-context"
	CategoryMetaSOPClass       Category = "meta-sop-class"
)

// ApplicationContextName is the standard DICOM application-context UID;
// every A-ASSOCIATE-RQ must propose exactly this value.
const ApplicationContextName = "1.2.840.10008.3.1.1.1"

// Well-known transfer syntax UIDs.
const (
	ImplicitVRLittleEndian         = "1.2.840.10008.1.2"
	ExplicitVRLittleEndian         = "1.2.840.10008.1.2.1"
	ExplicitVRBigEndian            = "1.2.840.10008.1.2.2"
	DeflatedExplicitVRLittleEndian = "1.2.840.10008.1.2.1.99"

	JPEGBaseline8Bit    = "1.2.840.10008.1.2.4.50"
	JPEGExtended12Bit   = "1.2.840.10008.1.2.4.51"
	JPEGLossless        = "1.2.840.10008.1.2.4.57"
	JPEGLosslessSV1     = "1.2.840.10008.1.2.4.70"
	JPEGLSLossless      = "1.2.840.10008.1.2.4.80"
	JPEGLSNearLossless  = "1.2.840.10008.1.2.4.81"
	JPEG2000Lossless    = "1.2.840.10008.1.2.4.90"
	JPEG2000            = "1.2.840.10008.1.2.4.91"
	RLELossless         = "1.2.840.10008.1.2.5"
	HTJ2KLossless       = "1.2.840.10008.1.2.4.201"
	HTJ2K               = "1.2.840.10008.1.2.4.203"
)

// TransferSyntax carries the four flags spec.md §3 requires: explicit VR,
// big-endian, deflated, and whether pixel data is encapsulated.
type TransferSyntax struct {
	UID          string
	Name         string
	ExplicitVR   bool
	BigEndian    bool
	Deflated     bool
	Encapsulated bool
}

// DefaultTransferSyntax is Implicit VR Little Endian, the distinguished
// default named in spec.md §3.
var DefaultTransferSyntax = ImplicitVRLittleEndian

var transferSyntaxes = map[string]TransferSyntax{
	ImplicitVRLittleEndian: {ImplicitVRLittleEndian, "Implicit VR Little Endian", false, false, false, false},
	ExplicitVRLittleEndian: {ExplicitVRLittleEndian, "Explicit VR Little Endian", true, false, false, false},
	ExplicitVRBigEndian:    {ExplicitVRBigEndian, "Explicit VR Big Endian", true, true, false, false},
	DeflatedExplicitVRLittleEndian: {DeflatedExplicitVRLittleEndian, "Deflated Explicit VR Little Endian", true, false, true, false},

	JPEGBaseline8Bit:   {JPEGBaseline8Bit, "JPEG Baseline (Process 1)", true, false, false, true},
	JPEGExtended12Bit:  {JPEGExtended12Bit, "JPEG Extended (Process 2 & 4)", true, false, false, true},
	JPEGLossless:       {JPEGLossless, "JPEG Lossless (Process 14)", true, false, false, true},
	JPEGLosslessSV1:    {JPEGLosslessSV1, "JPEG Lossless, Non-Hierarchical, First-Order Prediction", true, false, false, true},
	JPEGLSLossless:     {JPEGLSLossless, "JPEG-LS Lossless", true, false, false, true},
	JPEGLSNearLossless: {JPEGLSNearLossless, "JPEG-LS Near-Lossless", true, false, false, true},
	JPEG2000Lossless:   {JPEG2000Lossless, "JPEG 2000 Lossless Only", true, false, false, true},
	JPEG2000:           {JPEG2000, "JPEG 2000", true, false, false, true},
	RLELossless:        {RLELossless, "RLE Lossless", true, false, false, true},
	HTJ2KLossless:      {HTJ2KLossless, "High-Throughput JPEG 2000 Lossless", true, false, false, true},
	HTJ2K:              {HTJ2K, "High-Throughput JPEG 2000", true, false, false, true},
}

// LookupTransferSyntax returns the registered flag-set for a UID, or the
// zero value and false when unknown. Callers negotiating an unrecognized
// transfer syntax should treat it as unsupported rather than guess flags.
func LookupTransferSyntax(u string) (TransferSyntax, bool) {
	ts, ok := transferSyntaxes[u]
	return ts, ok
}

// SOP class UIDs, a representative slice spanning the operations this
// module exercises end to end (verification, storage, query/retrieve).
const (
	VerificationSOPClass = "1.2.840.10008.1.1"

	CTImageStorage  = "1.2.840.10008.5.1.4.1.1.2"
	MRImageStorage  = "1.2.840.10008.5.1.4.1.1.4"
	SecondaryCaptureImageStorage = "1.2.840.10008.5.1.4.1.1.7"
	UltrasoundImageStorage       = "1.2.840.10008.5.1.4.1.1.6.1"

	StudyRootQueryRetrieveInformationModelFind = "1.2.840.10008.5.1.4.1.2.2.1"
	StudyRootQueryRetrieveInformationModelMove = "1.2.840.10008.5.1.4.1.2.2.2"
	StudyRootQueryRetrieveInformationModelGet  = "1.2.840.10008.5.1.4.1.2.2.3"

	PatientRootQueryRetrieveInformationModelFind = "1.2.840.10008.5.1.4.1.2.1.1"
	PatientRootQueryRetrieveInformationModelMove = "1.2.840.10008.5.1.4.1.2.1.2"
	PatientRootQueryRetrieveInformationModelGet  = "1.2.840.10008.5.1.4.1.2.1.3"

	ModalityWorklistInformationModelFind = "1.2.840.10008.5.1.4.31"
)

// Info is descriptive metadata about any UID this registry knows, used for
// logging and diagnostics.
type Info struct {
	UID      string
	Name     string
	Category Category
}

var registry = map[string]Info{
	ApplicationContextName: {ApplicationContextName, "DICOM Application Context Name", CategoryApplicationContext},
	VerificationSOPClass:   {VerificationSOPClass, "Verification SOP Class", CategorySOPClass},
	CTImageStorage:         {CTImageStorage, "CT Image Storage", CategorySOPClass},
	MRImageStorage:         {MRImageStorage, "MR Image Storage", CategorySOPClass},
	SecondaryCaptureImageStorage: {SecondaryCaptureImageStorage, "Secondary Capture Image Storage", CategorySOPClass},
	UltrasoundImageStorage:       {UltrasoundImageStorage, "Ultrasound Image Storage", CategorySOPClass},
	StudyRootQueryRetrieveInformationModelFind: {StudyRootQueryRetrieveInformationModelFind, "Study Root Query/Retrieve - FIND", CategorySOPClass},
	StudyRootQueryRetrieveInformationModelMove: {StudyRootQueryRetrieveInformationModelMove, "Study Root Query/Retrieve - MOVE", CategorySOPClass},
	StudyRootQueryRetrieveInformationModelGet:  {StudyRootQueryRetrieveInformationModelGet, "Study Root Query/Retrieve - GET", CategorySOPClass},
	PatientRootQueryRetrieveInformationModelFind: {PatientRootQueryRetrieveInformationModelFind, "Patient Root Query/Retrieve - FIND", CategorySOPClass},
	PatientRootQueryRetrieveInformationModelMove: {PatientRootQueryRetrieveInformationModelMove, "Patient Root Query/Retrieve - MOVE", CategorySOPClass},
	PatientRootQueryRetrieveInformationModelGet:  {PatientRootQueryRetrieveInformationModelGet, "Patient Root Query/Retrieve - GET", CategorySOPClass},
	ModalityWorklistInformationModelFind: {ModalityWorklistInformationModelFind, "Modality Worklist - FIND", CategorySOPClass},
}

func init() {
	for u, ts := range transferSyntaxes {
		registry[u] = Info{u, ts.Name, CategoryTransferSyntax}
	}
}

// Lookup returns descriptive info for any UID known to this registry.
func Lookup(u string) (Info, bool) {
	i, ok := registry[u]
	return i, ok
}

// CommonTransferSyntaxes lists the transfer syntaxes this module proposes
// by default, uncompressed first.
func CommonTransferSyntaxes() []string {
	return []string{
		ExplicitVRLittleEndian,
		ImplicitVRLittleEndian,
		JPEG2000Lossless,
		JPEGLosslessSV1,
		RLELossless,
	}
}
