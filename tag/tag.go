// Package tag defines the DICOM tag type and the static tag dictionary.
package tag

import "fmt"

// Tag is a DICOM data element identifier: a 16-bit group paired with a
// 16-bit element.
type Tag struct {
	Group   uint16
	Element uint16
}

// String renders the tag in the standard (GGGG,EEEE) form.
func (t Tag) String() string {
	return fmt.Sprintf("(%04X,%04X)", t.Group, t.Element)
}

// Distinguished tags that carry framing meaning rather than data-element
// meaning. Item, ItemDelimitationItem and SequenceDelimitationItem are
// always encoded Implicit VR Little Endian regardless of the surrounding
// transfer syntax.
var (
	Item                   = Tag{Group: 0xFFFE, Element: 0xE000}
	ItemDelimitationItem   = Tag{Group: 0xFFFE, Element: 0xE00D}
	SequenceDelimitationItem = Tag{Group: 0xFFFE, Element: 0xE0DD}
	PixelData              = Tag{Group: 0x7FE0, Element: 0x0010}
)

// FileMetaInformationGroupLength is always the first element of the
// file-meta block.
var FileMetaInformationGroupLength = Tag{Group: 0x0002, Element: 0x0000}

// TransferSyntaxUID names the transfer syntax used for the main dataset.
var TransferSyntaxUID = Tag{Group: 0x0002, Element: 0x0010}

// SpecificCharacterSet carries the character set(s) in effect from that
// point in the dataset (or sequence item) forward.
var SpecificCharacterSet = Tag{Group: 0x0008, Element: 0x0005}

// IsPrivateCreator reports whether this tag sits in a private-creator data
// element slot: an odd group number with element in [0x0010, 0x00FF].
func (t Tag) IsPrivateCreator() bool {
	return t.Group%2 == 1 && t.Element >= 0x0010 && t.Element <= 0x00FF
}

// IsPrivate reports whether the tag's group is a private (odd) group.
func (t Tag) IsPrivate() bool {
	return t.Group%2 == 1
}

// Entry is the dictionary metadata for a well-known tag.
type Entry struct {
	Tag         Tag
	Keyword     string
	VR          string // canonical/implicit VR; multiple VRs joined with "_" if ambiguous
	Name        string
	VM          string // value multiplicity, e.g. "1", "1-n", "2-2n"
}

// Dictionary is the process-wide, read-only tag->metadata table. It is
// keyed by tag value, not by keyword, per the Open Question decision in
// DESIGN.md: several retired tags collide on keyword after sanitization,
// so keying by tag avoids needing to reproduce the source's retired-tag
// allowlist.
var Dictionary = map[Tag]Entry{}

// ByKeyword is a secondary, non-authoritative index for lookups by
// identifier string. It is not consulted during parsing.
var ByKeyword = map[string]Entry{}

func register(e Entry) {
	Dictionary[e.Tag] = e
	if e.Keyword != "" {
		ByKeyword[e.Keyword] = e
	}
}

// Lookup returns the dictionary entry for a tag and whether it was found.
func Lookup(t Tag) (Entry, bool) {
	e, ok := Dictionary[t]
	return e, ok
}

// VRFor returns the implicit VR for a well-known tag, falling back to UN
// when the tag is not in the dictionary (per spec.md §3/§9: implicit-VR
// parsing needs a runtime tag->VR lookup; failure falls back to UN).
func VRFor(t Tag) string {
	if e, ok := Dictionary[t]; ok {
		return e.VR
	}
	return "UN"
}

func init() {
	// A representative slice of Part 6's tag dictionary, covering the
	// elements exercised by the file-meta block, the association/DIMSE
	// command set, and the common patient/study/series/image IEs used in
	// the end-to-end scenarios. Generation of the full several-thousand
	// row table from the standard's published data is an external
	// collaborator per spec.md §1; this is the seed a generator would
	// otherwise populate.
	entries := []Entry{
		{FileMetaInformationGroupLength, "FileMetaInformationGroupLength", "UL", "File Meta Information Group Length", "1"},
		{Tag{0x0002, 0x0001}, "FileMetaInformationVersion", "OB", "File Meta Information Version", "1"},
		{Tag{0x0002, 0x0002}, "MediaStorageSOPClassUID", "UI", "Media Storage SOP Class UID", "1"},
		{Tag{0x0002, 0x0003}, "MediaStorageSOPInstanceUID", "UI", "Media Storage SOP Instance UID", "1"},
		{TransferSyntaxUID, "TransferSyntaxUID", "UI", "Transfer Syntax UID", "1"},
		{Tag{0x0002, 0x0012}, "ImplementationClassUID", "UI", "Implementation Class UID", "1"},
		{Tag{0x0002, 0x0013}, "ImplementationVersionName", "SH", "Implementation Version Name", "1"},
		{Tag{0x0002, 0x0016}, "SourceApplicationEntityTitle", "AE", "Source Application Entity Title", "1"},

		{SpecificCharacterSet, "SpecificCharacterSet", "CS", "Specific Character Set", "1-n"},
		{Tag{0x0008, 0x0016}, "SOPClassUID", "UI", "SOP Class UID", "1"},
		{Tag{0x0008, 0x0018}, "SOPInstanceUID", "UI", "SOP Instance UID", "1"},
		{Tag{0x0008, 0x0020}, "StudyDate", "DA", "Study Date", "1"},
		{Tag{0x0008, 0x0030}, "StudyTime", "TM", "Study Time", "1"},
		{Tag{0x0008, 0x0050}, "AccessionNumber", "SH", "Accession Number", "1"},
		{Tag{0x0008, 0x0060}, "Modality", "CS", "Modality", "1"},
		{Tag{0x0008, 0x0090}, "ReferringPhysicianName", "PN", "Referring Physician's Name", "1"},
		{Tag{0x0008, 0x0201}, "TimezoneOffsetFromUTC", "SH", "Timezone Offset From UTC", "1"},
		{Tag{0x0008, 0x1030}, "StudyDescription", "LO", "Study Description", "1"},
		{Tag{0x0008, 0x103E}, "SeriesDescription", "LO", "Series Description", "1"},

		{Tag{0x0010, 0x0010}, "PatientName", "PN", "Patient's Name", "1"},
		{Tag{0x0010, 0x0020}, "PatientID", "LO", "Patient ID", "1"},
		{Tag{0x0010, 0x0030}, "PatientBirthDate", "DA", "Patient's Birth Date", "1"},
		{Tag{0x0010, 0x0040}, "PatientSex", "CS", "Patient's Sex", "1"},

		{Tag{0x0020, 0x000D}, "StudyInstanceUID", "UI", "Study Instance UID", "1"},
		{Tag{0x0020, 0x000E}, "SeriesInstanceUID", "UI", "Series Instance UID", "1"},
		{Tag{0x0020, 0x0010}, "StudyID", "SH", "Study ID", "1"},
		{Tag{0x0020, 0x0011}, "SeriesNumber", "IS", "Series Number", "1"},
		{Tag{0x0020, 0x0013}, "InstanceNumber", "IS", "Instance Number", "1"},

		{Tag{0x0028, 0x0002}, "SamplesPerPixel", "US", "Samples per Pixel", "1"},
		{Tag{0x0028, 0x0004}, "PhotometricInterpretation", "CS", "Photometric Interpretation", "1"},
		{Tag{0x0028, 0x0010}, "Rows", "US", "Rows", "1"},
		{Tag{0x0028, 0x0011}, "Columns", "US", "Columns", "1"},
		{Tag{0x0028, 0x0100}, "BitsAllocated", "US", "Bits Allocated", "1"},
		{Tag{0x0028, 0x0101}, "BitsStored", "US", "Bits Stored", "1"},
		{Tag{0x0028, 0x0102}, "HighBit", "US", "High Bit", "1"},
		{Tag{0x0028, 0x0103}, "PixelRepresentation", "US", "Pixel Representation", "1"},

		{Tag{0x0004, 0x1220}, "DirectoryRecordSequence", "SQ", "Directory Record Sequence", "1"},

		{PixelData, "PixelData", "OW_OB", "Pixel Data", "1"},

		// DIMSE command group (0000,xxxx), always Implicit VR Little Endian.
		{Tag{0x0000, 0x0002}, "AffectedSOPClassUID", "UI", "Affected SOP Class UID", "1"},
		{Tag{0x0000, 0x0003}, "RequestedSOPClassUID", "UI", "Requested SOP Class UID", "1"},
		{Tag{0x0000, 0x0100}, "CommandField", "US", "Command Field", "1"},
		{Tag{0x0000, 0x0110}, "MessageID", "US", "Message ID", "1"},
		{Tag{0x0000, 0x0120}, "MessageIDBeingRespondedTo", "US", "Message ID Being Responded To", "1"},
		{Tag{0x0000, 0x0600}, "MoveDestination", "AE", "Move Destination", "1"},
		{Tag{0x0000, 0x0700}, "Priority", "US", "Priority", "1"},
		{Tag{0x0000, 0x0800}, "CommandDataSetType", "US", "Command Data Set Type", "1"},
		{Tag{0x0000, 0x0900}, "Status", "US", "Status", "1"},
		{Tag{0x0000, 0x0901}, "OffendingElement", "AT", "Offending Element", "1-n"},
		{Tag{0x0000, 0x0902}, "ErrorComment", "LO", "Error Comment", "1"},
		{Tag{0x0000, 0x0903}, "ErrorID", "US", "Error ID", "1"},
		{Tag{0x0000, 0x1000}, "AffectedSOPInstanceUID", "UI", "Affected SOP Instance UID", "1"},
		{Tag{0x0000, 0x1001}, "RequestedSOPInstanceUID", "UI", "Requested SOP Instance UID", "1"},
		{Tag{0x0000, 0x1002}, "EventTypeID", "US", "Event Type ID", "1"},
		{Tag{0x0000, 0x1005}, "AttributeIdentifierList", "AT", "Attribute Identifier List", "1-n"},
		{Tag{0x0000, 0x1008}, "ActionTypeID", "US", "Action Type ID", "1"},
		{Tag{0x0000, 0x1020}, "NumberOfRemainingSuboperations", "US", "Number of Remaining Sub-operations", "1"},
		{Tag{0x0000, 0x1021}, "NumberOfCompletedSuboperations", "US", "Number of Completed Sub-operations", "1"},
		{Tag{0x0000, 0x1022}, "NumberOfFailedSuboperations", "US", "Number of Failed Sub-operations", "1"},
		{Tag{0x0000, 0x1023}, "NumberOfWarningSuboperations", "US", "Number of Warning Sub-operations", "1"},
		{Tag{0x0000, 0x1030}, "MoveOriginatorApplicationEntityTitle", "AE", "Move Originator Application Entity Title", "1"},
		{Tag{0x0000, 0x1031}, "MoveOriginatorMessageID", "US", "Move Originator Message ID", "1"},
	}
	for _, e := range entries {
		register(e)
	}
}
