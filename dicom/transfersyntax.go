package dicom

import "github.com/anthonypark/dicomgo/uid"

// ResolveTransferSyntax looks up the flag-set for a transfer-syntax UID,
// falling back to Implicit VR Little Endian's flags (all false) for an
// unrecognized UID so callers always get a usable endianness/VR-mode
// default rather than having to special-case "unknown".
func ResolveTransferSyntax(u string) (uid.TransferSyntax, bool) {
	if u == "" {
		u = uid.DefaultTransferSyntax
	}
	ts, ok := uid.LookupTransferSyntax(u)
	if !ok {
		return uid.TransferSyntax{UID: u, Name: "Unknown"}, false
	}
	return ts, true
}
