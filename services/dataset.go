package services

import (
	"bytes"
	"fmt"

	"github.com/anthonypark/dicomgo/dicom"
	dicomerrors "github.com/anthonypark/dicomgo/errors"
)

// encodeDataset renders ds as a bare (no Part10 preamble) dataset byte
// stream in transferSyntaxUID, ready to ride as a DIMSE dataset PDV.
func encodeDataset(ds *dicom.Dataset, transferSyntaxUID string) ([]byte, error) {
	if _, ok := dicom.ResolveTransferSyntax(transferSyntaxUID); !ok {
		return nil, &dicomerrors.UnknownTransferSyntaxError{UID: transferSyntaxUID}
	}
	var buf bytes.Buffer
	w := dicom.NewWriter(&buf, transferSyntaxUID)
	if err := w.WriteDataset(ds); err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("flush dataset: %w", err)
	}
	return buf.Bytes(), nil
}

// decodeDataset parses a bare dataset byte stream received as a DIMSE
// dataset PDV, in transferSyntaxUID.
func decodeDataset(data []byte, transferSyntaxUID string) (*dicom.Dataset, error) {
	if _, ok := dicom.ResolveTransferSyntax(transferSyntaxUID); !ok {
		return nil, &dicomerrors.UnknownTransferSyntaxError{UID: transferSyntaxUID}
	}
	p := dicom.NewParserWithTransferSyntax(bytes.NewReader(data), transferSyntaxUID)
	ds, err := p.Parse()
	if err != nil {
		return nil, fmt.Errorf("decode dataset: %w", err)
	}
	return ds, nil
}
