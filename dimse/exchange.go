package dimse

import (
	"fmt"

	"github.com/anthonypark/dicomgo/assoc"
	"github.com/anthonypark/dicomgo/pdu"
)

// pduOverhead is the byte cost of one P-DATA-TF PDU carrying a single
// PDV: 6-byte common PDU header, 4-byte PDV length, 1-byte context-id,
// 1-byte message-control-header.
const pduOverhead = 12

// Exchange drives the message stitching/chunking algorithm of
// spec.md §4.6 over an already-negotiated association: sending a
// Command (and optional dataset) as one or more PDVs bounded by the
// peer's negotiated max-PDU-receive length, and reconstructing a
// complete command+dataset pair from the incoming PDV stream.
type Exchange struct {
	assoc *assoc.Association
}

// NewExchange wraps a negotiated association for DIMSE message I/O.
func NewExchange(a *assoc.Association) *Exchange { return &Exchange{assoc: a} }

// TransferSyntaxFor returns the transfer syntax negotiated for
// contextID, so a handler can decode/encode the dataset PDVs it
// exchanges on that presentation context.
func (x *Exchange) TransferSyntaxFor(contextID byte) (string, error) {
	return x.assoc.TransferSyntaxFor(contextID)
}

// Send encodes cmd and writes it (and dataset, if non-nil) as PDVs on
// contextID, chunking each byte stream independently per spec.md §4.6's
// message-chunking algorithm.
func (x *Exchange) Send(contextID byte, cmd *Command, dataset []byte) error {
	commandBytes, err := cmd.Encode()
	if err != nil {
		return fmt.Errorf("encode command: %w", err)
	}
	if err := x.writeChunked(contextID, commandBytes, true); err != nil {
		return fmt.Errorf("write command PDVs: %w", err)
	}
	if len(dataset) > 0 {
		if err := x.writeChunked(contextID, dataset, false); err != nil {
			return fmt.Errorf("write dataset PDVs: %w", err)
		}
	}
	return nil
}

func (x *Exchange) chunkSize() int {
	max := int(x.assoc.PeerMaxPDULength())
	if max <= pduOverhead {
		return 1
	}
	return max - pduOverhead
}

func (x *Exchange) writeChunked(contextID byte, data []byte, isCommand bool) error {
	size := x.chunkSize()
	if len(data) == 0 {
		return x.assoc.WritePDV(pdu.PDV{ContextID: contextID, IsCommand: isCommand, LastFragment: true})
	}
	for offset := 0; offset < len(data); offset += size {
		end := offset + size
		if end > len(data) {
			end = len(data)
		}
		pdv := pdu.PDV{
			ContextID:    contextID,
			IsCommand:    isCommand,
			LastFragment: end == len(data),
			Value:        data[offset:end],
		}
		if err := x.assoc.WritePDV(pdv); err != nil {
			return err
		}
	}
	return nil
}

// Receive reconstructs one complete command+dataset message, stitching
// command PDVs and then dataset PDVs until each stream's last-fragment
// bit is seen, per spec.md §4.6's message-stitching algorithm. It
// returns the presentation-context-id of the last command PDV, the
// decoded command, and the raw dataset bytes (nil if the command's
// CommandDataSetType indicates none follows).
func (x *Exchange) Receive() (contextID byte, cmd *Command, dataset []byte, err error) {
	var commandBuf []byte
	for {
		pdv, err := x.assoc.ReadPDV()
		if err != nil {
			return 0, nil, nil, err
		}
		if !pdv.IsCommand {
			return 0, nil, nil, fmt.Errorf("expected command PDV, got dataset PDV on context %d", pdv.ContextID)
		}
		contextID = pdv.ContextID
		commandBuf = append(commandBuf, pdv.Value...)
		if pdv.LastFragment {
			break
		}
	}

	cmd, err = DecodeCommand(commandBuf)
	if err != nil {
		return 0, nil, nil, fmt.Errorf("decode command: %w", err)
	}
	if !cmd.HasDataset() {
		return contextID, cmd, nil, nil
	}

	var datasetBuf []byte
	for {
		pdv, err := x.assoc.ReadPDV()
		if err != nil {
			return 0, nil, nil, err
		}
		if pdv.IsCommand {
			return 0, nil, nil, fmt.Errorf("expected dataset PDV, got command PDV on context %d", pdv.ContextID)
		}
		datasetBuf = append(datasetBuf, pdv.Value...)
		if pdv.LastFragment {
			break
		}
	}
	return contextID, cmd, datasetBuf, nil
}
