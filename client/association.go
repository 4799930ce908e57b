// Package client implements the user (SCU) side of a DICOM upper-layer
// association: connecting, negotiating presentation contexts, and issuing
// the DIMSE services (C-ECHO, C-FIND, C-GET, C-MOVE sub-operations,
// C-STORE, C-CANCEL) over it. It is built entirely on the negotiation and
// message-stitching primitives in assoc and dimse rather than hand-rolling
// PDU bytes, mirroring how services.Echo and friends implement the
// provider side.
package client

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/anthonypark/dicomgo/assoc"
	"github.com/anthonypark/dicomgo/dimse"
	"github.com/anthonypark/dicomgo/uid"
)

// defaultMaxPDULength mirrors assoc.DefaultMaxPDULength; restated here so
// callers of this package don't need to import assoc just to read it.
const defaultMaxPDULength = assoc.DefaultMaxPDULength

// defaultAbstractSyntaxes is proposed when a Config doesn't name any: one
// context per entry, covering verification, the common storage SOP
// classes, and study-root query/retrieve.
var defaultAbstractSyntaxes = []string{
	uid.VerificationSOPClass,
	uid.CTImageStorage,
	uid.MRImageStorage,
	uid.SecondaryCaptureImageStorage,
	uid.UltrasoundImageStorage,
	uid.StudyRootQueryRetrieveInformationModelFind,
	uid.StudyRootQueryRetrieveInformationModelGet,
	uid.StudyRootQueryRetrieveInformationModelMove,
}

// Config configures an outgoing association request.
type Config struct {
	CallingAETitle string
	CalledAETitle  string
	MaxPDULength   uint32
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
	WriteTimeout   time.Duration
	Logger         *slog.Logger

	// AbstractSyntaxes are proposed one presentation context per entry, in
	// order. Defaults to defaultAbstractSyntaxes.
	AbstractSyntaxes []string

	// TransferSyntaxes are proposed for every abstract syntax. Defaults to
	// uid.CommonTransferSyntaxes().
	TransferSyntaxes []string
}

// Association is a negotiated association from the SCU side: the
// connection, the negotiated assoc.Association, a dimse.Exchange built
// over it, and a reverse lookup from abstract syntax to the
// presentation-context ID it was accepted on.
type Association struct {
	conn       net.Conn
	negotiated *assoc.Association
	exchange   *dimse.Exchange
	logger     *slog.Logger

	readTimeout  time.Duration
	writeTimeout time.Duration

	contextIDs map[string]byte
}

// Connect dials address, negotiates an association per cfg, and returns
// the ready Association. The caller must Close it when done.
func Connect(ctx context.Context, address string, cfg Config) (*Association, error) {
	if cfg.CallingAETitle == "" {
		return nil, fmt.Errorf("client: CallingAETitle is required")
	}
	if cfg.CalledAETitle == "" {
		return nil, fmt.Errorf("client: CalledAETitle is required")
	}

	abstractSyntaxes := cfg.AbstractSyntaxes
	if len(abstractSyntaxes) == 0 {
		abstractSyntaxes = defaultAbstractSyntaxes
	}
	transferSyntaxes := cfg.TransferSyntaxes
	if len(transferSyntaxes) == 0 {
		transferSyntaxes = uid.CommonTransferSyntaxes()
	}
	maxPDULength := cfg.MaxPDULength
	if maxPDULength == 0 {
		maxPDULength = defaultMaxPDULength
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	dialer := net.Dialer{Timeout: cfg.ConnectTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("client: dial %s: %w", address, err)
	}

	if cfg.ConnectTimeout > 0 {
		conn.SetDeadline(time.Now().Add(cfg.ConnectTimeout))
	}

	requestCfg := assoc.RequestConfig{
		CalledAETitle:         cfg.CalledAETitle,
		CallingAETitle:        cfg.CallingAETitle,
		ApplicationContextUID: uid.ApplicationContextName,
		AbstractSyntaxes:      abstractSyntaxes,
		TransferSyntaxes:      transferSyntaxes,
		MaxPDULength:          maxPDULength,
		Logger:                logger,
	}

	negotiated, err := assoc.Request(conn, requestCfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	conn.SetDeadline(time.Time{})

	contextIDs := make(map[string]byte, len(abstractSyntaxes))
	for i, as := range abstractSyntaxes {
		id := byte(2*i + 1)
		if _, err := negotiated.TransferSyntaxFor(id); err == nil {
			contextIDs[as] = id
		}
	}

	logger.Info("association established", "address", address, "called_ae", cfg.CalledAETitle, "accepted_contexts", len(contextIDs))

	return &Association{
		conn:         conn,
		negotiated:   negotiated,
		exchange:     dimse.NewExchange(negotiated),
		logger:       logger,
		readTimeout:  cfg.ReadTimeout,
		writeTimeout: cfg.WriteTimeout,
		contextIDs:   contextIDs,
	}, nil
}

// ContextID returns the presentation-context ID this association
// negotiated for abstractSyntax, or an error if that syntax wasn't
// proposed or was refused.
func (a *Association) ContextID(abstractSyntax string) (byte, error) {
	id, ok := a.contextIDs[abstractSyntax]
	if !ok {
		return 0, fmt.Errorf("client: no accepted presentation context for %s", abstractSyntax)
	}
	return id, nil
}

// TransferSyntaxFor returns the negotiated transfer syntax for
// abstractSyntax's context.
func (a *Association) TransferSyntaxFor(abstractSyntax string) (string, error) {
	id, err := a.ContextID(abstractSyntax)
	if err != nil {
		return "", err
	}
	return a.negotiated.TransferSyntaxFor(id)
}

// Exchange returns the DIMSE message-stitching layer built over this
// association, for services that need to send and receive more than one
// message (C-FIND/C-GET/C-MOVE's pending responses, C-GET's interleaved
// C-STORE sub-operations).
func (a *Association) Exchange() *dimse.Exchange { return a.exchange }

func (a *Association) withDeadlines() func() {
	now := time.Now()
	if a.readTimeout > 0 || a.writeTimeout > 0 {
		d := a.readTimeout
		if a.writeTimeout > d {
			d = a.writeTimeout
		}
		a.conn.SetDeadline(now.Add(d))
	}
	return func() { a.conn.SetDeadline(time.Time{}) }
}

// send stamps the association's per-call deadline, if any, and writes cmd
// (plus dataset, if any) on contextID.
func (a *Association) send(contextID byte, cmd *dimse.Command, dataset []byte) error {
	defer a.withDeadlines()()
	return a.exchange.Send(contextID, cmd, dataset)
}

func (a *Association) receive() (byte, *dimse.Command, []byte, error) {
	defer a.withDeadlines()()
	return a.exchange.Receive()
}

// Release performs a user-initiated A-RELEASE and closes the connection.
func (a *Association) Release() error {
	if err := a.negotiated.Release(); err != nil {
		a.conn.Close()
		return err
	}
	return a.conn.Close()
}

// Abort writes an A-ABORT and closes the connection immediately, for use
// on unrecoverable protocol faults.
func (a *Association) Abort(source, reason byte) error {
	return a.negotiated.Abort(source, reason)
}

// Close closes the underlying connection without a protocol exchange; use
// Release for a clean shutdown.
func (a *Association) Close() error { return a.conn.Close() }
