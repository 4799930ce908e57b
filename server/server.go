// Package server implements the DICOM service-provider listener: a TCP
// accept loop handing each association to a fixed-size worker pool,
// spec.md §5. The codec and PDU layers underneath are strictly
// single-threaded and sequential over their byte source; this package is
// the only place concurrency is introduced, and it introduces exactly one
// worker per concurrently open association, up to WorkerPoolSize.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/anthonypark/dicomgo/assoc"
	"github.com/anthonypark/dicomgo/dimse"
)

// DefaultWorkerPoolSize is used when a Server doesn't set one.
const DefaultWorkerPoolSize = 16

// Option configures a Server instance.
type Option func(*Server)

// WithLogger overrides the logger used by the server.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.Logger = logger
	}
}

// WithReadTimeout sets the read timeout applied once an association is
// handed to a worker.
func WithReadTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.ReadTimeout = timeout
	}
}

// WithWriteTimeout sets the write timeout applied once an association is
// handed to a worker.
func WithWriteTimeout(timeout time.Duration) Option {
	return func(s *Server) {
		s.WriteTimeout = timeout
	}
}

// WithWorkerPoolSize sets the number of associations this server services
// concurrently; additional accepted connections wait for a free worker.
func WithWorkerPoolSize(size int) Option {
	return func(s *Server) {
		s.WorkerPoolSize = size
	}
}

// Server is a DICOM service provider: the negotiation policy every
// incoming association is checked against, the dispatch table driving
// each association's message loop, and a fixed-size worker pool, per
// spec.md §5 ("thread pool of fixed size configured by the operator;
// each association is handled by one worker for its entire lifetime, and
// is otherwise isolated").
type Server struct {
	AETitle        string
	AssocConfig    assoc.Config
	Router         *dimse.Router
	Logger         *slog.Logger
	ReadTimeout    time.Duration // applied once per association (default: none)
	WriteTimeout   time.Duration // applied once per association (default: none)
	WorkerPoolSize int           // default: DefaultWorkerPoolSize
}

// New builds a Server with the given AE title, association-negotiation
// policy, and command dispatch table.
func New(aeTitle string, assocConfig assoc.Config, router *dimse.Router, opts ...Option) *Server {
	if assocConfig.CalledAETitle == "" {
		assocConfig.CalledAETitle = aeTitle
	}
	srv := &Server{
		AETitle:        aeTitle,
		AssocConfig:    assocConfig,
		Router:         router,
		WorkerPoolSize: DefaultWorkerPoolSize,
	}
	for _, opt := range opts {
		opt(srv)
	}
	return srv
}

// ListenAndServe listens on address and serves until ctx is done or an
// unrecoverable error occurs.
func ListenAndServe(ctx context.Context, address string, srv *Server) error {
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return err
	}
	defer listener.Close()
	return srv.Serve(ctx, listener)
}

// Serve accepts connections from listener and hands each to the worker
// pool until ctx is cancelled or an unrecoverable accept error occurs.
// Once the pool's WorkerPoolSize associations are all busy, the loop
// accepts one more connection and then blocks handing it off until a
// worker frees up; no further connections are accepted meanwhile. A slow
// or hung peer costs the pool one worker.
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	if listener == nil {
		return errors.New("dicomserver: listener is required")
	}
	if s == nil {
		return errors.New("dicomserver: server is nil")
	}
	if s.Router == nil {
		return errors.New("dicomserver: router is required")
	}
	if s.AETitle == "" {
		return errors.New("dicomserver: AE title is required")
	}

	logger := s.logger()
	poolSize := s.WorkerPoolSize
	if poolSize <= 0 {
		poolSize = DefaultWorkerPoolSize
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	logger.Info("DICOM server listening",
		"address", listener.Addr().String(),
		"ae_title", s.AETitle,
		"worker_pool_size", poolSize)

	conns := make(chan net.Conn)
	var wg sync.WaitGroup
	for i := 0; i < poolSize; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for conn := range conns {
				s.handleConnection(ctx, conn, logger, workerID)
			}
		}(i)
	}

	var serveErr error
	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				logger.Warn("accept timeout", "error", err)
				continue
			}
			serveErr = err
			break
		}

		select {
		case conns <- conn:
		case <-ctx.Done():
			conn.Close()
		}
	}

	close(conns)
	wg.Wait()

	if serveErr != nil {
		return serveErr
	}
	return ctx.Err()
}

func (s *Server) handleConnection(ctx context.Context, conn net.Conn, logger *slog.Logger, workerID int) {
	defer conn.Close()

	logger.Info("accepted connection", "remote_addr", conn.RemoteAddr(), "worker", workerID)

	if s.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(time.Now().Add(s.ReadTimeout)); err != nil {
			logger.Warn("failed to set read deadline", "error", err)
		}
	}
	if s.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(time.Now().Add(s.WriteTimeout)); err != nil {
			logger.Warn("failed to set write deadline", "error", err)
		}
	}

	association, err := assoc.Accept(conn, s.AssocConfig)
	if err != nil {
		logger.Warn("association rejected", "error", err, "remote_addr", conn.RemoteAddr())
		return
	}

	if err := s.Router.Serve(ctx, association); err != nil && ctx.Err() == nil {
		logger.Warn("association ended with error", "error", err, "remote_addr", conn.RemoteAddr())
		return
	}
	logger.Info("association released", "remote_addr", conn.RemoteAddr())
}

func (s *Server) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}
