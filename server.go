package modbus

import (
	"context"
	"log"
	"net"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// defaultMaxSessions bounds how many accepted connections run
// concurrently, giving a concrete shape to the "small thread pool" the
// core's concurrency model describes without spawning goroutines without
// limit.
const defaultMaxSessions = 64

// ServerOption configures a Server at construction time.
type ServerOption func(*Server)

// WithServerLogger overrides the logger used for per-connection teardown
// diagnostics. The default is log.Default().
func WithServerLogger(l *log.Logger) ServerOption {
	return func(s *Server) { s.logger = l }
}

// WithMaxSessions bounds the number of connections served concurrently.
func WithMaxSessions(n int64) ServerOption {
	return func(s *Server) { s.maxSessions = n }
}

// Server accepts connections on a listener, reads framed requests off
// each, looks up the unit id in its device map, invokes the matching
// handler, and writes the framed response. Each accepted connection runs
// an independent session; handlers may be invoked concurrently from any
// of them.
type Server struct {
	logger      *log.Logger
	maxSessions int64
}

// NewServer returns a Server ready to Serve.
func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		logger:      log.Default(),
		maxSessions: defaultMaxSessions,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Serve accepts connections from listener until ctx is canceled or the
// listener errors. devices is moved into the server: AddEndpoint calls
// made to it once Serve has started have no effect on this running server.
func (s *Server) Serve(ctx context.Context, listener net.Listener, devices *DeviceMap) error {
	bound := devices.take()

	// wg tracks every session goroutine, mirroring the teacher's
	// sync.WaitGroup around its accept loop: the semaphore only bounds how
	// many run concurrently, it does not tell Serve when the last one has
	// finished. Without joining wg before destroy, a session could still be
	// calling into a handler after its Destroy hook has already fired.
	var wg sync.WaitGroup

	sem := semaphore.NewWeighted(s.maxSessions)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		<-gctx.Done()
		return listener.Close()
	})

	g.Go(func() error {
		for {
			conn, err := listener.Accept()
			if err != nil {
				select {
				case <-gctx.Done():
					return nil
				default:
					return &IoError{Op: "accept", Err: err}
				}
			}
			if err := sem.Acquire(gctx, 1); err != nil {
				conn.Close()
				return nil
			}
			wg.Add(1)
			sessionDone := make(chan struct{})
			// handleConnection has no ctx parameter of its own, so a
			// connection with no traffic would otherwise block on its read
			// forever; this watcher forces the conn closed (and the read
			// to error out) as soon as Serve is asked to stop, the same
			// job the teacher's ctx-aware connection.listen did.
			go func() {
				select {
				case <-gctx.Done():
					conn.Close()
				case <-sessionDone:
				}
			}()
			go func() {
				defer wg.Done()
				defer close(sessionDone)
				defer sem.Release(1)
				defer conn.Close()
				s.handleConnection(conn, bound)
			}()
		}
	})

	err := g.Wait()
	wg.Wait()
	bound.destroy()
	return err
}

// handleConnection runs one server session to completion: read a frame,
// dispatch it, write the reply, repeat until the transport errors or a
// frame can no longer be reliably delimited.
func (s *Server) handleConnection(transport Transport, devices *boundDeviceMap) {
	var parser Parser
	var formatter Formatter

	for {
		frame, err := parser.NextFrame(transport)
		if err != nil {
			s.logger.Printf("modbus: session ended: %v", err)
			return
		}

		handler, _ := devices.get(frame.Header.UnitId)
		reply := dispatch(handler, frame.Payload)

		adu, err := formatter.Format(frame.Header, reply)
		if err != nil {
			s.logger.Printf("modbus: failed to format reply: %v", err)
			return
		}
		if err := writeAll(transport, adu); err != nil {
			s.logger.Printf("modbus: write failed: %v", err)
			return
		}
	}
}
