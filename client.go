package modbus

import (
	"fmt"
	"log"
	"time"
)

// ClientOption configures a Client at construction time.
type ClientOption func(*Client)

// WithLogger overrides the logger used for stale-frame warnings. The
// default is log.Default().
func WithLogger(l *log.Logger) ClientOption {
	return func(c *Client) { c.logger = l }
}

// Client is one logical session over a single transport: it serializes a
// queue of requests, assigns transaction ids, reads frames, matches
// responses to the outstanding request, and enforces per-request
// deadlines. A Client is single-use: once Run returns, the Client (and its
// Transport) must be discarded.
type Client struct {
	transport Transport
	requests  <-chan *Request
	logger    *log.Logger

	nextTxId  TxId
	formatter Formatter
	parser    Parser
}

// NewClient builds a client session over transport, consuming requests
// from the given channel. The caller owns the channel and signals
// Shutdown by closing it; the caller also owns the transport and closes
// it once Run returns.
func NewClient(transport Transport, requests <-chan *Request, opts ...ClientOption) *Client {
	c := &Client{
		transport: transport,
		requests:  requests,
		logger:    log.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type frameResult struct {
	frame Frame
	err   error
}

// Run drives the session loop until the request queue is closed (returns
// ErrShutdown) or a session-fatal error occurs (IoError or BadFrame,
// returned as-is so the caller can distinguish them with errors.As).
func (c *Client) Run() error {
	frames := make(chan frameResult)
	done := make(chan struct{})
	defer close(done)

	// The reader outlives the request that was in flight when Run returns:
	// it may be blocked inside NextFrame until the caller closes the
	// transport per NewClient's contract. done lets it notice Run has
	// already returned instead of blocking forever trying to send on
	// frames, which no one is receiving from anymore.
	go func() {
		for {
			f, err := c.parser.NextFrame(c.transport)
			select {
			case frames <- frameResult{frame: f, err: err}:
			case <-done:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		req, ok := <-c.requests
		if !ok {
			return ErrShutdown
		}
		if err := c.runOneRequest(req, frames); err != nil {
			return err
		}
	}
}

// runOneRequest writes one request and waits for its matching response (or
// timeout, or a fatal transport/framing error). It returns non-nil only
// for session-fatal conditions; timeouts and decode failures resolve the
// request and return nil so the loop continues with the next request.
func (c *Client) runOneRequest(req *Request, frames <-chan frameResult) error {
	txId := c.nextTxId
	c.nextTxId = c.nextTxId.next()

	bytes, err := c.formatter.Format(Header{UnitId: req.UnitId, TxId: txId}, req.encode())
	if err != nil {
		req.fail(err)
		return nil
	}
	if err := writeAll(c.transport, bytes); err != nil {
		req.fail(err)
		return err
	}

	deadline := time.NewTimer(req.Timeout)
	defer deadline.Stop()

	for {
		select {
		case <-deadline.C:
			req.fail(ErrResponseTimeout)
			return nil
		case fr := <-frames:
			if fr.err != nil {
				req.fail(fr.err)
				return fr.err
			}
			if fr.frame.Header.TxId != txId {
				c.logger.Printf("modbus: discarding frame for stale tx id %d (expecting %d)", fr.frame.Header.TxId, txId)
				continue
			}
			if len(fr.frame.Payload) < 1 {
				req.fail(&ProtocolError{Kind: InvalidByteCount})
				return nil
			}
			fc := FunctionCode(fr.frame.Payload[0])
			req.HandleResponse(fc, fr.frame.Payload[1:])
			return nil
		}
	}
}

// Drain puts the session into fail-fast mode: for up to d, every request
// received from the queue is immediately resolved with ErrNoConnection
// instead of being sent anywhere. It returns once the deadline elapses or
// the queue is closed. Intended to be invoked by the supervisor right
// after Run returns a fatal error, so producers blocked on a Future don't
// wait indefinitely for a session that no longer exists.
func (c *Client) Drain(d time.Duration) {
	deadline := time.After(d)
	for {
		select {
		case <-deadline:
			return
		case req, ok := <-c.requests:
			if !ok {
				return
			}
			req.fail(ErrNoConnection)
		}
	}
}

func (c *Client) String() string {
	return fmt.Sprintf("modbus.Client{nextTxId=%d}", c.nextTxId)
}
