// Package conn is the connection engine: a dispatcher that multiplexes
// in-flight requests over one duplex transport by stream id, and a
// session that drives the startup handshake and exposes the
// execute/prepare/register surface on top of it.
package conn

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cqlwire/cqlwire/cqlerr"
	"github.com/cqlwire/cqlwire/frame"
	"github.com/cqlwire/cqlwire/message"
	"github.com/cqlwire/cqlwire/wire"
)

// maxStreams is the full stream-id space of one connection: ids
// [0, 32767]. Id -1 is reserved for server-initiated events and never
// enters the pool.
const maxStreams = 32768

// eventStreamID marks server-initiated frames.
const eventStreamID int16 = -1

// State is the connection lifecycle position.
type State int32

const (
	StateConnecting State = iota
	StateStartupSent
	StateReady
	StateAuthRequired
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "Connecting"
	case StateStartupSent:
		return "StartupSent"
	case StateReady:
		return "Ready"
	case StateAuthRequired:
		return "AuthRequired"
	case StateClosed:
		return "Closed"
	}
	return fmt.Sprintf("UnknownState(%d)", int32(s))
}

// delivery is what a waiter receives: a decoded response, or the fatal
// error that tore the connection down.
type delivery struct {
	resp message.Response
	err  error
}

// waiter is the pending sink for one in-flight stream id.
type waiter struct {
	ch chan delivery // buffered; delivery never blocks the read loop
}

type writeRequest struct {
	stream       int16
	opcode       byte
	body         []byte
	compressible bool
}

// Conn owns one transport and multiplexes requests over it. Stream ids
// are leased FIFO from a free pool, each with exactly one waiter;
// responses are routed back by id, events fan out to subscribers.
type Conn struct {
	transport io.Closer
	framer    *frame.Framer
	log       *logrus.Entry

	// streams is the free pool. FIFO reuse maximises the time between
	// two uses of the same id, which keeps log correlation sane.
	streams chan int16

	mu       sync.Mutex
	state    State
	fatalErr error
	waiters  map[int16]*waiter

	writeCh chan writeRequest
	done    chan struct{}

	events *eventRegistry
}

func newConn(transport io.ReadWriteCloser, maxFrameSize uint32, streamLimit int, log *logrus.Entry) *Conn {
	if streamLimit <= 0 || streamLimit > maxStreams {
		streamLimit = maxStreams
	}
	streams := make(chan int16, streamLimit)
	for i := 0; i < streamLimit; i++ {
		streams <- int16(i) //nolint:gosec // bounded by maxStreams
	}
	c := &Conn{
		transport: transport,
		framer:    frame.NewFramer(transport, maxFrameSize),
		log:       log,
		streams:   streams,
		state:     StateConnecting,
		waiters:   make(map[int16]*waiter),
		writeCh:   make(chan writeRequest),
		done:      make(chan struct{}),
		events:    newEventRegistry(log),
	}
	go c.readLoop()
	go c.writeLoop()
	return c
}

// State reports the current lifecycle position.
func (c *Conn) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Conn) setState(s State) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	old := c.state
	c.state = s
	c.mu.Unlock()
	c.log.WithFields(logrus.Fields{"from": old.String(), "to": s.String()}).Debug("conn: state change")
}

// closedErr returns the error submissions observe once the connection
// is down.
func (c *Conn) closedErr() error {
	c.mu.Lock()
	err := c.fatalErr
	c.mu.Unlock()
	if err == nil {
		err = cqlerr.New(cqlerr.ConnectionClosed, "conn: connection closed")
	}
	return err
}

// submit encodes a request, leases a stream id (suspending while the
// pool is empty), queues the frame for write, and blocks until the
// matching response is routed back. handshake permits submission
// before the connection reaches Ready.
func (c *Conn) submit(ctx context.Context, req message.Request, handshake bool) (message.Response, error) {
	w := wire.NewWriter()
	if err := req.EncodeBody(w); err != nil {
		return nil, err
	}

	c.mu.Lock()
	switch {
	case c.state == StateClosed:
		c.mu.Unlock()
		return nil, c.closedErr()
	case !handshake && c.state != StateReady:
		st := c.state
		c.mu.Unlock()
		return nil, cqlerr.New(cqlerr.ConnectionClosed, "conn: connection is not ready (state %s)", st)
	}
	c.mu.Unlock()

	var stream int16
	select {
	case stream = <-c.streams:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closedErr()
	}

	wt := &waiter{ch: make(chan delivery, 1)}
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		c.release(stream)
		return nil, c.closedErr()
	}
	c.waiters[stream] = wt
	c.mu.Unlock()

	wr := writeRequest{stream: stream, opcode: byte(req.Opcode()), body: w.Bytes(), compressible: req.CanCompress()}
	select {
	case c.writeCh <- wr:
	case <-ctx.Done():
		// Nothing was written; the id can be taken back immediately.
		c.abandon(stream)
		return nil, ctx.Err()
	case <-c.done:
		return nil, c.closedErr()
	}

	select {
	case d := <-wt.ch:
		if d.err != nil {
			return nil, d.err
		}
		return d.resp, nil
	case <-ctx.Done():
		// The frame is on the wire and the server cannot be told to
		// abort; the id stays leased until its response arrives and is
		// dropped.
		return nil, ctx.Err()
	}
}

// abandon removes a waiter whose frame never reached the write queue.
func (c *Conn) abandon(stream int16) {
	c.mu.Lock()
	delete(c.waiters, stream)
	c.mu.Unlock()
	c.release(stream)
}

func (c *Conn) release(stream int16) {
	select {
	case c.streams <- stream:
	default:
		// Impossible while the lease discipline holds: the pool has
		// capacity for every id ever handed out.
	}
}

func (c *Conn) writeLoop() {
	for {
		select {
		case wr := <-c.writeCh:
			if err := c.framer.WriteFrame(wr.stream, wr.opcode, wr.body, wr.compressible); err != nil {
				c.fatal(err)
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Conn) readLoop() {
	for {
		h, body, err := c.framer.ReadFrame()
		if err != nil {
			c.fatal(err)
			return
		}

		r := wire.NewReader(body)
		pro, err := message.ReadPrologue(h.Flags, r)
		if err != nil {
			c.fatal(err)
			return
		}
		op := message.Opcode(h.Opcode)
		for _, warn := range pro.Warnings {
			c.log.WithFields(logrus.Fields{"stream": h.Stream, "opcode": op.String()}).Warnf("conn: server warning: %s", warn)
		}

		resp, extra, err := message.DecodeResponse(op, r)
		if err != nil {
			c.fatal(err)
			return
		}
		if extra > 0 {
			// Tolerated, but worth a trace: the body declared more
			// bytes than the message consumed.
			c.log.WithFields(logrus.Fields{"stream": h.Stream, "opcode": op.String(), "extra_bytes": extra}).Warn("conn: trailing bytes in frame body")
		}

		ev, isEvent := resp.(message.Event)
		if h.Stream == eventStreamID {
			if !isEvent {
				c.fatal(cqlerr.New(cqlerr.ProtocolViolation, "conn: frame on the event stream carries %s", op))
				return
			}
			c.events.dispatch(ev)
			continue
		}
		if isEvent {
			c.fatal(cqlerr.New(cqlerr.ProtocolViolation, "conn: EVENT frame on request stream %d", h.Stream))
			return
		}

		c.mu.Lock()
		wt, ok := c.waiters[h.Stream]
		if ok {
			delete(c.waiters, h.Stream)
		}
		c.mu.Unlock()
		if !ok {
			c.fatal(cqlerr.New(cqlerr.ProtocolViolation, "conn: response on unallocated stream %d", h.Stream))
			return
		}
		c.release(h.Stream)
		wt.ch <- delivery{resp: resp}
	}
}

// fatal moves the connection to Closed exactly once, closes the
// transport, and fails every outstanding waiter with the same error.
// Protocol-level ERROR responses never come through here; they are
// routed to their waiter like any result.
func (c *Conn) fatal(err error) {
	c.mu.Lock()
	if c.state == StateClosed {
		c.mu.Unlock()
		return
	}
	c.state = StateClosed
	c.fatalErr = err
	waiters := c.waiters
	c.waiters = make(map[int16]*waiter)
	c.mu.Unlock()

	c.log.WithError(err).Debug("conn: connection closed")
	close(c.done)
	_ = c.transport.Close()
	for _, wt := range waiters {
		select {
		case wt.ch <- delivery{err: err}:
		default:
		}
	}
	c.events.closeAll(err)
}

// Close tears the connection down, cancelling every outstanding waiter
// with ConnectionClosed.
func (c *Conn) Close() error {
	c.fatal(cqlerr.New(cqlerr.ConnectionClosed, "conn: connection closed"))
	return nil
}
