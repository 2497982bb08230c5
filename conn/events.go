package conn

import (
	"context"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/cqlwire/cqlwire/cqlerr"
	"github.com/cqlwire/cqlwire/message"
)

// eventRegistry fans server-pushed events out to subscribers. Each
// subscriber names the event categories it wants; delivery preserves
// the server's emission order per subscriber.
type eventRegistry struct {
	log *logrus.Entry

	mu   sync.Mutex
	subs []*EventStream
}

func newEventRegistry(log *logrus.Entry) *eventRegistry {
	return &eventRegistry{log: log}
}

func (reg *eventRegistry) subscribe(types []string, buffer int) *EventStream {
	s := &EventStream{
		types: make(map[string]struct{}, len(types)),
		limit: buffer,
		ready: make(chan struct{}, 1),
	}
	for _, t := range types {
		s.types[t] = struct{}{}
	}
	reg.mu.Lock()
	reg.subs = append(reg.subs, s)
	reg.mu.Unlock()
	return s
}

func (reg *eventRegistry) unsubscribe(s *EventStream) {
	reg.mu.Lock()
	for i, sub := range reg.subs {
		if sub == s {
			reg.subs = append(reg.subs[:i], reg.subs[i+1:]...)
			break
		}
	}
	reg.mu.Unlock()
	s.close(nil)
}

func (reg *eventRegistry) dispatch(ev message.Event) {
	reg.mu.Lock()
	subs := make([]*EventStream, len(reg.subs))
	copy(subs, reg.subs)
	reg.mu.Unlock()

	for _, s := range subs {
		if _, ok := s.types[ev.Type]; !ok {
			continue
		}
		if s.push(ev) {
			reg.log.WithField("event_type", ev.Type).Warn("conn: event subscriber buffer full, oldest event dropped")
		}
	}
}

func (reg *eventRegistry) closeAll(err error) {
	reg.mu.Lock()
	subs := reg.subs
	reg.subs = nil
	reg.mu.Unlock()
	for _, s := range subs {
		s.close(err)
	}
}

// EventStream is one subscriber's ordered view of the event channel.
// Buffering is unbounded by default; a positive buffer limit switches
// to drop-oldest.
type EventStream struct {
	types map[string]struct{}
	limit int

	mu     sync.Mutex
	buf    []message.Event
	err    error
	closed bool
	ready  chan struct{}
}

// push appends an event and reports whether an older one was dropped
// to make room.
func (s *EventStream) push(ev message.Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	dropped := false
	if s.limit > 0 && len(s.buf) >= s.limit {
		s.buf = s.buf[1:]
		dropped = true
	}
	s.buf = append(s.buf, ev)
	s.mu.Unlock()
	s.signal()
	return dropped
}

func (s *EventStream) signal() {
	select {
	case s.ready <- struct{}{}:
	default:
	}
}

func (s *EventStream) close(err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.err = err
	s.mu.Unlock()
	s.signal()
}

// Recv blocks until the next event in server order, the context ends,
// or the stream closes. A stream closed by connection teardown yields
// the connection's fatal error; buffered events drain first.
func (s *EventStream) Recv(ctx context.Context) (message.Event, error) {
	for {
		s.mu.Lock()
		if len(s.buf) > 0 {
			ev := s.buf[0]
			s.buf = s.buf[1:]
			if len(s.buf) > 0 {
				s.signal()
			}
			s.mu.Unlock()
			return ev, nil
		}
		if s.closed {
			err := s.err
			s.mu.Unlock()
			if err == nil {
				err = cqlerr.New(cqlerr.ConnectionClosed, "conn: event stream closed")
			}
			return message.Event{}, err
		}
		s.mu.Unlock()

		select {
		case <-s.ready:
		case <-ctx.Done():
			return message.Event{}, ctx.Err()
		}
	}
}
