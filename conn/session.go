package conn

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/cqlwire/cqlwire/compress"
	"github.com/cqlwire/cqlwire/cqlerr"
	"github.com/cqlwire/cqlwire/message"
	"github.com/cqlwire/cqlwire/wire"
)

// Config carries the connection knobs. The zero value is usable;
// Connect fills in defaults.
type Config struct {
	// CQLVersion is the CQL_VERSION sent in STARTUP. Default "3.4.4".
	CQLVersion string
	// Compression names the algorithm to negotiate: "lz4", "snappy",
	// or empty for none. An algorithm the server does not advertise is
	// dropped with a warning rather than failing the connect.
	Compression string
	// Consistency is the default level for queries that do not set one.
	// Default ONE.
	Consistency wire.Consistency
	// HandshakeTimeout bounds the STARTUP/READY exchange. Default 10s.
	HandshakeTimeout time.Duration
	// MaxFrameSize caps inbound and outbound body lengths.
	// Default 256 MiB.
	MaxFrameSize uint32
	// StreamLimit caps concurrent in-flight requests. Default and
	// maximum 32768.
	StreamLimit int
	// EventBuffer bounds each event subscriber's queue; events beyond
	// it drop oldest-first. Zero keeps the queue unbounded.
	EventBuffer int
	// Logger receives structured connection logs. Defaults to the
	// logrus standard logger.
	Logger *logrus.Entry
}

func (cfg Config) withDefaults() Config {
	if cfg.CQLVersion == "" {
		cfg.CQLVersion = "3.4.4"
	}
	if cfg.Consistency == 0 {
		cfg.Consistency = wire.ConsistencyOne
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.StreamLimit <= 0 || cfg.StreamLimit > maxStreams {
		cfg.StreamLimit = maxStreams
	}
	return cfg
}

// PreparedStatement is the cached handle of a server-prepared query:
// the opaque id plus the bind and result column specs it came with.
// Valid for the lifetime of its connection.
type PreparedStatement struct {
	ID      []byte
	Query   string
	Params  []wire.ColumnSpec
	Columns []wire.ColumnSpec
}

// QueryOptions tunes one Execute call.
type QueryOptions struct {
	// Consistency overrides the session default when non-zero.
	Consistency wire.Consistency
	// Values are the bind parameters. Any values trigger a transparent
	// prepare of the query text on first use.
	Values []any

	PageSize          int32
	SerialConsistency wire.Consistency
	DefaultTimestamp  *int64
}

// Session coordinates one connection: it drives the handshake, owns
// the prepared-statement cache, and exposes the query surface.
type Session struct {
	conn *Conn
	cfg  Config
	log  *logrus.Entry

	mu       sync.Mutex
	prepared map[string]*PreparedStatement
}

// Connect starts the dispatcher on the given transport and performs
// the startup handshake. The transport is an opaque ordered byte
// stream; dialing, TLS, timeouts on the dial are the caller's.
func Connect(ctx context.Context, transport io.ReadWriteCloser, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()
	log := cfg.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	s := &Session{
		conn:     newConn(transport, cfg.MaxFrameSize, cfg.StreamLimit, log),
		cfg:      cfg,
		log:      log,
		prepared: make(map[string]*PreparedStatement),
	}

	hctx, cancel := context.WithTimeout(ctx, cfg.HandshakeTimeout)
	defer cancel()
	if err := s.handshake(hctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			err = cqlerr.Wrap(cqlerr.HandshakeTimeout, err, "conn: handshake did not complete within %s", cfg.HandshakeTimeout)
		}
		_ = s.conn.Close()
		return nil, err
	}
	return s, nil
}

// handshake submits OPTIONS (when compression is requested) and
// STARTUP, both ahead of Ready, and settles the connection state from
// the answer. Each leases the next id from the FIFO pool: STARTUP goes
// on stream 0 only when no OPTIONS precedes it; after OPTIONS it takes
// the next pooled id (stream 1 unless the pool holds a single id).
func (s *Session) handshake(ctx context.Context) error {
	comp := compress.ForName(s.cfg.Compression)
	if s.cfg.Compression != "" && comp == nil {
		s.log.WithField("algorithm", s.cfg.Compression).Warn("conn: compression algorithm unavailable, continuing without")
	}

	if comp != nil {
		resp, err := s.conn.submit(ctx, message.Options{}, true)
		if err != nil {
			return err
		}
		sup, ok := resp.(message.Supported)
		if !ok {
			return cqlerr.New(cqlerr.ProtocolViolation, "conn: OPTIONS answered with %T", resp)
		}
		if !containsString(sup.Options[message.StartupKeyCompression], comp.Name()) {
			s.log.WithField("algorithm", comp.Name()).Warn("conn: server does not advertise requested compression, continuing without")
			comp = nil
		}
	}

	opts := map[string]string{message.StartupKeyCQLVersion: s.cfg.CQLVersion}
	if comp != nil {
		opts[message.StartupKeyCompression] = comp.Name()
	}
	s.conn.setState(StateStartupSent)
	resp, err := s.conn.submit(ctx, message.Startup{Options: opts}, true)
	if err != nil {
		return err
	}

	switch r := resp.(type) {
	case message.Ready:
		// Only frames after the handshake may carry the compression
		// flag; READY itself always arrives plain.
		if comp != nil {
			s.conn.framer.EnableCompression(comp)
		}
		s.conn.setState(StateReady)
		s.log.WithField("compression", s.compressionName()).Debug("conn: handshake complete")
		return nil
	case message.Authenticate:
		s.conn.setState(StateAuthRequired)
		return cqlerr.New(cqlerr.Unsupported, "conn: server requires authentication (%s)", r.Class)
	case *message.Error:
		return cqlerr.Server(r.Code, r.Message, r.Details)
	}
	return cqlerr.New(cqlerr.ProtocolViolation, "conn: STARTUP answered with %T", resp)
}

func (s *Session) compressionName() string {
	if c := s.conn.framer.Compression(); c != nil {
		return c.Name()
	}
	return "none"
}

// State reports the connection lifecycle position.
func (s *Session) State() State { return s.conn.State() }

// Execute runs a query. With bind values it prepares the text
// transparently on first use (so repeated calls cost one PREPARE) and
// binds against the cached column specs; without values it sends a
// plain QUERY. Binding mismatches fail with BadParameter before any
// bytes move.
func (s *Session) Execute(ctx context.Context, query string, opts *QueryOptions) (*Result, error) {
	var o QueryOptions
	if opts != nil {
		o = *opts
	}
	cons := o.Consistency
	if cons == 0 {
		cons = s.cfg.Consistency
	}
	params := message.QueryParams{
		Consistency:       cons,
		PageSize:          o.PageSize,
		SerialConsistency: o.SerialConsistency,
		DefaultTimestamp:  o.DefaultTimestamp,
	}

	var req message.Request
	if len(o.Values) > 0 {
		ps, err := s.Prepare(ctx, query)
		if err != nil {
			return nil, err
		}
		values, err := bindValues(o.Values, ps.Params)
		if err != nil {
			return nil, err
		}
		params.Values = values
		req = message.Execute{ID: ps.ID, Params: params}
	} else {
		req = message.Query{Query: query, Params: params}
	}

	resp, err := s.conn.submit(ctx, req, false)
	if err != nil {
		return nil, err
	}
	return toResult(resp)
}

// Prepare sends PREPARE for the query text unless a handle is already
// cached, and caches the returned id and metadata under the text for
// the connection's lifetime.
func (s *Session) Prepare(ctx context.Context, query string) (*PreparedStatement, error) {
	s.mu.Lock()
	if ps, ok := s.prepared[query]; ok {
		s.mu.Unlock()
		return ps, nil
	}
	s.mu.Unlock()

	resp, err := s.conn.submit(ctx, message.Prepare{Query: query}, false)
	if err != nil {
		return nil, err
	}
	switch r := resp.(type) {
	case message.PreparedResult:
		ps := &PreparedStatement{ID: r.ID, Query: query, Params: r.Params, Columns: r.Result.Columns}
		s.mu.Lock()
		s.prepared[query] = ps
		s.mu.Unlock()
		return ps, nil
	case *message.Error:
		return nil, cqlerr.Server(r.Code, r.Message, r.Details)
	}
	return nil, cqlerr.New(cqlerr.ProtocolViolation, "conn: PREPARE answered with %T", resp)
}

// Register subscribes to the named event categories and returns the
// stream events for them will arrive on.
func (s *Session) Register(ctx context.Context, eventTypes ...string) (*EventStream, error) {
	if len(eventTypes) == 0 {
		return nil, cqlerr.New(cqlerr.BadParameter, "conn: no event types to register")
	}

	// Subscribe before sending so an event racing the REGISTER reply
	// cannot slip past.
	stream := s.conn.events.subscribe(eventTypes, s.cfg.EventBuffer)
	resp, err := s.conn.submit(ctx, message.Register{EventTypes: eventTypes}, false)
	if err != nil {
		s.conn.events.unsubscribe(stream)
		return nil, err
	}
	switch r := resp.(type) {
	case message.Ready:
		return stream, nil
	case *message.Error:
		s.conn.events.unsubscribe(stream)
		return nil, cqlerr.Server(r.Code, r.Message, r.Details)
	}
	s.conn.events.unsubscribe(stream)
	return nil, cqlerr.New(cqlerr.ProtocolViolation, "conn: REGISTER answered with %T", resp)
}

// Batch is deliberately not implemented.
func (s *Session) Batch(context.Context) error {
	return cqlerr.New(cqlerr.Unsupported, "conn: batch statements are not supported")
}

// Close cancels all in-flight waiters and closes the transport.
func (s *Session) Close() error { return s.conn.Close() }

func bindValues(values []any, specs []wire.ColumnSpec) ([]wire.Bytes, error) {
	if len(values) != len(specs) {
		return nil, cqlerr.New(cqlerr.BadParameter, "conn: statement takes %d values, got %d", len(specs), len(values))
	}
	out := make([]wire.Bytes, len(values))
	for i, v := range values {
		b, err := wire.EncodeValue(v, specs[i].Type)
		if err != nil {
			return nil, cqlerr.Wrap(cqlerr.BadParameter, err, "conn: bind column %q", specs[i].Name)
		}
		out[i] = b
	}
	return out, nil
}

func containsString(list []string, s string) bool {
	for _, x := range list {
		if x == s {
			return true
		}
	}
	return false
}
