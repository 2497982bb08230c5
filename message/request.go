package message

import (
	"github.com/cqlwire/cqlwire/cqlerr"
	"github.com/cqlwire/cqlwire/wire"
)

// Query flag bits.
const (
	queryFlagValues            = 0x01
	queryFlagSkipMetadata      = 0x02
	queryFlagPageSize          = 0x04
	queryFlagWithPagingState   = 0x08
	queryFlagSerialConsistency = 0x10
	queryFlagDefaultTimestamp  = 0x20
	queryFlagNamesForValues    = 0x40
)

// Startup opens the protocol exchange. The option map must name the
// CQL version and may request a compression algorithm.
type Startup struct {
	Options map[string]string
}

func (Startup) Opcode() Opcode    { return OpStartup }
func (Startup) CanCompress() bool { return false }
func (s Startup) EncodeBody(w *wire.Writer) error {
	w.WriteStringMap(s.Options)
	return nil
}

// Options asks the server which startup options it supports.
type Options struct{}

func (Options) Opcode() Opcode                { return OpOptions }
func (Options) CanCompress() bool             { return false }
func (Options) EncodeBody(*wire.Writer) error { return nil }

// AuthResponse answers an authentication challenge with a SASL token.
type AuthResponse struct {
	Token []byte
}

func (AuthResponse) Opcode() Opcode    { return OpAuthResponse }
func (AuthResponse) CanCompress() bool { return false }
func (a AuthResponse) EncodeBody(w *wire.Writer) error {
	if a.Token == nil {
		w.WriteBytes(wire.NullBytes())
	} else {
		w.WriteBytes(wire.NewBytes(a.Token))
	}
	return nil
}

// QueryParams is the parameter block shared by QUERY and EXECUTE.
type QueryParams struct {
	Consistency wire.Consistency

	// Values are the bound parameter payloads. A non-nil empty slice
	// still sets the VALUES flag with a zero count; the server's
	// reaction is its own.
	Values []wire.Bytes
	// Names, when non-empty, must parallel Values and switches on
	// named binding.
	Names []string

	SkipMetadata      bool
	PageSize          int32
	PagingState       []byte
	SerialConsistency wire.Consistency
	DefaultTimestamp  *int64
}

func (p *QueryParams) flags() (byte, error) {
	var flags byte
	if p.Values != nil {
		flags |= queryFlagValues
	}
	if len(p.Names) > 0 {
		if len(p.Names) != len(p.Values) {
			return 0, cqlerr.New(cqlerr.BadParameter, "message: %d value names for %d values", len(p.Names), len(p.Values))
		}
		flags |= queryFlagNamesForValues
	}
	if p.SkipMetadata {
		flags |= queryFlagSkipMetadata
	}
	if p.PageSize > 0 {
		flags |= queryFlagPageSize
	}
	if p.PagingState != nil {
		flags |= queryFlagWithPagingState
	}
	if p.SerialConsistency != 0 {
		flags |= queryFlagSerialConsistency
	}
	if p.DefaultTimestamp != nil {
		flags |= queryFlagDefaultTimestamp
	}
	return flags, nil
}

func (p *QueryParams) encode(w *wire.Writer) error {
	flags, err := p.flags()
	if err != nil {
		return err
	}
	w.WriteConsistency(p.Consistency)
	w.WriteByte(flags)
	if flags&queryFlagValues != 0 {
		w.WriteShort(uint16(len(p.Values))) //nolint:gosec // bind arity fits in a short
		for i, v := range p.Values {
			if flags&queryFlagNamesForValues != 0 {
				w.WriteString(p.Names[i])
			}
			w.WriteBytes(v)
		}
	}
	if flags&queryFlagPageSize != 0 {
		w.WriteInt(p.PageSize)
	}
	if flags&queryFlagWithPagingState != 0 {
		w.WriteBytes(wire.NewBytes(p.PagingState))
	}
	if flags&queryFlagSerialConsistency != 0 {
		w.WriteConsistency(p.SerialConsistency)
	}
	if flags&queryFlagDefaultTimestamp != 0 {
		w.WriteLong(*p.DefaultTimestamp)
	}
	return nil
}

// Query runs a query string with inline parameters.
type Query struct {
	Query  string
	Params QueryParams
}

func (Query) Opcode() Opcode    { return OpQuery }
func (Query) CanCompress() bool { return true }
func (q Query) EncodeBody(w *wire.Writer) error {
	w.WriteLongString(q.Query)
	return q.Params.encode(w)
}

// Prepare asks the server to parse and plan a query.
type Prepare struct {
	Query string
}

func (Prepare) Opcode() Opcode    { return OpPrepare }
func (Prepare) CanCompress() bool { return true }
func (p Prepare) EncodeBody(w *wire.Writer) error {
	w.WriteLongString(p.Query)
	return nil
}

// Execute runs a previously prepared statement by its server id.
type Execute struct {
	ID     []byte
	Params QueryParams
}

func (Execute) Opcode() Opcode    { return OpExecute }
func (Execute) CanCompress() bool { return true }
func (e Execute) EncodeBody(w *wire.Writer) error {
	w.WriteShortBytes(e.ID)
	return e.Params.encode(w)
}

// Register subscribes the connection to server-pushed event categories.
type Register struct {
	EventTypes []string
}

func (Register) Opcode() Opcode    { return OpRegister }
func (Register) CanCompress() bool { return true }
func (r Register) EncodeBody(w *wire.Writer) error {
	for _, t := range r.EventTypes {
		switch t {
		case EventTopologyChange, EventStatusChange, EventSchemaChange:
		default:
			return cqlerr.New(cqlerr.BadParameter, "message: unknown event type %q", t)
		}
	}
	w.WriteStringList(r.EventTypes)
	return nil
}
