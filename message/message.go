// Package message defines the per-opcode frame bodies: encoders for the
// request set, decoders for the response set. It is a pure codec over
// package wire and never touches the transport.
package message

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/cqlwire/cqlwire/wire"
)

// Opcode discriminates the message kind within a frame.
type Opcode uint8

const (
	OpError         Opcode = 0x00
	OpStartup       Opcode = 0x01
	OpReady         Opcode = 0x02
	OpAuthenticate  Opcode = 0x03
	OpOptions       Opcode = 0x05
	OpSupported     Opcode = 0x06
	OpQuery         Opcode = 0x07
	OpResult        Opcode = 0x08
	OpPrepare       Opcode = 0x09
	OpExecute       Opcode = 0x0A
	OpRegister      Opcode = 0x0B
	OpEvent         Opcode = 0x0C
	OpBatch         Opcode = 0x0D
	OpAuthChallenge Opcode = 0x0E
	OpAuthResponse  Opcode = 0x0F
	OpAuthSuccess   Opcode = 0x10
)

var opcodeNames = map[Opcode]string{
	OpError:         "ERROR",
	OpStartup:       "STARTUP",
	OpReady:         "READY",
	OpAuthenticate:  "AUTHENTICATE",
	OpOptions:       "OPTIONS",
	OpSupported:     "SUPPORTED",
	OpQuery:         "QUERY",
	OpResult:        "RESULT",
	OpPrepare:       "PREPARE",
	OpExecute:       "EXECUTE",
	OpRegister:      "REGISTER",
	OpEvent:         "EVENT",
	OpBatch:         "BATCH",
	OpAuthChallenge: "AUTH_CHALLENGE",
	OpAuthResponse:  "AUTH_RESPONSE",
	OpAuthSuccess:   "AUTH_SUCCESS",
}

func (o Opcode) String() string {
	if name, ok := opcodeNames[o]; ok {
		return name
	}
	return fmt.Sprintf("UnknownOpcode(0x%02X)", uint8(o))
}

// Startup option keys.
const (
	StartupKeyCQLVersion      = "CQL_VERSION"
	StartupKeyCompression     = "COMPRESSION"
	StartupKeyNoCompact       = "NO_COMPACT"
	StartupKeyThrowOnOverload = "THROW_ON_OVERLOAD"
)

// Event type names accepted by REGISTER.
const (
	EventTopologyChange = "TOPOLOGY_CHANGE"
	EventStatusChange   = "STATUS_CHANGE"
	EventSchemaChange   = "SCHEMA_CHANGE"
)

// Request is a message body the client can send.
type Request interface {
	Opcode() Opcode
	EncodeBody(w *wire.Writer) error
	// CanCompress reports whether the frame body may carry the
	// compression flag. The handshake messages are always sent plain;
	// only frames after negotiation completes may be compressed.
	CanCompress() bool
}

// Response is a decoded message body received from the server.
type Response interface {
	isResponse()
}

// Prologue is the optional material a response body carries ahead of
// the message fields, governed by the frame flag bits: a tracing id, a
// warnings list, and a custom payload map.
type Prologue struct {
	TracingID *uuid.UUID
	Warnings  []string
	Custom    map[string][]byte
}

// Frame flag bits, mirrored from package frame to keep this package
// transport-free.
const (
	flagTracing       = 0x02
	flagWarning       = 0x08
	flagCustomPayload = 0x10
)

// ReadPrologue consumes the flag-governed prologue from a response
// body reader. The remaining bytes are the message fields proper.
func ReadPrologue(flags byte, r *wire.Reader) (Prologue, error) {
	var p Prologue
	if flags&flagTracing != 0 {
		id, err := r.ReadUUID()
		if err != nil {
			return p, err
		}
		p.TracingID = &id
	}
	if flags&flagWarning != 0 {
		warnings, err := r.ReadStringList()
		if err != nil {
			return p, err
		}
		p.Warnings = warnings
	}
	if flags&flagCustomPayload != 0 {
		n, err := r.ReadShort()
		if err != nil {
			return p, err
		}
		p.Custom = make(map[string][]byte, n)
		for i := 0; i < int(n); i++ {
			k, err := r.ReadString()
			if err != nil {
				return p, err
			}
			v, err := r.ReadBytes()
			if err != nil {
				return p, err
			}
			p.Custom[k] = v.Data()
		}
	}
	return p, nil
}
