package message

import (
	"fmt"

	"github.com/cqlwire/cqlwire/cqlerr"
	"github.com/cqlwire/cqlwire/wire"
)

// Ready reports a completed handshake.
type Ready struct{}

func (Ready) isResponse() {}

// Authenticate is the server demanding an authentication exchange
// instead of READY.
type Authenticate struct {
	Class string
}

func (Authenticate) isResponse() {}

// Supported lists the startup options the server accepts.
type Supported struct {
	Options map[string][]string
}

func (Supported) isResponse() {}

// AuthChallenge carries a SASL challenge token.
type AuthChallenge struct {
	Token []byte
}

func (AuthChallenge) isResponse() {}

// AuthSuccess completes an authentication exchange.
type AuthSuccess struct {
	Token []byte
}

func (AuthSuccess) isResponse() {}

// Server error codes with dedicated detail fields.
const (
	ErrCodeUnavailable   int32 = 0x1000
	ErrCodeWriteTimeout  int32 = 0x1100
	ErrCodeReadTimeout   int32 = 0x1200
	ErrCodeAlreadyExists int32 = 0x2400
	ErrCodeUnprepared    int32 = 0x2500
)

// Error is a protocol-level ERROR response. It is delivered to the
// originating waiter as a result; it does not fail the connection.
type Error struct {
	Code    int32
	Message string
	// Details holds the code-specific extra fields in string form,
	// e.g. consistency/required/alive for an unavailable error.
	Details map[string]string
	// UnpreparedID is the unknown statement id of an unprepared error.
	UnpreparedID []byte
}

func (Error) isResponse() {}

func decodeError(r *wire.Reader) (*Error, error) {
	code, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	msg, err := r.ReadString()
	if err != nil {
		return nil, err
	}
	e := &Error{Code: code, Message: msg}

	switch code {
	case ErrCodeUnavailable:
		cl, err := r.ReadConsistency()
		if err != nil {
			return nil, err
		}
		required, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		alive, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		e.Details = map[string]string{
			"consistency": cl.String(),
			"required":    fmt.Sprint(required),
			"alive":       fmt.Sprint(alive),
		}
	case ErrCodeWriteTimeout:
		cl, err := r.ReadConsistency()
		if err != nil {
			return nil, err
		}
		received, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		blockFor, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		writeType, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		e.Details = map[string]string{
			"consistency": cl.String(),
			"received":    fmt.Sprint(received),
			"block_for":   fmt.Sprint(blockFor),
			"write_type":  writeType,
		}
	case ErrCodeReadTimeout:
		cl, err := r.ReadConsistency()
		if err != nil {
			return nil, err
		}
		received, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		blockFor, err := r.ReadInt()
		if err != nil {
			return nil, err
		}
		dataPresent, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		e.Details = map[string]string{
			"consistency":  cl.String(),
			"received":     fmt.Sprint(received),
			"block_for":    fmt.Sprint(blockFor),
			"data_present": fmt.Sprint(dataPresent != 0),
		}
	case ErrCodeAlreadyExists:
		keyspace, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		table, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		e.Details = map[string]string{"keyspace": keyspace, "table": table}
	case ErrCodeUnprepared:
		id, err := r.ReadShortBytes()
		if err != nil {
			return nil, err
		}
		e.UnpreparedID = id
	}
	return e, nil
}

// DecodeResponse decodes a response body for the given opcode. It
// returns the decoded message and the count of trailing bytes the body
// carried beyond the declared fields; trailing bytes are tolerated and
// reported to the caller for logging, never an error. An opcode outside
// the response set fails with ProtocolViolation.
func DecodeResponse(op Opcode, r *wire.Reader) (Response, int, error) {
	resp, err := decodeResponseBody(op, r)
	if err != nil {
		return nil, 0, err
	}
	return resp, r.Remaining(), nil
}

func decodeResponseBody(op Opcode, r *wire.Reader) (Response, error) {
	switch op {
	case OpReady:
		return Ready{}, nil

	case OpAuthenticate:
		class, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return Authenticate{Class: class}, nil

	case OpSupported:
		opts, err := r.ReadStringMultimap()
		if err != nil {
			return nil, err
		}
		return Supported{Options: opts}, nil

	case OpError:
		return decodeError(r)

	case OpResult:
		return decodeResult(r)

	case OpEvent:
		return decodeEvent(r)

	case OpAuthChallenge:
		token, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		return AuthChallenge{Token: token.Data()}, nil

	case OpAuthSuccess:
		token, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		return AuthSuccess{Token: token.Data()}, nil
	}
	return nil, cqlerr.New(cqlerr.ProtocolViolation, "message: opcode %s is not a response", op)
}
