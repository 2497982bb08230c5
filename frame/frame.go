// Package frame reads and writes the 9-byte frame envelope around
// message bodies: header serialisation, length enforcement, and the
// optional whole-body compression.
package frame

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/cqlwire/cqlwire/compress"
	"github.com/cqlwire/cqlwire/cqlerr"
)

// Version bytes. The high bit distinguishes direction, the low nibble
// is the protocol version.
const (
	VersionRequest  byte = 0x04
	VersionResponse byte = 0x84
)

// Header flag bits.
const (
	FlagCompressed    byte = 0x01
	FlagTracing       byte = 0x02
	FlagWarning       byte = 0x08
	FlagCustomPayload byte = 0x10
)

// HeaderSize is the fixed frame header length.
const HeaderSize = 9

// DefaultMaxFrameSize is the body length limit: 256 MiB.
const DefaultMaxFrameSize uint32 = 256 << 20

// Header is the fixed-size frame header.
type Header struct {
	Version byte
	Flags   byte
	Stream  int16
	Opcode  byte
	Length  uint32
}

// EncodeHeader serialises a header into its 9-byte wire form.
func EncodeHeader(h Header) [HeaderSize]byte {
	var b [HeaderSize]byte
	b[0] = h.Version
	b[1] = h.Flags
	binary.BigEndian.PutUint16(b[2:4], uint16(h.Stream)) //nolint:gosec // two's complement on the wire
	b[4] = h.Opcode
	binary.BigEndian.PutUint32(b[5:9], h.Length)
	return b
}

// DecodeHeader parses the 9-byte wire form.
func DecodeHeader(b [HeaderSize]byte) Header {
	return Header{
		Version: b[0],
		Flags:   b[1],
		Stream:  int16(binary.BigEndian.Uint16(b[2:4])), //nolint:gosec // stream ids are signed
		Opcode:  b[4],
		Length:  binary.BigEndian.Uint32(b[5:9]),
	}
}

// Framer moves one frame at a time across a duplex byte transport.
// Reads and writes use independent state, so one goroutine may read
// while another writes. Buffering beyond a single frame is the
// dispatcher's concern.
type Framer struct {
	rw           io.ReadWriter
	maxFrameSize uint32

	// mu guards comp: it is armed once mid-connection, after the
	// handshake, while the read loop is already running.
	mu   sync.RWMutex
	comp compress.Compressor

	// readVersion and writeVersion pin the direction: a client framer
	// reads responses and writes requests, a server framer the inverse.
	readVersion  byte
	writeVersion byte
}

// NewFramer builds a client-side framer: it writes request frames and
// accepts only response frames. maxFrameSize of 0 applies the default.
func NewFramer(rw io.ReadWriter, maxFrameSize uint32) *Framer {
	if maxFrameSize == 0 {
		maxFrameSize = DefaultMaxFrameSize
	}
	return &Framer{
		rw:           rw,
		maxFrameSize: maxFrameSize,
		readVersion:  VersionResponse,
		writeVersion: VersionRequest,
	}
}

// NewServerFramer builds the server-side inverse, used by tests that
// script the server end of a connection.
func NewServerFramer(rw io.ReadWriter, maxFrameSize uint32) *Framer {
	f := NewFramer(rw, maxFrameSize)
	f.readVersion, f.writeVersion = VersionRequest, VersionResponse
	return f
}

// EnableCompression arms per-frame body compression. Called once,
// after the handshake negotiates an algorithm; frames before that are
// always plain.
func (f *Framer) EnableCompression(c compress.Compressor) {
	f.mu.Lock()
	f.comp = c
	f.mu.Unlock()
}

// Compression returns the armed compressor, nil before negotiation.
func (f *Framer) Compression() compress.Compressor {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.comp
}

// WriteFrame serialises one frame. The body is compressed when an
// algorithm is armed, the message permits it, and the body is
// non-empty.
func (f *Framer) WriteFrame(stream int16, opcode byte, body []byte, compressible bool) error {
	comp := f.Compression()
	var flags byte
	if comp != nil && compressible && len(body) > 0 {
		compressed, err := comp.Compress(body)
		if err != nil {
			return fmt.Errorf("frame: compress body: %w", err)
		}
		body = compressed
		flags |= FlagCompressed
	}
	if uint64(len(body)) > uint64(f.maxFrameSize) {
		return cqlerr.New(cqlerr.BadParameter, "frame: body of %d bytes exceeds frame limit %d", len(body), f.maxFrameSize)
	}
	hdr := EncodeHeader(Header{
		Version: f.writeVersion,
		Flags:   flags,
		Stream:  stream,
		Opcode:  opcode,
		Length:  uint32(len(body)), //nolint:gosec // checked against maxFrameSize above
	})
	if _, err := f.rw.Write(hdr[:]); err != nil {
		return cqlerr.Wrap(cqlerr.ConnectionClosed, err, "frame: write header")
	}
	if len(body) > 0 {
		if _, err := f.rw.Write(body); err != nil {
			return cqlerr.Wrap(cqlerr.ConnectionClosed, err, "frame: write body")
		}
	}
	return nil
}

// ReadFrame reads exactly one frame, validates the envelope invariants,
// and returns the header with the (decompressed) body. A version byte
// of the wrong direction or protocol version, a body over the frame
// limit, or a compressed flag without a negotiated algorithm all fail
// the connection.
func (f *Framer) ReadFrame() (Header, []byte, error) {
	var raw [HeaderSize]byte
	if _, err := io.ReadFull(f.rw, raw[:]); err != nil {
		return Header{}, nil, cqlerr.Wrap(cqlerr.ConnectionClosed, err, "frame: read header")
	}
	h := DecodeHeader(raw)
	if h.Version != f.readVersion {
		return Header{}, nil, cqlerr.New(cqlerr.ProtocolViolation, "frame: unexpected version byte 0x%02X, want 0x%02X", h.Version, f.readVersion)
	}
	if h.Length > f.maxFrameSize {
		return Header{}, nil, cqlerr.New(cqlerr.ProtocolViolation, "frame: body of %d bytes exceeds frame limit %d", h.Length, f.maxFrameSize)
	}
	var body []byte
	if h.Length > 0 {
		body = make([]byte, h.Length)
		if _, err := io.ReadFull(f.rw, body); err != nil {
			return Header{}, nil, cqlerr.Wrap(cqlerr.ConnectionClosed, err, "frame: read body")
		}
	}
	if h.Flags&FlagCompressed != 0 {
		comp := f.Compression()
		if comp == nil {
			return Header{}, nil, cqlerr.New(cqlerr.ProtocolViolation, "frame: compressed frame but no algorithm negotiated")
		}
		plain, err := comp.Decompress(body)
		if err != nil {
			return Header{}, nil, cqlerr.Wrap(cqlerr.BadData, err, "frame: decompress body")
		}
		body = plain
	}
	return h, body, nil
}
