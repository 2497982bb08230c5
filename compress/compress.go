// Package compress provides the pluggable frame-body compression
// algorithms negotiated during the startup handshake.
package compress

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Compressor compresses and decompresses whole frame bodies.
type Compressor interface {
	// Name is the algorithm name advertised in STARTUP.
	Name() string
	Compress(src []byte) ([]byte, error)
	Decompress(src []byte) ([]byte, error)
}

// ForName resolves an algorithm by its STARTUP name. Unknown names
// resolve to nil, which callers treat as "no compression".
func ForName(name string) Compressor {
	switch name {
	case "snappy":
		return Snappy{}
	case "lz4":
		return LZ4{}
	}
	return nil
}

// Available lists the algorithm names this build can negotiate, in
// preference order.
func Available() []string { return []string{"lz4", "snappy"} }

// Snappy is the snappy block format, no length prefix.
type Snappy struct{}

func (Snappy) Name() string { return "snappy" }

func (Snappy) Compress(src []byte) ([]byte, error) {
	return snappy.Encode(nil, src), nil
}

func (Snappy) Decompress(src []byte) ([]byte, error) {
	dst, err := snappy.Decode(nil, src)
	if err != nil {
		return nil, fmt.Errorf("compress: snappy decode: %w", err)
	}
	return dst, nil
}

// maxUncompressed caps the allocation a length prefix may demand.
// Matches the frame length limit.
const maxUncompressed = 256 << 20

// LZ4 is the lz4 block format with the native protocol's 4-byte
// big-endian uncompressed-length prefix. The prefix endianness differs
// from the little-endian framing most lz4 tooling defaults to; both
// sides translate here.
type LZ4 struct{}

func (LZ4) Name() string { return "lz4" }

func (LZ4) Compress(src []byte) ([]byte, error) {
	buf := make([]byte, 4+lz4.CompressBlockBound(len(src)))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(src))) //nolint:gosec // frame limit caps body size
	var c lz4.Compressor
	n, err := c.CompressBlock(src, buf[4:])
	if err != nil {
		return nil, fmt.Errorf("compress: lz4 block: %w", err)
	}
	if n == 0 && len(src) > 0 {
		return nil, fmt.Errorf("compress: lz4 block: empty output for %d input bytes", len(src))
	}
	return buf[:4+n], nil
}

func (LZ4) Decompress(src []byte) ([]byte, error) {
	if len(src) < 4 {
		return nil, fmt.Errorf("compress: lz4 body too short for length prefix: %d bytes", len(src))
	}
	uncompressedLen := binary.BigEndian.Uint32(src[:4])
	if uncompressedLen > maxUncompressed {
		return nil, fmt.Errorf("compress: lz4 declared length %d exceeds limit", uncompressedLen)
	}
	if uncompressedLen == 0 {
		return nil, nil
	}
	dst := make([]byte, uncompressedLen)
	n, err := lz4.UncompressBlock(src[4:], dst)
	if err != nil {
		return nil, fmt.Errorf("compress: lz4 uncompress: %w", err)
	}
	if n != int(uncompressedLen) {
		return nil, fmt.Errorf("compress: lz4 length prefix declares %d bytes, block held %d", uncompressedLen, n)
	}
	return dst, nil
}
