package compress_test

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/cqlwire/cqlwire/compress"
)

func TestForName(t *testing.T) {
	t.Parallel()

	if c := compress.ForName("snappy"); c == nil || c.Name() != "snappy" {
		t.Errorf("snappy: got %v", c)
	}
	if c := compress.ForName("lz4"); c == nil || c.Name() != "lz4" {
		t.Errorf("lz4: got %v", c)
	}
	if c := compress.ForName("zstd"); c != nil {
		t.Errorf("unknown name resolved to %v", c)
	}
}

func TestSnappyRoundTrip(t *testing.T) {
	t.Parallel()

	in := bytes.Repeat([]byte("wide column "), 64)
	c := compress.Snappy{}
	packed, err := c.Compress(in)
	if err != nil {
		t.Fatal(err)
	}
	if len(packed) >= len(in) {
		t.Errorf("repetitive input did not shrink: %d -> %d", len(in), len(packed))
	}
	out, err := c.Decompress(packed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Error("round trip changed the payload")
	}
}

func TestSnappyRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := (compress.Snappy{}).Decompress([]byte{0xFF, 0xFF, 0xFF}); err == nil {
		t.Error("expected an error")
	}
}

func TestLZ4RoundTrip(t *testing.T) {
	t.Parallel()

	in := bytes.Repeat([]byte("frame body frame body "), 50)
	c := compress.LZ4{}
	packed, err := c.Compress(in)
	if err != nil {
		t.Fatal(err)
	}
	out, err := c.Decompress(packed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Error("round trip changed the payload")
	}
}

func TestLZ4LengthPrefixIsBigEndian(t *testing.T) {
	t.Parallel()

	in := bytes.Repeat([]byte("endianness "), 30)
	c := compress.LZ4{}
	packed, err := c.Compress(in)
	if err != nil {
		t.Fatal(err)
	}

	// The on-wire format prefixes the block with the uncompressed
	// length in big-endian order.
	if got := binary.BigEndian.Uint32(packed[:4]); got != uint32(len(in)) {
		t.Fatalf("prefix reads %d big-endian, want %d", got, len(in))
	}

	// The same block with a little-endian prefix must be rejected.
	flipped := make([]byte, len(packed))
	copy(flipped, packed)
	binary.LittleEndian.PutUint32(flipped[:4], uint32(len(in)))
	if _, err := c.Decompress(flipped); err == nil {
		t.Error("little-endian length prefix was accepted")
	}

	// And the canonical big-endian form decompresses to the plaintext.
	out, err := c.Decompress(packed)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(out, in) {
		t.Error("big-endian form did not yield the plaintext")
	}
}

func TestLZ4RejectsShortInput(t *testing.T) {
	t.Parallel()

	if _, err := (compress.LZ4{}).Decompress([]byte{0x00, 0x01}); err == nil {
		t.Error("expected an error for a truncated length prefix")
	}
}

func TestAvailableMatchesForName(t *testing.T) {
	t.Parallel()

	for _, name := range compress.Available() {
		c := compress.ForName(name)
		if c == nil || c.Name() != name {
			t.Errorf("advertised algorithm %q does not resolve", name)
		}
	}
}
