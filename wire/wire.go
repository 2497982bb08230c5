// Package wire implements the primitive value codec of the native
// protocol: big-endian integers, length-prefixed strings and byte
// blobs, addresses, maps, and the recursive column type descriptors.
// Everything here is pure: a Reader walks a byte slice, a Writer
// appends to one, and neither touches the transport.
package wire

import (
	"encoding/binary"
	"fmt"
	"net"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/cqlwire/cqlwire/cqlerr"
)

// Length markers for [bytes] values.
const (
	bytesNull  int32 = -1
	bytesUnset int32 = -2
)

// Bytes is the payload of a [bytes] wire value. The null and "not set"
// markers are distinct from each other and from an empty payload, and
// survive an encode/decode round trip.
type Bytes struct {
	data   []byte
	marker int32
}

// NewBytes wraps a payload. A nil slice is a present, empty payload,
// not null; use NullBytes for null.
func NewBytes(data []byte) Bytes {
	if data == nil {
		data = []byte{}
	}
	return Bytes{data: data}
}

// NullBytes is the null marker (wire length -1).
func NullBytes() Bytes { return Bytes{marker: bytesNull} }

// UnsetBytes is the "not set" marker (wire length -2).
func UnsetBytes() Bytes { return Bytes{marker: bytesUnset} }

func (b Bytes) IsNull() bool  { return b.marker == bytesNull }
func (b Bytes) IsUnset() bool { return b.marker == bytesUnset }

// Data returns the payload, nil for null or unset values.
func (b Bytes) Data() []byte {
	if b.marker != 0 {
		return nil
	}
	return b.data
}

func (b Bytes) String() string {
	switch b.marker {
	case bytesNull:
		return "<null>"
	case bytesUnset:
		return "<unset>"
	}
	return fmt.Sprintf("%d bytes", len(b.data))
}

// Inet is the [inet] wire value: an address with a port, as carried in
// event bodies.
type Inet struct {
	Addr net.IP
	Port int32
}

func (i Inet) String() string { return fmt.Sprintf("%s:%d", i.Addr, i.Port) }

// Consistency is the [consistency] wire value.
type Consistency uint16

const (
	ConsistencyAny         Consistency = 0x0000
	ConsistencyOne         Consistency = 0x0001
	ConsistencyTwo         Consistency = 0x0002
	ConsistencyThree       Consistency = 0x0003
	ConsistencyQuorum      Consistency = 0x0004
	ConsistencyAll         Consistency = 0x0005
	ConsistencyLocalQuorum Consistency = 0x0006
	ConsistencyEachQuorum  Consistency = 0x0007
	ConsistencySerial      Consistency = 0x0008
	ConsistencyLocalSerial Consistency = 0x0009
	ConsistencyLocalOne    Consistency = 0x000A
)

var consistencyNames = map[Consistency]string{
	ConsistencyAny:         "ANY",
	ConsistencyOne:         "ONE",
	ConsistencyTwo:         "TWO",
	ConsistencyThree:       "THREE",
	ConsistencyQuorum:      "QUORUM",
	ConsistencyAll:         "ALL",
	ConsistencyLocalQuorum: "LOCAL_QUORUM",
	ConsistencyEachQuorum:  "EACH_QUORUM",
	ConsistencySerial:      "SERIAL",
	ConsistencyLocalSerial: "LOCAL_SERIAL",
	ConsistencyLocalOne:    "LOCAL_ONE",
}

func (c Consistency) String() string {
	if name, ok := consistencyNames[c]; ok {
		return name
	}
	return fmt.Sprintf("UnknownConsistency(0x%04X)", uint16(c))
}

// ParseConsistency resolves a consistency level by name,
// case-insensitively.
func ParseConsistency(name string) (Consistency, error) {
	for c, n := range consistencyNames {
		if equalFold(n, name) {
			return c, nil
		}
	}
	return 0, cqlerr.New(cqlerr.BadParameter, "wire: unknown consistency level %q", name)
}

func equalFold(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := 0; i < len(a); i++ {
		ca, cb := a[i], b[i]
		if 'a' <= ca && ca <= 'z' {
			ca -= 'a' - 'A'
		}
		if 'a' <= cb && cb <= 'z' {
			cb -= 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// ---------------- reader ----------------

// Reader decodes primitive values from a byte slice, advancing a cursor.
// Underflow and forbidden negative lengths fail with a BadData error.
type Reader struct {
	buf []byte
	pos int
}

func NewReader(buf []byte) *Reader { return &Reader{buf: buf} }

// Remaining reports how many bytes are left unread.
func (r *Reader) Remaining() int { return len(r.buf) - r.pos }

func (r *Reader) take(n int, what string) ([]byte, error) {
	if n < 0 {
		return nil, cqlerr.New(cqlerr.BadData, "wire: negative length %d for %s", n, what)
	}
	if r.Remaining() < n {
		return nil, cqlerr.New(cqlerr.BadData, "wire: short buffer reading %s: need %d, have %d", what, n, r.Remaining())
	}
	b := r.buf[r.pos : r.pos+n]
	r.pos += n
	return b, nil
}

func (r *Reader) ReadByte() (byte, error) {
	b, err := r.take(1, "byte")
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *Reader) ReadShort() (uint16, error) {
	b, err := r.take(2, "short")
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b), nil
}

func (r *Reader) ReadInt() (int32, error) {
	b, err := r.take(4, "int")
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil //nolint:gosec // interpreting as signed int32
}

func (r *Reader) ReadLong() (int64, error) {
	b, err := r.take(8, "long")
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil //nolint:gosec // interpreting as signed int64
}

func (r *Reader) ReadString() (string, error) {
	n, err := r.ReadShort()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n), "string")
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", cqlerr.New(cqlerr.BadData, "wire: string is not valid UTF-8")
	}
	return string(b), nil
}

func (r *Reader) ReadLongString() (string, error) {
	n, err := r.ReadInt()
	if err != nil {
		return "", err
	}
	b, err := r.take(int(n), "long string")
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", cqlerr.New(cqlerr.BadData, "wire: long string is not valid UTF-8")
	}
	return string(b), nil
}

func (r *Reader) ReadUUID() (uuid.UUID, error) {
	b, err := r.take(16, "uuid")
	if err != nil {
		return uuid.UUID{}, err
	}
	var u uuid.UUID
	copy(u[:], b)
	return u, nil
}

func (r *Reader) ReadStringList() ([]string, error) {
	n, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	list := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		s, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		list = append(list, s)
	}
	return list, nil
}

// ReadBytes decodes a [bytes] value, preserving the null and unset
// markers.
func (r *Reader) ReadBytes() (Bytes, error) {
	n, err := r.ReadInt()
	if err != nil {
		return Bytes{}, err
	}
	switch {
	case n == bytesNull:
		return NullBytes(), nil
	case n == bytesUnset:
		return UnsetBytes(), nil
	case n < 0:
		return Bytes{}, cqlerr.New(cqlerr.BadData, "wire: invalid bytes length %d", n)
	}
	b, err := r.take(int(n), "bytes")
	if err != nil {
		return Bytes{}, err
	}
	out := make([]byte, n)
	copy(out, b)
	return NewBytes(out), nil
}

func (r *Reader) ReadShortBytes() ([]byte, error) {
	n, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	b, err := r.take(int(n), "short bytes")
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (r *Reader) ReadInet() (Inet, error) {
	n, err := r.ReadByte()
	if err != nil {
		return Inet{}, err
	}
	if n != 4 && n != 16 {
		return Inet{}, cqlerr.New(cqlerr.BadData, "wire: invalid inet address length %d", n)
	}
	addr, err := r.take(int(n), "inet address")
	if err != nil {
		return Inet{}, err
	}
	port, err := r.ReadInt()
	if err != nil {
		return Inet{}, err
	}
	ip := make(net.IP, n)
	copy(ip, addr)
	return Inet{Addr: ip, Port: port}, nil
}

func (r *Reader) ReadStringMap() (map[string]string, error) {
	n, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	m := make(map[string]string, n)
	for i := 0; i < int(n); i++ {
		k, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func (r *Reader) ReadStringMultimap() (map[string][]string, error) {
	n, err := r.ReadShort()
	if err != nil {
		return nil, err
	}
	m := make(map[string][]string, n)
	for i := 0; i < int(n); i++ {
		k, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		v, err := r.ReadStringList()
		if err != nil {
			return nil, err
		}
		m[k] = v
	}
	return m, nil
}

func (r *Reader) ReadConsistency() (Consistency, error) {
	v, err := r.ReadShort()
	if err != nil {
		return 0, err
	}
	return Consistency(v), nil
}

// ---------------- writer ----------------

// Writer appends primitive values to a growing buffer.
type Writer struct {
	buf []byte
}

func NewWriter() *Writer { return &Writer{} }

// Bytes returns the accumulated buffer.
func (w *Writer) Bytes() []byte { return w.buf }

// Len returns the number of bytes written so far.
func (w *Writer) Len() int { return len(w.buf) }

// WriteByte appends a single byte. The error is always nil; the
// signature matches io.ByteWriter.
func (w *Writer) WriteByte(v byte) error {
	w.buf = append(w.buf, v)
	return nil
}

func (w *Writer) WriteShort(v uint16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, v)
}

func (w *Writer) WriteInt(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v)) //nolint:gosec // two's complement on the wire
}

func (w *Writer) WriteLong(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v)) //nolint:gosec // two's complement on the wire
}

func (w *Writer) WriteString(s string) {
	w.WriteShort(uint16(len(s))) //nolint:gosec // protocol strings fit in a short
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteLongString(s string) {
	w.WriteInt(int32(len(s))) //nolint:gosec // frame limit caps body size well below int32
	w.buf = append(w.buf, s...)
}

func (w *Writer) WriteUUID(u uuid.UUID) { w.buf = append(w.buf, u[:]...) }

func (w *Writer) WriteStringList(list []string) {
	w.WriteShort(uint16(len(list))) //nolint:gosec // callers keep lists tiny
	for _, s := range list {
		w.WriteString(s)
	}
}

func (w *Writer) WriteBytes(b Bytes) {
	if b.marker != 0 {
		w.WriteInt(b.marker)
		return
	}
	w.WriteInt(int32(len(b.data))) //nolint:gosec // frame limit caps body size
	w.buf = append(w.buf, b.data...)
}

func (w *Writer) WriteShortBytes(b []byte) {
	w.WriteShort(uint16(len(b))) //nolint:gosec // prepared ids are short
	w.buf = append(w.buf, b...)
}

func (w *Writer) WriteInet(i Inet) {
	w.WriteByte(byte(len(i.Addr)))
	w.buf = append(w.buf, i.Addr...)
	w.WriteInt(i.Port)
}

func (w *Writer) WriteStringMap(m map[string]string) {
	w.WriteShort(uint16(len(m))) //nolint:gosec // option maps are tiny
	for _, k := range sortedKeys(m) {
		w.WriteString(k)
		w.WriteString(m[k])
	}
}

func (w *Writer) WriteStringMultimap(m map[string][]string) {
	w.WriteShort(uint16(len(m))) //nolint:gosec // option maps are tiny
	for _, k := range sortedMultiKeys(m) {
		w.WriteString(k)
		w.WriteStringList(m[k])
	}
}

func (w *Writer) WriteConsistency(c Consistency) { w.WriteShort(uint16(c)) }

// sortedKeys keeps map encodings deterministic.
func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

func sortedMultiKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sortStrings(keys)
	return keys
}

func sortStrings(s []string) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && s[j] < s[j-1]; j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}
