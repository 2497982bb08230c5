package wire_test

import (
	"bytes"
	"net"
	"testing"

	"github.com/google/uuid"

	"github.com/cqlwire/cqlwire/cqlerr"
	"github.com/cqlwire/cqlwire/wire"
)

func TestIntegerRoundTrip(t *testing.T) {
	t.Parallel()

	w := wire.NewWriter()
	_ = w.WriteByte(0xAB)
	w.WriteShort(0xBEEF)
	w.WriteInt(-1)
	w.WriteInt(1<<31 - 1)
	w.WriteLong(-42)
	w.WriteLong(1<<62 + 7)

	r := wire.NewReader(w.Bytes())
	if v, err := r.ReadByte(); err != nil || v != 0xAB {
		t.Errorf("byte: got %v, %v", v, err)
	}
	if v, err := r.ReadShort(); err != nil || v != 0xBEEF {
		t.Errorf("short: got %v, %v", v, err)
	}
	if v, err := r.ReadInt(); err != nil || v != -1 {
		t.Errorf("int: got %v, %v", v, err)
	}
	if v, err := r.ReadInt(); err != nil || v != 1<<31-1 {
		t.Errorf("int max: got %v, %v", v, err)
	}
	if v, err := r.ReadLong(); err != nil || v != -42 {
		t.Errorf("long: got %v, %v", v, err)
	}
	if v, err := r.ReadLong(); err != nil || v != 1<<62+7 {
		t.Errorf("long big: got %v, %v", v, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("expected empty reader, %d bytes left", r.Remaining())
	}
}

func TestIntegerEncoding(t *testing.T) {
	t.Parallel()

	w := wire.NewWriter()
	w.WriteInt(0x01020304)
	if !bytes.Equal(w.Bytes(), []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Errorf("int is not big-endian: % X", w.Bytes())
	}

	w = wire.NewWriter()
	w.WriteShort(0x0102)
	if !bytes.Equal(w.Bytes(), []byte{0x01, 0x02}) {
		t.Errorf("short is not big-endian: % X", w.Bytes())
	}
}

func TestStringRoundTrip(t *testing.T) {
	t.Parallel()

	for _, s := range []string{"", "CQL_VERSION", "héllo wörld", "日本語"} {
		w := wire.NewWriter()
		w.WriteString(s)
		w.WriteLongString(s)

		r := wire.NewReader(w.Bytes())
		got, err := r.ReadString()
		if err != nil || got != s {
			t.Errorf("string %q: got %q, %v", s, got, err)
		}
		got, err = r.ReadLongString()
		if err != nil || got != s {
			t.Errorf("long string %q: got %q, %v", s, got, err)
		}
	}
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	t.Parallel()

	r := wire.NewReader([]byte{0x00, 0x02, 0xFF, 0xFE})
	if _, err := r.ReadString(); !cqlerr.IsBadData(err) {
		t.Errorf("expected BadData, got %v", err)
	}
}

func TestReaderUnderflow(t *testing.T) {
	t.Parallel()

	r := wire.NewReader([]byte{0x00, 0x10, 'a', 'b'})
	if _, err := r.ReadString(); !cqlerr.IsBadData(err) {
		t.Errorf("short string body: expected BadData, got %v", err)
	}

	r = wire.NewReader([]byte{0x01})
	if _, err := r.ReadInt(); !cqlerr.IsBadData(err) {
		t.Errorf("short int: expected BadData, got %v", err)
	}

	r = wire.NewReader(nil)
	if _, err := r.ReadUUID(); !cqlerr.IsBadData(err) {
		t.Errorf("short uuid: expected BadData, got %v", err)
	}
}

func TestBytesRoundTrip(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		in   wire.Bytes
	}{
		{"payload", wire.NewBytes([]byte{1, 2, 3})},
		{"empty", wire.NewBytes(nil)},
		{"null", wire.NullBytes()},
		{"unset", wire.UnsetBytes()},
	}
	for _, tc := range tests {
		w := wire.NewWriter()
		w.WriteBytes(tc.in)
		r := wire.NewReader(w.Bytes())
		got, err := r.ReadBytes()
		if err != nil {
			t.Fatalf("%s: %v", tc.name, err)
		}
		if got.IsNull() != tc.in.IsNull() || got.IsUnset() != tc.in.IsUnset() {
			t.Errorf("%s: markers changed: got %v, want %v", tc.name, got, tc.in)
		}
		if !bytes.Equal(got.Data(), tc.in.Data()) {
			t.Errorf("%s: data changed: got %v, want %v", tc.name, got.Data(), tc.in.Data())
		}
	}
}

func TestBytesMarkersDistinct(t *testing.T) {
	t.Parallel()

	// null (-1), unset (-2) and a zero-length payload must stay three
	// different things on the wire.
	encode := func(b wire.Bytes) []byte {
		w := wire.NewWriter()
		w.WriteBytes(b)
		return w.Bytes()
	}
	null := encode(wire.NullBytes())
	unset := encode(wire.UnsetBytes())
	empty := encode(wire.NewBytes(nil))
	if bytes.Equal(null, unset) || bytes.Equal(null, empty) || bytes.Equal(unset, empty) {
		t.Errorf("markers collide: null=% X unset=% X empty=% X", null, unset, empty)
	}
	if !bytes.Equal(null, []byte{0xFF, 0xFF, 0xFF, 0xFF}) {
		t.Errorf("null marker: % X", null)
	}
	if !bytes.Equal(unset, []byte{0xFF, 0xFF, 0xFF, 0xFE}) {
		t.Errorf("unset marker: % X", unset)
	}
}

func TestBytesRejectsBadLength(t *testing.T) {
	t.Parallel()

	r := wire.NewReader([]byte{0xFF, 0xFF, 0xFF, 0xFD}) // -3
	if _, err := r.ReadBytes(); !cqlerr.IsBadData(err) {
		t.Errorf("expected BadData for length -3, got %v", err)
	}
}

func TestShortBytesRoundTrip(t *testing.T) {
	t.Parallel()

	id := []byte{0xDE, 0xAD, 0xBE, 0xEF}
	w := wire.NewWriter()
	w.WriteShortBytes(id)
	r := wire.NewReader(w.Bytes())
	got, err := r.ReadShortBytes()
	if err != nil || !bytes.Equal(got, id) {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestUUIDRoundTrip(t *testing.T) {
	t.Parallel()

	u := uuid.MustParse("b4b9e6c8-7a1a-4f35-8e2b-2f5a7b3c9d10")
	w := wire.NewWriter()
	w.WriteUUID(u)
	r := wire.NewReader(w.Bytes())
	got, err := r.ReadUUID()
	if err != nil || got != u {
		t.Errorf("got %v, %v", got, err)
	}
}

func TestInetRoundTrip(t *testing.T) {
	t.Parallel()

	for _, in := range []wire.Inet{
		{Addr: net.IPv4(10, 0, 0, 1).To4(), Port: 9042},
		{Addr: net.ParseIP("2001:db8::1"), Port: 19042},
	} {
		w := wire.NewWriter()
		w.WriteInet(in)
		r := wire.NewReader(w.Bytes())
		got, err := r.ReadInet()
		if err != nil {
			t.Fatalf("%v: %v", in, err)
		}
		if !got.Addr.Equal(in.Addr) || got.Port != in.Port {
			t.Errorf("got %v, want %v", got, in)
		}
	}
}

func TestInetRejectsBadAddressLength(t *testing.T) {
	t.Parallel()

	r := wire.NewReader([]byte{5, 1, 2, 3, 4, 5, 0, 0, 0, 0})
	if _, err := r.ReadInet(); !cqlerr.IsBadData(err) {
		t.Errorf("expected BadData, got %v", err)
	}
}

func TestStringCollectionsRoundTrip(t *testing.T) {
	t.Parallel()

	list := []string{"TOPOLOGY_CHANGE", "STATUS_CHANGE"}
	m := map[string]string{"CQL_VERSION": "3.4.4", "COMPRESSION": "lz4"}
	mm := map[string][]string{"COMPRESSION": {"snappy", "lz4"}, "CQL_VERSION": {"3.4.4"}}

	w := wire.NewWriter()
	w.WriteStringList(list)
	w.WriteStringMap(m)
	w.WriteStringMultimap(mm)

	r := wire.NewReader(w.Bytes())
	gotList, err := r.ReadStringList()
	if err != nil {
		t.Fatal(err)
	}
	if len(gotList) != 2 || gotList[0] != list[0] || gotList[1] != list[1] {
		t.Errorf("list: got %v", gotList)
	}
	gotMap, err := r.ReadStringMap()
	if err != nil {
		t.Fatal(err)
	}
	if len(gotMap) != 2 || gotMap["CQL_VERSION"] != "3.4.4" || gotMap["COMPRESSION"] != "lz4" {
		t.Errorf("map: got %v", gotMap)
	}
	gotMM, err := r.ReadStringMultimap()
	if err != nil {
		t.Fatal(err)
	}
	if len(gotMM["COMPRESSION"]) != 2 || gotMM["COMPRESSION"][0] != "snappy" {
		t.Errorf("multimap: got %v", gotMM)
	}
}

func TestConsistencyNames(t *testing.T) {
	t.Parallel()

	if wire.ConsistencyQuorum.String() != "QUORUM" {
		t.Errorf("got %s", wire.ConsistencyQuorum)
	}
	c, err := wire.ParseConsistency("local_quorum")
	if err != nil || c != wire.ConsistencyLocalQuorum {
		t.Errorf("got %v, %v", c, err)
	}
	if _, err := wire.ParseConsistency("bogus"); !cqlerr.IsBadParameter(err) {
		t.Errorf("expected BadParameter, got %v", err)
	}
}
