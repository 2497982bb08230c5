package message_test

import (
	"bytes"
	"testing"

	"github.com/cqlwire/cqlwire/cqlerr"
	"github.com/cqlwire/cqlwire/message"
	"github.com/cqlwire/cqlwire/wire"
)

func encodeBody(t *testing.T, req message.Request) []byte {
	t.Helper()
	w := wire.NewWriter()
	if err := req.EncodeBody(w); err != nil {
		t.Fatalf("encode %s: %v", req.Opcode(), err)
	}
	return w.Bytes()
}

func TestStartupBody(t *testing.T) {
	t.Parallel()

	body := encodeBody(t, message.Startup{Options: map[string]string{
		"CQL_VERSION": "3.4.4",
	}})

	want := []byte{
		0x00, 0x01, // one entry
		0x00, 0x0B, 'C', 'Q', 'L', '_', 'V', 'E', 'R', 'S', 'I', 'O', 'N',
		0x00, 0x05, '3', '.', '4', '.', '4',
	}
	if !bytes.Equal(body, want) {
		t.Errorf("got % X, want % X", body, want)
	}
	if len(body) != 0x16 {
		t.Errorf("body length %d, want 0x16", len(body))
	}
}

func TestStartupNeverCompressed(t *testing.T) {
	t.Parallel()

	if (message.Startup{}).CanCompress() {
		t.Error("STARTUP must not be compressible")
	}
	if (message.Options{}).CanCompress() {
		t.Error("OPTIONS must not be compressible")
	}
	if !(message.Query{}).CanCompress() {
		t.Error("QUERY should be compressible")
	}
}

func TestQueryBodyNoFlags(t *testing.T) {
	t.Parallel()

	body := encodeBody(t, message.Query{
		Query:  "USE system",
		Params: message.QueryParams{Consistency: wire.ConsistencyOne},
	})

	want := []byte{
		0x00, 0x00, 0x00, 0x0A, 'U', 'S', 'E', ' ', 's', 'y', 's', 't', 'e', 'm',
		0x00, 0x01, // consistency ONE
		0x00, // no flags
	}
	if !bytes.Equal(body, want) {
		t.Errorf("got % X, want % X", body, want)
	}
}

func TestQueryBodyWithValues(t *testing.T) {
	t.Parallel()

	v, err := wire.EncodeInferred(int32(42))
	if err != nil {
		t.Fatal(err)
	}
	body := encodeBody(t, message.Query{
		Query: "SELECT * FROM t WHERE k=?",
		Params: message.QueryParams{
			Consistency: wire.ConsistencyQuorum,
			Values:      []wire.Bytes{v},
		},
	})

	r := wire.NewReader(body)
	if _, err := r.ReadLongString(); err != nil {
		t.Fatal(err)
	}
	cons, err := r.ReadConsistency()
	if err != nil || cons != wire.ConsistencyQuorum {
		t.Errorf("consistency: %v, %v", cons, err)
	}
	flags, err := r.ReadByte()
	if err != nil || flags != 0x01 {
		t.Errorf("flags: 0x%02X, %v", flags, err)
	}
	n, err := r.ReadShort()
	if err != nil || n != 1 {
		t.Errorf("value count: %d, %v", n, err)
	}
	val, err := r.ReadBytes()
	if err != nil || !bytes.Equal(val.Data(), []byte{0, 0, 0, 0x2A}) {
		t.Errorf("value: % X, %v", val.Data(), err)
	}
	if r.Remaining() != 0 {
		t.Errorf("%d bytes left over", r.Remaining())
	}
}

func TestQueryBodyOptionalFields(t *testing.T) {
	t.Parallel()

	ts := int64(1718000000000)
	body := encodeBody(t, message.Query{
		Query: "SELECT * FROM t",
		Params: message.QueryParams{
			Consistency:       wire.ConsistencyOne,
			PageSize:          100,
			PagingState:       []byte{0xAA, 0xBB},
			SerialConsistency: wire.ConsistencySerial,
			DefaultTimestamp:  &ts,
		},
	})

	r := wire.NewReader(body)
	if _, err := r.ReadLongString(); err != nil {
		t.Fatal(err)
	}
	if _, err := r.ReadConsistency(); err != nil {
		t.Fatal(err)
	}
	flags, err := r.ReadByte()
	if err != nil {
		t.Fatal(err)
	}
	// PAGE_SIZE | WITH_PAGING_STATE | WITH_SERIAL_CONSISTENCY | WITH_DEFAULT_TIMESTAMP
	if flags != 0x04|0x08|0x10|0x20 {
		t.Errorf("flags: 0x%02X", flags)
	}
	pageSize, err := r.ReadInt()
	if err != nil || pageSize != 100 {
		t.Errorf("page size: %d, %v", pageSize, err)
	}
	state, err := r.ReadBytes()
	if err != nil || !bytes.Equal(state.Data(), []byte{0xAA, 0xBB}) {
		t.Errorf("paging state: % X, %v", state.Data(), err)
	}
	serial, err := r.ReadConsistency()
	if err != nil || serial != wire.ConsistencySerial {
		t.Errorf("serial consistency: %v, %v", serial, err)
	}
	got, err := r.ReadLong()
	if err != nil || got != ts {
		t.Errorf("timestamp: %d, %v", got, err)
	}
}

func TestQueryNamedValues(t *testing.T) {
	t.Parallel()

	v, _ := wire.EncodeInferred("x")
	body := encodeBody(t, message.Query{
		Query: "SELECT * FROM t WHERE k=:k",
		Params: message.QueryParams{
			Consistency: wire.ConsistencyOne,
			Values:      []wire.Bytes{v},
			Names:       []string{"k"},
		},
	})

	r := wire.NewReader(body)
	_, _ = r.ReadLongString()
	_, _ = r.ReadConsistency()
	flags, _ := r.ReadByte()
	if flags != 0x01|0x40 {
		t.Errorf("flags: 0x%02X", flags)
	}
	if n, _ := r.ReadShort(); n != 1 {
		t.Errorf("count %d", n)
	}
	name, err := r.ReadString()
	if err != nil || name != "k" {
		t.Errorf("name %q, %v", name, err)
	}
}

func TestQueryNamesArityMismatch(t *testing.T) {
	t.Parallel()

	v, _ := wire.EncodeInferred("x")
	w := wire.NewWriter()
	err := message.Query{
		Query: "q",
		Params: message.QueryParams{
			Values: []wire.Bytes{v},
			Names:  []string{"a", "b"},
		},
	}.EncodeBody(w)
	if !cqlerr.IsBadParameter(err) {
		t.Errorf("expected BadParameter, got %v", err)
	}
}

func TestExecuteBody(t *testing.T) {
	t.Parallel()

	id := []byte{0x01, 0x02, 0x03}
	body := encodeBody(t, message.Execute{
		ID:     id,
		Params: message.QueryParams{Consistency: wire.ConsistencyOne},
	})

	r := wire.NewReader(body)
	gotID, err := r.ReadShortBytes()
	if err != nil || !bytes.Equal(gotID, id) {
		t.Errorf("id: % X, %v", gotID, err)
	}
}

func TestPrepareBody(t *testing.T) {
	t.Parallel()

	body := encodeBody(t, message.Prepare{Query: "SELECT * FROM t WHERE k=?"})
	r := wire.NewReader(body)
	q, err := r.ReadLongString()
	if err != nil || q != "SELECT * FROM t WHERE k=?" {
		t.Errorf("got %q, %v", q, err)
	}
	if r.Remaining() != 0 {
		t.Errorf("%d bytes left over", r.Remaining())
	}
}

func TestRegisterBody(t *testing.T) {
	t.Parallel()

	body := encodeBody(t, message.Register{EventTypes: []string{"SCHEMA_CHANGE"}})
	r := wire.NewReader(body)
	list, err := r.ReadStringList()
	if err != nil || len(list) != 1 || list[0] != "SCHEMA_CHANGE" {
		t.Errorf("got %v, %v", list, err)
	}

	w := wire.NewWriter()
	err = message.Register{EventTypes: []string{"NOT_A_THING"}}.EncodeBody(w)
	if !cqlerr.IsBadParameter(err) {
		t.Errorf("expected BadParameter, got %v", err)
	}
}
