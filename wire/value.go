package wire

import (
	"encoding/binary"
	"math"
	"math/big"
	"net"
	"time"

	"github.com/google/uuid"
	"gopkg.in/inf.v0"

	"github.com/cqlwire/cqlwire/cqlerr"
)

// Unset is the bind sentinel for a parameter deliberately left unset
// (wire length -2). Distinct from nil, which binds null.
var Unset = unsetValue{}

type unsetValue struct{}

// MapEntry is one key/value pair of a decoded map column. Maps decode
// to an entry slice so the server's insertion order is preserved and
// unhashable keys (blobs, collections) remain representable.
type MapEntry struct {
	Key   any
	Value any
}

// UDTValue is one named field of a decoded user-defined type value.
type UDTValue struct {
	Name  string
	Value any
}

// The date type counts days as an unsigned 32-bit integer centered on
// the epoch at 2^31.
const dateCenter = int64(1 << 31)

// DecodeValue interprets a [bytes] payload according to a type
// descriptor. Null decodes to nil and unset to the Unset sentinel; both
// are distinct from any decoded empty value.
func DecodeValue(b Bytes, t DataType) (any, error) {
	if b.IsNull() {
		return nil, nil
	}
	if b.IsUnset() {
		return Unset, nil
	}
	data := b.Data()

	switch t.ID {
	case TypeAscii, TypeVarchar:
		return string(data), nil

	case TypeBlob, TypeCustom:
		out := make([]byte, len(data))
		copy(out, data)
		return out, nil

	case TypeBoolean:
		if len(data) != 1 {
			return nil, badLen(t, 1, len(data))
		}
		return data[0] != 0, nil

	case TypeTinyint:
		if len(data) != 1 {
			return nil, badLen(t, 1, len(data))
		}
		return int8(data[0]), nil

	case TypeSmallint:
		if len(data) != 2 {
			return nil, badLen(t, 2, len(data))
		}
		return int16(binary.BigEndian.Uint16(data)), nil //nolint:gosec // interpreting as signed

	case TypeInt:
		if len(data) != 4 {
			return nil, badLen(t, 4, len(data))
		}
		return int32(binary.BigEndian.Uint32(data)), nil //nolint:gosec // interpreting as signed

	case TypeBigint, TypeCounter:
		if len(data) != 8 {
			return nil, badLen(t, 8, len(data))
		}
		return int64(binary.BigEndian.Uint64(data)), nil //nolint:gosec // interpreting as signed

	case TypeFloat:
		if len(data) != 4 {
			return nil, badLen(t, 4, len(data))
		}
		return math.Float32frombits(binary.BigEndian.Uint32(data)), nil

	case TypeDouble:
		if len(data) != 8 {
			return nil, badLen(t, 8, len(data))
		}
		return math.Float64frombits(binary.BigEndian.Uint64(data)), nil

	case TypeTimestamp:
		if len(data) != 8 {
			return nil, badLen(t, 8, len(data))
		}
		ms := int64(binary.BigEndian.Uint64(data)) //nolint:gosec // interpreting as signed
		return time.Unix(ms/1000, (ms%1000)*int64(time.Millisecond)).UTC(), nil

	case TypeDate:
		if len(data) != 4 {
			return nil, badLen(t, 4, len(data))
		}
		days := int64(binary.BigEndian.Uint32(data)) - dateCenter
		return time.Unix(days*86400, 0).UTC(), nil

	case TypeTime:
		if len(data) != 8 {
			return nil, badLen(t, 8, len(data))
		}
		ns := int64(binary.BigEndian.Uint64(data)) //nolint:gosec // interpreting as signed
		return time.Duration(ns), nil

	case TypeUUID, TypeTimeUUID:
		if len(data) != 16 {
			return nil, badLen(t, 16, len(data))
		}
		var u uuid.UUID
		copy(u[:], data)
		return u, nil

	case TypeInet:
		if len(data) != 4 && len(data) != 16 {
			return nil, cqlerr.New(cqlerr.BadData, "wire: inet value has %d bytes", len(data))
		}
		ip := make(net.IP, len(data))
		copy(ip, data)
		return ip, nil

	case TypeVarint:
		return decodeVarint(data), nil

	case TypeDecimal:
		if len(data) < 4 {
			return nil, cqlerr.New(cqlerr.BadData, "wire: decimal value has %d bytes", len(data))
		}
		scale := int32(binary.BigEndian.Uint32(data[:4])) //nolint:gosec // interpreting as signed
		unscaled := decodeVarint(data[4:])
		return inf.NewDecBig(unscaled, inf.Scale(scale)), nil

	case TypeList, TypeSet:
		return decodeCollection(data, *t.Elem)

	case TypeMap:
		return decodeMap(data, *t.Key, *t.Value)

	case TypeTuple:
		return decodeTuple(data, t.Elems)

	case TypeUDT:
		return decodeUDT(data, t.Fields)
	}
	return nil, cqlerr.New(cqlerr.BadData, "wire: cannot decode value of type %s", t)
}

func badLen(t DataType, want, got int) error {
	return cqlerr.New(cqlerr.BadData, "wire: %s value has %d bytes, want %d", t, got, want)
}

func decodeCollection(data []byte, elem DataType) ([]any, error) {
	r := NewReader(data)
	n, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, cqlerr.New(cqlerr.BadData, "wire: negative collection size %d", n)
	}
	out := make([]any, 0, n)
	for i := 0; i < int(n); i++ {
		eb, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		v, err := DecodeValue(eb, elem)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func decodeMap(data []byte, key, value DataType) ([]MapEntry, error) {
	r := NewReader(data)
	n, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if n < 0 {
		return nil, cqlerr.New(cqlerr.BadData, "wire: negative map size %d", n)
	}
	out := make([]MapEntry, 0, n)
	for i := 0; i < int(n); i++ {
		kb, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		k, err := DecodeValue(kb, key)
		if err != nil {
			return nil, err
		}
		vb, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		v, err := DecodeValue(vb, value)
		if err != nil {
			return nil, err
		}
		out = append(out, MapEntry{Key: k, Value: v})
	}
	return out, nil
}

func decodeTuple(data []byte, elems []DataType) ([]any, error) {
	r := NewReader(data)
	out := make([]any, 0, len(elems))
	for _, et := range elems {
		eb, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		v, err := DecodeValue(eb, et)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// decodeUDT tolerates a value that stops short of the declared field
// list; the server omits trailing fields added after the value was
// written, and those decode to null.
func decodeUDT(data []byte, fields []UDTField) ([]UDTValue, error) {
	r := NewReader(data)
	out := make([]UDTValue, 0, len(fields))
	for _, f := range fields {
		if r.Remaining() == 0 {
			out = append(out, UDTValue{Name: f.Name})
			continue
		}
		fb, err := r.ReadBytes()
		if err != nil {
			return nil, err
		}
		v, err := DecodeValue(fb, f.Type)
		if err != nil {
			return nil, err
		}
		out = append(out, UDTValue{Name: f.Name, Value: v})
	}
	return out, nil
}

// decodeVarint interprets a big-endian two's complement integer of any
// width. An empty payload is zero.
func decodeVarint(data []byte) *big.Int {
	n := new(big.Int).SetBytes(data)
	if len(data) > 0 && data[0]&0x80 != 0 {
		shift := new(big.Int).Lsh(big.NewInt(1), uint(len(data))*8)
		n.Sub(n, shift)
	}
	return n
}

// encodeVarint emits the minimal big-endian two's complement form.
func encodeVarint(n *big.Int) []byte {
	switch n.Sign() {
	case 0:
		return []byte{0}
	case 1:
		b := n.Bytes()
		if b[0]&0x80 != 0 {
			return append([]byte{0}, b...)
		}
		return b
	}
	// Negative: grow width until the value fits in two's complement.
	width := (n.BitLen() + 7) / 8
	if width == 0 {
		width = 1
	}
	shift := new(big.Int).Lsh(big.NewInt(1), uint(width)*8)
	v := new(big.Int).Add(n, shift)
	b := v.Bytes()
	out := make([]byte, width)
	copy(out[width-len(b):], b)
	if out[0]&0x80 == 0 {
		// Sign bit lost; widen by one byte of sign fill.
		return append([]byte{0xFF}, out...)
	}
	return out
}

// EncodeValue converts a Go value to the [bytes] payload for a column
// of the given type. nil binds null, Unset binds the not-set marker.
// A value the column type cannot carry fails with BadParameter before
// any I/O happens.
func EncodeValue(v any, t DataType) (Bytes, error) {
	if v == nil {
		return NullBytes(), nil
	}
	if _, ok := v.(unsetValue); ok {
		return UnsetBytes(), nil
	}

	w := NewWriter()
	switch t.ID {
	case TypeAscii, TypeVarchar:
		s, ok := v.(string)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		return NewBytes([]byte(s)), nil

	case TypeBlob, TypeCustom:
		b, ok := v.([]byte)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		return NewBytes(b), nil

	case TypeBoolean:
		b, ok := v.(bool)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		if b {
			return NewBytes([]byte{1}), nil
		}
		return NewBytes([]byte{0}), nil

	case TypeTinyint:
		n, ok := asInt64(v)
		if !ok || n < math.MinInt8 || n > math.MaxInt8 {
			return Bytes{}, badBind(v, t)
		}
		return NewBytes([]byte{byte(int8(n))}), nil

	case TypeSmallint:
		n, ok := asInt64(v)
		if !ok || n < math.MinInt16 || n > math.MaxInt16 {
			return Bytes{}, badBind(v, t)
		}
		w.WriteShort(uint16(int16(n))) //nolint:gosec // range checked above
		return NewBytes(w.Bytes()), nil

	case TypeInt:
		n, ok := asInt64(v)
		if !ok || n < math.MinInt32 || n > math.MaxInt32 {
			return Bytes{}, badBind(v, t)
		}
		w.WriteInt(int32(n))
		return NewBytes(w.Bytes()), nil

	case TypeBigint, TypeCounter:
		n, ok := asInt64(v)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		w.WriteLong(n)
		return NewBytes(w.Bytes()), nil

	case TypeFloat:
		f, ok := v.(float32)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		w.WriteInt(int32(math.Float32bits(f))) //nolint:gosec // raw bit pattern
		return NewBytes(w.Bytes()), nil

	case TypeDouble:
		var f float64
		switch x := v.(type) {
		case float64:
			f = x
		case float32:
			f = float64(x)
		default:
			return Bytes{}, badBind(v, t)
		}
		w.WriteLong(int64(math.Float64bits(f))) //nolint:gosec // raw bit pattern
		return NewBytes(w.Bytes()), nil

	case TypeTimestamp:
		ts, ok := v.(time.Time)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		w.WriteLong(ts.UnixMilli())
		return NewBytes(w.Bytes()), nil

	case TypeDate:
		ts, ok := v.(time.Time)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		days := ts.Unix() / 86400
		w.WriteInt(int32(uint32(days + dateCenter))) //nolint:gosec // wrapping into the centered encoding
		return NewBytes(w.Bytes()), nil

	case TypeTime:
		d, ok := v.(time.Duration)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		w.WriteLong(int64(d))
		return NewBytes(w.Bytes()), nil

	case TypeUUID, TypeTimeUUID:
		u, ok := v.(uuid.UUID)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		return NewBytes(u[:]), nil

	case TypeInet:
		ip, ok := v.(net.IP)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		if v4 := ip.To4(); v4 != nil {
			ip = v4
		}
		return NewBytes(ip), nil

	case TypeVarint:
		n, ok := v.(*big.Int)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		return NewBytes(encodeVarint(n)), nil

	case TypeDecimal:
		d, ok := v.(*inf.Dec)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		w.WriteInt(int32(d.Scale()))
		return NewBytes(append(w.Bytes(), encodeVarint(d.UnscaledBig())...)), nil

	case TypeList, TypeSet:
		elems, ok := v.([]any)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		w.WriteInt(int32(len(elems))) //nolint:gosec // frame limit caps element count
		for _, e := range elems {
			eb, err := EncodeValue(e, *t.Elem)
			if err != nil {
				return Bytes{}, err
			}
			w.WriteBytes(eb)
		}
		return NewBytes(w.Bytes()), nil

	case TypeMap:
		entries, ok := v.([]MapEntry)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		w.WriteInt(int32(len(entries))) //nolint:gosec // frame limit caps entry count
		for _, e := range entries {
			kb, err := EncodeValue(e.Key, *t.Key)
			if err != nil {
				return Bytes{}, err
			}
			vb, err := EncodeValue(e.Value, *t.Value)
			if err != nil {
				return Bytes{}, err
			}
			w.WriteBytes(kb)
			w.WriteBytes(vb)
		}
		return NewBytes(w.Bytes()), nil

	case TypeTuple:
		elems, ok := v.([]any)
		if !ok || len(elems) != len(t.Elems) {
			return Bytes{}, badBind(v, t)
		}
		for i, e := range elems {
			eb, err := EncodeValue(e, t.Elems[i])
			if err != nil {
				return Bytes{}, err
			}
			w.WriteBytes(eb)
		}
		return NewBytes(w.Bytes()), nil

	case TypeUDT:
		fields, ok := v.([]UDTValue)
		if !ok {
			return Bytes{}, badBind(v, t)
		}
		byName := make(map[string]any, len(fields))
		for _, f := range fields {
			byName[f.Name] = f.Value
		}
		for _, spec := range t.Fields {
			fb, err := EncodeValue(byName[spec.Name], spec.Type)
			if err != nil {
				return Bytes{}, err
			}
			w.WriteBytes(fb)
		}
		return NewBytes(w.Bytes()), nil
	}
	return Bytes{}, cqlerr.New(cqlerr.BadParameter, "wire: cannot bind to column type %s", t)
}

func badBind(v any, t DataType) error {
	return cqlerr.New(cqlerr.BadParameter, "wire: cannot bind %T to column type %s", v, t)
}

func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	}
	return 0, false
}

// EncodeInferred converts a Go value for a plain QUERY, where no column
// specs exist to bind against; the wire form is inferred from the Go
// type alone.
func EncodeInferred(v any) (Bytes, error) {
	if v == nil {
		return NullBytes(), nil
	}
	switch x := v.(type) {
	case unsetValue:
		return UnsetBytes(), nil
	case string:
		return EncodeValue(x, Scalar(TypeVarchar))
	case []byte:
		return EncodeValue(x, Scalar(TypeBlob))
	case bool:
		return EncodeValue(x, Scalar(TypeBoolean))
	case int, int64:
		return EncodeValue(x, Scalar(TypeBigint))
	case int32:
		return EncodeValue(x, Scalar(TypeInt))
	case int16:
		return EncodeValue(x, Scalar(TypeSmallint))
	case int8:
		return EncodeValue(x, Scalar(TypeTinyint))
	case float32:
		return EncodeValue(x, Scalar(TypeFloat))
	case float64:
		return EncodeValue(x, Scalar(TypeDouble))
	case time.Time:
		return EncodeValue(x, Scalar(TypeTimestamp))
	case time.Duration:
		return EncodeValue(x, Scalar(TypeTime))
	case uuid.UUID:
		return EncodeValue(x, Scalar(TypeUUID))
	case net.IP:
		return EncodeValue(x, Scalar(TypeInet))
	case *big.Int:
		return EncodeValue(x, Scalar(TypeVarint))
	case *inf.Dec:
		return EncodeValue(x, Scalar(TypeDecimal))
	case Bytes:
		return x, nil
	}
	return Bytes{}, cqlerr.New(cqlerr.BadParameter, "wire: cannot infer a wire type for %T", v)
}
