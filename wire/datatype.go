package wire

import (
	"fmt"
	"strings"

	"github.com/cqlwire/cqlwire/cqlerr"
)

// TypeID is the wire tag of a column type descriptor.
type TypeID uint16

const (
	TypeCustom    TypeID = 0x0000
	TypeAscii     TypeID = 0x0001
	TypeBigint    TypeID = 0x0002
	TypeBlob      TypeID = 0x0003
	TypeBoolean   TypeID = 0x0004
	TypeCounter   TypeID = 0x0005
	TypeDecimal   TypeID = 0x0006
	TypeDouble    TypeID = 0x0007
	TypeFloat     TypeID = 0x0008
	TypeInt       TypeID = 0x0009
	TypeTimestamp TypeID = 0x000B
	TypeUUID      TypeID = 0x000C
	TypeVarchar   TypeID = 0x000D
	TypeVarint    TypeID = 0x000E
	TypeTimeUUID  TypeID = 0x000F
	TypeInet      TypeID = 0x0010
	TypeDate      TypeID = 0x0011
	TypeTime      TypeID = 0x0012
	TypeSmallint  TypeID = 0x0013
	TypeTinyint   TypeID = 0x0014
	TypeList      TypeID = 0x0020
	TypeMap       TypeID = 0x0021
	TypeSet       TypeID = 0x0022
	TypeUDT       TypeID = 0x0030
	TypeTuple     TypeID = 0x0031
)

var typeNames = map[TypeID]string{
	TypeCustom:    "custom",
	TypeAscii:     "ascii",
	TypeBigint:    "bigint",
	TypeBlob:      "blob",
	TypeBoolean:   "boolean",
	TypeCounter:   "counter",
	TypeDecimal:   "decimal",
	TypeDouble:    "double",
	TypeFloat:     "float",
	TypeInt:       "int",
	TypeTimestamp: "timestamp",
	TypeUUID:      "uuid",
	TypeVarchar:   "varchar",
	TypeVarint:    "varint",
	TypeTimeUUID:  "timeuuid",
	TypeInet:      "inet",
	TypeDate:      "date",
	TypeTime:      "time",
	TypeSmallint:  "smallint",
	TypeTinyint:   "tinyint",
	TypeList:      "list",
	TypeMap:       "map",
	TypeSet:       "set",
	TypeUDT:       "udt",
	TypeTuple:     "tuple",
}

// DataType is a recursive column type descriptor: a scalar kind, or a
// parameterised collection, tuple, user-defined type, or custom type.
type DataType struct {
	ID TypeID

	// Class is the server class name. TypeCustom only.
	Class string
	// Elem is the element type of a list or set.
	Elem *DataType
	// Key and Value are the entry types of a map.
	Key   *DataType
	Value *DataType
	// Elems are the member types of a tuple.
	Elems []DataType
	// Keyspace, Name and Fields describe a user-defined type.
	Keyspace string
	Name     string
	Fields   []UDTField
}

// UDTField is one named field of a user-defined type.
type UDTField struct {
	Name string
	Type DataType
}

func (t DataType) String() string {
	switch t.ID {
	case TypeCustom:
		return fmt.Sprintf("custom(%s)", t.Class)
	case TypeList:
		return fmt.Sprintf("list<%s>", t.Elem)
	case TypeSet:
		return fmt.Sprintf("set<%s>", t.Elem)
	case TypeMap:
		return fmt.Sprintf("map<%s, %s>", t.Key, t.Value)
	case TypeTuple:
		parts := make([]string, len(t.Elems))
		for i, e := range t.Elems {
			parts[i] = e.String()
		}
		return fmt.Sprintf("tuple<%s>", strings.Join(parts, ", "))
	case TypeUDT:
		return fmt.Sprintf("udt<%s.%s>", t.Keyspace, t.Name)
	}
	if name, ok := typeNames[t.ID]; ok {
		return name
	}
	return fmt.Sprintf("UnknownType(0x%04X)", uint16(t.ID))
}

// Scalar builds a descriptor for a non-parameterised type id.
func Scalar(id TypeID) DataType { return DataType{ID: id} }

// ListOf builds a list descriptor.
func ListOf(elem DataType) DataType { return DataType{ID: TypeList, Elem: &elem} }

// SetOf builds a set descriptor.
func SetOf(elem DataType) DataType { return DataType{ID: TypeSet, Elem: &elem} }

// MapOf builds a map descriptor.
func MapOf(key, value DataType) DataType {
	return DataType{ID: TypeMap, Key: &key, Value: &value}
}

// TupleOf builds a tuple descriptor.
func TupleOf(elems ...DataType) DataType { return DataType{ID: TypeTuple, Elems: elems} }

// ReadDataType decodes an [option] type descriptor, recursing into
// parameterised kinds.
func ReadDataType(r *Reader) (DataType, error) {
	id, err := r.ReadShort()
	if err != nil {
		return DataType{}, err
	}
	t := DataType{ID: TypeID(id)}
	switch t.ID {
	case TypeCustom:
		t.Class, err = r.ReadString()
		if err != nil {
			return DataType{}, err
		}
	case TypeList, TypeSet:
		elem, err := ReadDataType(r)
		if err != nil {
			return DataType{}, err
		}
		t.Elem = &elem
	case TypeMap:
		key, err := ReadDataType(r)
		if err != nil {
			return DataType{}, err
		}
		value, err := ReadDataType(r)
		if err != nil {
			return DataType{}, err
		}
		t.Key, t.Value = &key, &value
	case TypeTuple:
		n, err := r.ReadShort()
		if err != nil {
			return DataType{}, err
		}
		t.Elems = make([]DataType, 0, n)
		for i := 0; i < int(n); i++ {
			elem, err := ReadDataType(r)
			if err != nil {
				return DataType{}, err
			}
			t.Elems = append(t.Elems, elem)
		}
	case TypeUDT:
		if t.Keyspace, err = r.ReadString(); err != nil {
			return DataType{}, err
		}
		if t.Name, err = r.ReadString(); err != nil {
			return DataType{}, err
		}
		n, err := r.ReadShort()
		if err != nil {
			return DataType{}, err
		}
		t.Fields = make([]UDTField, 0, n)
		for i := 0; i < int(n); i++ {
			name, err := r.ReadString()
			if err != nil {
				return DataType{}, err
			}
			ft, err := ReadDataType(r)
			if err != nil {
				return DataType{}, err
			}
			t.Fields = append(t.Fields, UDTField{Name: name, Type: ft})
		}
	default:
		if _, ok := typeNames[t.ID]; !ok {
			return DataType{}, cqlerr.New(cqlerr.BadData, "wire: unknown type id 0x%04X", id)
		}
	}
	return t, nil
}

// WriteDataType encodes an [option] type descriptor.
func WriteDataType(w *Writer, t DataType) {
	w.WriteShort(uint16(t.ID))
	switch t.ID {
	case TypeCustom:
		w.WriteString(t.Class)
	case TypeList, TypeSet:
		WriteDataType(w, *t.Elem)
	case TypeMap:
		WriteDataType(w, *t.Key)
		WriteDataType(w, *t.Value)
	case TypeTuple:
		w.WriteShort(uint16(len(t.Elems))) //nolint:gosec // tuple arity fits in a short
		for _, e := range t.Elems {
			WriteDataType(w, e)
		}
	case TypeUDT:
		w.WriteString(t.Keyspace)
		w.WriteString(t.Name)
		w.WriteShort(uint16(len(t.Fields))) //nolint:gosec // field count fits in a short
		for _, f := range t.Fields {
			w.WriteString(f.Name)
			WriteDataType(w, f.Type)
		}
	}
}

// ColumnSpec describes one column of a result set or one bind parameter
// of a prepared statement.
type ColumnSpec struct {
	Keyspace string
	Table    string
	Name     string
	Type     DataType
}
