package message

import (
	"github.com/cqlwire/cqlwire/cqlerr"
	"github.com/cqlwire/cqlwire/wire"
)

// RESULT body kinds.
const (
	resultKindVoid        int32 = 0x0001
	resultKindRows        int32 = 0x0002
	resultKindSetKeyspace int32 = 0x0003
	resultKindPrepared    int32 = 0x0004
	resultKindSchema      int32 = 0x0005
)

// Rows metadata flag bits.
const (
	rowsFlagGlobalTableSpec = 0x0001
	rowsFlagHasMorePages    = 0x0002
	rowsFlagNoMetadata      = 0x0004
)

// VoidResult is a result with nothing to report.
type VoidResult struct{}

func (VoidResult) isResponse() {}

// SetKeyspaceResult acknowledges a USE statement.
type SetKeyspaceResult struct {
	Keyspace string
}

func (SetKeyspaceResult) isResponse() {}

// SchemaChangeResult reports a schema alteration made by the query.
type SchemaChangeResult struct {
	ChangeType string
	Target     string
	Keyspace   string
	Name       string
	Arguments  []string
}

func (SchemaChangeResult) isResponse() {}

// RowsMetadata describes the columns of a row result.
type RowsMetadata struct {
	ColumnCount int
	Columns     []wire.ColumnSpec
	PagingState []byte
	HasMore     bool
	// NoMetadata is set when the server omitted the column specs
	// because the request asked to skip them.
	NoMetadata bool
}

// RowsResult is a row set. Values are decoded per the column specs;
// when the metadata was skipped the raw cells are kept instead.
type RowsResult struct {
	Metadata RowsMetadata
	Rows     [][]any
	Raw      [][]wire.Bytes
}

func (RowsResult) isResponse() {}

// PreparedResult carries the server-assigned statement id and the bind
// and result metadata of a prepared query.
type PreparedResult struct {
	ID        []byte
	Params    []wire.ColumnSpec
	PKIndices []uint16
	Result    RowsMetadata
}

func (PreparedResult) isResponse() {}

func decodeResult(r *wire.Reader) (Response, error) {
	kind, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	switch kind {
	case resultKindVoid:
		return VoidResult{}, nil

	case resultKindRows:
		return decodeRows(r)

	case resultKindSetKeyspace:
		ks, err := r.ReadString()
		if err != nil {
			return nil, err
		}
		return SetKeyspaceResult{Keyspace: ks}, nil

	case resultKindPrepared:
		return decodePrepared(r)

	case resultKindSchema:
		change, err := decodeSchemaChange(r)
		if err != nil {
			return nil, err
		}
		return SchemaChangeResult(change), nil
	}
	return nil, cqlerr.New(cqlerr.BadData, "message: unknown result kind 0x%04X", kind)
}

func decodeRowsMetadata(r *wire.Reader) (RowsMetadata, error) {
	var md RowsMetadata
	flags, err := r.ReadInt()
	if err != nil {
		return md, err
	}
	columnCount, err := r.ReadInt()
	if err != nil {
		return md, err
	}
	if columnCount < 0 {
		return md, cqlerr.New(cqlerr.BadData, "message: negative column count %d", columnCount)
	}
	md.ColumnCount = int(columnCount)
	md.HasMore = flags&rowsFlagHasMorePages != 0
	md.NoMetadata = flags&rowsFlagNoMetadata != 0

	if md.HasMore {
		state, err := r.ReadBytes()
		if err != nil {
			return md, err
		}
		md.PagingState = state.Data()
	}
	if md.NoMetadata {
		return md, nil
	}

	var globalKeyspace, globalTable string
	if flags&rowsFlagGlobalTableSpec != 0 {
		if globalKeyspace, err = r.ReadString(); err != nil {
			return md, err
		}
		if globalTable, err = r.ReadString(); err != nil {
			return md, err
		}
	}
	md.Columns = make([]wire.ColumnSpec, 0, md.ColumnCount)
	for i := 0; i < md.ColumnCount; i++ {
		spec := wire.ColumnSpec{Keyspace: globalKeyspace, Table: globalTable}
		if flags&rowsFlagGlobalTableSpec == 0 {
			if spec.Keyspace, err = r.ReadString(); err != nil {
				return md, err
			}
			if spec.Table, err = r.ReadString(); err != nil {
				return md, err
			}
		}
		if spec.Name, err = r.ReadString(); err != nil {
			return md, err
		}
		if spec.Type, err = wire.ReadDataType(r); err != nil {
			return md, err
		}
		md.Columns = append(md.Columns, spec)
	}
	return md, nil
}

func decodeRows(r *wire.Reader) (Response, error) {
	md, err := decodeRowsMetadata(r)
	if err != nil {
		return nil, err
	}
	rowCount, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if rowCount < 0 {
		return nil, cqlerr.New(cqlerr.BadData, "message: negative row count %d", rowCount)
	}

	result := RowsResult{Metadata: md}
	if md.NoMetadata {
		result.Raw = make([][]wire.Bytes, 0, rowCount)
		for i := 0; i < int(rowCount); i++ {
			row := make([]wire.Bytes, 0, md.ColumnCount)
			for j := 0; j < md.ColumnCount; j++ {
				cell, err := r.ReadBytes()
				if err != nil {
					return nil, err
				}
				row = append(row, cell)
			}
			result.Raw = append(result.Raw, row)
		}
		return result, nil
	}

	result.Rows = make([][]any, 0, rowCount)
	for i := 0; i < int(rowCount); i++ {
		row := make([]any, 0, md.ColumnCount)
		for j := 0; j < md.ColumnCount; j++ {
			cell, err := r.ReadBytes()
			if err != nil {
				return nil, err
			}
			v, err := wire.DecodeValue(cell, md.Columns[j].Type)
			if err != nil {
				return nil, err
			}
			row = append(row, v)
		}
		result.Rows = append(result.Rows, row)
	}
	return result, nil
}

func decodePrepared(r *wire.Reader) (Response, error) {
	id, err := r.ReadShortBytes()
	if err != nil {
		return nil, err
	}

	// Bind-parameter metadata: flags, column count, pk indices, specs.
	flags, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	columnCount, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if columnCount < 0 {
		return nil, cqlerr.New(cqlerr.BadData, "message: negative bind column count %d", columnCount)
	}
	pkCount, err := r.ReadInt()
	if err != nil {
		return nil, err
	}
	if pkCount < 0 {
		return nil, cqlerr.New(cqlerr.BadData, "message: negative pk count %d", pkCount)
	}
	pk := make([]uint16, 0, pkCount)
	for i := 0; i < int(pkCount); i++ {
		idx, err := r.ReadShort()
		if err != nil {
			return nil, err
		}
		pk = append(pk, idx)
	}

	var globalKeyspace, globalTable string
	if flags&rowsFlagGlobalTableSpec != 0 {
		if globalKeyspace, err = r.ReadString(); err != nil {
			return nil, err
		}
		if globalTable, err = r.ReadString(); err != nil {
			return nil, err
		}
	}
	params := make([]wire.ColumnSpec, 0, columnCount)
	for i := 0; i < int(columnCount); i++ {
		spec := wire.ColumnSpec{Keyspace: globalKeyspace, Table: globalTable}
		if flags&rowsFlagGlobalTableSpec == 0 {
			if spec.Keyspace, err = r.ReadString(); err != nil {
				return nil, err
			}
			if spec.Table, err = r.ReadString(); err != nil {
				return nil, err
			}
		}
		if spec.Name, err = r.ReadString(); err != nil {
			return nil, err
		}
		if spec.Type, err = wire.ReadDataType(r); err != nil {
			return nil, err
		}
		params = append(params, spec)
	}

	resultMD, err := decodeRowsMetadata(r)
	if err != nil {
		return nil, err
	}
	return PreparedResult{ID: id, Params: params, PKIndices: pk, Result: resultMD}, nil
}

// Schema-change targets.
const (
	SchemaTargetKeyspace  = "KEYSPACE"
	SchemaTargetTable     = "TABLE"
	SchemaTargetType      = "TYPE"
	SchemaTargetFunction  = "FUNCTION"
	SchemaTargetAggregate = "AGGREGATE"
)

type schemaChange struct {
	ChangeType string
	Target     string
	Keyspace   string
	Name       string
	Arguments  []string
}

// decodeSchemaChange reads the change-type/target/names block shared by
// the schema-change result and the schema-change event.
func decodeSchemaChange(r *wire.Reader) (schemaChange, error) {
	var sc schemaChange
	var err error
	if sc.ChangeType, err = r.ReadString(); err != nil {
		return sc, err
	}
	if sc.Target, err = r.ReadString(); err != nil {
		return sc, err
	}
	switch sc.Target {
	case SchemaTargetKeyspace:
		sc.Keyspace, err = r.ReadString()
	case SchemaTargetTable, SchemaTargetType:
		if sc.Keyspace, err = r.ReadString(); err != nil {
			return sc, err
		}
		sc.Name, err = r.ReadString()
	case SchemaTargetFunction, SchemaTargetAggregate:
		if sc.Keyspace, err = r.ReadString(); err != nil {
			return sc, err
		}
		if sc.Name, err = r.ReadString(); err != nil {
			return sc, err
		}
		sc.Arguments, err = r.ReadStringList()
	default:
		return sc, cqlerr.New(cqlerr.BadData, "message: unknown schema change target %q", sc.Target)
	}
	return sc, err
}
