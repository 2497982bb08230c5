package conn

import (
	"github.com/cqlwire/cqlwire/cqlerr"
	"github.com/cqlwire/cqlwire/message"
	"github.com/cqlwire/cqlwire/wire"
)

// Result is the outcome of one executed statement. At most one of the
// payload fields is populated; a void result leaves all of them empty.
type Result struct {
	// Rows is set for row-returning queries.
	Rows *Rows
	// Keyspace is set when the statement switched keyspaces.
	Keyspace string
	// Change is set when the statement altered the schema.
	Change *message.SchemaChangeResult
}

// Rows is an iterable decoded row set.
type Rows struct {
	Columns     []wire.ColumnSpec
	HasMore     bool
	PagingState []byte

	rows   [][]any
	byName map[string]int
}

func newRows(r message.RowsResult) *Rows {
	byName := make(map[string]int, len(r.Metadata.Columns))
	for i, c := range r.Metadata.Columns {
		if _, ok := byName[c.Name]; !ok {
			byName[c.Name] = i
		}
	}
	return &Rows{
		Columns:     r.Metadata.Columns,
		HasMore:     r.Metadata.HasMore,
		PagingState: r.Metadata.PagingState,
		rows:        r.Rows,
		byName:      byName,
	}
}

// Len is the number of rows.
func (r *Rows) Len() int { return len(r.rows) }

// Row returns the i-th row.
func (r *Rows) Row(i int) Row { return Row{rows: r, values: r.rows[i]} }

// Row is one decoded row, addressable by column index or name.
type Row struct {
	rows   *Rows
	values []any
}

// Len is the number of columns.
func (r Row) Len() int { return len(r.values) }

// Get returns the value at column index i. Null columns are nil.
func (r Row) Get(i int) any { return r.values[i] }

// ByName returns the value of the named column, reporting whether the
// result metadata knows the name.
func (r Row) ByName(name string) (any, bool) {
	i, ok := r.rows.byName[name]
	if !ok || i >= len(r.values) {
		return nil, false
	}
	return r.values[i], true
}

func toResult(resp message.Response) (*Result, error) {
	switch r := resp.(type) {
	case message.VoidResult:
		return &Result{}, nil
	case message.RowsResult:
		return &Result{Rows: newRows(r)}, nil
	case message.SetKeyspaceResult:
		return &Result{Keyspace: r.Keyspace}, nil
	case message.SchemaChangeResult:
		return &Result{Change: &r}, nil
	case *message.Error:
		return nil, cqlerr.Server(r.Code, r.Message, r.Details)
	}
	return nil, cqlerr.New(cqlerr.ProtocolViolation, "conn: query answered with %T", resp)
}
