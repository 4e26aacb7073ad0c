// Package frame implements the tabular data exchanged with an engine.
//
// A Frame has ordered index columns, ordered value columns and ordered
// rows. Each row carries an index tuple with one element per index column
// and one value per value column. Frames are plain host-side values: they
// never reference engine state and are safe to keep after the session that
// produced them is closed.
package frame

import (
	"context"
	"fmt"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// Row is one row of a frame.
type Row struct {
	Index  engine.Tuple
	Values []engine.Value
}

// Frame is an ordered table of index and value columns.
type Frame struct {
	index  []string
	values []string
	rows   []Row
}

// New creates an empty frame. All column names must be distinct.
func New(indexColumns []string, valueColumns ...string) (*Frame, error) {
	seen := make(map[string]bool, len(indexColumns)+len(valueColumns))
	for _, names := range [][]string{indexColumns, valueColumns} {
		for _, name := range names {
			if seen[name] {
				return nil, &DuplicateColumnError{Name: name}
			}
			seen[name] = true
		}
	}
	return &Frame{
		index:  append([]string(nil), indexColumns...),
		values: append([]string(nil), valueColumns...),
	}, nil
}

// IndexColumns returns the index column names.
func (f *Frame) IndexColumns() []string { return append([]string(nil), f.index...) }

// ValueColumns returns the value column names.
func (f *Frame) ValueColumns() []string { return append([]string(nil), f.values...) }

// Columns returns index columns followed by value columns.
func (f *Frame) Columns() []string {
	return append(f.IndexColumns(), f.values...)
}

// AddRow appends a row. The index must have one element per index column
// and there must be one value per value column.
func (f *Frame) AddRow(index engine.Tuple, values ...engine.Value) error {
	row := len(f.rows)
	if len(index) != len(f.index) {
		return &IndexMismatchError{Row: row, Part: "index", Want: len(f.index), Got: len(index)}
	}
	if len(values) != len(f.values) {
		return &IndexMismatchError{Row: row, Part: "values", Want: len(f.values), Got: len(values)}
	}
	f.rows = append(f.rows, Row{
		Index:  append(engine.Tuple(nil), index...),
		Values: append([]engine.Value(nil), values...),
	})
	return nil
}

// Rows returns a copy of the rows in order.
func (f *Frame) Rows() []Row {
	out := make([]Row, len(f.rows))
	for i, r := range f.rows {
		out[i] = Row{
			Index:  append(engine.Tuple(nil), r.Index...),
			Values: append([]engine.Value(nil), r.Values...),
		}
	}
	return out
}

// NumRows returns the number of rows.
func (f *Frame) NumRows() int { return len(f.rows) }

// Column returns every value of the named index or value column.
func (f *Frame) Column(name string) ([]engine.Value, error) {
	for i, c := range f.index {
		if c == name {
			out := make([]engine.Value, len(f.rows))
			for j, r := range f.rows {
				out[j] = r.Index[i]
			}
			return out, nil
		}
	}
	for i, c := range f.values {
		if c == name {
			out := make([]engine.Value, len(f.rows))
			for j, r := range f.rows {
				out[j] = r.Values[i]
			}
			return out, nil
		}
	}
	return nil, &UnknownColumnError{Name: name}
}

// Records returns one map per row keyed by column name, with numbers as
// float64 and strings as string. Used for JSON and YAML rendering.
func (f *Frame) Records() []map[string]any {
	out := make([]map[string]any, len(f.rows))
	for i, r := range f.rows {
		rec := make(map[string]any, len(f.index)+len(f.values))
		for j, c := range f.index {
			rec[c] = r.Index[j].Any()
		}
		for j, c := range f.values {
			rec[c] = r.Values[j].Any()
		}
		out[i] = rec
	}
	return out
}

// FromQuery builds a frame from engine query output.
func FromQuery(raw *engine.RawFrame) (*Frame, error) {
	if raw == nil {
		return nil, fmt.Errorf("nil query result")
	}
	f, err := New(raw.IndexColumns, raw.ValueColumns...)
	if err != nil {
		return nil, err
	}
	ni := len(raw.IndexColumns)
	for i, row := range raw.Rows {
		if len(row) != raw.Width() {
			return nil, &IndexMismatchError{Row: i, Part: "row", Want: raw.Width(), Got: len(row)}
		}
		if err := f.AddRow(row[:ni], row[ni:]...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// Resolver reports whether a value column names a declared entity.
type Resolver interface {
	Declared(ctx context.Context, column string) (bool, error)
}

// ResolverFunc adapts a function to Resolver.
type ResolverFunc func(ctx context.Context, column string) (bool, error)

// Declared calls f(ctx, column).
func (f ResolverFunc) Declared(ctx context.Context, column string) (bool, error) {
	return f(ctx, column)
}

// ToAssignment serializes the frame for engine assignment, preserving row
// order. Every value column must name a declared entity.
func (f *Frame) ToAssignment(ctx context.Context, r Resolver) (*engine.RawFrame, error) {
	for _, c := range f.values {
		ok, err := r.Declared(ctx, c)
		if err != nil {
			return nil, fmt.Errorf("resolving column %s: %w", c, err)
		}
		if !ok {
			return nil, &UnknownColumnError{Name: c}
		}
	}
	raw := &engine.RawFrame{
		IndexColumns: f.IndexColumns(),
		ValueColumns: f.ValueColumns(),
		Rows:         make([][]engine.Value, len(f.rows)),
	}
	for i, row := range f.rows {
		cells := make([]engine.Value, 0, raw.Width())
		cells = append(cells, row.Index...)
		cells = append(cells, row.Values...)
		raw.Rows[i] = cells
	}
	return raw, nil
}
