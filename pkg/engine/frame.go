package engine

// RawFrame is the wire form of a table exchanged with the interpreter.
// Each row holds the index values followed by the data values, so a
// well-formed row has len(IndexColumns)+len(ValueColumns) elements.
type RawFrame struct {
	IndexColumns []string  `json:"index_columns"`
	ValueColumns []string  `json:"value_columns"`
	Rows         [][]Value `json:"rows"`
}

// Width returns the expected length of every row.
func (f *RawFrame) Width() int {
	return len(f.IndexColumns) + len(f.ValueColumns)
}
