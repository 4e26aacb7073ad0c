package frame

import "fmt"

// DuplicateColumnError is returned when a column name appears twice.
type DuplicateColumnError struct {
	Name string
}

func (e *DuplicateColumnError) Error() string {
	return fmt.Sprintf("duplicate column %q", e.Name)
}

// IndexMismatchError is returned when a row does not have the shape the
// frame's columns require.
type IndexMismatchError struct {
	Row  int
	Part string // "index", "values" or "row"
	Want int
	Got  int
}

func (e *IndexMismatchError) Error() string {
	return fmt.Sprintf("row %d: %s has %d elements, want %d", e.Row, e.Part, e.Got, e.Want)
}

// UnknownColumnError is returned when a column does not name a declared
// entity, or does not exist in the frame.
type UnknownColumnError struct {
	Name string
}

func (e *UnknownColumnError) Error() string {
	return fmt.Sprintf("unknown column %q", e.Name)
}
