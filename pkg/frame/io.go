package frame

import (
	"database/sql"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// FromSQLRows reads a result set into a frame. The first indexCount
// columns become index columns, the rest value columns.
func FromSQLRows(rows *sql.Rows, indexCount int) (*Frame, error) {
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	if indexCount < 0 || indexCount > len(cols) {
		return nil, fmt.Errorf("index count %d out of range for %d columns", indexCount, len(cols))
	}
	f, err := New(cols[:indexCount], cols[indexCount:]...)
	if err != nil {
		return nil, err
	}

	for rows.Next() {
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}

		cells := make([]engine.Value, len(cols))
		for i, raw := range values {
			v, err := sqlValue(raw)
			if err != nil {
				return nil, fmt.Errorf("row %d column %s: %w", f.NumRows(), cols[i], err)
			}
			cells[i] = v
		}
		if err := f.AddRow(cells[:indexCount], cells[indexCount:]...); err != nil {
			return nil, err
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return f, nil
}

func sqlValue(raw any) (engine.Value, error) {
	switch v := raw.(type) {
	case nil:
		return engine.Value{}, errors.New("NULL has no value in a model")
	case bool:
		if v {
			return engine.Num(1), nil
		}
		return engine.Num(0), nil
	case time.Time:
		return engine.Str(v.Format(time.RFC3339)), nil
	case int8:
		return engine.Num(float64(v)), nil
	case int16:
		return engine.Num(float64(v)), nil
	case uint8:
		return engine.Num(float64(v)), nil
	case uint16:
		return engine.Num(float64(v)), nil
	default:
		return engine.ValueOf(v)
	}
}

// ReadCSV reads a frame from CSV with a header row. The first indexCount
// columns become index columns. A column is numeric when every cell in
// it is a plain decimal number or a signed infinity ("+Inf", "-Inf") as
// written by WriteCSV; all other columns hold strings. Tokens such as
// "007", "NaN" or "0x1F" are never read as numbers.
func ReadCSV(r io.Reader, indexCount int) (*Frame, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}
	if indexCount < 0 || indexCount > len(header) {
		return nil, fmt.Errorf("index count %d out of range for %d columns", indexCount, len(header))
	}
	f, err := New(header[:indexCount], header[indexCount:]...)
	if err != nil {
		return nil, err
	}

	var records [][]string
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV row %d: %w", len(records)+1, err)
		}
		records = append(records, record)
	}

	numeric := make([]bool, len(header))
	for col := range header {
		numeric[col] = true
		for _, record := range records {
			if _, ok := numberToken(record[col]); !ok {
				numeric[col] = false
				break
			}
		}
	}

	for _, record := range records {
		cells := make([]engine.Value, len(record))
		for i, s := range record {
			if n, ok := numberToken(s); ok && numeric[i] {
				cells[i] = engine.Num(n)
			} else {
				cells[i] = engine.Str(s)
			}
		}
		if err := f.AddRow(cells[:indexCount], cells[indexCount:]...); err != nil {
			return nil, err
		}
	}
	return f, nil
}

// numberToken parses s if it is written the way a number is formatted:
// an optional minus sign, no leading zeros, no hex or special names other
// than a signed infinity.
func numberToken(s string) (float64, bool) {
	switch s {
	case "+Inf":
		return math.Inf(1), true
	case "-Inf":
		return math.Inf(-1), true
	}
	body := strings.TrimPrefix(s, "-")
	if body == "" {
		return 0, false
	}
	if c := body[0]; c != '.' && !isDigit(c) {
		return 0, false
	}
	if len(body) > 1 && body[0] == '0' && isDigit(body[1]) {
		return 0, false
	}
	if strings.ContainsAny(body, "xXpP_") {
		return 0, false
	}
	n, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return n, true
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// WriteCSV writes the frame as CSV with a header row.
func (f *Frame) WriteCSV(w io.Writer) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(f.Columns()); err != nil {
		return err
	}
	for _, row := range f.rows {
		record := make([]string, 0, len(row.Index)+len(row.Values))
		for _, v := range row.Index {
			record = append(record, v.Text())
		}
		for _, v := range row.Values {
			record = append(record, v.Text())
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
