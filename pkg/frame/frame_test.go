package frame

import (
	"bytes"
	"context"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

func TestNewRejectsDuplicateColumns(t *testing.T) {
	tests := []struct {
		name   string
		index  []string
		values []string
		dup    string
	}{
		{"within index", []string{"i", "i"}, []string{"x"}, "i"},
		{"within values", []string{"i"}, []string{"x", "x"}, "x"},
		{"across", []string{"x"}, []string{"x"}, "x"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.index, tt.values...)
			var dupErr *DuplicateColumnError
			require.ErrorAs(t, err, &dupErr)
			assert.Equal(t, tt.dup, dupErr.Name)
		})
	}
}

func TestAddRowShape(t *testing.T) {
	f, err := New([]string{"i", "j"}, "x")
	require.NoError(t, err)

	require.NoError(t, f.AddRow(engine.Tuple{engine.Str("a"), engine.Num(1)}, engine.Num(2)))

	err = f.AddRow(engine.Tuple{engine.Str("a")}, engine.Num(2))
	var mismatch *IndexMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "index", mismatch.Part)
	assert.Equal(t, 2, mismatch.Want)
	assert.Equal(t, 1, mismatch.Got)

	err = f.AddRow(engine.Tuple{engine.Str("a"), engine.Num(1)})
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, "values", mismatch.Part)

	assert.Equal(t, 1, f.NumRows())
}

func TestRowsAreCopies(t *testing.T) {
	f, err := New([]string{"i"}, "x")
	require.NoError(t, err)
	require.NoError(t, f.AddRow(engine.Tuple{engine.Num(1)}, engine.Num(10)))

	rows := f.Rows()
	rows[0].Values[0] = engine.Num(99)

	col, err := f.Column("x")
	require.NoError(t, err)
	assert.Equal(t, 10.0, col[0].Float())
}

func TestColumn(t *testing.T) {
	f, err := New([]string{"food"}, "cost", "amt")
	require.NoError(t, err)
	require.NoError(t, f.AddRow(engine.Tuple{engine.Str("BEEF")}, engine.Num(3.19), engine.Num(0)))
	require.NoError(t, f.AddRow(engine.Tuple{engine.Str("CHK")}, engine.Num(2.59), engine.Num(1)))

	food, err := f.Column("food")
	require.NoError(t, err)
	assert.Equal(t, "CHK", food[1].Text())

	cost, err := f.Column("cost")
	require.NoError(t, err)
	assert.Equal(t, 3.19, cost[0].Float())

	_, err = f.Column("nope")
	var unknown *UnknownColumnError
	assert.ErrorAs(t, err, &unknown)
}

func TestFromQuery(t *testing.T) {
	raw := &engine.RawFrame{
		IndexColumns: []string{"index0"},
		ValueColumns: []string{"x", "x.ub"},
		Rows: [][]engine.Value{
			{engine.Str("a"), engine.Num(1), engine.Num(math.Inf(1))},
			{engine.Str("b"), engine.Num(2), engine.Num(5)},
		},
	}
	f, err := FromQuery(raw)
	require.NoError(t, err)
	assert.Equal(t, []string{"index0", "x", "x.ub"}, f.Columns())
	assert.Equal(t, 2, f.NumRows())

	raw.Rows = append(raw.Rows, []engine.Value{engine.Str("c")})
	_, err = FromQuery(raw)
	var mismatch *IndexMismatchError
	require.ErrorAs(t, err, &mismatch)
	assert.Equal(t, 2, mismatch.Row)
}

func TestToAssignmentPreservesRowOrder(t *testing.T) {
	f, err := New([]string{"i"}, "x")
	require.NoError(t, err)
	for _, k := range []string{"c", "a", "b"} {
		require.NoError(t, f.AddRow(engine.Tuple{engine.Str(k)}, engine.Num(1)))
	}

	raw, err := f.ToAssignment(context.Background(), ResolverFunc(func(context.Context, string) (bool, error) {
		return true, nil
	}))
	require.NoError(t, err)
	require.Len(t, raw.Rows, 3)
	for i, k := range []string{"c", "a", "b"} {
		assert.Equal(t, k, raw.Rows[i][0].Text())
	}
}

func TestToAssignmentUnknownColumn(t *testing.T) {
	f, err := New([]string{"i"}, "x", "ghost")
	require.NoError(t, err)

	declared := ResolverFunc(func(_ context.Context, col string) (bool, error) {
		return col == "x", nil
	})
	_, err = f.ToAssignment(context.Background(), declared)
	var unknown *UnknownColumnError
	require.ErrorAs(t, err, &unknown)
	assert.Equal(t, "ghost", unknown.Name)

	boom := errors.New("boom")
	failing := ResolverFunc(func(context.Context, string) (bool, error) { return false, boom })
	_, err = f.ToAssignment(context.Background(), failing)
	assert.ErrorIs(t, err, boom)
}

func TestCSVRoundTrip(t *testing.T) {
	in := "food,cost,label\nBEEF,3.19,red\nCHK,2.59,\"white, lean\"\n"
	f, err := ReadCSV(strings.NewReader(in), 1)
	require.NoError(t, err)
	assert.Equal(t, []string{"food"}, f.IndexColumns())
	assert.Equal(t, []string{"cost", "label"}, f.ValueColumns())

	cost, err := f.Column("cost")
	require.NoError(t, err)
	assert.False(t, cost[0].IsString())

	var buf bytes.Buffer
	require.NoError(t, f.WriteCSV(&buf))
	assert.Equal(t, in, buf.String())
}

func TestCSVKeepsNumericLookingStrings(t *testing.T) {
	f, err := New([]string{"code"}, "label", "bound")
	require.NoError(t, err)
	require.NoError(t, f.AddRow(engine.Tuple{engine.Str("a")}, engine.Str("NaN"), engine.Num(math.Inf(1))))
	require.NoError(t, f.AddRow(engine.Tuple{engine.Str("007")}, engine.Str("10"), engine.Num(-0.5)))
	require.NoError(t, f.AddRow(engine.Tuple{engine.Str("0x1F")}, engine.Str("Inf"), engine.Num(math.Inf(-1))))

	var buf bytes.Buffer
	require.NoError(t, f.WriteCSV(&buf))
	back, err := ReadCSV(&buf, 1)
	require.NoError(t, err)
	require.Equal(t, f.NumRows(), back.NumRows())

	for i, row := range back.Rows() {
		want := f.Rows()[i]
		assert.True(t, row.Index.Equal(want.Index), "row %d index %v", i, row.Index)
		assert.True(t, row.Values[0].IsString(), "row %d label", i)
		assert.Equal(t, want.Values[0].Text(), row.Values[0].Text())
		assert.False(t, row.Values[1].IsString(), "row %d bound", i)
		assert.Equal(t, want.Values[1].Float(), row.Values[1].Float())
	}
}

func TestReadCSVColumnTyping(t *testing.T) {
	tests := []struct {
		name    string
		cells   []string
		numeric bool
	}{
		{"integers", []string{"1", "-2", "0"}, true},
		{"decimals", []string{"0.5", ".25", "1e-3"}, true},
		{"infinities", []string{"+Inf", "-Inf", "3"}, true},
		{"leading zero", []string{"1", "007"}, false},
		{"nan", []string{"1", "NaN"}, false},
		{"unsigned inf", []string{"Inf"}, false},
		{"hex", []string{"0x10"}, false},
		{"plus sign", []string{"+5"}, false},
		{"mixed", []string{"2", "BEEF"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := "v\n" + strings.Join(tt.cells, "\n") + "\n"
			f, err := ReadCSV(strings.NewReader(in), 0)
			require.NoError(t, err)
			col, err := f.Column("v")
			require.NoError(t, err)
			require.Len(t, col, len(tt.cells))
			for i, v := range col {
				assert.Equal(t, !tt.numeric, v.IsString(), "cell %q", tt.cells[i])
				if !tt.numeric {
					assert.Equal(t, tt.cells[i], v.Text())
				}
			}
		})
	}
}

func TestReadCSVBadIndexCount(t *testing.T) {
	_, err := ReadCSV(strings.NewReader("a,b\n1,2\n"), 3)
	assert.Error(t, err)
}

func TestFromSQLRows(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"food", "cost", "available"}).
			AddRow("BEEF", 3.19, true).
			AddRow([]byte("CHK"), int64(2), false),
	)

	rows, err := db.Query("SELECT food, cost, available FROM foods")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	f, err := FromSQLRows(rows, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, f.NumRows())

	recs := f.Records()
	assert.Equal(t, "CHK", recs[1]["food"])
	assert.Equal(t, 2.0, recs[1]["cost"])
	assert.Equal(t, 1.0, recs[0]["available"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFromSQLRowsRejectsNull(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT").WillReturnRows(
		sqlmock.NewRows([]string{"k", "v"}).AddRow("a", nil),
	)
	rows, err := db.Query("SELECT k, v FROM t")
	require.NoError(t, err)
	defer func() { _ = rows.Close() }()

	_, err = FromSQLRows(rows, 1)
	assert.ErrorContains(t, err, "NULL")
}
