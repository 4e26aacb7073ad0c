package output

import (
	"encoding/json"
	"fmt"
	"io"
	"math"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"github.com/leapstack-labs/leapmp/pkg/engine"
	"github.com/leapstack-labs/leapmp/pkg/frame"
)

// RenderFrame writes f in the renderer's effective mode.
func (r *Renderer) RenderFrame(f *frame.Frame) error {
	return RenderFrame(r.w, r.EffectiveMode(), f)
}

// RenderFrame writes f to w in mode.
func RenderFrame(w io.Writer, mode Mode, f *frame.Frame) error {
	switch mode {
	case ModeJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(records(f))
	case ModeYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(yamlRecords(f)); err != nil {
			return err
		}
		return enc.Close()
	case ModeCSV:
		return f.WriteCSV(w)
	case ModeMarkdown:
		return renderTable(w, f, true)
	default:
		return renderTable(w, f, false)
	}
}

func renderTable(w io.Writer, f *frame.Frame, markdown bool) error {
	if f.NumRows() == 0 {
		_, err := fmt.Fprintln(w, "(0 rows)")
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.Style().Format.Header = text.FormatDefault

	cols := f.Columns()
	header := make(table.Row, len(cols))
	for i, c := range cols {
		header[i] = c
	}
	t.AppendHeader(header)

	for _, row := range f.Rows() {
		tr := make(table.Row, 0, len(cols))
		for _, v := range row.Index {
			tr = append(tr, v.Text())
		}
		for _, v := range row.Values {
			tr = append(tr, v.Text())
		}
		t.AppendRow(tr)
	}

	if markdown {
		t.RenderMarkdown()
		return nil
	}
	t.Render()
	_, err := fmt.Fprintf(w, "(%d rows)\n", f.NumRows())
	return err
}

// records keeps engine values so non-finite numbers survive JSON encoding.
func records(f *frame.Frame) []map[string]any {
	cols := f.Columns()
	out := make([]map[string]any, 0, f.NumRows())
	for _, row := range f.Rows() {
		rec := make(map[string]any, len(cols))
		i := 0
		for _, v := range row.Index {
			rec[cols[i]] = v
			i++
		}
		for _, v := range row.Values {
			rec[cols[i]] = v
			i++
		}
		out = append(out, rec)
	}
	return out
}

// yamlRecords keeps column order, which maps would lose.
func yamlRecords(f *frame.Frame) *yaml.Node {
	cols := f.Columns()
	seq := &yaml.Node{Kind: yaml.SequenceNode}
	for _, row := range f.Rows() {
		m := &yaml.Node{Kind: yaml.MappingNode}
		cells := append(append([]engine.Value(nil), row.Index...), row.Values...)
		for i, v := range cells {
			m.Content = append(m.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: cols[i]},
				yamlScalar(v),
			)
		}
		seq.Content = append(seq.Content, m)
	}
	return seq
}

func yamlScalar(v engine.Value) *yaml.Node {
	if v.IsString() {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: v.Text()}
	}
	x := v.Float()
	text := v.Text()
	switch {
	case math.IsInf(x, 1):
		text = ".inf"
	case math.IsInf(x, -1):
		text = "-.inf"
	case math.IsNaN(x):
		text = ".nan"
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Value: text}
}
