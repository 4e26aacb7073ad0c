package enginetest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/leapstack-labs/leapmp/pkg/engine"
)

// interpret applies the handful of statements the in-memory engine
// understands. Unknown statements are reported as syntax errors.
func (e *Engine) interpret(content string, dataMode bool) error {
	for i, stmt := range splitStatements(content) {
		fields := strings.Fields(stmt)
		if len(fields) == 0 {
			continue
		}
		var err error
		switch {
		case fields[0] == "data":
			dataMode = true
			continue
		case fields[0] == "model":
			dataMode = false
			continue
		case dataMode:
			err = e.dataStatement(stmt, fields)
		default:
			err = e.modelStatement(stmt, fields)
		}
		if err != nil {
			if d, ok := err.(*engine.Diagnostic); ok {
				d.Line = i + 1
				if herr := e.Report(d); herr != nil {
					return herr
				}
				continue
			}
			return err
		}
	}
	return nil
}

func splitStatements(content string) []string {
	var b strings.Builder
	for _, line := range strings.Split(content, "\n") {
		if i := strings.IndexByte(line, '#'); i >= 0 {
			line = line[:i]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	parts := strings.Split(b.String(), ";")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, strings.TrimSpace(p))
	}
	return out
}

func syntaxError(stmt string) error {
	return &engine.Diagnostic{Severity: engine.SeverityError, Message: fmt.Sprintf("syntax error near %q", stmt)}
}

func (e *Engine) modelStatement(stmt string, fields []string) error {
	switch fields[0] {
	case "reset":
		e.mu.Lock()
		e.entities = nil
		e.mu.Unlock()
		return nil

	case "var", "param", "set":
		if len(fields) < 2 {
			return syntaxError(stmt)
		}
		kind := map[string]engine.Kind{"var": engine.KindVariable, "param": engine.KindParameter, "set": engine.KindSet}[fields[0]]
		rest := strings.TrimSpace(strings.TrimPrefix(stmt, fields[0]))
		name, arity := declName(rest)
		if name == "" {
			return syntaxError(stmt)
		}
		e.mu.Lock()
		ent := e.declareLocked(kind, name, arity)
		if kind == engine.KindParameter && arity == 0 {
			if v, ok := initialValue(rest); ok {
				e.putLocked(ent, "val", nil, v)
			}
		}
		e.mu.Unlock()
		return nil

	case "minimize", "maximize":
		if len(fields) < 2 {
			return syntaxError(stmt)
		}
		name, arity := declName(strings.TrimSpace(strings.TrimPrefix(stmt, fields[0])))
		e.mu.Lock()
		ent := e.declareLocked(engine.KindObjective, name, arity)
		e.putLocked(ent, "sense", nil, engine.Str(fields[0]))
		e.mu.Unlock()
		return nil

	case "subject", "s.t.":
		rest := strings.TrimSpace(strings.TrimPrefix(stmt, fields[0]))
		rest = strings.TrimSpace(strings.TrimPrefix(rest, "to"))
		name, arity := declName(rest)
		if name == "" {
			return syntaxError(stmt)
		}
		e.Declare(engine.KindConstraint, name, arity)
		return nil

	case "option":
		if len(fields) < 3 {
			return syntaxError(stmt)
		}
		value := strings.Trim(strings.Join(fields[2:], " "), `"'`)
		e.mu.Lock()
		e.options[fields[1]] = value
		e.mu.Unlock()
		return nil

	case "display":
		var parts []string
		for _, expr := range strings.Split(strings.TrimSpace(strings.TrimPrefix(stmt, "display")), ",") {
			name, attr := splitSuffix(strings.TrimSpace(expr))
			e.mu.Lock()
			ent := e.byName(name)
			var v engine.Value
			if ent != nil {
				v = attrValue(ent, attr, nil)
			}
			e.mu.Unlock()
			if ent == nil {
				return &engine.Diagnostic{Severity: engine.SeverityError, Message: fmt.Sprintf("%s is not defined", name)}
			}
			parts = append(parts, fmt.Sprintf("%s = %s", strings.TrimSpace(expr), v.Text()))
		}
		e.Emit(engine.OutputDisplay, strings.Join(parts, "\n"))
		return nil

	case "solve":
		e.Emit(engine.OutputSolve, "solved")
		return nil
	}
	return syntaxError(stmt)
}

func (e *Engine) dataStatement(stmt string, fields []string) error {
	if len(fields) < 3 || fields[2] != ":=" {
		return syntaxError(stmt)
	}
	name := fields[1]
	values := fields[3:]

	e.mu.Lock()
	defer e.mu.Unlock()
	ent := e.byName(name)
	if ent == nil {
		return &engine.Diagnostic{Severity: engine.SeverityError, Message: fmt.Sprintf("%s is not defined", name)}
	}

	switch {
	case fields[0] == "set" && ent.Kind == engine.KindSet:
		members := make([]engine.Tuple, len(values))
		for i, v := range values {
			members[i] = engine.Tuple{literal(v)}
		}
		key := ent.touch(nil)
		ent.members[key] = members
	case fields[0] == "param" && ent.Kind == engine.KindParameter && ent.Arity == 0 && len(values) == 1:
		e.putLocked(ent, "val", nil, literal(values[0]))
	case fields[0] == "param" && ent.Kind == engine.KindParameter && ent.Arity == 1 && len(values)%2 == 0:
		for i := 0; i < len(values); i += 2 {
			e.putLocked(ent, "val", engine.Tuple{literal(values[i])}, literal(values[i+1]))
		}
	default:
		return syntaxError(stmt)
	}
	return nil
}

// declName extracts the declared name and the number of indexing
// dimensions from the text following a declaration keyword.
func declName(rest string) (string, int) {
	end := strings.IndexAny(rest, " \t\n{:=<>")
	name := rest
	if end >= 0 {
		name = rest[:end]
		rest = strings.TrimSpace(rest[end:])
	} else {
		rest = ""
	}
	if !strings.HasPrefix(rest, "{") {
		return name, 0
	}
	depth, arity := 0, 1
	for _, r := range rest {
		switch r {
		case '{', '(':
			depth++
		case '}', ')':
			depth--
			if depth == 0 {
				return name, arity
			}
		case ',':
			if depth == 1 {
				arity++
			}
		}
	}
	return name, arity
}

func initialValue(rest string) (engine.Value, bool) {
	i := strings.Index(rest, ":=")
	if i < 0 {
		return engine.Value{}, false
	}
	return literal(strings.TrimSpace(rest[i+2:])), true
}

func literal(s string) engine.Value {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return engine.Num(f)
	}
	return engine.Str(strings.Trim(s, `"'`))
}
