package main

import (
	"fmt"
	"log"
	"maps"
	"os"
	"path/filepath"
	"slices"

	starctx "github.com/leapstack-labs/leapmp/internal/starlark"
)

// ScriptFunction documents one predeclared script function.
type ScriptFunction struct {
	Signature   string
	Returns     string
	Description string
}

// scriptFunctions documents internal/starlark/builtins.go, keyed by name.
var scriptFunctions = map[string]ScriptFunction{
	"eval":       {"eval(statements)", "None", "Evaluate statements in the session"},
	"read":       {"read(path)", "None", "Read a model or script file"},
	"read_data":  {"read_data(path)", "None", "Read a file in data mode"},
	"solve":      {"solve()", "None", "Solve the current model"},
	"reset":      {"reset()", "None", "Discard all declarations and data"},
	"display":    {"display(*exprs)", "None", "Display expressions through the session output"},
	"option":     {"option(name)", "value or None", "Read an option; None when the interpreter does not know it"},
	"set_option": {"set_option(name, value)", "None", "Set an option from an int, float, bool or string"},
	"value":      {"value(expr)", "float or string", "Evaluate a scalar expression"},
	"entities":   {`entities(kind="variable")`, "list of strings", "Names of the declared entities of a kind"},
	"variable":   {"variable(name, *index)", "struct", "Variable instance with name, value, lb, ub and rc"},
	"data":       {"data(*exprs)", "list of dicts", "Indexed values of the expressions, one dict per row"},
	"cd":         {"cd(path=None)", "string", "Change the interpreter working directory and return it"},
}

// generateScriptingDocs generates the scripting builtins reference page.
// It fails when a builtin is undocumented, or documented but missing.
func generateScriptingDocs(outDir string) error {
	log.Printf("Generating scripting docs to %s", outDir)

	names := slices.Sorted(maps.Keys(starctx.Builtins(nil)))
	for _, name := range names {
		if _, ok := scriptFunctions[name]; !ok {
			return fmt.Errorf("builtin %s is not documented", name)
		}
	}
	for name := range scriptFunctions {
		if !slices.Contains(names, name) {
			return fmt.Errorf("documented builtin %s does not exist", name)
		}
	}

	w := NewMarkdownWriter()
	w.Frontmatter("Scripting", "Starlark functions available to leapmp scripts")
	w.GeneratedMarker()

	w.Header(1, "Scripting")
	w.Paragraph("Scripts run with " + InlineCode("leapmp script") + " are Starlark programs bound to one session. " +
		"Errors reported by the interpreter stop the script with a backtrace. " +
		"Command line arguments after the script name are available as the list " + InlineCode("args") + ".")

	w.Header(2, "Functions")
	var rows [][]string
	for _, name := range names {
		f := scriptFunctions[name]
		rows = append(rows, []string{InlineCode(f.Signature), f.Returns, f.Description})
	}
	w.Table([]string{"Function", "Returns", "Description"}, rows)

	w.Header(2, "Example")
	w.CodeBlock("python", `read("diet.mod")
read_data("diet.dat")

for solver in args:
    set_option("solver", solver)
    solve()
    print(solver, value("Total_Cost"))

for row in data("Buy", "Buy.rc"):
    print(row["index0"], row["Buy"], row["Buy.rc"])`)

	return os.WriteFile(filepath.Join(outDir, "scripting.md"), w.Bytes(), 0o600)
}
