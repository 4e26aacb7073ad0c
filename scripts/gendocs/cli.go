package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/leapstack-labs/leapmp/internal/cli"
	"github.com/leapstack-labs/leapmp/internal/config"
)

// generateCLIDocs writes index.md plus one page per command, nested
// commands included (data pull -> data-pull.md).
func generateCLIDocs(outDir string) error {
	log.Printf("Generating CLI docs to %s", outDir)

	root := cli.NewRootCmd()
	if err := writePage(outDir, "index.md", cliIndex(root)); err != nil {
		return err
	}

	var walk func(cmd *cobra.Command) error
	walk = func(cmd *cobra.Command) error {
		for _, sub := range documented(cmd) {
			if err := writePage(outDir, pageName(sub), commandPage(sub)); err != nil {
				return fmt.Errorf("command %s: %w", sub.CommandPath(), err)
			}
			if err := walk(sub); err != nil {
				return err
			}
		}
		return nil
	}
	return walk(root)
}

func writePage(outDir, name string, w *MarkdownWriter) error {
	log.Printf("  %s", name)
	return os.WriteFile(filepath.Join(outDir, name), w.Bytes(), 0o600)
}

// documented lists the visible subcommands of cmd.
func documented(cmd *cobra.Command) []*cobra.Command {
	var out []*cobra.Command
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || !sub.IsAvailableCommand() {
			continue
		}
		out = append(out, sub)
	}
	return out
}

// pageName turns "leapmp data pull" into "data-pull.md".
func pageName(cmd *cobra.Command) string {
	parts := strings.Fields(cmd.CommandPath())[1:]
	return strings.Join(parts, "-") + ".md"
}

func cliIndex(root *cobra.Command) *MarkdownWriter {
	w := NewMarkdownWriter()
	w.Frontmatter("CLI Reference", "Command-line interface reference for leapmp")
	w.GeneratedMarker()
	w.Header(1, "CLI Reference")
	w.Paragraph(root.Long)
	w.CodeBlock("bash", root.UseLine())

	w.Header(2, "Commands")
	var rows [][]string
	var collect func(cmd *cobra.Command)
	collect = func(cmd *cobra.Command) {
		for _, sub := range documented(cmd) {
			name := strings.TrimPrefix(sub.CommandPath(), root.Name()+" ")
			link := fmt.Sprintf("[%s](%s)", InlineCode(name), strings.TrimSuffix(pageName(sub), ".md"))
			rows = append(rows, []string{link, cleanDescription(sub.Short)})
			collect(sub)
		}
	}
	collect(root)
	w.Table([]string{"Command", "Description"}, rows)

	w.Header(2, "Global Flags")
	w.Table(flagHeaders, flagRows(root.PersistentFlags()))

	w.Header(2, "Environment")
	w.Paragraph("Flags override " + InlineCode(config.EnvPrefix) + " variables, which override " + InlineCode(config.ConfigFileNames[0]) + ".")
	w.Table([]string{"Variable", "Key", "Description"}, envRows())
	return w
}

// envRows derives the scalar environment overrides from the config schema.
func envRows() [][]string {
	var rows [][]string
	for _, f := range getConfigSchema() {
		if f.Category == "datasource" || strings.HasPrefix(f.Type, "map") || strings.HasPrefix(f.Type, "[]") {
			continue
		}
		name := config.EnvPrefix + strings.ToUpper(strings.ReplaceAll(f.Name, ".", "__"))
		rows = append(rows, []string{InlineCode(name), InlineCode(f.Name), f.Description})
	}
	return rows
}

func commandPage(cmd *cobra.Command) *MarkdownWriter {
	w := NewMarkdownWriter()
	w.Frontmatter(cmd.CommandPath(), cmd.Short)
	w.GeneratedMarker()
	w.Header(1, cmd.CommandPath())
	desc := cmd.Long
	if desc == "" {
		desc = cmd.Short
	}
	w.Paragraph(desc)
	w.CodeBlock("bash", cmd.UseLine())

	if len(cmd.Aliases) > 0 {
		w.Paragraph("Aliases: " + InlineCode(strings.Join(cmd.Aliases, ", ")))
	}
	if subs := documented(cmd); len(subs) > 0 {
		w.Header(2, "Subcommands")
		var rows [][]string
		for _, sub := range subs {
			link := fmt.Sprintf("[%s](%s)", InlineCode(sub.Name()), strings.TrimSuffix(pageName(sub), ".md"))
			rows = append(rows, []string{link, cleanDescription(sub.Short)})
		}
		w.Table([]string{"Subcommand", "Description"}, rows)
	}
	if cmd.HasAvailableLocalFlags() {
		w.Header(2, "Flags")
		w.Table(flagHeaders, flagRows(cmd.LocalFlags()))
	}
	if cmd.Example != "" {
		w.Header(2, "Examples")
		w.CodeBlock("bash", cleanExample(cmd.Example))
	}
	return w
}

var flagHeaders = []string{"Flag", "Type", "Default", "Description"}

func flagRows(flags *pflag.FlagSet) [][]string {
	var rows [][]string
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		name := InlineCode("--" + f.Name)
		if f.Shorthand != "" {
			name += ", " + InlineCode("-"+f.Shorthand)
		}
		def := f.DefValue
		if def != "" && def != "[]" {
			def = InlineCode(def)
		} else {
			def = ""
		}
		rows = append(rows, []string{name, f.Value.Type(), def, cleanDescription(f.Usage)})
	})
	return rows
}

// cleanExample strips the indentation shared by all non-blank lines.
func cleanExample(example string) string {
	lines := strings.Split(strings.Trim(example, "\n"), "\n")
	indent := -1
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		n := len(line) - len(strings.TrimLeft(line, " \t"))
		if indent < 0 || n < indent {
			indent = n
		}
	}
	for i, line := range lines {
		if len(line) >= indent && indent > 0 {
			lines[i] = line[indent:]
		}
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
