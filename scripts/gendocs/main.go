// Package main generates markdown reference documentation for leapmp from
// its command tree, configuration defaults and scripting builtins.
//
// Usage:
//
//	go run ./scripts/gendocs -gen=cli -outdir=docs/cli
//	go run ./scripts/gendocs -gen=config -outdir=docs/reference
//	go run ./scripts/gendocs -gen=scripting -outdir=docs/reference
//	go run ./scripts/gendocs -gen=all
package main

import (
	"flag"
	"log"
	"os"
	"path/filepath"
)

var (
	genFlag    = flag.String("gen", "all", "what to generate: cli, config, scripting, all")
	outDirFlag = flag.String("outdir", "", "output directory (defaults based on gen type)")
)

type generator struct {
	defaultDir string
	run        func(outDir string) error
}

var generators = map[string]generator{
	"cli":       {defaultDir: filepath.Join("docs", "cli"), run: generateCLIDocs},
	"config":    {defaultDir: filepath.Join("docs", "reference"), run: generateConfigDocs},
	"scripting": {defaultDir: filepath.Join("docs", "reference"), run: generateScriptingDocs},
}

func main() {
	flag.Parse()

	names := []string{*genFlag}
	if *genFlag == "all" {
		names = []string{"cli", "config", "scripting"}
	} else if _, ok := generators[*genFlag]; !ok {
		log.Fatalf("unknown -gen value: %s (use: cli, config, scripting, all)", *genFlag)
	}

	// Find project root (where go.mod is)
	projectRoot, err := findProjectRoot()
	if err != nil {
		log.Fatalf("failed to find project root: %v", err)
	}
	log.Printf("Project root: %s", projectRoot)

	for _, name := range names {
		g := generators[name]
		outDir := *outDirFlag
		if outDir == "" || *genFlag == "all" {
			outDir = filepath.Join(projectRoot, g.defaultDir)
		}
		if err := os.MkdirAll(outDir, 0o750); err != nil {
			log.Fatalf("failed to create output directory: %v", err)
		}
		if err := g.run(outDir); err != nil {
			log.Fatalf("failed to generate %s docs: %v", name, err)
		}
	}

	log.Println("Done!")
}

// findProjectRoot walks up from current directory to find go.mod.
func findProjectRoot() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", os.ErrNotExist
		}
		dir = parent
	}
}
