// Command leapmp drives an algebraic modeling interpreter.
package main

import (
	"os"

	"github.com/leapstack-labs/leapmp/internal/cli"
	_ "github.com/leapstack-labs/leapmp/pkg/engines/bridge" // register the bridge engine
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
