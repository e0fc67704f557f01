// Command ideoscopectl is the operator tool for an ideoscope deployment:
// schema migrations, catalog seeding and inspection, and offline scoring.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}
