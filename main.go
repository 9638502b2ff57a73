// The main package for the shopsignal executable.
package main

import (
	"github.com/merchwire/shopsignal/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
