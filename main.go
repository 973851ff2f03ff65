// The main package for the corpus executable.
package main

import (
	"github.com/JakeFAU/classical-corpus/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
