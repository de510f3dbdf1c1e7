// The main package for the linkmapper executable.
package main

import (
	"github.com/JakeFAU/linkmapper/cmd"
)

// main defers all execution to the Cobra CLI.
func main() {
	cmd.Execute()
}
