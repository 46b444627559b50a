// The main package for the komikarsip executable.
package main

import (
	"github.com/bramasta/komikarsip/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
