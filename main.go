// The main package for the prefcrawler executable.
package main

import (
	"github.com/agriveille/prefecture-crawler/cmd"
)

// main is the entry point of the application.
// It defers all execution to the Cobra CLI library.
func main() {
	cmd.Execute()
}
