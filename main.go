// ./main.go
package main

import (
	"github.com/xkilldash9x/dowser-cli/cmd"
)

// main is the entry point for the dowser CLI. All command-line parsing,
// configuration and execution happens in the cmd package.
func main() {
	cmd.Execute()
}
