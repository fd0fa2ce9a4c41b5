// Command rapture validates documents against reactive CUE rules.
package main

import (
	"os"

	"github.com/roach88/rapture/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
