// Command fpoadmin maintains the facility and asset records of farmer
// producer organizations.
package main

import (
	"os"

	"fpoadmin/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
