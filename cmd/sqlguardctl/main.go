// Package main is the entry point for the sqlguardctl binary.
package main

import (
	"os"

	"sqlguard/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
