// Package main is the entry point for the mcpc CLI.
package main

import (
	"os"

	"github.com/cipherhq/mcpc/cmd/mcpc/commands"
)

func main() {
	os.Exit(commands.Execute())
}
