package main

import (
	"os"

	"github.com/arkilian/eventagg/cmd/eventagg/commands"
)

func main() {
	if err := commands.Execute(); err != nil {
		os.Exit(1)
	}
}
