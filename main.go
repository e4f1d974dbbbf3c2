package main

import (
	"os"

	"github.com/spigell/operator-finder/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
