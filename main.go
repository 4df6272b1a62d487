package main

import (
	"os"

	"github.com/parnexcodes/ferry/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
