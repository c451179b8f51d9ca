package main

import (
	"os"

	"github.com/jjenkins/lawarchive/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
