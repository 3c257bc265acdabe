package main

import (
	"os"

	"github.com/KieranHarper/Yakka/cmd/yakka/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
