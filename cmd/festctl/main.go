package main

import (
	"os"

	"github.com/Kwazak/umnfestival2026-sub004/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
