package main

import (
	"os"

	"github.com/razorquake/razorlinks/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
