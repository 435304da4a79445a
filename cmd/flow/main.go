package main

import (
	"os"

	"github.com/fuusan091240-hub/flow-schedule/internal/cli"
)

var version = "dev"

func main() {
	if err := cli.Execute(version); err != nil {
		os.Exit(1)
	}
}
