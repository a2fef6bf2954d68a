package main

import (
	"os"

	"github.com/forgebridge/forgebridge/internal/cli"
)

func main() {
	os.Exit(cli.Run(os.Args[1:]))
}
