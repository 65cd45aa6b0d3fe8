package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:    "oplogctl",
		Usage:   "MongoDB oplog decoding CLI",
		Version: "0.1.0",
		Commands: []*cli.Command{
			decodeCommand(),
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
