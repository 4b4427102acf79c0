package main

import (
	"fmt"
	"os"

	"pi-capture/pkg/capturecli"
)

func main() {
	app := capturecli.NewReadmetaApp(os.Stdout)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
