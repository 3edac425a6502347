package main

import (
	"fmt"
	"os"

	"codeops/internal/cli"
)

const Version = "2.0.0"

func main() {
	cli.Version = Version
	if err := cli.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
