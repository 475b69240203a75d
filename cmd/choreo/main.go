package main

import (
	"fmt"
	"os"

	"github.com/hypatia-tutor/hypatia/internal/cli"
)

func main() {
	if err := cli.NewRootCmd(os.Stdin, os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "choreo:", err)
		os.Exit(1)
	}
}
