package main

import (
	"fmt"
	"os"

	"github.com/BrandonDHaskell/abacus/internal/cli"
)

func main() {
	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "abacus:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
