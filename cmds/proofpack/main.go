package main

import (
	"os"

	"github.com/c4lab/proofpack/cmds/proofpack/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:]))
}
