// Package main is the entry point for the keeper CLI.
package main

import (
	"os"

	"github.com/keepkey/keepkey-bitcoin-only-sub000/internal/cli"
)

// Set at link time with -ldflags "-X main.version=...".
var (
	version = ""
	commit  = ""
	date    = ""
)

func main() {
	cli.SetBuildInfo(version, commit, date)
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCode(err))
	}
}
