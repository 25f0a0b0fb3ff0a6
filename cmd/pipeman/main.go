// Package main is the entry point for the pipeman CLI.
//
// pipeman builds a uSwift installer image on OpenStack, turns it into a
// bootable volume snapshot, boots one or three hosts from it and deploys
// uStack onto them.
//
// Commands: deploy, version.
//
// For detailed usage information, run:
//
//	pipeman --help
package main

import (
	"fmt"
	"os"

	"github.com/wangkuntian/pipeman/cmd/pipeman/commands"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	commands.SetVersionInfo(version, commit, date)
	if err := commands.Root().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
