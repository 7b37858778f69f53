// Package main is the entry point for codepocket.
//
// The main package stays minimal: all wiring happens in internal/cli, which
// loads configuration, opens the stores and builds the sync engine for each
// command. cmd/ holds executables by Go convention.
package main

import (
	"os"

	"github.com/sakif/codepocket/internal/cli"
)

func main() {
	os.Exit(cli.Execute(os.Args[1:], os.Stdout, os.Stderr))
}
