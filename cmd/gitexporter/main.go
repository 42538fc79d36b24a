// Package main provides the entry point for the gitexporter CLI tool.
package main

import (
	"os"

	"github.com/open-condo-software/gitexporter/cmd/gitexporter/commands"
)

func main() {
	rootCmd := commands.NewRootCommand()

	err := rootCmd.Execute()
	if err != nil {
		commands.PrintError(rootCmd.ErrOrStderr(), err)
		os.Exit(commands.ExitCode(err))
	}
}
