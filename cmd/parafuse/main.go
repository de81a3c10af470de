// Package main provides the entry point for the parafuse CLI.
package main

import (
	"os"

	"github.com/answerdesk/parafuse/cmd/parafuse/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
