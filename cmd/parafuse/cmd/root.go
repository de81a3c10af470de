// Package cmd provides the CLI commands for parafuse.
package cmd

import (
	"github.com/spf13/cobra"

	"github.com/answerdesk/parafuse/internal/logging"
	"github.com/answerdesk/parafuse/pkg/version"
)

var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for the parafuse CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "parafuse",
		Short: "Paraphrase-fanout answer retrieval",
		Long: `Parafuse answers a question by searching a vector index with several
paraphrases of the question in parallel and fusing the ranked lists by
consensus voting. Answers that multiple phrasings agree on rise to the top.

Collaborators (an OpenAI-compatible embedding/chat endpoint and a Qdrant
collection of answers) are configured via .parafuse.yaml or PARAFUSE_*
environment variables.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	cmd.SetVersionTemplate("parafuse version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.parafuse/logs/")
	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRun = stopLogging

	cmd.AddCommand(newAskCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func startLogging(_ *cobra.Command, _ []string) error {
	cfg := logging.DefaultConfig()
	if debugMode {
		cfg = logging.DebugConfig()
	}
	cleanup, err := logging.SetupDefault(cfg)
	if err != nil {
		// Logging failures are not fatal for CLI runs.
		return nil
	}
	loggingCleanup = cleanup
	return nil
}

func stopLogging(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}
