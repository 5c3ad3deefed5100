// Command stplc is the offline Structured Text toolchain: syntax and
// semantic checks, formatting, bytecode compilation, and a standalone
// cycle-based runtime for running a resource outside an editor.
//
// File Index
//
//	main.go       - entry point, rootCmd, global flags
//	cmd_check.go  - check: parse + symbol + semantic diagnostics
//	cmd_fmt.go    - fmt: canonical reformatting
//	cmd_build.go  - build: emit an STBC bytecode container
//	cmd_run.go    - run: load a resource and drive its cycle loop
//	cmd_lsp.go    - lsp: delegate to the language server over stdio
//	cmd_status.go - status: bubbletea dashboard over the control protocol
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	verbose bool
	logger  *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stplc",
	Short: "Structured Text compiler, checker, and runtime",
	Long: `stplc is the offline companion to the stlangd language server:
it checks and formats .st sources, compiles them into a portable
bytecode container, and runs a resource's deterministic cycle loop
standalone from its sources.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg := zap.NewProductionConfig()
		cfg.Encoding = "console"
		cfg.EncoderConfig.EncodeLevel = zap.NewDevelopmentEncoderConfig().EncodeLevel
		if verbose {
			cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
		} else {
			cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
		}
		var err error
		logger, err = cfg.Build()
		return err
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	rootCmd.AddCommand(
		checkCmd,
		fmtCmd,
		buildCmd,
		runCmd,
		lspCmd,
		statusCmd,
	)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
