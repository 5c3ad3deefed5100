package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stlang/internal/lsp"
	"stlang/internal/symbols"
)

var lspCacheEntries int

var lspCmd = &cobra.Command{
	Use:   "lsp",
	Short: "Run the language server over stdio",
	Long: `lsp starts the same language server stlangd serves over stdio,
for editors that launch the toolchain as a single binary rather than a
separate daemon.`,
	RunE: runLSP,
}

func init() {
	lspCmd.Flags().IntVar(&lspCacheEntries, "cache-entries", 4096, "memoized query cache size")
}

func runLSP(cmd *cobra.Command, args []string) error {
	srv := lsp.NewServer(lspCacheEntries, nil, readFileDisk)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	return srv.ServeStdio(ctx)
}

func readFileDisk(file symbols.FileID) (string, error) {
	data, err := os.ReadFile(string(file))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
