// Command stlangd is the Structured Text language server: it serves
// internal/lsp's protocol over stdio (the default, for editors that
// spawn a per-workspace process) or over TCP (for editors that attach
// to a long-lived shared server, spec.md §6 "stdio and TCP transports").
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"stlang/internal/logging"
	"stlang/internal/lsp"
	"stlang/internal/symbols"
)

var (
	listenAddr  string
	cacheSize   int
	verboseLogs bool
)

var rootCmd = &cobra.Command{
	Use:   "stlangd",
	Short: "Structured Text language server",
	Long: `stlangd answers the Language Server Protocol over stdio by
default, or over TCP when --listen is given. Each TCP connection gets
its own language server instance, isolated from the others.`,
	RunE: runServe,
}

func init() {
	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "serve over TCP at host:port instead of stdio")
	rootCmd.Flags().IntVar(&cacheSize, "cache-entries", 4096, "memoized query cache size per connection")
	rootCmd.Flags().BoolVarP(&verboseLogs, "verbose", "v", false, "enable debug logging")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	level := "warn"
	if verboseLogs {
		level = "debug"
	}
	logs, err := logging.New(logging.Config{Level: level})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	if listenAddr == "" {
		srv := lsp.NewServer(cacheSize, logs, readFileDisk)
		return srv.ServeStdio(ctx)
	}
	return serveTCP(ctx, logs)
}

func serveTCP(ctx context.Context, logs *logging.Factory) error {
	ln, err := net.Listen("tcp", listenAddr)
	if err != nil {
		return fmt.Errorf("stlangd: listen %s: %w", listenAddr, err)
	}
	defer ln.Close()

	log := logs.Get(logging.IDE)
	log.Info("listening", zap.String("address", listenAddr))

	go func() {
		<-ctx.Done()
		ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		go func() {
			defer conn.Close()
			srv := lsp.NewServer(cacheSize, logs, readFileDisk)
			if err := srv.Serve(ctx, conn, conn); err != nil {
				log.Warn("connection closed", zap.Error(err))
			}
		}()
	}
}

func readFileDisk(file symbols.FileID) (string, error) {
	data, err := os.ReadFile(string(file))
	if err != nil {
		return "", err
	}
	return string(data), nil
}
