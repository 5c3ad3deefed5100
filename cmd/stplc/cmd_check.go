package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stlang/internal/analyze"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

var checkCmd = &cobra.Command{
	Use:   "check [file...]",
	Short: "Check syntax and semantics of Structured Text sources",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCheck,
}

func runCheck(cmd *cobra.Command, args []string) error {
	hasError := false
	for _, path := range args {
		n, err := checkFile(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "ERROR in %s: %v\n", path, err)
			hasError = true
			continue
		}
		if n > 0 {
			hasError = true
		} else {
			fmt.Printf("OK: %s\n", path)
		}
	}
	if hasError {
		os.Exit(1)
	}
	return nil
}

// checkFile runs the full diagnostic pipeline over one file and prints
// each finding; it returns the count of diagnostics printed.
func checkFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	src := string(data)
	file := symbols.FileID(path)

	root, parseDiags := syntax.Parse(src)
	for _, d := range parseDiags {
		fmt.Printf("%s:%d: syntax: %s\n", path, d.Offset, d.Message)
	}

	table := symbols.Build(file, root)
	for _, d := range table.Diags {
		fmt.Printf("%s:%d: %s: %s\n", path, d.Offset, d.Code, d.Message)
	}

	result := analyze.Analyze(file, root, table)
	for _, d := range result.Diags {
		fmt.Printf("%s:%d: %s: %s (%s)\n", path, d.Offset, d.Code, d.Message, d.IECRef)
	}

	return len(parseDiags) + len(table.Diags) + len(result.Diags), nil
}
