package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"stlang/internal/ide"
	"stlang/internal/syntax"
)

var (
	fmtWrite bool
	fmtCheck bool
)

var fmtCmd = &cobra.Command{
	Use:   "fmt [file...]",
	Short: "Reformat Structured Text sources to canonical style",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runFmt,
}

func init() {
	fmtCmd.Flags().BoolVarP(&fmtWrite, "write", "w", false, "write the result back to the file instead of stdout")
	fmtCmd.Flags().BoolVar(&fmtCheck, "check", false, "exit non-zero if any file would be reformatted, without writing")
}

func runFmt(cmd *cobra.Command, args []string) error {
	opts := ide.DefaultFormatOptions()
	dirty := false

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		src := string(data)
		root, _ := syntax.Parse(src)
		formatted := ide.Format(root, src, opts)

		if formatted == src {
			continue
		}
		dirty = true

		switch {
		case fmtCheck:
			fmt.Fprintf(os.Stderr, "would reformat: %s\n", path)
		case fmtWrite:
			if err := os.WriteFile(path, []byte(formatted), 0o644); err != nil {
				return err
			}
		default:
			fmt.Print(formatted)
		}
	}

	if fmtCheck && dirty {
		os.Exit(1)
	}
	return nil
}
