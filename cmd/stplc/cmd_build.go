package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"stlang/internal/bytecode"
	"stlang/internal/lower"
	"stlang/internal/symbols"
	"stlang/internal/syntax"
)

var (
	buildOut      string
	buildResource string
	buildIOMap    string
	buildCRC      bool
)

var buildCmd = &cobra.Command{
	Use:   "build [file...]",
	Short: "Compile Structured Text sources into an STBC bytecode container",
	Long: `build parses and lowers the given sources and packages their
global variable and I/O metadata into a portable STBC container
(spec.md §6). The container records enough to describe a resource to
an HMI or loader; it does not itself carry executable code, since this
toolchain's runtime interprets lowered sources directly rather than a
bytecode instruction set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runBuild,
}

func init() {
	buildCmd.Flags().StringVarP(&buildOut, "out", "o", "resource.stbc", "output container path")
	buildCmd.Flags().StringVar(&buildResource, "resource", "Main", "resource name recorded in the container")
	buildCmd.Flags().StringVar(&buildIOMap, "io-map", "", "optional YAML file mapping qualified variable names to direct addresses")
	buildCmd.Flags().BoolVar(&buildCRC, "crc", true, "append a CRC32 trailer to every section")
}

func runBuild(cmd *cobra.Command, args []string) error {
	var (
		strs      bytecode.StringTable
		variables []bytecode.VariableMeta
		tasks     []bytecode.TaskMeta
	)
	seen := map[string]bool{}
	intern := func(s string) {
		if s != "" && !seen[s] {
			seen[s] = true
			strs = append(strs, s)
		}
	}

	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		src := string(data)
		file := symbols.FileID(path)
		root, diags := syntax.Parse(src)
		if len(diags) > 0 {
			return fmt.Errorf("build: %s has %d syntax error(s), run `stplc check` first", path, len(diags))
		}
		table := symbols.Build(file, root)
		unit, lowerDiags := lower.Lower(file, root, table, src)
		if len(lowerDiags) > 0 {
			return fmt.Errorf("build: %s has %d lowering error(s)", path, len(lowerDiags))
		}

		for _, sym := range globalsOf(table) {
			intern(sym.Name)
			intern(sym.TypeName)
			variables = append(variables, bytecode.VariableMeta{
				QualifiedName: sym.Name,
				TypeName:      sym.TypeName,
				Qualifier:     qualifierName(sym.Qualifier),
				Retain:        sym.Modifiers.Retain,
			})
		}

		for declOrder, pou := range unit.POUs {
			if pou.Kind != symbols.KindProgram {
				continue
			}
			intern(pou.Name)
			tasks = append(tasks, bytecode.TaskMeta{
				Name:      pou.Name,
				Priority:  declOrder,
				DeclOrder: declOrder,
			})
		}
	}

	ioMap, err := loadIOMap(buildIOMap)
	if err != nil {
		return err
	}
	for _, e := range ioMap {
		intern(e.Symbol)
		intern(e.Address)
	}

	res := []bytecode.ResourceMeta{{
		Name:  buildResource,
		Tasks: tasks,
	}}

	enc := bytecode.NewEncoder(bytecode.SupportedMajorVersion, 0, buildCRC)
	enc.AddSection(bytecode.SectionStrings, bytecode.EncodeStringTable(strs), false)

	resBytes, err := bytecode.EncodeResources(res)
	if err != nil {
		return err
	}
	enc.AddSection(bytecode.SectionResources, resBytes, false)

	varBytes, err := bytecode.EncodeVariables(variables)
	if err != nil {
		return err
	}
	enc.AddSection(bytecode.SectionVariables, varBytes, false)

	if len(ioMap) > 0 {
		ioBytes, err := bytecode.EncodeIOMap(ioMap)
		if err != nil {
			return err
		}
		enc.AddSection(bytecode.SectionIOMap, ioBytes, false)
	}

	if err := os.WriteFile(buildOut, enc.Encode(), 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d variable(s), %d task(s))\n", buildOut, len(variables), len(tasks))
	return nil
}

func globalsOf(table *symbols.Table) []*symbols.Symbol {
	var out []*symbols.Symbol
	var walk func(s *symbols.Scope)
	walk = func(s *symbols.Scope) {
		for _, sym := range s.Symbols {
			if sym.Qualifier == symbols.QualGlobal {
				out = append(out, sym)
			}
		}
		for _, c := range s.Children {
			walk(c)
		}
	}
	walk(table.Global)
	return out
}

func qualifierName(q symbols.VarQualifier) string {
	switch q {
	case symbols.QualInput:
		return "VAR_INPUT"
	case symbols.QualOutput:
		return "VAR_OUTPUT"
	case symbols.QualInOut:
		return "VAR_IN_OUT"
	case symbols.QualGlobal:
		return "VAR_GLOBAL"
	case symbols.QualExternal:
		return "VAR_EXTERNAL"
	case symbols.QualTemp:
		return "VAR_TEMP"
	case symbols.QualConfig:
		return "VAR_CONFIG"
	default:
		return "VAR"
	}
}

func loadIOMap(path string) ([]bytecode.IOMapEntry, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("build: read io-map %s: %w", path, err)
	}
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("build: parse io-map %s: %w", filepath.Base(path), err)
	}
	entries := make([]bytecode.IOMapEntry, 0, len(raw))
	for symbol, addr := range raw {
		entries = append(entries, bytecode.IOMapEntry{Address: addr, Symbol: symbol})
	}
	return entries, nil
}
