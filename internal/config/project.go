// Package config loads the workspace root project file (stproject.yaml)
// and watches it plus the source roots for out-of-band edits.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"stlang/internal/logging"
)

// StdlibProfile selects which standard-library surface completion and
// diagnostics consider available (spec.md §4.7, §6).
type StdlibProfile string

const (
	StdlibFull      StdlibProfile = "full"
	StdlibIEC       StdlibProfile = "iec"
	StdlibNone      StdlibProfile = "none"
	StdlibAllowList StdlibProfile = "allow-list"
)

// DependencySource describes where a library dependency is fetched from.
type DependencySource struct {
	Name string `yaml:"name"`
	Path string `yaml:"path,omitempty"` // local path source

	Git  string `yaml:"git,omitempty"`
	Rev  string `yaml:"rev,omitempty"`
	Tag  string `yaml:"tag,omitempty"`
	Branch string `yaml:"branch,omitempty"`
	Lock string `yaml:"lock,omitempty"` // resolved commit, required for git sources
}

// DiagnosticOverride changes the severity of a diagnostic code.
type DiagnosticOverride struct {
	Code     string `yaml:"code"`
	Severity string `yaml:"severity"` // error|warning|info|hint|off
}

// Budgets bounds the query engine's memory usage (spec.md §4.6).
type Budgets struct {
	MaxMemoryBytes int64 `yaml:"max_memory_bytes"`
	CacheDir       string `yaml:"cache_dir"`
}

// RuntimeEndpoint configures the control protocol listener (spec.md §6).
type RuntimeEndpoint struct {
	Network string `yaml:"network"` // "unix" or "tcp"
	Address string `yaml:"address"`
	AuthToken string `yaml:"auth_token,omitempty"`
}

// Project is the decoded root project file.
type Project struct {
	Root string `yaml:"-"` // directory the file was loaded from

	IncludePaths []string            `yaml:"include_paths"`
	LibraryPaths []DependencySource  `yaml:"library_paths"`
	VendorProfile string             `yaml:"vendor_profile"`
	StdlibProfile StdlibProfile      `yaml:"stdlib_profile"`
	DiagnosticOverrides []DiagnosticOverride `yaml:"diagnostic_overrides"`
	Budgets Budgets                 `yaml:"budgets"`
	Runtime RuntimeEndpoint          `yaml:"runtime"`
	TelemetryOptIn bool              `yaml:"telemetry_opt_in"`
	Logging logging.Config           `yaml:"logging"`

	Retain RetainConfig `yaml:"retain"`
}

// RetainConfig configures the warm-restart retain store (spec.md §4.10, SPEC_FULL.md §6).
type RetainConfig struct {
	Path          string `yaml:"path"`
	FlushInterval string `yaml:"flush_interval"` // parsed with time.ParseDuration, default 100ms
	FlushOnChange bool   `yaml:"flush_on_change"`
}

// Load reads and validates the project file at path.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var p Project
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	p.Root = filepath.Dir(path)

	if p.StdlibProfile == "" {
		p.StdlibProfile = StdlibIEC
	}
	if p.Retain.FlushInterval == "" {
		p.Retain.FlushInterval = "100ms"
	}

	if err := p.validate(); err != nil {
		return nil, err
	}
	return &p, nil
}

func (p *Project) validate() error {
	for _, dep := range p.LibraryPaths {
		if dep.Git != "" && dep.Lock == "" {
			return fmt.Errorf("config: dependency %q: git source requires a resolved lock snapshot", dep.Name)
		}
		if dep.Git == "" && dep.Path == "" {
			return fmt.Errorf("config: dependency %q: must declare either path or git", dep.Name)
		}
	}
	switch p.StdlibProfile {
	case StdlibFull, StdlibIEC, StdlibNone, StdlibAllowList:
	default:
		return fmt.Errorf("config: unknown stdlib_profile %q", p.StdlibProfile)
	}
	return nil
}

// SourceRoots resolves IncludePaths against Root into absolute directories.
func (p *Project) SourceRoots() []string {
	roots := make([]string, 0, len(p.IncludePaths))
	for _, inc := range p.IncludePaths {
		if filepath.IsAbs(inc) {
			roots = append(roots, inc)
		} else {
			roots = append(roots, filepath.Join(p.Root, inc))
		}
	}
	if len(roots) == 0 {
		roots = append(roots, p.Root)
	}
	return roots
}
