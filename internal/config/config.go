// Package config loads cluster resource profiles. A profile is an HCL
// file with one backend block per named profile:
//
//	backend "torque" {
//	  np     = 8
//	  nodes  = 2
//	  time   = 90
//	  memory = 512
//	}
//
// Loading produces fully-populated BackendConfig values; there is no
// process-wide mutable default.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/me/stardis/pkg/model"
)

// CLIConfig holds settings shared by the stardis subcommands.
type CLIConfig struct {
	LogLevel  string // debug, info, warn, error
	LogFormat string // text, json
	DBPath    string // job ledger path, ":memory:" for testing
	Addr      string // status API listen address
}

// DefaultCLIConfig returns sensible defaults. The ledger lives under
// the user's home directory unless overridden.
func DefaultCLIConfig() CLIConfig {
	dbPath := "stardis.db"
	if home, err := os.UserHomeDir(); err == nil {
		dbPath = filepath.Join(home, ".stardis", "stardis.db")
	}
	return CLIConfig{
		LogLevel:  "info",
		LogFormat: "text",
		DBPath:    dbPath,
		Addr:      ":8080",
	}
}

// hclProfileFile is the top-level structure of a profile file.
type hclProfileFile struct {
	Backends []*hclBackendBlock `hcl:"backend,block"`
}

type hclBackendBlock struct {
	Tag string `hcl:",label"`

	NP          int    `hcl:"np"`
	Hostfile    string `hcl:"hostfile,optional"`
	BySlot      bool   `hcl:"byslot,optional"`
	Interpreter string `hcl:"interpreter,optional"`
	Directory   string `hcl:"directory,optional"`

	Memory    int    `hcl:"memory,optional"` // MB
	Time      int    `hcl:"time,optional"`   // minutes
	Partition string `hcl:"partition,optional"`

	Nodes   int    `hcl:"nodes,optional"`
	Email   string `hcl:"email,optional"`
	Alerts  string `hcl:"alerts,optional"`
	JobName string `hcl:"jobname,optional"`
}

// LoadProfiles parses an HCL profile file into backend configurations,
// keyed by backend tag. The configurations are validated structurally
// (known tag) but not for resource sanity; Validate runs at dispatch
// time.
func LoadProfiles(path string) (map[model.Backend]*model.BackendConfig, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse profile %s: %w", path, diags)
	}

	var parsed hclProfileFile
	diags = gohcl.DecodeBody(hclFile.Body, nil, &parsed)
	if diags.HasErrors() {
		return nil, fmt.Errorf("decode profile %s: %w", path, diags)
	}
	if len(parsed.Backends) == 0 {
		return nil, fmt.Errorf("profile %s declares no backend block", path)
	}

	profiles := make(map[model.Backend]*model.BackendConfig, len(parsed.Backends))
	for _, block := range parsed.Backends {
		tag := model.Backend(block.Tag)
		if !tag.Valid() {
			return nil, &model.ConfigError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q in %s", block.Tag, path)}
		}
		if _, dup := profiles[tag]; dup {
			return nil, &model.ConfigError{Field: "backend", Reason: fmt.Sprintf("duplicate backend %q in %s", block.Tag, path)}
		}
		profiles[tag] = &model.BackendConfig{
			Backend:     tag,
			NP:          block.NP,
			Hostfile:    block.Hostfile,
			BySlot:      block.BySlot,
			Interpreter: block.Interpreter,
			Directory:   block.Directory,
			MemoryMB:    block.Memory,
			TimeMinutes: block.Time,
			Partition:   block.Partition,
			Nodes:       block.Nodes,
			Email:       block.Email,
			Alerts:      block.Alerts,
			JobName:     block.JobName,
		}
	}
	return profiles, nil
}

// LoadProfile loads one backend configuration from path. With an empty
// tag the file must declare exactly one backend block; otherwise the
// block with the given tag is selected.
func LoadProfile(path, tag string) (*model.BackendConfig, error) {
	profiles, err := LoadProfiles(path)
	if err != nil {
		return nil, err
	}

	if tag == "" {
		if len(profiles) != 1 {
			return nil, &model.ConfigError{Field: "backend", Reason: fmt.Sprintf("profile %s declares %d backends, pick one explicitly", path, len(profiles))}
		}
		for _, cfg := range profiles {
			return cfg, nil
		}
	}

	cfg, ok := profiles[model.Backend(tag)]
	if !ok {
		return nil, &model.ConfigError{Field: "backend", Reason: fmt.Sprintf("profile %s has no backend %q", path, tag)}
	}
	return cfg, nil
}
