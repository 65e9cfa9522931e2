package model

import "fmt"

// Backend identifies which cluster launch mechanism runs a dispatch.
type Backend string

const (
	BackendLocal  Backend = "local"  // direct mpiexec launch
	BackendSlurm  Backend = "slurm"  // srun-wrapped launch
	BackendTorque Backend = "torque" // qsub submission with polling
)

// String returns the string representation of the backend tag.
func (b Backend) String() string {
	return string(b)
}

// Valid reports whether b is one of the known backends.
func (b Backend) Valid() bool {
	switch b {
	case BackendLocal, BackendSlurm, BackendTorque:
		return true
	}
	return false
}

// BackendConfig is the fully-populated resource configuration for one
// dispatch. It is built once per call (from flags or an HCL profile)
// and never mutated afterwards; there is no process-wide default.
//
// Optional numeric fields follow the rule that zero means "omitted":
// a zero value never renders as a zero-valued flag.
type BackendConfig struct {
	Backend Backend `json:"backend"`

	// NP is the worker process count. Distribution with fewer than
	// two processes is rejected.
	NP int `json:"np"`

	Hostfile string `json:"hostfile,omitempty"`
	BySlot   bool   `json:"byslot,omitempty"`

	// Interpreter is the worker-interpreter path prefixed before the
	// worker entry point, for entry points that are scripts. Empty
	// means the entry point is directly executable.
	Interpreter string `json:"interpreter,omitempty"`

	// Directory receives the serialized artifacts. Empty means the
	// current working directory.
	Directory string `json:"directory,omitempty"`

	// Slurm and torque resource fields.
	MemoryMB    int    `json:"memory_mb,omitempty"`
	TimeMinutes int    `json:"time_minutes,omitempty"`
	Partition   string `json:"partition,omitempty"` // slurm only

	// Torque-only fields.
	Nodes   int    `json:"nodes,omitempty"`
	Email   string `json:"email,omitempty"`
	Alerts  string `json:"alerts,omitempty"` // e.g. "abe"
	JobName string `json:"jobname,omitempty"`
}

// Validate checks the configuration before any side effect happens.
func (c *BackendConfig) Validate() error {
	if !c.Backend.Valid() {
		return &ConfigError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", c.Backend)}
	}
	if c.NP < 2 {
		return &ConfigError{Field: "np", Reason: fmt.Sprintf("distribution needs at least 2 processes, got %d", c.NP)}
	}
	if c.Backend == BackendTorque && c.Nodes < 1 {
		return &ConfigError{Field: "nodes", Reason: "torque requires a node count"}
	}
	return nil
}
