// Package backend builds and runs the external cluster commands that
// carry a dispatch: a direct mpiexec launch, an srun-wrapped launch, or
// a qsub submission that is polled to completion.
package backend

import (
	"fmt"
	"strings"

	"github.com/me/stardis/pkg/model"
)

// BuildCommand renders the exact shell line for the configured backend.
// It is pure: the same config, entry point and argument string always
// produce the same command. Optional resource fields render a flag only
// when set; a zero value omits the flag entirely rather than rendering
// a zero-valued one.
//
// workerEntry is the worker entry point path; args is the trailing
// argument string handed to the worker verbatim.
func BuildCommand(cfg *model.BackendConfig, workerEntry, args string) (string, model.Backend, error) {
	if err := cfg.Validate(); err != nil {
		return "", "", err
	}

	launch := launchCommand(cfg, workerEntry, args)

	switch cfg.Backend {
	case model.BackendLocal:
		return launch, model.BackendLocal, nil

	case model.BackendSlurm:
		return slurmCommand(cfg, launch), model.BackendSlurm, nil

	case model.BackendTorque:
		return torqueCommand(cfg, workerEntry, args), model.BackendTorque, nil
	}

	// Validate rejects unknown tags; this is unreachable.
	return "", "", &model.ConfigError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", cfg.Backend)}
}

// launchCommand builds the inner parallel-launch command shared by the
// local and slurm backends.
func launchCommand(cfg *model.BackendConfig, workerEntry, args string) string {
	parts := []string{"mpiexec", "-np", fmt.Sprintf("%d", cfg.NP)}
	if cfg.Hostfile != "" {
		parts = append(parts, "--hostfile", cfg.Hostfile)
	}
	if cfg.BySlot {
		parts = append(parts, "--byslot")
	}
	if cfg.Interpreter != "" {
		parts = append(parts, cfg.Interpreter)
	}
	parts = append(parts, workerEntry)
	if args != "" {
		parts = append(parts, args)
	}
	return strings.Join(parts, " ")
}

// slurmCommand wraps the launch command in an srun invocation. Memory,
// time and partition each appear only when non-zero / non-empty.
func slurmCommand(cfg *model.BackendConfig, launch string) string {
	parts := []string{"srun"}
	if cfg.TimeMinutes != 0 {
		parts = append(parts, fmt.Sprintf("--time=%d", cfg.TimeMinutes))
	}
	if cfg.MemoryMB != 0 {
		parts = append(parts, fmt.Sprintf("--mem=%d", cfg.MemoryMB))
	}
	if cfg.Partition != "" {
		parts = append(parts, fmt.Sprintf("--partition=%s", cfg.Partition))
	}
	// srun re-launches via plain mpirun.
	parts = append(parts, strings.Replace(launch, "mpiexec", "mpirun", 1))
	return strings.Join(parts, " ")
}

// torqueCommand builds the echo-piped qsub submission. Wall time is
// rendered HH:MM:SS from the minute count; the mppmem suffix appears
// only for a non-zero memory request; email, alert and job-name flags
// append in that order when present.
func torqueCommand(cfg *model.BackendConfig, workerEntry, args string) string {
	var inner []string
	inner = append(inner, "mpirun")
	if cfg.Interpreter != "" {
		inner = append(inner, cfg.Interpreter)
	}
	inner = append(inner, workerEntry)
	if args != "" {
		inner = append(inner, args)
	}

	resources := fmt.Sprintf("nodes=%d,walltime=%s", cfg.Nodes, walltime(cfg.TimeMinutes))
	if cfg.MemoryMB != 0 {
		resources += fmt.Sprintf(",mppmem=%dM", cfg.MemoryMB)
	}

	cmd := fmt.Sprintf("echo %q | qsub -V -l %s", strings.Join(inner, " "), resources)

	if cfg.Email != "" {
		cmd += fmt.Sprintf(" -M %s", cfg.Email)
		if cfg.Alerts != "" {
			cmd += fmt.Sprintf(" -m %s", cfg.Alerts)
		}
	}
	if cfg.JobName != "" {
		cmd += fmt.Sprintf(" -N %s", cfg.JobName)
	}
	return cmd
}

// walltime renders a minute count as HH:MM:SS.
func walltime(minutes int) string {
	total := minutes * 60
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, total%3600/60, total%60)
}
