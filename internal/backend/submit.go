package backend

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/me/stardis/pkg/model"
)

// Runner executes shell command lines. It exists so tests can stand in
// for the cluster CLIs (mpiexec, srun, qsub, qstat, qdel).
type Runner interface {
	// Run executes the command and returns its exit code.
	Run(ctx context.Context, command string) (int, error)

	// Output executes the command and returns its combined output.
	Output(ctx context.Context, command string) (string, error)
}

// ShellRunner runs command lines through "sh -c". The builder produces
// shell lines (pipes, quoting), so submission goes through a shell
// rather than a direct argv exec.
type ShellRunner struct{}

func (ShellRunner) Run(ctx context.Context, command string) (int, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	err := cmd.Run()
	if err == nil {
		return 0, nil
	}
	if exitErr, ok := err.(*exec.ExitError); ok {
		return exitErr.ExitCode(), nil
	}
	return -1, err
}

func (ShellRunner) Output(ctx context.Context, command string) (string, error) {
	out, err := exec.CommandContext(ctx, "sh", "-c", command).Output()
	return string(out), err
}

// PollFailurePolicy names what the submitter does when a status query
// fails mid-poll.
type PollFailurePolicy string

// AssumeCompleteOnPollError ends the polling loop on any query failure
// and presumes the job finished. This silently succeeds on an ambiguous
// failure; the job status is recorded UNKNOWN and a warning is logged
// so the ambiguity stays visible.
const AssumeCompleteOnPollError PollFailurePolicy = "assume-complete"

// DefaultPollInterval is the fixed sleep between status queries.
const DefaultPollInterval = 5 * time.Second

// Submitter launches the built command for a backend. Local and slurm
// launches run in the foreground; torque submissions return a job
// identifier that is polled until terminal.
type Submitter struct {
	runner       Runner
	pollInterval time.Duration
	policy       PollFailurePolicy
	logger       *slog.Logger

	// Progress, when set, receives the latest advisory status line per
	// poll. It is not part of the programmatic contract.
	Progress func(line string)
}

// NewSubmitter creates a Submitter using the given runner. A nil runner
// defaults to ShellRunner.
func NewSubmitter(runner Runner, logger *slog.Logger) *Submitter {
	if runner == nil {
		runner = ShellRunner{}
	}
	return &Submitter{
		runner:       runner,
		pollInterval: DefaultPollInterval,
		policy:       AssumeCompleteOnPollError,
		logger:       logger.With("component", "submitter"),
	}
}

// SetPollInterval overrides the fixed poll sleep. Tests use this to
// poll fast; production keeps DefaultPollInterval.
func (s *Submitter) SetPollInterval(d time.Duration) {
	s.pollInterval = d
}

// Submit runs the command for the given backend and blocks until the
// job is terminal. For torque, the returned handle carries the queue's
// job identifier; foreground backends have none.
//
// Cancelling ctx during a torque poll triggers a best-effort qdel of
// the remote job before returning; for foreground backends the launch
// process itself is killed.
func (s *Submitter) Submit(ctx context.Context, tag model.Backend, command string) (*model.JobHandle, error) {
	switch tag {
	case model.BackendLocal, model.BackendSlurm:
		return s.submitForeground(ctx, tag, command)
	case model.BackendTorque:
		return s.submitTorque(ctx, command)
	}
	return nil, &model.ConfigError{Field: "backend", Reason: fmt.Sprintf("unknown backend %q", tag)}
}

func (s *Submitter) submitForeground(ctx context.Context, tag model.Backend, command string) (*model.JobHandle, error) {
	s.logger.Info("launching", "backend", tag, "command", command)

	handle := &model.JobHandle{Backend: tag, Status: model.JobStatusRunning}
	code, err := s.runner.Run(ctx, command)
	if err != nil {
		handle.Status = model.JobStatusFailed
		return handle, &model.SubmissionError{Backend: tag, Command: command, Err: err}
	}
	if code != 0 {
		handle.Status = model.JobStatusFailed
		return handle, &model.SubmissionError{Backend: tag, Command: command, Err: fmt.Errorf("exit status %d", code)}
	}
	handle.Status = model.JobStatusComplete
	return handle, nil
}

func (s *Submitter) submitTorque(ctx context.Context, command string) (*model.JobHandle, error) {
	s.logger.Info("submitting", "backend", model.BackendTorque, "command", command)

	out, err := s.runner.Output(ctx, command)
	if err != nil {
		return nil, &model.SubmissionError{Backend: model.BackendTorque, Command: command, Err: err}
	}
	jobID := strings.TrimSpace(out)
	if jobID == "" {
		return nil, &model.SubmissionError{Backend: model.BackendTorque, Command: command, Err: fmt.Errorf("qsub printed no job id")}
	}

	handle := &model.JobHandle{Backend: model.BackendTorque, ExternalID: jobID, Status: model.JobStatusSubmitted}
	s.logger.Info("job submitted", "job_id", jobID)
	s.report(fmt.Sprintf("job %s submitted; interrupting will not stop it, use 'qdel %s'", jobID, jobID))

	return s.poll(ctx, handle)
}

// poll queries job status until terminal, sleeping the fixed interval
// between queries. Submission strictly precedes the first poll.
func (s *Submitter) poll(ctx context.Context, handle *model.JobHandle) (*model.JobHandle, error) {
	jobID := handle.ExternalID
	for {
		if err := ctx.Err(); err != nil {
			s.kill(jobID)
			handle.Status = model.JobStatusFailed
			return handle, err
		}

		out, err := s.runner.Output(ctx, "qstat -a "+jobID)
		if err != nil {
			// Policy AssumeCompleteOnPollError: the loop ends and the
			// job is presumed finished, status left UNKNOWN.
			perr := &model.PollError{JobID: jobID, Err: err}
			s.logger.Warn("status query failed, assuming job complete",
				"policy", string(s.policy), "error", perr)
			handle.Status = model.JobStatusUnknown
			return handle, nil
		}

		status, line, ok := parseQstatStatus(out)
		if !ok {
			perr := &model.PollError{JobID: jobID, Err: fmt.Errorf("unparseable qstat output %q", out)}
			s.logger.Warn("status query unparseable, assuming job complete",
				"policy", string(s.policy), "error", perr)
			handle.Status = model.JobStatusUnknown
			return handle, nil
		}

		s.report(line)

		if status == "C" {
			handle.Status = model.JobStatusComplete
			s.logger.Info("job finished", "job_id", jobID)
			return handle, nil
		}
		handle.Status = model.JobStatusRunning

		select {
		case <-ctx.Done():
			s.kill(jobID)
			handle.Status = model.JobStatusFailed
			return handle, ctx.Err()
		case <-time.After(s.pollInterval):
		}
	}
}

// kill best-effort removes a queued job. A local cancellation does not
// stop the remote job by itself, so qdel is attempted with a fresh
// short-lived context; failure is logged and otherwise ignored.
func (s *Submitter) kill(jobID string) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if _, err := s.runner.Run(ctx, "qdel "+jobID); err != nil {
		s.logger.Warn("qdel failed, remote job may still be running", "job_id", jobID, "error", err)
		return
	}
	s.logger.Info("remote job delete requested", "job_id", jobID)
}

func (s *Submitter) report(line string) {
	if s.Progress != nil {
		s.Progress(line)
	}
}

// parseQstatStatus extracts the status token from qstat -a output:
// the second-to-last whitespace-delimited token of the second-to-last
// line. This exact convention matches the scheduler CLI's tabular
// output, where the job row precedes a trailing newline.
func parseQstatStatus(out string) (status, line string, ok bool) {
	lines := strings.Split(out, "\n")
	if len(lines) < 2 {
		return "", "", false
	}
	line = strings.TrimRight(lines[len(lines)-2], " \t")
	fields := strings.Fields(line)
	if len(fields) < 2 {
		return "", "", false
	}
	return fields[len(fields)-2], line, true
}
