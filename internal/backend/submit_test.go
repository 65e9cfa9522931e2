package backend

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/me/stardis/internal/logging"
	"github.com/me/stardis/pkg/model"
)

// fakeRunner scripts responses per command prefix and records calls.
type fakeRunner struct {
	runs    []string
	outputs []string

	runCode  int
	runErr   error
	outputFn func(command string) (string, error)
}

func (f *fakeRunner) Run(ctx context.Context, command string) (int, error) {
	f.runs = append(f.runs, command)
	return f.runCode, f.runErr
}

func (f *fakeRunner) Output(ctx context.Context, command string) (string, error) {
	f.outputs = append(f.outputs, command)
	return f.outputFn(command)
}

func qstatRow(status string) string {
	// qstat -a tabular output: header lines, the job row, trailing newline.
	return "cluster.example.edu:\n" +
		"Job ID   Username  Queue  Jobname  SessID  NDS  TSK  Memory  Time  S  Time\n" +
		"-------- --------- ------ -------- ------- ---- ---- ------- ----- - -----\n" +
		fmt.Sprintf("42.cluster  astro  batch  lc  1234  1  8  512mb  01:30  %s  00:05\n", status)
}

func TestSubmit_LocalSuccess(t *testing.T) {
	fr := &fakeRunner{}
	s := NewSubmitter(fr, logging.Discard())

	handle, err := s.Submit(context.Background(), model.BackendLocal, "mpiexec -np 4 worker")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle.Status != model.JobStatusComplete {
		t.Errorf("Status = %q, want COMPLETE", handle.Status)
	}
	if handle.ExternalID != "" {
		t.Errorf("foreground launch has job id %q", handle.ExternalID)
	}
	if len(fr.runs) != 1 || fr.runs[0] != "mpiexec -np 4 worker" {
		t.Errorf("runs = %v", fr.runs)
	}
}

func TestSubmit_SlurmNonZeroExit(t *testing.T) {
	fr := &fakeRunner{runCode: 2}
	s := NewSubmitter(fr, logging.Discard())

	handle, err := s.Submit(context.Background(), model.BackendSlurm, "srun mpirun -np 4 worker")
	if err == nil {
		t.Fatal("expected submission error")
	}
	var serr *model.SubmissionError
	if !errors.As(err, &serr) {
		t.Fatalf("error %T is not a SubmissionError", err)
	}
	if serr.Backend != model.BackendSlurm {
		t.Errorf("Backend = %q", serr.Backend)
	}
	if handle.Status != model.JobStatusFailed {
		t.Errorf("Status = %q, want FAILED", handle.Status)
	}
}

func TestSubmit_TorquePollsUntilComplete(t *testing.T) {
	statuses := []string{"Q", "R", "R", "C"}
	polls := 0
	fr := &fakeRunner{
		outputFn: func(command string) (string, error) {
			if strings.HasPrefix(command, "echo") {
				return "42.cluster\n", nil
			}
			if !strings.HasPrefix(command, "qstat -a 42.cluster") {
				t.Fatalf("unexpected command %q", command)
			}
			st := statuses[polls]
			polls++
			return qstatRow(st), nil
		},
	}
	s := NewSubmitter(fr, logging.Discard())
	s.SetPollInterval(time.Millisecond)

	var lines []string
	s.Progress = func(line string) { lines = append(lines, line) }

	handle, err := s.Submit(context.Background(), model.BackendTorque, `echo "mpirun worker" | qsub -V -l nodes=1,walltime=00:10:00`)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if handle.ExternalID != "42.cluster" {
		t.Errorf("ExternalID = %q", handle.ExternalID)
	}
	if handle.Status != model.JobStatusComplete {
		t.Errorf("Status = %q, want COMPLETE", handle.Status)
	}
	if polls != 4 {
		t.Errorf("polls = %d, want 4", polls)
	}
	// Advisory lines: one submission notice plus one per poll.
	if len(lines) != 5 {
		t.Errorf("progress lines = %d, want 5", len(lines))
	}
}

func TestSubmit_TorqueSubmissionFailure(t *testing.T) {
	fr := &fakeRunner{
		outputFn: func(command string) (string, error) {
			return "", errors.New("qsub: connection refused")
		},
	}
	s := NewSubmitter(fr, logging.Discard())

	_, err := s.Submit(context.Background(), model.BackendTorque, "echo ... | qsub")
	var serr *model.SubmissionError
	if !errors.As(err, &serr) {
		t.Fatalf("error %T is not a SubmissionError", err)
	}
}

func TestSubmit_TorqueEmptyJobID(t *testing.T) {
	fr := &fakeRunner{
		outputFn: func(command string) (string, error) { return "\n", nil },
	}
	s := NewSubmitter(fr, logging.Discard())

	_, err := s.Submit(context.Background(), model.BackendTorque, "echo ... | qsub")
	if err == nil {
		t.Fatal("expected error for empty job id")
	}
}

func TestSubmit_TorquePollErrorAssumesComplete(t *testing.T) {
	polls := 0
	fr := &fakeRunner{
		outputFn: func(command string) (string, error) {
			if strings.HasPrefix(command, "echo") {
				return "7.cluster", nil
			}
			polls++
			if polls == 1 {
				return qstatRow("R"), nil
			}
			return "", errors.New("qstat: cannot connect to server")
		},
	}
	s := NewSubmitter(fr, logging.Discard())
	s.SetPollInterval(time.Millisecond)

	handle, err := s.Submit(context.Background(), model.BackendTorque, "echo ... | qsub")
	if err != nil {
		t.Fatalf("poll failure must not fail the submit: %v", err)
	}
	if handle.Status != model.JobStatusUnknown {
		t.Errorf("Status = %q, want UNKNOWN under AssumeCompleteOnPollError", handle.Status)
	}
	if polls != 2 {
		t.Errorf("polls = %d, want 2 (no retry after failure)", polls)
	}
}

func TestSubmit_TorqueCancellationKillsRemoteJob(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fr := &fakeRunner{
		outputFn: func(command string) (string, error) {
			if strings.HasPrefix(command, "echo") {
				return "9.cluster", nil
			}
			cancel() // fire mid-poll; next iteration must see it
			return qstatRow("R"), nil
		},
	}
	s := NewSubmitter(fr, logging.Discard())
	s.SetPollInterval(time.Millisecond)

	handle, err := s.Submit(ctx, model.BackendTorque, "echo ... | qsub")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if handle.Status != model.JobStatusFailed {
		t.Errorf("Status = %q, want FAILED", handle.Status)
	}

	killed := false
	for _, run := range fr.runs {
		if run == "qdel 9.cluster" {
			killed = true
		}
	}
	if !killed {
		t.Errorf("expected best-effort qdel, runs = %v", fr.runs)
	}
}

func TestParseQstatStatus(t *testing.T) {
	status, line, ok := parseQstatStatus(qstatRow("C"))
	if !ok {
		t.Fatal("parse failed")
	}
	if status != "C" {
		t.Errorf("status = %q, want C", status)
	}
	if !strings.Contains(line, "42.cluster") {
		t.Errorf("line = %q", line)
	}

	if _, _, ok := parseQstatStatus(""); ok {
		t.Error("empty output must not parse")
	}
	if _, _, ok := parseQstatStatus("one-token\n"); ok {
		t.Error("single-token line must not parse")
	}
}
