package model

import "fmt"

// ConfigError reports an invalid resource configuration. It is raised
// before any external process starts and before any artifact is
// written.
type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid backend config: %s: %s", e.Field, e.Reason)
}

// SubmissionError reports a non-zero exit from the launch or queue
// command. Artifacts written before the failure are cleaned up before
// this surfaces to the caller.
type SubmissionError struct {
	Backend Backend
	Command string
	Err     error
}

func (e *SubmissionError) Error() string {
	return fmt.Sprintf("%s submission failed: %v", e.Backend, e.Err)
}

func (e *SubmissionError) Unwrap() error { return e.Err }

// PollError reports a failure while querying job status. By policy
// (AssumeCompleteOnPollError) it ends the polling loop rather than
// failing the dispatch; it is surfaced as a warning, never returned
// from Submit.
type PollError struct {
	JobID string
	Err   error
}

func (e *PollError) Error() string {
	return fmt.Sprintf("poll job %s: %v", e.JobID, e.Err)
}

func (e *PollError) Unwrap() error { return e.Err }

// SerializationError reports a failure to durably write or read a
// payload. It is distinct from a job-level failure: the job may have
// run fine and still leave an unreadable result.
type SerializationError struct {
	Op   string // "write" or "read"
	Path string
	Err  error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("%s artifact %s: %v", e.Op, e.Path, e.Err)
}

func (e *SerializationError) Unwrap() error { return e.Err }

// MergeError reports a structural mismatch between the primary and a
// replica. No partial merge is left behind when it is returned.
type MergeError struct {
	Reason string
}

func (e *MergeError) Error() string {
	return fmt.Sprintf("merge: %s", e.Reason)
}
