package model

import "time"

// JobStatus is the observed state of a submitted cluster job.
type JobStatus string

const (
	JobStatusSubmitted JobStatus = "SUBMITTED"
	JobStatusRunning   JobStatus = "RUNNING"
	JobStatusComplete  JobStatus = "COMPLETE"
	JobStatusFailed    JobStatus = "FAILED"

	// JobStatusUnknown marks a job whose terminal state could not be
	// confirmed, e.g. after a poll failure was assumed complete.
	JobStatusUnknown JobStatus = "UNKNOWN"
)

// String returns the string representation of the job status.
func (s JobStatus) String() string {
	return string(s)
}

// IsTerminal reports whether no further status change is expected.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusComplete, JobStatusFailed, JobStatusUnknown:
		return true
	}
	return false
}

// JobHandle identifies one submitted cluster job. ExternalID is only
// present for queuing backends (torque); foreground launches have none.
type JobHandle struct {
	Backend    Backend   `json:"backend"`
	ExternalID string    `json:"external_id,omitempty"`
	Status     JobStatus `json:"status"`
}

// Phase is the dispatch controller's position in its state machine.
type Phase string

const (
	PhaseIdle           Phase = "IDLE"
	PhaseConfiguring    Phase = "CONFIGURING"
	PhaseFastPath       Phase = "FAST_PATH"
	PhaseSerializing    Phase = "SERIALIZING"
	PhaseSubmitting     Phase = "SUBMITTING"
	PhasePolling        Phase = "POLLING"
	PhaseCollecting     Phase = "COLLECTING"
	PhaseMerging        Phase = "MERGING"
	PhasePostProcessing Phase = "POST_PROCESSING"
	PhaseDone           Phase = "DONE"
	PhaseFailed         Phase = "FAILED"
)

// Job is the ledger record of one dispatch attempt.
type Job struct {
	ID          string     `json:"id"`
	Function    string     `json:"function"`
	Backend     Backend    `json:"backend"`
	Command     string     `json:"command,omitempty"`
	ExternalID  string     `json:"external_id,omitempty"`
	Phase       Phase      `json:"phase"`
	Status      JobStatus  `json:"status"`
	Error       string     `json:"error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}
