// Package dispatch orchestrates one "run this computation, possibly
// distributed" operation: serialize the task, launch it on a cluster
// backend, collect and merge the result, and drive the post-processing
// hooks of the physics engine.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/me/stardis/internal/artifact"
	"github.com/me/stardis/internal/backend"
	"github.com/me/stardis/internal/compute"
	"github.com/me/stardis/internal/merge"
	"github.com/me/stardis/internal/store"
	"github.com/me/stardis/pkg/model"
)

// Engine is the narrow surface of the physics engine the controller
// drives. It is an external collaborator: the dispatch layer calls it,
// never implements it.
type Engine interface {
	// PrepareMesh fixes up the system's mesh before computation.
	PrepareMesh(ctx context.Context, sys *model.System) error

	// RebuildBinning rebuilds oversampled bins after a merge.
	RebuildBinning(ctx context.Context, sys *model.System) error

	// SetReferenceTime resets the system to the canonical time.
	SetReferenceTime(ctx context.Context, sys *model.System, t float64) error

	// ComputeNormalization recomputes passband-luminosity and
	// scale/offset terms over the merged synthetics.
	ComputeNormalization(ctx context.Context, sys *model.System) error

	// Postprocess runs the engine's final post-processing pass.
	Postprocess(ctx context.Context, sys *model.System) error
}

// NopEngine satisfies Engine with no-ops, for compute functions that
// handle meshing and normalization themselves.
type NopEngine struct{}

func (NopEngine) PrepareMesh(context.Context, *model.System) error { return nil }
func (NopEngine) RebuildBinning(context.Context, *model.System) error { return nil }
func (NopEngine) SetReferenceTime(context.Context, *model.System, float64) error { return nil }
func (NopEngine) ComputeNormalization(context.Context, *model.System) error { return nil }
func (NopEngine) Postprocess(context.Context, *model.System) error { return nil }

// DefaultWorkerEntry is the worker binary the cluster launcher invokes
// on every rank.
const DefaultWorkerEntry = "stardis-worker"

// Options configures a Controller. Engine defaults to NopEngine,
// WorkerEntry to DefaultWorkerEntry; Store may be nil to disable the
// ledger.
type Options struct {
	Engine      Engine
	Registry    *compute.Registry
	Submitter   *backend.Submitter
	Store       store.Store
	WorkerEntry string
	Logger      *slog.Logger
}

// Controller binds the serialization channel, command builder,
// submitter and merger into the dispatch state machine.
type Controller struct {
	engine      Engine
	registry    *compute.Registry
	submitter   *backend.Submitter
	store       store.Store
	workerEntry string
	logger      *slog.Logger
}

// NewController creates a Controller from opts.
func NewController(opts Options) *Controller {
	engine := opts.Engine
	if engine == nil {
		engine = NopEngine{}
	}
	entry := opts.WorkerEntry
	if entry == "" {
		entry = DefaultWorkerEntry
	}
	return &Controller{
		engine:      engine,
		registry:    opts.Registry,
		submitter:   opts.Submitter,
		store:       opts.Store,
		workerEntry: entry,
		logger:      opts.Logger.With("component", "dispatch"),
	}
}

// Dispatch runs fnName over task. With a nil cfg it takes the fast
// path: the function runs in-process and no artifact is ever written.
// Otherwise the task is serialized, launched on the configured backend,
// and the worker result is merged back into task before the engine's
// post-processing hooks run.
//
// The returned task is the same value that was passed in, augmented in
// place. All artifacts of the attempt are removed on every exit path.
func (c *Controller) Dispatch(ctx context.Context, task *model.Task, cfg *model.BackendConfig, fnName string) (*model.Task, error) {
	fn, err := c.registry.Get(fnName)
	if err != nil {
		return nil, err
	}

	if cfg == nil {
		return c.fastPath(ctx, task, fn)
	}

	// Validation precedes every side effect: no artifact exists yet
	// and nothing has been recorded.
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	job := &model.Job{
		ID:        uuid.New().String(),
		Function:  fnName,
		Backend:   cfg.Backend,
		Phase:     model.PhaseConfiguring,
		Status:    model.JobStatusSubmitted,
		CreatedAt: time.Now().UTC(),
		UpdatedAt: time.Now().UTC(),
	}
	c.record(job, true)
	task, err = c.distributed(ctx, task, cfg, fnName, job)
	if err != nil {
		job.Phase = model.PhaseFailed
		job.Status = model.JobStatusFailed
		job.Error = err.Error()
		c.complete(job)
		return nil, err
	}
	job.Phase = model.PhaseDone
	c.complete(job)
	return task, nil
}

// fastPath invokes the computation directly. Its call chain performs
// binning and normalization itself, so no post-processing hooks run.
func (c *Controller) fastPath(ctx context.Context, task *model.Task, fn compute.Func) (*model.Task, error) {
	c.logger.Debug("fast path, no distribution requested")
	if err := c.engine.PrepareMesh(ctx, task.System); err != nil {
		return nil, fmt.Errorf("prepare mesh: %w", err)
	}
	if err := fn(ctx, task); err != nil {
		return nil, err
	}
	return task, nil
}

func (c *Controller) distributed(ctx context.Context, task *model.Task, cfg *model.BackendConfig, fnName string, job *model.Job) (*model.Task, error) {
	if err := c.engine.PrepareMesh(ctx, task.System); err != nil {
		return nil, fmt.Errorf("prepare mesh: %w", err)
	}

	// Workers can only merge into placeholders that already exist, so
	// any requested light-travel-time dataset must be present in the
	// task before it is serialized.
	if task.WantsLTT() {
		task.System.EnsureLTTPlaceholders()
	}

	c.transition(job, model.PhaseSerializing)
	ch := artifact.NewChannel(cfg.Directory, c.logger)

	var written []artifact.Artifact
	defer func() { c.cleanup(ch, written) }()

	sysArt, err := ch.Write(task.System, "system")
	if err != nil {
		return nil, err
	}
	written = append(written, sysArt, sysArt.ResultArtifact())

	argsArt, err := ch.Write(task.Args, "args")
	if err != nil {
		return nil, err
	}
	written = append(written, argsArt)

	kwargsArt, err := ch.Write(task.Kwargs, "kwargs")
	if err != nil {
		return nil, err
	}
	written = append(written, kwargsArt)

	// Worker invocation vector: <function> <system> <args> <kwargs>.
	args := fmt.Sprintf("%s %s %s %s", fnName, sysArt.Path, argsArt.Path, kwargsArt.Path)
	command, tag, err := backend.BuildCommand(cfg, c.workerEntry, args)
	if err != nil {
		return nil, err
	}
	job.Command = command

	c.transition(job, model.PhaseSubmitting)
	handle, err := c.submitTracked(ctx, job, tag, command)
	if err != nil {
		return nil, err
	}
	job.ExternalID = handle.ExternalID
	job.Status = handle.Status

	c.transition(job, model.PhaseCollecting)
	var result model.System
	if err := ch.Read(sysArt.ResultArtifact(), &result); err != nil {
		return nil, err
	}

	c.transition(job, model.PhaseMerging)
	if _, err := merge.Synthetics(task.System, &result); err != nil {
		return nil, err
	}

	c.transition(job, model.PhasePostProcessing)
	if err := c.postprocess(ctx, task.System); err != nil {
		return nil, err
	}
	return task, nil
}

// submitTracked runs the submitter, advancing the ledger to POLLING on
// the first advisory progress line (queuing backends only).
func (c *Controller) submitTracked(ctx context.Context, job *model.Job, tag model.Backend, command string) (*model.JobHandle, error) {
	polling := false
	prev := c.submitter.Progress
	c.submitter.Progress = func(line string) {
		if !polling {
			polling = true
			c.transition(job, model.PhasePolling)
		}
		if prev != nil {
			prev(line)
		}
	}
	defer func() { c.submitter.Progress = prev }()

	return c.submitter.Submit(ctx, tag, command)
}

// postprocess runs the mandatory post-merge engine hooks, in order.
func (c *Controller) postprocess(ctx context.Context, sys *model.System) error {
	if err := c.engine.RebuildBinning(ctx, sys); err != nil {
		return fmt.Errorf("rebuild binning: %w", err)
	}
	if err := c.engine.SetReferenceTime(ctx, sys, 0); err != nil {
		return fmt.Errorf("set reference time: %w", err)
	}
	if err := c.engine.ComputeNormalization(ctx, sys); err != nil {
		return fmt.Errorf("compute normalization: %w", err)
	}
	if err := c.engine.Postprocess(ctx, sys); err != nil {
		return fmt.Errorf("postprocess: %w", err)
	}
	return nil
}

func (c *Controller) cleanup(ch *artifact.Channel, written []artifact.Artifact) {
	ch.Cleanup(written...)
}

// Ledger writes are best-effort history; a failing store never fails
// the dispatch.

func (c *Controller) record(job *model.Job, create bool) {
	if c.store == nil {
		return
	}
	// The ledger must record failures even when the dispatch context
	// is already cancelled.
	ctx := context.Background()
	var err error
	if create {
		err = c.store.CreateJob(ctx, job)
	} else {
		err = c.store.UpdateJob(ctx, job)
	}
	if err != nil {
		c.logger.Warn("job ledger write failed", "job_id", job.ID, "error", err)
	}
}

func (c *Controller) transition(job *model.Job, phase model.Phase) {
	c.logger.Debug("phase transition", "job_id", job.ID, "from", job.Phase, "to", phase)
	job.Phase = phase
	c.record(job, false)
}

func (c *Controller) complete(job *model.Job) {
	now := time.Now().UTC()
	job.CompletedAt = &now
	if job.Status == model.JobStatusSubmitted {
		job.Status = model.JobStatusComplete
	}
	c.record(job, false)
}
