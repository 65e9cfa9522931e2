// Package worker executes one replica of a computation inside a
// process launched by the cluster. The launcher starts one worker per
// rank; every rank computes its partition, non-zero ranks publish
// partial results on the shared filesystem, and rank 0 gathers them in
// rank order into the single result artifact the controller reads.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/me/stardis/internal/artifact"
	"github.com/me/stardis/internal/compute"
	"github.com/me/stardis/internal/merge"
	"github.com/me/stardis/pkg/model"
)

// rankEnvVars are checked in order for the launcher-assigned rank and
// world size. OpenMPI and MPICH/PMI spellings are both recognized.
var rankEnvVars = [][2]string{
	{"OMPI_COMM_WORLD_RANK", "OMPI_COMM_WORLD_SIZE"},
	{"PMI_RANK", "PMI_SIZE"},
}

// RankFromEnv returns the worker's rank and world size as assigned by
// the parallel launcher, or (0, 1) when launched standalone.
func RankFromEnv() (rank, size int) {
	for _, pair := range rankEnvVars {
		r, rok := os.LookupEnv(pair[0])
		s, sok := os.LookupEnv(pair[1])
		if !rok || !sok {
			continue
		}
		ri, err1 := strconv.Atoi(r)
		si, err2 := strconv.Atoi(s)
		if err1 != nil || err2 != nil {
			continue
		}
		return ri, si
	}
	return 0, 1
}

// Runtime runs one compute function against the serialized task.
type Runtime struct {
	registry *compute.Registry
	rank     int
	size     int
	logger   *slog.Logger

	// gatherInterval is how often rank 0 checks for partial results.
	gatherInterval time.Duration
}

// NewRuntime creates a Runtime for the given rank/size.
func NewRuntime(reg *compute.Registry, rank, size int, logger *slog.Logger) *Runtime {
	return &Runtime{
		registry:       reg,
		rank:           rank,
		size:           size,
		logger:         logger.With("component", "worker", "rank", rank),
		gatherInterval: 100 * time.Millisecond,
	}
}

// Execute resolves fnName, runs it over the deserialized task, and
// publishes this rank's result. The function name is validated before
// any artifact is touched.
func (r *Runtime) Execute(ctx context.Context, fnName, systemPath, argsPath, kwargsPath string) error {
	if err := r.registry.Validate(fnName); err != nil {
		return err
	}
	fn, err := r.registry.Get(fnName)
	if err != nil {
		return err
	}

	ch := artifact.NewChannel("", r.logger)
	sysArt := artifact.Artifact{Path: systemPath, Kind: artifact.KindInput}

	var sys model.System
	if err := ch.Read(sysArt, &sys); err != nil {
		return err
	}
	var args []any
	if err := ch.Read(artifact.Artifact{Path: argsPath, Kind: artifact.KindInput}, &args); err != nil {
		return err
	}
	var kwargs map[string]any
	if err := ch.Read(artifact.Artifact{Path: kwargsPath, Kind: artifact.KindInput}, &kwargs); err != nil {
		return err
	}
	if kwargs == nil {
		kwargs = make(map[string]any)
	}
	kwargs["mpi_rank"] = r.rank
	kwargs["mpi_size"] = r.size

	task := &model.Task{System: &sys, Args: args, Kwargs: kwargs}

	r.logger.Info("computing", "function", fnName)
	if err := fn(ctx, task); err != nil {
		return fmt.Errorf("compute %s: %w", fnName, err)
	}

	if r.size > 1 && r.rank != 0 {
		return r.publishPartial(sysArt, task.System)
	}
	return r.gatherAndFinish(ctx, ch, sysArt, task.System)
}

func partialPath(systemPath string, rank int) string {
	return fmt.Sprintf("%s.partial.%d", systemPath, rank)
}

// publishPartial writes this rank's result where rank 0 will find it.
// The write lands under a temporary name and is renamed into place so
// the gatherer never reads a half-written file.
func (r *Runtime) publishPartial(sysArt artifact.Artifact, sys *model.System) error {
	final := partialPath(sysArt.Path, r.rank)
	tmp := final + ".tmp"

	if err := writeJSON(tmp, sys); err != nil {
		return err
	}
	if err := os.Rename(tmp, final); err != nil {
		return &model.SerializationError{Op: "write", Path: final, Err: err}
	}
	r.logger.Info("partial result published", "path", final)
	return nil
}

// gatherAndFinish collects the partials of ranks 1..size-1 in rank
// order, folds them into this rank's system, and writes the result
// artifact. Partials are removed once merged.
func (r *Runtime) gatherAndFinish(ctx context.Context, ch *artifact.Channel, sysArt artifact.Artifact, sys *model.System) error {
	replicas := make([]*model.System, 0, r.size-1)
	var partials []artifact.Artifact

	for rank := 1; rank < r.size; rank++ {
		path := partialPath(sysArt.Path, rank)
		if err := r.waitFor(ctx, path); err != nil {
			return err
		}
		var rep model.System
		if err := ch.Read(artifact.Artifact{Path: path, Kind: artifact.KindResultOutput}, &rep); err != nil {
			return err
		}
		replicas = append(replicas, &rep)
		partials = append(partials, artifact.Artifact{Path: path})
	}

	if _, err := merge.Synthetics(sys, replicas...); err != nil {
		return err
	}
	if err := ch.WriteResult(sysArt, sys); err != nil {
		return err
	}
	ch.Cleanup(partials...)

	r.logger.Info("result written", "path", sysArt.ResultArtifact().Path, "replicas", len(replicas))
	return nil
}

// waitFor blocks until path exists or ctx ends.
func (r *Runtime) waitFor(ctx context.Context, path string) error {
	for {
		if _, err := os.Stat(path); err == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for partial %s: %w", path, ctx.Err())
		case <-time.After(r.gatherInterval):
		}
	}
}

func writeJSON(path string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return &model.SerializationError{Op: "write", Path: path, Err: err}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return &model.SerializationError{Op: "write", Path: path, Err: err}
	}
	return nil
}
