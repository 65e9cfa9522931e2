package worker

import (
	"context"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/me/stardis/internal/artifact"
	"github.com/me/stardis/internal/compute"
	"github.com/me/stardis/internal/logging"
	"github.com/me/stardis/pkg/model"
)

func newRegistry(t *testing.T, fn compute.Func) *compute.Registry {
	t.Helper()
	r := compute.NewRegistry(logging.Discard())
	r.Register("observe", fn)
	return r
}

// writeInputs serializes a system plus empty args/kwargs and returns
// the three paths.
func writeInputs(t *testing.T, dir string, sys *model.System) (string, string, string) {
	t.Helper()
	ch := artifact.NewChannel(dir, logging.Discard())
	sysArt, err := ch.Write(sys, "system")
	if err != nil {
		t.Fatal(err)
	}
	argsArt, err := ch.Write([]any{}, "args")
	if err != nil {
		t.Fatal(err)
	}
	kwargsArt, err := ch.Write(map[string]any{}, "kwargs")
	if err != nil {
		t.Fatal(err)
	}
	return sysArt.Path, argsArt.Path, kwargsArt.Path
}

func fluxSystem() *model.System {
	return &model.System{
		Name: "binary",
		Bodies: []*model.Body{{
			Name: "primary",
			Syn: []*model.DataSet{{
				Ref:     "lc01",
				Kind:    "lcsyn",
				Columns: []string{"flux"},
				Series:  map[string][]float64{"flux": {}},
			}},
		}},
	}
}

func TestExecute_UnknownFunctionTouchesNoArtifact(t *testing.T) {
	dir := t.TempDir()
	sysPath, argsPath, kwargsPath := writeInputs(t, dir, fluxSystem())

	rt := NewRuntime(newRegistry(t, func(ctx context.Context, task *model.Task) error {
		t.Fatal("function must not run")
		return nil
	}), 0, 1, logging.Discard())

	err := rt.Execute(context.Background(), "missing", sysPath, argsPath, kwargsPath)
	if err == nil {
		t.Fatal("expected error for unknown function")
	}
	if !strings.Contains(err.Error(), `"missing"`) {
		t.Errorf("error does not name the function: %v", err)
	}
	if _, statErr := os.Stat(sysPath + ".result"); !os.IsNotExist(statErr) {
		t.Error("result artifact written despite unknown function")
	}
}

func TestExecute_SingleRankWritesResult(t *testing.T) {
	dir := t.TempDir()
	sysPath, argsPath, kwargsPath := writeInputs(t, dir, fluxSystem())

	fn := func(ctx context.Context, task *model.Task) error {
		ds := task.System.Bodies[0].Syn[0]
		ds.Series["flux"] = append(ds.Series["flux"], 1.0, 2.0)
		return nil
	}
	rt := NewRuntime(newRegistry(t, fn), 0, 1, logging.Discard())

	if err := rt.Execute(context.Background(), "observe", sysPath, argsPath, kwargsPath); err != nil {
		t.Fatalf("Execute: %v", err)
	}

	ch := artifact.NewChannel(dir, logging.Discard())
	var got model.System
	resultArt := artifact.Artifact{Path: sysPath, Kind: artifact.KindInput}.ResultArtifact()
	if err := ch.Read(resultArt, &got); err != nil {
		t.Fatalf("read result: %v", err)
	}
	if n := len(got.Bodies[0].Syn[0].Series["flux"]); n != 2 {
		t.Errorf("flux length = %d, want 2", n)
	}
}

func TestExecute_RankGatherMergesInRankOrder(t *testing.T) {
	dir := t.TempDir()
	sysPath, argsPath, kwargsPath := writeInputs(t, dir, fluxSystem())

	const size = 4
	// Each rank contributes its rank number as a single flux point,
	// so the merged order is checkable.
	fn := func(ctx context.Context, task *model.Task) error {
		rank := task.Kwargs["mpi_rank"].(int)
		ds := task.System.Bodies[0].Syn[0]
		ds.Series["flux"] = append(ds.Series["flux"], float64(rank))
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var wg sync.WaitGroup
	errs := make([]error, size)
	for rank := 0; rank < size; rank++ {
		wg.Add(1)
		go func(rank int) {
			defer wg.Done()
			rt := NewRuntime(newRegistry(t, fn), rank, size, logging.Discard())
			errs[rank] = rt.Execute(ctx, "observe", sysPath, argsPath, kwargsPath)
		}(rank)
	}
	wg.Wait()

	for rank, err := range errs {
		if err != nil {
			t.Fatalf("rank %d: %v", rank, err)
		}
	}

	ch := artifact.NewChannel(dir, logging.Discard())
	var got model.System
	resultArt := artifact.Artifact{Path: sysPath, Kind: artifact.KindInput}.ResultArtifact()
	if err := ch.Read(resultArt, &got); err != nil {
		t.Fatalf("read result: %v", err)
	}

	flux := got.Bodies[0].Syn[0].Series["flux"]
	want := []float64{0, 1, 2, 3}
	if len(flux) != len(want) {
		t.Fatalf("flux = %v, want %v", flux, want)
	}
	for i := range want {
		if flux[i] != want[i] {
			t.Fatalf("flux = %v, want rank order %v", flux, want)
		}
	}

	// Partials are cleaned up after the gather.
	for rank := 1; rank < size; rank++ {
		if _, err := os.Stat(partialPath(sysPath, rank)); !os.IsNotExist(err) {
			t.Errorf("partial of rank %d not removed", rank)
		}
	}
}

func TestRankFromEnv(t *testing.T) {
	t.Setenv("OMPI_COMM_WORLD_RANK", "3")
	t.Setenv("OMPI_COMM_WORLD_SIZE", "8")
	rank, size := RankFromEnv()
	if rank != 3 || size != 8 {
		t.Errorf("RankFromEnv = (%d, %d), want (3, 8)", rank, size)
	}
}

func TestRankFromEnv_Standalone(t *testing.T) {
	for _, pair := range rankEnvVars {
		t.Setenv(pair[0], "")
		os.Unsetenv(pair[0])
		t.Setenv(pair[1], "")
		os.Unsetenv(pair[1])
	}
	rank, size := RankFromEnv()
	if rank != 0 || size != 1 {
		t.Errorf("RankFromEnv = (%d, %d), want (0, 1)", rank, size)
	}
}
