package compute

import (
	"context"
	"time"

	"github.com/me/stardis/pkg/model"
)

// RegisterBuiltins adds the functions every stardis binary ships with.
// They carry no physics; they exist to exercise the full dispatch path
// (serialization, launch, gather, merge) against a real cluster before
// trusting it with long computations. Domain computations register
// alongside them at startup.
func RegisterBuiltins(r *Registry) {
	r.Register("echo", echo)
	r.Register("sleep", sleep)
}

// echo leaves the task untouched. Dispatching echo round-trips the
// system through the channel and the cluster launcher unchanged.
func echo(ctx context.Context, task *model.Task) error {
	return nil
}

// sleep blocks for kwargs["seconds"] (default 1) or until ctx is
// cancelled. Useful for exercising polling and cancellation against a
// live queue.
func sleep(ctx context.Context, task *model.Task) error {
	seconds := 1.0
	switch v := task.Kwargs["seconds"].(type) {
	case float64:
		seconds = v
	case int:
		seconds = float64(v)
	}

	timer := time.NewTimer(time.Duration(seconds * float64(time.Second)))
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
