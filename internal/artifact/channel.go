// Package artifact persists computation payloads for hand-off to
// external worker processes. Payloads are serialized fully and closed
// before their paths are ever given to a command line, so a launched
// worker never observes a partial write.
package artifact

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/me/stardis/pkg/model"
)

// Kind distinguishes what an artifact holds.
type Kind string

const (
	KindInput        Kind = "input"
	KindResultOutput Kind = "result"
)

// Artifact is one durable, uniquely-named serialized payload. Its
// lifetime is strictly one dispatch attempt.
type Artifact struct {
	Path string
	Kind Kind
}

// ResultArtifact derives the result location for a task artifact. The
// worker invocation vector carries only the three input paths, so the
// result location must be computable from the task path on both sides.
func (a Artifact) ResultArtifact() Artifact {
	return Artifact{Path: a.Path + ".result", Kind: KindResultOutput}
}

// Channel writes and reads artifacts in a fixed directory.
type Channel struct {
	dir    string
	logger *slog.Logger
}

// NewChannel creates a Channel rooted at dir. If dir is empty, the
// current working directory is used; workers launched by the cluster
// resolve relative paths against it too.
func NewChannel(dir string, logger *slog.Logger) *Channel {
	if dir == "" {
		dir = "."
	}
	return &Channel{
		dir:    dir,
		logger: logger.With("component", "artifact-channel"),
	}
}

// Dir returns the directory artifacts are written to.
func (c *Channel) Dir() string {
	return c.dir
}

// Write serializes payload into a new uniquely-named artifact. The file
// is fully written, synced and closed before the Artifact is returned.
func (c *Channel) Write(payload any, prefix string) (Artifact, error) {
	name := fmt.Sprintf("%s-%s.json", prefix, uuid.New().String())
	path := filepath.Join(c.dir, name)

	data, err := json.Marshal(payload)
	if err != nil {
		return Artifact{}, &model.SerializationError{Op: "write", Path: path, Err: err}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return Artifact{}, &model.SerializationError{Op: "write", Path: path, Err: err}
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(path)
		return Artifact{}, &model.SerializationError{Op: "write", Path: path, Err: err}
	}
	if err := f.Sync(); err != nil {
		f.Close()
		os.Remove(path)
		return Artifact{}, &model.SerializationError{Op: "write", Path: path, Err: err}
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return Artifact{}, &model.SerializationError{Op: "write", Path: path, Err: err}
	}

	c.logger.Debug("artifact written", "path", path, "bytes", len(data))
	return Artifact{Path: path, Kind: KindInput}, nil
}

// Read deserializes an artifact into out.
func (c *Channel) Read(a Artifact, out any) error {
	data, err := os.ReadFile(a.Path)
	if err != nil {
		return &model.SerializationError{Op: "read", Path: a.Path, Err: err}
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &model.SerializationError{Op: "read", Path: a.Path, Err: err}
	}
	c.logger.Debug("artifact read", "path", a.Path, "bytes", len(data))
	return nil
}

// Cleanup removes the given artifacts. It runs on every exit path of a
// dispatch attempt and only removes files that still exist; missing
// files are not an error.
func (c *Channel) Cleanup(artifacts ...Artifact) {
	for _, a := range artifacts {
		if a.Path == "" {
			continue
		}
		if _, err := os.Stat(a.Path); err != nil {
			continue
		}
		if err := os.Remove(a.Path); err != nil {
			c.logger.Warn("artifact cleanup failed", "path", a.Path, "error", err)
			continue
		}
		c.logger.Debug("artifact removed", "path", a.Path)
	}
}

// WriteResult serializes payload to the fixed result location of a
// task artifact. Used by the worker runtime.
func (c *Channel) WriteResult(task Artifact, payload any) error {
	res := task.ResultArtifact()

	data, err := json.Marshal(payload)
	if err != nil {
		return &model.SerializationError{Op: "write", Path: res.Path, Err: err}
	}
	if err := os.WriteFile(res.Path, data, 0o644); err != nil {
		return &model.SerializationError{Op: "write", Path: res.Path, Err: err}
	}
	c.logger.Debug("result written", "path", res.Path, "bytes", len(data))
	return nil
}
