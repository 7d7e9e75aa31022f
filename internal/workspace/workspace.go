/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package workspace provides scoped acquisition of a unique temporary
// directory, with guaranteed recursive removal on release.
package workspace

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chainguard-dev/clog"
)

// Workspace is a uniquely-named directory owned by exactly one holder for
// the duration of an invocation.
type Workspace struct {
	path     string
	released bool
}

// Acquire creates a fresh, unique directory under baseDir for owner/repo
// and returns a Workspace owning it. Any stale directory at the computed
// path is removed first so the workspace is always created empty.
func Acquire(baseDir, owner, repo string) (*Workspace, error) {
	if baseDir == "" {
		baseDir = os.TempDir()
	}

	name := fmt.Sprintf("rook-%s-%s-%d", owner, repo, time.Now().UnixNano())
	path := filepath.Join(baseDir, name)

	if err := os.RemoveAll(path); err != nil {
		return nil, fmt.Errorf("clearing stale workspace %s: %w", path, err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("creating workspace %s: %w", path, err)
	}

	return &Workspace{path: path}, nil
}

// Path returns the workspace's directory.
func (w *Workspace) Path() string {
	return w.path
}

// Release recursively removes the workspace directory. It is safe to call
// more than once and safe to call from a deferred statement during a
// panic unwind; removal failures are swallowed (best effort) and logged
// at debug level when a logger is present in ctx.
func (w *Workspace) Release(ctx context.Context) {
	if w == nil || w.released {
		return
	}
	w.released = true

	if err := os.RemoveAll(w.path); err != nil {
		clog.FromContext(ctx).Debugf("best-effort workspace cleanup failed for %s: %v", w.path, err)
	}
}
