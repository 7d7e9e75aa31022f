/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package rename implements the bounded resolution loop that walks a
// repository's rename history to find where a stale path now lives.
package rename

import (
	"context"
	"errors"
	"fmt"

	"github.com/chainguard-dev/clog"
)

// Tracer is the minimal surface a gitrepo.Repository provides for the
// resolution loop. Depending on this narrow interface rather than
// *gitrepo.Repository keeps the rename package (and, transitively, the
// link checker that drives it) from importing gitrepo directly, avoiding
// a repository -> rename -> repository import cycle.
//
// LastRenamePath reports the path that the most recent commit touching
// path renamed it to, or "" if that commit did not rename it. It returns
// gitrepo.ErrFileNotFound (wrapped) once history is exhausted.
type Tracer interface {
	FileExistsAtHead(path string) (bool, error)
	LastRenamePath(path string) (string, error)
	CommitCount() (int, error)
}

// ErrNotLocatable is returned when the loop cannot find path's current
// location: either history never renamed it, or a lookup along the way
// failed.
var ErrNotLocatable = errors.New("rename: not locatable")

// Resolve starts at path and repeatedly asks the tracer for the commit
// that last touched the current candidate path. If that commit renamed
// the path, the candidate advances to the renamed path and the loop
// repeats; otherwise resolution fails. The loop stops as soon as the
// candidate path exists at HEAD, and is bounded by the repository's
// commit count so it always terminates.
func Resolve(ctx context.Context, t Tracer, startPath string) (string, error) {
	exists, err := t.FileExistsAtHead(startPath)
	if err != nil {
		return "", fmt.Errorf("checking head for %s: %w", startPath, err)
	}
	if exists {
		return startPath, nil
	}

	maxIterations, err := t.CommitCount()
	if err != nil {
		return "", fmt.Errorf("bounding resolution loop: %w", err)
	}

	log := clog.FromContext(ctx)
	candidate := startPath

	for i := 0; i < maxIterations; i++ {
		renamedPath, err := t.LastRenamePath(candidate)
		if err != nil {
			log.Debugf("rename resolution stopped for %s: %v", candidate, err)
			return "", ErrNotLocatable
		}

		if renamedPath == "" {
			return "", ErrNotLocatable
		}

		candidate = renamedPath
		exists, err := t.FileExistsAtHead(candidate)
		if err != nil {
			return "", fmt.Errorf("checking head for %s: %w", candidate, err)
		}
		if exists {
			return candidate, nil
		}
	}

	return "", ErrNotLocatable
}
