/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitrepo

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/storer"
)

// renameSimilarityThreshold is the single, non-tunable similarity
// threshold (as a percentage) above which two blobs across a commit's
// parent/child trees are considered a rename of one another. A single
// default is picked deliberately (see Design Notes): too aggressive and
// unrelated moves are conflated, too conservative and legitimate
// refactors are missed.
const renameSimilarityThreshold = 50

// ErrFileNotFound is returned by FindLastTouchingCommit when the revision
// walk is exhausted without finding a commit that touches path.
var ErrFileNotFound = errors.New("File not found")

// CommitSearchResult is the outcome of FindLastTouchingCommit.
type CommitSearchResult struct {
	Commit      *object.Commit
	RenamedPath string // set only when Commit renamed the queried path
}

// FindLastTouchingCommit walks the revision graph from HEAD, skipping
// merge commits, looking for the most recent single-parent commit whose
// diff against its parent either:
//   - contains a delta whose new path equals path (the file still exists,
//     unrenamed, as of that commit): returns {Commit, ""}; or
//   - contains a rename delta whose old path equals path exactly: returns
//     {Commit, <new path>}; or
//   - contains a rename delta whose old path has path as a directory
//     prefix: returns {Commit, <parent dir of the new path> + "/"}.
//
// The first case takes precedence; among delta matches in one commit, an
// exact-file rename match wins over a directory-prefix match.
func (r *Repository) FindLastTouchingCommit(path string) (CommitSearchResult, error) {
	head, err := r.repo.Head()
	if err != nil {
		return CommitSearchResult{}, fmt.Errorf("resolving HEAD: %w", err)
	}

	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return CommitSearchResult{}, fmt.Errorf("walking log: %w", err)
	}
	defer iter.Close()

	var result CommitSearchResult
	found := false

	err = iter.ForEach(func(c *object.Commit) error {
		if c.NumParents() != 1 {
			return nil // skip merges and the root commit
		}

		parent, err := c.Parent(0)
		if err != nil {
			return fmt.Errorf("loading parent of %s: %w", c.Hash, err)
		}

		parentTree, err := parent.Tree()
		if err != nil {
			return fmt.Errorf("loading parent tree of %s: %w", c.Hash, err)
		}
		tree, err := c.Tree()
		if err != nil {
			return fmt.Errorf("loading tree of %s: %w", c.Hash, err)
		}

		changes, err := object.DiffTreeWithOptions(nil, parentTree, tree, &object.DiffTreeOptions{
			DetectRenames: true,
			RenameScore:   renameSimilarityThreshold,
		})
		if err != nil {
			return fmt.Errorf("diffing %s against parent: %w", c.Hash, err)
		}

		if hit, ok := matchChanges(changes, path); ok {
			result = CommitSearchResult{Commit: c, RenamedPath: hit}
			found = true
			return storer.ErrStop
		}

		return nil
	})
	if err != nil {
		return CommitSearchResult{}, fmt.Errorf("walking history for %s: %w", path, err)
	}

	if !found {
		return CommitSearchResult{}, ErrFileNotFound
	}
	return result, nil
}

// matchChanges applies the §4.4 three-way match with its tie-break over a
// single commit's changes. The second return value reports whether any
// rule matched.
func matchChanges(changes object.Changes, path string) (string, bool) {
	var exactRename, dirRename string
	var haveExact, haveDir bool

	for _, c := range changes {
		oldName, newName := changeNames(c)

		if newName == path {
			// The file exists post-change at exactly the queried path:
			// it has not been renamed away from here.
			return "", true
		}

		if oldName == "" || newName == "" || oldName == newName {
			continue // not a rename delta
		}

		if oldName == path {
			exactRename, haveExact = newName, true
			continue
		}

		if dirPrefix := path; dirPrefix != "" && strings.HasPrefix(oldName, strings.TrimSuffix(dirPrefix, "/")+"/") {
			dirRename, haveDir = parentDirWithSlash(newName), true
		}
	}

	switch {
	case haveExact:
		return exactRename, true
	case haveDir:
		return dirRename, true
	default:
		return "", false
	}
}

// changeNames extracts the old and new paths of a change, handling both
// plain inserts/deletes/modifies and rename deltas produced by
// DetectRenames.
func changeNames(c *object.Change) (oldName, newName string) {
	if c.From.Name != "" {
		oldName = c.From.Name
	}
	if c.To.Name != "" {
		newName = c.To.Name
	}
	return oldName, newName
}

// parentDirWithSlash returns the parent directory of p, with a trailing
// separator, matching §3's CommitSearchResult convention for directory
// renames.
func parentDirWithSlash(p string) string {
	idx := strings.LastIndex(p, "/")
	if idx < 0 {
		return ""
	}
	return p[:idx+1]
}

// LastRenamePath adapts FindLastTouchingCommit to the narrow shape the
// rename package's bounded resolution loop depends on (see
// rename.Tracer): it returns the commit's renamed-to path, or "" when the
// last commit touching path did not rename it.
func (r *Repository) LastRenamePath(path string) (string, error) {
	result, err := r.FindLastTouchingCommit(path)
	if err != nil {
		return "", err
	}
	return result.RenamedPath, nil
}
