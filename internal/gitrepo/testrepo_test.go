/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package gitrepo

import (
	"testing"
	"time"

	"github.com/go-git/go-billy/v5/memfs"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/storage/memory"
	"github.com/stretchr/testify/require"
)

// newTestRepo builds an in-memory repository and returns both the
// go-git handle and a commit helper, so tests can build up a small
// history of renames without touching disk.
type testCommitter func(add map[string]string, remove []string, msg string) *object.Commit

func newTestRepo(t *testing.T) (*git.Repository, testCommitter) {
	t.Helper()

	fs := memfs.New()
	repo, err := git.Init(memory.NewStorage(), fs)
	require.NoError(t, err)

	wt, err := repo.Worktree()
	require.NoError(t, err)

	commit := func(add map[string]string, remove []string, msg string) *object.Commit {
		for path, content := range add {
			f, err := fs.Create(path)
			require.NoError(t, err)
			_, err = f.Write([]byte(content))
			require.NoError(t, err)
			require.NoError(t, f.Close())

			_, err = wt.Add(path)
			require.NoError(t, err)
		}
		for _, path := range remove {
			_, err := wt.Remove(path)
			require.NoError(t, err)
		}

		hash, err := wt.Commit(msg, &git.CommitOptions{
			Author: &object.Signature{Name: "tester", Email: "tester@example.com", When: time.Now()},
		})
		require.NoError(t, err)

		c, err := repo.CommitObject(hash)
		require.NoError(t, err)
		return c
	}

	return repo, commit
}

// similarContent is long and shared across renamed-file fixtures so
// go-git's rename detector clears the 50% similarity threshold.
const similarContent = `line one of a reasonably long file
line two of a reasonably long file
line three of a reasonably long file
line four of a reasonably long file
line five of a reasonably long file
`
