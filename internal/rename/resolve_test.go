/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package rename

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTracer struct {
	existsAtHead map[string]bool
	renames      map[string]string // path -> renamed-to path ("" means not renamed)
	renameErr    map[string]error
	commitCount  int
}

func (f *fakeTracer) FileExistsAtHead(path string) (bool, error) {
	return f.existsAtHead[path], nil
}

func (f *fakeTracer) LastRenamePath(path string) (string, error) {
	if err, ok := f.renameErr[path]; ok {
		return "", err
	}
	return f.renames[path], nil
}

func (f *fakeTracer) CommitCount() (int, error) {
	return f.commitCount, nil
}

func TestResolveAlreadyExists(t *testing.T) {
	tr := &fakeTracer{existsAtHead: map[string]bool{"a.txt": true}, commitCount: 10}
	got, err := Resolve(context.Background(), tr, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "a.txt", got)
}

func TestResolveFollowsRenameChain(t *testing.T) {
	tr := &fakeTracer{
		existsAtHead: map[string]bool{
			"tmp.txt":                    false,
			"dockerfile_history/tmp.txt": false,
			"img/tmp.txt":                true,
		},
		renames: map[string]string{
			"tmp.txt":                    "dockerfile_history/tmp.txt",
			"dockerfile_history/tmp.txt": "img/tmp.txt",
		},
		commitCount: 10,
	}
	got, err := Resolve(context.Background(), tr, "tmp.txt")
	require.NoError(t, err)
	assert.Equal(t, "img/tmp.txt", got)
}

func TestResolveNoRenameFound(t *testing.T) {
	tr := &fakeTracer{
		existsAtHead: map[string]bool{"gone.txt": false},
		renames:      map[string]string{"gone.txt": ""},
		commitCount:  10,
	}
	_, err := Resolve(context.Background(), tr, "gone.txt")
	assert.ErrorIs(t, err, ErrNotLocatable)
}

func TestResolveLookupFails(t *testing.T) {
	tr := &fakeTracer{
		existsAtHead: map[string]bool{"gone.txt": false},
		renameErr:    map[string]error{"gone.txt": errors.New("File not found")},
		commitCount:  10,
	}
	_, err := Resolve(context.Background(), tr, "gone.txt")
	assert.ErrorIs(t, err, ErrNotLocatable)
}

func TestResolveBoundedByCommitCount(t *testing.T) {
	// A pathological tracer that always "renames" a path to itself would
	// loop forever without the commit-count bound; this asserts the loop
	// terminates and reports not-locatable rather than hanging.
	tr := &fakeTracer{
		existsAtHead: map[string]bool{"a": false},
		renames:      map[string]string{"a": "a"},
		commitCount:  3,
	}
	_, err := Resolve(context.Background(), tr, "a")
	assert.ErrorIs(t, err, ErrNotLocatable)
}
