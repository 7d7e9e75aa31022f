/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package gitrepo wraps go-git to provide the repository-manager
// operations the rest of rook needs: cloning a single branch into a
// workspace, walking the committed tree, mutating and pushing a branch,
// and (in rename.go) tracing a path's history for renames.
package gitrepo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/filemode"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/queensac/rook/internal/forgeurl"
	"github.com/queensac/rook/internal/workspace"
)

// Repository is an opaque handle onto a cloned working tree. It owns its
// Workspace for its lifetime: the workspace is released when the caller
// is done with the repository (see Close).
type Repository struct {
	repo *git.Repository
	ws   *workspace.Workspace
	auth transport.AuthMethod
}

// Clone clones fu's repository (single-branch, when fu.Branch is set)
// into ws and returns a handle to it. When fu.Branch is set but does not
// exist on the remote, the returned error's message contains the branch
// name.
func Clone(ctx context.Context, fu forgeurl.ForgeURL, ws *workspace.Workspace, auth transport.AuthMethod) (*Repository, error) {
	opts := &git.CloneOptions{
		URL:          fu.CloneURL(),
		Auth:         auth,
		SingleBranch: fu.Branch != "",
	}
	if fu.Branch != "" {
		opts.ReferenceName = plumbing.NewBranchReferenceName(fu.Branch)
	}

	clog.FromContext(ctx).Infof("cloning %s into %s", fu.CloneURL(), ws.Path())

	repo, err := git.PlainCloneContext(ctx, ws.Path(), false, opts)
	if err != nil {
		if fu.Branch != "" && (errors.Is(err, plumbing.ErrReferenceNotFound) || strings.Contains(err.Error(), "reference not found")) {
			return nil, fmt.Errorf("cloning %s: branch %q not found: %w", fu.CloneURL(), fu.Branch, err)
		}
		return nil, fmt.Errorf("cloning %s: %w", fu.CloneURL(), err)
	}

	return &Repository{repo: repo, ws: ws, auth: auth}, nil
}

// Open opens an already-cloned repository rooted at ws without cloning.
// Used by tests and by components that receive an already-prepared
// workspace.
func Open(ws *workspace.Workspace, auth transport.AuthMethod) (*Repository, error) {
	repo, err := git.PlainOpen(ws.Path())
	if err != nil {
		return nil, fmt.Errorf("opening repository at %s: %w", ws.Path(), err)
	}
	return &Repository{repo: repo, ws: ws, auth: auth}, nil
}

// Workspace returns the workspace backing this repository.
func (r *Repository) Workspace() *workspace.Workspace {
	return r.ws
}

// Close releases the repository's workspace. Further use of r is
// undefined after Close.
func (r *Repository) Close(ctx context.Context) {
	r.ws.Release(ctx)
}

// HeadTree returns the committed tree at HEAD.
func (r *Repository) HeadTree() (*object.Tree, error) {
	head, err := r.repo.Head()
	if err != nil {
		return nil, fmt.Errorf("resolving HEAD: %w", err)
	}
	commit, err := r.repo.CommitObject(head.Hash())
	if err != nil {
		return nil, fmt.Errorf("loading HEAD commit: %w", err)
	}
	tree, err := commit.Tree()
	if err != nil {
		return nil, fmt.Errorf("loading HEAD tree: %w", err)
	}
	return tree, nil
}

// TreeVisitor is called for every blob found in a pre-order tree walk.
// Returning an error stops the walk and propagates the error.
type TreeVisitor func(path string, file *object.File) error

// WalkTree performs a pre-order traversal of tree, invoking visitor for
// every regular file blob. Symlinks and submodules are skipped, matching
// §4.5's "not followed, treated as absent".
func WalkTree(tree *object.Tree, visitor TreeVisitor) error {
	walker := object.NewTreeWalker(tree, true, nil)
	defer walker.Close()

	for {
		name, entry, err := walker.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("walking tree: %w", err)
		}

		if entry.Mode != filemode.Regular && entry.Mode != filemode.Executable {
			// Skips directories, symlinks, and submodules: symlinks and
			// submodules are not followed (§4.5), directories have no blob.
			continue
		}

		blob, err := tree.TreeEntryFile(&entry)
		if err != nil {
			// Blob unreadable: skip, never fatal for extraction (§7).
			continue
		}
		if err := visitor(name, blob); err != nil {
			return err
		}
	}
}

// FileExistsAtHead reports whether path exists as a file in the HEAD tree.
func (r *Repository) FileExistsAtHead(path string) (bool, error) {
	tree, err := r.HeadTree()
	if err != nil {
		return false, err
	}
	_, err = tree.File(path)
	if errors.Is(err, object.ErrFileNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("checking tree for %s: %w", path, err)
	}
	return true, nil
}

// CreateBranch creates a branch named name at the current HEAD and checks
// it out, force-resetting the worktree to it.
func (r *Repository) CreateBranch(name string) error {
	head, err := r.repo.Head()
	if err != nil {
		return fmt.Errorf("resolving HEAD: %w", err)
	}

	refName := plumbing.NewBranchReferenceName(name)
	ref := plumbing.NewHashReference(refName, head.Hash())
	if err := r.repo.Storer.SetReference(ref); err != nil {
		return fmt.Errorf("creating branch %s: %w", name, err)
	}
	return r.Checkout(name)
}

// Checkout force-checks-out the named branch.
func (r *Repository) Checkout(name string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.Checkout(&git.CheckoutOptions{
		Branch: plumbing.NewBranchReferenceName(name),
		Force:  true,
	}); err != nil {
		return fmt.Errorf("checking out %s: %w", name, err)
	}
	return nil
}

// CurrentBranch returns the short name of the currently checked out
// branch.
func (r *Repository) CurrentBranch() (string, error) {
	head, err := r.repo.Head()
	if err != nil {
		return "", fmt.Errorf("resolving HEAD: %w", err)
	}
	if !head.Name().IsBranch() {
		return "", errors.New("HEAD is detached")
	}
	return head.Name().Short(), nil
}

// AddPath stages path in the index.
func (r *Repository) AddPath(path string) error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if _, err := wt.Add(path); err != nil {
		return fmt.Errorf("staging %s: %w", path, err)
	}
	return nil
}

// AddAll stages all modified and new files.
func (r *Repository) AddAll() error {
	wt, err := r.repo.Worktree()
	if err != nil {
		return fmt.Errorf("getting worktree: %w", err)
	}
	if err := wt.AddWithOptions(&git.AddOptions{All: true}); err != nil {
		return fmt.Errorf("staging all: %w", err)
	}
	return nil
}

// HasUncommittedChanges reports whether the worktree has any staged or
// unstaged modifications.
func (r *Repository) HasUncommittedChanges() (bool, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return false, fmt.Errorf("getting worktree: %w", err)
	}
	status, err := wt.Status()
	if err != nil {
		return false, fmt.Errorf("getting status: %w", err)
	}
	return !status.IsClean(), nil
}

// Commit creates a commit of the staged index with the given author
// identity, parented on the current HEAD.
func (r *Repository) Commit(message, authorName, authorEmail string) (plumbing.Hash, error) {
	wt, err := r.repo.Worktree()
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("getting worktree: %w", err)
	}

	oid, err := wt.Commit(message, &git.CommitOptions{
		Author: &object.Signature{
			Name:  authorName,
			Email: authorEmail,
			When:  time.Now(),
		},
	})
	if err != nil {
		return plumbing.ZeroHash, fmt.Errorf("committing: %w", err)
	}
	return oid, nil
}

// Push pushes the named branch to origin using auth (or the repository's
// default auth when auth is nil), supplying the token via a credential
// callback rather than embedding it in the remote URL.
func (r *Repository) Push(ctx context.Context, branch string, auth transport.AuthMethod) error {
	if auth == nil {
		auth = r.auth
	}

	refName := plumbing.NewBranchReferenceName(branch)
	refSpec := config.RefSpec(fmt.Sprintf("%s:%s", refName, refName))

	err := r.repo.PushContext(ctx, &git.PushOptions{
		RemoteName: "origin",
		RefSpecs:   []config.RefSpec{refSpec},
		Auth:       auth,
	})
	if errors.Is(err, git.NoErrAlreadyUpToDate) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("pushing %s: %w", branch, err)
	}
	return nil
}

// CommitCount returns the number of commits reachable from HEAD, used to
// bound the rename-resolution loop (§4.4).
func (r *Repository) CommitCount() (int, error) {
	head, err := r.repo.Head()
	if err != nil {
		return 0, fmt.Errorf("resolving HEAD: %w", err)
	}
	iter, err := r.repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return 0, fmt.Errorf("walking log: %w", err)
	}
	defer iter.Close()

	n := 0
	err = iter.ForEach(func(*object.Commit) error {
		n++
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("counting commits: %w", err)
	}
	return n, nil
}
