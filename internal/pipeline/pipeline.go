/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package pipeline

import (
	"context"
	"fmt"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5/plumbing/transport"

	"github.com/queensac/rook/internal/checkorch"
	"github.com/queensac/rook/internal/forgeurl"
	"github.com/queensac/rook/internal/gitrepo"
	"github.com/queensac/rook/internal/linkcheck"
	"github.com/queensac/rook/internal/prgen"
	"github.com/queensac/rook/internal/rename"
	"github.com/queensac/rook/internal/workspace"
)

// ExitCode is the process exit status Run recommends to its caller.
type ExitCode int

const (
	ExitSuccess ExitCode = 0
	ExitFailure ExitCode = 1
)

// Config holds one invocation's CLI-bound and environment-bound
// parameters.
type Config struct {
	RepoURL string `env:"-"`
	Branch  string `env:"-"`
	DryRun  bool   `env:"-"`

	// BaseDir is the directory workspaces are created under. Empty uses
	// the OS default temp directory.
	BaseDir string `env:"-"`

	// AppID and AppPrivateKeyPEM identify the GitHub App used to mint a
	// short-lived installation token for the push and pull-request
	// steps. Bound from QUEENSAC_APP_ID and QUEENSAC_APP_PRIVATE_KEY.
	AppID            int64  `env:"QUEENSAC_APP_ID"`
	AppPrivateKeyPEM string `env:"QUEENSAC_APP_PRIVATE_KEY"`
}

// Pipeline composes the forge-URL parser, repository manager, link
// checker, and pull-request generator into one run.
type Pipeline struct {
	Supervisor *Supervisor
}

// New returns a Pipeline backed by sup.
func New(sup *Supervisor) *Pipeline {
	return &Pipeline{Supervisor: sup}
}

// Run parses cfg.RepoURL, clones it into a scratch workspace, checks
// every link it contains, and — unless cfg.DryRun or no link resolved to
// a moved file — opens a pull request fixing the moved links. It always
// releases its workspace before returning.
func (p *Pipeline) Run(ctx context.Context, cfg Config) (ExitCode, error) {
	log := clog.FromContext(ctx)

	fu, err := forgeurl.Parse(cfg.RepoURL)
	if err != nil {
		return ExitFailure, fmt.Errorf("parsing repository URL: %w", err)
	}
	if cfg.Branch != "" {
		fu.Branch = cfg.Branch
	}

	key := fu.Owner + "/" + fu.Repo
	runCtx, done := p.Supervisor.Begin(ctx, key)
	defer done()

	ws, err := workspace.Acquire(cfg.BaseDir, fu.Owner, fu.Repo)
	if err != nil {
		return ExitFailure, fmt.Errorf("acquiring workspace: %w", err)
	}
	defer ws.Release(runCtx)

	repo, err := gitrepo.Clone(runCtx, fu, ws, nil)
	if err != nil {
		return ExitFailure, fmt.Errorf("cloning repository: %w", err)
	}
	defer repo.Close(runCtx)

	checker := &linkcheck.Checker{
		Client:       linkcheck.NewClient(),
		ResolveMoved: resolveMovedAgainst(cfg.BaseDir),
	}

	summary, invalid, err := checkorch.Run(runCtx, repo, checker)
	if err != nil {
		return ExitFailure, fmt.Errorf("running link checks: %w", err)
	}

	log.Infof("link check complete for %s: %d total, %d valid, %d invalid, %d redirect, %d moved",
		fu.String(), summary.Total, summary.Valid, summary.Invalid, summary.Redirect, summary.Moved)

	moved := movedOnly(invalid)
	if len(moved) == 0 {
		return ExitSuccess, nil
	}

	if cfg.DryRun {
		log.Infof("dry run: %d broken link(s) resolved to a moved file; no pull request opened", len(moved))
		return ExitSuccess, nil
	}

	gen := &prgen.Generator{
		Creds: prgen.Credentials{
			AppID:         cfg.AppID,
			PrivateKeyPEM: []byte(cfg.AppPrivateKeyPEM),
		},
	}

	prURL, err := gen.Generate(runCtx, repo, fu, buildEdits(moved))
	if err != nil {
		return ExitFailure, fmt.Errorf("opening pull request: %w", err)
	}

	log.Infof("opened pull request %s", prURL)
	return ExitSuccess, nil
}

// cloneFunc matches gitrepo.Clone's signature; resolveMovedAgainst takes one
// as a parameter so tests can substitute a clone that opens a pre-built
// local repository instead of reaching out to a real forge.
type cloneFunc func(ctx context.Context, fu forgeurl.ForgeURL, ws *workspace.Workspace, auth transport.AuthMethod) (*gitrepo.Repository, error)

// resolveMovedAgainst returns a linkcheck.ResolveMoved that clones fu's own
// repository into a fresh, short-lived workspace and resolves its rename
// history, independently of whatever repository is being scanned. This
// matters because a broken link can point at a different repository than
// the one being scanned, and because up to maxInFlight probes can invoke
// this callback concurrently — each needs its own *gitrepo.Repository
// handle, since go-git repositories are not safe for concurrent use.
func resolveMovedAgainst(baseDir string) linkcheck.ResolveMoved {
	return resolveMovedAgainstUsing(baseDir, gitrepo.Clone)
}

func resolveMovedAgainstUsing(baseDir string, clone cloneFunc) linkcheck.ResolveMoved {
	return func(ctx context.Context, fu forgeurl.ForgeURL) (string, error) {
		ws, err := workspace.Acquire(baseDir, fu.Owner, fu.Repo)
		if err != nil {
			return "", fmt.Errorf("acquiring workspace for %s/%s: %w", fu.Owner, fu.Repo, err)
		}
		defer ws.Release(ctx)

		repo, err := clone(ctx, fu, ws, nil)
		if err != nil {
			return "", fmt.Errorf("cloning %s/%s: %w", fu.Owner, fu.Repo, err)
		}
		defer repo.Close(ctx)

		return rename.Resolve(ctx, repo, fu.FilePath)
	}
}

// movedOnly filters invalid down to the links whose outcome was Moved.
// Redirect outcomes are deliberately left untouched (Design Notes: only
// a Moved outcome, which means the old URL now 404s and a rename was
// traced, warrants rewriting the link).
func movedOnly(invalid []checkorch.InvalidLink) []checkorch.InvalidLink {
	var out []checkorch.InvalidLink
	for _, l := range invalid {
		if l.Outcome.Kind == linkcheck.Moved {
			out = append(out, l)
		}
	}
	return out
}

// buildEdits turns each Moved link into a FileEdit that replaces the
// stale URL with the same URL pointing at the resolved path.
func buildEdits(moved []checkorch.InvalidLink) []prgen.FileEdit {
	edits := make([]prgen.FileEdit, 0, len(moved))
	for _, l := range moved {
		fu, err := forgeurl.Parse(l.URL)
		if err != nil {
			continue
		}
		newURL := fu.WithFilePath(l.Suggestion).String()
		edits = append(edits, prgen.FileEdit{
			FilePath:     l.FilePath,
			LineNumber:   l.LineNumber,
			OldSubstring: l.URL,
			NewSubstring: newURL,
		})
	}
	return edits
}
