/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prgen applies line-scoped text edits to a cloned repository,
// commits and pushes them on a fresh branch under short-lived GitHub App
// credentials, and opens a pull request.
package prgen

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"
	"github.com/go-git/go-git/v5/plumbing/transport"
	githttp "github.com/go-git/go-git/v5/plumbing/transport/http"
	"github.com/google/go-github/v66/github"

	"github.com/queensac/rook/internal/forgeurl"
	"github.com/queensac/rook/internal/gitrepo"
)

const (
	botName  = "queensac-bot"
	botEmail = "queensac-bot@users.noreply.github.com"

	prTitle = "fix: Update broken links"
)

// FileEdit describes a single literal, line-scoped replacement.
type FileEdit struct {
	FilePath     string
	LineNumber   int // 1-based
	OldSubstring string
	NewSubstring string
}

// Generator mints forge-app credentials and drives the six-step PR
// creation sequence against a cloned repository.
type Generator struct {
	Creds Credentials

	// testBaseURL, when set, overrides the GitHub REST API base URL (no
	// trailing slash, e.g. an httptest.Server's URL). Used by tests only.
	testBaseURL string
}

// appliedEdit records a successfully-applied edit for the commit message
// and the staged-file set.
type appliedEdit struct {
	path string
	line int
}

// Generate runs §4.8's ordered sequence: branch, edit, commit, push, open
// PR. It returns the PR's HTML URL on success.
func (g *Generator) Generate(ctx context.Context, repo *gitrepo.Repository, fu forgeurl.ForgeURL, edits []FileEdit) (string, error) {
	log := clog.FromContext(ctx)

	branchName := freshBranchName()
	if err := repo.CreateBranch(branchName); err != nil {
		return "", gitErr("creating feature branch", err)
	}

	applied, err := applyEdits(ctx, repo.Workspace().Path(), edits)
	if err != nil {
		return "", err
	}
	if len(applied) == 0 {
		return "", gitErr("no changes applied", errors.New("all edits were skipped or failed"))
	}

	for _, a := range applied {
		if err := repo.AddPath(a.path); err != nil {
			return "", gitErr(fmt.Sprintf("staging %s", a.path), err)
		}
	}

	if _, err := repo.Commit(commitMessage(applied), botName, botEmail); err != nil {
		return "", gitErr("committing fixes", err)
	}

	token, err := installationTokenFrom(ctx, g.Creds, fu.Owner, fu.Repo, g.testBaseURL)
	if err != nil {
		return "", err // already a *PrError
	}

	auth := &githttp.BasicAuth{Username: gitPushUsername, Password: token}
	if err := repo.Push(ctx, branchName, transport.AuthMethod(auth)); err != nil {
		return "", gitErr("pushing feature branch", err)
	}

	baseBranch := fu.Branch
	if baseBranch == "" {
		baseBranch = "main"
	}

	client := githubClientFor(token)
	if g.testBaseURL != "" {
		u, err := url.Parse(g.testBaseURL + "/")
		if err != nil {
			return "", configErr("parsing test base URL", err)
		}
		client.BaseURL = u
	}
	pr, _, err := client.PullRequests.Create(ctx, fu.Owner, fu.Repo, &github.NewPullRequest{
		Title: github.String(prTitle),
		Body:  github.String(prBody(applied)),
		Head:  github.String(branchName),
		Base:  github.String(baseBranch),
	})
	if err != nil {
		return "", forgeErr("creating pull request", err)
	}
	if pr.GetHTMLURL() == "" {
		return "", forgeErr("pull request response missing html_url", nil)
	}

	log.Infof("opened pull request %s", pr.GetHTMLURL())
	return pr.GetHTMLURL(), nil
}

// applyEdits applies each edit against the checked-out working tree
// rooted at workDir. Edits whose file does not exist are logged and
// skipped, per §4.8 step 2; every other failure is returned immediately.
func applyEdits(ctx context.Context, workDir string, edits []FileEdit) ([]appliedEdit, error) {
	var applied []appliedEdit

	for _, e := range edits {
		full := filepath.Join(workDir, e.FilePath)

		data, err := os.ReadFile(full)
		if os.IsNotExist(err) {
			clog.FromContext(ctx).Debugf("skipping edit for %s: file not found", e.FilePath)
			continue
		}
		if err != nil {
			return nil, fileErr(fmt.Sprintf("reading %s", e.FilePath), err)
		}

		newData, err := applySingleLineEdit(data, e)
		if err != nil {
			return nil, err
		}

		if err := os.WriteFile(full, newData, 0o644); err != nil {
			return nil, fileErr(fmt.Sprintf("writing %s", e.FilePath), err)
		}

		applied = append(applied, appliedEdit{path: e.FilePath, line: e.LineNumber})
	}

	return applied, nil
}

// applySingleLineEdit replaces the first occurrence of OldSubstring on
// line LineNumber (1-based) with NewSubstring, leaving every other line
// byte-identical.
func applySingleLineEdit(data []byte, e FileEdit) ([]byte, error) {
	// Preserve the exact line terminators of the rest of the file by
	// splitting on "\n" and only touching the target element.
	lines := strings.Split(string(data), "\n")

	if e.LineNumber < 1 || e.LineNumber > len(lines) {
		return nil, fileErr(fmt.Sprintf("line %d out of range for %s (%d lines)", e.LineNumber, e.FilePath, len(lines)), nil)
	}

	idx := e.LineNumber - 1
	line := lines[idx]

	if !strings.Contains(line, e.OldSubstring) {
		return nil, fileErr(fmt.Sprintf("Old URL '%s' not found in line %d: %s", e.OldSubstring, e.LineNumber, line), nil)
	}

	lines[idx] = strings.Replace(line, e.OldSubstring, e.NewSubstring, 1)
	return []byte(strings.Join(lines, "\n")), nil
}

func freshBranchName() string {
	return fmt.Sprintf("queensac-%d", time.Now().UnixNano())
}

func commitMessage(applied []appliedEdit) string {
	var b strings.Builder
	b.WriteString("Fix broken links\n\n")
	for _, a := range applied {
		fmt.Fprintf(&b, "%s:%d\n", a.path, a.line)
	}
	return b.String()
}

func prBody(applied []appliedEdit) string {
	var b strings.Builder
	b.WriteString("This PR was opened automatically after detecting broken links that could be traced to a moved file.\n\n")
	b.WriteString("## Fixed locations\n\n")
	for _, a := range applied {
		fmt.Fprintf(&b, "- `%s:%d`\n", a.path, a.line)
	}
	return b.String()
}
