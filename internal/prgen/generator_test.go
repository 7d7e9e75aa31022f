/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prgen

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/config"
	"github.com/go-git/go-git/v5/plumbing/object"
	"github.com/stretchr/testify/require"

	"github.com/queensac/rook/internal/forgeurl"
	"github.com/queensac/rook/internal/gitrepo"
	"github.com/queensac/rook/internal/workspace"
)

// buildRepoWithFile creates a working repository with path/content
// committed, and a local bare repository registered as its "origin" so
// that Generate's push step has somewhere real to land (go-git's file
// transport talks to it directly, no git binary or network involved).
func buildRepoWithFile(t *testing.T, path, content string) *gitrepo.Repository {
	t.Helper()

	remoteDir := t.TempDir()
	_, err := git.PlainInit(remoteDir, true)
	require.NoError(t, err)

	dir := t.TempDir()
	repo, err := git.PlainInit(dir, false)
	require.NoError(t, err)
	wt, err := repo.Worktree()
	require.NoError(t, err)

	full := filepath.Join(dir, path)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	_, err = wt.Add(path)
	require.NoError(t, err)
	_, err = wt.Commit("seed", &git.CommitOptions{
		Author: &object.Signature{Name: "t", Email: "t@example.com", When: time.Now()},
	})
	require.NoError(t, err)

	_, err = repo.CreateRemote(&config.RemoteConfig{
		Name: "origin",
		URLs: []string{remoteDir},
	})
	require.NoError(t, err)

	ws, err := workspace.Acquire(t.TempDir(), "o", "r")
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(ws.Path()))
	require.NoError(t, os.Rename(dir, ws.Path()))
	t.Cleanup(func() { ws.Release(context.Background()) })

	r, err := gitrepo.Open(ws, nil)
	require.NoError(t, err)
	return r
}

func TestApplySingleLineEdit(t *testing.T) {
	data := []byte("line one\nsee http://old.example.com/x\nline three")

	edit := FileEdit{FilePath: "f.md", LineNumber: 2, OldSubstring: "http://old.example.com/x", NewSubstring: "http://new.example.com/x"}
	out, err := applySingleLineEdit(data, edit)
	require.NoError(t, err)
	require.Equal(t, "line one\nsee http://new.example.com/x\nline three", string(out))
}

func TestApplySingleLineEditMissingSubstring(t *testing.T) {
	data := []byte("line one\nsee http://old.example.com/x\n")

	edit := FileEdit{FilePath: "f.md", LineNumber: 2, OldSubstring: "http://nope.example.com", NewSubstring: "http://new.example.com"}
	_, err := applySingleLineEdit(data, edit)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found in line 2")
}

func TestApplySingleLineEditLineOutOfRange(t *testing.T) {
	data := []byte("only one line")
	edit := FileEdit{FilePath: "f.md", LineNumber: 5, OldSubstring: "x", NewSubstring: "y"}
	_, err := applySingleLineEdit(data, edit)
	require.Error(t, err)
	require.Contains(t, err.Error(), "out of range")
}

func TestApplySingleLineEditOnlyTouchesTargetLine(t *testing.T) {
	data := []byte("http://old.example.com/a\nhttp://old.example.com/b\n")
	edit := FileEdit{FilePath: "f.md", LineNumber: 1, OldSubstring: "http://old.example.com/a", NewSubstring: "http://new.example.com/a"}
	out, err := applySingleLineEdit(data, edit)
	require.NoError(t, err)
	require.Equal(t, "http://new.example.com/a\nhttp://old.example.com/b\n", string(out))
}

func TestApplyEditsSkipsMissingFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "present.md"), []byte("see http://old.example.com\n"), 0o644))

	applied, err := applyEdits(context.Background(), dir, []FileEdit{
		{FilePath: "missing.md", LineNumber: 1, OldSubstring: "x", NewSubstring: "y"},
		{FilePath: "present.md", LineNumber: 1, OldSubstring: "http://old.example.com", NewSubstring: "http://new.example.com"},
	})
	require.NoError(t, err)
	require.Len(t, applied, 1)
	require.Equal(t, "present.md", applied[0].path)

	data, err := os.ReadFile(filepath.Join(dir, "present.md"))
	require.NoError(t, err)
	require.Equal(t, "see http://new.example.com\n", string(data))
}

func TestApplyEditsZeroSuccessfulIsCallerResponsibility(t *testing.T) {
	dir := t.TempDir()
	applied, err := applyEdits(context.Background(), dir, []FileEdit{
		{FilePath: "missing.md", LineNumber: 1, OldSubstring: "x", NewSubstring: "y"},
	})
	require.NoError(t, err)
	require.Empty(t, applied)
}

func TestCommitMessageListsEveryEdit(t *testing.T) {
	msg := commitMessage([]appliedEdit{{path: "a.md", line: 3}, {path: "b.md", line: 7}})
	require.Contains(t, msg, "a.md:3")
	require.Contains(t, msg, "b.md:7")
}

func TestPrBodyListsEveryEdit(t *testing.T) {
	body := prBody([]appliedEdit{{path: "a.md", line: 3}})
	require.Contains(t, body, "`a.md:3`")
}

// fakeForge is a minimal stand-in for the GitHub REST + App API surface
// Generate touches: app installation listing, installation token minting,
// and pull request creation.
func fakeForge(t *testing.T, owner string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/app/installations", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"id": 123, "account": map[string]any{"login": owner}},
		})
	})
	mux.HandleFunc("/app/installations/123/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"token":      "fake-installation-token",
			"expires_at": time.Now().Add(time.Hour),
		})
	})
	mux.HandleFunc("/repos/"+owner+"/repo/pulls", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"html_url": "https://example.invalid/" + owner + "/repo/pull/1",
			"number":   1,
		})
	})

	return httptest.NewServer(mux)
}

func testCredentials(t *testing.T) Credentials {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der := x509.MarshalPKCS1PrivateKey(key)
	pemBytes := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: der})
	return Credentials{AppID: 1, PrivateKeyPEM: pemBytes}
}

func TestGenerateHappyPath(t *testing.T) {
	repo := buildRepoWithFile(t, "README.md", "see http://old.example.com/x\n")

	srv := fakeForge(t, "acme")
	t.Cleanup(srv.Close)

	gen := &Generator{Creds: testCredentials(t), testBaseURL: srv.URL}
	fu := forgeurl.ForgeURL{Host: "github.com", Owner: "acme", Repo: "repo", Branch: "main"}

	edits := []FileEdit{
		{FilePath: "README.md", LineNumber: 1, OldSubstring: "http://old.example.com/x", NewSubstring: "http://new.example.com/x"},
	}

	url, err := gen.Generate(context.Background(), repo, fu, edits)
	require.NoError(t, err)
	require.Equal(t, "https://example.invalid/acme/repo/pull/1", url)

	data, err := os.ReadFile(filepath.Join(repo.Workspace().Path(), "README.md"))
	require.NoError(t, err)
	require.Equal(t, "see http://new.example.com/x\n", string(data))
}

func TestGenerateFailsOnMissingOldSubstring(t *testing.T) {
	repo := buildRepoWithFile(t, "README.md", "see http://old.example.com/x\n")

	gen := &Generator{Creds: testCredentials(t)}
	fu := forgeurl.ForgeURL{Host: "github.com", Owner: "acme", Repo: "repo", Branch: "main"}

	edits := []FileEdit{
		{FilePath: "README.md", LineNumber: 1, OldSubstring: "http://nope.example.com", NewSubstring: "http://new.example.com"},
	}

	_, err := gen.Generate(context.Background(), repo, fu, edits)
	require.Error(t, err)
	require.Contains(t, err.Error(), "not found in line 1")
}

func TestGenerateFailsWhenNoEditsApply(t *testing.T) {
	repo := buildRepoWithFile(t, "README.md", "see http://old.example.com/x\n")

	gen := &Generator{Creds: testCredentials(t)}
	fu := forgeurl.ForgeURL{Host: "github.com", Owner: "acme", Repo: "repo", Branch: "main"}

	edits := []FileEdit{
		{FilePath: "does-not-exist.md", LineNumber: 1, OldSubstring: "x", NewSubstring: "y"},
	}

	_, err := gen.Generate(context.Background(), repo, fu, edits)
	require.Error(t, err)
	require.Contains(t, err.Error(), "no changes applied")
}
