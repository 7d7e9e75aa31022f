/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package forgeurl parses and constructs URLs for forge-hosted
// repositories (GitHub and GitHub-compatible hosts).
package forgeurl

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// ErrInvalidURL is returned when the input does not match the forge URL
// grammar: https://<host>/<owner>/<repo>[/(tree|blob)/<branch>[/<path>]].
var ErrInvalidURL = errors.New("forgeurl: not a recognized forge URL")

// ForgeURL is an immutable reference to a repository, and optionally a
// branch and a file path within it, hosted on a forge.
type ForgeURL struct {
	Host     string
	Owner    string
	Repo     string
	Branch   string
	FilePath string
}

// Parse parses raw into a ForgeURL. Anything beyond the grammar above
// (owner, repo, optional /tree|blob/<branch>[/<path>]) fails with
// ErrInvalidURL.
func Parse(raw string) (ForgeURL, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ForgeURL{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if u.Scheme != "https" {
		return ForgeURL{}, fmt.Errorf("%w: missing scheme", ErrInvalidURL)
	}
	if u.Host == "" {
		return ForgeURL{}, fmt.Errorf("%w: missing host", ErrInvalidURL)
	}

	segments := splitPath(u.Path)
	if len(segments) < 2 || segments[0] == "" || segments[1] == "" {
		return ForgeURL{}, fmt.Errorf("%w: owner/repo missing", ErrInvalidURL)
	}

	fu := ForgeURL{
		Host:  u.Host,
		Owner: segments[0],
		Repo:  strings.TrimSuffix(segments[1], ".git"),
	}

	rest := segments[2:]
	switch {
	case len(rest) == 0:
		return fu, nil
	case rest[0] != "tree" && rest[0] != "blob":
		return ForgeURL{}, fmt.Errorf("%w: unexpected path segment %q", ErrInvalidURL, rest[0])
	case len(rest) < 2 || rest[1] == "":
		return ForgeURL{}, fmt.Errorf("%w: missing branch after %q", ErrInvalidURL, rest[0])
	}

	fu.Branch = rest[1]
	if len(rest) > 2 {
		fu.FilePath = strings.Join(rest[2:], "/")
	}
	return fu, nil
}

// splitPath splits a URL path into non-empty segments.
func splitPath(p string) []string {
	var out []string
	for _, s := range strings.Split(p, "/") {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}

// CloneURL returns the HTTPS clone URL for the repository, ignoring any
// branch or file path.
func (f ForgeURL) CloneURL() string {
	return fmt.Sprintf("https://%s/%s/%s", f.Host, f.Owner, f.Repo)
}

// IsGitHubHost reports whether the parsed host is github.com or a
// subdomain of it (e.g. a GitHub Enterprise Server instance is not
// included; this recognizes github.com itself and raw/gist subdomains).
func (f ForgeURL) IsGitHubHost() bool {
	h := strings.ToLower(f.Host)
	return h == "github.com" || strings.HasSuffix(h, ".github.com")
}

// String renders the ForgeURL back into a forge tree/blob URL when a
// branch is present, or the bare repository URL otherwise.
func (f ForgeURL) String() string {
	if f.Branch == "" {
		return f.CloneURL()
	}
	kind := "tree"
	if f.FilePath != "" {
		kind = "blob"
	}
	u := fmt.Sprintf("%s/%s/%s", f.CloneURL(), kind, f.Branch)
	if f.FilePath != "" {
		u += "/" + f.FilePath
	}
	return u
}

// WithFilePath returns a copy of f with its FilePath replaced.
func (f ForgeURL) WithFilePath(path string) ForgeURL {
	f.FilePath = path
	return f
}
