/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package linkcheck probes a single URL and classifies the response into
// one of four outcomes, delegating forge-local 404s to a resolver.
package linkcheck

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/chainguard-dev/clog"

	"github.com/queensac/rook/internal/forgeurl"
)

const (
	maxAttempts       = 3
	perAttemptTimeout = 5 * time.Second
	retryBackoff      = 1 * time.Second
)

// Outcome is the tagged union of possible classifications for a checked
// link.
type Outcome struct {
	Kind   Kind
	Target string // Redirect's Location, or Moved's new path
	Reason string // Invalid's diagnostic
}

// Kind discriminates an Outcome.
type Kind int

const (
	Valid Kind = iota
	Redirect
	Invalid
	Moved
)

func (k Kind) String() string {
	switch k {
	case Valid:
		return "Valid"
	case Redirect:
		return "Redirect"
	case Invalid:
		return "Invalid"
	case Moved:
		return "Moved"
	default:
		return "Unknown"
	}
}

// ResolveMoved is invoked for a 404 on a forge-hosted URL to discover
// whether the referenced file has moved. It returns the file's new path
// relative to the repository root. Supplied as a callback so this
// package never imports gitrepo/rename directly (see Design Notes on
// avoiding the repository<->rename-tracer import cycle).
type ResolveMoved func(ctx context.Context, fu forgeurl.ForgeURL) (newPath string, err error)

// Checker probes URLs with bounded retries using Client, which must have
// redirects disabled (CheckRedirect returning http.ErrUseLastResponse)
// so the checker can classify 3xx responses itself.
type Checker struct {
	Client       *http.Client
	ResolveMoved ResolveMoved
}

// NewClient builds the HTTP client §4.6 requires: no automatic redirect
// following, a 5-second per-attempt timeout enforced via request context
// rather than client Timeout (so each attempt — not the whole retry loop
// — gets its own budget).
func NewClient() *http.Client {
	return &http.Client{
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
}

// Check probes url, retrying transport errors up to maxAttempts times
// with a fixed backoff, and classifies the final response.
func (c *Checker) Check(ctx context.Context, rawURL string) Outcome {
	log := clog.FromContext(ctx)

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := c.attempt(ctx, rawURL)
		if err != nil {
			lastErr = err
			if attempt == maxAttempts {
				return Outcome{Kind: Invalid, Reason: fmt.Sprintf("Request error: %v", err)}
			}
			log.Debugf("attempt %d/%d for %s failed: %v, retrying in %s", attempt, maxAttempts, rawURL, err, retryBackoff)
			select {
			case <-time.After(retryBackoff):
			case <-ctx.Done():
				return Outcome{Kind: Invalid, Reason: fmt.Sprintf("Request error: %v", ctx.Err())}
			}
			continue
		}
		defer resp.Body.Close()
		return c.classify(ctx, rawURL, resp)
	}

	// Unreachable in practice: the loop above always returns by the last
	// attempt, but keep a defensive fallback consistent with §4.6 step 3.
	return Outcome{Kind: Invalid, Reason: fmt.Sprintf("Max retries exceeded: %v", lastErr)}
}

func (c *Checker) attempt(ctx context.Context, rawURL string) (*http.Response, error) {
	// An attempt already started is not aborted by cancelling ctx: it runs
	// to completion or to its own per-attempt timeout.
	attemptCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), perAttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(attemptCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}

	client := c.Client
	if client == nil {
		client = NewClient()
	}
	return client.Do(req)
}

func (c *Checker) classify(ctx context.Context, rawURL string, resp *http.Response) Outcome {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return Outcome{Kind: Valid}

	case resp.StatusCode >= 300 && resp.StatusCode < 400:
		location := resp.Header.Get("Location")
		if location == "" {
			return Outcome{Kind: Valid}
		}
		if isTrivialRedirect(rawURL, location) {
			return Outcome{Kind: Valid}
		}
		return Outcome{Kind: Redirect, Target: location}

	case resp.StatusCode == http.StatusNotFound:
		return c.resolve404(ctx, rawURL)

	default:
		return Outcome{Kind: Invalid, Reason: fmt.Sprintf("HTTP status code: %d", resp.StatusCode)}
	}
}

func (c *Checker) resolve404(ctx context.Context, rawURL string) Outcome {
	fu, err := forgeurl.Parse(rawURL)
	if err != nil || !fu.IsGitHubHost() {
		return Outcome{Kind: Invalid, Reason: fmt.Sprintf("HTTP status code: %d", http.StatusNotFound)}
	}

	if c.ResolveMoved == nil {
		return Outcome{Kind: Invalid, Reason: fmt.Sprintf("Error resolving %s: no resolver configured", rawURL)}
	}

	newPath, err := c.ResolveMoved(ctx, fu)
	if err != nil {
		return Outcome{Kind: Invalid, Reason: fmt.Sprintf("File not found in repository: %s", fu.FilePath)}
	}
	return Outcome{Kind: Moved, Target: newPath}
}

// isTrivialRedirect reports whether target differs from source only by
// the presence or absence of a trailing path slash: same scheme, host,
// port, and query.
func isTrivialRedirect(source, target string) bool {
	src, err1 := url.Parse(source)
	dst, err2 := url.Parse(target)
	if err1 != nil || err2 != nil {
		return false
	}

	if src.Scheme != dst.Scheme || src.Hostname() != dst.Hostname() || src.Port() != dst.Port() || src.RawQuery != dst.RawQuery {
		return false
	}

	if src.Path == dst.Path {
		return false
	}

	return strings.TrimSuffix(src.Path, "/") == strings.TrimSuffix(dst.Path, "/")
}
