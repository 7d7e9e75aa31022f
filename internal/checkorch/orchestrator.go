/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package checkorch drives link extraction and verification across a
// repository with bounded concurrency, and collects the non-valid
// results.
package checkorch

import (
	"context"
	"fmt"
	"sync"

	"github.com/chainguard-dev/clog"
	"golang.org/x/sync/semaphore"

	"github.com/queensac/rook/internal/gitrepo"
	"github.com/queensac/rook/internal/linkcheck"
	"github.com/queensac/rook/internal/linkextract"
)

// maxInFlight bounds the number of concurrent HTTP probes (§4.7, §8).
const maxInFlight = 10

// Summary counts how every extracted link was classified.
type Summary struct {
	Total    int
	Valid    int
	Invalid  int
	Redirect int
	Moved    int
}

// InvalidLink records a non-Valid outcome for a single URL, at the
// location of its first sighting in the repository.
type InvalidLink struct {
	URL        string
	FilePath   string
	LineNumber int
	Outcome    linkcheck.Outcome
	Suggestion string // set only for Moved outcomes
}

// Run extracts every link from repo and probes each with checker, using
// up to maxInFlight concurrent probes. It returns a summary of outcome
// counts and the list of links that were not classified Valid.
//
// Run is cooperatively cancellable: once ctx is done, no new probes are
// started, but any probe already in flight is allowed to finish its
// current attempt.
func Run(ctx context.Context, repo *gitrepo.Repository, checker *linkcheck.Checker) (Summary, []InvalidLink, error) {
	log := clog.FromContext(ctx)

	links, err := linkextract.Extract(repo)
	if err != nil {
		return Summary{}, nil, fmt.Errorf("extracting links: %w", err)
	}

	summary := Summary{Total: len(links)}
	var invalid []InvalidLink
	var mu sync.Mutex

	sem := semaphore.NewWeighted(maxInFlight)
	var wg sync.WaitGroup

	checked := 0
	nextDecile := 10

	for _, info := range links {
		if ctx.Err() != nil {
			break // stop scheduling new probes once cancellation is observed
		}

		if err := sem.Acquire(ctx, 1); err != nil {
			break // context cancelled while waiting for a slot
		}

		wg.Add(1)
		go func(info linkextract.LinkInfo) {
			defer wg.Done()
			defer sem.Release(1)

			outcome := checker.Check(ctx, info.URL)

			mu.Lock()
			defer mu.Unlock()

			recordOutcome(&summary, outcome.Kind)
			if outcome.Kind != linkcheck.Valid {
				invalid = append(invalid, toInvalidLink(info, outcome))
			}

			checked++
			if summary.Total > 0 && checked*100/summary.Total >= nextDecile {
				log.Infof("checked %d/%d links", checked, summary.Total)
				nextDecile += 10
			}
		}(info)
	}

	wg.Wait()

	if ctx.Err() != nil && checked < summary.Total {
		log.Warnf("check cancelled after %d/%d links", checked, summary.Total)
		return summary, invalid, fmt.Errorf("check cancelled after %d/%d links: %w", checked, summary.Total, ctx.Err())
	}

	log.Infof("link check summary: total=%d valid=%d invalid=%d redirect=%d moved=%d",
		summary.Total, summary.Valid, summary.Invalid, summary.Redirect, summary.Moved)

	return summary, invalid, nil
}

func recordOutcome(summary *Summary, kind linkcheck.Kind) {
	switch kind {
	case linkcheck.Valid:
		summary.Valid++
	case linkcheck.Redirect:
		summary.Redirect++
	case linkcheck.Moved:
		summary.Moved++
	case linkcheck.Invalid:
		summary.Invalid++
	}
}

func toInvalidLink(info linkextract.LinkInfo, outcome linkcheck.Outcome) InvalidLink {
	link := InvalidLink{
		URL:        info.URL,
		FilePath:   info.FilePath,
		LineNumber: info.LineNumber,
		Outcome:    outcome,
	}
	if outcome.Kind == linkcheck.Moved {
		link.Suggestion = outcome.Target
	}
	return link
}
