/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Command rook scans a GitHub repository for broken hyperlinks, traces
// renamed files through git history, and opens a pull request fixing
// the links it can resolve.
package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chainguard-dev/clog"
	"github.com/sethvargo/go-envconfig"
	flag "github.com/spf13/pflag"

	"github.com/queensac/rook/internal/pipeline"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, nil)))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	os.Exit(int(run(ctx)))
}

func run(ctx context.Context) pipeline.ExitCode {
	var cfg pipeline.Config
	var baseDir string

	flag.StringVar(&cfg.RepoURL, "repo", "", "URL of the repository to scan (required)")
	flag.StringVar(&cfg.Branch, "branch", "", "branch to scan (default: the repository's default branch)")
	flag.BoolVar(&cfg.DryRun, "dry-run", false, "report broken links without opening a pull request")
	flag.StringVar(&baseDir, "workdir", "", "base directory for scratch clones (default: OS temp dir)")
	flag.Parse()

	cfg.BaseDir = baseDir

	if cfg.RepoURL == "" {
		clog.FatalContextf(ctx, "--repo is required")
	}

	if err := envconfig.Process(ctx, &cfg); err != nil {
		clog.FatalContextf(ctx, "processing config: %v", err)
	}

	ctx = clog.WithLogger(ctx, clog.FromContext(ctx).With("repo", cfg.RepoURL, "branch", cfg.Branch))

	sup := pipeline.NewSupervisor()
	p := pipeline.New(sup)

	code, err := p.Run(ctx, cfg)
	if err != nil {
		clog.ErrorContextf(ctx, "rook run failed: %v", err)
	}
	return code
}
