/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package linkextract walks a repository's committed tree and extracts a
// deduplicated catalogue of hyperlinks referenced by its tracked files.
package linkextract

import (
	"bufio"
	"fmt"
	"net"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/go-git/go-git/v5/plumbing/object"

	"github.com/queensac/rook/internal/gitrepo"
)

// LinkInfo records a URL and where it was first sighted. Equality for
// deduplication purposes is by URL alone; FilePath and LineNumber
// describe only the first occurrence.
type LinkInfo struct {
	URL        string
	FilePath   string
	LineNumber int // 1-based
}

// urlPattern matches http(s) URLs with a conservative character class.
// It intentionally does not try to validate the grammar fully; trailing
// punctuation accidentally captured by the class is trimmed separately.
var urlPattern = regexp.MustCompile(`https?://[A-Za-z0-9][A-Za-z0-9.-]*\.[A-Za-z]{2,}(?::[0-9]+)?(?:/[^\s<>"'` + "`" + `]*)?`)

// trailingPunctuation is stripped from the right end of a matched URL in
// a single pass, handling the common case of a URL embedded in prose or
// markdown ("see https://example.com/x.") or wrapped in delimiters
// ("(https://example.com/x)").
const trailingPunctuation = ")>.,;"

// Extract walks repo's HEAD tree and returns every distinct URL found,
// keyed by URL, with the file path and 1-based line number of its first
// occurrence.
func Extract(repo *gitrepo.Repository) (map[string]LinkInfo, error) {
	tree, err := repo.HeadTree()
	if err != nil {
		return nil, fmt.Errorf("loading head tree: %w", err)
	}

	found := make(map[string]LinkInfo)

	err = gitrepo.WalkTree(tree, func(path string, file *object.File) error {
		extractFromBlob(path, file, found)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walking tree: %w", err)
	}

	return found, nil
}

// extractFromBlob scans a single blob line by line. Errors reading or
// decoding the blob are swallowed: extraction is never fatal for a
// single file (§7).
func extractFromBlob(path string, file *object.File, found map[string]LinkInfo) {
	contents, err := file.Contents()
	if err != nil {
		return
	}
	if !utf8.ValidString(contents) {
		return
	}

	scanner := bufio.NewScanner(strings.NewReader(contents))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()

		for _, match := range urlPattern.FindAllString(line, -1) {
			url := strings.TrimRight(match, trailingPunctuation)
			if url == "" || isExcludedHost(url) {
				continue
			}
			if _, seen := found[url]; !seen {
				found[url] = LinkInfo{URL: url, FilePath: path, LineNumber: lineNo}
			}
		}
	}
}

// isExcludedHost reports whether url's host is loopback (localhost) or an
// IPv4 literal, with or without a port.
func isExcludedHost(rawURL string) bool {
	rest := strings.TrimPrefix(rawURL, "https://")
	rest = strings.TrimPrefix(rest, "http://")

	hostPort := rest
	if idx := strings.IndexAny(rest, "/?#"); idx >= 0 {
		hostPort = rest[:idx]
	}

	host := hostPort
	if h, _, err := net.SplitHostPort(hostPort); err == nil {
		host = h
	}

	if strings.EqualFold(host, "localhost") {
		return true
	}

	ip := net.ParseIP(host)
	return ip != nil && ip.To4() != nil
}
