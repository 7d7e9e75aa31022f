/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

package prgen

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/google/go-github/v66/github"
)

// gitPushUsername is the literal username GitHub expects alongside an
// installation token when authenticating git operations over HTTPS.
const gitPushUsername = "x-access-token"

// Credentials identify a GitHub App whose installation token is minted
// per-invocation and scoped to a single repository.
type Credentials struct {
	AppID         int64
	PrivateKeyPEM []byte
}

// installationToken implements the three-step auth sub-protocol from
// §6/§4.8: build an app JWT, find the installation for owner, and mint a
// token scoped to repo.
func installationToken(ctx context.Context, creds Credentials, owner, repo string) (string, error) {
	return installationTokenFrom(ctx, creds, owner, repo, "")
}

// installationTokenFrom is installationToken with an overridable API base
// URL, so tests can point it at an httptest server instead of
// api.github.com.
func installationTokenFrom(ctx context.Context, creds Credentials, owner, repo, baseURL string) (string, error) {
	appsTransport, err := ghinstallation.NewAppsTransport(http.DefaultTransport, creds.AppID, creds.PrivateKeyPEM)
	if err != nil {
		return "", configErr("building app JWT transport", err)
	}
	if baseURL != "" {
		appsTransport.BaseURL = baseURL
	}

	appClient := github.NewClient(&http.Client{Transport: appsTransport})
	if baseURL != "" {
		u, err := url.Parse(baseURL + "/")
		if err != nil {
			return "", configErr("parsing test base URL", err)
		}
		appClient.BaseURL = u
	}

	installations, _, err := appClient.Apps.ListInstallations(ctx, nil)
	if err != nil {
		return "", forgeErr("listing app installations", err)
	}

	var installationID int64
	found := false
	for _, inst := range installations {
		if inst.GetAccount() != nil && strings.EqualFold(inst.GetAccount().GetLogin(), owner) {
			installationID = inst.GetID()
			found = true
			break
		}
	}
	if !found {
		return "", forgeErr(fmt.Sprintf("no installation found for account %q", owner), nil)
	}

	installationTransport := ghinstallation.NewFromAppsTransport(appsTransport, installationID)
	installationTransport.InstallationTokenOptions = &github.InstallationTokenOptions{
		Repositories: []string{repo},
	}

	token, err := installationTransport.Token(ctx)
	if err != nil {
		return "", forgeErr("minting installation token", err)
	}

	// token is never logged and never embedded in a URL; it flows only
	// through the git credential callback and the REST client's transport.
	return token, nil
}

// githubClientFor builds a go-github client authenticated with token as
// a personal-access-token-style bearer credential.
func githubClientFor(token string) *github.Client {
	return github.NewClient(nil).WithAuthToken(token)
}
