package main

import (
	"fmt"
	"net/url"
	"strings"
)

// resolveLivecheck determines how to discover upstream versions of f. An
// explicit livecheck wins; otherwise the strategy is derived from the source
// archive url.
func resolveLivecheck(f *Formula) (LivecheckSpec, error) {
	switch {
	case f.Livecheck.Spec != nil:
		return *f.Livecheck.Spec, nil
	case f.Livecheck.String != nil:
		return resolveLivecheckString(*f.Livecheck.String)
	}
	u, err := url.Parse(f.URL)
	if err != nil || u.Host != "github.com" {
		return LivecheckSpec{}, fmt.Errorf("no livecheck for %s", f.Name)
	}
	return resolveGitHubLivecheck(*u)
}

func resolveLivecheckString(spec string) (LivecheckSpec, error) {
	u, err := url.Parse(spec)
	if err != nil {
		return LivecheckSpec{}, err
	}

	if u.Scheme == "github" || u.Host == "github.com" {
		return resolveGitHubLivecheck(*u)
	}

	if u.Scheme == "http" || u.Scheme == "https" {
		return LivecheckSpec{URL: spec}, nil
	}

	return LivecheckSpec{}, fmt.Errorf("unsupported livecheck: %s", spec)
}

func resolveGitHubLivecheck(u url.URL) (LivecheckSpec, error) {
	const (
		githubVersionsURL      = "https://api.github.com/repos/%s/%s/releases"
		githubVersionsJSONPath = "$[*].tag_name"
	)

	var (
		owner  string
		repo   string
		prefix string
	)
	if u.Scheme == "github" {
		// github://ryjen/prep?prefix=v
		owner = u.Host
		repo = strings.Trim(u.Path, "/")
		prefix = u.Query().Get("prefix")
	} else if u.Host == "github.com" {
		// https://github.com/$owner/$repo/releases/download/$tag/$asset
		parts := strings.Split(strings.Trim(u.Path, "/"), "/")
		if len(parts) < 2 {
			return LivecheckSpec{}, fmt.Errorf("invalid url: %s", u.String())
		}
		owner = parts[0]
		repo = parts[1]
		if len(parts) >= 5 && parts[2] == "releases" && parts[3] == "download" {
			if tag := parts[4]; strings.HasPrefix(tag, "v") {
				prefix = "v"
			}
		}
	} else {
		return LivecheckSpec{}, fmt.Errorf("invalid url")
	}
	if owner == "" || repo == "" || strings.Contains(repo, "/") {
		return LivecheckSpec{}, fmt.Errorf("invalid repository: %s/%s", owner, repo)
	}

	return LivecheckSpec{
		URL:      fmt.Sprintf(githubVersionsURL, owner, repo),
		JSONPath: githubVersionsJSONPath,
		Prefix:   prefix,
	}, nil
}
