package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"codeops/internal/config"
	"codeops/internal/domain"
	"codeops/internal/util"
)

var (
	commitRe = regexp.MustCompile(`^[0-9a-f]{40}$`)
	semverRe = regexp.MustCompile(`^v?(\d+)\.(\d+)\.(\d+)$`)
)

// Resolver determines the server build compatible with a frontend library
// release: release tag -> package manifest -> embedded VS Code commit ->
// platform-specific download URL.
type Resolver struct {
	cfg      *config.Config
	logger   *zap.Logger
	client   *util.HTTPClient
	platform domain.Platform

	mu sync.Mutex
	// cache memoizes resolutions per concrete release tag. The mapping from
	// tag to commit is deterministic upstream, so entries never expire.
	// "latest" is never used as a key.
	cache map[string]*domain.ResolvedVersion
}

// NewResolver creates a resolver for the given platform.
func NewResolver(cfg *config.Config, logger *zap.Logger, platform domain.Platform) *Resolver {
	return &Resolver{
		cfg:      cfg,
		logger:   logger,
		client:   util.NewHTTPClient(30*time.Second, logger),
		platform: platform,
		cache:    make(map[string]*domain.ResolvedVersion),
	}
}

// Resolve maps a frontend library version (or "latest") to a ResolvedVersion.
func (r *Resolver) Resolve(ctx context.Context, version string) (*domain.ResolvedVersion, error) {
	version = strings.TrimSpace(version)
	tag := version
	if version == "" || strings.EqualFold(version, "latest") {
		latest, err := r.latestTag(ctx)
		if err != nil {
			return nil, err
		}
		tag = latest
	}

	r.mu.Lock()
	if cached, ok := r.cache[tag]; ok {
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	commit, err := r.manifestCommit(ctx, tag)
	if err != nil {
		return nil, err
	}

	resolved := &domain.ResolvedVersion{
		APIVersion: tag,
		Commit:     commit,
		Platform:   r.platform,
		DownloadURL: fmt.Sprintf(r.cfg.Resolver.DownloadURLTemplate,
			commit, r.platform.ServerFlavor(), r.platform.URLSuffix()),
	}

	r.logger.Info("Resolved server version",
		zap.String("api_version", tag),
		zap.String("commit", commit),
		zap.String("platform", r.platform.String()))

	r.mu.Lock()
	r.cache[tag] = resolved
	r.mu.Unlock()
	return resolved, nil
}

// HealthCheck verifies that the release metadata endpoint is reachable.
func (r *Resolver) HealthCheck(ctx context.Context) []domain.HealthCheck {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, r.cfg.Resolver.ReleasesURL, nil)
	resp, err := r.client.Do(req)
	if err != nil {
		return []domain.HealthCheck{{Name: "Release metadata", Status: domain.StatusError, Message: "Connection failed"}}
	}
	util.CloseResponseBodySilent(resp.Body)

	if resp.StatusCode != http.StatusOK {
		return []domain.HealthCheck{{Name: "Release metadata", Status: domain.StatusWarn, Message: fmt.Sprintf("Status %d", resp.StatusCode)}}
	}
	return []domain.HealthCheck{{Name: "Release metadata", Status: domain.StatusOK, Message: "Reachable"}}
}

type releaseTag struct {
	Name string `json:"name"`
}

// latestTag fetches the published release tags and returns the highest one
// by semantic-version ordering. Tags that are not semver are ignored.
func (r *Resolver) latestTag(ctx context.Context) (string, error) {
	var tags []releaseTag
	if err := r.getJSON(ctx, r.cfg.Resolver.ReleasesURL, "latest", &tags); err != nil {
		return "", err
	}

	best := ""
	for _, t := range tags {
		if !semverRe.MatchString(t.Name) {
			continue
		}
		if best == "" || semverLess(best, t.Name) {
			best = t.Name
		}
	}
	if best == "" {
		return "", &domain.ResolveError{
			Kind:    domain.ResolveNotFound,
			Version: "latest",
			Err:     fmt.Errorf("no published releases found"),
		}
	}
	return best, nil
}

// manifestCommit fetches the release's package manifest and extracts the
// embedded VS Code commit.
func (r *Resolver) manifestCommit(ctx context.Context, tag string) (string, error) {
	var manifest struct {
		Config struct {
			Vscode struct {
				Commit string `json:"commit"`
			} `json:"vscode"`
		} `json:"config"`
	}

	url := fmt.Sprintf(r.cfg.Resolver.ManifestURLTemplate, tag)
	if err := r.getJSON(ctx, url, tag, &manifest); err != nil {
		return "", err
	}

	commit := strings.ToLower(strings.TrimSpace(manifest.Config.Vscode.Commit))
	if !commitRe.MatchString(commit) {
		return "", &domain.ResolveError{
			Kind:    domain.ResolveMalformedManifest,
			Version: tag,
			Err:     fmt.Errorf("manifest lacks a valid vscode commit (got %q)", manifest.Config.Vscode.Commit),
		}
	}
	return commit, nil
}

// getJSON performs a JSON GET, mapping failures onto the resolution error
// taxonomy. No retries: the caller decides whether a retry is warranted.
func (r *Resolver) getJSON(ctx context.Context, url, version string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &domain.ResolveError{Kind: domain.ResolveNetwork, Version: version, Err: err}
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return &domain.ResolveError{Kind: domain.ResolveNetwork, Version: version, Err: err}
	}
	defer r.client.CloseResponseBody(resp.Body)

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return &domain.ResolveError{
			Kind:    domain.ResolveNotFound,
			Version: version,
			Err:     fmt.Errorf("%s returned HTTP 404", url),
		}
	case resp.StatusCode != http.StatusOK:
		return &domain.ResolveError{
			Kind:    domain.ResolveNetwork,
			Version: version,
			Err:     fmt.Errorf("%s returned HTTP %d", url, resp.StatusCode),
		}
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return &domain.ResolveError{Kind: domain.ResolveMalformedManifest, Version: version, Err: err}
	}
	return nil
}

// semverLess reports whether version a orders before version b.
func semverLess(a, b string) bool {
	am := semverRe.FindStringSubmatch(a)
	bm := semverRe.FindStringSubmatch(b)
	for i := 1; i <= 3; i++ {
		av, _ := strconv.Atoi(am[i])
		bv, _ := strconv.Atoi(bm[i])
		if av != bv {
			return av < bv
		}
	}
	return false
}
