// SPDX-License-Identifier: MPL-2.0

package release

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/kohyalaunch/kohyalaunch/internal/progress"

	"github.com/dustin/go-humanize"
	"golang.org/x/mod/semver"
)

const (
	defaultAPIBaseURL     = "https://api.github.com"
	defaultArchiveBaseURL = "https://github.com"
	defaultUserAgent      = "kohyalaunch"

	defaultPerPage = 30
	maxPages       = 3

	// maxJSONResponseBytes is the upper bound on JSON API response size (10 MB).
	maxJSONResponseBytes = 10 << 20
)

var (
	// ErrReleaseNotFound is returned when the repository has no stable release.
	ErrReleaseNotFound = errors.New("release not found")

	// ErrNotGitHub is returned for repository URLs outside github.com.
	ErrNotGitHub = errors.New("repository is not hosted on github.com")
)

type (
	// RateLimitError is returned when the GitHub API rate limit is exceeded.
	RateLimitError struct {
		Limit     int
		Remaining int
		ResetAt   time.Time
	}

	// Release is a published GitHub release.
	Release struct {
		TagName    string
		Name       string
		Prerelease bool
		Draft      bool
	}

	githubRelease struct {
		TagName    string `json:"tag_name"`
		Name       string `json:"name"`
		Prerelease bool   `json:"prerelease"`
		Draft      bool   `json:"draft"`
	}

	// Client resolves releases and downloads their source archives.
	Client struct {
		httpClient     *http.Client
		owner          string
		repo           string
		baseURL        string
		archiveBaseURL string
		token          string
		username       string
		password       string
		userAgent      string
	}

	// ClientOption configures a Client during construction.
	ClientOption func(*Client)
)

// Error formats the rate limit details as a human-readable message.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("GitHub API rate limit exceeded (%d remaining, resets at %s)",
		e.Remaining, e.ResetAt.UTC().Format("15:04 UTC"))
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(c *http.Client) ClientOption {
	return func(cl *Client) { cl.httpClient = c }
}

// WithBaseURL overrides the API base URL, primarily for test servers.
func WithBaseURL(base string) ClientOption {
	return func(cl *Client) { cl.baseURL = strings.TrimRight(base, "/") }
}

// WithArchiveBaseURL overrides the host serving tag archives.
func WithArchiveBaseURL(base string) ClientOption {
	return func(cl *Client) { cl.archiveBaseURL = strings.TrimRight(base, "/") }
}

// WithToken sets a personal access token for API requests.
func WithToken(token string) ClientOption {
	return func(cl *Client) { cl.token = token }
}

// WithBasicAuth sets credentials collected interactively during acquisition.
func WithBasicAuth(username, password string) ClientOption {
	return func(cl *Client) {
		cl.username = username
		cl.password = password
	}
}

// NewClient creates a Client for the GitHub repository at repoURL.
func NewClient(repoURL string, opts ...ClientOption) (*Client, error) {
	owner, repo, err := ParseRepo(repoURL)
	if err != nil {
		return nil, err
	}
	c := &Client{
		httpClient:     http.DefaultClient,
		owner:          owner,
		repo:           repo,
		baseURL:        defaultAPIBaseURL,
		archiveBaseURL: defaultArchiveBaseURL,
		userAgent:      defaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ParseRepo extracts owner and repository name from a github.com URL.
func ParseRepo(repoURL string) (owner, repo string, err error) {
	u, err := url.Parse(repoURL)
	if err != nil {
		return "", "", fmt.Errorf("parse repository URL: %w", err)
	}
	if !strings.EqualFold(u.Host, "github.com") {
		return "", "", fmt.Errorf("%w: %s", ErrNotGitHub, redactURL(repoURL))
	}
	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository URL %s must be https://github.com/<owner>/<repo>", redactURL(repoURL))
	}
	return parts[0], strings.TrimSuffix(parts[1], ".git"), nil
}

// LatestTag returns the tag of the latest published release. When GitHub
// reports no "latest" release, the highest stable semver tag is used.
func (c *Client) LatestTag(ctx context.Context) (string, error) {
	latestURL := fmt.Sprintf("%s/repos/%s/%s/releases/latest", c.baseURL, c.owner, c.repo)

	resp, err := c.doRequest(ctx, latestURL, true)
	if err != nil {
		return "", fmt.Errorf("getting latest release: %w", err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if err := checkRateLimit(resp); err != nil {
		return "", err
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var gr githubRelease
		if err := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&gr); err != nil {
			return "", fmt.Errorf("getting latest release: decoding response: %w", err)
		}
		if gr.TagName == "" {
			return "", ErrReleaseNotFound
		}
		return gr.TagName, nil
	case http.StatusNotFound:
		releases, listErr := c.ListReleases(ctx)
		if listErr != nil {
			return "", listErr
		}
		if len(releases) == 0 {
			return "", ErrReleaseNotFound
		}
		return releases[0].TagName, nil
	default:
		return "", fmt.Errorf("getting latest release: unexpected status %d", resp.StatusCode)
	}
}

// ListReleases fetches stable releases sorted by semantic version, newest first.
func (c *Client) ListReleases(ctx context.Context) ([]Release, error) {
	pageURL := fmt.Sprintf("%s/repos/%s/%s/releases?per_page=%d", c.baseURL, c.owner, c.repo, defaultPerPage)

	var all []Release
	for page := 0; page < maxPages && pageURL != ""; page++ {
		resp, err := c.doRequest(ctx, pageURL, true)
		if err != nil {
			return nil, fmt.Errorf("listing releases: %w", err)
		}
		if rlErr := checkRateLimit(resp); rlErr != nil {
			_ = resp.Body.Close()
			return nil, rlErr
		}
		if resp.StatusCode != http.StatusOK {
			_ = resp.Body.Close()
			return nil, fmt.Errorf("listing releases: unexpected status %d", resp.StatusCode)
		}

		var raw []githubRelease
		decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxJSONResponseBytes)).Decode(&raw)
		_ = resp.Body.Close()
		if decodeErr != nil {
			return nil, fmt.Errorf("listing releases: decoding response: %w", decodeErr)
		}
		for _, gr := range raw {
			if !gr.Draft && !gr.Prerelease {
				all = append(all, Release(gr))
			}
		}
		pageURL = parseLinkHeader(resp.Header.Get("Link"))
	}

	slices.SortStableFunc(all, func(a, b Release) int {
		return semver.Compare(b.TagName, a.TagName)
	})
	return all, nil
}

// ArchiveURL returns the zip archive URL for tag.
func (c *Client) ArchiveURL(tag string) string {
	return fmt.Sprintf("%s/%s/%s/archive/refs/tags/%s.zip", c.archiveBaseURL, c.owner, c.repo, url.PathEscape(tag))
}

// Download saves the archive for tag into a temporary file in dir and
// returns its path. Progress is drawn on out when it is a terminal and the
// server declares a content length.
func (c *Client) Download(ctx context.Context, tag, dir string, out io.Writer) (_ string, err error) {
	archiveURL := c.ArchiveURL(tag)
	resp, err := c.doRequest(ctx, archiveURL, false)
	if err != nil {
		return "", fmt.Errorf("downloading %s: %w", redactURL(archiveURL), err)
	}
	defer func() { _ = resp.Body.Close() }() // read-only response body

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("downloading %s: unexpected status %d", redactURL(archiveURL), resp.StatusCode)
	}

	tmp, err := os.CreateTemp(dir, "kohya-archive-*.zip")
	if err != nil {
		return "", fmt.Errorf("creating temp file: %w", err)
	}
	defer func() {
		if closeErr := tmp.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	total := resp.ContentLength
	title := "Downloading " + tag
	if total > 0 {
		title += " (" + humanize.Bytes(uint64(total)) + ")"
	}
	bar := progress.New(out, title, int(total))
	written, err := io.Copy(tmp, io.TeeReader(resp.Body, progress.Writer(bar)))
	bar.Done()
	if err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("writing to temp file: %w", err)
	}
	if total > 0 && written != total {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("downloading %s: got %d of %d bytes", redactURL(archiveURL), written, total)
	}

	slog.Info("downloaded release archive", "tag", tag, "size", humanize.Bytes(uint64(written)))
	return tmp.Name(), nil
}

// doRequest executes a GET with GitHub headers. API requests carry the
// token; archive downloads carry basic credentials when set.
func (c *Client) doRequest(ctx context.Context, reqURL string, api bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	if api {
		req.Header.Set("Accept", "application/vnd.github+json")
		req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	}

	switch {
	case c.token != "" && c.isTrustedHost(req.URL):
		req.Header.Set("Authorization", "Bearer "+c.token)
	case c.username != "" && c.isTrustedHost(req.URL):
		req.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("executing request: %w", err)
	}
	return resp, nil
}

// isTrustedHost limits credentials to the configured API and archive hosts.
func (c *Client) isTrustedHost(reqURL *url.URL) bool {
	for _, base := range []string{c.baseURL, c.archiveBaseURL} {
		if u, err := url.Parse(base); err == nil && strings.EqualFold(u.Host, reqURL.Host) {
			return true
		}
	}
	return false
}

// checkRateLimit returns a RateLimitError when the remaining quota is zero.
func checkRateLimit(resp *http.Response) error {
	remaining := resp.Header.Get("X-RateLimit-Remaining")
	if remaining == "" {
		return nil
	}
	rem, err := strconv.Atoi(remaining)
	if err != nil || rem > 0 {
		return nil //nolint:nilerr // Non-numeric header is non-fatal.
	}
	limit, _ := strconv.Atoi(resp.Header.Get("X-RateLimit-Limit"))                 //nolint:errcheck // Best-effort header parsing.
	resetUnix, _ := strconv.ParseInt(resp.Header.Get("X-RateLimit-Reset"), 10, 64) //nolint:errcheck // Best-effort header parsing.
	return &RateLimitError{Limit: limit, ResetAt: time.Unix(resetUnix, 0)}
}

// parseLinkHeader extracts the "next" page URL from a Link header.
func parseLinkHeader(header string) string {
	for part := range strings.SplitSeq(header, ",") {
		part = strings.TrimSpace(part)
		if !strings.Contains(part, `rel="next"`) {
			continue
		}
		start := strings.Index(part, "<")
		end := strings.Index(part, ">")
		if start >= 0 && end > start {
			return part[start+1 : end]
		}
	}
	return ""
}

// redactURL strips credentials, query and fragment for logs and errors.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "<invalid-url>"
	}
	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}
