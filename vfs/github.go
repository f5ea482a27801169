package vfs

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"
)

const (
	defaultGitHubAPIBaseURL = "https://api.github.com"
	defaultGitHubTimeout    = 30 * time.Second
)

// GitHubConfig configures the hosted-repository backend.
type GitHubConfig struct {
	// Owner and Repo identify the repository served by this backend
	Owner string
	Repo  string

	// Ref is the branch written to and read from. Empty uses the
	// repository default branch.
	Ref string

	// Token is the API token used for all requests
	Token string

	// APIBaseURL overrides the GitHub API endpoint (GitHub Enterprise)
	APIBaseURL string

	// HTTPClient allows injecting a custom client. Defaults to a client
	// with a 30 second timeout.
	HTTPClient *http.Client
}

// GitHubBackend serves files from a hosted GitHub repository through the
// contents API. Paths are repository-relative; the repository itself is
// the jail, so no local path resolution applies beyond normalization.
type GitHubBackend struct {
	owner      string
	repo       string
	ref        string
	token      string
	apiBaseURL string
	httpClient *http.Client
}

// Compile-time interface check
var _ Backend = (*GitHubBackend)(nil)

// NewGitHubBackend creates a hosted-repository backend
func NewGitHubBackend(cfg *GitHubConfig) (*GitHubBackend, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil: %w", ErrInvalidInput)
	}
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("owner and repo are required: %w", ErrInvalidInput)
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("token is required: %w", ErrInvalidInput)
	}

	baseURL := cfg.APIBaseURL
	if baseURL == "" {
		baseURL = defaultGitHubAPIBaseURL
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultGitHubTimeout}
	}

	return &GitHubBackend{
		owner:      cfg.Owner,
		repo:       cfg.Repo,
		ref:        cfg.Ref,
		token:      cfg.Token,
		apiBaseURL: strings.TrimSuffix(baseURL, "/"),
		httpClient: httpClient,
	}, nil
}

// Name returns the backend name used for selection
func (g *GitHubBackend) Name() string { return "github" }

// Available reports whether the repository can be reached
func (g *GitHubBackend) Available(ctx context.Context) bool {
	req, err := g.newRequest(ctx, http.MethodGet,
		fmt.Sprintf("%s/repos/%s/%s", g.apiBaseURL, g.owner, g.repo), nil)
	if err != nil {
		return false
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode == http.StatusOK
}

// contentEntry is the contents API representation of a file or directory
type contentEntry struct {
	Name    string `json:"name"`
	Path    string `json:"path"`
	SHA     string `json:"sha"`
	Size    int64  `json:"size"`
	Type    string `json:"type"` // "file" or "dir"
	Content string `json:"content,omitempty"`
}

// List lists the entries of dir
func (g *GitHubBackend) List(ctx context.Context, dir string) ([]FileInfo, error) {
	body, err := g.getContents(ctx, dir)
	if err != nil {
		return nil, err
	}

	var entries []contentEntry
	if err := json.Unmarshal(body, &entries); err != nil {
		// A single object means dir names a file, not a directory
		var single contentEntry
		if err := json.Unmarshal(body, &single); err == nil {
			return nil, fmt.Errorf("path %q is not a directory: %w", dir, ErrInvalidInput)
		}
		return nil, fmt.Errorf("failed to parse contents response: %w", err)
	}

	infos := make([]FileInfo, 0, len(entries))
	for _, entry := range entries {
		infos = append(infos, FileInfo{
			Name:  entry.Name,
			Path:  entry.Path,
			Size:  entry.Size,
			IsDir: entry.Type == "dir",
		})
	}
	return infos, nil
}

// ReadFile reads the contents of filePath
func (g *GitHubBackend) ReadFile(ctx context.Context, filePath string) ([]byte, error) {
	body, err := g.getContents(ctx, filePath)
	if err != nil {
		return nil, err
	}

	var entry contentEntry
	if err := json.Unmarshal(body, &entry); err != nil {
		return nil, fmt.Errorf("path %q is not a file: %w", filePath, ErrInvalidInput)
	}
	if entry.Type != "file" {
		return nil, fmt.Errorf("path %q is not a file: %w", filePath, ErrInvalidInput)
	}

	data, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(entry.Content, "\n", ""))
	if err != nil {
		return nil, fmt.Errorf("failed to decode file content: %w", err)
	}
	return data, nil
}

// WriteFile creates or updates filePath. Updates require the current blob
// SHA, which is fetched first; the write itself is a single PUT.
func (g *GitHubBackend) WriteFile(ctx context.Context, filePath string, data []byte) error {
	payload := map[string]any{
		"message": fmt.Sprintf("Update %s", path.Base(filePath)),
		"content": base64.StdEncoding.EncodeToString(data),
	}
	if g.ref != "" {
		payload["branch"] = g.ref
	}
	if sha, err := g.blobSHA(ctx, filePath); err == nil {
		payload["sha"] = sha
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal write payload: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodPut, g.contentsURL(filePath), bytes.NewReader(body))
	if err != nil {
		return err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("write request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return g.statusError("write", filePath, resp.StatusCode)
	}
	return nil
}

// DeletePath deletes a single file. The contents API cannot delete
// directories in one call.
func (g *GitHubBackend) DeletePath(ctx context.Context, target string) error {
	sha, err := g.blobSHA(ctx, target)
	if err != nil {
		return err
	}

	payload := map[string]any{
		"message": fmt.Sprintf("Delete %s", path.Base(target)),
		"sha":     sha,
	}
	if g.ref != "" {
		payload["branch"] = g.ref
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal delete payload: %w", err)
	}

	req, err := g.newRequest(ctx, http.MethodDelete, g.contentsURL(target), bytes.NewReader(body))
	if err != nil {
		return err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("delete request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return g.statusError("delete", target, resp.StatusCode)
	}
	return nil
}

// Stat returns file metadata for target
func (g *GitHubBackend) Stat(ctx context.Context, target string) (*FileInfo, error) {
	body, err := g.getContents(ctx, target)
	if err != nil {
		return nil, err
	}

	var entry contentEntry
	if err := json.Unmarshal(body, &entry); err == nil && entry.Type != "" {
		return &FileInfo{
			Name:  entry.Name,
			Path:  entry.Path,
			Size:  entry.Size,
			IsDir: entry.Type == "dir",
		}, nil
	}

	// An array response means target is a directory
	var entries []contentEntry
	if err := json.Unmarshal(body, &entries); err == nil {
		return &FileInfo{
			Name:  path.Base(target),
			Path:  normalizeSearchRoot(target),
			IsDir: true,
		}, nil
	}

	return nil, fmt.Errorf("failed to parse contents response for %q", target)
}

// getContents fetches the raw contents API response for a path
func (g *GitHubBackend) getContents(ctx context.Context, target string) ([]byte, error) {
	req, err := g.newRequest(ctx, http.MethodGet, g.contentsURL(target), nil)
	if err != nil {
		return nil, err
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("contents request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, g.statusError("read", target, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read contents response: %w", err)
	}
	return body, nil
}

// blobSHA returns the blob SHA of an existing file
func (g *GitHubBackend) blobSHA(ctx context.Context, target string) (string, error) {
	body, err := g.getContents(ctx, target)
	if err != nil {
		return "", err
	}

	var entry contentEntry
	if err := json.Unmarshal(body, &entry); err != nil || entry.SHA == "" {
		return "", fmt.Errorf("path %q has no blob SHA: %w", target, ErrInvalidInput)
	}
	return entry.SHA, nil
}

func (g *GitHubBackend) contentsURL(target string) string {
	target = normalizeSearchRoot(target)
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.apiBaseURL, g.owner, g.repo, target)
	if g.ref != "" {
		u += "?ref=" + url.QueryEscape(g.ref)
	}
	return u
}

func (g *GitHubBackend) newRequest(ctx context.Context, method, rawURL string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+g.token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

func (g *GitHubBackend) statusError(operation, target string, statusCode int) error {
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("path %q: %w", target, ErrNotFound)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%s %q failed with status %d: %w", operation, target, statusCode, ErrBackendUnavailable)
	default:
		return fmt.Errorf("%s %q failed with status %d", operation, target, statusCode)
	}
}
