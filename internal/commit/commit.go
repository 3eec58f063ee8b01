// Package commit publishes data snapshots to a remote Git repository.
package commit

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Committer stores content at path in a remote repository.
type Committer interface {
	Commit(ctx context.Context, path string, content []byte, message string) error
}

// Nop discards commits. It is used when committing is disabled.
type Nop struct{}

// Commit implements Committer.
func (Nop) Commit(context.Context, string, []byte, string) error { return nil }

// GitHubConfig configures the contents API client.
type GitHubConfig struct {
	APIURL  string
	Owner   string
	Repo    string
	Branch  string
	Token   string
	Timeout time.Duration
}

// GitHub commits through the repository contents API: the current blob
// sha is looked up, then the file is replaced with one PUT.
type GitHub struct {
	cfg    GitHubConfig
	http   *http.Client
	logger *slog.Logger
}

// NewGitHub creates a contents API committer.
func NewGitHub(cfg GitHubConfig, logger *slog.Logger) *GitHub {
	if cfg.APIURL == "" {
		cfg.APIURL = "https://api.github.com"
	}
	cfg.APIURL = strings.TrimRight(cfg.APIURL, "/")
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GitHub{cfg: cfg, http: &http.Client{Timeout: cfg.Timeout}, logger: logger}
}

type contentsResponse struct {
	SHA string `json:"sha"`
}

type putRequest struct {
	Message string `json:"message"`
	Content string `json:"content"`
	SHA     string `json:"sha,omitempty"`
	Branch  string `json:"branch,omitempty"`
}

// Commit implements Committer.
func (g *GitHub) Commit(ctx context.Context, path string, content []byte, message string) error {
	target := g.contentsURL(path)

	sha, err := g.currentSHA(ctx, target)
	if err != nil {
		return err
	}

	body, err := json.Marshal(putRequest{
		Message: message,
		Content: base64.StdEncoding.EncodeToString(content),
		SHA:     sha,
		Branch:  g.cfg.Branch,
	})
	if err != nil {
		return fmt.Errorf("commit: encode %s: %w", path, err)
	}
	req, err := g.request(ctx, http.MethodPut, target, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := g.http.Do(req)
	if err != nil {
		return fmt.Errorf("commit: put %s: %w", path, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("commit: put %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	g.logger.Info("commit: pushed", slog.String("path", path), slog.Int("status", resp.StatusCode))
	return nil
}

func (g *GitHub) currentSHA(ctx context.Context, target string) (string, error) {
	u := target
	if g.cfg.Branch != "" {
		u += "?ref=" + url.QueryEscape(g.cfg.Branch)
	}
	req, err := g.request(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", err
	}
	resp, err := g.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("commit: lookup: %w", err)
	}
	defer resp.Body.Close()
	switch resp.StatusCode {
	case http.StatusNotFound:
		return "", nil
	case http.StatusOK:
	default:
		return "", fmt.Errorf("commit: lookup %s: status %d", target, resp.StatusCode)
	}
	var cr contentsResponse
	if err := json.NewDecoder(resp.Body).Decode(&cr); err != nil {
		return "", fmt.Errorf("commit: decode lookup: %w", err)
	}
	return cr.SHA, nil
}

func (g *GitHub) request(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, fmt.Errorf("commit: build request: %w", err)
	}
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+g.cfg.Token)
	return req, nil
}

func (g *GitHub) contentsURL(path string) string {
	segs := strings.Split(strings.Trim(path, "/"), "/")
	for i, s := range segs {
		segs[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/%s/contents/%s", g.cfg.APIURL, g.cfg.Owner, g.cfg.Repo, strings.Join(segs, "/"))
}
