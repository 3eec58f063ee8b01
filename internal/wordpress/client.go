// Package wordpress talks to the WordPress REST API.
package wordpress

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/starford/interlink/internal/apperr"
)

const maxBodyBytes = 16 << 20

// BodyField selects which rendition of a post's content is edited.
type BodyField string

const (
	// BodyRaw is the stored content, available with context=edit.
	BodyRaw BodyField = "raw"
	// BodyRendered is the filtered HTML the site serves.
	BodyRendered BodyField = "rendered"
)

// Config configures a Client.
type Config struct {
	BaseURL   string
	Username  string
	Password  string
	Timeout   time.Duration
	Retries   int
	RetryWait time.Duration
	UserAgent string
	BodyField BodyField
}

// Post is the subset of a WordPress post the tool reads.
type Post struct {
	ID      int64   `json:"id"`
	Link    string  `json:"link"`
	Title   Text    `json:"title"`
	Content Content `json:"content"`
}

// Text is a rendered-only field such as a post title.
type Text struct {
	Rendered string `json:"rendered"`
}

// Content carries both renditions of a post body.
type Content struct {
	Raw      string `json:"raw"`
	Rendered string `json:"rendered"`
}

// Client is a WordPress REST client with bounded retries.
type Client struct {
	base      string
	username  string
	password  string
	userAgent string
	bodyField BodyField
	retries   int
	retryWait time.Duration
	http      *http.Client
	logger    *slog.Logger
}

// New creates a client.
func New(cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.RetryWait <= 0 {
		cfg.RetryWait = 500 * time.Millisecond
	}
	if cfg.BodyField == "" {
		cfg.BodyField = BodyRaw
	}
	return &Client{
		base:      strings.TrimRight(cfg.BaseURL, "/"),
		username:  cfg.Username,
		password:  cfg.Password,
		userAgent: cfg.UserAgent,
		bodyField: cfg.BodyField,
		retries:   max(cfg.Retries, 0),
		retryWait: cfg.RetryWait,
		http:      &http.Client{Timeout: cfg.Timeout},
		logger:    logger,
	}
}

// FetchBody returns the content of post id. A post with no content yields
// "" and no error.
func (c *Client) FetchBody(ctx context.Context, id string) (string, error) {
	u := c.postURL(id)
	if c.bodyField == BodyRaw {
		u += "?context=edit"
	}
	status, body, err := c.do(ctx, http.MethodGet, u, nil, true)
	if err != nil {
		return "", err
	}
	if status == http.StatusNotFound {
		return "", fmt.Errorf("wordpress: post %s: %w", id, apperr.ErrNotFound)
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("wordpress: fetch post %s: status %d", id, status)
	}
	var p Post
	if err := json.Unmarshal(body, &p); err != nil {
		return "", fmt.Errorf("wordpress: decode post %s: %w", id, err)
	}
	if c.bodyField == BodyRaw {
		return p.Content.Raw, nil
	}
	return p.Content.Rendered, nil
}

// PushBody replaces the content of post id. The returned status code is
// the server's; err is set only when no response was obtained.
func (c *Client) PushBody(ctx context.Context, id, text string) (int, error) {
	payload, err := json.Marshal(map[string]string{"content": text})
	if err != nil {
		return 0, fmt.Errorf("wordpress: encode post %s: %w", id, err)
	}
	status, _, err := c.do(ctx, http.MethodPost, c.postURL(id), payload, true)
	return status, err
}

// ListPosts fetches one page of posts and returns it with the status code.
func (c *Client) ListPosts(ctx context.Context, page, perPage int) ([]Post, int, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("per_page", strconv.Itoa(perPage))
	status, body, err := c.do(ctx, http.MethodGet, c.base+"/wp-json/wp/v2/posts?"+q.Encode(), nil, false)
	if err != nil || status != http.StatusOK {
		return nil, status, err
	}
	var posts []Post
	if err := json.Unmarshal(body, &posts); err != nil {
		return nil, status, fmt.Errorf("wordpress: decode page %d: %w", page, err)
	}
	return posts, status, nil
}

// FetchPage downloads a public page.
func (c *Client) FetchPage(ctx context.Context, pageURL string) (string, error) {
	status, body, err := c.do(ctx, http.MethodGet, pageURL, nil, false)
	if err != nil {
		return "", err
	}
	if status != http.StatusOK {
		return "", fmt.Errorf("wordpress: fetch %s: status %d", pageURL, status)
	}
	return string(body), nil
}

func (c *Client) postURL(id string) string {
	return c.base + "/wp-json/wp/v2/posts/" + url.PathEscape(id)
}

var errServer = errors.New("server error")

// do performs one logical call. Transport errors and 5xx responses are
// retried; once retries run out the last response is returned as is.
func (c *Client) do(ctx context.Context, method, target string, payload []byte, auth bool) (int, []byte, error) {
	var (
		status int
		body   []byte
	)
	op := func() error {
		status, body = 0, nil
		var rd io.Reader
		if payload != nil {
			rd = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, target, rd)
		if err != nil {
			return backoff.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if auth && c.username != "" {
			req.SetBasicAuth(c.username, c.password)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer resp.Body.Close()
		b, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return err
		}
		status, body = resp.StatusCode, b
		if status >= 500 {
			return fmt.Errorf("%w: %d", errServer, status)
		}
		return nil
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = c.retryWait
	eb.MaxElapsedTime = 0
	eb.Reset()
	policy := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(c.retries)), ctx)

	err := backoff.RetryNotify(op, policy, func(err error, wait time.Duration) {
		c.logger.Warn("wordpress: retrying",
			slog.String("method", method),
			slog.String("url", target),
			slog.Duration("wait", wait),
			slog.String("error", err.Error()),
		)
	})
	if err != nil && errors.Is(err, errServer) {
		return status, body, nil
	}
	if err != nil {
		return status, nil, fmt.Errorf("wordpress: %s %s: %w", method, target, err)
	}
	return status, body, nil
}
