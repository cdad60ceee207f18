// Package publish uploads rendered reports to a Gitee repository.
package publish

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const GiteeBaseURL = "https://gitee.com/api/v5"

var (
	ErrUnauthorized = errors.New("gitee token invalid or lacks permission")
	ErrNotFound     = errors.New("gitee repository or path not found")
	ErrInvalid      = errors.New("gitee rejected the request parameters")
)

// Config holds the Gitee repository settings
type Config struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token" validate:"required_if=Enabled true"`
	Repo    string `yaml:"repo" validate:"required_if=Enabled true"` // owner/name
	Branch  string `yaml:"branch" default:"master"`
	BaseURL string `yaml:"base_url" default:"https://gitee.com/api/v5" validate:"omitempty,url"`
}

// GiteeClient writes files through the Gitee contents API
type GiteeClient struct {
	config Config
	client *http.Client
	logger zerolog.Logger
}

// NewGiteeClient creates a client. Empty Branch and BaseURL fall back to master and the public API.
func NewGiteeClient(cfg Config, logger zerolog.Logger) *GiteeClient {
	if cfg.Branch == "" {
		cfg.Branch = "master"
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = GiteeBaseURL
	}
	cfg.BaseURL = strings.TrimSuffix(cfg.BaseURL, "/")
	return &GiteeClient{
		config: cfg,
		client: &http.Client{Timeout: 60 * time.Second},
		logger: logger.With().Str("component", "gitee").Logger(),
	}
}

type contentEntry struct {
	Name string `json:"name"`
	SHA  string `json:"sha"`
}

type writeRequest struct {
	AccessToken string `json:"access_token"`
	Content     string `json:"content"`
	Message     string `json:"message"`
	Branch      string `json:"branch"`
	SHA         string `json:"sha,omitempty"`
}

// Upload creates remotePath with content, or updates it when it already exists
func (c *GiteeClient) Upload(ctx context.Context, remotePath, content, message string) error {
	remotePath = strings.TrimPrefix(remotePath, "/")
	if message == "" {
		message = "Update " + remotePath
	}

	sha, err := c.fileSHA(ctx, remotePath)
	if err != nil {
		return err
	}

	body, err := json.Marshal(writeRequest{
		AccessToken: c.config.Token,
		Content:     base64.StdEncoding.EncodeToString([]byte(content)),
		Message:     message,
		Branch:      c.config.Branch,
		SHA:         sha,
	})
	if err != nil {
		return fmt.Errorf("encoding request: %w", err)
	}

	method := http.MethodPost
	if sha != "" {
		method = http.MethodPut
	}

	req, err := http.NewRequestWithContext(ctx, method, c.contentsURL(remotePath), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("gitee %s %s: %w", method, remotePath, err)
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return fmt.Errorf("gitee %s %s: %w", method, remotePath, err)
	}

	c.logger.Info().Str("repo", c.config.Repo).Str("path", remotePath).Bool("updated", sha != "").Msg("report uploaded")
	return nil
}

// fileSHA returns the blob sha of an existing file, or "" when it does not exist
func (c *GiteeClient) fileSHA(ctx context.Context, remotePath string) (string, error) {
	params := url.Values{}
	params.Set("access_token", c.config.Token)
	params.Set("ref", c.config.Branch)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.contentsURL(remotePath)+"?"+params.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("gitee get %s: %w", remotePath, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", nil
	}

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	raw = bytes.TrimSpace(raw)

	// A missing file is reported as an empty list, a directory as a list of entries
	if len(raw) > 0 && raw[0] == '[' {
		var entries []contentEntry
		if err := json.Unmarshal(raw, &entries); err != nil {
			return "", fmt.Errorf("decoding contents: %w", err)
		}
		name := path.Base(remotePath)
		for _, e := range entries {
			if e.Name == name {
				return e.SHA, nil
			}
		}
		return "", nil
	}

	var entry contentEntry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return "", fmt.Errorf("decoding contents: %w", err)
	}
	return entry.SHA, nil
}

func (c *GiteeClient) contentsURL(remotePath string) string {
	segments := strings.Split(remotePath, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return fmt.Sprintf("%s/repos/%s/contents/%s", c.config.BaseURL, c.config.Repo, strings.Join(segments, "/"))
}

func statusError(resp *http.Response) error {
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusUnauthorized:
		return ErrUnauthorized
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusUnprocessableEntity:
		return ErrInvalid
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
}
