// internal/codecontext/github.go
package codecontext

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/go-github/v58/github"
	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/internal/config"
)

// GitHubProvider fetches file contents through the GitHub repository contents API.
type GitHubProvider struct {
	client *github.Client
	owner  string
	repo   string
	ref    string
	logger *zap.Logger
}

// NewGitHubProvider builds a provider for owner/repo at ref. The token is
// optional for public repositories. BaseURL targets GitHub Enterprise or a
// test server.
func NewGitHubProvider(_ context.Context, cfg config.GitHubConfig, logger *zap.Logger) (*GitHubProvider, error) {
	if cfg.Owner == "" || cfg.Repo == "" {
		return nil, fmt.Errorf("github context source requires owner and repo")
	}

	client := github.NewClient(nil)
	if cfg.Token != "" {
		client = client.WithAuthToken(cfg.Token)
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		u, err := url.Parse(base)
		if err != nil {
			return nil, fmt.Errorf("invalid github base_url: %w", err)
		}
		client.BaseURL = u
	}

	return &GitHubProvider{
		client: client,
		owner:  cfg.Owner,
		repo:   cfg.Repo,
		ref:    cfg.Ref,
		logger: logger.Named("github_context"),
	}, nil
}

func (g *GitHubProvider) Snippet(ctx context.Context, path string) (string, error) {
	opts := &github.RepositoryContentGetOptions{Ref: g.ref}
	file, dir, _, err := g.client.Repositories.GetContents(ctx, g.owner, g.repo, path, opts)
	if err != nil {
		var ghErr *github.ErrorResponse
		if errors.As(err, &ghErr) && ghErr.Response != nil && ghErr.Response.StatusCode == http.StatusNotFound {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("github contents %s/%s:%s: %w", g.owner, g.repo, path, err)
	}
	if file == nil {
		g.logger.Debug("Path is a directory, not a file", zap.String("path", path), zap.Int("entries", len(dir)))
		return "", ErrNotFound
	}
	return file.GetContent()
}
