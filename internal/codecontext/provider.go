// internal/codecontext/provider.go
package codecontext

import (
	"context"
	"errors"
	"fmt"
	"unicode/utf8"

	"go.uber.org/zap"

	"github.com/xkilldash9x/sast-agent/api/schemas"
	"github.com/xkilldash9x/sast-agent/internal/config"
)

// ErrNotFound is returned by providers that have no source text for a path.
var ErrNotFound = errors.New("code context not found")

// Provider looks up the source text for a file path named in a finding.
type Provider interface {
	Snippet(ctx context.Context, path string) (string, error)
}

// New builds the provider selected by cfg.Source.
func New(ctx context.Context, cfg config.ContextConfig, logger *zap.Logger) (Provider, error) {
	switch cfg.Source {
	case config.ContextSourceNone, "":
		return MapProvider{}, nil
	case config.ContextSourceFile:
		return LoadMappingFile(cfg.File)
	case config.ContextSourceDir:
		return NewDirProvider(cfg.Dir)
	case config.ContextSourceGit:
		return NewGitProvider(cfg.Git.Path, cfg.Git.Revision)
	case config.ContextSourceGitHub:
		return NewGitHubProvider(ctx, cfg.GitHub, logger)
	default:
		return nil, fmt.Errorf("unsupported context source %q", cfg.Source)
	}
}

// Resolve looks up every distinct file path in findings and returns the
// resulting read-only map. Missing files get no entry. Provider failures other
// than ErrNotFound are logged and treated the same way. Snippets longer than
// maxBytes (when positive) are cut at a rune boundary.
func Resolve(ctx context.Context, p Provider, findings []schemas.Finding, maxBytes int, logger *zap.Logger) (schemas.CodeContext, error) {
	logger = logger.Named("codecontext")
	out := make(schemas.CodeContext, len(findings))
	seen := make(map[string]struct{}, len(findings))

	for _, f := range findings {
		if _, dup := seen[f.FilePath]; dup || f.FilePath == "" {
			continue
		}
		seen[f.FilePath] = struct{}{}

		if err := ctx.Err(); err != nil {
			return nil, err
		}

		snippet, err := p.Snippet(ctx, f.FilePath)
		switch {
		case errors.Is(err, ErrNotFound):
			logger.Debug("No code context for file", zap.String("file", f.FilePath))
			continue
		case err != nil:
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			logger.Warn("Code context lookup failed; using an empty snippet",
				zap.String("file", f.FilePath), zap.Error(err))
			continue
		}

		if maxBytes > 0 && len(snippet) > maxBytes {
			logger.Info("Truncating oversize code context",
				zap.String("file", f.FilePath),
				zap.Int("bytes", len(snippet)),
				zap.Int("max_bytes", maxBytes))
			snippet = truncateUTF8(snippet, maxBytes)
		}
		out[f.FilePath] = snippet
	}
	return out, nil
}

func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
