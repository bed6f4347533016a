// internal/codecontext/git.go
package codecontext

import (
	"context"
	"errors"
	"fmt"
	"path"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

// GitProvider reads files as they exist at one revision of a local repository,
// without touching the worktree.
type GitProvider struct {
	commit   *object.Commit
	revision string
}

// NewGitProvider opens the repository at repoPath and resolves revision
// (branch, tag, or hash; "HEAD" when empty).
func NewGitProvider(repoPath, revision string) (*GitProvider, error) {
	if revision == "" {
		revision = "HEAD"
	}
	repo, err := git.PlainOpen(repoPath)
	if err != nil {
		return nil, fmt.Errorf("open git repository %s: %w", repoPath, err)
	}
	hash, err := repo.ResolveRevision(plumbing.Revision(revision))
	if err != nil {
		return nil, fmt.Errorf("resolve revision %s: %w", revision, err)
	}
	commit, err := repo.CommitObject(*hash)
	if err != nil {
		return nil, fmt.Errorf("load commit %s: %w", hash, err)
	}
	return &GitProvider{commit: commit, revision: revision}, nil
}

func (g *GitProvider) Snippet(_ context.Context, p string) (string, error) {
	file, err := g.commit.File(path.Clean(p))
	if err != nil {
		if errors.Is(err, object.ErrFileNotFound) {
			return "", ErrNotFound
		}
		return "", fmt.Errorf("read %s at %s: %w", p, g.revision, err)
	}
	return file.Contents()
}
