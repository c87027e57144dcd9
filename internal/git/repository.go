package git

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/rancher/gitpanel/internal/refname"
)

const (
	// RemoteName is the remote assumed for synchronization.
	RemoteName = "origin"

	NoRepositoryName = "No Repository"
	StatusClean      = "Clean"
	StatusError      = "Error retrieving status"
	UnknownBranch    = "Unknown"
	NoRemote         = "No remote"
)

// ErrNoRepository indicates that no working directory is resolved.
var ErrNoRepository = errors.New("no repository open")

// Repository exposes the version-control operations available to the
// dispatcher. It owns no state beyond the resolved working directory.
type Repository struct {
	dir    string
	runner Runner
	log    *slog.Logger
}

// NewRepository returns a Repository rooted at dir. An empty dir is valid and
// means no repository is open.
func NewRepository(dir string, runner Runner, logger *slog.Logger) *Repository {
	return &Repository{dir: dir, runner: runner, log: logger}
}

// WorkDir returns the resolved working directory, or "" when none is open.
func (r *Repository) WorkDir() string {
	return r.dir
}

func (r *Repository) run(ctx context.Context, args ...string) (string, error) {
	if r.dir == "" {
		return "", ErrNoRepository
	}
	return r.runner.Run(ctx, r.dir, args...)
}

// RepositoryName derives a display name from the origin URL, falling back to
// the last segment of the working directory and finally to NoRepositoryName.
func (r *Repository) RepositoryName(ctx context.Context) string {
	if r.dir == "" {
		return NoRepositoryName
	}

	if remote, err := r.run(ctx, "remote", "get-url", RemoteName); err == nil {
		if name, ok := RepoNameFromURL(remote); ok {
			return name
		}
	}

	base := filepath.Base(filepath.Clean(r.dir))
	if base == "." || base == string(filepath.Separator) || base == "" {
		return NoRepositoryName
	}
	return base
}

// Status returns the short status listing, StatusClean when there is nothing
// to report, or StatusError when status could not be retrieved.
func (r *Repository) Status(ctx context.Context) string {
	out, err := r.run(ctx, "status", "--short")
	if err != nil {
		if r.log != nil && !errors.Is(err, ErrNoRepository) {
			r.log.Debug("git status failed", "error", err)
		}
		return StatusError
	}
	if out == "" {
		return StatusClean
	}
	return out
}

// CurrentBranch returns the checked out branch or UnknownBranch.
func (r *Repository) CurrentBranch(ctx context.Context) string {
	out, err := r.run(ctx, "branch", "--show-current")
	if err != nil || out == "" {
		return UnknownBranch
	}
	return out
}

// RemoteURL returns the origin URL with any embedded credential redacted, or
// NoRemote.
func (r *Repository) RemoteURL(ctx context.Context) string {
	out, err := r.run(ctx, "remote", "get-url", RemoteName)
	if err != nil || out == "" {
		return NoRemote
	}
	return redactCredentials(out)
}

func (r *Repository) Push(ctx context.Context) (string, error) {
	return r.run(ctx, "push")
}

func (r *Repository) Pull(ctx context.Context) (string, error) {
	return r.run(ctx, "pull")
}

func (r *Repository) Fetch(ctx context.Context) (string, error) {
	return r.run(ctx, "fetch")
}

func (r *Repository) Stash(ctx context.Context) (string, error) {
	return r.run(ctx, "stash")
}

// StageAll stages every change in the working tree, including deletions.
func (r *Repository) StageAll(ctx context.Context) (string, error) {
	return r.run(ctx, "add", "-A")
}

// Commit records staged changes. The message is passed as a single argument
// so quoting inside it is irrelevant.
func (r *Repository) Commit(ctx context.Context, message string) (string, error) {
	if strings.TrimSpace(message) == "" {
		return "", fmt.Errorf("commit message is required")
	}
	return r.run(ctx, "commit", "-m", message)
}

// SetRemote points origin at url, adding the remote when it does not exist.
func (r *Repository) SetRemote(ctx context.Context, url string) (string, error) {
	if err := ValidateRemoteURL(url); err != nil {
		return "", err
	}
	if _, err := r.run(ctx, "remote", "get-url", RemoteName); err == nil {
		return r.run(ctx, "remote", "set-url", RemoteName, url)
	} else if errors.Is(err, ErrNoRepository) {
		return "", err
	}
	return r.run(ctx, "remote", "add", RemoteName, url)
}

// TokenUpdate reports the outcome of UpdateRemoteWithToken.
type TokenUpdate struct {
	Updated bool
	Reason  string
}

// UpdateRemoteWithToken embeds token into an HTTPS origin URL. Non-HTTPS
// remotes are left untouched and reported as skipped.
func (r *Repository) UpdateRemoteWithToken(ctx context.Context, token string) (TokenUpdate, error) {
	if strings.TrimSpace(token) == "" {
		return TokenUpdate{}, fmt.Errorf("token is required")
	}
	current, err := r.run(ctx, "remote", "get-url", RemoteName)
	if err != nil {
		return TokenUpdate{}, fmt.Errorf("read %s url: %w", RemoteName, err)
	}

	updated, ok := WithToken(current, token)
	if !ok {
		if r.log != nil {
			r.log.Info("skipping token injection for non-https remote", "remote", RemoteName)
		}
		return TokenUpdate{Reason: "remote is not https"}, nil
	}

	if _, err := r.run(ctx, "remote", "set-url", RemoteName, updated); err != nil {
		return TokenUpdate{}, fmt.Errorf("set %s url: %w", RemoteName, err)
	}
	return TokenUpdate{Updated: true}, nil
}

func (r *Repository) CreateBranch(ctx context.Context, name string) (string, error) {
	if err := refname.Validate(name); err != nil {
		return "", fmt.Errorf("create branch %q: %w", name, err)
	}
	return r.run(ctx, "checkout", "-b", name)
}

// DeleteBranch force-deletes a local branch. Unmerged commits are not
// protected.
func (r *Repository) DeleteBranch(ctx context.Context, name string) (string, error) {
	if err := refname.Validate(name); err != nil {
		return "", fmt.Errorf("delete branch %q: %w", name, err)
	}
	return r.run(ctx, "branch", "-D", name)
}

func (r *Repository) SwitchBranch(ctx context.Context, name string) (string, error) {
	if err := refname.Validate(name); err != nil {
		return "", fmt.Errorf("switch branch %q: %w", name, err)
	}
	return r.run(ctx, "checkout", name)
}

func (r *Repository) MergeBranch(ctx context.Context, name string) (string, error) {
	if err := refname.Validate(name); err != nil {
		return "", fmt.Errorf("merge branch %q: %w", name, err)
	}
	return r.run(ctx, "merge", name)
}

// ValidateRemoteURL rejects URLs that are empty or could be read as options.
func ValidateRemoteURL(url string) error {
	if strings.TrimSpace(url) == "" {
		return fmt.Errorf("remote url is required")
	}
	if strings.HasPrefix(url, "-") {
		return fmt.Errorf("remote url cannot start with '-'")
	}
	if strings.ContainsAny(url, " \t\r\n") {
		return fmt.Errorf("remote url cannot contain whitespace")
	}
	return nil
}
