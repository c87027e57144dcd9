package git

import (
	"os"
	"path/filepath"
	"strings"

	gogit "github.com/go-git/go-git/v5"
)

// ResolveWorkDir determines the working directory for a workspace path. When
// path lies inside a git repository the repository root is returned; otherwise
// the path itself is used if it is an existing directory. An empty string
// means no repository is open.
func ResolveWorkDir(path string) string {
	if strings.TrimSpace(path) == "" {
		return ""
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return ""
	}

	repo, err := gogit.PlainOpenWithOptions(abs, &gogit.PlainOpenOptions{DetectDotGit: true})
	if err == nil {
		if wt, err := repo.Worktree(); err == nil {
			return wt.Filesystem.Root()
		}
	}

	info, err := os.Stat(abs)
	if err != nil || !info.IsDir() {
		return ""
	}
	return abs
}
