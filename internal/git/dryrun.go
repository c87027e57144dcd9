package git

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// DryRunRunner records git invocations without executing them. Every command
// succeeds with empty output.
type DryRunRunner struct {
	log *slog.Logger

	mu    sync.Mutex
	calls [][]string
}

// NewDryRunRunner returns a Runner that only logs and records commands.
func NewDryRunRunner(logger *slog.Logger) *DryRunRunner {
	return &DryRunRunner{log: logger}
}

func (r *DryRunRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", ErrNoRepository
	}

	r.mu.Lock()
	r.calls = append(r.calls, append([]string(nil), args...))
	r.mu.Unlock()

	if r.log != nil {
		r.log.Info("dry run: skipping git command", "dir", dir, "command", primaryGitCommand(args))
	}
	return "", nil
}

// Calls returns a copy of the recorded argument vectors in invocation order.
func (r *DryRunRunner) Calls() [][]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([][]string, len(r.calls))
	for i, c := range r.calls {
		out[i] = append([]string(nil), c...)
	}
	return out
}
