package git

import "context"

// Runner executes a single external git command with dir as its working
// directory. Implementations return trimmed standard output on success and an
// *ExecutionError when the command exits non-zero or cannot be spawned.
type Runner interface {
	Run(ctx context.Context, dir string, args ...string) (string, error)
}
