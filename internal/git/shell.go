package git

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"
)

// waitDelay bounds how long Run waits for output pipes after git is killed.
const waitDelay = 5 * time.Second

// ShellRunner shells out to the system git binary. Arguments are always passed
// as an argument vector; no shell is involved.
type ShellRunner struct {
	// Git is the git binary to execute. Defaults to "git" when empty.
	Git string

	// NetworkTimeout bounds network oriented commands (fetch, pull, push) that
	// would otherwise inherit an unbounded context. When zero, a default of 2
	// minutes is used. Negative values disable the bound.
	NetworkTimeout time.Duration

	// Env is appended to the inherited process environment.
	Env []string
}

// NewShellRunner returns a Runner backed by system git commands.
func NewShellRunner() *ShellRunner {
	return &ShellRunner{}
}

func (r *ShellRunner) gitBinary() string {
	if r.Git == "" {
		return "git"
	}
	return r.Git
}

// Run executes git with args inside dir.
func (r *ShellRunner) Run(ctx context.Context, dir string, args ...string) (string, error) {
	if strings.TrimSpace(dir) == "" {
		return "", ErrNoRepository
	}
	if info, err := os.Stat(dir); err != nil {
		return "", &ExecutionError{Args: args, Err: err}
	} else if !info.IsDir() {
		return "", &ExecutionError{Args: args, Err: fmt.Errorf("%s is not a directory", dir)}
	}

	runCtx, cancel := r.applyNetworkTimeout(ctx, isNetworkCommand(primaryGitCommand(args)))
	defer cancel()

	return r.runOnce(runCtx, dir, args...)
}

func (r *ShellRunner) runOnce(ctx context.Context, dir string, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, r.gitBinary(), args...)
	cmd.Dir = dir
	cmd.Env = append(os.Environ(), "GIT_TERMINAL_PROMPT=0")
	cmd.Env = append(cmd.Env, r.Env...)
	killGroupOnCancel(cmd)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		return "", &ExecutionError{Args: args, Stderr: stderr.String(), Err: err}
	}

	return strings.TrimSpace(stdout.String()), nil
}

func primaryGitCommand(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			if i+1 < len(args) {
				return args[i+1]
			}
			return ""
		}
		if strings.HasPrefix(arg, "-") {
			switch arg {
			case "-C", "--git-dir", "-c":
				i++
			}
			continue
		}
		return arg
	}
	return ""
}

func isNetworkCommand(cmd string) bool {
	switch cmd {
	case "fetch", "push", "pull":
		return true
	default:
		return false
	}
}

func (r *ShellRunner) networkTimeoutValue() time.Duration {
	if r.NetworkTimeout == 0 {
		return 2 * time.Minute
	}
	return r.NetworkTimeout
}

func (r *ShellRunner) applyNetworkTimeout(ctx context.Context, network bool) (context.Context, context.CancelFunc) {
	if !network {
		return ctx, func() {}
	}
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}
	timeout := r.networkTimeoutValue()
	if timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, timeout)
}

// ExecutionError wraps failures when invoking the git binary. Its message is the
// captured standard error, or the spawn error when nothing was written.
type ExecutionError struct {
	Args   []string
	Stderr string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e == nil {
		return ""
	}
	msg := strings.TrimSpace(e.Stderr)
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	}
	if msg == "" {
		msg = "git " + primaryGitCommand(e.Args) + " failed"
	}
	return redactCredentials(msg)
}

func (e *ExecutionError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

var (
	urlCredentials = regexp.MustCompile(`(https?://)[^\s/@]+@`)
	secretParams   = regexp.MustCompile(`(?i)(token|secret|password|bearer)=[^\s&]+`)
)

func redactCredentials(s string) string {
	s = urlCredentials.ReplaceAllString(s, "${1}<redacted>@")
	return secretParams.ReplaceAllString(s, "$1=<redacted>")
}
