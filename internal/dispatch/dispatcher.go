package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ValidationError reports a payload that does not satisfy its action. It is
// raised before any git command runs.
type ValidationError struct {
	Action Action
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e == nil {
		return ""
	}
	if e.Field == "" {
		return fmt.Sprintf("%s: %s", e.Action, e.Reason)
	}
	return fmt.Sprintf("%s: %s %s", e.Action, e.Field, e.Reason)
}

// IsValidationError reports whether err is or wraps a *ValidationError.
func IsValidationError(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// Repository is the set of version-control operations the dispatcher drives.
type Repository interface {
	Status(ctx context.Context) string
	Push(ctx context.Context) (string, error)
	Pull(ctx context.Context) (string, error)
	Fetch(ctx context.Context) (string, error)
	Stash(ctx context.Context) (string, error)
	StageAll(ctx context.Context) (string, error)
	Commit(ctx context.Context, message string) (string, error)
	SetRemote(ctx context.Context, url string) (string, error)
	CreateBranch(ctx context.Context, name string) (string, error)
	DeleteBranch(ctx context.Context, name string) (string, error)
	SwitchBranch(ctx context.Context, name string) (string, error)
	MergeBranch(ctx context.Context, name string) (string, error)
}

// Refresher is notified after every dispatched action so the caller's view of
// the repository stays current, including after failures.
type Refresher interface {
	Refresh(ctx context.Context)
}

// RefreshFunc adapts a function to the Refresher interface.
type RefreshFunc func(ctx context.Context)

func (f RefreshFunc) Refresh(ctx context.Context) { f(ctx) }

// Result is the uniform outcome of a dispatched action.
type Result struct {
	Action       Action `json:"action"`
	Succeeded    bool   `json:"succeeded"`
	Output       string `json:"output"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	// Err is the underlying error for callers that need errors.Is/As.
	Err error `json:"-"`
}

// Dispatcher validates and executes git actions against a Repository.
type Dispatcher struct {
	repo    Repository
	refresh Refresher
	log     *slog.Logger
}

// New returns a Dispatcher. refresher may be nil.
func New(repo Repository, refresher Refresher, logger *slog.Logger) *Dispatcher {
	return &Dispatcher{repo: repo, refresh: refresher, log: logger}
}

// Dispatch validates payload for action and executes it. It never panics or
// returns an error; every outcome is reported through Result.
func (d *Dispatcher) Dispatch(ctx context.Context, action Action, payload Payload) Result {
	req, err := NewRequest(action, payload)
	if err != nil {
		defer d.afterAction(ctx)
		return d.report(action, "", err, 0)
	}
	return d.Execute(ctx, req)
}

// Reject reports an action that was refused before it could be dispatched,
// such as an unknown action name or a malformed payload. The refresher runs as
// it does for any other failed action.
func (d *Dispatcher) Reject(ctx context.Context, action Action, err error) Result {
	defer d.afterAction(ctx)
	if !IsValidationError(err) {
		err = &ValidationError{Action: action, Reason: err.Error()}
	}
	return d.report(action, "", err, 0)
}

// DispatchAsync runs Dispatch on its own goroutine. The returned channel
// receives exactly one Result and is then closed.
func (d *Dispatcher) DispatchAsync(ctx context.Context, action Action, payload Payload) <-chan Result {
	ch := make(chan Result, 1)
	go func() {
		defer close(ch)
		ch <- d.Dispatch(ctx, action, payload)
	}()
	return ch
}

// Execute runs an already validated request.
func (d *Dispatcher) Execute(ctx context.Context, req Request) Result {
	defer d.afterAction(ctx)

	start := time.Now()
	out, err := d.run(ctx, req)
	return d.report(req.Action(), out, err, time.Since(start))
}

func (d *Dispatcher) run(ctx context.Context, req Request) (string, error) {
	switch r := req.(type) {
	case Status:
		return d.repo.Status(ctx), nil
	case Push:
		return d.repo.Push(ctx)
	case Pull:
		return d.repo.Pull(ctx)
	case Fetch:
		return d.repo.Fetch(ctx)
	case Stash:
		return d.repo.Stash(ctx)
	case Commit:
		return d.repo.Commit(ctx, r.Message)
	case FastPush:
		return d.fastPush(ctx)
	case SetRemote:
		return d.repo.SetRemote(ctx, r.URL)
	case CreateBranch:
		return d.repo.CreateBranch(ctx, r.Name)
	case DeleteBranch:
		return d.repo.DeleteBranch(ctx, r.Name)
	case SwitchBranch:
		return d.repo.SwitchBranch(ctx, r.Name)
	case MergeBranch:
		return d.repo.MergeBranch(ctx, r.Name)
	default:
		return "", &ValidationError{Action: req.Action(), Reason: fmt.Sprintf("unsupported request %T", req)}
	}
}

// fastPush stages everything, commits with FastPushMessage and pushes. The
// first failing step aborts the sequence.
func (d *Dispatcher) fastPush(ctx context.Context) (string, error) {
	if _, err := d.repo.StageAll(ctx); err != nil {
		return "", fmt.Errorf("stage changes: %w", err)
	}
	if _, err := d.repo.Commit(ctx, FastPushMessage); err != nil {
		return "", fmt.Errorf("commit: %w", err)
	}
	out, err := d.repo.Push(ctx)
	if err != nil {
		return "", fmt.Errorf("push: %w", err)
	}
	return out, nil
}

func (d *Dispatcher) report(action Action, out string, err error, elapsed time.Duration) Result {
	if err != nil {
		if d.log != nil {
			d.log.Warn("git action failed", "action", action, "duration", elapsed, "error", err)
		}
		return Result{
			Action:       action,
			ErrorMessage: fmt.Sprintf("%s failed: %v", action, err),
			Err:          err,
		}
	}

	if d.log != nil {
		d.log.Info("git action succeeded", "action", action, "duration", elapsed)
	}
	return Result{Action: action, Succeeded: true, Output: out}
}

func (d *Dispatcher) afterAction(ctx context.Context) {
	if d.refresh == nil {
		return
	}
	d.refresh.Refresh(ctx)
}
