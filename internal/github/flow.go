package gh

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// FlowStatus is the lifecycle state of a device authorization attempt.
type FlowStatus string

const (
	FlowPending   FlowStatus = "pending"
	FlowSucceeded FlowStatus = "succeeded"
	FlowExpired   FlowStatus = "expired"
	FlowDenied    FlowStatus = "denied"
	FlowCancelled FlowStatus = "cancelled"
	FlowError     FlowStatus = "error"
)

// DeviceFlowState describes one authorization attempt. It never holds the
// access token.
type DeviceFlowState struct {
	DeviceCode      string
	UserCode        string
	VerificationURI string
	Interval        time.Duration
	ExpiresAt       time.Time
	Status          FlowStatus
}

// FlowCallbacks receive the outcome of a Flow. OnToken and OnError are
// mutually exclusive and fire at most once; neither fires after Cancel.
type FlowCallbacks struct {
	OnCode  func(DeviceCode)
	OnToken func(token string)
	OnError func(error)
}

// ErrFlowCancelled is returned by Start when the flow was cancelled or
// superseded before its device code could be announced.
var ErrFlowCancelled = errors.New("device flow cancelled")

// Flow is a running device authorization attempt.
type Flow struct {
	mu       sync.Mutex
	state    DeviceFlowState
	resolved bool
	cancel   context.CancelFunc
	done     chan struct{}
}

func newFlow(cancel context.CancelFunc) *Flow {
	return &Flow{
		state:  DeviceFlowState{Status: FlowPending},
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// Cancel stops polling. Cancelling a resolved flow is a no-op.
func (f *Flow) Cancel() {
	f.resolve(FlowCancelled)
	f.cancel()
}

// Status returns the current status.
func (f *Flow) Status() FlowStatus {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state.Status
}

// State returns a copy of the flow state.
func (f *Flow) State() DeviceFlowState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Done is closed once the polling goroutine has exited.
func (f *Flow) Done() <-chan struct{} {
	return f.done
}

// setCode records the issued code. It reports false when the flow was
// resolved while the code was being requested.
func (f *Flow) setCode(code DeviceCode) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return false
	}
	f.state.DeviceCode = code.DeviceCode
	f.state.UserCode = code.UserCode
	f.state.VerificationURI = code.VerificationURI
	f.state.Interval = code.Interval
	f.state.ExpiresAt = code.ExpiresAt
	return true
}

// resolve moves the flow to a terminal status. It reports false when the flow
// was already resolved, in which case callers must not notify anyone.
func (f *Flow) resolve(status FlowStatus) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.resolved {
		return false
	}
	f.resolved = true
	f.state.Status = status
	return true
}

// Start cancels any flow already in progress, requests a device code and
// polls for a token in the background. Initiation failures are returned
// directly and no callbacks fire.
func (a *Authenticator) Start(ctx context.Context, cb FlowCallbacks) (*Flow, error) {
	flowCtx, cancel := context.WithCancel(ctx)
	flow := newFlow(cancel)

	a.mu.Lock()
	previous := a.current
	a.current = flow
	a.mu.Unlock()

	if previous != nil {
		previous.Cancel()
	}

	code, err := a.Initiate(flowCtx)
	if err != nil {
		if !flow.resolve(FlowError) {
			err = fmt.Errorf("%w: %w", ErrFlowCancelled, err)
		}
		a.abandon(flow)
		return nil, err
	}
	if !flow.setCode(code) {
		a.abandon(flow)
		return nil, ErrFlowCancelled
	}

	if a.log != nil {
		a.log.Info("device code issued", "verification_uri", code.VerificationURI, "expires_at", code.ExpiresAt)
	}
	if cb.OnCode != nil {
		cb.OnCode(code)
	}

	go a.run(flowCtx, flow, code, cb)
	return flow, nil
}

// Cancel stops the active flow, if any.
func (a *Authenticator) Cancel() {
	a.mu.Lock()
	flow := a.current
	a.current = nil
	a.mu.Unlock()

	if flow != nil {
		flow.Cancel()
	}
}

// Active returns the flow currently polling, or nil.
func (a *Authenticator) Active() *Flow {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.current
}

func (a *Authenticator) run(ctx context.Context, flow *Flow, code DeviceCode, cb FlowCallbacks) {
	defer close(flow.done)
	defer a.release(flow)
	defer flow.cancel()

	token, err := a.Poll(ctx, code)
	if err == nil {
		if flow.resolve(FlowSucceeded) && cb.OnToken != nil {
			cb.OnToken(token)
		}
		return
	}

	status := statusForError(err)
	if !flow.resolve(status) || status == FlowCancelled {
		return
	}
	if a.log != nil {
		a.log.Warn("device flow ended", "error", err)
	}
	if cb.OnError != nil {
		cb.OnError(err)
	}
}

// abandon finishes a flow that never reached polling.
func (a *Authenticator) abandon(flow *Flow) {
	flow.cancel()
	close(flow.done)
	a.release(flow)
}

func (a *Authenticator) release(flow *Flow) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current == flow {
		a.current = nil
	}
}

func statusForError(err error) FlowStatus {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return FlowExpired
	case errors.Is(err, ErrAccessDenied):
		return FlowDenied
	case errors.Is(err, context.Canceled):
		return FlowCancelled
	default:
		return FlowError
	}
}
