package dispatch

import (
	"fmt"
	"slices"
	"strings"

	"github.com/rancher/gitpanel/internal/git"
	"github.com/rancher/gitpanel/internal/refname"
)

// Action names a version-control operation the dispatcher can run.
type Action string

const (
	ActionStatus       Action = "status"
	ActionPush         Action = "push"
	ActionPull         Action = "pull"
	ActionFetch        Action = "fetch"
	ActionCommit       Action = "commit"
	ActionFastPush     Action = "fast-push"
	ActionStash        Action = "stash"
	ActionSetRemote    Action = "set-remote"
	ActionCreateBranch Action = "create-branch"
	ActionDeleteBranch Action = "delete-branch"
	ActionSwitchBranch Action = "switch-branch"
	ActionMergeBranch  Action = "merge-branch"
)

// FastPushMessage is the commit message used by the fast-push composite.
const FastPushMessage = "Fast Push: Auto-commit"

var allActions = []Action{
	ActionStatus,
	ActionPush,
	ActionPull,
	ActionFetch,
	ActionCommit,
	ActionFastPush,
	ActionStash,
	ActionSetRemote,
	ActionCreateBranch,
	ActionDeleteBranch,
	ActionSwitchBranch,
	ActionMergeBranch,
}

// Actions returns every supported action in a stable order.
func Actions() []Action {
	return append([]Action(nil), allActions...)
}

// ParseAction resolves a user supplied action name. Legacy camelCase names
// (fastPush, setRemote, createBranch, ...) are accepted as aliases.
func ParseAction(raw string) (Action, error) {
	name := strings.ToLower(strings.TrimSpace(raw))
	for _, a := range allActions {
		if name == string(a) || name == strings.ReplaceAll(string(a), "-", "") {
			return a, nil
		}
	}
	return "", &ValidationError{Action: Action(raw), Reason: "unknown action"}
}

// Payload is the loosely typed shape received from the presentation boundary.
type Payload struct {
	Message string `json:"message,omitempty"`
	URL     string `json:"url,omitempty"`
	Name    string `json:"name,omitempty"`
}

// Request is a validated, action specific request. Each concrete type carries
// exactly the fields its action needs.
type Request interface {
	Action() Action
}

type (
	Status       struct{}
	Push         struct{}
	Pull         struct{}
	Fetch        struct{}
	FastPush     struct{}
	Stash        struct{}
	Commit       struct{ Message string }
	SetRemote    struct{ URL string }
	CreateBranch struct{ Name string }
	DeleteBranch struct{ Name string }
	SwitchBranch struct{ Name string }
	MergeBranch  struct{ Name string }
)

func (Status) Action() Action       { return ActionStatus }
func (Push) Action() Action         { return ActionPush }
func (Pull) Action() Action         { return ActionPull }
func (Fetch) Action() Action        { return ActionFetch }
func (FastPush) Action() Action     { return ActionFastPush }
func (Stash) Action() Action        { return ActionStash }
func (Commit) Action() Action       { return ActionCommit }
func (SetRemote) Action() Action    { return ActionSetRemote }
func (CreateBranch) Action() Action { return ActionCreateBranch }
func (DeleteBranch) Action() Action { return ActionDeleteBranch }
func (SwitchBranch) Action() Action { return ActionSwitchBranch }
func (MergeBranch) Action() Action  { return ActionMergeBranch }

// NewRequest converts a boundary payload into a typed Request. Missing
// required fields and fields that do not belong to the action are rejected.
func NewRequest(action Action, p Payload) (Request, error) {
	switch action {
	case ActionStatus, ActionPush, ActionPull, ActionFetch, ActionFastPush, ActionStash:
		if err := rejectExtra(action, p); err != nil {
			return nil, err
		}
		switch action {
		case ActionStatus:
			return Status{}, nil
		case ActionPush:
			return Push{}, nil
		case ActionPull:
			return Pull{}, nil
		case ActionFetch:
			return Fetch{}, nil
		case ActionFastPush:
			return FastPush{}, nil
		default:
			return Stash{}, nil
		}

	case ActionCommit:
		if err := rejectExtra(action, p, "message"); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Message) == "" {
			return nil, missing(action, "message")
		}
		return Commit{Message: p.Message}, nil

	case ActionSetRemote:
		if err := rejectExtra(action, p, "url"); err != nil {
			return nil, err
		}
		url := strings.TrimSpace(p.URL)
		if url == "" {
			return nil, missing(action, "url")
		}
		if err := git.ValidateRemoteURL(url); err != nil {
			return nil, &ValidationError{Action: action, Field: "url", Reason: err.Error()}
		}
		return SetRemote{URL: url}, nil

	case ActionCreateBranch, ActionDeleteBranch, ActionSwitchBranch, ActionMergeBranch:
		if err := rejectExtra(action, p, "name"); err != nil {
			return nil, err
		}
		if strings.TrimSpace(p.Name) == "" {
			return nil, missing(action, "name")
		}
		name, err := refname.Parse(p.Name)
		if err != nil {
			return nil, &ValidationError{Action: action, Field: "name", Reason: err.Error()}
		}
		switch action {
		case ActionCreateBranch:
			return CreateBranch{Name: name}, nil
		case ActionDeleteBranch:
			return DeleteBranch{Name: name}, nil
		case ActionSwitchBranch:
			return SwitchBranch{Name: name}, nil
		default:
			return MergeBranch{Name: name}, nil
		}
	}

	return nil, &ValidationError{Action: action, Reason: "unknown action"}
}

func missing(action Action, field string) error {
	return &ValidationError{Action: action, Field: field, Reason: "is required"}
}

func rejectExtra(action Action, p Payload, allowed ...string) error {
	fields := []struct{ name, value string }{
		{"message", p.Message},
		{"url", p.URL},
		{"name", p.Name},
	}
	for _, f := range fields {
		if f.value == "" || slices.Contains(allowed, f.name) {
			continue
		}
		return &ValidationError{Action: action, Field: f.name, Reason: fmt.Sprintf("is not accepted by %s", action)}
	}
	return nil
}
