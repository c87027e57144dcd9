package notify

import (
	"encoding/json"
	"io"
	"log/slog"
	"sync"
)

// Type names a notification understood by the presentation layer.
type Type string

const (
	TypeShowSetup      Type = "showSetup"
	TypeShowDeviceCode Type = "showDeviceCode"
	TypeShowDashboard  Type = "showDashboard"
	TypeUpdateStats    Type = "updateStats"
	TypeChatMessage    Type = "chatMessage"
	TypeActionResult   Type = "actionResult"
	TypeSettings       Type = "settings"
)

// Notification is a one-way message to the presentation layer.
type Notification struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload,omitempty"`
}

// Sink receives notifications. Implementations must be safe for concurrent use
// and must not block on a missing consumer.
type Sink interface {
	Notify(n Notification)
}

// DeviceCode is the payload of showDeviceCode.
type DeviceCode struct {
	UserCode        string `json:"userCode"`
	VerificationURI string `json:"verificationUri"`
}

// Stats is the payload of updateStats. User is nil until a profile has been
// resolved.
type Stats struct {
	Branch   string `json:"branch"`
	Remote   string `json:"remote"`
	Status   string `json:"status"`
	RepoName string `json:"repoName"`
	RepoPath string `json:"repoPath"`
	User     any    `json:"user"`
}

// Chat is the payload of chatMessage.
type Chat struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// SettingsView is the payload of settings. The API key itself is never sent.
type SettingsView struct {
	Provider  string `json:"provider"`
	BaseURL   string `json:"baseUrl"`
	ModelName string `json:"modelName"`
	HasAPIKey bool   `json:"hasApiKey"`
}

func ShowSetup() Notification {
	return Notification{Type: TypeShowSetup}
}

func ShowDeviceCode(userCode, verificationURI string) Notification {
	return Notification{Type: TypeShowDeviceCode, Payload: DeviceCode{UserCode: userCode, VerificationURI: verificationURI}}
}

func ShowDashboard() Notification {
	return Notification{Type: TypeShowDashboard}
}

func UpdateStats(s Stats) Notification {
	return Notification{Type: TypeUpdateStats, Payload: s}
}

func ChatMessage(role, content string) Notification {
	return Notification{Type: TypeChatMessage, Payload: Chat{Role: role, Content: content}}
}

// ActionResult wraps the outcome of a dispatched git action.
func ActionResult(result any) Notification {
	return Notification{Type: TypeActionResult, Payload: result}
}

func Settings(v SettingsView) Notification {
	return Notification{Type: TypeSettings, Payload: v}
}

// Noop discards every notification.
type Noop struct{}

func (Noop) Notify(Notification) {}

// Log writes notifications to a structured logger. Payloads are not logged.
type Log struct {
	Logger *slog.Logger
}

func (l Log) Notify(n Notification) {
	if l.Logger == nil {
		return
	}
	l.Logger.Debug("notification", "type", n.Type)
}

// JSON writes one JSON document per line to an io.Writer.
type JSON struct {
	mu  sync.Mutex
	enc *json.Encoder
	log *slog.Logger
}

// NewJSON returns a JSON sink. Write errors are logged to logger, if set.
func NewJSON(w io.Writer, logger *slog.Logger) *JSON {
	return &JSON{enc: json.NewEncoder(w), log: logger}
}

func (j *JSON) Notify(n Notification) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.enc.Encode(n); err != nil && j.log != nil {
		j.log.Warn("write notification", "type", n.Type, "error", err)
	}
}

// Recorder keeps every notification in memory.
type Recorder struct {
	mu   sync.Mutex
	seen []Notification
}

func (r *Recorder) Notify(n Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seen = append(r.seen, n)
}

// All returns a copy of the recorded notifications.
func (r *Recorder) All() []Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Notification(nil), r.seen...)
}

// Types returns the recorded notification types in order.
func (r *Recorder) Types() []Type {
	r.mu.Lock()
	defer r.mu.Unlock()
	types := make([]Type, 0, len(r.seen))
	for _, n := range r.seen {
		types = append(types, n.Type)
	}
	return types
}

// Last returns the most recent notification of type t.
func (r *Recorder) Last(t Type) (Notification, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.seen) - 1; i >= 0; i-- {
		if r.seen[i].Type == t {
			return r.seen[i], true
		}
	}
	return Notification{}, false
}

// Multi fans notifications out to several sinks.
type Multi []Sink

func (m Multi) Notify(n Notification) {
	for _, s := range m {
		if s != nil {
			s.Notify(n)
		}
	}
}
