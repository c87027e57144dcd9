package event

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/rancher/gitpanel/internal/dispatch"
	"github.com/rancher/gitpanel/internal/store"
)

// CommandType enumerates the commands the presentation layer may send.
type CommandType string

const (
	CommandRunGitAction        CommandType = "runGitAction"
	CommandSubmitChatQuery     CommandType = "submitChatQuery"
	CommandRequestStatsRefresh CommandType = "requestStatsRefresh"
	CommandSaveSettings        CommandType = "saveSettings"
	CommandRequestSettings     CommandType = "requestSettings"
	CommandLoginWithDeviceFlow CommandType = "loginWithDeviceFlow"
	CommandLogout              CommandType = "logout"
)

// Command is a decoded presentation command. Only the fields belonging to
// Type are populated.
type Command struct {
	Type CommandType

	// runGitAction
	Action  dispatch.Action
	Payload dispatch.Payload

	// submitChatQuery
	Text string

	// saveSettings
	Settings store.Settings
	APIKey   string
}

// RejectedActionError is returned for a runGitAction command whose action or
// payload is invalid. Action holds the name as sent.
type RejectedActionError struct {
	Action dispatch.Action
	Err    error
}

func (e *RejectedActionError) Error() string {
	return fmt.Sprintf("reject %s: %v", e.Action, e.Err)
}

func (e *RejectedActionError) Unwrap() error { return e.Err }

// AsRejectedAction reports whether err is or wraps a *RejectedActionError.
func AsRejectedAction(err error) (*RejectedActionError, bool) {
	var target *RejectedActionError
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

type wireCommand struct {
	Type     string          `json:"type"`
	Action   string          `json:"action"`
	Payload  json.RawMessage `json:"payload"`
	Text     string           `json:"text"`
	Settings *store.Settings  `json:"settings"`
	APIKey   string           `json:"apiKey"`
}

// ParseCommand decodes a single JSON command.
func ParseCommand(data []byte) (Command, error) {
	var raw wireCommand
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return Command{}, fmt.Errorf("decode command: %w", err)
	}

	cmd := Command{Type: CommandType(strings.TrimSpace(raw.Type))}
	switch cmd.Type {
	case CommandRunGitAction:
		action, err := dispatch.ParseAction(raw.Action)
		if err != nil {
			return Command{}, &RejectedActionError{Action: dispatch.Action(strings.TrimSpace(raw.Action)), Err: err}
		}
		payload, err := decodePayload(raw.Payload)
		if err != nil {
			return Command{}, &RejectedActionError{
				Action: action,
				Err:    &dispatch.ValidationError{Action: action, Field: "payload", Reason: err.Error()},
			}
		}
		cmd.Action = action
		cmd.Payload = payload
	case CommandSubmitChatQuery:
		cmd.Text = strings.TrimSpace(raw.Text)
		if cmd.Text == "" {
			return Command{}, fmt.Errorf("%s: text is required", cmd.Type)
		}
	case CommandSaveSettings:
		if raw.Settings == nil {
			return Command{}, fmt.Errorf("%s: settings are required", cmd.Type)
		}
		cmd.Settings = store.Settings{
			Provider:  strings.TrimSpace(raw.Settings.Provider),
			BaseURL:   strings.TrimSpace(raw.Settings.BaseURL),
			ModelName: strings.TrimSpace(raw.Settings.ModelName),
		}
		cmd.APIKey = strings.TrimSpace(raw.APIKey)
	case CommandRequestStatsRefresh, CommandRequestSettings, CommandLoginWithDeviceFlow, CommandLogout:
	case "":
		return Command{}, fmt.Errorf("command type is required")
	default:
		return Command{}, fmt.Errorf("unknown command %q", raw.Type)
	}

	return cmd, nil
}

func decodePayload(data json.RawMessage) (dispatch.Payload, error) {
	var p dispatch.Payload
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return p, nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return dispatch.Payload{}, err
	}
	return p, nil
}

// DecodeCommands reads one JSON command per line from r and calls fn for each.
// Blank lines are skipped. A malformed line is passed to onError and decoding
// continues; fn returning an error stops decoding.
func DecodeCommands(r io.Reader, fn func(Command) error, onError func(line int, err error)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)

	line := 0
	for scanner.Scan() {
		line++
		text := bytes.TrimSpace(scanner.Bytes())
		if len(text) == 0 {
			continue
		}

		cmd, err := ParseCommand(text)
		if err != nil {
			if onError != nil {
				onError(line, err)
			}
			continue
		}
		if err := fn(cmd); err != nil {
			return err
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("read commands: %w", err)
	}
	return nil
}
