package ipc

import (
	"encoding/json"
	"fmt"

	"github.com/1broseidon/lockin/internal/desktop"
	"github.com/1broseidon/lockin/internal/launcher"
	"github.com/1broseidon/lockin/internal/orchestrator"
	"github.com/1broseidon/lockin/internal/registry"
)

// CommandType represents different IPC command types
type CommandType string

const (
	CommandPing         CommandType = "PING"
	CommandStatus       CommandType = "STATUS"
	CommandLaunch       CommandType = "LAUNCH"
	CommandAwait        CommandType = "AWAIT"
	CommandFocus        CommandType = "FOCUS"
	CommandMinimizeAll  CommandType = "MINIMIZE_ALL"
	CommandCloseAll     CommandType = "CLOSE_ALL"
	CommandCloseApp     CommandType = "CLOSE_APP"
	CommandMinimizeApp  CommandType = "MINIMIZE_APP"
	CommandRestoreApp   CommandType = "RESTORE_APP"
	CommandCompleteTask CommandType = "COMPLETE_TASK"
	CommandLoadPreset   CommandType = "LOAD_PRESET"
)

const (
	StatusOK    = "OK"
	StatusError = "ERROR"
)

// Request represents an IPC request from client to server
type Request struct {
	Command CommandType     `json:"command"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response represents an IPC response from server to client
type Response struct {
	Status string          `json:"status"` // "OK" or "ERROR"
	Data   json.RawMessage `json:"data,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// StatusData is returned by STATUS.
type StatusData struct {
	orchestrator.Status
	PID           int   `json:"pid"`
	UptimeSeconds int64 `json:"uptime_seconds"`
}

// LaunchPayload is the payload of LAUNCH. With Wait set the response is sent
// once the launch has resolved or failed.
type LaunchPayload struct {
	Request launcher.Request `json:"request"`
	Wait    bool             `json:"wait,omitempty"`
}

// TargetPayload names an application id (or unique prefix) or, for FOCUS,
// a window handle.
type TargetPayload struct {
	Target string `json:"target"`
}

// PresetPayload is the payload of LOAD_PRESET.
type PresetPayload struct {
	Name string `json:"name"`
}

// FocusData is returned by FOCUS.
type FocusData struct {
	Window string `json:"window"`
}

// CountData reports how many windows an operation acted on.
type CountData struct {
	Windows int `json:"windows"`
}

// AppsData carries the applications started by LOAD_PRESET. Error lists
// the launches that failed when others succeeded.
type AppsData struct {
	Apps  []registry.App `json:"apps"`
	Error string         `json:"error,omitempty"`
}

// TeardownData is returned by COMPLETE_TASK.
type TeardownData = desktop.TeardownReport

// NewOKResponse creates a successful response with optional data
func NewOKResponse(data interface{}) (*Response, error) {
	var dataBytes json.RawMessage
	if data != nil {
		bytes, err := json.Marshal(data)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal response data: %w", err)
		}
		dataBytes = bytes
	}

	return &Response{
		Status: StatusOK,
		Data:   dataBytes,
	}, nil
}

// NewErrorResponse creates an error response with a message
func NewErrorResponse(errMsg string) *Response {
	return &Response{
		Status: StatusError,
		Error:  errMsg,
	}
}

// ParseRequest parses a request from JSON bytes
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return &req, nil
}

// Marshal converts a response to JSON bytes
func (r *Response) Marshal() ([]byte, error) {
	return json.Marshal(r)
}

func decodePayload(payload json.RawMessage, v any) error {
	if len(payload) == 0 {
		return fmt.Errorf("missing payload")
	}
	if err := json.Unmarshal(payload, v); err != nil {
		return fmt.Errorf("invalid payload: %w", err)
	}
	return nil
}
