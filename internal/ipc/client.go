package ipc

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/1broseidon/lockin/internal/launcher"
	"github.com/1broseidon/lockin/internal/registry"
	"github.com/1broseidon/lockin/internal/runtimepath"
)

const (
	defaultTimeout = 5 * time.Second
	// longTimeout covers commands that wait on resolution or close grace
	// periods.
	longTimeout = 2 * time.Minute
)

// Client handles IPC communication with the daemon
type Client struct {
	socketPath string
	timeout    time.Duration
}

// NewClient creates a new IPC client
func NewClient() *Client {
	socketPath, err := runtimepath.SocketPath()
	if err != nil {
		// Keep constructor non-failing; sendRequest surfaces connection errors.
		socketPath = ""
	}
	return NewClientAt(socketPath)
}

// NewClientAt creates a client for the socket at path.
func NewClientAt(path string) *Client {
	return &Client{
		socketPath: path,
		timeout:    defaultTimeout,
	}
}

// sendRequest sends a request and waits up to timeout for a response
func (c *Client) sendRequest(cmd CommandType, payload any, timeout time.Duration) (*Response, error) {
	req := &Request{Command: cmd}
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal %s payload: %w", cmd, err)
		}
		req.Payload = data
	}

	conn, err := net.DialTimeout("unix", c.socketPath, c.timeout)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to daemon: %w (is the daemon running?)", err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	reqData, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	reqData = append(reqData, '\n')
	if _, err := conn.Write(reqData); err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}

	reader := bufio.NewReader(conn)
	respData, err := reader.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(respData, &resp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	if resp.Status == StatusError {
		return nil, fmt.Errorf("daemon error: %s", resp.Error)
	}

	return &resp, nil
}

// call sends cmd and decodes the response data into out, if non-nil.
func (c *Client) call(cmd CommandType, payload any, out any, timeout time.Duration) error {
	resp, err := c.sendRequest(cmd, payload, timeout)
	if err != nil {
		return err
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(resp.Data, out); err != nil {
		return fmt.Errorf("failed to parse %s data: %w", cmd, err)
	}
	return nil
}

// Ping checks if the daemon is responding
func (c *Client) Ping() error {
	return c.call(CommandPing, nil, nil, c.timeout)
}

// Status retrieves the registry and task desktop snapshot.
func (c *Client) Status() (*StatusData, error) {
	var data StatusData
	if err := c.call(CommandStatus, nil, &data, c.timeout); err != nil {
		return nil, err
	}
	return &data, nil
}

// Launch starts req. With wait set it returns after the launch resolved.
func (c *Client) Launch(req launcher.Request, wait bool) (*registry.App, error) {
	timeout := c.timeout
	if wait {
		timeout = longTimeout
	}
	var app registry.App
	if err := c.call(CommandLaunch, LaunchPayload{Request: req, Wait: wait}, &app, timeout); err != nil {
		return nil, err
	}
	return &app, nil
}

// Await waits for the resolution of app id to finish.
func (c *Client) Await(id string) (*registry.App, error) {
	var app registry.App
	if err := c.call(CommandAwait, TargetPayload{Target: id}, &app, longTimeout); err != nil {
		return nil, err
	}
	return &app, nil
}

// Focus focuses an application id, id prefix or window handle and returns
// the focused window handle.
func (c *Client) Focus(target string) (string, error) {
	var data FocusData
	if err := c.call(CommandFocus, TargetPayload{Target: target}, &data, c.timeout); err != nil {
		return "", err
	}
	return data.Window, nil
}

// MinimizeAll minimizes every window on the task desktop.
func (c *Client) MinimizeAll() (int, error) {
	var data CountData
	err := c.call(CommandMinimizeAll, nil, &data, c.timeout)
	return data.Windows, err
}

// CloseAll closes every window on the task desktop.
func (c *Client) CloseAll() (int, error) {
	var data CountData
	err := c.call(CommandCloseAll, nil, &data, longTimeout)
	return data.Windows, err
}

// CloseApp closes one application.
func (c *Client) CloseApp(id string) error {
	return c.call(CommandCloseApp, TargetPayload{Target: id}, nil, longTimeout)
}

// MinimizeApp minimizes one application's windows.
func (c *Client) MinimizeApp(id string) (int, error) {
	var data CountData
	err := c.call(CommandMinimizeApp, TargetPayload{Target: id}, &data, c.timeout)
	return data.Windows, err
}

// RestoreApp restores one application's windows.
func (c *Client) RestoreApp(id string) (int, error) {
	var data CountData
	err := c.call(CommandRestoreApp, TargetPayload{Target: id}, &data, c.timeout)
	return data.Windows, err
}

// CompleteTask tears down the task desktop.
func (c *Client) CompleteTask() (*TeardownData, error) {
	var data TeardownData
	if err := c.call(CommandCompleteTask, nil, &data, longTimeout); err != nil {
		return nil, err
	}
	return &data, nil
}

// LoadPreset launches every application of a configured preset.
func (c *Client) LoadPreset(name string) (*AppsData, error) {
	var data AppsData
	if err := c.call(CommandLoadPreset, PresetPayload{Name: name}, &data, longTimeout); err != nil {
		return nil, err
	}
	return &data, nil
}
