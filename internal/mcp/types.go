package mcp

// LaunchAppInput is the input for the launch_app tool.
type LaunchAppInput struct {
	Command string   `json:"command" jsonschema:"Program to start: a name such as notepad.exe or firefox, or an absolute path"`
	Args    []string `json:"args,omitempty" jsonschema:"Arguments passed to the program"`
	Name    string   `json:"name,omitempty" jsonschema:"Display name (default: executable base name)"`
	Console bool     `json:"console,omitempty" jsonschema:"Start the program in its own console or terminal window"`
	Wait    *bool    `json:"wait,omitempty" jsonschema:"Wait until the launch resolved to a window or failed (default: true)"`
}

// AppInfo describes one managed application.
type AppInfo struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Command    string   `json:"command"`
	PID        int      `json:"pid"`
	Status     string   `json:"status"`
	Windows    []string `json:"windows"`
	MainWindow string   `json:"main_window,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// LaunchAppOutput is the output for the launch_app tool.
type LaunchAppOutput struct {
	App AppInfo `json:"app"`
}

// WindowInfo describes a window on the task desktop that no launch accounts for.
type WindowInfo struct {
	Handle string `json:"handle"`
	PID    int    `json:"pid"`
	Class  string `json:"class"`
	Title  string `json:"title"`
}

// ListAppsOutput is the output for the list_apps tool.
type ListAppsOutput struct {
	Desktop   *int         `json:"desktop,omitempty"`
	Degraded  bool         `json:"degraded"`
	Apps      []AppInfo    `json:"apps"`
	Unmanaged []WindowInfo `json:"unmanaged"`
}

// TargetInput names an application id, unique id prefix or window handle.
type TargetInput struct {
	Target string `json:"target" jsonschema:"Application id (or unique prefix) from list_apps, or a window handle such as 0x1a2b"`
}

// FocusAppOutput is the output for the focus_app tool.
type FocusAppOutput struct {
	Window string `json:"window"`
}

// EmptyInput is the input for tools without arguments.
type EmptyInput struct{}

// WindowCountOutput reports how many windows a bulk operation acted on.
type WindowCountOutput struct {
	Windows int `json:"windows"`
}

// CloseAppOutput is the output for the close_app tool.
type CloseAppOutput struct {
	Closed bool `json:"closed"`
}

// CompleteTaskOutput is the output for the complete_task tool.
type CompleteTaskOutput struct {
	Closed      int  `json:"closed"`
	AlreadyGone int  `json:"already_gone"`
	Terminated  int  `json:"terminated"`
	Remaining   int  `json:"remaining"`
	Removed     bool `json:"desktop_removed"`
}

// LoadPresetInput is the input for the load_preset tool.
type LoadPresetInput struct {
	Name string `json:"name" jsonschema:"Preset name from the lockin config"`
}

// LoadPresetOutput is the output for the load_preset tool.
type LoadPresetOutput struct {
	Apps  []AppInfo `json:"apps"`
	Error string    `json:"error,omitempty"`
}
