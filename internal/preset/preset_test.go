package preset

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/1broseidon/lockin/internal/config"
	"github.com/1broseidon/lockin/internal/launcher"
)

// fakeResolver resolves only the listed commands.
type fakeResolver map[string]string

func (f fakeResolver) Resolve(command string) (string, error) {
	if p, ok := f[command]; ok {
		return p, nil
	}
	return "", launcher.ErrNotFound
}

func TestExpand_AppsInOrder(t *testing.T) {
	p := config.Preset{
		Apps: []config.PresetApp{
			{Name: "PowerShell", Path: "powershell.exe"},
			{Name: "Notepad", Path: "notepad.exe", Args: []string{"todo.txt"}},
			{Path: "htop", Console: true},
		},
	}
	plan, err := Expand("coding", p, fakeResolver{})
	require.NoError(t, err)
	require.Len(t, plan.Requests, 3)

	assert.Equal(t, "coding", plan.Name)
	assert.Equal(t, []string{"-NoExit"}, plan.Requests[0].Args)
	assert.Equal(t, "Notepad", plan.Requests[1].Name())
	assert.Equal(t, []string{"todo.txt"}, plan.Requests[1].Args)
	assert.True(t, plan.Requests[2].Policy.AllocateConsole)
	assert.Empty(t, plan.Profiles)
}

func TestAppArgs_PowerShell(t *testing.T) {
	tests := []struct {
		path string
		args []string
		want []string
	}{
		{`C:\Windows\System32\WindowsPowerShell\v1.0\powershell.exe`, []string{"-Command", "ls"}, []string{"-NoExit", "-Command", "ls"}},
		{"powershell.exe", []string{"-noexit"}, []string{"-noexit"}},
		{"pwsh.exe", nil, nil},
		{"cmd.exe", []string{"/k"}, []string{"/k"}},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			got := appArgs(config.PresetApp{Path: tt.path, Args: tt.args})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpand_IsolatedChrome(t *testing.T) {
	r := fakeResolver{"google-chrome": "/usr/bin/google-chrome"}
	p := config.Preset{
		BrowserTabs:     []string{"https://github.com", "https://stackoverflow.com"},
		Browser:         config.BrowserChrome,
		IsolatedBrowser: true,
	}
	plan, err := Expand("research", p, r)
	require.NoError(t, err)
	require.Len(t, plan.Requests, 1)
	require.Len(t, plan.Profiles, 1)

	req := plan.Requests[0]
	assert.Equal(t, "/usr/bin/google-chrome", req.Command)
	assert.Equal(t, "Chrome", req.DisplayName)

	dir := plan.Profiles[0]
	assert.Equal(t, os.TempDir(), filepath.Dir(dir))
	assert.True(t, strings.HasPrefix(filepath.Base(dir), "lockin_chrome_"))
	assert.Len(t, strings.TrimPrefix(filepath.Base(dir), "lockin_chrome_"), 8)

	assert.Equal(t, "--user-data-dir="+dir, req.Args[0])
	assert.Contains(t, req.Args, "--disable-extensions")
	assert.Equal(t, []string{"https://github.com", "https://stackoverflow.com"}, req.Args[len(req.Args)-2:])
}

func TestExpand_IsolatedEdgeFlags(t *testing.T) {
	r := fakeResolver{"msedge.exe": `C:\edge\msedge.exe`}
	p := config.Preset{BrowserTabs: []string{"https://learn.microsoft.com"}, Browser: config.BrowserEdge, IsolatedBrowser: true}

	plan, err := Expand("docs", p, r)
	require.NoError(t, err)
	args := plan.Requests[0].Args
	assert.Len(t, args, 5)
	assert.NotContains(t, args, "--disable-default-apps")
	assert.Equal(t, "--no-default-browser-check", args[3])
}

func TestExpand_DefaultBrowserFallsBackToEdge(t *testing.T) {
	r := fakeResolver{"microsoft-edge": "/usr/bin/microsoft-edge"}
	p := config.Preset{BrowserTabs: []string{"https://example.com"}}

	plan, err := Expand("p", p, r)
	require.NoError(t, err)
	req := plan.Requests[0]
	assert.Equal(t, "/usr/bin/microsoft-edge", req.Command)
	assert.Equal(t, []string{"--new-window", "https://example.com"}, req.Args)
	assert.Empty(t, plan.Profiles)
}

func TestExpand_NoBrowser(t *testing.T) {
	p := config.Preset{
		Apps:        []config.PresetApp{{Path: "notepad.exe"}},
		BrowserTabs: []string{"https://example.com"},
		Browser:     config.BrowserChrome,
	}
	_, err := Expand("p", p, fakeResolver{"msedge.exe": "edge"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoBrowser))
	assert.Contains(t, err.Error(), `preset "p"`)
}
