//go:build windows

package launcher

import (
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/windows"
)

var executableExts = []string{"", ".exe", ".com", ".bat", ".cmd"}

// sysProcAttr gives console programs their own console and detaches
// everything else from the daemon's console.
func sysProcAttr(p Policy) *syscall.SysProcAttr {
	if p.AllocateConsole {
		return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_CONSOLE}
	}
	return &syscall.SysProcAttr{CreationFlags: windows.CREATE_NEW_PROCESS_GROUP | windows.DETACHED_PROCESS}
}

// consoleArgv is the identity on Windows; the creation flag allocates the console.
func consoleArgv(_ []string, argv []string) []string {
	return argv
}

// DefaultSearchDirs returns the common installation directories.
func DefaultSearchDirs() []string {
	var dirs []string
	for _, env := range []string{"ProgramFiles", "ProgramFiles(x86)"} {
		if v := os.Getenv(env); v != "" {
			dirs = append(dirs, v)
		}
	}
	if v := os.Getenv("LOCALAPPDATA"); v != "" {
		dirs = append(dirs, filepath.Join(v, "Programs"))
	}
	if v := os.Getenv("SystemRoot"); v != "" {
		dirs = append(dirs, filepath.Join(v, "System32"))
	}
	return dirs
}

// DefaultConsolePrograms lists programs that need their own console.
func DefaultConsolePrograms() []string {
	return []string{"cmd", "powershell", "pwsh", "wsl", "bash"}
}
