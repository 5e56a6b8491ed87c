//go:build !windows

package launcher

import (
	"os"
	"path/filepath"
	"syscall"
)

var executableExts = []string{""}

// sysProcAttr starts every program in its own session so it survives the
// daemon and never shares its controlling terminal.
func sysProcAttr(_ Policy) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

// consoleArgv prefixes argv with the terminal command, when one is configured.
func consoleArgv(terminal []string, argv []string) []string {
	if len(terminal) == 0 {
		return argv
	}
	out := make([]string, 0, len(terminal)+len(argv))
	out = append(out, terminal...)
	return append(out, argv...)
}

// DefaultSearchDirs returns the common installation directories.
func DefaultSearchDirs() []string {
	dirs := []string{"/usr/local/bin", "/usr/bin", "/opt", "/snap/bin"}
	if home, err := os.UserHomeDir(); err == nil {
		dirs = append(dirs, filepath.Join(home, ".local", "bin"))
	}
	return dirs
}

// DefaultConsolePrograms lists programs that need a terminal window.
func DefaultConsolePrograms() []string {
	return []string{"bash", "zsh", "fish", "sh", "pwsh", "htop", "top", "vim", "nvim"}
}
