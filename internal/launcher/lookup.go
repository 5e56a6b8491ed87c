package launcher

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Finder resolves a requested program to an executable path. The fallback
// order is: the path as given, the search directories (and one level of
// sub-directories), PATH, then a case-insensitive name match.
type Finder struct {
	SearchDirs []string
}

// Resolve returns an absolute executable path for command.
func (f Finder) Resolve(command string) (string, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return "", fmt.Errorf("empty command: %w", ErrNotFound)
	}

	if strings.ContainsAny(command, `/\`) || filepath.IsAbs(command) {
		if p, ok := existingFile(command); ok {
			return p, nil
		}
	}

	name := filepath.Base(filepath.FromSlash(command))

	for _, dir := range f.SearchDirs {
		if p, ok := findInDir(dir, name); ok {
			return p, nil
		}
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, entry := range entries {
			if !entry.IsDir() {
				continue
			}
			if p, ok := findInDir(filepath.Join(dir, entry.Name()), name); ok {
				return p, nil
			}
		}
	}

	if p, err := exec.LookPath(name); err == nil {
		if abs, err := filepath.Abs(p); err == nil {
			return abs, nil
		}
		return p, nil
	}

	dirs := append(append([]string(nil), f.SearchDirs...), filepath.SplitList(os.Getenv("PATH"))...)
	for _, dir := range dirs {
		if p, ok := findFold(dir, name); ok {
			return p, nil
		}
	}

	return "", fmt.Errorf("%q: %w", command, ErrNotFound)
}

func findInDir(dir, name string) (string, bool) {
	if dir == "" {
		return "", false
	}
	for _, ext := range candidateExts(name) {
		if p, ok := existingFile(filepath.Join(dir, name+ext)); ok {
			return p, true
		}
	}
	return "", false
}

func findFold(dir, name string) (string, bool) {
	if dir == "" {
		return "", false
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", false
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		for _, ext := range candidateExts(name) {
			if strings.EqualFold(entry.Name(), name+ext) {
				return filepath.Join(dir, entry.Name()), true
			}
		}
	}
	return "", false
}

// candidateExts lists the suffixes to try after name. Names that already
// carry an executable extension are tried verbatim only.
func candidateExts(name string) []string {
	ext := strings.ToLower(filepath.Ext(name))
	for _, known := range executableExts {
		if known != "" && ext == known {
			return []string{""}
		}
	}
	return executableExts
}

func existingFile(path string) (string, bool) {
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return "", false
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return path, true
	}
	return abs, true
}
