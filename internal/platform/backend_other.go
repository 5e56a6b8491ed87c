//go:build !linux && !windows

package platform

import (
	"fmt"
	"runtime"
)

// NewBackend reports that no window-system backend exists for this OS.
func NewBackend() (Backend, error) {
	return nil, fmt.Errorf("no window backend for %s", runtime.GOOS)
}
