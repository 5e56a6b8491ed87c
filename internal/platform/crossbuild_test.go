package platform

import (
	"os"
	"os/exec"
	"testing"
)

// TestBackendsBuildForEveryGOOS compiles the module for the platforms whose
// backends are not exercised by the host test run.
func TestBackendsBuildForEveryGOOS(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping cross compilation in short mode")
	}
	gobin, err := exec.LookPath("go")
	if err != nil {
		t.Skip("go toolchain not on PATH")
	}

	for _, target := range []struct{ goos, goarch string }{
		{"windows", "amd64"},
		{"linux", "amd64"},
		{"darwin", "arm64"},
	} {
		t.Run(target.goos, func(t *testing.T) {
			cmd := exec.Command(gobin, "build", "github.com/1broseidon/lockin/...")
			cmd.Env = append(os.Environ(), "GOOS="+target.goos, "GOARCH="+target.goarch, "CGO_ENABLED=0")
			if out, err := cmd.CombinedOutput(); err != nil {
				t.Fatalf("GOOS=%s go build failed: %v\n%s", target.goos, err, out)
			}
		})
	}
}
