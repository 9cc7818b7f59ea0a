package common

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// CommandRunner runs an external program and returns its combined output.
// Scanner and audio drivers take one so tests can replace the real binaries.
type CommandRunner func(ctx context.Context, name string, args ...string) ([]byte, error)

// RunCommand is the CommandRunner backed by os/exec
func RunCommand(ctx context.Context, name string, args ...string) ([]byte, error) {
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return output, fmt.Errorf("%s failed: %w: %s", name, err, strings.TrimSpace(string(output)))
	}
	return output, nil
}
