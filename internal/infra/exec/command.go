package exec

// Runs external Node.js signer scripts with validation and a timeout
// Transaction signing lives outside this process; we only shell out and
// collect the script output

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"time"
)

// RunNodeScript executes a Node.js script and returns its combined output.
// The extra environment entries are appended to the current process env.
func RunNodeScript(ctx context.Context, scriptPath string, timeout time.Duration, env []string, args ...string) ([]byte, error) {
	if err := validateNodeInstalled(); err != nil {
		return nil, err
	}

	absPath, err := filepath.Abs(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve script path: %w", err)
	}
	if _, err := os.Stat(absPath); os.IsNotExist(err) {
		return nil, fmt.Errorf("script not found: %s", absPath)
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmdArgs := append([]string{absPath}, args...)
	cmd := exec.CommandContext(runCtx, "node", cmdArgs...)
	cmd.Dir = "."
	cmd.Env = append(os.Environ(), env...)

	output, err := cmd.CombinedOutput()

	if runCtx.Err() == context.DeadlineExceeded {
		return output, fmt.Errorf("command timed out after %v: %w", timeout, context.DeadlineExceeded)
	}
	return output, err
}

func validateNodeInstalled() error {
	cmd := exec.Command("node", "--version")
	if err := cmd.Run(); err != nil {
		return fmt.Errorf("Node.js is not installed or not in PATH: %w", err)
	}
	return nil
}
