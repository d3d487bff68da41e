package pk

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/term"
)

// WaitDelay is the time to wait after sending SIGINT before sending SIGKILL.
const WaitDelay = 5 * time.Second

var (
	colorEnvOnce sync.Once
	colorEnvVars []string
)

// colorForceEnvVars are the environment variables set to force color output.
var colorForceEnvVars = []string{
	"FORCE_COLOR=1",       // Node.js, chalk, many modern tools
	"CLICOLOR_FORCE=1",    // BSD/macOS convention
	"COLORTERM=truecolor", // Indicates color support
}

// computeColorEnv determines which color env vars to use.
func computeColorEnv(isTTY, noColorSet bool) []string {
	// Respect NO_COLOR convention (https://no-color.org/).
	if noColorSet || !isTTY {
		return nil
	}
	return colorForceEnvVars
}

// initColorEnv detects if stdout is a TTY and prepares env vars to force colors.
func initColorEnv() {
	_, noColor := os.LookupEnv("NO_COLOR")
	colorEnvVars = computeColorEnv(IsTerminal(os.Stdout), noColor)
}

// IsTerminal reports whether f is a terminal.
func IsTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// Command creates an exec.Cmd whose executable is looked up in the context's
// bin directories first, then in PATH. Stdout and stderr are wired to the
// context output so parallel tasks keep their output together.
//
// When the context is cancelled, the process receives SIGINT first
// (allowing graceful shutdown), then SIGKILL after WaitDelay.
func Command(ctx context.Context, name string, args ...string) *exec.Cmd {
	colorEnvOnce.Do(initColorEnv)

	binDirs := BinDirsFromContext(ctx)
	env := os.Environ()
	for i := len(binDirs) - 1; i >= 0; i-- {
		env = PrependPath(env, binDirs[i])
	}
	env = append(env, colorEnvVars...)

	// exec.Command resolves the binary using os.Getenv("PATH") at creation
	// time, before cmd.Env takes effect.
	if !strings.ContainsAny(name, `/\`) {
		for _, dir := range binDirs {
			if p := filepath.Join(dir, name); fileExists(p) {
				name = p
				break
			}
		}
	}

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = env
	cmd.WaitDelay = WaitDelay
	setGracefulShutdown(cmd)

	out := OutputFromContext(ctx)
	cmd.Stdout = out.Stdout
	cmd.Stderr = out.Stderr
	return cmd
}

// PrependPath prepends a directory to the PATH in the given environment.
func PrependPath(env []string, dir string) []string {
	result := make([]string, 0, len(env)+1)
	pathSet := false
	for _, e := range env {
		if oldPath, found := strings.CutPrefix(e, "PATH="); found {
			result = append(result, "PATH="+dir+string(os.PathListSeparator)+oldPath)
			pathSet = true
		} else {
			result = append(result, e)
		}
	}
	if !pathSet {
		result = append(result, "PATH="+dir)
	}
	return result
}

// fileExists returns true if the path exists and is not a directory.
func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
