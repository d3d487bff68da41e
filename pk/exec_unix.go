//go:build unix

package pk

import (
	"os/exec"
	"syscall"
)

// setGracefulShutdown makes context cancellation send SIGINT instead of
// SIGKILL, giving tools like dart-sass a chance to clean up.
func setGracefulShutdown(cmd *exec.Cmd) {
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGINT)
	}
}
