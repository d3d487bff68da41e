//go:build !unix

package pk

import "os/exec"

// setGracefulShutdown is a no-op where SIGINT is not available;
// cmd.Cancel keeps its default of killing the process.
func setGracefulShutdown(_ *exec.Cmd) {}
