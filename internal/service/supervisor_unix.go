//go:build !windows

package service

import (
	"os/exec"
	"syscall"
)

// terminate asks the process to shut down cleanly.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Signal(syscall.SIGTERM)
}
