//go:build windows

package service

import "os/exec"

// terminate kills the process outright; Windows has no SIGTERM equivalent
// that console servers honor.
func terminate(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
