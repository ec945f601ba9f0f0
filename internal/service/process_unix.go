//go:build !windows

package service

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup puts the child in its own process group so a forced kill
// reaches anything it spawned, and so terminal signals aimed at the panel
// don't skip the graceful stop.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func killProcessGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	if err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL); err != nil {
		return cmd.Process.Kill()
	}
	return nil
}
