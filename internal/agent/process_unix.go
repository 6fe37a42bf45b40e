//go:build unix

package agent

import (
	"os/exec"
	"syscall"
)

// setupProcessGroup starts cmd in its own process group so that cancelling
// kills the CLI and every child it spawned.
func setupProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		if cmd.Process != nil {
			return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		}
		return nil
	}
}
