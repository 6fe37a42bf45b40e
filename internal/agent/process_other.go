//go:build !unix

package agent

import "os/exec"

func setupProcessGroup(cmd *exec.Cmd) {}
