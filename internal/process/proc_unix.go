//go:build unix

package process

import (
	"os/exec"
	"syscall"
)

// configure puts the child in its own process group so a timeout kills
// everything a wrapper shell spawned.
func configure(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
}
