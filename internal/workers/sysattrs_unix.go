//go:build !windows

package workers

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// configureSysProcAttr places the worker in its own process group so a
// terminal INT reaches the master only and the master decides what the
// workers get.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func signalGroup(pid int, sig syscall.Signal) error {
	return unix.Kill(-pid, sig)
}
