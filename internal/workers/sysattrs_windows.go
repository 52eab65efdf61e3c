//go:build windows

package workers

import (
	"os/exec"
	"syscall"

	"github.com/loykin/warden/internal/signals"
)

func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{CreationFlags: syscall.CREATE_NEW_PROCESS_GROUP}
}

func signalGroup(pid int, sig syscall.Signal) error {
	return signals.Send(pid, sig)
}
