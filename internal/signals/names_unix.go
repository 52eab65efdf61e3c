//go:build !windows

package signals

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

func lookupName(name string) syscall.Signal {
	return unix.SignalNum("SIG" + name)
}

func numberName(n int) string {
	return unix.SignalName(syscall.Signal(n))
}

// Send delivers sig to pid.
func Send(pid int, sig syscall.Signal) error {
	return unix.Kill(pid, sig)
}

// Terminal is the set of signals that stop a server.
var Terminal = []os.Signal{syscall.SIGTERM, syscall.SIGINT}
