//go:build windows

package signals

import (
	"os"
	"syscall"
)

var byName = map[string]syscall.Signal{
	"HUP":  syscall.SIGHUP,
	"INT":  syscall.SIGINT,
	"QUIT": syscall.SIGQUIT,
	"KILL": syscall.SIGKILL,
	"TERM": syscall.SIGTERM,
}

func lookupName(name string) syscall.Signal { return byName[name] }

func numberName(n int) string {
	for name, s := range byName {
		if int(s) == n {
			return "SIG" + name
		}
	}
	return ""
}

var (
	kernel32             = syscall.NewLazyDLL("kernel32.dll")
	procOpenProcess      = kernel32.NewProc("OpenProcess")
	procTerminateProcess = kernel32.NewProc("TerminateProcess")
	procCloseHandle      = kernel32.NewProc("CloseHandle")
)

const (
	processTerminate        = 0x0001
	processQueryInformation = 0x0400
)

// Send terminates pid. Windows has no signal delivery, so every signal other
// than 0 ends the process; signal 0 only checks that it exists.
func Send(pid int, sig syscall.Signal) error {
	if pid <= 0 {
		return syscall.EINVAL
	}
	access := uintptr(processTerminate)
	if sig == 0 {
		access = processQueryInformation
	}
	h, _, err := procOpenProcess.Call(access, 0, uintptr(pid))
	if h == 0 {
		return err
	}
	defer procCloseHandle.Call(h)
	if sig == 0 {
		return nil
	}
	if ret, _, err := procTerminateProcess.Call(h, 1); ret == 0 {
		return err
	}
	return nil
}

var Terminal = []os.Signal{syscall.SIGTERM, os.Interrupt}
