//go:build windows

package detector

import (
	"syscall"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// signalZero emulates the Unix existence probe; Windows has no signal 0.
func signalZero(pid int) error {
	ok, err := gopsproc.PidExists(int32(pid))
	if err != nil {
		return err
	}
	if !ok {
		return syscall.ESRCH
	}
	return nil
}
