//go:build !windows

package detector

import "golang.org/x/sys/unix"

// signalZero probes pid without delivering a signal.
func signalZero(pid int) error {
	return unix.Kill(pid, 0)
}
