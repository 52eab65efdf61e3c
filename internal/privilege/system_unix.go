//go:build !windows

package privilege

import "syscall"

// osSystem uses the syscall package, whose Set* calls apply to every thread
// of the process on Linux.
type osSystem struct{}

func (osSystem) Geteuid() int               { return syscall.Geteuid() }
func (osSystem) Getegid() int               { return syscall.Getegid() }
func (osSystem) Setgroups(gids []int) error { return syscall.Setgroups(gids) }
func (osSystem) Setgid(gid int) error       { return syscall.Setgid(gid) }
func (osSystem) Setuid(uid int) error       { return syscall.Setuid(uid) }
