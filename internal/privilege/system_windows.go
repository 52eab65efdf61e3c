//go:build windows

package privilege

import "github.com/loykin/warden/internal/errkind"

type osSystem struct{}

func (osSystem) Geteuid() int { return -1 }
func (osSystem) Getegid() int { return -1 }

func (osSystem) Setgroups([]int) error { return unsupported("setgroups") }
func (osSystem) Setgid(int) error      { return unsupported("setgid") }
func (osSystem) Setuid(int) error      { return unsupported("setuid") }

func unsupported(op string) error {
	return errkind.Newf(errkind.UnsupportedPlatform, op, "", "privilege changes are not supported on windows")
}
