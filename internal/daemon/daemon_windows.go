//go:build windows

package daemon

import "github.com/loykin/warden/internal/errkind"

type unsupported struct{}

// New returns a Daemonizer that refuses to fork: windows has no session
// detachment to build on.
func New(Options) Daemonizer { return unsupported{} }

func (unsupported) Fork(id string, _ int) (int, error) {
	return 0, errkind.Fatal(errkind.Newf(errkind.UnsupportedPlatform, "daemonize", id, "daemonization is not supported on windows"))
}

func (unsupported) Detached() bool { return false }

func (unsupported) Settle(string) error { return nil }

func Relay() {}
