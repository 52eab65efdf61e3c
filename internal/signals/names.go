package signals

import (
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/loykin/warden/internal/errkind"
)

// ParseSignal accepts a signal name with or without the SIG prefix in any
// case ("INT", "sigterm") or its number ("15").
func ParseSignal(s string) (syscall.Signal, error) {
	name := strings.ToUpper(strings.TrimSpace(s))
	if n, err := strconv.Atoi(name); err == nil {
		if n > 0 && numberName(n) != "" {
			return syscall.Signal(n), nil
		}
		return 0, errkind.Newf(errkind.InvalidSignal, "parse signal", "", "unknown signal number %d", n)
	}
	name = strings.TrimPrefix(name, "SIG")
	if name != "" {
		if sig := lookupName(name); sig != 0 {
			return sig, nil
		}
	}
	return 0, errkind.Newf(errkind.InvalidSignal, "parse signal", "", "unknown signal %q", s)
}

// SignalName returns the short name of sig ("INT" for SIGINT).
func SignalName(sig os.Signal) string {
	if s, ok := sig.(syscall.Signal); ok {
		if name := numberName(int(s)); name != "" {
			return strings.TrimPrefix(name, "SIG")
		}
		return strconv.Itoa(int(s))
	}
	return sig.String()
}
