package detector

import (
	"errors"
	"fmt"

	"github.com/loykin/warden/internal/errkind"
	"github.com/loykin/warden/internal/pidfile"
)

// Detector is a strategy that determines if a process is running.
// It must be safe for concurrent use.
type Detector interface {
	// Alive returns true if the process is detected as running.
	Alive() (bool, error)
	// Describe returns a human-readable description of the detection method.
	Describe() string
}

// ErrAccessDenied means the recorded process exists but belongs to another
// identity, so its liveness cannot be established. Callers treat it as fatal.
var ErrAccessDenied = errors.New("access denied while probing process")

// Probe answers liveness questions for instances tracked by a pid file store.
type Probe struct {
	store *pidfile.Store
}

func NewProbe(store *pidfile.Store) *Probe { return &Probe{store: store} }

// IsAlive reads the pid recorded for id and sends it signal 0.
// A missing pid file, a corrupt one, or a vanished process yields false
// with no error.
func (p *Probe) IsAlive(id pidfile.InstanceID) (bool, error) {
	alive, err := PIDFileDetector{PIDFile: p.store.Path(id)}.Alive()
	if errors.Is(err, pidfile.ErrInvalidPID) {
		return false, nil
	}
	return alive, err
}

// PIDFileDetector detects a process via a PID file.
type PIDFileDetector struct {
	PIDFile string
}

func (d PIDFileDetector) Alive() (bool, error) {
	pid, err := pidfile.ReadFile(d.PIDFile)
	if err != nil {
		if errkind.Is(err, errkind.NotFound) {
			return false, nil
		}
		return false, err
	}
	alive, err := pidAlive(pid)
	if err != nil {
		return false, probeError(err, fmt.Sprintf("pid %d from %s", pid, d.PIDFile))
	}
	return alive, nil
}

func (d PIDFileDetector) Describe() string { return "pidfile:" + d.PIDFile }

// PIDDetector detects by a provided PID number.
type PIDDetector struct{ PID int }

func (d PIDDetector) Alive() (bool, error) {
	alive, err := pidAlive(d.PID)
	if err != nil {
		return false, probeError(err, fmt.Sprintf("pid %d", d.PID))
	}
	return alive, nil
}

func (d PIDDetector) Describe() string { return fmt.Sprintf("pid:%d", d.PID) }

// pidAlive sends signal 0 to pid. Permission denial is returned as an error
// because the process exists but its liveness cannot be acted upon.
func pidAlive(pid int) (bool, error) {
	if pid <= 0 {
		return false, nil
	}
	err := signalZero(pid)
	if err == nil {
		return true, nil
	}
	switch errkind.Classify(err) {
	case errkind.NoSuchProcess, errkind.NotFound:
		return false, nil
	default:
		return false, err
	}
}

func probeError(err error, target string) error {
	if errkind.Is(err, errkind.PermissionDenied) {
		return fmt.Errorf("%w: %s: %w", ErrAccessDenied, target, err)
	}
	return fmt.Errorf("probe %s: %w", target, err)
}
