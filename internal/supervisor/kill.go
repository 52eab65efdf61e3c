package supervisor

import (
	"context"
	"log/slog"
	"syscall"

	"github.com/loykin/warden/internal/errkind"
	"github.com/loykin/warden/internal/history"
	"github.com/loykin/warden/internal/metrics"
	"github.com/loykin/warden/internal/pidfile"
	"github.com/loykin/warden/internal/signals"
)

// Outcome is the result of signalling one instance.
type Outcome string

const (
	Signaled         Outcome = "signaled"
	Stale            Outcome = "stale"
	Missing          Outcome = "missing"
	InvalidSignal    Outcome = "invalid_signal"
	PermissionDenied Outcome = "permission_denied"
	Failed           Outcome = "failed"
)

// IsFailure reports whether o counts against the command's exit status.
func (o Outcome) IsFailure() bool {
	return o == InvalidSignal || o == PermissionDenied || o == Failed
}

// KillResult is the outcome for one PID file.
type KillResult struct {
	Instance pidfile.InstanceID `json:"instance"`
	Path     string             `json:"path"`
	PID      int                `json:"pid,omitempty"`
	Outcome  Outcome            `json:"outcome"`
	Error    string             `json:"error,omitempty"`
}

// KillReport collects the results of one Kill call.
type KillReport struct {
	Signal  string       `json:"signal"`
	Results []KillResult `json:"results"`
}

// ExitStatus is 1 when every target failed and 0 otherwise.
func (r KillReport) ExitStatus() int {
	if len(r.Results) == 0 {
		return 0
	}
	for _, res := range r.Results {
		if !res.Outcome.IsFailure() {
			return 0
		}
	}
	return 1
}

// Kill signals target, a port or one of main, master and all. An INT to a
// cluster target goes to the master only; the master stops its workers.
// Any other signal to a cluster target reaches every recorded instance.
// Per-target failures are logged and reported, never returned.
func (s *Supervisor) Kill(ctx context.Context, target, sigName string) (KillReport, error) {
	id, err := pidfile.ParseID(target)
	if err != nil {
		return KillReport{}, err
	}
	report := KillReport{Signal: sigName}
	sig, sigErr := signals.ParseSignal(sigName)
	if sigErr == nil {
		report.Signal = signals.SignalName(sig)
	}

	ids, err := s.killTargets(id, sig, sigErr)
	if err != nil {
		return report, err
	}
	for _, tid := range ids {
		res := s.killOne(tid, sig, sigErr)
		metrics.IncKill(report.Signal, string(res.Outcome))
		s.record(ctx, history.Event{Type: history.EventKill, Instance: tid.String(), PID: res.PID, Signal: report.Signal, Outcome: string(res.Outcome), Message: res.Error})
		report.Results = append(report.Results, res)
	}
	return report, nil
}

func (s *Supervisor) killTargets(id pidfile.InstanceID, sig syscall.Signal, sigErr error) ([]pidfile.InstanceID, error) {
	if !id.IsCluster() {
		return []pidfile.InstanceID{id}, nil
	}
	if sigErr == nil && sig == syscall.SIGINT {
		return []pidfile.InstanceID{pidfile.Main}, nil
	}
	paths, err := s.store.ListAll()
	if err != nil {
		return nil, err
	}
	var ids []pidfile.InstanceID
	for _, p := range paths {
		if tid, ok := s.store.IDFromPath(p); ok {
			ids = append(ids, tid)
		}
	}
	if len(ids) == 0 {
		ids = []pidfile.InstanceID{pidfile.Main}
	}
	return ids, nil
}

func (s *Supervisor) killOne(id pidfile.InstanceID, sig syscall.Signal, sigErr error) KillResult {
	res := KillResult{Instance: id, Path: s.store.Path(id)}
	log := s.log.With("instance", id, "pid_file", res.Path)

	if sigErr != nil {
		res.Outcome, res.Error = InvalidSignal, sigErr.Error()
		log.Error("Signal not supported", "error", sigErr)
		return res
	}

	pid, err := s.store.Read(id)
	if err != nil {
		if errkind.Is(err, errkind.NotFound) {
			res.Outcome = Missing
			log.Warn("Failed to read pid file, server may not be running")
			return res
		}
		// An unreadable pid names no process: treat it like a dead one.
		res.Outcome, res.Error = Stale, err.Error()
		s.removeStale(id, log)
		return res
	}
	res.PID = pid
	log = log.With("pid", pid)

	err = s.opts.Send(pid, sig)
	switch kind := errkind.Classify(err); {
	case err == nil:
		res.Outcome = Signaled
		log.Info("Sent signal", "signal", signals.SignalName(sig))
		if rmErr := s.store.Remove(id); rmErr != nil {
			log.Warn("Failed to remove pid file", "error", rmErr)
		}
	case kind == errkind.NoSuchProcess:
		res.Outcome = Stale
		log.Warn("Process already gone, removing stale pid file")
		s.removeStale(id, log)
	case kind == errkind.PermissionDenied:
		res.Outcome, res.Error = PermissionDenied, err.Error()
		log.Error("Not permitted to signal process", "error", err)
	case kind == errkind.InvalidSignal:
		res.Outcome, res.Error = InvalidSignal, err.Error()
		log.Error("Signal rejected", "signal", sig, "error", err)
	default:
		res.Outcome, res.Error = Failed, err.Error()
		log.Error("Failed to kill process", "signal", sig, "error", err)
	}
	return res
}

func (s *Supervisor) removeStale(id pidfile.InstanceID, log *slog.Logger) {
	if err := s.store.Remove(id); err != nil {
		log.Warn("Failed to remove stale pid file", "error", err)
		return
	}
	metrics.IncStaleRemoved()
}
