package supervisor

import (
	"context"
	"fmt"
	"strings"

	"github.com/loykin/warden/internal/detector"
	"github.com/loykin/warden/internal/pidfile"
)

// InstanceState is what `warden status` reports for one PID file.
type InstanceState struct {
	Instance pidfile.InstanceID    `json:"instance"`
	Path     string                `json:"path"`
	PID      int                   `json:"pid,omitempty"`
	Alive    bool                  `json:"alive"`
	Error    string                `json:"error,omitempty"`
	Process  *detector.ProcessInfo `json:"process,omitempty"`
}

// Instances probes target, or every recorded instance for a cluster
// target, and gathers process details for the live ones.
func (s *Supervisor) Instances(ctx context.Context, target string) ([]InstanceState, error) {
	id, err := pidfile.ParseID(target)
	if err != nil {
		return nil, err
	}
	ids := []pidfile.InstanceID{id}
	if id.IsCluster() {
		paths, err := s.store.ListAll()
		if err != nil {
			return nil, err
		}
		ids = ids[:0]
		for _, p := range paths {
			if tid, ok := s.store.IDFromPath(p); ok {
				ids = append(ids, tid)
			}
		}
	}

	out := make([]InstanceState, 0, len(ids))
	for _, tid := range ids {
		st := InstanceState{Instance: tid, Path: s.store.Path(tid)}
		if pid, err := s.store.Read(tid); err == nil {
			st.PID = pid
		}
		alive, err := s.opts.Probe.IsAlive(tid)
		if err != nil {
			st.Error = err.Error()
		}
		st.Alive = alive
		if alive && st.PID > 0 {
			if info, err := detector.Inspect(ctx, st.PID); err == nil {
				st.Process = info
			}
		}
		out = append(out, st)
	}
	return out, nil
}

// Describe renders the status of this process for the debug console.
func (s *Supervisor) Describe() string {
	st := s.Status()
	var b strings.Builder
	fmt.Fprintf(&b, "instance %s pid %d port %d mode %s\n", st.Instance, st.PID, st.Port, st.Mode)
	fmt.Fprintf(&b, "user %s uid %d gid %d uptime %s", st.User, st.UID, st.GID, st.Uptime)
	return b.String()
}
