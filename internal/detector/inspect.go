package detector

import (
	"context"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// ProcessInfo is a best-effort snapshot of a running process.
type ProcessInfo struct {
	PID        int       `json:"pid"`
	Name       string    `json:"name,omitempty"`
	Cmdline    string    `json:"cmdline,omitempty"`
	Username   string    `json:"username,omitempty"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	RSSBytes   uint64    `json:"rss_bytes,omitempty"`
	CPUPercent float64   `json:"cpu_percent,omitempty"`
	Status     string    `json:"status,omitempty"`
}

// Inspect gathers details about pid. Fields that cannot be read are left
// empty; only a missing process is reported as an error.
func Inspect(ctx context.Context, pid int) (*ProcessInfo, error) {
	p, err := gopsproc.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return nil, err
	}
	info := &ProcessInfo{PID: pid}
	if name, err := p.NameWithContext(ctx); err == nil {
		info.Name = name
	}
	if cmd, err := p.CmdlineWithContext(ctx); err == nil {
		info.Cmdline = cmd
	}
	if u, err := p.UsernameWithContext(ctx); err == nil {
		info.Username = u
	}
	if ms, err := p.CreateTimeWithContext(ctx); err == nil && ms > 0 {
		info.StartedAt = time.UnixMilli(ms)
	}
	if mem, err := p.MemoryInfoWithContext(ctx); err == nil && mem != nil {
		info.RSSBytes = mem.RSS
	}
	if cpu, err := p.CPUPercentWithContext(ctx); err == nil {
		info.CPUPercent = cpu
	}
	if st, err := p.StatusWithContext(ctx); err == nil {
		info.Status = strings.Join(st, ",")
	}
	return info, nil
}
