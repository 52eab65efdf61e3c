package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/loykin/warden/internal/errkind"
)

// Placeholder is substituted with the instance id in a pid file template.
const Placeholder = "%s"

// ErrInvalidPID is returned when a pid file does not contain a positive integer.
var ErrInvalidPID = errors.New("invalid PID in file")

// Store maps instance ids to pid file paths and reads/writes those files.
// Template, when set, must contain Placeholder; otherwise files live in
// Dir as server.<id>.pid.
type Store struct {
	Template string
	Dir      string
	Cluster  int
}

// New returns a Store. An empty dir defaults to "log".
func New(template, dir string, cluster int) *Store {
	if dir == "" {
		dir = "log"
	}
	return &Store{Template: template, Dir: dir, Cluster: cluster}
}

func (s *Store) template() string {
	if s.Template != "" {
		return s.Template
	}
	return filepath.Join(s.Dir, "server."+Placeholder+".pid")
}

// Path returns the pid file path for id. It performs no I/O.
func (s *Store) Path(id InstanceID) string {
	return strings.ReplaceAll(s.template(), Placeholder, string(id))
}

// Write stores pid for id, creating the parent directory when needed and
// overwriting any previous content.
func (s *Store) Write(id InstanceID, pid int) error {
	path := s.Path(id)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errkind.New("create pid directory", dir, err)
	}
	// #nosec G306 -- pid files are meant to be world readable
	if err := os.WriteFile(path, []byte(strconv.Itoa(pid)), 0o644); err != nil {
		return errkind.New("write pid file", path, err)
	}
	return nil
}

// StorePID records the current process under id.
func (s *Store) StorePID(id InstanceID) error { return s.Write(id, os.Getpid()) }

// Read returns the pid recorded for id.
func (s *Store) Read(id InstanceID) (int, error) { return ReadFile(s.Path(id)) }

// ReadFile parses the pid stored at path.
func ReadFile(path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, errkind.New("read pid file", path, err)
	}
	pidStr := strings.TrimSpace(string(b))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, errkind.New("parse pid file", path, fmt.Errorf("%w: %q", ErrInvalidPID, pidStr))
	}
	if pid <= 0 {
		return 0, errkind.New("parse pid file", path, fmt.Errorf("%w: PID must be positive, got %d", ErrInvalidPID, pid))
	}
	return pid, nil
}

// Chown gives the pid file for id and its directory to uid and gid, so a
// process that later drops to that identity can still remove the file.
func (s *Store) Chown(id InstanceID, uid, gid int) error {
	path := s.Path(id)
	dir := filepath.Dir(path)
	if err := os.Chown(dir, uid, gid); err != nil {
		return errkind.New("chown pid directory", dir, err)
	}
	if err := os.Chown(path, uid, gid); err != nil {
		return errkind.New("chown pid file", path, err)
	}
	return nil
}

// Remove deletes the pid file for id. A missing file is not an error.
func (s *Store) Remove(id InstanceID) error { return RemoveFile(s.Path(id)) }

// RemoveFile deletes path, ignoring a missing file.
func RemoveFile(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return errkind.New("remove pid file", path, err)
	}
	return nil
}

// Exists reports whether the pid file for id is present.
func (s *Store) Exists(id InstanceID) bool {
	_, err := os.Stat(s.Path(id))
	return err == nil
}

// ListAll returns the pid files currently on disk for this configuration,
// sorted by path.
func (s *Store) ListAll() ([]string, error) {
	if s.Template != "" && s.Cluster <= 0 && !strings.Contains(s.Template, Placeholder) {
		return []string{s.Template}, nil
	}
	pattern := strings.ReplaceAll(s.template(), Placeholder, "*")
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", pattern, err)
	}
	sort.Strings(matches)
	return matches, nil
}

// IDFromPath recovers the instance id encoded in path by the template.
func (s *Store) IDFromPath(path string) (InstanceID, bool) {
	tpl := s.template()
	i := strings.Index(tpl, Placeholder)
	if i < 0 {
		return "", false
	}
	prefix, suffix := tpl[:i], tpl[i+len(Placeholder):]
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) || len(path) < len(prefix)+len(suffix) {
		return "", false
	}
	id := path[len(prefix) : len(path)-len(suffix)]
	if id == "" {
		return "", false
	}
	return InstanceID(id), true
}
