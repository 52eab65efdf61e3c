package pidfile

import (
	"fmt"
	"strconv"
	"strings"
)

// InstanceID names one supervised process: a decimal port or a reserved token.
type InstanceID string

// Reserved instance tokens. The master process records itself under Main.
const (
	Main   InstanceID = "main"
	Master InstanceID = "master"
	All    InstanceID = "all"
)

// PortID returns the instance id for port.
func PortID(port int) InstanceID { return InstanceID(strconv.Itoa(port)) }

// ParseID validates s as a port number or reserved token.
func ParseID(s string) (InstanceID, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	switch InstanceID(s) {
	case Main, Master, All:
		return InstanceID(s), nil
	}
	p, err := strconv.Atoi(s)
	if err != nil || p <= 0 || p > 65535 {
		return "", fmt.Errorf("invalid instance %q: want a port or one of main, master, all", s)
	}
	return PortID(p), nil
}

// IsCluster reports whether id addresses the whole cluster.
func (id InstanceID) IsCluster() bool {
	return id == Main || id == Master || id == All
}

// Port returns the numeric port of id, or false for reserved tokens.
func (id InstanceID) Port() (int, bool) {
	p, err := strconv.Atoi(string(id))
	if err != nil {
		return 0, false
	}
	return p, true
}

func (id InstanceID) String() string { return string(id) }
