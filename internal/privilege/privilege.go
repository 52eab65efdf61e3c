// Package privilege switches the running process to a less privileged
// user and group.
package privilege

import (
	"errors"
	"fmt"
	"log/slog"
	"os/user"
	"strconv"

	"github.com/loykin/warden/internal/errkind"
	"github.com/loykin/warden/internal/metrics"
)

var (
	// ErrUnknownUser is returned when the target user is not in the user database.
	ErrUnknownUser = errors.New("unknown user")
	// ErrUnknownGroup is returned when the target group is not in the group database.
	ErrUnknownGroup = errors.New("unknown group")
)

// Identity is a resolved target for a privilege drop.
type Identity struct {
	User   string
	Group  string
	UID    int
	GID    int
	Groups []int
}

// System is the set of identity system calls a drop needs.
type System interface {
	Geteuid() int
	Getegid() int
	Setgroups(gids []int) error
	Setgid(gid int) error
	Setuid(uid int) error
}

// Resolver looks up names in the user and group databases.
type Resolver interface {
	LookupUser(name string) (*user.User, error)
	LookupGroup(name string) (*user.Group, error)
	GroupIDs(u *user.User) ([]string, error)
}

// Dropper performs privilege drops.
type Dropper struct {
	sys      System
	resolver Resolver
	handover []func(uid, gid int) error
	log      *slog.Logger
}

// Option customises a Dropper.
type Option func(*Dropper)

func WithSystem(s System) Option     { return func(d *Dropper) { d.sys = s } }
func WithResolver(r Resolver) Option { return func(d *Dropper) { d.resolver = r } }

// WithHandover registers fn to run with the resolved uid and gid just
// before the switch, while the process still holds its old identity. It is
// meant for chowning files the dropped process must later remove. A
// handover failure is logged and does not stop the drop.
func WithHandover(fn func(uid, gid int) error) Option {
	return func(d *Dropper) { d.handover = append(d.handover, fn) }
}

func New(log *slog.Logger, opts ...Option) *Dropper {
	if log == nil {
		log = slog.Default()
	}
	d := &Dropper{sys: osSystem{}, resolver: osResolver{}, log: log}
	for _, o := range opts {
		o(d)
	}
	return d
}

// Resolve looks up user and group. It performs no identity changes.
func (d *Dropper) Resolve(userName, groupName string) (*Identity, error) {
	u, err := d.resolver.LookupUser(userName)
	if err != nil {
		return nil, fmt.Errorf("%w %q: failed to change to user %s, does the user exist? (%v)", ErrUnknownUser, userName, userName, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return nil, fmt.Errorf("%w %q: non-numeric uid %q", ErrUnknownUser, userName, u.Uid)
	}
	g, err := d.resolver.LookupGroup(groupName)
	if err != nil {
		return nil, fmt.Errorf("%w %q: failed to change to group %s, does the group exist? (%v)", ErrUnknownGroup, groupName, groupName, err)
	}
	gid, err := strconv.Atoi(g.Gid)
	if err != nil {
		return nil, fmt.Errorf("%w %q: non-numeric gid %q", ErrUnknownGroup, groupName, g.Gid)
	}
	id := &Identity{User: userName, Group: groupName, UID: uid, GID: gid, Groups: []int{gid}}
	// Supplementary groups are best effort: not every platform can list them.
	if names, err := d.resolver.GroupIDs(u); err == nil {
		for _, s := range names {
			if n, err := strconv.Atoi(s); err == nil && n != gid {
				id.Groups = append(id.Groups, n)
			}
		}
	}
	return id, nil
}

// Drop switches the process to userName and groupName. An empty group
// defaults to the user name; empty user and group is a no-op. Supplementary
// groups are installed first, then the gid, then the uid: once the uid has
// changed the process can no longer change its groups.
func (d *Dropper) Drop(userName, groupName string) error {
	if userName == "" && groupName == "" {
		return nil
	}
	if groupName == "" {
		groupName = userName
	}
	if userName == "" {
		userName = groupName
	}
	d.log.Warn("About to change privilege", "user", userName, "group", groupName)

	id, err := d.Resolve(userName, groupName)
	if err != nil {
		metrics.IncPrivilegeDrop("unresolved")
		return errkind.Fatal(err)
	}
	if d.sys.Geteuid() == id.UID && d.sys.Getegid() == id.GID {
		d.log.Debug("Already running with target identity", "uid", id.UID, "gid", id.GID)
		metrics.IncPrivilegeDrop("noop")
		return nil
	}
	for _, fn := range d.handover {
		if err := fn(id.UID, id.GID); err != nil {
			d.log.Warn("Failed to hand over files to target identity", "uid", id.UID, "gid", id.GID, "error", err)
		}
	}
	if err := d.sys.Setgroups(id.Groups); err != nil {
		return d.fail("setgroups", id, err)
	}
	if err := d.sys.Setgid(id.GID); err != nil {
		return d.fail("setgid", id, err)
	}
	if err := d.sys.Setuid(id.UID); err != nil {
		return d.fail("setuid", id, err)
	}
	d.log.Info("Changed privilege", "user", id.User, "uid", id.UID, "group", id.Group, "gid", id.GID)
	metrics.IncPrivilegeDrop("changed")
	return nil
}

func (d *Dropper) fail(op string, id *Identity, err error) error {
	metrics.IncPrivilegeDrop("denied")
	return errkind.Fatal(&errkind.Error{
		Kind: errkind.Classify(err),
		Op:   fmt.Sprintf("couldn't change user and group to %s:%s (%s)", id.User, id.Group, op),
		Err:  err,
	})
}

type osResolver struct{}

func (osResolver) LookupUser(name string) (*user.User, error) {
	if u, err := user.Lookup(name); err == nil {
		return u, nil
	}
	return user.LookupId(name)
}

func (osResolver) LookupGroup(name string) (*user.Group, error) {
	if g, err := user.LookupGroup(name); err == nil {
		return g, nil
	}
	return user.LookupGroupId(name)
}

func (osResolver) GroupIDs(u *user.User) ([]string, error) { return u.GroupIds() }
