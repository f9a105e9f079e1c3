// Package users resolves local accounts for the loader and the crontab client.
package users

import (
	"os"
	"os/user"
	"strconv"

	"github.com/pkg/errors"
)

// ErrUnknown is returned for names that are not local accounts.
var ErrUnknown = errors.New("unknown user")

// User is the subset of an account the daemon needs to run jobs as it.
type User struct {
	Name string
	Home string
	UID  uint32
	GID  uint32
}

// IsRoot reports whether u is the superuser.
func (u User) IsRoot() bool { return u.UID == 0 }

// Lookup resolves accounts by name.
type Lookup interface {
	Lookup(name string) (User, error)
}

// LookupFunc adapts a function to Lookup.
type LookupFunc func(name string) (User, error)

// Lookup calls f.
func (f LookupFunc) Lookup(name string) (User, error) { return f(name) }

// System resolves accounts from the host user database.
type System struct{}

// Lookup implements Lookup.
func (System) Lookup(name string) (User, error) {
	u, err := user.Lookup(name)
	if err != nil {
		var unknown user.UnknownUserError
		if errors.As(err, &unknown) {
			return User{}, errors.Wrap(ErrUnknown, name)
		}
		return User{}, errors.Wrapf(err, "lookup %s", name)
	}
	return fromOS(u)
}

// Current returns the account running this process. The name comes from the
// real uid so that a sudo-preserved $USER cannot impersonate someone else.
func Current() (User, error) {
	u, err := user.LookupId(strconv.Itoa(os.Getuid()))
	if err != nil {
		return User{}, errors.Wrap(err, "lookup current user")
	}
	return fromOS(u)
}

func fromOS(u *user.User) (User, error) {
	uid, err := strconv.ParseUint(u.Uid, 10, 32)
	if err != nil {
		return User{}, errors.Wrapf(err, "uid of %s", u.Username)
	}
	gid, err := strconv.ParseUint(u.Gid, 10, 32)
	if err != nil {
		return User{}, errors.Wrapf(err, "gid of %s", u.Username)
	}
	return User{Name: u.Username, Home: u.HomeDir, UID: uint32(uid), GID: uint32(gid)}, nil
}

// Static is a fixed account table.
type Static map[string]User

// Lookup implements Lookup.
func (s Static) Lookup(name string) (User, error) {
	u, ok := s[name]
	if !ok {
		return User{}, errors.Wrap(ErrUnknown, name)
	}
	return u, nil
}
