package daemon

import (
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/kaiserkarel/mcron/internal/cronerr"
)

// PIDFile marks a running daemon. Its existence, not its content, is what
// keeps a second daemon from starting.
type PIDFile struct {
	path string
}

// CreatePIDFile creates path exclusively and writes the current pid into it.
func CreatePIDFile(path string) (*PIDFile, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, cronerr.Newf(cronerr.CategoryAlreadyRunning,
				"a cron daemon is already running (%s exists)", path).Fatal()
		}
		return nil, cronerr.Wrap(err, cronerr.CategoryPIDFile, "cannot write pid file")
	}

	_, werr := f.WriteString(strconv.Itoa(os.Getpid()) + "\n")
	cerr := f.Close()
	if werr == nil {
		werr = cerr
	}
	if werr != nil {
		os.Remove(path)
		return nil, cronerr.Wrap(werr, cronerr.CategoryPIDFile, "cannot write pid file")
	}
	return &PIDFile{path: path}, nil
}

// Path is the file's location.
func (p *PIDFile) Path() string { return p.path }

// Remove deletes the file. Removing twice is fine.
func (p *PIDFile) Remove() error {
	if err := os.Remove(p.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return errors.Wrap(err, "remove pid file")
	}
	return nil
}

// ReadPID returns the pid recorded in path.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.Wrapf(err, "pid file %s", path)
	}
	return pid, nil
}
