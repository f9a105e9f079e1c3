package loader

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// Dialect selects how a source is read.
type Dialect int

const (
	// Vixie is the line-based crontab dialect.
	Vixie Dialect = iota
	// YAML is the programmable dialect stored as a YAML job file.
	YAML
)

func (d Dialect) String() string {
	switch d {
	case Vixie:
		return "vixie"
	case YAML:
		return "yaml"
	}
	return "unknown"
}

// ErrUnsupportedDialect is returned for scheme sources.
var ErrUnsupportedDialect = errors.New("guile job files are not supported, convert them to yaml")

// ParseDialect maps a --stdin style name to a Dialect.
func ParseDialect(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "vixie", "vix":
		return Vixie, nil
	case "yaml", "yml":
		return YAML, nil
	case "guile", "gui":
		return 0, ErrUnsupportedDialect
	}
	return 0, errors.Errorf("unknown dialect %q", name)
}

// DialectOf picks the dialect from a file name suffix. ok is false for files
// that are not job sources at all.
func DialectOf(path string) (d Dialect, ok bool, err error) {
	switch filepath.Ext(path) {
	case ".vixie", ".vix":
		return Vixie, true, nil
	case ".yaml", ".yml":
		return YAML, true, nil
	case ".guile", ".gui":
		return 0, true, ErrUnsupportedDialect
	}
	return 0, false, nil
}

// Source is something jobs can be loaded from.
type Source struct {
	Name    string
	Dialect Dialect
	Open    func() (io.ReadCloser, error)
}

// File is a source backed by a path.
func File(path string, d Dialect) Source {
	return Source{
		Name:    path,
		Dialect: d,
		Open:    func() (io.ReadCloser, error) { return os.Open(path) },
	}
}

// Reader is a source read once from r, such as standard input.
func Reader(name string, r io.Reader, d Dialect) Source {
	return Source{
		Name:    name,
		Dialect: d,
		Open:    func() (io.ReadCloser, error) { return io.NopCloser(r), nil },
	}
}
