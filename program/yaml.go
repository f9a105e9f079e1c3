package program

import (
	"io"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"

	cron "github.com/kaiserkarel/mcron"
)

// File is a job file in YAML:
//
//	env:
//	  PATH: /usr/local/bin:/usr/bin
//	jobs:
//	  - schedule: "*/5 * * * *"
//	    command: /usr/bin/backup --quick
//	  - schedule: "@daily"
//	    offset: -30s
//	    command: mail -s report root
//	    input: "daily report\n"
//	    description: report
type File struct {
	Env  map[string]string `yaml:"env"`
	Jobs []FileJob         `yaml:"jobs"`
}

// FileJob is one job of a File.
type FileJob struct {
	Schedule    string            `yaml:"schedule"`
	Offset      string            `yaml:"offset"`
	Command     string            `yaml:"command"`
	Input       string            `yaml:"input"`
	Description string            `yaml:"description"`
	Env         map[string]string `yaml:"env"`
}

type expression struct {
	cron.Schedule
	text string
}

func (e expression) String() string { return e.text }

// Decode reads a File. Unknown keys are rejected.
func Decode(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		if errors.Is(err, io.EOF) {
			return &f, nil
		}
		return nil, errors.Wrap(err, "decode job file")
	}
	return &f, nil
}

// Register implements Program. Commands are registered as *cron.Command so
// the loader can bind them to their owner.
func (f *File) Register(r Registrar) error {
	for i, j := range f.Jobs {
		schedule, err := j.schedule()
		if err != nil {
			return errors.Wrapf(err, "job %d", i+1)
		}
		if strings.TrimSpace(j.Command) == "" {
			return errors.Errorf("job %d: missing command", i+1)
		}

		desc := j.Description
		if desc == "" {
			desc = j.Command
		}
		r.Job(schedule, &cron.Command{
			Line:  j.Command,
			Input: j.Input,
			Env:   append(envList(f.Env), envList(j.Env)...),
		}, desc)
	}
	return nil
}

func (j FileJob) schedule() (cron.Schedule, error) {
	expr := strings.TrimSpace(j.Schedule)
	if expr == "" {
		return nil, errors.New("missing schedule")
	}

	parse := cron.ParseSpec
	if !strings.HasPrefix(expr, "@") && len(strings.Fields(expr)) == 6 {
		parse = cron.ParseSpecWithSeconds
	}
	spec, err := parse(expr)
	if err != nil {
		return nil, err
	}

	var s cron.Schedule = spec
	if j.Offset != "" {
		d, err := time.ParseDuration(j.Offset)
		if err != nil {
			return nil, errors.Wrap(err, "offset")
		}
		s = cron.Offset(spec, d)
		expr += " " + j.Offset
	}
	return expression{Schedule: s, text: expr}, nil
}

func envList(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+m[k])
	}
	return out
}
