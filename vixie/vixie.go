// Package vixie parses the declarative crontab dialect: one job per line,
// five calendar fields or a descriptor, then the command.
//
//	# comment
//	MAILTO=""
//	SHELL=/bin/bash
//	*/5 * * * *   /usr/bin/backup --quick
//	@daily        echo hello%world
//
// System crontabs carry a user name between the schedule and the command.
package vixie

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"

	cron "github.com/kaiserkarel/mcron"
)

const maxLine = 64 << 10

// TimezoneVar selects the zone later schedules are evaluated in.
const TimezoneVar = "CRON_TZ"

// Reboot is the descriptor for jobs run once at boot.
const Reboot = "@reboot"

// Options controls how a source is read.
type Options struct {
	// System expects a user field after the schedule.
	System bool
}

// Job is one parsed line.
type Job struct {
	Line       int
	Expression string
	// Schedule is nil for Reboot jobs.
	Schedule cron.Schedule
	// User is set for system crontab lines only.
	User    string
	Command string
	// Input is fed to the command's standard input.
	Input string
	// Env holds the assignments seen above this line, in order.
	Env []string
}

// IsReboot reports whether the job runs at boot instead of on a schedule.
func (j Job) IsReboot() bool { return j.Schedule == nil }

// Lookup returns the value of name as seen by the job, and whether it was set.
func (j Job) Lookup(name string) (string, bool) {
	for i := len(j.Env) - 1; i >= 0; i-- {
		k, v, _ := strings.Cut(j.Env[i], "=")
		if k == name {
			return v, true
		}
	}
	return "", false
}

// ParseError locates a malformed line.
type ParseError struct {
	Line int
	Text string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d: %v: %q", e.Line, e.Err, e.Text)
}

func (e *ParseError) Unwrap() error { return e.Err }

// Validate parses r and discards the result.
func Validate(r io.Reader, opts Options) error {
	_, err := Parse(r, opts)
	return err
}

// Parse reads a whole source. The first malformed line aborts parsing and no
// jobs are returned.
func Parse(r io.Reader, opts Options) ([]Job, error) {
	var (
		jobs []Job
		env  []string
		n    int
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 4096), maxLine)
	for sc.Scan() {
		n++
		raw := sc.Text()
		line := strings.TrimSpace(raw)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !isJobLine(line) {
			kv, err := parseEnv(line)
			if err != nil {
				return nil, &ParseError{Line: n, Text: raw, Err: err}
			}
			env = append(env, kv)
			continue
		}

		job, err := parseJob(line, opts, env)
		if err != nil {
			return nil, &ParseError{Line: n, Text: raw, Err: err}
		}
		job.Line = n
		jobs = append(jobs, job)
	}
	if err := sc.Err(); err != nil {
		return nil, errors.Wrap(err, "read crontab")
	}
	return jobs, nil
}

func isJobLine(line string) bool {
	switch c := line[0]; {
	case c == '@', c == '*':
		return true
	case c >= '0' && c <= '9':
		return true
	}
	return false
}

func parseEnv(line string) (string, error) {
	name, value, ok := strings.Cut(line, "=")
	name = strings.TrimSpace(name)
	if !ok || name == "" || strings.ContainsAny(name, " \t") {
		return "", errors.New("neither a job nor an environment assignment")
	}

	m, err := godotenv.Unmarshal(name + "=" + strings.TrimSpace(value))
	if err != nil {
		return "", errors.Wrap(err, "bad environment assignment")
	}
	return name + "=" + m[name], nil
}

func parseJob(line string, opts Options, env []string) (Job, error) {
	n := 5
	if strings.HasPrefix(line, "@") {
		n = 1
	}
	if opts.System {
		n++
	}

	fields, rest := splitFields(line, n)
	if len(fields) < n || rest == "" {
		return Job{}, errors.New("missing command")
	}

	job := Job{Env: append([]string(nil), env...)}
	if opts.System {
		job.User = fields[n-1]
		fields = fields[:n-1]
	}
	job.Expression = strings.Join(fields, " ")

	expr := job.Expression
	if tz, ok := job.Lookup(TimezoneVar); ok && tz != "" {
		expr = TimezoneVar + "=" + tz + " " + expr
	}
	if job.Expression != Reboot {
		schedule, err := cron.ParseSpec(expr)
		if err != nil {
			return Job{}, err
		}
		job.Schedule = schedule
	}
	job.Command, job.Input = splitPercent(rest)
	if strings.TrimSpace(job.Command) == "" {
		return Job{}, errors.New("missing command")
	}
	return job, nil
}

// splitFields returns the first n whitespace separated fields and the
// remainder with its inner spacing intact.
func splitFields(line string, n int) ([]string, string) {
	var fields []string
	rest := line
	for len(fields) < n {
		rest = strings.TrimLeft(rest, " \t")
		if rest == "" {
			break
		}
		end := strings.IndexAny(rest, " \t")
		if end < 0 {
			end = len(rest)
		}
		fields = append(fields, rest[:end])
		rest = rest[end:]
	}
	return fields, strings.TrimSpace(rest)
}

// splitPercent applies the percent convention: the first unescaped % ends
// the command and starts its input, later ones become newlines and \% is a
// literal percent sign.
func splitPercent(s string) (command, input string) {
	var (
		cmd, in strings.Builder
		out     = &cmd
		inInput bool
	)
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '\\' && i+1 < len(s) && s[i+1] == '%':
			out.WriteByte('%')
			i++
		case s[i] == '%' && !inInput:
			inInput = true
			out = &in
		case s[i] == '%':
			out.WriteByte('\n')
		default:
			out.WriteByte(s[i])
		}
	}
	if inInput {
		in.WriteByte('\n')
	}
	return cmd.String(), in.String()
}
