package cron

import (
	"bytes"
	"os"
	"os/exec"
	"strings"
	"syscall"

	"github.com/pkg/errors"
)

// DefaultShell runs Command lines.
const DefaultShell = "/bin/sh"

// maxOutput bounds the output kept from one run.
const maxOutput = 64 << 10

// Action is the work an entry performs when it fires. Output is reported
// alongside the result; a failing action is reported, never retried.
type Action interface {
	Run(ctx Context) (output []byte, err error)
	String() string
}

// ActionFunc adapts an in-process function to an Action.
type ActionFunc func(ctx Context) error

// Run calls f.
func (f ActionFunc) Run(ctx Context) ([]byte, error) { return nil, f(ctx) }

func (f ActionFunc) String() string { return "<func>" }

// Command is a shell command line run as a child process.
type Command struct {
	Line string

	// Input is written to the command's standard input.
	Input string

	// Env holds KEY=VALUE pairs layered over the daemon's environment.
	Env []string

	Dir   string
	Shell string

	// Credential switches the child to another account. Nil runs as the
	// daemon's own user.
	Credential *syscall.Credential
}

// Run executes the command and waits for it, returning its combined output.
func (c *Command) Run(ctx Context) ([]byte, error) {
	shell := c.Shell
	if shell == "" {
		shell = DefaultShell
	}

	cmd := exec.CommandContext(ctx, shell, "-c", c.Line)
	cmd.Dir = c.Dir
	cmd.Env = append(os.Environ(), c.Env...)
	if c.Input != "" {
		cmd.Stdin = strings.NewReader(c.Input)
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true, Credential: c.Credential}

	out := &limitedBuffer{limit: maxOutput}
	cmd.Stdout = out
	cmd.Stderr = out

	if err := cmd.Run(); err != nil {
		return out.Bytes(), errors.Wrapf(err, "run %q", c.Line)
	}
	return out.Bytes(), nil
}

func (c *Command) String() string { return c.Line }

// limitedBuffer drops writes beyond limit while reporting them as written,
// so a chatty child never blocks on a full pipe.
type limitedBuffer struct {
	bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.Len(); room > 0 {
		if len(p) > room {
			b.Buffer.Write(p[:room])
		} else {
			b.Buffer.Write(p)
		}
	}
	return len(p), nil
}

var _ Action = (*Command)(nil)
var _ Action = ActionFunc(nil)
