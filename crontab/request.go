package crontab

import (
	"github.com/kaiserkarel/mcron/internal/cronerr"
)

// Op is what the client was asked to do.
type Op int

const (
	OpReplace Op = iota
	OpEdit
	OpList
	OpRemove
)

func (o Op) String() string {
	switch o {
	case OpReplace:
		return "replace"
	case OpEdit:
		return "edit"
	case OpList:
		return "list"
	case OpRemove:
		return "remove"
	}
	return "unknown"
}

// Request is a validated invocation.
type Request struct {
	Op Op
	// User is the -u target; empty means the invoking user.
	User string
	// File is the replacement source for OpReplace; "-" is standard input.
	File string
}

// NewRequest checks the flag combination: at most one of edit, list and
// remove, and a file only when none of them is given.
func NewRequest(edit, list, remove bool, file, user string) (Request, error) {
	n := 0
	req := Request{Op: OpReplace, User: user, File: file}
	for _, f := range []struct {
		set bool
		op  Op
	}{{edit, OpEdit}, {list, OpList}, {remove, OpRemove}} {
		if f.set {
			n++
			req.Op = f.op
		}
	}

	switch {
	case n > 1:
		return Request{}, cronerr.New(cronerr.CategoryUsage, "only one of -e, -l or -r can be used")
	case n == 1 && file != "":
		return Request{}, cronerr.New(cronerr.CategoryUsage, "a file cannot be given with -e, -l or -r")
	case n == 0 && file == "":
		return Request{}, cronerr.New(cronerr.CategoryUsage, "give a file, or one of -e, -l or -r")
	}
	return req, nil
}
