package cronerr

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitGeneral, ExitCode(errors.New("plain")))
	assert.Equal(t, ExitAlreadyRunning, ExitCode(New(CategoryAlreadyRunning, "a cron daemon is already running")))
	assert.Equal(t, ExitBind, ExitCode(Wrap(errors.New("address in use"), CategoryBind, "cannot bind")))

	// Classification survives further wrapping.
	wrapped := pkgerrors.Wrap(New(CategoryAccess, "access denied"), "crontab")
	assert.Equal(t, ExitAccessDenied, ExitCode(wrapped))
}

func TestExitCodesAreDistinct(t *testing.T) {
	seen := make(map[int]Category)
	for cat, code := range exitCodes {
		if cat == CategoryInternal {
			continue
		}
		prev, dup := seen[code]
		assert.False(t, dup, "%s and %s share exit code %d", cat, prev, code)
		seen[code] = cat
	}
}

func TestIsMatchesCategory(t *testing.T) {
	err := Wrap(errors.New("exists"), CategoryAlreadyRunning, "pid file present")
	assert.True(t, errors.Is(err, New(CategoryAlreadyRunning, "")))
	assert.False(t, errors.Is(err, New(CategoryBind, "")))
	assert.Nil(t, Wrap(nil, CategoryBind, "unused"))
}

func TestCLIAdapter_HandleError(t *testing.T) {
	var stderr bytes.Buffer
	code := -1
	a := NewCLIAdapter("crontab", zerolog.Nop())
	a.stderr = &stderr
	a.exit = func(c int) { code = c }

	a.HandleError(nil)
	assert.Equal(t, -1, code)

	a.HandleError(New(CategoryPrivilege, "only root can use the -u option"))
	assert.Equal(t, ExitPrivilege, code)
	assert.Equal(t, "crontab: only root can use the -u option\n", stderr.String())
}

func TestCLIAdapter_OnExitRunsBeforeExit(t *testing.T) {
	var (
		stderr bytes.Buffer
		calls  []string
	)
	a := NewCLIAdapter("mcron", zerolog.Nop()).
		OnExit(func() { calls = append(calls, "close log") }).
		OnExit(func() { calls = append(calls, "flush") })
	a.stderr = &stderr
	a.exit = func(c int) { calls = append(calls, fmt.Sprintf("exit %d", c)) }

	a.HandleError(nil)
	assert.Empty(t, calls)

	a.HandleError(New(CategoryAlreadyRunning, "already running"))
	assert.Equal(t, []string{"close log", "flush", "exit 3"}, calls)
}
