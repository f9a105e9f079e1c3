package cronerr

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
)

// CLIAdapter handles error presentation and exit code determination.
type CLIAdapter struct {
	program string
	stderr  io.Writer
	logger  zerolog.Logger
	exit    func(int)
	cleanup []func()
}

// NewCLIAdapter creates an adapter printing "program: message" to stderr.
func NewCLIAdapter(program string, logger zerolog.Logger) *CLIAdapter {
	return &CLIAdapter{
		program: program,
		stderr:  os.Stderr,
		logger:  logger,
		exit:    os.Exit,
	}
}

// OnExit registers fn to run before HandleError exits, in registration order.
func (a *CLIAdapter) OnExit(fn func()) *CLIAdapter {
	a.cleanup = append(a.cleanup, fn)
	return a
}

// Format renders err for the user.
func (a *CLIAdapter) Format(err error) string {
	return fmt.Sprintf("%s: %v", a.program, err)
}

// HandleError reports err and exits with its code. A nil err returns.
func (a *CLIAdapter) HandleError(err error) {
	if err == nil {
		return
	}

	code := ExitCode(err)
	a.logger.Debug().
		Str("category", string(CategoryOf(err))).
		Int("exit_code", code).
		Err(err).
		Msg("command failed")

	fmt.Fprintln(a.stderr, a.Format(err))
	for _, fn := range a.cleanup {
		fn()
	}
	a.exit(code)
}
