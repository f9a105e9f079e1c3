package vixie

import (
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cron "github.com/kaiserkarel/mcron"
)

func at(s string) time.Time {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
	if err != nil {
		panic(err)
	}
	return t
}

func TestParse_User(t *testing.T) {
	src := `
# nightly jobs
MAILTO=""
0 9 * * *    /usr/bin/report   --daily
PATH = /usr/local/bin:/usr/bin
@hourly      echo "tick"
`
	jobs, err := Parse(strings.NewReader(src), Options{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.Equal(t, 4, jobs[0].Line)
	assert.Equal(t, "0 9 * * *", jobs[0].Expression)
	assert.Equal(t, "/usr/bin/report   --daily", jobs[0].Command)
	assert.Equal(t, []string{"MAILTO="}, jobs[0].Env)
	assert.Equal(t, at("2026-10-18 09:00:00"), jobs[0].Schedule.Next(at("2026-10-18 08:59:00")))

	// Assignments apply to later jobs only.
	assert.Equal(t, "@hourly", jobs[1].Expression)
	path, ok := jobs[1].Lookup("PATH")
	assert.True(t, ok)
	assert.Equal(t, "/usr/local/bin:/usr/bin", path)
	_, ok = jobs[0].Lookup("PATH")
	assert.False(t, ok)
}

func TestParse_System(t *testing.T) {
	// A user crontab line lacks the user field.
	_, err := Parse(strings.NewReader("@daily backup\n"), Options{System: true})
	require.Error(t, err)

	jobs, err := Parse(strings.NewReader("17 * * * * root cd / && run-parts /etc/cron.hourly\n"), Options{System: true})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "root", jobs[0].User)
	assert.Equal(t, "cd / && run-parts /etc/cron.hourly", jobs[0].Command)
}

func TestParse_Percent(t *testing.T) {
	jobs, err := Parse(strings.NewReader(`* * * * * mail -s "50\% off" bob%Hello%World`), Options{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, `mail -s "50% off" bob`, jobs[0].Command)
	assert.Equal(t, "Hello\nWorld\n", jobs[0].Input)
}

func TestParse_Timezone(t *testing.T) {
	jobs, err := Parse(strings.NewReader("CRON_TZ=America/New_York\n0 9 * * * date\n"), Options{})
	require.NoError(t, err)
	require.Len(t, jobs, 1)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)
	next := jobs[0].Schedule.Next(at("2026-10-18 00:00:00"))
	assert.Equal(t, time.Date(2026, 10, 18, 9, 0, 0, 0, ny).UTC(), next.UTC())
}

func TestParse_FailFast(t *testing.T) {
	tests := []struct {
		name string
		src  string
		line int
	}{
		{"bad minute", "0 9 * * * ok\n61 * * * * broken\n", 2},
		{"missing command", "0 9 * * *\n", 1},
		{"garbage", "\n\nhello world\n", 3},
		{"unsatisfiable", "0 0 30 2 * never\n", 1},
		{"only percent", "* * * * * %input\n", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jobs, err := Parse(strings.NewReader(tt.src), Options{})
			assert.Nil(t, jobs)

			var pe *ParseError
			require.True(t, errors.As(err, &pe), err)
			assert.Equal(t, tt.line, pe.Line)
		})
	}

	err := Validate(strings.NewReader("0 0 30 2 * never\n"), Options{})
	assert.True(t, errors.Is(err, cron.ErrUnsatisfiable), err)
}

func TestParse_Reboot(t *testing.T) {
	jobs, err := Parse(strings.NewReader("@reboot /usr/bin/warm-cache\n0 9 * * * report\n"), Options{})
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	assert.True(t, jobs[0].IsReboot())
	assert.Equal(t, Reboot, jobs[0].Expression)
	assert.Equal(t, "/usr/bin/warm-cache", jobs[0].Command)
	assert.False(t, jobs[1].IsReboot())

	jobs, err = Parse(strings.NewReader("@reboot root /sbin/setup\n"), Options{System: true})
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "root", jobs[0].User)

	_, err = Parse(strings.NewReader("@reboot\n"), Options{})
	require.Error(t, err)
}

func TestParse_Empty(t *testing.T) {
	jobs, err := Parse(strings.NewReader("# nothing\n\n   \n"), Options{})
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
