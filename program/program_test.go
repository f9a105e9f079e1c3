package program

import (
	"strings"
	"testing"
	"time"

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

func TestCollect_Func(t *testing.T) {
	noop := cron.ActionFunc(func(cron.Context) error { return nil })
	jobs, err := Collect(Func(func(r Registrar) error {
		r.Job(cron.EveryMinute, noop, "every minute")
		r.Job(cron.Offset(cron.EveryMinute, -6*time.Second), noop, "early")
		return nil
	}))
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "every minute", jobs[0].Description)
	assert.Equal(t, "<program>", jobs[0].Expression)
}

func TestCollect_RejectsIncompleteJobs(t *testing.T) {
	noop := cron.ActionFunc(func(cron.Context) error { return nil })
	jobs, err := Collect(Func(func(r Registrar) error {
		r.Job(cron.EveryMinute, noop, "fine")
		r.Job(nil, noop, "broken")
		return nil
	}))
	assert.Error(t, err)
	assert.Nil(t, jobs)
}

func TestDecode(t *testing.T) {
	src := `
env:
  PATH: /usr/bin
jobs:
  - schedule: "0 9 * * *"
    command: /usr/bin/report
    env:
      LANG: C
  - schedule: "30 * * * * *"
    command: date
    description: half past every minute
  - schedule: "@hourly"
    offset: -6s
    command: sync
`
	f, err := Decode(strings.NewReader(src))
	require.NoError(t, err)

	jobs, err := Collect(f)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	cmd, ok := jobs[0].Action.(*cron.Command)
	require.True(t, ok)
	assert.Equal(t, "/usr/bin/report", cmd.Line)
	assert.Equal(t, []string{"PATH=/usr/bin", "LANG=C"}, cmd.Env)
	assert.Equal(t, "0 9 * * *", jobs[0].Expression)
	assert.Equal(t, "/usr/bin/report", jobs[0].Description)
	assert.Equal(t, at("2026-10-18 09:00:00"), jobs[0].Schedule.Next(at("2026-10-18 08:00:00")))

	assert.Equal(t, "half past every minute", jobs[1].Description)
	assert.Equal(t, at("2026-10-18 12:00:30"), jobs[1].Schedule.Next(at("2026-10-18 12:00:00")))

	assert.Equal(t, "@hourly -6s", jobs[2].Expression)
	assert.Equal(t, at("2026-10-18 12:59:54"), jobs[2].Schedule.Next(at("2026-10-18 12:00:00")))
}

func TestDecode_Errors(t *testing.T) {
	for name, src := range map[string]string{
		"unknown key":      "jobs:\n  - schedule: '@daily'\n    command: x\n    retries: 3\n",
		"bad schedule":     "jobs:\n  - schedule: '61 * * * *'\n    command: x\n",
		"missing command":  "jobs:\n  - schedule: '@daily'\n",
		"bad offset":       "jobs:\n  - schedule: '@daily'\n    offset: soon\n    command: x\n",
		"missing schedule": "jobs:\n  - command: x\n",
	} {
		t.Run(name, func(t *testing.T) {
			f, err := Decode(strings.NewReader(src))
			if err == nil {
				_, err = Collect(f)
			}
			assert.Error(t, err)
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	f, err := Decode(strings.NewReader(""))
	require.NoError(t, err)
	jobs, err := Collect(f)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}
