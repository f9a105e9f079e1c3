package history

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cron "github.com/kaiserkarel/mcron"
)

func open(t *testing.T) *Store {
	s, err := Open(context.Background(), filepath.Join(t.TempDir(), "db", "history.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func run(e *cron.Entry, started time.Time, err error) cron.Log {
	return cron.Log{
		ID:      e.ID + "@" + started.Format(time.RFC3339),
		Entry:   *e,
		Due:     started,
		Started: started,
		Ended:   started.Add(time.Second),
		Output:  []byte("done\n"),
		Err:     err,
	}
}

func TestStore_RecordAndRecent(t *testing.T) {
	s := open(t)
	ctx := context.Background()
	base := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)

	noop := cron.ActionFunc(func(cron.Context) error { return nil })
	sys := cron.NewEntry("0 9 * * *", cron.EveryMinute, noop, "root", cron.System, "backup")
	alice := cron.NewEntry("@hourly", cron.EveryMinute, noop, "alice", cron.User("alice"), "report")

	require.NoError(t, s.Record(ctx, run(sys, base, nil)))
	require.NoError(t, s.Record(ctx, run(alice, base.Add(time.Minute), errors.New("exit status 2"))))
	require.NoError(t, s.Record(ctx, run(sys, base.Add(2*time.Minute), nil)))

	runs, err := s.Recent(ctx, 10, "")
	require.NoError(t, err)
	require.Len(t, runs, 3)
	assert.Equal(t, base.Add(2*time.Minute), runs[0].Started.UTC())
	assert.Equal(t, "user:alice", runs[1].List)
	assert.True(t, runs[1].Failed())
	assert.Equal(t, "exit status 2", runs[1].Err)
	assert.Equal(t, []byte("done\n"), runs[1].Output)
	assert.Equal(t, time.Second, runs[1].Ended.Sub(runs[1].Started))

	runs, err = s.Recent(ctx, 1, "system")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "backup", runs[0].Description)
	assert.False(t, runs[0].Failed())

	n, err := s.Prune(ctx, base.Add(90*time.Second))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(context.Background(), " ")
	assert.Error(t, err)
}

func TestOpen_AppliesPragmas(t *testing.T) {
	s := open(t)
	ctx := context.Background()

	var timeout int
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA busy_timeout").Scan(&timeout))
	assert.Equal(t, 5000, timeout)

	var mode string
	require.NoError(t, s.db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&mode))
	assert.Equal(t, "wal", mode)
}

func TestOpen_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Open(ctx, filepath.Join(t.TempDir(), "history.db"))
	assert.Error(t, err)
}
