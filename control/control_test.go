package control

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cron "github.com/kaiserkarel/mcron"
	"github.com/kaiserkarel/mcron/internal/cronerr"
)

func socketPath(t *testing.T) string {
	return filepath.Join(t.TempDir(), "s")
}

func serve(t *testing.T, s *Server, h Handler) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Serve(ctx, h) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(2 * time.Second):
			t.Error("server did not stop")
		}
	})
}

func next(t *testing.T, ch <-chan Request) Request {
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("no request received")
		return Request{}
	}
}

func TestDecode(t *testing.T) {
	r, ok := Decode("alice\n", DefaultSentinel)
	require.True(t, ok)
	assert.Equal(t, cron.User("alice"), r.List)

	r, ok = Decode("/etc/crontab\n", DefaultSentinel)
	require.True(t, ok)
	assert.Equal(t, cron.System, r.List)

	_, ok = Decode("  \n", DefaultSentinel)
	assert.False(t, ok)
}

func TestServer_Notify(t *testing.T) {
	path := socketPath(t)
	s, err := Listen(path)
	require.NoError(t, err)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o666), info.Mode().Perm())

	got := make(chan Request, 2)
	serve(t, s, func(_ context.Context, r Request) error {
		got <- r
		return nil
	})

	require.NoError(t, Notify(context.Background(), path, "alice"))
	assert.Equal(t, Request{Identity: "alice", List: cron.User("alice")}, next(t, got))

	require.NoError(t, Notify(context.Background(), path, DefaultSentinel))
	assert.Equal(t, cron.System, next(t, got).List)
}

func TestServer_OneRequestAtATime(t *testing.T) {
	path := socketPath(t)
	s, err := Listen(path)
	require.NoError(t, err)

	got := make(chan Request, 3)
	release := make(chan struct{})
	serve(t, s, func(_ context.Context, r Request) error {
		got <- r
		<-release
		return nil
	})

	for _, id := range []string{"alice", "bob", "carol"} {
		require.NoError(t, Notify(context.Background(), path, id))
	}

	assert.Equal(t, "alice", next(t, got).Identity)
	select {
	case r := <-got:
		t.Fatalf("%s handled while alice still in progress", r.Identity)
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	assert.Equal(t, "bob", next(t, got).Identity)
	assert.Equal(t, "carol", next(t, got).Identity)
}

func TestServer_HandlerErrorKeepsServing(t *testing.T) {
	path := socketPath(t)
	s, err := Listen(path)
	require.NoError(t, err)

	got := make(chan Request, 2)
	serve(t, s, func(_ context.Context, r Request) error {
		got <- r
		return assert.AnError
	})

	require.NoError(t, Notify(context.Background(), path, "alice"))
	next(t, got)
	require.NoError(t, Notify(context.Background(), path, "bob"))
	assert.Equal(t, "bob", next(t, got).Identity)
}

func TestListen_StaleSocket(t *testing.T) {
	path := socketPath(t)
	ln, err := net.Listen("unix", path)
	require.NoError(t, err)
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	require.NoError(t, ln.Close())

	// Nobody answers on the leftover file.
	assert.ErrorIs(t, Notify(context.Background(), path, "alice"), ErrNotRunning)

	s, err := Listen(path)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestListen_InUse(t *testing.T) {
	path := socketPath(t)
	s, err := Listen(path)
	require.NoError(t, err)
	defer s.Close()

	_, err = Listen(path)
	assert.Equal(t, cronerr.ExitBind, cronerr.ExitCode(err))
}

func TestNotify_NoSocket(t *testing.T) {
	err := Notify(context.Background(), socketPath(t), "alice")
	assert.ErrorIs(t, err, ErrNotRunning)
}
