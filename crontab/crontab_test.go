package crontab

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kaiserkarel/mcron/control"
	"github.com/kaiserkarel/mcron/internal/cronerr"
	"github.com/kaiserkarel/mcron/internal/users"
)

var (
	root  = users.User{Name: "root", Home: "/root", UID: 0, GID: 0}
	alice = users.User{Name: "alice", Home: "/home/alice", UID: 1000, GID: 1000}
	bob   = users.User{Name: "bob", Home: "/home/bob", UID: 1001, GID: 1001}

	accounts = users.Static{"root": root, "alice": alice, "bob": bob}
)

type harness struct {
	paths    Paths
	stdout   bytes.Buffer
	stderr   bytes.Buffer
	notified []string
	edits    []string
}

func newHarness(t *testing.T) *harness {
	dir := t.TempDir()
	h := &harness{paths: Paths{
		SpoolDir:  filepath.Join(dir, "tabs"),
		Socket:    filepath.Join(dir, "socket"),
		AllowFile: filepath.Join(dir, "allow"),
		DenyFile:  filepath.Join(dir, "deny"),
		TmpDir:    filepath.Join(dir, "tmp"),
	}}
	require.NoError(t, os.MkdirAll(h.paths.SpoolDir, 0o755))
	require.NoError(t, os.MkdirAll(h.paths.TmpDir, 0o755))
	return h
}

// client returns a client whose editor writes the queued edits in turn.
func (h *harness) client(t *testing.T, invoker users.User, stdin string) *Client {
	return New(h.paths, invoker, accounts,
		WithIO(strings.NewReader(stdin), &h.stdout, &h.stderr),
		WithEditor(func(_ context.Context, path string) error {
			require.NotEmpty(t, h.edits, "editor opened more often than expected")
			next := h.edits[0]
			h.edits = h.edits[1:]
			return os.WriteFile(path, []byte(next), 0o600)
		}),
		WithNotifier(func(_ context.Context, socket, identity string) error {
			assert.Equal(t, h.paths.Socket, socket)
			h.notified = append(h.notified, identity)
			return nil
		}),
	)
}

func (h *harness) install(t *testing.T, name, content string) {
	require.NoError(t, os.WriteFile(filepath.Join(h.paths.SpoolDir, name), []byte(content), 0o600))
}

func (h *harness) installed(t *testing.T, name string) string {
	data, err := os.ReadFile(filepath.Join(h.paths.SpoolDir, name))
	require.NoError(t, err)
	return string(data)
}

func TestNewRequest(t *testing.T) {
	req, err := NewRequest(false, true, false, "", "bob")
	require.NoError(t, err)
	assert.Equal(t, Request{Op: OpList, User: "bob"}, req)

	req, err = NewRequest(false, false, false, "-", "")
	require.NoError(t, err)
	assert.Equal(t, OpReplace, req.Op)

	for _, bad := range [][3]bool{{true, true, false}, {false, true, true}, {true, true, true}} {
		_, err := NewRequest(bad[0], bad[1], bad[2], "", "")
		assert.Equal(t, cronerr.ExitUsage, cronerr.ExitCode(err))
	}
	_, err = NewRequest(false, false, false, "", "")
	assert.Equal(t, cronerr.ExitUsage, cronerr.ExitCode(err))
	_, err = NewRequest(true, false, false, "file", "")
	assert.Equal(t, cronerr.ExitUsage, cronerr.ExitCode(err))
}

func TestAuthorize(t *testing.T) {
	h := newHarness(t)

	_, err := h.client(t, alice, "").Authorize("bob")
	assert.Equal(t, cronerr.ExitPrivilege, cronerr.ExitCode(err))

	u, err := h.client(t, alice, "").Authorize("alice")
	require.NoError(t, err)
	assert.Equal(t, alice, u)

	u, err = h.client(t, root, "").Authorize("bob")
	require.NoError(t, err)
	assert.Equal(t, bob, u)

	_, err = h.client(t, root, "").Authorize("mallory")
	assert.Equal(t, cronerr.ExitUsage, cronerr.ExitCode(err))
}

func TestAuthorize_AllowDeny(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, os.WriteFile(h.paths.DenyFile, []byte("bob\n"), 0o644))

	_, err := h.client(t, bob, "").Authorize("")
	assert.Equal(t, cronerr.ExitAccessDenied, cronerr.ExitCode(err))
	_, err = h.client(t, alice, "").Authorize("")
	assert.NoError(t, err)

	// An allow file takes precedence: only listed users get in.
	require.NoError(t, os.WriteFile(h.paths.AllowFile, []byte("root\nbob\n"), 0o644))
	_, err = h.client(t, bob, "").Authorize("")
	assert.NoError(t, err)
	_, err = h.client(t, alice, "").Authorize("")
	assert.Equal(t, cronerr.ExitAccessDenied, cronerr.ExitCode(err))
}

func TestList(t *testing.T) {
	h := newHarness(t)
	c := h.client(t, alice, "")

	require.NoError(t, c.Run(context.Background(), Request{Op: OpList}))
	assert.Equal(t, "No crontab for alice exists.\n", h.stderr.String())

	h.install(t, "alice", "0 9 * * * report\n")
	require.NoError(t, c.Run(context.Background(), Request{Op: OpList}))
	assert.Equal(t, "0 9 * * * report\n", h.stdout.String())
}

func TestRemove(t *testing.T) {
	h := newHarness(t)
	h.install(t, "bob", "0 9 * * * report\n")

	require.NoError(t, h.client(t, root, "").Run(context.Background(), Request{Op: OpRemove, User: "bob"}))
	_, err := os.Stat(filepath.Join(h.paths.SpoolDir, "bob"))
	assert.True(t, os.IsNotExist(err))
	assert.Equal(t, []string{"bob"}, h.notified)
}

func TestReplace(t *testing.T) {
	h := newHarness(t)
	src := filepath.Join(t.TempDir(), "new")
	require.NoError(t, os.WriteFile(src, []byte("@daily backup\n"), 0o644))

	require.NoError(t, h.client(t, alice, "").Run(context.Background(), Request{Op: OpReplace, File: src}))
	assert.Equal(t, "@daily backup\n", h.installed(t, "alice"))
	assert.Equal(t, []string{"alice"}, h.notified)

	require.NoError(t, h.client(t, alice, "*/5 * * * * poll\n").Replace(context.Background(), alice, "-"))
	assert.Equal(t, "*/5 * * * * poll\n", h.installed(t, "alice"))

	entries, err := os.ReadDir(h.paths.SpoolDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temporary files left behind")
}

func TestReplace_InvalidLeavesInstalled(t *testing.T) {
	h := newHarness(t)
	h.install(t, "alice", "0 9 * * * report\n")

	err := h.client(t, alice, "0 99 * * * broken\n").Replace(context.Background(), alice, "-")
	assert.Equal(t, cronerr.ExitConfig, cronerr.ExitCode(err))
	assert.Equal(t, "0 9 * * * report\n", h.installed(t, "alice"))
	assert.Empty(t, h.notified)
}

func TestEdit_Success(t *testing.T) {
	h := newHarness(t)
	h.install(t, "alice", "0 9 * * * report\n")
	h.edits = []string{"0 9 * * * report\n0 10 * * * more\n"}

	require.NoError(t, h.client(t, alice, "").Run(context.Background(), Request{Op: OpEdit}))
	assert.Equal(t, "0 9 * * * report\n0 10 * * * more\n", h.installed(t, "alice"))
	assert.Equal(t, []string{"alice"}, h.notified)

	scratch, err := os.ReadDir(h.paths.TmpDir)
	require.NoError(t, err)
	assert.Empty(t, scratch)
}

func TestEdit_RetryThenSucceed(t *testing.T) {
	h := newHarness(t)
	h.edits = []string{"garbage\n", "@hourly fixed\n"}

	require.NoError(t, h.client(t, alice, "maybe\ny\n").Edit(context.Background(), alice))
	assert.Equal(t, "@hourly fixed\n", h.installed(t, "alice"))
	assert.Contains(t, h.stderr.String(), "line 1")
	assert.Equal(t, 2, strings.Count(h.stderr.String(), "Edit again?"))
}

func TestEdit_AbandonLeavesInstalledByteIdentical(t *testing.T) {
	h := newHarness(t)
	original := "# keep me\r\nMAILTO=alice\n0 9 * * *\treport  \n"
	h.install(t, "alice", original)
	before, err := os.Stat(filepath.Join(h.paths.SpoolDir, "alice"))
	require.NoError(t, err)

	h.edits = []string{"0 9 * * * report\n61 * * * * broken\n"}
	require.NoError(t, h.client(t, alice, "n\n").Edit(context.Background(), alice))

	assert.Equal(t, original, h.installed(t, "alice"))
	after, err := os.Stat(filepath.Join(h.paths.SpoolDir, "alice"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(before, after))
	assert.Contains(t, h.stderr.String(), "Crontab not changed")
	assert.Empty(t, h.notified)
}

func TestSignal_DaemonNotRunning(t *testing.T) {
	h := newHarness(t)
	c := New(h.paths, alice, accounts,
		WithIO(strings.NewReader("@daily x\n"), &h.stdout, &h.stderr),
		WithNotifier(control.Notify),
	)

	require.NoError(t, c.Replace(context.Background(), alice, "-"))
	assert.Equal(t, "Warning: a cron daemon is not running.\n", h.stderr.String())
}
