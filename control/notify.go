package control

import (
	"context"
	"net"
	"os"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/pkg/errors"
)

// ErrNotRunning is returned by Notify when no daemon listens on the socket.
var ErrNotRunning = errors.New("a cron daemon is not running")

// Retries is how often Notify retries a refused connection.
var Retries uint64 = 3

// Notify asks the daemon listening on path to reload identity's list.
func Notify(ctx context.Context, path, identity string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return ErrNotRunning
	}

	var d net.Dialer
	op := func() error {
		conn, err := d.DialContext(ctx, "unix", path)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		defer conn.Close()

		if err := conn.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
			return backoff.Permanent(err)
		}
		_, err = conn.Write([]byte(identity + "\n"))
		if err != nil {
			return backoff.Permanent(errors.Wrap(err, "write request"))
		}
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), Retries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		var opErr *net.OpError
		if errors.As(err, &opErr) && opErr.Op == "dial" {
			return ErrNotRunning
		}
		return err
	}
	return nil
}
