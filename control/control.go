// Package control is the daemon's reload channel: a unix stream socket on
// which a client writes one line, a user name or the system crontab path,
// and hangs up. Nothing is sent back.
package control

import (
	"strings"

	cron "github.com/kaiserkarel/mcron"
)

// DefaultSentinel is the line that asks for a system crontab reload.
const DefaultSentinel = "/etc/crontab"

const maxRequest = 256

// Request is one decoded reload request.
type Request struct {
	// Identity is the user name, or the sentinel for the system list.
	Identity string
	List     cron.ListTag
}

// Decode turns a received line into a Request. ok is false for blank lines.
func Decode(line, sentinel string) (Request, bool) {
	id := strings.TrimSpace(line)
	if id == "" {
		return Request{}, false
	}
	if id == sentinel {
		return Request{Identity: id, List: cron.System}, true
	}
	return Request{Identity: id, List: cron.User(id)}, true
}
