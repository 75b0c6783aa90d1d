// Package dedup suppresses duplicate audit records for bot-caused
// events.
//
// The platform delivers bans and unbans as asynchronous notifications
// whose payloads are indistinguishable from externally-initiated ones.
// A command that bans marks the guard first; the event handler then
// skips recording a second case for the very event the bot caused.
package dedup

import (
	"sync"
	"time"

	"github.com/wardenbot/warden/modlog"
)

// TTL is the default lifetime of a mark. Platform notifications for a
// bot-caused action arrive well within it.
const TTL = time.Second

type key struct {
	user      string
	community string
	action    modlog.Action
}

// Guard is a short-lived marker set. Marks expire on their own; the
// guard never persists across restarts.
type Guard struct {
	mu    sync.Mutex
	marks map[key]time.Time
	now   func() time.Time
	after func(time.Duration, func())
}

// New returns an empty guard.
func New() *Guard {
	return &Guard{
		marks: make(map[key]time.Time),
		now:   time.Now,
		after: func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Mark records that the bot just performed an action on a user in a
// community. The mark expires after ttl; a non-positive ttl uses [TTL].
// Marking an already marked triple extends the mark.
func (g *Guard) Mark(userID, communityID string, action modlog.Action, ttl time.Duration) {
	if ttl <= 0 {
		ttl = TTL
	}
	k := key{userID, communityID, action}
	deadline := g.now().Add(ttl)
	g.mu.Lock()
	if d, ok := g.marks[k]; !ok || deadline.After(d) {
		g.marks[k] = deadline
	}
	g.mu.Unlock()
	// The deferred removal takes out only the deadline it scheduled;
	// a later Mark for the same triple survives it.
	g.after(ttl, func() {
		g.mu.Lock()
		if d, ok := g.marks[k]; ok && !d.After(deadline) {
			delete(g.marks, k)
		}
		g.mu.Unlock()
	})
}

// Marked reports whether an unexpired mark exists for the triple.
// Expired entries encountered on lookup are evicted.
func (g *Guard) Marked(userID, communityID string, action modlog.Action) bool {
	k := key{userID, communityID, action}
	g.mu.Lock()
	defer g.mu.Unlock()
	d, ok := g.marks[k]
	if !ok {
		return false
	}
	if !g.now().Before(d) {
		delete(g.marks, k)
		return false
	}
	return true
}
