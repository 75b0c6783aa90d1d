// Package modlog implements the moderation case ledger.
//
// The ledger owns the audit trail of moderation actions: it assigns
// sequential case numbers per community, posts and edits notification
// messages in the community's mod-log channel, authorizes reason
// amendments, and persists every mutation synchronously through a
// [Store].
package modlog

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/wardenbot/warden/platform"
)

var (
	// ErrNoModLog indicates the community has no mod-log channel.
	ErrNoModLog = errors.New("modlog: no mod log channel configured")
	// ErrNoCase indicates the requested case number does not exist.
	ErrNoCase = errors.New("modlog: no such case")
	// ErrUnauthorized indicates an amendment by an actor who neither
	// owns the case nor holds administrator standing.
	ErrUnauthorized = errors.New("modlog: case belongs to another moderator")
	// ErrNoMessage indicates the case has no bound notification message.
	ErrNoMessage = errors.New("modlog: case has no notification message")
	// ErrMessageGone indicates the notification message was deleted.
	ErrMessageGone = errors.New("modlog: notification message no longer exists")
	// ErrNoAccess indicates the bot cannot read or edit the mod-log
	// channel.
	ErrNoAccess = errors.New("modlog: no access to mod log channel")
)

// Community is the per-community view the ledger consumes.
type Community interface {
	// ID is the community's unique identifier.
	ID() string
	// ModLog is the mod-log channel ID, empty when unconfigured.
	ModLog() string
	// CasesEnabled reports whether cases are recorded for an action.
	CasesEnabled(a Action) bool
	// Prefix is the community's command prefix, used in rendering.
	Prefix() string
}

// Notifier posts and edits case notification messages.
// [platform.Client] satisfies it.
type Notifier interface {
	Send(ctx context.Context, channelID, text string) (string, error)
	Message(ctx context.Context, channelID, messageID string) (*platform.Message, error)
	Edit(ctx context.Context, channelID, messageID, text string) error
}

// Actor is a user attempting to amend a case, together with their
// administrator-or-higher standing as decided by the hierarchy checker.
type Actor struct {
	platform.User
	// Admin indicates administrator-or-higher standing.
	Admin bool
}

// Entry describes a moderation action to record.
type Entry struct {
	// Action is the action kind.
	Action Action
	// Moderator is the acting moderator, nil for externally observed
	// actions with no known actor.
	Moderator *platform.User
	// User is the acted-upon user.
	User platform.User
	// Reason is the free-text reason, empty when not given.
	Reason string
	// Channel is the channel ID for channel-scoped actions.
	Channel string
	// Until is the end of a time-bounded action, zero when unbounded.
	Until time.Time
}

// Ledger is the moderation case ledger for all communities.
//
// All mutating operations serialize on an internal lock, so concurrent
// callers observe ledger writes in a single total order per community.
type Ledger struct {
	store  Store
	notify Notifier
	log    *slog.Logger
	now    func() time.Time

	mu    sync.Mutex
	cases map[string]map[int]*Case
	// last tracks each moderator's most recent case per community for
	// quick follow-up amendment.
	last map[string]map[string]int
}

// Open loads every community's ledger from the store.
func Open(ctx context.Context, store Store, notify Notifier, log *slog.Logger) (*Ledger, error) {
	cases, err := store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("couldn't load case ledger: %w", err)
	}
	if cases == nil {
		cases = make(map[string]map[int]*Case)
	}
	return &Ledger{
		store:  store,
		notify: notify,
		log:    log,
		now:    time.Now,
		cases:  cases,
		last:   make(map[string]map[string]int),
	}, nil
}

// Record creates a case for a completed moderation action.
//
// It is a no-op returning (nil, nil) when case creation is disabled for
// the entry's action kind or the community has no mod-log channel.
// Otherwise the case is numbered, rendered, posted to the mod-log
// channel, and persisted before returning. A failed post is non-fatal:
// the case persists with no bound message.
func (l *Ledger) Record(ctx context.Context, cm Community, e Entry) (*Case, error) {
	if !cm.CasesEnabled(e.Action) {
		return nil, nil
	}
	ch := cm.ModLog()
	if ch == "" {
		return nil, nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	community := cm.ID()
	cases := l.cases[community]
	if cases == nil {
		cases = make(map[int]*Case)
		l.cases[community] = cases
	}
	c := &Case{
		Community: community,
		Seq:       len(cases) + 1,
		Action:    e.Action,
		Created:   l.now(),
		Channel:   e.Channel,
		User:      e.User,
		Moderator: e.Moderator,
		Reason:    e.Reason,
		Until:     e.Until,
	}

	id, err := l.notify.Send(ctx, ch, Message(c, cm.Prefix()))
	if err != nil {
		// The audit trail matters more than the notification.
		l.log.WarnContext(ctx, "couldn't post case",
			slog.Any("err", err),
			slog.String("community", community),
			slog.Int("case", c.Seq),
		)
	} else {
		c.MessageID = id
	}

	cases[c.Seq] = c
	if e.Moderator != nil {
		if l.last[community] == nil {
			l.last[community] = make(map[string]int)
		}
		l.last[community][e.Moderator.ID] = c.Seq
	}
	if err := l.store.Save(ctx, community, cases); err != nil {
		return nil, fmt.Errorf("couldn't persist case #%d for %s: %w", c.Seq, community, err)
	}
	l.log.InfoContext(ctx, "recorded case",
		slog.String("community", community),
		slog.Int("case", c.Seq),
		slog.String("action", e.Action.String()),
		slog.String("user", e.User.ID),
	)
	return c, nil
}

// Amend replaces a case's reason.
//
// The original moderator may always amend their own case. Any other
// actor needs administrator-or-higher standing and is recorded as the
// case's amender; the original moderator stands. An unclaimed case is
// claimed by the amending actor. The ledger is persisted before the
// notification message is edited, so message errors (ErrNoMessage,
// ErrMessageGone, ErrNoAccess) surface with the ledger already updated.
func (l *Ledger) Amend(ctx context.Context, cm Community, n int, actor Actor, reason string) (*Case, error) {
	ch := cm.ModLog()
	if ch == "" {
		return nil, ErrNoModLog
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	community := cm.ID()
	c := l.cases[community][n]
	if c == nil {
		return nil, fmt.Errorf("%w: #%d in %s", ErrNoCase, n, community)
	}

	switch {
	case c.Moderator == nil:
		u := actor.User
		c.Moderator = &u
	case c.Moderator.ID != actor.ID:
		if !actor.Admin {
			return nil, ErrUnauthorized
		}
		u := actor.User
		c.AmendedBy = &u
	}
	if c.Reason != "" {
		c.Modified = l.now()
	}
	c.Reason = reason

	if err := l.store.Save(ctx, community, l.cases[community]); err != nil {
		return nil, fmt.Errorf("couldn't persist case #%d for %s: %w", n, community, err)
	}

	if c.MessageID == "" {
		return nil, ErrNoMessage
	}
	if _, err := l.notify.Message(ctx, ch, c.MessageID); err != nil {
		return nil, messageErr(err)
	}
	if err := l.notify.Edit(ctx, ch, c.MessageID, Message(c, cm.Prefix())); err != nil {
		return nil, messageErr(err)
	}
	return c, nil
}

func messageErr(err error) error {
	switch {
	case errors.Is(err, platform.ErrNotFound):
		return ErrMessageGone
	case errors.Is(err, platform.ErrForbidden):
		return ErrNoAccess
	}
	return err
}

// Reset irreversibly clears every case for a community.
func (l *Ledger) Reset(ctx context.Context, community string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.cases, community)
	delete(l.last, community)
	if err := l.store.Reset(ctx, community); err != nil {
		return fmt.Errorf("couldn't reset cases for %s: %w", community, err)
	}
	l.log.InfoContext(ctx, "reset cases", slog.String("community", community))
	return nil
}

// Last returns the number of the given moderator's most recently
// recorded case in a community.
func (l *Ledger) Last(community, moderatorID string) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	n, ok := l.last[community][moderatorID]
	return n, ok
}

// Case returns a community's case by number.
func (l *Ledger) Case(community string, n int) (*Case, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.cases[community][n]
	return c, ok
}

// Cases returns a community's cases in sequence order.
func (l *Ledger) Cases(community string) []*Case {
	l.mu.Lock()
	defer l.mu.Unlock()
	r := make([]*Case, 0, len(l.cases[community]))
	for _, c := range l.cases[community] {
		r = append(r, c)
	}
	slices.SortFunc(r, func(a, b *Case) int { return a.Seq - b.Seq })
	return r
}
