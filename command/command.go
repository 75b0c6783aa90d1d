// Package command implements the chat command layer.
//
// Commands receive the bot state through [Warden] and the parsed
// invocation through [Invocation]. Dispatch, permission gating, and
// invocation-message cleanup happen upstream; commands assume the
// caller already holds the level the command table demands.
package command

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"strings"

	"github.com/wardenbot/warden/community"
	"github.com/wardenbot/warden/dedup"
	"github.com/wardenbot/warden/filter"
	"github.com/wardenbot/warden/hierarchy"
	"github.com/wardenbot/warden/metrics"
	"github.com/wardenbot/warden/modlog"
	"github.com/wardenbot/warden/names"
	"github.com/wardenbot/warden/platform"
)

// SettingsStore persists runtime settings changes across restarts.
type SettingsStore interface {
	Put(ctx context.Context, communityID string, s community.Settings) error
	PutIgnores(ctx context.Context, communityID string, v community.Ignores) error
}

// Warden is the bot state as is visible to commands.
type Warden struct {
	Log     *slog.Logger
	Owner   string
	Client  platform.Client
	Ledger  *modlog.Ledger
	Guard   *dedup.Guard
	Rank    *hierarchy.Checker
	Filter  *filter.List
	Names   *names.History
	Store   SettingsStore
	Metrics metrics.Metrics
}

// Invocation is a command invocation. An Invocation and its fields must
// not be modified or retained by any command.
type Invocation struct {
	// Community is the community where the invocation occurred.
	Community *community.Community
	// Message is the message which triggered the invocation.
	Message *platform.Message
	// Actor is the invoking member with their roles resolved.
	Actor *platform.Member
	// Args is the parsed arguments to the command.
	Args map[string]string
}

// Func executes a command.
type Func func(ctx context.Context, w *Warden, call *Invocation)

// reply sends text to the invoking channel, subject to the community's
// rate limit. Replies in excess of the limit are dropped.
func (w *Warden) reply(ctx context.Context, call *Invocation, text string) {
	if !call.Community.Rate.Allow() {
		return
	}
	if _, err := w.Client.Send(ctx, call.Message.ChannelID, text); err != nil {
		w.Log.ErrorContext(ctx, "couldn't reply",
			slog.Any("err", err),
			slog.String("in", call.Community.ID()),
		)
	}
}

// confirm replies with a flavor emote appended.
func (w *Warden) confirm(ctx context.Context, call *Invocation, text string) {
	if e := call.Community.Emotes.Pick(rand.Uint32()); e != "" {
		text = strings.TrimSpace(text + " " + e)
	}
	w.reply(ctx, call, text)
}

// fail reports a platform failure to the invoking channel, translating
// the sentinel errors into something a moderator can act on.
func (w *Warden) fail(ctx context.Context, call *Invocation, err error, did string) {
	switch {
	case errors.Is(err, platform.ErrForbidden):
		w.reply(ctx, call, "I'm not allowed to do that.")
	case errors.Is(err, platform.ErrNotFound):
		w.reply(ctx, call, "I couldn't find that user.")
	default:
		w.Log.ErrorContext(ctx, "couldn't "+did,
			slog.Any("err", err),
			slog.String("in", call.Community.ID()),
		)
		w.reply(ctx, call, "Something went wrong. Check my logs.")
	}
}

// actor is the invoking member as a ledger actor.
func (w *Warden) actor(call *Invocation) modlog.Actor {
	return modlog.Actor{
		User:  call.Actor.User,
		Admin: w.Rank.Admin(call.Community, call.Actor),
	}
}

// subject resolves the member named by call.Args["user"] and verifies
// the actor may act on them. A nil member means the command should
// stop; the reply has already been sent.
func (w *Warden) subject(ctx context.Context, call *Invocation) *platform.Member {
	id := ParseUser(call.Args["user"])
	if id == "" {
		w.reply(ctx, call, "Tell me who, by mention or ID.")
		return nil
	}
	if id == call.Actor.ID {
		w.reply(ctx, call, "I won't let you do that to yourself.")
		return nil
	}
	m, err := w.Client.Member(ctx, call.Community.ID(), id)
	if err != nil {
		w.fail(ctx, call, err, "resolve member")
		return nil
	}
	if !w.Rank.Allowed(call.Community, call.Actor, m) {
		w.reply(ctx, call, "You can't act on someone ranked at or above you.")
		return nil
	}
	return m
}

// record creates a ledger case for a completed action and counts it.
func (w *Warden) record(ctx context.Context, call *Invocation, e modlog.Entry) {
	w.Metrics.ActionsCount.Observe(1, e.Action.String())
	c, err := w.Ledger.Record(ctx, call.Community, e)
	if err != nil {
		w.Log.ErrorContext(ctx, "couldn't record case",
			slog.Any("err", err),
			slog.String("in", call.Community.ID()),
		)
		return
	}
	if c != nil {
		w.Metrics.CasesCount.Observe(1)
	}
}

// persist saves the community's current settings.
func (w *Warden) persist(ctx context.Context, call *Invocation) {
	err := w.Store.Put(ctx, call.Community.ID(), call.Community.Settings())
	if err != nil {
		w.Log.ErrorContext(ctx, "couldn't persist settings",
			slog.Any("err", err),
			slog.String("in", call.Community.ID()),
		)
	}
}

// persistIgnores saves the community's current ignore state.
func (w *Warden) persistIgnores(ctx context.Context, call *Invocation) {
	err := w.Store.PutIgnores(ctx, call.Community.ID(), call.Community.Ignores())
	if err != nil {
		w.Log.ErrorContext(ctx, "couldn't persist ignores",
			slog.Any("err", err),
			slog.String("in", call.Community.ID()),
		)
	}
}

// ParseUser extracts a user ID from a mention like <@123> or <@!123>,
// or returns a bare ID unchanged.
func ParseUser(arg string) string {
	arg = strings.TrimSpace(arg)
	if rest, ok := strings.CutPrefix(arg, "<@"); ok {
		rest = strings.TrimPrefix(rest, "!")
		rest, ok = strings.CutSuffix(rest, ">")
		if !ok {
			return ""
		}
		arg = rest
	}
	for _, r := range arg {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return arg
}

// ParseChannel extracts a channel ID from a mention like <#123>, or
// returns a bare ID unchanged.
func ParseChannel(arg string) string {
	arg = strings.TrimSpace(arg)
	if rest, ok := strings.CutPrefix(arg, "<#"); ok {
		rest, ok = strings.CutSuffix(rest, ">")
		if !ok {
			return ""
		}
		arg = rest
	}
	for _, r := range arg {
		if r < '0' || r > '9' {
			return ""
		}
	}
	return arg
}
