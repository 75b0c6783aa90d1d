package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/wardenbot/warden/dedup"
	"github.com/wardenbot/warden/modlog"
	"github.com/wardenbot/warden/platform"
)

// Kick removes a member from the community.
func Kick(ctx context.Context, w *Warden, call *Invocation) {
	m := w.subject(ctx, call)
	if m == nil {
		return
	}
	cm := call.Community
	if err := w.Client.Kick(ctx, cm.ID(), m.ID, call.Args["reason"]); err != nil {
		w.fail(ctx, call, err, "kick")
		return
	}
	w.Log.InfoContext(ctx, "kicked",
		slog.String("in", cm.ID()),
		slog.String("by", call.Actor.ID),
		slog.String("user", m.ID),
	)
	w.record(ctx, call, modlog.Entry{
		Action:    modlog.Kick,
		Moderator: &call.Actor.User,
		User:      m.User,
		Reason:    call.Args["reason"],
	})
	w.confirm(ctx, call, "Done. Bye bye!")
}

// Ban bans a member, purging up to seven days of their messages.
//
// The days argument is lenient the way moderators type it: a leading
// non-numeric word becomes the start of the reason instead.
func Ban(ctx context.Context, w *Warden, call *Invocation) {
	m := w.subject(ctx, call)
	if m == nil {
		return
	}
	days, reason := 0, call.Args["reason"]
	if d := call.Args["days"]; d != "" {
		n, err := strconv.Atoi(d)
		switch {
		case err != nil:
			reason = strings.TrimSpace(d + " " + reason)
		case n < 0 || n > 7:
			w.reply(ctx, call, "Days must be between 0 and 7.")
			return
		default:
			days = n
		}
	}
	ban(ctx, w, call, m, reason, days)
}

// ban performs the shared ban path for Ban and the Hackban fallback.
func ban(ctx context.Context, w *Warden, call *Invocation, m *platform.Member, reason string, days int) {
	cm := call.Community
	// Mark before acting so the ban event handler doesn't double-record.
	w.Guard.Mark(m.ID, cm.ID(), modlog.Ban, dedup.TTL)
	if err := w.Client.Ban(ctx, cm.ID(), m.ID, reason, days); err != nil {
		w.fail(ctx, call, err, "ban")
		return
	}
	w.Log.InfoContext(ctx, "banned",
		slog.String("in", cm.ID()),
		slog.String("by", call.Actor.ID),
		slog.String("user", m.ID),
		slog.Int("days", days),
	)
	w.record(ctx, call, modlog.Entry{
		Action:    modlog.Ban,
		Moderator: &call.Actor.User,
		User:      m.User,
		Reason:    reason,
	})
	w.confirm(ctx, call, "Done. Who's next?")
}

// Hackban bans a user by ID before they ever join.
//
// If the user turns out to be a member, this becomes a regular ban. An
// already banned ID is refused.
func Hackban(ctx context.Context, w *Warden, call *Invocation) {
	cm := call.Community
	id := ParseUser(call.Args["user"])
	if id == "" {
		w.reply(ctx, call, "Tell me who, by ID.")
		return
	}
	if id == call.Actor.ID {
		w.reply(ctx, call, "I won't let you do that to yourself.")
		return
	}
	bans, err := w.Client.Bans(ctx, cm.ID())
	if err != nil {
		w.fail(ctx, call, err, "list bans")
		return
	}
	for _, b := range bans {
		if b.ID == id {
			w.reply(ctx, call, "That user is already banned.")
			return
		}
	}
	if m, err := w.Client.Member(ctx, cm.ID(), id); err == nil {
		// They're here after all.
		if !w.Rank.Allowed(cm, call.Actor, m) {
			w.reply(ctx, call, "You can't act on someone ranked at or above you.")
			return
		}
		ban(ctx, w, call, m, call.Args["reason"], 0)
		return
	} else if !errors.Is(err, platform.ErrNotFound) {
		w.fail(ctx, call, err, "resolve member")
		return
	}
	w.Guard.Mark(id, cm.ID(), modlog.Ban, dedup.TTL)
	if err := w.Client.Ban(ctx, cm.ID(), id, call.Args["reason"], 0); err != nil {
		w.fail(ctx, call, err, "hackban")
		return
	}
	u, err := w.Client.User(ctx, id)
	if err != nil {
		u = platform.User{ID: id, Name: id}
	}
	w.Log.InfoContext(ctx, "hackbanned",
		slog.String("in", cm.ID()),
		slog.String("by", call.Actor.ID),
		slog.String("user", id),
	)
	w.record(ctx, call, modlog.Entry{
		Action:    modlog.Hackban,
		Moderator: &call.Actor.User,
		User:      u,
		Reason:    call.Args["reason"],
	})
	w.confirm(ctx, call, "Done. Easy.")
}

// Softban bans and immediately unbans a member, purging a day of their
// messages. The member gets a DM with a fresh invite so they can come
// straight back.
func Softban(ctx context.Context, w *Warden, call *Invocation) {
	m := w.subject(ctx, call)
	if m == nil {
		return
	}
	cm := call.Community
	text := "You have been softbanned. You can rejoin right away."
	if inv, err := w.Client.Invite(ctx, call.Message.ChannelID, 24*time.Hour); err == nil {
		text += "\nInvite: " + inv
	}
	// Blocked DMs must not prevent the ban.
	if err := w.Client.SendDM(ctx, m.ID, text); err != nil {
		w.Log.WarnContext(ctx, "couldn't DM softban invite",
			slog.Any("err", err),
			slog.String("user", m.ID),
		)
	}
	w.Guard.Mark(m.ID, cm.ID(), modlog.Ban, dedup.TTL)
	if err := w.Client.Ban(ctx, cm.ID(), m.ID, call.Args["reason"], 1); err != nil {
		w.fail(ctx, call, err, "softban")
		return
	}
	w.record(ctx, call, modlog.Entry{
		Action:    modlog.Softban,
		Moderator: &call.Actor.User,
		User:      m.User,
		Reason:    call.Args["reason"],
	})
	w.Guard.Mark(m.ID, cm.ID(), modlog.Unban, dedup.TTL)
	if err := w.Client.Unban(ctx, cm.ID(), m.ID); err != nil {
		w.fail(ctx, call, err, "unban after softban")
		return
	}
	w.Log.InfoContext(ctx, "softbanned",
		slog.String("in", cm.ID()),
		slog.String("by", call.Actor.ID),
		slog.String("user", m.ID),
	)
	w.confirm(ctx, call, "Done. Consider that a warning shot.")
}

// Mute denies a member permission to speak, in the invoking channel by
// default or in every text channel with the server scope.
func Mute(ctx context.Context, w *Warden, call *Invocation) {
	m := w.subject(ctx, call)
	if m == nil {
		return
	}
	cm := call.Community
	if call.Args["scope"] == "server" {
		chs, err := w.Client.Channels(ctx, cm.ID())
		if err != nil {
			w.fail(ctx, call, err, "list channels")
			return
		}
		for _, ch := range chs {
			if err := w.Client.Mute(ctx, ch.ID, m.ID); err != nil {
				w.fail(ctx, call, err, "mute")
				return
			}
		}
		w.record(ctx, call, modlog.Entry{
			Action:    modlog.ServerMute,
			Moderator: &call.Actor.User,
			User:      m.User,
			Reason:    call.Args["reason"],
		})
		w.confirm(ctx, call, "Muted. They can't speak anywhere on this server.")
		return
	}
	if err := w.Client.Mute(ctx, call.Message.ChannelID, m.ID); err != nil {
		w.fail(ctx, call, err, "mute")
		return
	}
	w.record(ctx, call, modlog.Entry{
		Action:    modlog.ChannelMute,
		Moderator: &call.Actor.User,
		User:      m.User,
		Reason:    call.Args["reason"],
		Channel:   call.Message.ChannelID,
	})
	w.confirm(ctx, call, "Muted. They can't speak in this channel.")
}

// Unmute restores a member's permission to speak.
func Unmute(ctx context.Context, w *Warden, call *Invocation) {
	m := w.subject(ctx, call)
	if m == nil {
		return
	}
	cm := call.Community
	if call.Args["scope"] == "server" {
		chs, err := w.Client.Channels(ctx, cm.ID())
		if err != nil {
			w.fail(ctx, call, err, "list channels")
			return
		}
		for _, ch := range chs {
			if err := w.Client.Unmute(ctx, ch.ID, m.ID); err != nil {
				w.fail(ctx, call, err, "unmute")
				return
			}
		}
		w.confirm(ctx, call, "Unmuted everywhere. They can speak again.")
		return
	}
	if err := w.Client.Unmute(ctx, call.Message.ChannelID, m.ID); err != nil {
		w.fail(ctx, call, err, "unmute")
		return
	}
	w.confirm(ctx, call, "Unmuted. They can speak again.")
}

// Rename sets or clears a member's nickname.
func Rename(ctx context.Context, w *Warden, call *Invocation) {
	id := ParseUser(call.Args["user"])
	if id == "" {
		w.reply(ctx, call, "Tell me who, by mention or ID.")
		return
	}
	nick := strings.TrimSpace(call.Args["nick"])
	if err := w.Client.SetNick(ctx, call.Community.ID(), id, nick); err != nil {
		w.fail(ctx, call, err, "rename")
		return
	}
	w.confirm(ctx, call, "Done. Shiny and new.")
}

// Reason amends a case's reason, by number or, when the number is
// omitted, the caller's most recent case.
func Reason(ctx context.Context, w *Warden, call *Invocation) {
	cm := call.Community
	reason := strings.TrimSpace(call.Args["reason"])
	n := 0
	if c := call.Args["case"]; c != "" {
		var err error
		if n, err = strconv.Atoi(c); err != nil {
			reason = strings.TrimSpace(c + " " + reason)
			n = 0
		}
	}
	if n == 0 {
		var ok bool
		n, ok = w.Ledger.Last(cm.ID(), call.Actor.ID)
		if !ok {
			w.reply(ctx, call, "You have no case to amend. Give me a case number.")
			return
		}
	}
	if reason == "" {
		w.reply(ctx, call, "Give me a reason.")
		return
	}
	start := time.Now()
	_, err := w.Ledger.Amend(ctx, cm, n, w.actor(call), reason)
	w.Metrics.AmendLatency.Observe(time.Since(start).Seconds())
	switch {
	case err == nil:
		w.reply(ctx, call, fmt.Sprintf("Case #%d updated.", n))
	case errors.Is(err, modlog.ErrUnauthorized):
		w.reply(ctx, call, "That case isn't yours.")
	case errors.Is(err, modlog.ErrNoCase):
		w.reply(ctx, call, "That case doesn't exist.")
	case errors.Is(err, modlog.ErrNoModLog):
		w.reply(ctx, call, "The mod log isn't enabled on this server.")
	case errors.Is(err, modlog.ErrNoMessage), errors.Is(err, modlog.ErrMessageGone):
		w.reply(ctx, call, "I couldn't find the case's message.")
	case errors.Is(err, modlog.ErrNoAccess):
		w.reply(ctx, call, "I'm not allowed in the mod log channel.")
	default:
		w.fail(ctx, call, err, "amend case")
	}
}

// cleanupTries bounds how many pages of history a cleanup walks.
const cleanupTries = 5

// Cleanup deletes the last N messages in the invoking channel,
// optionally only those from one user.
func Cleanup(ctx context.Context, w *Warden, call *Invocation) {
	n, err := strconv.Atoi(call.Args["count"])
	if err != nil || n < 1 {
		w.reply(ctx, call, "Tell me how many messages to delete.")
		return
	}
	only := ParseUser(call.Args["user"])
	if call.Args["user"] != "" && only == "" {
		w.reply(ctx, call, "Tell me whose messages, by mention or ID.")
		return
	}
	ch := call.Message.ChannelID
	toDelete := []string{call.Message.ID}
	before := call.Message.ID
	for tries := cleanupTries; tries > 0 && len(toDelete)-1 < n; tries-- {
		ms, err := w.Client.Recent(ctx, ch, 100, before)
		if err != nil {
			w.fail(ctx, call, err, "list messages")
			return
		}
		if len(ms) == 0 {
			break
		}
		for _, m := range ms {
			before = m.ID
			if only != "" && m.Sender.ID != only {
				continue
			}
			if len(toDelete)-1 < n {
				toDelete = append(toDelete, m.ID)
			}
		}
	}
	for len(toDelete) > 0 {
		batch := toDelete
		if len(batch) > 100 {
			batch = batch[:100]
		}
		if err := w.Client.BulkDelete(ctx, ch, batch); err != nil {
			w.fail(ctx, call, err, "delete messages")
			return
		}
		toDelete = toDelete[len(batch):]
	}
	w.Log.InfoContext(ctx, "cleaned up",
		slog.String("in", call.Community.ID()),
		slog.String("channel", ch),
		slog.String("by", call.Actor.ID),
		slog.Int("count", n),
	)
}
