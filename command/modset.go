package command

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"gopkg.in/typ.v4"

	"github.com/wardenbot/warden/modlog"
)

// minMentionSpam is the lowest accepted mention-autoban threshold.
// Anything lower would punish ordinary conversation.
const minMentionSpam = 5

// ModLogSet sets or clears the community's mod-log channel.
func ModLogSet(ctx context.Context, w *Warden, call *Invocation) {
	cm := call.Community
	arg := strings.TrimSpace(call.Args["channel"])
	if arg == "" || strings.EqualFold(arg, "off") {
		if cm.ModLog() == "" {
			w.reply(ctx, call, "The mod log is already disabled.")
			return
		}
		cm.SetModLog("")
		w.persist(ctx, call)
		w.reply(ctx, call, "Mod log disabled.")
		return
	}
	ch := ParseChannel(arg)
	if ch == "" {
		w.reply(ctx, call, "Tell me which channel, by mention or ID.")
		return
	}
	cm.SetModLog(ch)
	w.persist(ctx, call)
	w.reply(ctx, call, "Mod log set to <#"+ch+">.")
}

// Cases lists, queries, or toggles per-action case creation.
func Cases(ctx context.Context, w *Warden, call *Invocation) {
	cm := call.Community
	arg := strings.TrimSpace(call.Args["action"])
	if arg == "" {
		var sb strings.Builder
		sb.WriteString("Case creation:")
		for a := range modlog.Actions {
			state := "off"
			if cm.CasesEnabled(a) {
				state = "on"
			}
			fmt.Fprintf(&sb, "\n%s %s: %s", a.Icon(), a.Label(), state)
		}
		w.reply(ctx, call, sb.String())
		return
	}
	a, ok := modlog.ParseAction(strings.ToUpper(arg))
	if !ok {
		w.reply(ctx, call, "I don't know that action.")
		return
	}
	on := !cm.CasesEnabled(a)
	cm.SetCasesEnabled(a, on)
	w.persist(ctx, call)
	if on {
		w.reply(ctx, call, fmt.Sprintf("Cases enabled for %s.", a.Label()))
	} else {
		w.reply(ctx, call, fmt.Sprintf("Cases disabled for %s.", a.Label()))
	}
}

// Hierarchy toggles role-rank enforcement for moderation commands.
func Hierarchy(ctx context.Context, w *Warden, call *Invocation) {
	on := call.Community.ToggleHierarchy()
	w.persist(ctx, call)
	if on {
		w.reply(ctx, call, "Role hierarchy will now be respected.")
	} else {
		w.reply(ctx, call, "Role hierarchy will now be ignored.")
	}
}

// DeleteRepeats toggles deletion of repeated messages.
func DeleteRepeats(ctx context.Context, w *Warden, call *Invocation) {
	on := call.Community.ToggleDeleteRepeats()
	w.persist(ctx, call)
	if on {
		w.reply(ctx, call, "I will now delete repeated messages.")
	} else {
		w.reply(ctx, call, "I will no longer delete repeated messages.")
	}
}

// BanMentionSpam sets the mention-count autoban threshold, or turns the
// autoban off.
func BanMentionSpam(ctx context.Context, w *Warden, call *Invocation) {
	cm := call.Community
	arg := strings.TrimSpace(call.Args["threshold"])
	if arg == "" || strings.EqualFold(arg, "off") {
		if cm.BanMentionSpam() == 0 {
			w.reply(ctx, call, "The mention spam autoban is already off.")
			return
		}
		cm.SetBanMentionSpam(0)
		w.persist(ctx, call)
		w.reply(ctx, call, "Mention spam autoban off.")
		return
	}
	n, err := strconv.Atoi(arg)
	if err != nil {
		w.reply(ctx, call, "Give me a number of mentions, or off.")
		return
	}
	if n < minMentionSpam {
		w.reply(ctx, call, fmt.Sprintf("The threshold must be at least %d.", minMentionSpam))
		return
	}
	cm.SetBanMentionSpam(n)
	w.persist(ctx, call)
	w.reply(ctx, call, fmt.Sprintf("Anyone mentioning %d or more people in one message gets banned.", n))
}

// DeleteDelay sets how long command invocations linger before the bot
// deletes them. Out-of-range values clamp; -1 turns deletion off.
func DeleteDelay(ctx context.Context, w *Warden, call *Invocation) {
	cm := call.Community
	n, err := strconv.Atoi(strings.TrimSpace(call.Args["seconds"]))
	if err != nil {
		if cm.DeleteDelay() < 0 {
			w.reply(ctx, call, "Command deletion is off.")
		} else {
			w.reply(ctx, call, fmt.Sprintf("Commands are deleted after %d seconds.", cm.DeleteDelay()))
		}
		return
	}
	n = typ.Clamp(n, -1, 60)
	cm.SetDeleteDelay(n)
	w.persist(ctx, call)
	if n < 0 {
		w.reply(ctx, call, "I will leave command invocations alone.")
	} else {
		w.reply(ctx, call, fmt.Sprintf("I will delete command invocations after %d seconds.", n))
	}
}

// ResetCases irreversibly clears the community's case ledger.
func ResetCases(ctx context.Context, w *Warden, call *Invocation) {
	if err := w.Ledger.Reset(ctx, call.Community.ID()); err != nil {
		w.fail(ctx, call, err, "reset cases")
		return
	}
	w.reply(ctx, call, "All cases forgotten. Numbering starts over at #1.")
}
