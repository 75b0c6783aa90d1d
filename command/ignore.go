package command

import (
	"context"
	"fmt"
)

// Ignore marks a channel, or the whole community, ignored. The bot
// stops watching and dispatching in ignored places; only moderation of
// it, not by it, is affected.
func Ignore(ctx context.Context, w *Warden, call *Invocation) {
	cm := call.Community
	if call.Args["scope"] == "server" {
		if !cm.Ignore() {
			w.reply(ctx, call, "I was already ignoring this server.")
			return
		}
		w.persistIgnores(ctx, call)
		w.confirm(ctx, call, "Ignoring this whole server now.")
		return
	}
	ch := call.Message.ChannelID
	if c := ParseChannel(call.Args["channel"]); c != "" {
		ch = c
	}
	if !cm.IgnoreChannel(ch) {
		w.reply(ctx, call, "I was already ignoring that channel.")
		return
	}
	w.persistIgnores(ctx, call)
	w.confirm(ctx, call, fmt.Sprintf("Ignoring <#%s> now.", ch))
}

// Unignore reverses an Ignore.
func Unignore(ctx context.Context, w *Warden, call *Invocation) {
	cm := call.Community
	if call.Args["scope"] == "server" {
		if !cm.Unignore() {
			w.reply(ctx, call, "I wasn't ignoring this server.")
			return
		}
		w.persistIgnores(ctx, call)
		w.confirm(ctx, call, "Watching this server again.")
		return
	}
	ch := call.Message.ChannelID
	if c := ParseChannel(call.Args["channel"]); c != "" {
		ch = c
	}
	if !cm.UnignoreChannel(ch) {
		w.reply(ctx, call, "I wasn't ignoring that channel.")
		return
	}
	w.persistIgnores(ctx, call)
	w.confirm(ctx, call, fmt.Sprintf("Watching <#%s> again.", ch))
}
