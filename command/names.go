package command

import (
	"context"
	"strings"
)

// PastNames replies with the usernames and nicknames a member has used.
func PastNames(ctx context.Context, w *Warden, call *Invocation) {
	id := ParseUser(call.Args["user"])
	if id == "" {
		w.reply(ctx, call, "Tell me who, by mention or ID.")
		return
	}
	names, err := w.Names.Names(ctx, id)
	if err != nil {
		w.fail(ctx, call, err, "list names")
		return
	}
	nicks, err := w.Names.Nicks(ctx, call.Community.ID(), id)
	if err != nil {
		w.fail(ctx, call, err, "list nicknames")
		return
	}
	if len(names) == 0 && len(nicks) == 0 {
		w.reply(ctx, call, "I haven't seen them under any other name.")
		return
	}
	var sb strings.Builder
	if len(names) > 0 {
		sb.WriteString("**Past names:** " + strings.Join(names, ", "))
	}
	if len(nicks) > 0 {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString("**Past nicknames:** " + strings.Join(nicks, ", "))
	}
	w.reply(ctx, call, sb.String())
}
