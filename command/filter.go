package command

import (
	"context"
	"fmt"
	"strings"
)

// FilterAdd adds words to the community's filter. Messages containing a
// filtered word are deleted on sight.
func FilterAdd(ctx context.Context, w *Warden, call *Invocation) {
	words := strings.Fields(call.Args["words"])
	if len(words) == 0 {
		w.reply(ctx, call, "Give me words to filter.")
		return
	}
	n, err := w.Filter.Add(ctx, call.Community.ID(), words...)
	if err != nil {
		w.fail(ctx, call, err, "add filtered words")
		return
	}
	if n == 0 {
		w.reply(ctx, call, "I was already filtering all of those.")
		return
	}
	w.confirm(ctx, call, fmt.Sprintf("Added %d words to the filter.", n))
}

// FilterRemove removes words from the community's filter.
func FilterRemove(ctx context.Context, w *Warden, call *Invocation) {
	words := strings.Fields(call.Args["words"])
	if len(words) == 0 {
		w.reply(ctx, call, "Give me words to unfilter.")
		return
	}
	n, err := w.Filter.Remove(ctx, call.Community.ID(), words...)
	if err != nil {
		w.fail(ctx, call, err, "remove filtered words")
		return
	}
	if n == 0 {
		w.reply(ctx, call, "None of those were filtered.")
		return
	}
	w.confirm(ctx, call, fmt.Sprintf("Removed %d words from the filter.", n))
}

// FilterList DMs the caller the community's filtered words, so the list
// itself never lands in a public channel.
func FilterList(ctx context.Context, w *Warden, call *Invocation) {
	words, err := w.Filter.Words(ctx, call.Community.ID())
	if err != nil {
		w.fail(ctx, call, err, "list filtered words")
		return
	}
	if len(words) == 0 {
		w.reply(ctx, call, "The filter is empty.")
		return
	}
	text := "Filtered words: " + strings.Join(words, ", ")
	if err := w.Client.SendDM(ctx, call.Actor.ID, text); err != nil {
		w.reply(ctx, call, "I couldn't DM you the list.")
		return
	}
	w.reply(ctx, call, "Check your DMs.")
}
