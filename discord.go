package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/wardenbot/warden/community"
	"github.com/wardenbot/warden/dedup"
	"github.com/wardenbot/warden/modlog"
	"github.com/wardenbot/warden/platform"
	"github.com/wardenbot/warden/platform/discord"
)

// NewDiscord creates the Discord session and registers event handlers.
// The session connects when Run is called.
func (w *Warden) NewDiscord(ctx context.Context, token string) error {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return fmt.Errorf("couldn't create Discord session: %w", err)
	}
	session.Identify.Intents = discordgo.IntentGuilds |
		discordgo.IntentGuildMembers |
		discordgo.IntentGuildBans |
		discordgo.IntentGuildMessages |
		discordgo.IntentMessageContent
	session.AddHandler(func(s *discordgo.Session, event *discordgo.MessageCreate) {
		w.metrics.EventsCount.Observe(1, "message")
		w.onMessage(ctx, s, event)
	})
	session.AddHandler(func(s *discordgo.Session, event *discordgo.MessageUpdate) {
		w.metrics.EventsCount.Observe(1, "message_edit")
		w.onMessageEdit(ctx, event)
	})
	session.AddHandler(func(s *discordgo.Session, event *discordgo.GuildBanAdd) {
		w.metrics.EventsCount.Observe(1, "ban")
		w.onBanChange(ctx, event.GuildID, event.User, modlog.Ban)
	})
	session.AddHandler(func(s *discordgo.Session, event *discordgo.GuildBanRemove) {
		w.metrics.EventsCount.Observe(1, "unban")
		w.onBanChange(ctx, event.GuildID, event.User, modlog.Unban)
	})
	session.AddHandler(func(s *discordgo.Session, event *discordgo.GuildMemberUpdate) {
		w.metrics.EventsCount.Observe(1, "member_update")
		w.onMemberUpdate(ctx, event)
	})
	w.session = session
	w.client = discord.New(session)
	return nil
}

// onMessage watches a channel message: word filter, repeat deletion,
// mention-spam autoban, then command dispatch. All but the community
// lookup happens in a worker. Ignored places still dispatch admin
// commands, so an ignore is always reversible in place.
func (w *Warden) onMessage(ctx context.Context, session *discordgo.Session, event *discordgo.MessageCreate) {
	if event.Author == nil || event.Author.Bot {
		return
	}
	cm, _ := w.communities.Load(event.GuildID)
	if cm == nil {
		return
	}
	if cm.ChannelIgnored(event.ChannelID) && !adminInvocation(cm, event.Content) {
		return
	}
	m := &platform.Message{
		ID:          event.ID,
		ChannelID:   event.ChannelID,
		CommunityID: event.GuildID,
		Sender:      platform.User{ID: event.Author.ID, Name: event.Author.String()},
		Text:        event.Content,
		Timestamp:   event.Timestamp.UnixMilli(),
	}
	for _, u := range event.Mentions {
		m.Mentions = append(m.Mentions, platform.User{ID: u.ID, Name: u.String()})
	}
	w.enqueue(ctx, func(ctx context.Context) { w.watch(ctx, cm, m) })
}

// onMessageEdit re-runs the word filter on an edited message, so an
// edit cannot smuggle in a filtered word after the fact.
func (w *Warden) onMessageEdit(ctx context.Context, event *discordgo.MessageUpdate) {
	// Partial updates, like an embed unfurling, carry no author.
	if event.Author == nil || event.Author.Bot || event.Content == "" {
		return
	}
	cm, _ := w.communities.Load(event.GuildID)
	if cm == nil {
		return
	}
	if cm.ChannelIgnored(event.ChannelID) {
		return
	}
	m := &platform.Message{
		ID:          event.ID,
		ChannelID:   event.ChannelID,
		CommunityID: event.GuildID,
		Sender:      platform.User{ID: event.Author.ID, Name: event.Author.String()},
		Text:        event.Content,
	}
	w.enqueue(ctx, func(ctx context.Context) { w.watchEdit(ctx, cm, m) })
}

// watch runs the auto-moderation checks on a message and then
// dispatches it as a command. Moderators and ignored channels are
// exempt from the checks.
func (w *Warden) watch(ctx context.Context, cm *community.Community, m *platform.Message) {
	log := slog.With(slog.String("trace", m.ID), slog.String("in", cm.ID()))
	actor, err := w.client.Member(ctx, cm.ID(), m.Sender.ID)
	if err != nil {
		log.WarnContext(ctx, "couldn't resolve sender", slog.Any("err", err), slog.String("user", m.Sender.ID))
	}
	exempt := cm.ChannelIgnored(m.ChannelID) || (actor != nil && w.rank.Mod(cm, actor))
	if !exempt && w.automod(ctx, cm, m, log) {
		return
	}
	w.dispatch(ctx, cm, m, actor, log)
}

// watchEdit reruns the word filter for an edited message.
func (w *Warden) watchEdit(ctx context.Context, cm *community.Community, m *platform.Message) {
	log := slog.With(slog.String("trace", m.ID), slog.String("in", cm.ID()))
	actor, err := w.client.Member(ctx, cm.ID(), m.Sender.ID)
	if err != nil {
		log.WarnContext(ctx, "couldn't resolve sender", slog.Any("err", err), slog.String("user", m.Sender.ID))
	}
	if actor != nil && w.rank.Mod(cm, actor) {
		return
	}
	w.filtered(ctx, cm, m, log)
}

// automod applies the word filter, repeat deletion, and mention-spam
// autoban. It reports whether the message was consumed.
func (w *Warden) automod(ctx context.Context, cm *community.Community, m *platform.Message, log *slog.Logger) bool {
	if w.filtered(ctx, cm, m, log) {
		return true
	}
	if cm.DeleteRepeats() && cm.Repeated(m.Sender.ID, m.Text) {
		log.InfoContext(ctx, "deleting repeat", slog.String("user", m.Sender.ID))
		if err := w.client.Delete(ctx, m.ChannelID, m.ID); err != nil {
			log.WarnContext(ctx, "couldn't delete repeat", slog.Any("err", err))
		}
		return true
	}
	if n := cm.BanMentionSpam(); n > 0 && len(m.Mentions) >= n {
		w.autoban(ctx, cm, m, log)
		return true
	}
	return false
}

// filtered deletes a message containing a filtered word. It reports
// whether the message matched.
func (w *Warden) filtered(ctx context.Context, cm *community.Community, m *platform.Message, log *slog.Logger) bool {
	word, ok, err := w.filter.Match(ctx, cm.ID(), m.Text)
	if err != nil {
		log.ErrorContext(ctx, "filter check failed", slog.Any("err", err))
		return false
	}
	if !ok {
		return false
	}
	w.metrics.FilteredCount.Observe(1)
	log.InfoContext(ctx, "filtered", slog.String("word", word), slog.String("user", m.Sender.ID))
	if err := w.client.Delete(ctx, m.ChannelID, m.ID); err != nil {
		log.WarnContext(ctx, "couldn't delete filtered message", slog.Any("err", err))
	}
	return true
}

// autoban bans the author of a mention-spam message and records a case.
func (w *Warden) autoban(ctx context.Context, cm *community.Community, m *platform.Message, log *slog.Logger) {
	w.guard.Mark(m.Sender.ID, cm.ID(), modlog.Ban, dedup.TTL)
	reason := fmt.Sprintf("Mention spam (%d mentions)", len(m.Mentions))
	if err := w.client.Ban(ctx, cm.ID(), m.Sender.ID, reason, 1); err != nil {
		log.ErrorContext(ctx, "couldn't autoban", slog.Any("err", err), slog.String("user", m.Sender.ID))
		return
	}
	log.InfoContext(ctx, "autobanned", slog.String("user", m.Sender.ID), slog.Int("mentions", len(m.Mentions)))
	w.metrics.ActionsCount.Observe(1, modlog.Ban.String())
	me := platform.User{ID: w.session.State.User.ID, Name: w.session.State.User.String()}
	_, err := w.ledger.Record(ctx, cm, modlog.Entry{
		Action:    modlog.Ban,
		Moderator: &me,
		User:      m.Sender,
		Reason:    reason,
	})
	if err != nil {
		log.ErrorContext(ctx, "couldn't record autoban case", slog.Any("err", err))
	}
}

// onBanChange records a case for a ban or unban the bot did not cause:
// those performed by hand in the platform UI.
func (w *Warden) onBanChange(ctx context.Context, guildID string, user *discordgo.User, action modlog.Action) {
	cm, _ := w.communities.Load(guildID)
	if cm == nil {
		return
	}
	if w.guard.Marked(user.ID, guildID, action) {
		w.metrics.DedupSuppressed.Observe(1)
		return
	}
	work := func(ctx context.Context) {
		_, err := w.ledger.Record(ctx, cm, modlog.Entry{
			Action: action,
			User:   platform.User{ID: user.ID, Name: user.String()},
		})
		if err != nil {
			slog.ErrorContext(ctx, "couldn't record external case",
				slog.Any("err", err),
				slog.String("in", guildID),
				slog.String("action", action.String()),
			)
		}
	}
	w.enqueue(ctx, work)
}

// onMemberUpdate feeds the name history.
func (w *Warden) onMemberUpdate(ctx context.Context, event *discordgo.GuildMemberUpdate) {
	if event.User == nil {
		return
	}
	if _, ok := w.communities.Load(event.GuildID); !ok {
		return
	}
	work := func(ctx context.Context) {
		if err := w.names.ObserveName(ctx, event.User.ID, event.User.Username); err != nil {
			slog.ErrorContext(ctx, "couldn't record name", slog.Any("err", err))
		}
		if err := w.names.ObserveNick(ctx, event.GuildID, event.User.ID, event.Nick); err != nil {
			slog.ErrorContext(ctx, "couldn't record nickname", slog.Any("err", err))
		}
	}
	w.enqueue(ctx, work)
}

// deleteLater deletes a command invocation after the community's
// configured delay.
func (w *Warden) deleteLater(ctx context.Context, cm *community.Community, m *platform.Message) {
	d := cm.DeleteDelay()
	if d < 0 {
		return
	}
	select {
	case <-ctx.Done():
		return
	case <-time.After(time.Duration(d) * time.Second):
	}
	if err := w.client.Delete(ctx, m.ChannelID, m.ID); err != nil {
		slog.WarnContext(ctx, "couldn't delete invocation",
			slog.Any("err", err),
			slog.String("in", cm.ID()),
			slog.String("message", m.ID),
		)
	}
}
