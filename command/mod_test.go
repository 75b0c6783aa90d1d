package command

import (
	"context"
	"strconv"
	"testing"

	"gitlab.com/zephyrtronium/pick"
	"golang.org/x/time/rate"

	"github.com/wardenbot/warden/community"
	"github.com/wardenbot/warden/modlog"
	"github.com/wardenbot/warden/platform"
)

func TestKick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	Kick(ctx, f.w, f.call(map[string]string{"user": "200", "reason": "zoom"}))
	if len(f.client.kicks) != 1 || f.client.kicks[0] != (pair{"200", "zoom"}) {
		t.Errorf("wrong kicks: %v", f.client.kicks)
	}
	c, ok := f.w.Ledger.Case("g", 1)
	if !ok {
		t.Fatal("no case recorded")
	}
	if c.Action != modlog.Kick || c.User.ID != "200" || c.Moderator.ID != "100" || c.Reason != "zoom" {
		t.Errorf("wrong case: %+v", c)
	}
	if got := f.lastReply(t); got != "Done. Bye bye!" {
		t.Errorf("wrong reply: %q", got)
	}
}

func TestKickRefused(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		user string
	}{
		{"self", "100"},
		{"outranked", "300"},
		{"missing", ""},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			Kick(ctx, f.w, f.call(map[string]string{"user": c.user}))
			if len(f.client.kicks) != 0 {
				t.Errorf("refused kick still kicked: %v", f.client.kicks)
			}
			if _, ok := f.w.Ledger.Case("g", 1); ok {
				t.Error("refused kick recorded a case")
			}
		})
	}
}

func TestKickForbidden(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.err = map[string]error{"kick": platform.ErrForbidden}
	Kick(ctx, f.w, f.call(map[string]string{"user": "200"}))
	if got := f.lastReply(t); got != "I'm not allowed to do that." {
		t.Errorf("wrong reply: %q", got)
	}
	if _, ok := f.w.Ledger.Case("g", 1); ok {
		t.Error("failed kick recorded a case")
	}
}

func TestBan(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name   string
		days   string
		reason string
		want   *banned // nil means refused
	}{
		{"plain", "", "spam", &banned{"200", "spam", 0}},
		{"days", "3", "spam", &banned{"200", "spam", 3}},
		{"zero", "0", "", &banned{"200", "", 0}},
		{"seven", "7", "", &banned{"200", "", 7}},
		{"negative", "-1", "", nil},
		{"eight", "8", "", nil},
		// A non-numeric first word is the reason's start, not days.
		{"lenient", "keeps", "spamming", &banned{"200", "keeps spamming", 0}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			f := newFixture(t)
			Ban(ctx, f.w, f.call(map[string]string{"user": "200", "days": c.days, "reason": c.reason}))
			if c.want == nil {
				if len(f.client.bans) != 0 {
					t.Errorf("refused ban still banned: %v", f.client.bans)
				}
				if got := f.lastReply(t); got != "Days must be between 0 and 7." {
					t.Errorf("wrong reply: %q", got)
				}
				return
			}
			if len(f.client.bans) != 1 || f.client.bans[0] != *c.want {
				t.Errorf("wrong bans: want %v, got %v", *c.want, f.client.bans)
			}
			if !f.w.Guard.Marked("200", "g", modlog.Ban) {
				t.Error("ban not marked for dedup")
			}
			ledgerCase, ok := f.w.Ledger.Case("g", 1)
			if !ok {
				t.Fatal("no case recorded")
			}
			if ledgerCase.Action != modlog.Ban || ledgerCase.Reason != c.want.reason {
				t.Errorf("wrong case: %+v", ledgerCase)
			}
		})
	}
}

func TestHackban(t *testing.T) {
	ctx := context.Background()
	t.Run("stranger", func(t *testing.T) {
		f := newFixture(t)
		f.client.users["999"] = platform.User{ID: "999", Name: "intruder"}
		Hackban(ctx, f.w, f.call(map[string]string{"user": "999", "reason": "known raider"}))
		if len(f.client.bans) != 1 || f.client.bans[0] != (banned{"999", "known raider", 0}) {
			t.Errorf("wrong bans: %v", f.client.bans)
		}
		c, ok := f.w.Ledger.Case("g", 1)
		if !ok {
			t.Fatal("no case recorded")
		}
		if c.Action != modlog.Hackban || c.User.Name != "intruder" {
			t.Errorf("wrong case: %+v", c)
		}
	})
	t.Run("unresolvable", func(t *testing.T) {
		// The ID can't be resolved to any user; the case still records
		// with the ID standing in for the name.
		f := newFixture(t)
		Hackban(ctx, f.w, f.call(map[string]string{"user": "999"}))
		if len(f.client.bans) != 1 {
			t.Fatalf("wrong bans: %v", f.client.bans)
		}
		c, ok := f.w.Ledger.Case("g", 1)
		if !ok {
			t.Fatal("no case recorded")
		}
		if c.User.ID != "999" || c.User.Name != "999" {
			t.Errorf("wrong case user: %+v", c.User)
		}
	})
	t.Run("member", func(t *testing.T) {
		// Hackbanning someone who is here becomes a regular ban.
		f := newFixture(t)
		Hackban(ctx, f.w, f.call(map[string]string{"user": "200", "reason": "sneaky"}))
		if len(f.client.bans) != 1 || f.client.bans[0] != (banned{"200", "sneaky", 0}) {
			t.Errorf("wrong bans: %v", f.client.bans)
		}
		c, ok := f.w.Ledger.Case("g", 1)
		if !ok {
			t.Fatal("no case recorded")
		}
		if c.Action != modlog.Ban {
			t.Errorf("wrong action: %v", c.Action)
		}
	})
	t.Run("member-outranks", func(t *testing.T) {
		f := newFixture(t)
		Hackban(ctx, f.w, f.call(map[string]string{"user": "300"}))
		if len(f.client.bans) != 0 {
			t.Errorf("banned someone above the actor: %v", f.client.bans)
		}
	})
	t.Run("already-banned", func(t *testing.T) {
		f := newFixture(t)
		f.client.banlist = []platform.User{{ID: "999", Name: "intruder"}}
		Hackban(ctx, f.w, f.call(map[string]string{"user": "999"}))
		if len(f.client.bans) != 0 {
			t.Errorf("re-banned a banned user: %v", f.client.bans)
		}
		if got := f.lastReply(t); got != "That user is already banned." {
			t.Errorf("wrong reply: %q", got)
		}
	})
}

func TestSoftban(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	Softban(ctx, f.w, f.call(map[string]string{"user": "200", "reason": "cool off"}))
	if len(f.client.bans) != 1 || f.client.bans[0] != (banned{"200", "cool off", 1}) {
		t.Errorf("wrong bans: %v", f.client.bans)
	}
	if len(f.client.unbans) != 1 || f.client.unbans[0] != "200" {
		t.Errorf("wrong unbans: %v", f.client.unbans)
	}
	if len(f.client.dms) != 1 || f.client.dms[0].to != "200" {
		t.Errorf("wrong DMs: %v", f.client.dms)
	}
	if !f.w.Guard.Marked("200", "g", modlog.Ban) || !f.w.Guard.Marked("200", "g", modlog.Unban) {
		t.Error("softban not marked for dedup on both events")
	}
	c, ok := f.w.Ledger.Case("g", 1)
	if !ok {
		t.Fatal("no case recorded")
	}
	if c.Action != modlog.Softban {
		t.Errorf("wrong action: %v", c.Action)
	}
	if _, ok := f.w.Ledger.Case("g", 2); ok {
		t.Error("softban recorded a second case for its own unban")
	}
}

func TestSoftbanBlockedDM(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.err = map[string]error{"dm": platform.ErrForbidden}
	Softban(ctx, f.w, f.call(map[string]string{"user": "200"}))
	if len(f.client.bans) != 1 {
		t.Errorf("blocked DM prevented the softban: %v", f.client.bans)
	}
}

func TestMute(t *testing.T) {
	ctx := context.Background()
	t.Run("channel", func(t *testing.T) {
		f := newFixture(t)
		Mute(ctx, f.w, f.call(map[string]string{"user": "200"}))
		if len(f.client.mutes) != 1 || f.client.mutes[0] != (pair{"chan", "200"}) {
			t.Errorf("wrong mutes: %v", f.client.mutes)
		}
		// Channel mute cases are off by default.
		if _, ok := f.w.Ledger.Case("g", 1); ok {
			t.Error("channel mute recorded a case with cases off")
		}
	})
	t.Run("channel-case", func(t *testing.T) {
		f := newFixture(t)
		f.cm.SetCasesEnabled(modlog.ChannelMute, true)
		Mute(ctx, f.w, f.call(map[string]string{"user": "200", "reason": "loud"}))
		c, ok := f.w.Ledger.Case("g", 1)
		if !ok {
			t.Fatal("no case recorded")
		}
		if c.Action != modlog.ChannelMute || c.Channel != "chan" {
			t.Errorf("wrong case: %+v", c)
		}
	})
	t.Run("server", func(t *testing.T) {
		f := newFixture(t)
		f.client.channels = []platform.Channel{{ID: "c1"}, {ID: "c2"}, {ID: "c3"}}
		Mute(ctx, f.w, f.call(map[string]string{"user": "200", "scope": "server"}))
		if len(f.client.mutes) != 3 {
			t.Errorf("wrong mutes: %v", f.client.mutes)
		}
		c, ok := f.w.Ledger.Case("g", 1)
		if !ok {
			t.Fatal("no case recorded")
		}
		if c.Action != modlog.ServerMute || c.Channel != "" {
			t.Errorf("wrong case: %+v", c)
		}
	})
}

func TestUnmute(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.client.channels = []platform.Channel{{ID: "c1"}, {ID: "c2"}}
	Unmute(ctx, f.w, f.call(map[string]string{"user": "200", "scope": "server"}))
	if len(f.client.unmutes) != 2 {
		t.Errorf("wrong unmutes: %v", f.client.unmutes)
	}
	if _, ok := f.w.Ledger.Case("g", 1); ok {
		t.Error("unmute recorded a case")
	}
}

func TestRename(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	Rename(ctx, f.w, f.call(map[string]string{"user": "200", "nick": "botchan"}))
	if len(f.client.nicks) != 1 || f.client.nicks[0] != (pair{"200", "botchan"}) {
		t.Errorf("wrong nicks: %v", f.client.nicks)
	}
}

func TestReason(t *testing.T) {
	ctx := context.Background()
	t.Run("by-number", func(t *testing.T) {
		f := newFixture(t)
		Kick(ctx, f.w, f.call(map[string]string{"user": "200"}))
		Reason(ctx, f.w, f.call(map[string]string{"case": "1", "reason": "zoom"}))
		c, _ := f.w.Ledger.Case("g", 1)
		if c.Reason != "zoom" {
			t.Errorf("wrong reason: %q", c.Reason)
		}
		if got := f.lastReply(t); got != "Case #1 updated." {
			t.Errorf("wrong reply: %q", got)
		}
	})
	t.Run("last-case", func(t *testing.T) {
		f := newFixture(t)
		Kick(ctx, f.w, f.call(map[string]string{"user": "200"}))
		Reason(ctx, f.w, f.call(map[string]string{"reason": "zoom"}))
		c, _ := f.w.Ledger.Case("g", 1)
		if c.Reason != "zoom" {
			t.Errorf("wrong reason: %q", c.Reason)
		}
	})
	t.Run("word-case", func(t *testing.T) {
		// A non-numeric case argument is the reason's first word.
		f := newFixture(t)
		Kick(ctx, f.w, f.call(map[string]string{"user": "200"}))
		Reason(ctx, f.w, f.call(map[string]string{"case": "kept", "reason": "spamming"}))
		c, _ := f.w.Ledger.Case("g", 1)
		if c.Reason != "kept spamming" {
			t.Errorf("wrong reason: %q", c.Reason)
		}
	})
	t.Run("no-last", func(t *testing.T) {
		f := newFixture(t)
		Reason(ctx, f.w, f.call(map[string]string{"reason": "zoom"}))
		if got := f.lastReply(t); got != "You have no case to amend. Give me a case number." {
			t.Errorf("wrong reply: %q", got)
		}
	})
	t.Run("no-case", func(t *testing.T) {
		f := newFixture(t)
		Reason(ctx, f.w, f.call(map[string]string{"case": "41", "reason": "zoom"}))
		if got := f.lastReply(t); got != "That case doesn't exist." {
			t.Errorf("wrong reply: %q", got)
		}
	})
	t.Run("not-yours", func(t *testing.T) {
		f := newFixture(t)
		Kick(ctx, f.w, f.call(map[string]string{"user": "200"}))
		call := f.call(map[string]string{"case": "1", "reason": "mine"})
		call.Actor = lowMember
		Reason(ctx, f.w, call)
		if got := f.lastReply(t); got != "That case isn't yours." {
			t.Errorf("wrong reply: %q", got)
		}
	})
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	history := func(n int, everyOther string) []platform.Message {
		ms := make([]platform.Message, n)
		for i := range ms {
			u := actorMember.User
			if everyOther != "" && i%2 == 1 {
				u = platform.User{ID: everyOther}
			}
			ms[i] = platform.Message{ID: "h" + strconv.Itoa(i), ChannelID: "chan", Sender: u}
		}
		return ms
	}
	t.Run("count", func(t *testing.T) {
		f := newFixture(t)
		f.client.history = history(10, "")
		Cleanup(ctx, f.w, f.call(map[string]string{"count": "4"}))
		if len(f.client.bulks) != 1 {
			t.Fatalf("wrong number of batches: %d", len(f.client.bulks))
		}
		// The invocation message goes too, so 5 in all.
		if got := f.client.bulks[0]; len(got) != 5 || got[0] != "m0" {
			t.Errorf("wrong batch: %v", got)
		}
	})
	t.Run("user", func(t *testing.T) {
		f := newFixture(t)
		f.client.history = history(10, "200")
		Cleanup(ctx, f.w, f.call(map[string]string{"count": "3", "user": "200"}))
		if len(f.client.bulks) != 1 {
			t.Fatalf("wrong number of batches: %d", len(f.client.bulks))
		}
		got := f.client.bulks[0]
		if len(got) != 4 {
			t.Fatalf("wrong batch size: %v", got)
		}
		for _, id := range got[1:] {
			n, _ := strconv.Atoi(id[1:])
			if n%2 != 1 {
				t.Errorf("deleted someone else's message: %s", id)
			}
		}
	})
	t.Run("short-history", func(t *testing.T) {
		f := newFixture(t)
		f.client.history = history(3, "")
		Cleanup(ctx, f.w, f.call(map[string]string{"count": "50"}))
		if len(f.client.bulks) != 1 || len(f.client.bulks[0]) != 4 {
			t.Errorf("wrong batches: %v", f.client.bulks)
		}
	})
	t.Run("bad-count", func(t *testing.T) {
		f := newFixture(t)
		Cleanup(ctx, f.w, f.call(map[string]string{"count": "lots"}))
		if len(f.client.bulks) != 0 {
			t.Errorf("deleted with no count: %v", f.client.bulks)
		}
	})
}

func TestConfirmEmote(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	s := f.cm.Settings()
	f.cm = community.New(community.Config{
		ID:       "g",
		Owner:    "landlord",
		ModRole:  "Mods",
		Prefix:   "!",
		Emotes:   pick.New(pick.FromMap(map[string]int{"o7": 1})),
		Rate:     rate.NewLimiter(rate.Inf, 1),
		Settings: s,
	})
	Kick(ctx, f.w, f.call(map[string]string{"user": "200"}))
	if got := f.lastReply(t); got != "Done. Bye bye! o7" {
		t.Errorf("wrong reply: %q", got)
	}
}
