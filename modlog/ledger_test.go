package modlog

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strconv"
	"testing"
	"time"

	"github.com/wardenbot/warden/platform"
)

type testCommunity struct {
	id     string
	modlog string
	prefix string
	off    map[Action]bool
}

func (cm *testCommunity) ID() string     { return cm.id }
func (cm *testCommunity) ModLog() string { return cm.modlog }
func (cm *testCommunity) Prefix() string { return cm.prefix }
func (cm *testCommunity) CasesEnabled(a Action) bool {
	return !cm.off[a]
}

// memStore is an in-memory Store which copies on save so tests observe
// what was persisted rather than what the ledger mutated afterward.
type memStore struct {
	saved map[string]map[int]*Case
	fail  error
}

func newMemStore() *memStore {
	return &memStore{saved: make(map[string]map[int]*Case)}
}

func (s *memStore) Load(ctx context.Context) (map[string]map[int]*Case, error) {
	all := make(map[string]map[int]*Case, len(s.saved))
	for community, cases := range s.saved {
		m := make(map[int]*Case, len(cases))
		for n, c := range cases {
			v := *c
			m[n] = &v
		}
		all[community] = m
	}
	return all, nil
}

func (s *memStore) Save(ctx context.Context, community string, cases map[int]*Case) error {
	if s.fail != nil {
		return s.fail
	}
	m := make(map[int]*Case, len(cases))
	for n, c := range cases {
		v := *c
		m[n] = &v
	}
	s.saved[community] = m
	return nil
}

func (s *memStore) Reset(ctx context.Context, community string) error {
	if s.fail != nil {
		return s.fail
	}
	delete(s.saved, community)
	return nil
}

func (s *memStore) Close() error { return nil }

type sent struct {
	channel string
	text    string
}

type fakeNotify struct {
	sent     []sent
	edits    []sent
	sendErr  error
	haveErr  error
	editErr  error
	lastID   int
	messages map[string]bool
}

func (f *fakeNotify) Send(ctx context.Context, channelID, text string) (string, error) {
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, sent{channelID, text})
	f.lastID++
	id := "m" + strconv.Itoa(f.lastID)
	if f.messages == nil {
		f.messages = make(map[string]bool)
	}
	f.messages[id] = true
	return id, nil
}

func (f *fakeNotify) Message(ctx context.Context, channelID, messageID string) (*platform.Message, error) {
	if f.haveErr != nil {
		return nil, f.haveErr
	}
	if !f.messages[messageID] {
		return nil, platform.ErrNotFound
	}
	return &platform.Message{ID: messageID, ChannelID: channelID}, nil
}

func (f *fakeNotify) Edit(ctx context.Context, channelID, messageID, text string) error {
	if f.editErr != nil {
		return f.editErr
	}
	f.edits = append(f.edits, sent{channelID, text})
	return nil
}

func testLedger(t *testing.T, store Store, notify Notifier) *Ledger {
	t.Helper()
	l, err := Open(context.Background(), store, notify, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("couldn't open ledger: %v", err)
	}
	epoch := time.Unix(1700000000, 0).UTC()
	n := 0
	l.now = func() time.Time {
		n++
		return epoch.Add(time.Duration(n) * time.Minute)
	}
	return l
}

var (
	bocchi = platform.User{ID: "1", Name: "bocchi"}
	nijika = platform.User{ID: "2", Name: "nijika"}
	kita   = platform.User{ID: "3", Name: "kita"}
)

func TestRecord(t *testing.T) {
	ctx := context.Background()
	cm := &testCommunity{id: "g", modlog: "log", prefix: "!"}
	store := newMemStore()
	notify := &fakeNotify{}
	l := testLedger(t, store, notify)

	c, err := l.Record(ctx, cm, Entry{Action: Kick, Moderator: &nijika, User: bocchi, Reason: "zoom"})
	if err != nil {
		t.Fatalf("couldn't record: %v", err)
	}
	if c.Seq != 1 {
		t.Errorf("wrong seq: want 1, got %d", c.Seq)
	}
	if c.MessageID == "" {
		t.Error("case has no message after a successful post")
	}
	c, err = l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: kita})
	if err != nil {
		t.Fatalf("couldn't record: %v", err)
	}
	if c.Seq != 2 {
		t.Errorf("wrong seq: want 2, got %d", c.Seq)
	}
	if len(notify.sent) != 2 {
		t.Errorf("wrong number of posts: want 2, got %d", len(notify.sent))
	}
	if notify.sent[0].channel != "log" {
		t.Errorf("posted to wrong channel: want log, got %s", notify.sent[0].channel)
	}
	if got := store.saved["g"]; len(got) != 2 {
		t.Errorf("wrong number of persisted cases: want 2, got %d", len(got))
	}
	if n, ok := l.Last("g", nijika.ID); !ok || n != 2 {
		t.Errorf("wrong last case: want 2, true, got %d, %t", n, ok)
	}
}

func TestRecordSkips(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name string
		cm   *testCommunity
		e    Entry
	}{
		{
			name: "no-modlog",
			cm:   &testCommunity{id: "g", prefix: "!"},
			e:    Entry{Action: Ban, Moderator: &nijika, User: bocchi},
		},
	}
	// Disabling cases skips recording for each action kind on its own.
	for a := range Actions {
		cases = append(cases, struct {
			name string
			cm   *testCommunity
			e    Entry
		}{
			name: "disabled-" + a.String(),
			cm:   &testCommunity{id: "g", modlog: "log", prefix: "!", off: map[Action]bool{a: true}},
			e:    Entry{Action: a, Moderator: &nijika, User: bocchi},
		})
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			store := newMemStore()
			notify := &fakeNotify{}
			l := testLedger(t, store, notify)
			got, err := l.Record(ctx, c.cm, c.e)
			if got != nil || err != nil {
				t.Errorf("want nil, nil, got %v, %v", got, err)
			}
			if len(notify.sent) != 0 {
				t.Errorf("posted %d messages for a skipped case", len(notify.sent))
			}
			if len(store.saved) != 0 {
				t.Error("persisted a skipped case")
			}
		})
	}
}

func TestRecordPostFailure(t *testing.T) {
	ctx := context.Background()
	cm := &testCommunity{id: "g", modlog: "log", prefix: "!"}
	store := newMemStore()
	notify := &fakeNotify{sendErr: errors.New("gateway sneezed")}
	l := testLedger(t, store, notify)

	c, err := l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: bocchi})
	if err != nil {
		t.Fatalf("post failure must not fail recording: %v", err)
	}
	if c.MessageID != "" {
		t.Errorf("case bound a message despite failed post: %q", c.MessageID)
	}
	p := store.saved["g"][1]
	if p == nil {
		t.Fatal("case not persisted after failed post")
	}
	if p.MessageID != "" {
		t.Errorf("persisted case bound a message: %q", p.MessageID)
	}
}

func TestRecordUnclaimed(t *testing.T) {
	ctx := context.Background()
	cm := &testCommunity{id: "g", modlog: "log", prefix: "!"}
	store := newMemStore()
	l := testLedger(t, store, &fakeNotify{})

	c, err := l.Record(ctx, cm, Entry{Action: Unban, User: bocchi})
	if err != nil {
		t.Fatalf("couldn't record: %v", err)
	}
	if c.Moderator != nil {
		t.Errorf("observed action got a moderator: %v", c.Moderator)
	}
	if _, ok := l.Last("g", ""); ok {
		t.Error("unclaimed case tracked as someone's last")
	}
}

func TestAmend(t *testing.T) {
	ctx := context.Background()
	cm := &testCommunity{id: "g", modlog: "log", prefix: "!"}

	t.Run("owner", func(t *testing.T) {
		store := newMemStore()
		notify := &fakeNotify{}
		l := testLedger(t, store, notify)
		l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: bocchi})

		c, err := l.Amend(ctx, cm, 1, Actor{User: nijika}, "she knows what she did")
		if err != nil {
			t.Fatalf("couldn't amend: %v", err)
		}
		if c.Reason != "she knows what she did" {
			t.Errorf("wrong reason: %q", c.Reason)
		}
		if c.AmendedBy != nil {
			t.Errorf("owner amendment stamped an amender: %v", c.AmendedBy)
		}
		if !c.Modified.IsZero() {
			t.Error("setting a first reason stamped Modified")
		}
		if len(notify.edits) != 1 {
			t.Errorf("wrong number of edits: want 1, got %d", len(notify.edits))
		}
	})
	t.Run("replace", func(t *testing.T) {
		store := newMemStore()
		l := testLedger(t, store, &fakeNotify{})
		l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: bocchi, Reason: "first"})

		c, err := l.Amend(ctx, cm, 1, Actor{User: nijika}, "second")
		if err != nil {
			t.Fatalf("couldn't amend: %v", err)
		}
		if c.Modified.IsZero() {
			t.Error("replacing a reason did not stamp Modified")
		}
	})
	t.Run("claim", func(t *testing.T) {
		store := newMemStore()
		l := testLedger(t, store, &fakeNotify{})
		l.Record(ctx, cm, Entry{Action: Unban, User: bocchi})

		c, err := l.Amend(ctx, cm, 1, Actor{User: kita}, "mine now")
		if err != nil {
			t.Fatalf("couldn't amend: %v", err)
		}
		if c.Moderator == nil || c.Moderator.ID != kita.ID {
			t.Errorf("amending an unclaimed case did not claim it: %v", c.Moderator)
		}
		if c.AmendedBy != nil {
			t.Errorf("claiming stamped an amender: %v", c.AmendedBy)
		}
	})
	t.Run("unauthorized", func(t *testing.T) {
		store := newMemStore()
		l := testLedger(t, store, &fakeNotify{})
		l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: bocchi, Reason: "hers"})

		_, err := l.Amend(ctx, cm, 1, Actor{User: kita}, "no")
		if !errors.Is(err, ErrUnauthorized) {
			t.Errorf("want ErrUnauthorized, got %v", err)
		}
		c, _ := l.Case("g", 1)
		if c.Reason != "hers" {
			t.Errorf("unauthorized amendment changed the reason: %q", c.Reason)
		}
	})
	t.Run("admin", func(t *testing.T) {
		store := newMemStore()
		l := testLedger(t, store, &fakeNotify{})
		l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: bocchi})

		c, err := l.Amend(ctx, cm, 1, Actor{User: kita, Admin: true}, "overruled")
		if err != nil {
			t.Fatalf("couldn't amend: %v", err)
		}
		if c.Moderator.ID != nijika.ID {
			t.Errorf("admin amendment displaced the moderator: %v", c.Moderator)
		}
		if c.AmendedBy == nil || c.AmendedBy.ID != kita.ID {
			t.Errorf("admin amendment did not stamp the amender: %v", c.AmendedBy)
		}
	})
	t.Run("no-modlog", func(t *testing.T) {
		l := testLedger(t, newMemStore(), &fakeNotify{})
		_, err := l.Amend(ctx, &testCommunity{id: "g", prefix: "!"}, 1, Actor{User: nijika}, "x")
		if !errors.Is(err, ErrNoModLog) {
			t.Errorf("want ErrNoModLog, got %v", err)
		}
	})
	t.Run("no-case", func(t *testing.T) {
		l := testLedger(t, newMemStore(), &fakeNotify{})
		_, err := l.Amend(ctx, cm, 19, Actor{User: nijika}, "x")
		if !errors.Is(err, ErrNoCase) {
			t.Errorf("want ErrNoCase, got %v", err)
		}
	})
	t.Run("no-message", func(t *testing.T) {
		store := newMemStore()
		notify := &fakeNotify{sendErr: errors.New("down")}
		l := testLedger(t, store, notify)
		l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: bocchi})

		notify.sendErr = nil
		_, err := l.Amend(ctx, cm, 1, Actor{User: nijika}, "still counts")
		if !errors.Is(err, ErrNoMessage) {
			t.Errorf("want ErrNoMessage, got %v", err)
		}
		if p := store.saved["g"][1]; p.Reason != "still counts" {
			t.Errorf("reason not persisted before the message error: %q", p.Reason)
		}
	})
	t.Run("message-gone", func(t *testing.T) {
		store := newMemStore()
		notify := &fakeNotify{}
		l := testLedger(t, store, notify)
		l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: bocchi})

		notify.haveErr = platform.ErrNotFound
		_, err := l.Amend(ctx, cm, 1, Actor{User: nijika}, "x")
		if !errors.Is(err, ErrMessageGone) {
			t.Errorf("want ErrMessageGone, got %v", err)
		}
		if p := store.saved["g"][1]; p.Reason != "x" {
			t.Errorf("reason not persisted before the message error: %q", p.Reason)
		}
	})
	t.Run("no-access", func(t *testing.T) {
		notify := &fakeNotify{}
		l := testLedger(t, newMemStore(), notify)
		l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: bocchi})

		notify.editErr = platform.ErrForbidden
		_, err := l.Amend(ctx, cm, 1, Actor{User: nijika}, "x")
		if !errors.Is(err, ErrNoAccess) {
			t.Errorf("want ErrNoAccess, got %v", err)
		}
	})
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	cm := &testCommunity{id: "g", modlog: "log", prefix: "!"}
	other := &testCommunity{id: "h", modlog: "log2", prefix: "!"}
	store := newMemStore()
	l := testLedger(t, store, &fakeNotify{})
	l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: bocchi})
	l.Record(ctx, other, Entry{Action: Kick, Moderator: &nijika, User: kita})

	if err := l.Reset(ctx, "g"); err != nil {
		t.Fatalf("couldn't reset: %v", err)
	}
	if got := l.Cases("g"); len(got) != 0 {
		t.Errorf("reset left %d cases", len(got))
	}
	if _, ok := l.Last("g", nijika.ID); ok {
		t.Error("reset left a last-case record")
	}
	if got := l.Cases("h"); len(got) != 1 {
		t.Errorf("reset touched another community: %d cases left", len(got))
	}
	// Numbering restarts after a reset.
	c, err := l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: bocchi})
	if err != nil {
		t.Fatalf("couldn't record after reset: %v", err)
	}
	if c.Seq != 1 {
		t.Errorf("wrong seq after reset: want 1, got %d", c.Seq)
	}
}

func TestCases(t *testing.T) {
	ctx := context.Background()
	cm := &testCommunity{id: "g", modlog: "log", prefix: "!"}
	l := testLedger(t, newMemStore(), &fakeNotify{})
	for range 5 {
		l.Record(ctx, cm, Entry{Action: Ban, Moderator: &nijika, User: bocchi})
	}
	got := l.Cases("g")
	if len(got) != 5 {
		t.Fatalf("wrong number of cases: want 5, got %d", len(got))
	}
	for i, c := range got {
		if c.Seq != i+1 {
			t.Errorf("cases out of order: want %d at %d, got %d", i+1, i, c.Seq)
		}
	}
}
