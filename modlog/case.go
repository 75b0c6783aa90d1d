package modlog

import (
	"bytes"
	"fmt"
	"math"
	"slices"
	"strconv"
	"time"

	"github.com/go-json-experiment/json"

	"github.com/wardenbot/warden/platform"
)

// Case is one moderation audit record.
// A Case belongs to exactly one community and is owned by the Ledger;
// no other component mutates its fields.
type Case struct {
	// Community is the community the case belongs to.
	Community string
	// Seq is the case's sequence number, unique within the community,
	// 1-based, assigned at creation and never reused.
	Seq int
	// Action is the recorded action kind.
	Action Action
	// Created is when the case was created.
	Created time.Time
	// Modified is when the case's reason was last replaced.
	// Zero until a non-empty reason is overwritten.
	Modified time.Time
	// Channel is the channel ID for channel-scoped actions.
	Channel string
	// User is the acted-upon user.
	User platform.User
	// Moderator is the acting moderator, nil until claimed.
	Moderator *platform.User
	// Reason is the free-text reason, empty when unset.
	Reason string
	// AmendedBy is the actor who edited the case on another
	// moderator's behalf, nil if never amended by someone else.
	AmendedBy *platform.User
	// MessageID is the posted notification message, empty if the post
	// failed or was never attempted.
	MessageID string
	// Until is the end of a time-bounded action, zero when unbounded.
	Until time.Time
}

// record is the persisted form of a Case. Key names and null-when-unset
// semantics are part of the wire format; consumers rely on key presence.
type record struct {
	Case      int      `json:"case"`
	Created   float64  `json:"created"`
	Modified  *float64 `json:"modified"`
	Action    string   `json:"action"`
	Channel   *string  `json:"channel"`
	User      string   `json:"user"`
	UserID    string   `json:"user_id"`
	Reason    *string  `json:"reason"`
	Moderator *string  `json:"moderator"`
	ModID     *string  `json:"moderator_id"`
	AmendedBy *string  `json:"amended_by"`
	AmendedID *string  `json:"amended_id"`
	Message   *string  `json:"message"`
	Until     *float64 `json:"until"`
}

// Timestamps persist as POSIX seconds with millisecond precision so
// that a decoded time re-encodes to the identical float.

func stamp(t time.Time) float64 {
	return float64(t.UnixMilli()) / 1e3
}

func unstamp(f float64) time.Time {
	return time.UnixMilli(int64(math.Round(f * 1e3))).UTC()
}

func optstamp(t time.Time) *float64 {
	if t.IsZero() {
		return nil
	}
	f := stamp(t)
	return &f
}

func optstr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (c *Case) record() *record {
	r := &record{
		Case:     c.Seq,
		Created:  stamp(c.Created),
		Modified: optstamp(c.Modified),
		Action:   c.Action.String(),
		Channel:  optstr(c.Channel),
		User:     c.User.Name,
		UserID:   c.User.ID,
		Reason:   optstr(c.Reason),
		Message:  optstr(c.MessageID),
		Until:    optstamp(c.Until),
	}
	if c.Moderator != nil {
		r.Moderator = &c.Moderator.Name
		r.ModID = &c.Moderator.ID
	}
	if c.AmendedBy != nil {
		r.AmendedBy = &c.AmendedBy.Name
		r.AmendedID = &c.AmendedBy.ID
	}
	return r
}

func (r *record) caseOf(community string) (*Case, error) {
	act, ok := ParseAction(r.Action)
	if !ok {
		return nil, fmt.Errorf("case %d has unknown action %q", r.Case, r.Action)
	}
	c := &Case{
		Community: community,
		Seq:       r.Case,
		Action:    act,
		Created:   unstamp(r.Created),
	}
	if r.Modified != nil {
		c.Modified = unstamp(*r.Modified)
	}
	if r.Channel != nil {
		c.Channel = *r.Channel
	}
	c.User = platform.User{ID: r.UserID, Name: r.User}
	if r.Reason != nil {
		c.Reason = *r.Reason
	}
	if r.ModID != nil || r.Moderator != nil {
		u := platform.User{}
		if r.ModID != nil {
			u.ID = *r.ModID
		}
		if r.Moderator != nil {
			u.Name = *r.Moderator
		}
		c.Moderator = &u
	}
	if r.AmendedID != nil || r.AmendedBy != nil {
		u := platform.User{}
		if r.AmendedID != nil {
			u.ID = *r.AmendedID
		}
		if r.AmendedBy != nil {
			u.Name = *r.AmendedBy
		}
		c.AmendedBy = &u
	}
	if r.Message != nil {
		c.MessageID = *r.Message
	}
	if r.Until != nil {
		c.Until = unstamp(*r.Until)
	}
	return c, nil
}

// marshalCases encodes one community's ledger as a JSON object mapping
// sequence-number strings to case records in numeric order.
func marshalCases(cases map[int]*Case) ([]byte, error) {
	seqs := make([]int, 0, len(cases))
	for n := range cases {
		seqs = append(seqs, n)
	}
	slices.Sort(seqs)
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range seqs {
		if i > 0 {
			buf.WriteByte(',')
		}
		b, err := json.Marshal(cases[n].record(), json.Deterministic(true))
		if err != nil {
			return nil, fmt.Errorf("couldn't encode case %d: %w", n, err)
		}
		buf.WriteString(strconv.Quote(strconv.Itoa(n)))
		buf.WriteByte(':')
		buf.Write(b)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// unmarshalCases decodes one community's ledger.
func unmarshalCases(community string, data []byte) (map[int]*Case, error) {
	var rs map[string]*record
	if err := json.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("couldn't decode ledger for %s: %w", community, err)
	}
	cases := make(map[int]*Case, len(rs))
	for k, r := range rs {
		n, err := strconv.Atoi(k)
		if err != nil {
			return nil, fmt.Errorf("ledger for %s has non-numeric case key %q", community, k)
		}
		c, err := r.caseOf(community)
		if err != nil {
			return nil, fmt.Errorf("ledger for %s: %w", community, err)
		}
		cases[n] = c
	}
	return cases, nil
}
