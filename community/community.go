// Package community holds per-community state: resolved settings,
// runtime toggles, and the small caches the message pipeline needs.
package community

import (
	"maps"
	"slices"
	"sync"

	"gitlab.com/zephyrtronium/pick"
	"golang.org/x/time/rate"
	sets "gopkg.in/typ.v4/maps"

	"github.com/wardenbot/warden/deque"
	"github.com/wardenbot/warden/modlog"
)

// Settings is a community's moderation settings. The zero value is not
// meaningful; use [DefaultSettings].
type Settings struct {
	// ModLog is the mod-log channel ID. Empty disables case creation
	// and amendment for the community.
	ModLog string `json:"modlog"`
	// RespectHierarchy makes moderation commands compare role rank
	// between actor and subject. Default false.
	RespectHierarchy bool `json:"respect_hierarchy"`
	// DeleteRepeats deletes the third consecutive identical message
	// from a user. Default false.
	DeleteRepeats bool `json:"delete_repeats"`
	// BanMentionSpam is the distinct-mention count at which a message
	// earns its author an automatic ban. Zero disables; the minimum
	// effective threshold is 5.
	BanMentionSpam int `json:"ban_mention_spam"`
	// DeleteDelay is the delay in seconds before the bot deletes
	// command invocations, clamped to 0..60. -1 disables. Default -1.
	DeleteDelay int `json:"delete_delay"`
	// Cases enables case creation per action kind. Defaults follow
	// each action's table entry.
	Cases [modlog.NumActions]bool `json:"cases"`
}

// DefaultSettings returns the documented defaults.
func DefaultSettings() Settings {
	s := Settings{DeleteDelay: -1}
	for a := range modlog.Actions {
		s.Cases[a] = a.DefaultCases()
	}
	return s
}

// Config is the static configuration for a community.
type Config struct {
	// ID is the community's unique identifier.
	ID string
	// Name is the community's display name.
	Name string
	// Owner is the community owner's user ID.
	Owner string
	// AdminRole and ModRole are the role names granting admin and
	// moderator command access.
	AdminRole, ModRole string
	// Prefix is the command prefix.
	Prefix string
	// Emotes is the distribution of flavor emotes for confirmations.
	Emotes *pick.Dist[string]
	// Rate limits the bot's replies in the community.
	Rate *rate.Limiter
	// Settings is the community's initial settings.
	Settings Settings
}

// Community is the live state for one community.
type Community struct {
	id        string
	name      string
	owner     string
	adminRole string
	modRole   string
	prefix    string

	// Emotes is the distribution of flavor emotes. Immutable.
	Emotes *pick.Dist[string]
	// Rate limits replies. Attempts to speak in excess are dropped.
	Rate *rate.Limiter

	mu         sync.Mutex
	s          Settings
	ignored    sets.Set[string]
	ignoredAll bool
	repeats    map[string]deque.Deque[string]
}

// New creates a community from its configuration.
func New(c Config) *Community {
	return &Community{
		id:        c.ID,
		name:      c.Name,
		owner:     c.Owner,
		adminRole: c.AdminRole,
		modRole:   c.ModRole,
		prefix:    c.Prefix,
		Emotes:    c.Emotes,
		Rate:      c.Rate,
		s:         c.Settings,
		ignored:   make(sets.Set[string]),
		repeats:   make(map[string]deque.Deque[string]),
	}
}

func (cm *Community) ID() string        { return cm.id }
func (cm *Community) Name() string      { return cm.name }
func (cm *Community) Owner() string     { return cm.owner }
func (cm *Community) AdminRole() string { return cm.adminRole }
func (cm *Community) ModRole() string   { return cm.modRole }
func (cm *Community) Prefix() string    { return cm.prefix }

// ModLog returns the mod-log channel ID, empty when unconfigured.
func (cm *Community) ModLog() string {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.s.ModLog
}

// SetModLog sets or clears the mod-log channel.
func (cm *Community) SetModLog(channelID string) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.s.ModLog = channelID
}

// CasesEnabled reports whether cases are recorded for an action.
func (cm *Community) CasesEnabled(a modlog.Action) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.s.Cases[a]
}

// SetCasesEnabled toggles case creation for an action.
// It reports whether the value changed.
func (cm *Community) SetCasesEnabled(a modlog.Action, on bool) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.s.Cases[a] == on {
		return false
	}
	cm.s.Cases[a] = on
	return true
}

// RespectHierarchy reports whether role rank gates moderation.
func (cm *Community) RespectHierarchy() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.s.RespectHierarchy
}

// ToggleHierarchy flips hierarchy enforcement and returns the new value.
func (cm *Community) ToggleHierarchy() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.s.RespectHierarchy = !cm.s.RespectHierarchy
	return cm.s.RespectHierarchy
}

// DeleteRepeats reports whether repeated messages are deleted.
func (cm *Community) DeleteRepeats() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.s.DeleteRepeats
}

// ToggleDeleteRepeats flips repeat deletion and returns the new value.
func (cm *Community) ToggleDeleteRepeats() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.s.DeleteRepeats = !cm.s.DeleteRepeats
	return cm.s.DeleteRepeats
}

// BanMentionSpam returns the mention autoban threshold, 0 when off.
func (cm *Community) BanMentionSpam() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.s.BanMentionSpam
}

// SetBanMentionSpam sets the mention autoban threshold.
func (cm *Community) SetBanMentionSpam(n int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.s.BanMentionSpam = n
}

// DeleteDelay returns the command deletion delay in seconds, -1 when off.
func (cm *Community) DeleteDelay() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.s.DeleteDelay
}

// SetDeleteDelay sets the command deletion delay.
func (cm *Community) SetDeleteDelay(secs int) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.s.DeleteDelay = secs
}

// Settings returns a copy of the community's current settings.
func (cm *Community) Settings() Settings {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.s
}

// Apply replaces the community's settings wholesale, e.g. with
// persisted runtime overrides.
func (cm *Community) Apply(s Settings) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.s = s
}

// IgnoreChannel marks a channel ignored. It reports whether the channel
// was newly added.
func (cm *Community) IgnoreChannel(channelID string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.ignored.Has(channelID) {
		return false
	}
	cm.ignored.Add(channelID)
	return true
}

// UnignoreChannel unmarks an ignored channel. It reports whether the
// channel had been ignored.
func (cm *Community) UnignoreChannel(channelID string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if !cm.ignored.Has(channelID) {
		return false
	}
	cm.ignored.Remove(channelID)
	return true
}

// ChannelIgnored reports whether a channel is ignored, either directly
// or because the whole community is.
func (cm *Community) ChannelIgnored(channelID string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.ignoredAll || cm.ignored.Has(channelID)
}

// Ignore marks the whole community ignored. It reports whether the
// community was newly ignored.
func (cm *Community) Ignore() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if cm.ignoredAll {
		return false
	}
	cm.ignoredAll = true
	return true
}

// Unignore unmarks a community-wide ignore. It reports whether the
// community had been ignored.
func (cm *Community) Unignore() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	if !cm.ignoredAll {
		return false
	}
	cm.ignoredAll = false
	return true
}

// Ignored reports whether the whole community is ignored.
func (cm *Community) Ignored() bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return cm.ignoredAll
}

// IgnoredChannels returns the number of ignored channels.
func (cm *Community) IgnoredChannels() int {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	return len(cm.ignored)
}

// Ignores is the persisted form of a community's ignore state.
type Ignores struct {
	// All ignores the whole community.
	All bool `json:"all"`
	// Channels are the individually ignored channel IDs.
	Channels []string `json:"channels"`
}

// Ignores returns a snapshot of the ignore state. Channels are sorted.
func (cm *Community) Ignores() Ignores {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	v := Ignores{All: cm.ignoredAll}
	if len(cm.ignored) > 0 {
		v.Channels = slices.Sorted(maps.Keys(cm.ignored))
	}
	return v
}

// ApplyIgnores replaces the ignore state wholesale, e.g. with
// persisted runtime overrides.
func (cm *Community) ApplyIgnores(v Ignores) {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	cm.ignoredAll = v.All
	cm.ignored = make(sets.Set[string], len(v.Channels))
	for _, ch := range v.Channels {
		cm.ignored.Add(ch)
	}
}

// repeatWindow is how many consecutive messages per user are compared
// for repeat deletion.
const repeatWindow = 3

// Repeated records a user's message and reports whether it is the
// repeatWindow-th identical message in a row.
func (cm *Community) Repeated(userID, text string) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()
	q := cm.repeats[userID].Prepend(text)
	q = q.DropEnd(q.Len() - repeatWindow)
	cm.repeats[userID] = q
	if q.Len() < repeatWindow {
		return false
	}
	s := q.Slice()
	for _, m := range s[1:] {
		if m != s[0] {
			return false
		}
	}
	return true
}
