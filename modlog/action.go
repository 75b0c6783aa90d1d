package modlog

import "fmt"

// Action is the kind of moderation action a case records.
type Action int

const (
	Ban Action = iota
	Kick
	ChannelMute
	ServerMute
	Softban
	Hackban
	Unban

	// NumActions is the number of action kinds.
	NumActions int = iota
)

// actions is the associated data for each action kind.
// Wire names must never change; they are the persisted representation.
var actions = [NumActions]struct {
	wire  string
	label string
	icon  string
	cases bool
}{
	Ban:         {"BAN", "Ban", "\U0001F528", true},
	Kick:        {"KICK", "Kick", "\U0001F462", true},
	ChannelMute: {"CMUTE", "Channel mute", "\U0001F507", false},
	ServerMute:  {"SMUTE", "Server mute", "\U0001F507", true},
	Softban:     {"SOFTBAN", "Softban", "\U0001F4A8 \U0001F528", true},
	Hackban:     {"HACKBAN", "Preemptive ban", "\U0001F464 \U0001F528", true},
	Unban:       {"UNBAN", "Unban", "\U0001F54A️", true},
}

// String returns the action's wire name, e.g. "BAN".
func (a Action) String() string {
	if !a.valid() {
		return fmt.Sprintf("Action(%d)", int(a))
	}
	return actions[a].wire
}

// Label returns the action's human label, e.g. "Ban".
func (a Action) Label() string { return actions[a].label }

// Icon returns the action's icon glyph.
func (a Action) Icon() string { return actions[a].icon }

// DefaultCases reports whether case creation is enabled for the action
// by default.
func (a Action) DefaultCases() bool { return actions[a].cases }

func (a Action) valid() bool { return 0 <= int(a) && int(a) < NumActions }

// MarshalText implements encoding.TextMarshaler using the wire name.
func (a Action) MarshalText() ([]byte, error) {
	if !a.valid() {
		return nil, fmt.Errorf("modlog: invalid action %d", int(a))
	}
	return []byte(actions[a].wire), nil
}

// UnmarshalText implements encoding.TextUnmarshaler from the wire name.
func (a *Action) UnmarshalText(text []byte) error {
	v, ok := ParseAction(string(text))
	if !ok {
		return fmt.Errorf("modlog: unknown action %q", text)
	}
	*a = v
	return nil
}

// ParseAction resolves a wire name to its action kind.
func ParseAction(s string) (Action, bool) {
	for i := range actions {
		if actions[i].wire == s {
			return Action(i), true
		}
	}
	return 0, false
}

// Actions iterates all action kinds in declaration order.
func Actions(yield func(Action) bool) {
	for i := range NumActions {
		if !yield(Action(i)) {
			return
		}
	}
}
