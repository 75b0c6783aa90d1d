// Package hierarchy decides who may act on whom.
package hierarchy

import (
	"github.com/wardenbot/warden/community"
	"github.com/wardenbot/warden/platform"
)

// Checker makes rank and standing decisions. All methods are pure
// functions of their arguments and the configured bot owner.
type Checker struct {
	// Owner is the bot owner's user ID. The owner bypasses every check.
	Owner string
}

// Allowed reports whether actor may perform a moderation action on
// subject. With hierarchy enforcement disabled for the community it is
// always true. The community owner and the bot owner always pass;
// otherwise actor's highest role must strictly outrank subject's.
func (k *Checker) Allowed(cm *community.Community, actor, subject *platform.Member) bool {
	if !cm.RespectHierarchy() {
		return true
	}
	if actor.ID == cm.Owner() || actor.ID == k.Owner {
		return true
	}
	return actor.Top().Position > subject.Top().Position
}

// Admin reports whether a member holds administrator-or-higher
// standing: bot owner, community owner, or the community's admin role.
func (k *Checker) Admin(cm *community.Community, m *platform.Member) bool {
	if m.ID == k.Owner || m.ID == cm.Owner() {
		return true
	}
	return hasRole(m, cm.AdminRole())
}

// Mod reports whether a member holds moderator-or-higher standing:
// any admin, the community's mod role, or platform-granted moderation.
func (k *Checker) Mod(cm *community.Community, m *platform.Member) bool {
	if k.Admin(cm, m) {
		return true
	}
	return m.IsModerator || hasRole(m, cm.ModRole())
}

func hasRole(m *platform.Member, name string) bool {
	if name == "" {
		return false
	}
	for _, r := range m.Roles {
		if r.Name == name {
			return true
		}
	}
	return false
}
