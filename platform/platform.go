// Package platform defines the chat platform boundary.
//
// The bot's logic talks to the platform exclusively through [Client].
// Implementations translate their SDK's failures into the sentinel
// errors defined here so that callers can react uniformly.
package platform

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrForbidden indicates the bot lacks permission for an operation.
	ErrForbidden = errors.New("platform: forbidden")
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("platform: not found")
)

// User is a platform user.
type User struct {
	// ID is the user's unique identifier.
	ID string
	// Name is the user's display label, e.g. name#discriminator.
	Name string
}

// Role is a community role.
type Role struct {
	// ID is the role's unique identifier.
	ID string
	// Name is the role's name.
	Name string
	// Position is the role's rank; greater outranks lesser.
	Position int
}

// Member is a user together with their standing in a community.
type Member struct {
	User
	// Nick is the member's community nickname, if any.
	Nick string
	// Roles is the member's roles. Order is not significant.
	Roles []Role
	// IsModerator indicates the platform granted the member
	// message-management permissions independent of configured roles.
	IsModerator bool
}

// Top returns the member's highest-ranked role.
// The zero Role is returned for a member with no roles.
func (m *Member) Top() Role {
	var top Role
	for _, r := range m.Roles {
		if r.Position > top.Position {
			top = r
		}
	}
	return top
}

// Channel is a text channel in a community.
type Channel struct {
	ID   string
	Name string
}

// Message is a message observed in a channel.
type Message struct {
	// ID is the unique ID of the message.
	ID string
	// ChannelID is the channel the message was sent to.
	ChannelID string
	// CommunityID is the community owning the channel, if any.
	CommunityID string
	// Sender is the message author.
	Sender User
	// Text is the message text.
	Text string
	// Timestamp is the message time as milliseconds since the Unix epoch.
	Timestamp int64
	// Mentions is the set of distinct users mentioned by the message.
	Mentions []User
	// IsBot indicates the author is a bot account.
	IsBot bool
}

func (m *Message) Time() time.Time {
	return time.UnixMilli(m.Timestamp)
}

// Client is the full set of platform operations the bot performs.
// Every method honors its context and returns ErrForbidden or
// ErrNotFound for the corresponding platform failures.
type Client interface {
	// Send posts text to a channel and returns the new message's ID.
	Send(ctx context.Context, channelID, text string) (string, error)
	// Edit replaces the text of a previously posted message.
	Edit(ctx context.Context, channelID, messageID, text string) error
	// Message fetches a single message.
	Message(ctx context.Context, channelID, messageID string) (*Message, error)
	// Delete removes a single message.
	Delete(ctx context.Context, channelID, messageID string) error
	// BulkDelete removes up to 100 messages at once.
	BulkDelete(ctx context.Context, channelID string, messageIDs []string) error
	// Recent lists up to limit messages posted before the given message
	// ID, newest first. An empty beforeID starts from the present.
	Recent(ctx context.Context, channelID string, limit int, beforeID string) ([]Message, error)
	// SendDM sends a direct message to a user.
	SendDM(ctx context.Context, userID, text string) error

	// Kick removes a member from a community.
	Kick(ctx context.Context, communityID, userID, reason string) error
	// Ban bans a user, purging purgeDays days of their messages.
	// The user need not be a member.
	Ban(ctx context.Context, communityID, userID, reason string, purgeDays int) error
	// Unban lifts a ban.
	Unban(ctx context.Context, communityID, userID string) error
	// Bans lists the community's banned users.
	Bans(ctx context.Context, communityID string) ([]User, error)

	// User resolves a user by ID, member or not.
	User(ctx context.Context, userID string) (User, error)
	// Member resolves a community member with their roles.
	Member(ctx context.Context, communityID, userID string) (*Member, error)
	// Channels lists the community's text channels.
	Channels(ctx context.Context, communityID string) ([]Channel, error)

	// Mute denies a user permission to speak in a channel.
	Mute(ctx context.Context, channelID, userID string) error
	// Unmute removes a previously set speaking restriction.
	Unmute(ctx context.Context, channelID, userID string) error
	// SetNick changes a member's nickname. Empty clears it.
	SetNick(ctx context.Context, communityID, userID, nick string) error
	// Invite creates an invite link for a channel.
	Invite(ctx context.Context, channelID string, maxAge time.Duration) (string, error)
}
