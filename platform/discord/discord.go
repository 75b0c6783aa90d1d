// Package discord implements [platform.Client] over the Discord REST API.
package discord

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/wardenbot/warden/platform"
)

// Client adapts a discordgo session to the platform boundary.
type Client struct {
	session *discordgo.Session
}

var _ platform.Client = (*Client)(nil)

// New wraps an open discordgo session.
func New(session *discordgo.Session) *Client {
	return &Client{session: session}
}

// translate maps discordgo REST failures onto the platform sentinels.
func translate(err error) error {
	if err == nil {
		return nil
	}
	var rest *discordgo.RESTError
	if errors.As(err, &rest) && rest.Response != nil {
		switch rest.Response.StatusCode {
		case http.StatusForbidden:
			return fmt.Errorf("%w: %v", platform.ErrForbidden, err)
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", platform.ErrNotFound, err)
		}
	}
	return err
}

func (c *Client) Send(ctx context.Context, channelID, text string) (string, error) {
	m, err := c.session.ChannelMessageSendComplex(channelID, &discordgo.MessageSend{
		Content:         text,
		AllowedMentions: &discordgo.MessageAllowedMentions{},
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("couldn't send message: %w", translate(err))
	}
	return m.ID, nil
}

func (c *Client) Edit(ctx context.Context, channelID, messageID, text string) error {
	_, err := c.session.ChannelMessageEdit(channelID, messageID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't edit message: %w", translate(err))
	}
	return nil
}

func (c *Client) Message(ctx context.Context, channelID, messageID string) (*platform.Message, error) {
	m, err := c.session.ChannelMessage(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("couldn't fetch message: %w", translate(err))
	}
	return message(m), nil
}

func (c *Client) Delete(ctx context.Context, channelID, messageID string) error {
	err := c.session.ChannelMessageDelete(channelID, messageID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't delete message: %w", translate(err))
	}
	return nil
}

func (c *Client) BulkDelete(ctx context.Context, channelID string, messageIDs []string) error {
	err := c.session.ChannelMessagesBulkDelete(channelID, messageIDs, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't bulk delete: %w", translate(err))
	}
	return nil
}

func (c *Client) Recent(ctx context.Context, channelID string, limit int, beforeID string) ([]platform.Message, error) {
	ms, err := c.session.ChannelMessages(channelID, limit, beforeID, "", "", discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("couldn't list messages: %w", translate(err))
	}
	r := make([]platform.Message, 0, len(ms))
	for _, m := range ms {
		r = append(r, *message(m))
	}
	return r, nil
}

func (c *Client) SendDM(ctx context.Context, userID, text string) error {
	ch, err := c.session.UserChannelCreate(userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't open DM channel: %w", translate(err))
	}
	_, err = c.session.ChannelMessageSend(ch.ID, text, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't send DM: %w", translate(err))
	}
	return nil
}

func (c *Client) Kick(ctx context.Context, communityID, userID, reason string) error {
	err := c.session.GuildMemberDeleteWithReason(communityID, userID, reason, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't kick: %w", translate(err))
	}
	return nil
}

func (c *Client) Ban(ctx context.Context, communityID, userID, reason string, purgeDays int) error {
	err := c.session.GuildBanCreateWithReason(communityID, userID, reason, purgeDays, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't ban: %w", translate(err))
	}
	return nil
}

func (c *Client) Unban(ctx context.Context, communityID, userID string) error {
	err := c.session.GuildBanDelete(communityID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't unban: %w", translate(err))
	}
	return nil
}

func (c *Client) Bans(ctx context.Context, communityID string) ([]platform.User, error) {
	var r []platform.User
	after := ""
	for {
		bans, err := c.session.GuildBans(communityID, 1000, "", after, discordgo.WithContext(ctx))
		if err != nil {
			return nil, fmt.Errorf("couldn't list bans: %w", translate(err))
		}
		for _, b := range bans {
			r = append(r, user(b.User))
			after = b.User.ID
		}
		if len(bans) < 1000 {
			return r, nil
		}
	}
}

func (c *Client) User(ctx context.Context, userID string) (platform.User, error) {
	u, err := c.session.User(userID, discordgo.WithContext(ctx))
	if err != nil {
		return platform.User{}, fmt.Errorf("couldn't fetch user: %w", translate(err))
	}
	return user(u), nil
}

func (c *Client) Member(ctx context.Context, communityID, userID string) (*platform.Member, error) {
	m, err := c.session.GuildMember(communityID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("couldn't fetch member: %w", translate(err))
	}
	roles, err := c.session.GuildRoles(communityID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("couldn't fetch roles: %w", translate(err))
	}
	return member(m, roles), nil
}

func (c *Client) Channels(ctx context.Context, communityID string) ([]platform.Channel, error) {
	chs, err := c.session.GuildChannels(communityID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, fmt.Errorf("couldn't list channels: %w", translate(err))
	}
	var r []platform.Channel
	for _, ch := range chs {
		if ch.Type != discordgo.ChannelTypeGuildText {
			continue
		}
		r = append(r, platform.Channel{ID: ch.ID, Name: ch.Name})
	}
	return r, nil
}

func (c *Client) Mute(ctx context.Context, channelID, userID string) error {
	deny := int64(discordgo.PermissionSendMessages | discordgo.PermissionAddReactions)
	err := c.session.ChannelPermissionSet(channelID, userID, discordgo.PermissionOverwriteTypeMember, 0, deny, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't mute: %w", translate(err))
	}
	return nil
}

func (c *Client) Unmute(ctx context.Context, channelID, userID string) error {
	err := c.session.ChannelPermissionDelete(channelID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't unmute: %w", translate(err))
	}
	return nil
}

func (c *Client) SetNick(ctx context.Context, communityID, userID, nick string) error {
	err := c.session.GuildMemberNickname(communityID, userID, nick, discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("couldn't set nickname: %w", translate(err))
	}
	return nil
}

func (c *Client) Invite(ctx context.Context, channelID string, maxAge time.Duration) (string, error) {
	inv, err := c.session.ChannelInviteCreate(channelID, discordgo.Invite{
		MaxAge:  int(maxAge / time.Second),
		MaxUses: 1,
		Unique:  true,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return "", fmt.Errorf("couldn't create invite: %w", translate(err))
	}
	return "https://discord.gg/" + inv.Code, nil
}

func user(u *discordgo.User) platform.User {
	if u == nil {
		return platform.User{}
	}
	return platform.User{ID: u.ID, Name: u.String()}
}

func member(m *discordgo.Member, roles []*discordgo.Role) *platform.Member {
	byID := make(map[string]*discordgo.Role, len(roles))
	for _, r := range roles {
		byID[r.ID] = r
	}
	p := &platform.Member{
		User: user(m.User),
		Nick: m.Nick,
	}
	for _, id := range m.Roles {
		r := byID[id]
		if r == nil {
			continue
		}
		p.Roles = append(p.Roles, platform.Role{ID: r.ID, Name: r.Name, Position: r.Position})
	}
	p.IsModerator = m.Permissions&discordgo.PermissionManageMessages != 0
	return p
}

func message(m *discordgo.Message) *platform.Message {
	p := &platform.Message{
		ID:          m.ID,
		ChannelID:   m.ChannelID,
		CommunityID: m.GuildID,
		Sender:      user(m.Author),
		Text:        m.Content,
		Timestamp:   m.Timestamp.UnixMilli(),
		IsBot:       m.Author != nil && m.Author.Bot,
	}
	seen := make(map[string]bool, len(m.Mentions))
	for _, u := range m.Mentions {
		if seen[u.ID] {
			continue
		}
		seen[u.ID] = true
		p.Mentions = append(p.Mentions, user(u))
	}
	return p
}
