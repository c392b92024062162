// Package discord adapts a discordgo session to the rest of the service: REST calls
// for the invite surface, gateway events routed to supervised tasks, prefix
// commands, and the log channel notifications.
package discord

import (
	"context"
	"errors"
	"fmt"
	"invitetrack/entity"
	"invitetrack/lib/errx"
	"net/http"

	"github.com/bwmarrin/discordgo"
)

// rest is the part of *discordgo.Session the client calls.
type rest interface {
	GuildInvites(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Invite, error)
	ChannelInvites(channelID string, options ...discordgo.RequestOption) ([]*discordgo.Invite, error)
	ChannelInviteCreate(channelID string, i discordgo.Invite, options ...discordgo.RequestOption) (*discordgo.Invite, error)
	Invite(inviteID string, options ...discordgo.RequestOption) (*discordgo.Invite, error)
	InviteDelete(inviteID string, options ...discordgo.RequestOption) (*discordgo.Invite, error)
	Channel(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

type Client struct {
	api rest
}

func NewClient(api rest) *Client {
	return &Client{api: api}
}

// NewSession creates a bot session with the intents the service needs: guild
// membership events, invite events and message content for prefix commands.
// Events are dispatched synchronously; handlers must not block.
func NewSession(token string) (*discordgo.Session, error) {
	s, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("creating discord session: %w", err)
	}
	s.Identify.Intents = discordgo.IntentsGuilds |
		discordgo.IntentsGuildMembers |
		discordgo.IntentsGuildInvites |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsMessageContent
	s.SyncEvents = true
	return s, nil
}

func (c *Client) GuildInvites(ctx context.Context, guildID string) ([]entity.Invite, error) {
	list, err := c.api.GuildInvites(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError("discord.GuildInvites", err)
	}
	return convertInvites(list, guildID), nil
}

func (c *Client) ChannelInvites(ctx context.Context, channelID string) ([]entity.Invite, error) {
	list, err := c.api.ChannelInvites(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError("discord.ChannelInvites", err)
	}
	return convertInvites(list, ""), nil
}

func (c *Client) CreateInvite(ctx context.Context, channelID string, maxUses, maxAge int) (*entity.Invite, error) {
	inv, err := c.api.ChannelInviteCreate(channelID, discordgo.Invite{
		MaxUses: maxUses,
		MaxAge:  maxAge,
		Unique:  true,
	}, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError("discord.CreateInvite", err)
	}
	out := convertInvite(inv, "")
	if out.ChannelID == "" {
		out.ChannelID = channelID
	}
	return &out, nil
}

func (c *Client) FetchInvite(ctx context.Context, code string) (*entity.Invite, error) {
	inv, err := c.api.Invite(code, discordgo.WithContext(ctx))
	if err != nil {
		return nil, mapError("discord.FetchInvite", err)
	}
	out := convertInvite(inv, "")
	return &out, nil
}

func (c *Client) DeleteInvite(ctx context.Context, code string) error {
	_, err := c.api.InviteDelete(code, discordgo.WithContext(ctx))
	if err != nil {
		return mapError("discord.DeleteInvite", err)
	}
	return nil
}

// ChannelGuild returns the guild a channel belongs to. DM channels have none.
func (c *Client) ChannelGuild(ctx context.Context, channelID string) (string, error) {
	ch, err := c.api.Channel(channelID, discordgo.WithContext(ctx))
	if err != nil {
		return "", mapError("discord.ChannelGuild", err)
	}
	return ch.GuildID, nil
}

func convertInvites(list []*discordgo.Invite, guildID string) []entity.Invite {
	out := make([]entity.Invite, 0, len(list))
	for _, inv := range list {
		if inv == nil {
			continue
		}
		out = append(out, convertInvite(inv, guildID))
	}
	return out
}

func convertInvite(inv *discordgo.Invite, guildID string) entity.Invite {
	out := entity.Invite{
		Code:      inv.Code,
		Uses:      inv.Uses,
		GuildID:   guildID,
		MaxUses:   inv.MaxUses,
		MaxAge:    inv.MaxAge,
		CreatedAt: inv.CreatedAt,
	}
	if inv.Inviter != nil {
		out.InviterID = inv.Inviter.ID
		out.InviterName = inv.Inviter.Username
	}
	if inv.Channel != nil {
		out.ChannelID = inv.Channel.ID
	}
	if inv.Guild != nil && out.GuildID == "" {
		out.GuildID = inv.Guild.ID
	}
	return out
}

// mapError classifies a discordgo error. Unknown invites are NotFound, missing
// rights are Forbidden, everything else (network, 5xx, rate limits, timeouts) is
// Unavailable.
func mapError(op string, err error) error {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Message != nil {
			switch restErr.Message.Code {
			case discordgo.ErrCodeUnknownInvite:
				return errx.E(op, errx.NotFound, err)
			case discordgo.ErrCodeMissingPermissions, discordgo.ErrCodeMissingAccess:
				return errx.E(op, errx.Forbidden, err)
			}
		}
		if restErr.Response != nil {
			switch restErr.Response.StatusCode {
			case http.StatusNotFound:
				return errx.E(op, errx.NotFound, err)
			case http.StatusForbidden, http.StatusUnauthorized:
				return errx.E(op, errx.Forbidden, err)
			case http.StatusBadRequest:
				return errx.E(op, errx.Invalid, err)
			}
		}
	}
	return errx.E(op, errx.Unavailable, err)
}
