// Package core bundles the services behind the HTTP API and the Telegram admin
// commands.
package core

import (
	"context"
	"errors"
	"invitetrack/entity"
	"invitetrack/lib/errx"
	"invitetrack/lib/sl"
	"log/slog"
)

type AuthService interface {
	UserByToken(token string) (*entity.User, error)
}

type QueryService interface {
	Invites(ctx context.Context, guildID string) ([]entity.Invite, error)
	TotalUses(ctx context.Context, guildID string) (int, error)
	TopInviters(ctx context.Context, guildID string, limit int) ([]entity.InviterTotal, error)
	InviterUses(ctx context.Context, guildID, inviterID string) (int, error)
	MostUsed(ctx context.Context, guildID string) (*entity.Invite, error)
	ChannelInvites(ctx context.Context, channelID string) ([]entity.Invite, error)
	WhoInvited(ctx context.Context, guildID, memberID string) (*entity.Attribution, error)
	RecentJoins(ctx context.Context, guildID, inviterID string, limit int) ([]*entity.Attribution, error)
}

type InviteAdmin interface {
	CreateInvite(ctx context.Context, guildID string, req entity.InviteRequest) (*entity.Invite, error)
	DeleteInvite(ctx context.Context, guildID, code string) error
}

// Tracker lists the guilds that have a snapshot.
type Tracker interface {
	Communities() []string
}

type Core struct {
	queries QueryService
	admin   InviteAdmin
	tracker Tracker
	auth    AuthService
	log     *slog.Logger
}

func New(queries QueryService, admin InviteAdmin, tracker Tracker, log *slog.Logger) *Core {
	return &Core{
		queries: queries,
		admin:   admin,
		tracker: tracker,
		log:     log.With(sl.Module("core")),
	}
}

func (c *Core) SetAuthService(auth AuthService) {
	c.auth = auth
}

func (c *Core) AuthenticateByToken(token string) (*entity.User, error) {
	if c.auth == nil {
		return nil, errx.E("core.Authenticate", errx.Unavailable, errors.New("auth service not connected"))
	}
	user, err := c.auth.UserByToken(token)
	if err != nil {
		c.log.With(sl.Secret("token", token)).Debug("token rejected", sl.Err(err))
		return nil, err
	}
	return user, nil
}

func (c *Core) TrackedGuilds() []string {
	if c.tracker == nil {
		return nil
	}
	return c.tracker.Communities()
}

func (c *Core) Invites(ctx context.Context, guildID string) ([]entity.Invite, error) {
	return c.queries.Invites(ctx, guildID)
}

func (c *Core) TotalUses(ctx context.Context, guildID string) (int, error) {
	return c.queries.TotalUses(ctx, guildID)
}

func (c *Core) TopInviters(ctx context.Context, guildID string, limit int) ([]entity.InviterTotal, error) {
	return c.queries.TopInviters(ctx, guildID, limit)
}

func (c *Core) InviterUses(ctx context.Context, guildID, inviterID string) (int, error) {
	return c.queries.InviterUses(ctx, guildID, inviterID)
}

func (c *Core) MostUsed(ctx context.Context, guildID string) (*entity.Invite, error) {
	return c.queries.MostUsed(ctx, guildID)
}

func (c *Core) ChannelInvites(ctx context.Context, channelID string) ([]entity.Invite, error) {
	return c.queries.ChannelInvites(ctx, channelID)
}

func (c *Core) WhoInvited(ctx context.Context, guildID, memberID string) (*entity.Attribution, error) {
	return c.queries.WhoInvited(ctx, guildID, memberID)
}

func (c *Core) RecentJoins(ctx context.Context, guildID, inviterID string, limit int) ([]*entity.Attribution, error) {
	return c.queries.RecentJoins(ctx, guildID, inviterID, limit)
}

// CreateInvite and DeleteInvite pass through to the admin; it logs the action.
func (c *Core) CreateInvite(ctx context.Context, guildID string, req entity.InviteRequest) (*entity.Invite, error) {
	return c.admin.CreateInvite(ctx, guildID, req)
}

func (c *Core) DeleteInvite(ctx context.Context, guildID, code string) error {
	return c.admin.DeleteInvite(ctx, guildID, code)
}
