// Package refresh keeps the snapshot store close to live state outside of joins:
// at startup, when the bot is added to a guild, and after invites are created or
// deleted. Attribution does not depend on it; the next join replaces the snapshot
// anyway, this only bounds how far the snapshot drifts in between.
package refresh

import (
	"context"
	"fmt"
	"invitetrack/entity"
	"invitetrack/internal/snapshot"
	"invitetrack/lib/errx"
	"invitetrack/lib/sl"
	"invitetrack/lib/validate"
	"log/slog"
	"time"
)

type Platform interface {
	GuildInvites(ctx context.Context, guildID string) ([]entity.Invite, error)
	CreateInvite(ctx context.Context, channelID string, maxUses, maxAge int) (*entity.Invite, error)
	FetchInvite(ctx context.Context, code string) (*entity.Invite, error)
	DeleteInvite(ctx context.Context, code string) error
	ChannelGuild(ctx context.Context, channelID string) (string, error)
}

type Controller struct {
	store    *snapshot.Store
	platform Platform
	timeout  time.Duration
	log      *slog.Logger
}

func New(store *snapshot.Store, platform Platform, timeout time.Duration, log *slog.Logger) *Controller {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Controller{
		store:    store,
		platform: platform,
		timeout:  timeout,
		log:      log.With(sl.Module("refresh")),
	}
}

// Startup builds the snapshot of every guild the bot serves. A failing guild is
// logged and skipped; it gets its snapshot with the first join or refresh.
// Returns the number of guilds loaded.
func (c *Controller) Startup(ctx context.Context, guildIDs []string) int {
	loaded := 0
	for _, id := range guildIDs {
		if err := c.Refresh(ctx, id); err != nil {
			c.log.With(sl.Guild(id)).Warn("initial snapshot", sl.Err(err))
			continue
		}
		loaded++
	}
	c.log.With(
		slog.Int("guilds", len(guildIDs)),
		slog.Int("loaded", loaded),
	).Info("snapshots loaded")
	return loaded
}

// Refresh replaces the guild's snapshot with live state. It holds the guild's
// exclusive section so it never lands in the middle of a join.
func (c *Controller) Refresh(ctx context.Context, guildID string) error {
	unlock := c.store.Lock(guildID)
	defer unlock()

	fetchCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()
	invites, err := c.platform.GuildInvites(fetchCtx, guildID)
	if err != nil {
		return fmt.Errorf("listing invites: %w", err)
	}
	c.store.Replace(guildID, entity.NewSnapshot(invites))
	c.log.With(sl.Guild(guildID), slog.Int("invites", len(invites))).Debug("snapshot refreshed")
	return nil
}

// Tracked reports whether the guild already has a snapshot.
func (c *Controller) Tracked(guildID string) bool {
	return c.store.Has(guildID)
}

// Forget drops a guild the bot no longer serves.
func (c *Controller) Forget(guildID string) {
	c.store.Forget(guildID)
	c.log.With(sl.Guild(guildID)).Info("guild forgotten")
}

// CreateInvite creates an invite in a channel of guildID and refreshes the snapshot.
// Arguments outside the allowed ranges fail with errx.Invalid; a channel of another
// guild fails with errx.NotFound.
func (c *Controller) CreateInvite(ctx context.Context, guildID string, req entity.InviteRequest) (*entity.Invite, error) {
	if err := validate.Struct(req); err != nil {
		return nil, errx.E("refresh.CreateInvite", errx.Invalid, err)
	}
	owner, err := c.platform.ChannelGuild(ctx, req.ChannelID)
	if err != nil {
		return nil, err
	}
	if owner != guildID {
		return nil, errx.E("refresh.CreateInvite", errx.NotFound, fmt.Errorf("channel %s belongs to another guild", req.ChannelID))
	}
	inv, err := c.platform.CreateInvite(ctx, req.ChannelID, req.MaxUses, req.MaxAge)
	if err != nil {
		return nil, err
	}
	if inv.GuildID != "" && inv.GuildID != guildID {
		if err = c.platform.DeleteInvite(context.WithoutCancel(ctx), inv.Code); err != nil {
			c.log.With(sl.Guild(inv.GuildID), slog.String("code", inv.Code)).Error("removing stray invite", sl.Err(err))
		}
		return nil, errx.E("refresh.CreateInvite", errx.NotFound, fmt.Errorf("channel %s belongs to another guild", req.ChannelID))
	}
	c.log.With(
		sl.Guild(guildID),
		slog.String("code", inv.Code),
		slog.String("channel_id", req.ChannelID),
		sl.Topic(entity.TopicInvite),
	).Info("invite created")
	c.refreshAfterChange(ctx, guildID)
	return inv, nil
}

// DeleteInvite removes an invite of guildID. An unknown code, or one that belongs to
// another guild, fails with errx.NotFound; missing rights fail with errx.Forbidden.
func (c *Controller) DeleteInvite(ctx context.Context, guildID, code string) error {
	inv, err := c.platform.FetchInvite(ctx, code)
	if err != nil {
		return err
	}
	if inv.GuildID != "" && inv.GuildID != guildID {
		return errx.E("refresh.DeleteInvite", errx.NotFound, fmt.Errorf("invite %s belongs to another guild", code))
	}
	if err = c.platform.DeleteInvite(ctx, code); err != nil {
		return err
	}
	c.log.With(
		sl.Guild(guildID),
		slog.String("code", code),
		sl.Topic(entity.TopicInvite),
	).Info("invite deleted")
	c.refreshAfterChange(ctx, guildID)
	return nil
}

// refreshAfterChange failures are not reported to the caller: the action itself
// succeeded and the next join repairs the snapshot.
func (c *Controller) refreshAfterChange(ctx context.Context, guildID string) {
	if err := c.Refresh(context.WithoutCancel(ctx), guildID); err != nil {
		c.log.With(sl.Guild(guildID)).Warn("refresh after invite change", sl.Err(err))
	}
}
