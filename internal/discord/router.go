package discord

import (
	"context"
	"invitetrack/entity"
	"invitetrack/internal/supervisor"
	"invitetrack/lib/sl"
	"log/slog"

	"github.com/bwmarrin/discordgo"
)

type Attributor interface {
	Enqueue(guildID string, member entity.Member) bool
	Drain(ctx context.Context, guildID string) []*entity.Attribution
	Discard(guildID string) int
	Leave(ctx context.Context, guildID string, member entity.Member) *entity.Departure
}

type Refresher interface {
	Startup(ctx context.Context, guildIDs []string) int
	Refresh(ctx context.Context, guildID string) error
	Tracked(guildID string) bool
	Forget(guildID string)
}

type Tasks interface {
	Go(ctx context.Context, name string, task supervisor.Task) bool
}

// Router turns gateway events into supervised tasks. Handlers return immediately;
// the session dispatches them one at a time in gateway order (SyncEvents), so
// joins are queued in the order they arrived.
type Router struct {
	ctx       context.Context
	engine    Attributor
	refresher Refresher
	commands  *Commands
	tasks     Tasks
	log       *slog.Logger
}

func NewRouter(ctx context.Context, engine Attributor, refresher Refresher, commands *Commands, tasks Tasks, log *slog.Logger) *Router {
	return &Router{
		ctx:       ctx,
		engine:    engine,
		refresher: refresher,
		commands:  commands,
		tasks:     tasks,
		log:       log.With(sl.Module("discord.router")),
	}
}

// Register subscribes the router to the session's gateway events.
func (r *Router) Register(s *discordgo.Session) {
	s.AddHandler(r.onReady)
	s.AddHandler(r.onGuildCreate)
	s.AddHandler(r.onGuildDelete)
	s.AddHandler(r.onMemberAdd)
	s.AddHandler(r.onMemberRemove)
	s.AddHandler(r.onInviteCreate)
	s.AddHandler(r.onInviteDelete)
	if r.commands != nil {
		s.AddHandler(r.onMessageCreate)
	}
}

func (r *Router) onReady(_ *discordgo.Session, e *discordgo.Ready) {
	ids := make([]string, 0, len(e.Guilds))
	for _, g := range e.Guilds {
		ids = append(ids, g.ID)
	}
	r.log.With(slog.Int("guilds", len(ids))).Info("gateway ready")
	r.tasks.Go(r.ctx, "startup", func(ctx context.Context) error {
		r.refresher.Startup(ctx, ids)
		return nil
	})
}

// onGuildCreate also fires for every guild right after Ready; only guilds without
// a snapshot are loaded here.
func (r *Router) onGuildCreate(_ *discordgo.Session, e *discordgo.GuildCreate) {
	if e.Guild == nil || e.Unavailable || r.refresher.Tracked(e.ID) {
		return
	}
	guildID := e.ID
	r.tasks.Go(r.ctx, "guild_create", func(ctx context.Context) error {
		return r.refresher.Refresh(ctx, guildID)
	})
}

func (r *Router) onGuildDelete(_ *discordgo.Session, e *discordgo.GuildDelete) {
	// an unavailable guild is an outage, the bot is still a member
	if e.Guild == nil || e.Unavailable {
		return
	}
	r.refresher.Forget(e.ID)
}

func (r *Router) onMemberAdd(_ *discordgo.Session, e *discordgo.GuildMemberAdd) {
	if e.Member == nil || e.User == nil {
		return
	}
	guildID, member := e.GuildID, toMember(e.User)
	if !r.engine.Enqueue(guildID, member) {
		// a running drain picks it up
		return
	}
	started := r.tasks.Go(r.ctx, "member_join", func(ctx context.Context) error {
		r.engine.Drain(ctx, guildID)
		return nil
	})
	if !started {
		r.engine.Discard(guildID)
	}
}

func (r *Router) onMemberRemove(_ *discordgo.Session, e *discordgo.GuildMemberRemove) {
	if e.Member == nil || e.User == nil {
		return
	}
	guildID, member := e.GuildID, toMember(e.User)
	r.tasks.Go(r.ctx, "member_leave", func(ctx context.Context) error {
		r.engine.Leave(ctx, guildID, member)
		return nil
	})
}

func (r *Router) onInviteCreate(_ *discordgo.Session, e *discordgo.InviteCreate) {
	r.refreshGuild("invite_create", e.GuildID)
}

func (r *Router) onInviteDelete(_ *discordgo.Session, e *discordgo.InviteDelete) {
	r.refreshGuild("invite_delete", e.GuildID)
}

func (r *Router) refreshGuild(name, guildID string) {
	if guildID == "" {
		return
	}
	r.tasks.Go(r.ctx, name, func(ctx context.Context) error {
		return r.refresher.Refresh(ctx, guildID)
	})
}

func (r *Router) onMessageCreate(_ *discordgo.Session, e *discordgo.MessageCreate) {
	if e.Message == nil || e.GuildID == "" || e.Author == nil || e.Author.Bot {
		return
	}
	if !r.commands.Matches(e.Content) {
		return
	}
	msg := e.Message
	r.tasks.Go(r.ctx, "command", func(ctx context.Context) error {
		return r.commands.Handle(ctx, msg)
	})
}

func toMember(u *discordgo.User) entity.Member {
	return entity.Member{
		ID:       u.ID,
		Username: u.Username,
		Bot:      u.Bot,
	}
}
