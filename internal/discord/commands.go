package discord

import (
	"context"
	"fmt"
	"invitetrack/entity"
	"invitetrack/lib/errx"
	"invitetrack/lib/sl"
	"log/slog"
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
)

const (
	defaultInviteMaxUses = 1
	defaultInviteMaxAge  = 3600
	inviteURLPrefix      = "https://discord.gg/"
)

type Queries interface {
	Invites(ctx context.Context, guildID string) ([]entity.Invite, error)
	TotalUses(ctx context.Context, guildID string) (int, error)
	TopInviters(ctx context.Context, guildID string, limit int) ([]entity.InviterTotal, error)
	InviterUses(ctx context.Context, guildID, inviterID string) (int, error)
	MostUsed(ctx context.Context, guildID string) (*entity.Invite, error)
	GuildChannelInvites(ctx context.Context, guildID, channelID string) ([]entity.Invite, error)
	WhoInvited(ctx context.Context, guildID, memberID string) (*entity.Attribution, error)
}

type InviteAdmin interface {
	CreateInvite(ctx context.Context, guildID string, req entity.InviteRequest) (*entity.Invite, error)
	DeleteInvite(ctx context.Context, guildID, code string) error
}

var commandHelp = []struct {
	usage string
	text  string
}{
	{"invites [@member]", "How many members someone invited."},
	{"invitelist", "Active invites of the server."},
	{"topinvites", "Top 10 inviters."},
	{"createinvite [maxUses] [maxAge]", "Create an invite in this channel."},
	{"deleteinvite <code>", "Delete an invite by code."},
	{"totalinvites", "Total uses of all invites."},
	{"whoinvited @member", "Who invited a member."},
	{"invitedby @member", "How many members someone invited."},
	{"invitesbychannel [#channel]", "Invites of a channel."},
	{"mostusedinvite", "The invite with the most uses."},
	{"aide", "This help."},
}

// Commands answers prefix commands posted in guild channels.
type Commands struct {
	prefix  string
	queries Queries
	admin   InviteAdmin
	msg     Messenger
	log     *slog.Logger
}

func NewCommands(prefix string, queries Queries, admin InviteAdmin, msg Messenger, log *slog.Logger) *Commands {
	if prefix == "" {
		prefix = "?"
	}
	return &Commands{
		prefix:  prefix,
		queries: queries,
		admin:   admin,
		msg:     msg,
		log:     log.With(sl.Module("discord.commands")),
	}
}

// Matches reports whether content looks like a command for this bot.
func (c *Commands) Matches(content string) bool {
	return strings.HasPrefix(content, c.prefix)
}

// Handle runs the command in m, if any. User errors are answered in the channel;
// the returned error is only set when even the reply could not be sent.
func (c *Commands) Handle(ctx context.Context, m *discordgo.Message) error {
	if m == nil || m.GuildID == "" || (m.Author != nil && m.Author.Bot) {
		return nil
	}
	if !c.Matches(m.Content) {
		return nil
	}
	fields := strings.Fields(strings.TrimPrefix(m.Content, c.prefix))
	if len(fields) == 0 {
		return nil
	}
	name, args := strings.ToLower(fields[0]), fields[1:]

	log := c.log.With(
		slog.String("command", name),
		sl.Guild(m.GuildID),
		slog.String("channel_id", m.ChannelID),
	)
	if m.Author != nil {
		log = log.With(slog.String("author_id", m.Author.ID))
	}

	var err error
	switch name {
	case "invites":
		err = c.inviterUses(ctx, m, args, true)
	case "invitedby":
		err = c.inviterUses(ctx, m, args, false)
	case "invitelist":
		err = c.inviteList(ctx, m)
	case "topinvites":
		err = c.topInvites(ctx, m)
	case "createinvite":
		err = c.createInvite(ctx, m, args)
	case "deleteinvite":
		err = c.deleteInvite(ctx, m, args)
	case "totalinvites":
		err = c.totalInvites(ctx, m)
	case "whoinvited":
		err = c.whoInvited(ctx, m, args)
	case "invitesbychannel":
		err = c.channelInvites(ctx, m, args)
	case "mostusedinvite":
		err = c.mostUsed(ctx, m)
	case "aide", "help":
		err = c.sendEmbed(ctx, m.ChannelID, helpEmbed(c.prefix))
	default:
		return nil
	}
	if err == nil {
		log.Debug("command handled")
		return nil
	}
	log.Warn("command failed", sl.Err(err))
	return c.send(ctx, m.ChannelID, failureText(err))
}

func (c *Commands) inviterUses(ctx context.Context, m *discordgo.Message, args []string, selfDefault bool) error {
	userID := ""
	if len(args) > 0 {
		userID = parseUserID(args[0])
	} else if selfDefault && m.Author != nil {
		userID = m.Author.ID
	}
	if userID == "" {
		return errx.E("discord.invitedby", errx.Invalid, fmt.Errorf("usage: %sinvitedby @member", c.prefix))
	}
	total, err := c.queries.InviterUses(ctx, m.GuildID, userID)
	if err != nil {
		return err
	}
	return c.sendEmbed(ctx, m.ChannelID, &discordgo.MessageEmbed{
		Title:       "📊 Invite statistics",
		Description: fmt.Sprintf("**%s** invited **%d** members!", mention(userID), total),
		Color:       colorStats,
	})
}

func (c *Commands) inviteList(ctx context.Context, m *discordgo.Message) error {
	invites, err := c.queries.Invites(ctx, m.GuildID)
	if err != nil {
		return err
	}
	return c.sendEmbed(ctx, m.ChannelID, inviteListEmbed("🔗 Active invites", invites))
}

func (c *Commands) topInvites(ctx context.Context, m *discordgo.Message) error {
	rows, err := c.queries.TopInviters(ctx, m.GuildID, 0)
	if err != nil {
		return err
	}
	return c.sendEmbed(ctx, m.ChannelID, rankingEmbed(rows))
}

func (c *Commands) createInvite(ctx context.Context, m *discordgo.Message, args []string) error {
	req := entity.InviteRequest{
		ChannelID: m.ChannelID,
		MaxUses:   defaultInviteMaxUses,
		MaxAge:    defaultInviteMaxAge,
	}
	var err error
	if len(args) > 0 {
		if req.MaxUses, err = strconv.Atoi(args[0]); err != nil {
			return errx.E("discord.createinvite", errx.Invalid, fmt.Errorf("maxUses must be a number"))
		}
	}
	if len(args) > 1 {
		if req.MaxAge, err = strconv.Atoi(args[1]); err != nil {
			return errx.E("discord.createinvite", errx.Invalid, fmt.Errorf("maxAge must be a number of seconds"))
		}
	}
	inv, err := c.admin.CreateInvite(ctx, m.GuildID, req)
	if err != nil {
		return err
	}
	return c.send(ctx, m.ChannelID, "🔗 New invite: "+inviteURLPrefix+inv.Code)
}

func (c *Commands) deleteInvite(ctx context.Context, m *discordgo.Message, args []string) error {
	if len(args) == 0 {
		return errx.E("discord.deleteinvite", errx.Invalid, fmt.Errorf("usage: %sdeleteinvite <code>", c.prefix))
	}
	code := strings.TrimPrefix(args[0], inviteURLPrefix)
	if err := c.admin.DeleteInvite(ctx, m.GuildID, code); err != nil {
		return err
	}
	return c.send(ctx, m.ChannelID, fmt.Sprintf("✅ Invite `%s` deleted.", code))
}

func (c *Commands) totalInvites(ctx context.Context, m *discordgo.Message) error {
	total, err := c.queries.TotalUses(ctx, m.GuildID)
	if err != nil {
		return err
	}
	return c.send(ctx, m.ChannelID, fmt.Sprintf("📊 Total invite uses: **%d**", total))
}

func (c *Commands) whoInvited(ctx context.Context, m *discordgo.Message, args []string) error {
	userID := ""
	if len(args) > 0 {
		userID = parseUserID(args[0])
	}
	if userID == "" {
		return errx.E("discord.whoinvited", errx.Invalid, fmt.Errorf("usage: %swhoinvited @member", c.prefix))
	}
	a, err := c.queries.WhoInvited(ctx, m.GuildID, userID)
	if err != nil {
		if errx.Is(err, errx.NotFound) {
			return c.send(ctx, m.ChannelID, fmt.Sprintf("Cannot tell who invited **%s**.", mention(userID)))
		}
		return err
	}
	if !a.Known() {
		return c.send(ctx, m.ChannelID, fmt.Sprintf("**%s** joined through an unknown invite.", mention(userID)))
	}
	return c.send(ctx, m.ChannelID, fmt.Sprintf("**%s** was invited by **%s** (`%s`).", mention(userID), mention(a.InviterID), a.Code))
}

func (c *Commands) channelInvites(ctx context.Context, m *discordgo.Message, args []string) error {
	channelID := m.ChannelID
	if len(args) > 0 {
		if id := parseChannelID(args[0]); id != "" {
			channelID = id
		}
	}
	invites, err := c.queries.GuildChannelInvites(ctx, m.GuildID, channelID)
	if err != nil {
		if errx.Is(err, errx.NotFound) {
			return c.send(ctx, m.ChannelID, "That channel is not part of this server.")
		}
		return err
	}
	return c.sendEmbed(ctx, m.ChannelID, inviteListEmbed("🔗 Invites in <#"+channelID+">", invites))
}

func (c *Commands) mostUsed(ctx context.Context, m *discordgo.Message) error {
	inv, err := c.queries.MostUsed(ctx, m.GuildID)
	if err != nil {
		if errx.Is(err, errx.NotFound) {
			return c.send(ctx, m.ChannelID, "No invites found.")
		}
		return err
	}
	return c.send(ctx, m.ChannelID, fmt.Sprintf("🏅 The most used invite is `%s` by %s with %d uses.",
		inv.Code, mention(inv.InviterID), inv.Uses))
}

func (c *Commands) send(ctx context.Context, channelID, text string) error {
	_, err := c.msg.ChannelMessageSend(channelID, text, discordgo.WithContext(ctx))
	return err
}

func (c *Commands) sendEmbed(ctx context.Context, channelID string, e *discordgo.MessageEmbed) error {
	_, err := c.msg.ChannelMessageSendEmbed(channelID, e, discordgo.WithContext(ctx))
	return err
}

func failureText(err error) string {
	switch errx.KindOf(err) {
	case errx.NotFound:
		return "❌ Invite not found."
	case errx.Forbidden:
		return "❌ I am missing the permissions for that."
	case errx.Invalid:
		return "❌ " + innermost(err)
	default:
		return "❌ Discord did not answer, try again later."
	}
}

// innermost returns the message of the root cause, without operation prefixes.
func innermost(err error) string {
	for {
		u, ok := err.(interface{ Unwrap() error })
		if !ok || u.Unwrap() == nil {
			return err.Error()
		}
		err = u.Unwrap()
	}
}

// parseUserID accepts <@id>, <@!id> or a bare numeric id.
func parseUserID(arg string) string {
	arg = strings.TrimSuffix(strings.TrimPrefix(arg, "<@"), ">")
	arg = strings.TrimPrefix(arg, "!")
	if !isSnowflake(arg) {
		return ""
	}
	return arg
}

// parseChannelID accepts <#id> or a bare numeric id.
func parseChannelID(arg string) string {
	arg = strings.TrimSuffix(strings.TrimPrefix(arg, "<#"), ">")
	if !isSnowflake(arg) {
		return ""
	}
	return arg
}

func isSnowflake(s string) bool {
	if s == "" {
		return false
	}
	_, err := strconv.ParseUint(s, 10, 64)
	return err == nil
}
