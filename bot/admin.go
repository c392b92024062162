package bot

import (
	"context"
	"errors"
	"fmt"
	"invitetrack/entity"
	"sort"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// adminArgs checks admin access and returns the command arguments, or nil when
// the caller was already answered.
func (t *TgBot) adminArgs(ctx *ext.Context, usage string) []string {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) {
		t.plainResponse(chatId, "Admin access required\\.")
		return nil
	}
	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		t.plainResponse(chatId, "Usage: `"+usage+"`")
		return nil
	}
	return args[1:]
}

// usersCmd lists all registered Telegram users, grouped by role, with buttons
// for each pending registration.
func (t *TgBot) usersCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) {
		t.plainResponse(chatId, "Admin access required\\.")
		return nil
	}

	t.mu.RLock()
	users := make([]*entity.User, 0, len(t.users))
	for _, u := range t.users {
		users = append(users, u)
	}
	t.mu.RUnlock()

	if len(users) == 0 {
		t.plainResponse(chatId, "No telegram users found\\.")
		return nil
	}
	sort.Slice(users, func(i, j int) bool { return users[i].TelegramId < users[j].TelegramId })

	text, pending := usersText(users)
	for _, part := range splitMessage(text, maxTelegramMessageLen) {
		t.plainResponse(chatId, part)
	}
	for _, u := range pending {
		t.sendWithKeyboard(chatId,
			fmt.Sprintf("Pending: %s", Sanitize(userDisplayName(u))),
			buildPendingUserButtons(u.TelegramId),
		)
	}
	return nil
}

func usersText(users []*entity.User) (string, []*entity.User) {
	grouped := map[entity.TelegramRole][]*entity.User{}
	for _, u := range users {
		grouped[u.TelegramRole] = append(grouped[u.TelegramRole], u)
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Users* \\(%d total\\)\n", len(users)))

	var pending []*entity.User
	for _, role := range []entity.TelegramRole{entity.RoleAdmin, entity.RoleUser, entity.RolePending, entity.RoleNone} {
		roleUsers := grouped[role]
		if len(roleUsers) == 0 {
			continue
		}
		roleName := string(role)
		if roleName == "" {
			roleName = "none"
		}
		sb.WriteString(fmt.Sprintf("\n*%s* \\(%d\\):\n", Sanitize(roleName), len(roleUsers)))
		for _, u := range roleUsers {
			enabled := "off"
			if u.TelegramEnabled {
				enabled = "on"
			}
			topics := "all"
			if len(u.TelegramTopics) > 0 {
				topics = strings.Join(u.TelegramTopics, ",")
			}
			sb.WriteString(fmt.Sprintf("  %s \\| %s \\| tier:%s \\| topics:%s\n",
				Sanitize(userDisplayName(u)),
				enabled,
				Sanitize(string(effectiveTier(u))),
				Sanitize(topics),
			))
			if role == entity.RolePending {
				pending = append(pending, u)
			}
		}
	}
	return sb.String(), pending
}

var errNoDatabase = errors.New("database not connected")

func (t *TgBot) approveUser(target *entity.User) error {
	if t.db == nil {
		return errNoDatabase
	}
	if err := t.db.SetTelegramRole(target.TelegramId, entity.RoleUser); err != nil {
		return err
	}
	_ = t.db.SetTelegramTopics(target.TelegramId, defaultTopics)
	t.plainResponse(target.TelegramId, "Your registration has been approved\\! Notifications are now enabled\\.")
	t.loadUsers()
	t.setUserCommands(target.TelegramId, entity.RoleUser)
	return nil
}

func (t *TgBot) revokeUser(target *entity.User) error {
	if t.db == nil {
		return errNoDatabase
	}
	if err := t.db.SetTelegramRole(target.TelegramId, entity.RoleNone); err != nil {
		return err
	}
	t.plainResponse(target.TelegramId, "Your access has been revoked\\.")
	t.loadUsers()
	t.setUserCommands(target.TelegramId, entity.RoleNone)
	return nil
}

func (t *TgBot) approve(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	args := t.adminArgs(ctx, "/approve <id|@username>")
	if args == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	target := t.resolveUser(args[0])
	if target == nil {
		t.plainResponse(chatId, "User not found: "+Sanitize(args[0]))
		return nil
	}
	if err := t.approveUser(target); err != nil {
		t.reportError(chatId, "/approve", err)
		return nil
	}
	t.plainResponse(chatId, "User "+Sanitize(userDisplayName(target))+" approved\\.")
	return nil
}

func (t *TgBot) revoke(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	args := t.adminArgs(ctx, "/revoke <id|@username>")
	if args == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	target := t.resolveUser(args[0])
	if target == nil {
		t.plainResponse(chatId, "User not found: "+Sanitize(args[0]))
		return nil
	}
	if err := t.revokeUser(target); err != nil {
		t.reportError(chatId, "/revoke", err)
		return nil
	}
	t.plainResponse(chatId, "User "+Sanitize(userDisplayName(target))+" revoked\\.")
	return nil
}

// adminCmd promotes an approved user to admin role.
func (t *TgBot) adminCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	args := t.adminArgs(ctx, "/admin <id|@username>")
	if args == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	target := t.resolveUser(args[0])
	if target == nil {
		t.plainResponse(chatId, "User not found: "+Sanitize(args[0]))
		return nil
	}
	if !target.IsApproved() {
		t.plainResponse(chatId, "User must be approved first\\.")
		return nil
	}

	if err := t.db.SetTelegramRole(target.TelegramId, entity.RoleAdmin); err != nil {
		t.reportError(chatId, "/admin", err)
		return nil
	}

	t.plainResponse(chatId, "User "+Sanitize(userDisplayName(target))+" promoted to admin\\.")
	t.plainResponse(target.TelegramId, "You have been promoted to admin\\!")
	t.loadUsers()
	t.setUserCommands(target.TelegramId, entity.RoleAdmin)
	return nil
}

func (t *TgBot) guildsCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	if !t.requireAdmin(chatId) {
		t.plainResponse(chatId, "Admin access required\\.")
		return nil
	}
	if t.stats == nil {
		t.plainResponse(chatId, "Statistics are not available\\.")
		return nil
	}
	guilds := t.stats.TrackedGuilds()
	if len(guilds) == 0 {
		t.plainResponse(chatId, "No guilds tracked yet\\.")
		return nil
	}
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Tracked guilds* \\(%d\\):\n", len(guilds)))
	for _, g := range guilds {
		sb.WriteString("  `" + Sanitize(g) + "`\n")
	}
	t.plainResponse(chatId, sb.String())
	return nil
}

func (t *TgBot) topCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	args := t.adminArgs(ctx, "/top <guild_id>")
	if args == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	if t.stats == nil {
		t.plainResponse(chatId, "Statistics are not available\\.")
		return nil
	}

	c, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	rows, err := t.stats.TopInviters(c, args[0], 0)
	if err != nil {
		t.reportError(chatId, "/top", err)
		return nil
	}
	t.plainResponse(chatId, topText(args[0], rows))
	return nil
}

func topText(guildID string, rows []entity.InviterTotal) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("*Top inviters* `%s`\n", Sanitize(guildID)))
	if len(rows) == 0 {
		sb.WriteString("Nobody has invited anyone yet\\.")
		return sb.String()
	}
	for i, row := range rows {
		name := row.InviterName
		if name == "" {
			name = row.InviterID
		}
		sb.WriteString(fmt.Sprintf("%d\\. %s \\- %d\n", i+1, Sanitize(name), row.Uses))
	}
	return sb.String()
}

func (t *TgBot) totalCmd(_ *tgbotapi.Bot, ctx *ext.Context) error {
	args := t.adminArgs(ctx, "/total <guild_id>")
	if args == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	if t.stats == nil {
		t.plainResponse(chatId, "Statistics are not available\\.")
		return nil
	}

	c, cancel := context.WithTimeout(context.Background(), statsTimeout)
	defer cancel()
	total, err := t.stats.TotalUses(c, args[0])
	if err != nil {
		t.reportError(chatId, "/total", err)
		return nil
	}
	t.plainResponse(chatId, fmt.Sprintf("Total invite uses in `%s`: *%d*", Sanitize(args[0]), total))
	return nil
}
