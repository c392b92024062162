package bot

import (
	"fmt"
	"invitetrack/entity"
	"log/slog"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
)

// defaultTopics are assigned to newly approved subscribers.
var defaultTopics = []string{entity.TopicJoin}

func (t *TgBot) start(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	user := t.findUser(chatId)

	if user != nil && user.IsApproved() {
		err := t.db.SetTelegramEnabled(user.TelegramId, true, user.LogLevel)
		if err != nil {
			t.reportError(chatId, "/start", err)
			return nil
		}
		t.plainResponse(chatId, "Notifications ENABLED")
		t.loadUsers()
		return nil
	}

	if user != nil && user.IsPending() {
		t.plainResponse(chatId, "Your registration is awaiting admin approval\\.")
		return nil
	}

	username := ctx.EffectiveUser.Username
	err := t.db.RegisterTelegramUser(chatId, username)
	if err != nil {
		t.reportError(chatId, "/start register", err)
		return nil
	}

	if !t.config.RequireApproval {
		err = t.db.SetTelegramRole(chatId, entity.RoleUser)
		if err != nil {
			t.reportError(chatId, "/start approve", err)
			return nil
		}
		_ = t.db.SetTelegramTopics(chatId, defaultTopics)

		t.plainResponse(chatId, "Welcome\\! Notifications are now ENABLED\\.")
		t.notifyAdmins(fmt.Sprintf("New subscriber: @%s \\(%d\\)", Sanitize(username), chatId))
	} else {
		t.plainResponse(chatId, "Registration received\\. An admin will review your request\\.")
		t.notifyAdmins(fmt.Sprintf("New pending registration: @%s \\(%d\\)\\. Use `/approve %d` to approve\\.", Sanitize(username), chatId, chatId))
	}

	t.loadUsers()
	return nil
}

func (t *TgBot) stop(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	user := t.findUser(chatId)
	if user == nil || !user.IsApproved() {
		return nil
	}

	err := t.db.SetTelegramEnabled(user.TelegramId, false, user.LogLevel)
	if err != nil {
		t.reportError(chatId, "/stop", err)
		return nil
	}
	t.plainResponse(chatId, "Notifications DISABLED")
	t.loadUsers()
	return nil
}

// approvedUser answers unapproved callers and returns nil for them.
func (t *TgBot) approvedUser(chatId int64) *entity.User {
	user := t.findUser(chatId)
	if user == nil || !user.IsApproved() {
		t.plainResponse(chatId, "You need to be approved first\\.")
		return nil
	}
	return user
}

func parseLevel(s string) (slog.Level, bool) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, true
	case "info":
		return slog.LevelInfo, true
	case "warn":
		return slog.LevelWarn, true
	case "error":
		return slog.LevelError, true
	}
	return 0, false
}

func (t *TgBot) level(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	user := t.approvedUser(chatId)
	if user == nil {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		t.plainResponse(chatId, fmt.Sprintf("Your current log level: %s\nAvailable levels: debug, info, warn, error",
			Sanitize(slog.Level(user.LogLevel).String())))
		return nil
	}

	level, ok := parseLevel(args[1])
	if !ok {
		t.plainResponse(chatId, fmt.Sprintf("Invalid level: %s\nAvailable levels: debug, info, warn, error", Sanitize(args[1])))
		return nil
	}

	err := t.db.SetTelegramEnabled(user.TelegramId, true, int(level))
	if err != nil {
		t.reportError(chatId, "/level", err)
		return nil
	}
	t.plainResponse(chatId, fmt.Sprintf("Log level set to: %s", Sanitize(level.String())))
	t.loadUsers()
	return nil
}

func (t *TgBot) topics(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	user := t.approvedUser(chatId)
	if user == nil {
		return nil
	}
	t.plainResponse(chatId, topicsText(user))
	return nil
}

func topicsText(user *entity.User) string {
	var sb strings.Builder
	sb.WriteString("*Available topics:*\n")
	for _, topic := range entity.TopicsForRole(user.TelegramRole) {
		marker := "  "
		if user.HasTopic(topic) {
			marker = "\\+ "
		}
		sb.WriteString(fmt.Sprintf("%s`%s`\n", marker, topic))
	}
	if len(user.TelegramTopics) == 0 {
		sb.WriteString("\nYou are subscribed to *all* topics\\.")
	}
	sb.WriteString("\nUse `/subscribe <topic>` or `/unsubscribe <topic>`")
	return sb.String()
}

func (t *TgBot) subscribe(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	user := t.approvedUser(chatId)
	if user == nil {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	available := Sanitize(strings.Join(entity.TopicsForRole(user.TelegramRole), ", "))
	if len(args) < 2 {
		t.plainResponse(chatId, "Usage: `/subscribe <topic|all>`\nAvailable topics: "+available)
		return nil
	}

	topic := strings.ToLower(args[1])
	var next []string
	switch {
	case topic == "all":
		next = nil
	case entity.IsTopicAllowedForRole(topic, user.TelegramRole):
		next = withTopic(user.TelegramTopics, topic)
	default:
		t.plainResponse(chatId, "Invalid topic: `"+Sanitize(topic)+"`\nAvailable: "+available)
		return nil
	}

	if err := t.db.SetTelegramTopics(chatId, next); err != nil {
		t.reportError(chatId, "/subscribe", err)
		return nil
	}
	t.plainResponse(chatId, "Subscribed to `"+Sanitize(topic)+"`")
	t.loadUsers()
	return nil
}

func (t *TgBot) unsubscribe(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	user := t.approvedUser(chatId)
	if user == nil {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	available := Sanitize(strings.Join(entity.TopicsForRole(user.TelegramRole), ", "))
	if len(args) < 2 {
		t.plainResponse(chatId, "Usage: `/unsubscribe <topic|all>`\nAvailable topics: "+available)
		return nil
	}

	topic := strings.ToLower(args[1])
	var next []string
	switch {
	case topic == "all":
		next = []string{"none"}
	case entity.IsValidTopic(topic):
		next = withoutTopic(user.TelegramTopics, topic, entity.TopicsForRole(user.TelegramRole))
	default:
		t.plainResponse(chatId, "Invalid topic: `"+Sanitize(topic)+"`\nAvailable: "+available)
		return nil
	}

	if err := t.db.SetTelegramTopics(chatId, next); err != nil {
		t.reportError(chatId, "/unsubscribe", err)
		return nil
	}
	t.plainResponse(chatId, "Unsubscribed from `"+Sanitize(topic)+"`")
	t.loadUsers()
	return nil
}

// withTopic adds topic to the list, dropping the "none" sentinel.
func withTopic(current []string, topic string) []string {
	out := make([]string, 0, len(current)+1)
	for _, ct := range current {
		if ct != "none" && ct != topic {
			out = append(out, ct)
		}
	}
	return append(out, topic)
}

// withoutTopic removes topic; an empty current list means every allowed topic.
func withoutTopic(current []string, topic string, allowed []string) []string {
	if len(current) == 0 {
		current = allowed
	}
	out := make([]string, 0, len(current))
	for _, ct := range current {
		if ct != topic {
			out = append(out, ct)
		}
	}
	if len(out) == 0 {
		out = []string{"none"}
	}
	return out
}

func (t *TgBot) tier(_ *tgbotapi.Bot, ctx *ext.Context) error {
	if t.db == nil {
		return nil
	}
	chatId := ctx.EffectiveUser.Id
	user := t.approvedUser(chatId)
	if user == nil {
		return nil
	}

	args := strings.Fields(ctx.EffectiveMessage.Text)
	if len(args) < 2 {
		t.plainResponse(chatId, fmt.Sprintf("Your current tier: `%s`\nAvailable: realtime, critical, digest",
			Sanitize(string(effectiveTier(user)))))
		return nil
	}

	var newTier entity.SubscriptionTier
	switch strings.ToLower(args[1]) {
	case "realtime":
		newTier = entity.TierRealtime
	case "critical":
		newTier = entity.TierCritical
	case "digest":
		newTier = entity.TierDigest
	default:
		t.plainResponse(chatId, "Invalid tier: `"+Sanitize(args[1])+"`\nAvailable: realtime, critical, digest")
		return nil
	}

	if err := t.db.SetSubscriptionTier(chatId, newTier); err != nil {
		t.reportError(chatId, "/tier", err)
		return nil
	}
	t.plainResponse(chatId, "Subscription tier set to: `"+Sanitize(string(newTier))+"`")
	t.loadUsers()
	return nil
}

func effectiveTier(user *entity.User) entity.SubscriptionTier {
	if user.SubscriptionTier == "" {
		return entity.TierRealtime
	}
	return user.SubscriptionTier
}

func (t *TgBot) status(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	user := t.approvedUser(chatId)
	if user == nil {
		return nil
	}
	t.plainResponse(chatId, statusText(user))
	return nil
}

func statusText(user *entity.User) string {
	topics := "all"
	if len(user.TelegramTopics) > 0 {
		topics = strings.Join(user.TelegramTopics, ", ")
	}
	enabled := "yes"
	if !user.TelegramEnabled {
		enabled = "no"
	}
	return fmt.Sprintf(
		"*Your Settings*\n"+
			"Role: `%s`\n"+
			"Enabled: `%s`\n"+
			"Log level: `%s`\n"+
			"Tier: `%s`\n"+
			"Topics: `%s`",
		Sanitize(string(user.TelegramRole)),
		enabled,
		Sanitize(slog.Level(user.LogLevel).String()),
		Sanitize(string(effectiveTier(user))),
		Sanitize(topics),
	)
}

func (t *TgBot) help(_ *tgbotapi.Bot, ctx *ext.Context) error {
	chatId := ctx.EffectiveUser.Id
	t.plainResponse(chatId, helpText(t.requireApproved(chatId), t.requireAdmin(chatId)))
	return nil
}

func helpText(approved, admin bool) string {
	var sb strings.Builder
	sb.WriteString("*Available Commands*\n\n")
	sb.WriteString("`/start` \\- Register or enable notifications\n")
	sb.WriteString("`/help` \\- Show this help\n")

	if approved {
		sb.WriteString("\n*Subscriber Commands:*\n")
		sb.WriteString("`/stop` \\- Disable notifications\n")
		sb.WriteString("`/level <debug|info|warn|error>` \\- Set log level\n")
		sb.WriteString("`/topics` \\- View topic subscriptions\n")
		sb.WriteString("`/subscribe <topic|all>` \\- Subscribe to topic\n")
		sb.WriteString("`/unsubscribe <topic|all>` \\- Unsubscribe from topic\n")
		sb.WriteString("`/tier <realtime|critical|digest>` \\- Set notification tier\n")
		sb.WriteString("`/status` \\- Show your settings\n")
	}

	if admin {
		sb.WriteString("\n*Admin Commands:*\n")
		sb.WriteString("`/users` \\- List all users\n")
		sb.WriteString("`/approve <id|@user>` \\- Approve a user\n")
		sb.WriteString("`/revoke <id|@user>` \\- Revoke a user\n")
		sb.WriteString("`/admin <id|@user>` \\- Promote to admin\n")
		sb.WriteString("`/guilds` \\- List tracked guilds\n")
		sb.WriteString("`/top <guild>` \\- Top inviters of a guild\n")
		sb.WriteString("`/total <guild>` \\- Total invite uses of a guild\n")
	}
	return sb.String()
}
