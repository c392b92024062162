package bot

import (
	"context"
	"fmt"
	"invitetrack/entity"
	"log/slog"
)

func (t *TgBot) SendMessage(msg string) {
	t.SendMessageWithLevel(msg, t.minLogLevel)
}

// SendMessageWithLevel sends a message to all enabled users filtered by log level.
// Delegates to SendMessageWithTopic with an inferred topic.
func (t *TgBot) SendMessageWithLevel(msg string, level slog.Level) {
	topic := entity.TopicSystem
	if level >= slog.LevelError {
		topic = entity.TopicError
	}
	t.SendMessageWithTopic(msg, level, topic)
}

// SendMessageWithTopic sends a message with topic-based routing and tier handling.
func (t *TgBot) SendMessageWithTopic(msg string, level slog.Level, topic string) {
	t.mu.RLock()
	users := make([]*entity.User, 0, len(t.users))
	for _, v := range t.users {
		users = append(users, v)
	}
	t.mu.RUnlock()

	l := int(level)
	for _, user := range users {
		if !user.TelegramEnabled || !user.IsApproved() {
			continue
		}
		if l < user.LogLevel {
			continue
		}
		if !user.HasTopic(topic) {
			continue
		}

		tier := user.SubscriptionTier
		if tier == "" {
			tier = entity.TierRealtime
		}

		switch tier {
		case entity.TierRealtime:
			t.plainResponse(user.TelegramId, msg)
		case entity.TierCritical:
			if level >= slog.LevelError {
				t.plainResponse(user.TelegramId, msg)
			}
		case entity.TierDigest:
			if t.digest != nil {
				t.digest.Add(user.TelegramId, msg, topic, level)
			}
		}
	}
}

// Joined forwards an attribution to subscribers of the join topic.
func (t *TgBot) Joined(_ context.Context, a *entity.Attribution) error {
	t.SendMessageWithTopic(joinText(a), slog.LevelInfo, entity.TopicJoin)
	return nil
}

// Left forwards a departure to subscribers of the leave topic.
func (t *TgBot) Left(_ context.Context, d *entity.Departure) error {
	t.SendMessageWithTopic(leaveText(d), slog.LevelInfo, entity.TopicLeave)
	return nil
}

func joinText(a *entity.Attribution) string {
	member := Sanitize(memberName(a.Member))
	guild := Sanitize(a.GuildID)
	if !a.Known() {
		return fmt.Sprintf("*Join* `%s`\n%s joined, invite unknown \\(%s\\)", guild, member, Sanitize(a.Reason))
	}
	inviter := a.InviterName
	if inviter == "" {
		inviter = a.InviterID
	}
	return fmt.Sprintf("*Join* `%s`\n%s invited by %s\ncode `%s`, uses %d",
		guild, member, Sanitize(inviter), Sanitize(a.Code), a.NewUseCount)
}

func leaveText(d *entity.Departure) string {
	return fmt.Sprintf("*Leave* `%s`\n%s left", Sanitize(d.GuildID), Sanitize(memberName(d.Member)))
}

func memberName(m entity.Member) string {
	if m.Username != "" {
		return m.Username
	}
	return m.ID
}
