package bot

import (
	"fmt"
	"invitetrack/entity"
	"invitetrack/lib/sl"
	"log/slog"
	"strconv"
	"strings"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

// MarkdownV2 reserved characters.
const reservedChars = "\\_*[]()~`>#+-=|{}.!"

func (t *TgBot) plainResponse(chatId int64, text string) {
	if text == "" {
		t.log.With(slog.Int64("id", chatId)).Debug("empty message")
		return
	}

	_, err := t.out.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode: "MarkdownV2",
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message", sl.Err(err))
		_, err = t.out.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Error("sending safe message", sl.Err(err))
		}
	}
}

func Sanitize(input string) string {
	var sb strings.Builder
	sb.Grow(len(input))
	for _, char := range input {
		if strings.ContainsRune(reservedChars, char) {
			sb.WriteByte('\\')
		}
		sb.WriteRune(char)
	}
	return sb.String()
}

func (t *TgBot) requireAdmin(chatId int64) bool {
	user := t.findUser(chatId)
	return user != nil && user.IsAdmin()
}

func (t *TgBot) requireApproved(chatId int64) bool {
	user := t.findUser(chatId)
	return user != nil && user.IsApproved()
}

func (t *TgBot) findUserByUsername(username string) *entity.User {
	username = strings.TrimPrefix(username, "@")
	t.mu.RLock()
	defer t.mu.RUnlock()
	for _, user := range t.users {
		if strings.EqualFold(user.TelegramUsername, username) {
			return user
		}
	}
	return nil
}

// resolveUser finds a user by @username or numeric telegram ID string.
func (t *TgBot) resolveUser(identifier string) *entity.User {
	if strings.HasPrefix(identifier, "@") {
		return t.findUserByUsername(identifier)
	}
	id, err := strconv.ParseInt(identifier, 10, 64)
	if err != nil {
		return nil
	}
	return t.findUser(id)
}

func (t *TgBot) notifyAdmins(msg string) {
	t.mu.RLock()
	adminIds := make([]int64, len(t.adminIds))
	copy(adminIds, t.adminIds)
	t.mu.RUnlock()

	for _, id := range adminIds {
		t.plainResponse(id, msg)
	}
}

// splitMessage cuts text into parts of at most maxLen bytes, preferring line ends.
func splitMessage(text string, maxLen int) []string {
	if len(text) <= maxLen {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		cutAt := maxLen
		if nlIdx := strings.LastIndex(text[:maxLen], "\n"); nlIdx > 0 {
			cutAt = nlIdx + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}

func userDisplayName(user *entity.User) string {
	if user == nil {
		return "unknown"
	}
	if user.TelegramUsername != "" {
		return fmt.Sprintf("@%s (%d)", user.TelegramUsername, user.TelegramId)
	}
	return fmt.Sprintf("%d", user.TelegramId)
}

func (t *TgBot) sendWithKeyboard(chatId int64, text string, keyboard tgbotapi.InlineKeyboardMarkup) {
	if text == "" {
		return
	}
	_, err := t.out.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
		ParseMode:   "MarkdownV2",
		ReplyMarkup: keyboard,
	})
	if err != nil {
		t.log.With(slog.Int64("id", chatId)).Warn("sending message with keyboard", sl.Err(err))
		_, err = t.out.SendMessage(chatId, text, &tgbotapi.SendMessageOpts{
			ReplyMarkup: keyboard,
		})
		if err != nil {
			t.log.With(slog.Int64("id", chatId)).Error("sending message with keyboard fallback", sl.Err(err))
		}
	}
}

// sanitizeUserTopics drops subscriptions to topics a user's role may no longer
// receive, then reloads the cache.
func (t *TgBot) sanitizeUserTopics() {
	if t.db == nil {
		return
	}

	t.mu.RLock()
	users := make([]*entity.User, 0, len(t.users))
	for _, u := range t.users {
		users = append(users, u)
	}
	t.mu.RUnlock()

	changed := 0
	for _, user := range users {
		filtered, ok := allowedTopics(user)
		if !ok {
			continue
		}
		if err := t.db.SetTelegramTopics(user.TelegramId, filtered); err != nil {
			t.log.Warn("sanitizing topics", slog.Int64("user_id", user.TelegramId), sl.Err(err))
			continue
		}
		changed++
	}
	if changed > 0 {
		t.loadUsers()
	}
}

// allowedTopics filters the user's topics by role; ok is false when nothing changes.
func allowedTopics(user *entity.User) ([]string, bool) {
	if len(user.TelegramTopics) == 0 {
		return nil, false
	}
	allowed := make(map[string]bool)
	for _, a := range entity.TopicsForRole(user.TelegramRole) {
		allowed[a] = true
	}

	filtered := make([]string, 0, len(user.TelegramTopics))
	for _, topic := range user.TelegramTopics {
		if topic == "none" || allowed[topic] {
			filtered = append(filtered, topic)
		}
	}
	if len(filtered) == len(user.TelegramTopics) {
		return nil, false
	}
	if len(filtered) == 0 {
		filtered = []string{"none"}
	}
	return filtered, true
}

// reportError logs the error, notifies admins with details, and sends a neutral message to the user.
func (t *TgBot) reportError(chatId int64, command string, err error) {
	t.log.Error("bot command failed",
		slog.String("command", command),
		slog.Int64("user_id", chatId),
		sl.Err(err),
	)
	t.notifyAdmins(fmt.Sprintf(
		"Command `%s` failed\nUser: `%d`\nError: `%s`",
		Sanitize(command), chatId, Sanitize(err.Error()),
	))
	t.plainResponse(chatId, "Something went wrong\\. Please try again later\\.")
}
