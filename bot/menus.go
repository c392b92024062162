package bot

import (
	"invitetrack/entity"
	"invitetrack/lib/sl"
	"log/slog"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
)

// Per-role command menus, pushed with BotCommandScopeChat.

var commandsAnonymous = []tgbotapi.BotCommand{
	{Command: "start", Description: "Register or enable notifications"},
	{Command: "help", Description: "Show available commands"},
}

var commandsUser = []tgbotapi.BotCommand{
	{Command: "start", Description: "Enable notifications"},
	{Command: "stop", Description: "Disable notifications"},
	{Command: "topics", Description: "Show topic subscriptions"},
	{Command: "tier", Description: "Set notification tier"},
	{Command: "status", Description: "Show your settings"},
	{Command: "help", Description: "Show available commands"},
}

var commandsAdmin = []tgbotapi.BotCommand{
	{Command: "start", Description: "Enable notifications"},
	{Command: "stop", Description: "Disable notifications"},
	{Command: "topics", Description: "Show topic subscriptions"},
	{Command: "tier", Description: "Set notification tier"},
	{Command: "level", Description: "Set log level filter"},
	{Command: "status", Description: "Show your settings"},
	{Command: "users", Description: "List all users"},
	{Command: "approve", Description: "Approve a pending user"},
	{Command: "revoke", Description: "Revoke user access"},
	{Command: "admin", Description: "Promote user to admin"},
	{Command: "guilds", Description: "List tracked guilds"},
	{Command: "top", Description: "Top inviters of a guild"},
	{Command: "total", Description: "Total invite uses of a guild"},
	{Command: "help", Description: "Show available commands"},
}

func commandsForRole(role entity.TelegramRole) []tgbotapi.BotCommand {
	switch role {
	case entity.RoleAdmin:
		return commandsAdmin
	case entity.RoleUser:
		return commandsUser
	default:
		return commandsAnonymous
	}
}

func (t *TgBot) setDefaultCommands() {
	_, err := t.api.SetMyCommands(commandsAnonymous, &tgbotapi.SetMyCommandsOpts{
		Scope: tgbotapi.BotCommandScopeDefault{},
	})
	if err != nil {
		t.log.Warn("setting default commands", sl.Err(err))
	}
}

func (t *TgBot) setUserCommands(chatId int64, role entity.TelegramRole) {
	if t.api == nil {
		return
	}
	_, err := t.api.SetMyCommands(commandsForRole(role), &tgbotapi.SetMyCommandsOpts{
		Scope: tgbotapi.BotCommandScopeChat{ChatId: chatId},
	})
	if err != nil {
		t.log.Warn("setting user commands", slog.Int64("chat_id", chatId), sl.Err(err))
	}
}

func (t *TgBot) syncAllUserMenus() {
	t.mu.RLock()
	users := make(map[int64]entity.TelegramRole, len(t.users))
	for id, u := range t.users {
		users[id] = u.TelegramRole
	}
	t.mu.RUnlock()

	for chatId, role := range users {
		t.setUserCommands(chatId, role)
	}
}
