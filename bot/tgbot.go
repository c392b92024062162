// Package bot implements the Telegram side of the tracker: subscribers receive
// join and leave notifications for the guilds they follow, admins manage
// subscribers and read invite statistics.
//
// Files:
//   - tgbot.go: TgBot, lifecycle, user cache, Database and Stats interfaces
//   - commands.go: subscriber commands /start, /stop, /level, /topics, /tier, /status, /help
//   - admin.go: admin commands /users, /approve, /revoke, /admin, /guilds, /top, /total
//   - buttons.go: inline approve/revoke buttons for pending registrations
//   - menus.go: per-role command menus
//   - messaging.go: level filter → topic filter → tier dispatch; Joined/Left sink
//   - digest.go: DigestBuffer for batched delivery
//   - helpers.go: Sanitize, plainResponse, resolveUser, reportError
//
// The users map and adminIds are guarded by mu; loadUsers replaces both.
package bot

import (
	"context"
	"fmt"
	"invitetrack/entity"
	"invitetrack/lib/sl"
	"log/slog"
	"sync"
	"time"

	tgbotapi "github.com/PaulSonOfLars/gotgbot/v2"
	"github.com/PaulSonOfLars/gotgbot/v2/ext"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers"
	"github.com/PaulSonOfLars/gotgbot/v2/ext/handlers/filters/callbackquery"
)

// BotConfig holds Telegram-specific configuration loaded from the YAML config file.
type BotConfig struct {
	RequireApproval   bool
	DigestIntervalMin int
}

// Database defines the storage operations the bot depends on.
// Implemented by internal/database/mongo.go.
type Database interface {
	GetAllTelegramUsers() ([]*entity.User, error)
	SetTelegramEnabled(id int64, isActive bool, logLevel int) error
	RegisterTelegramUser(telegramId int64, username string) error
	SetTelegramRole(telegramId int64, role entity.TelegramRole) error
	SetTelegramTopics(telegramId int64, topics []string) error
	SetSubscriptionTier(telegramId int64, tier entity.SubscriptionTier) error
}

// Stats answers the admin statistics commands.
type Stats interface {
	TrackedGuilds() []string
	TotalUses(ctx context.Context, guildID string) (int, error)
	TopInviters(ctx context.Context, guildID string, limit int) ([]entity.InviterTotal, error)
}

// sender is the part of *tgbotapi.Bot used to deliver messages.
type sender interface {
	SendMessage(chatId int64, text string, opts *tgbotapi.SendMessageOpts) (*tgbotapi.Message, error)
}

const statsTimeout = 15 * time.Second

type TgBot struct {
	log         *slog.Logger
	api         *tgbotapi.Bot
	out         sender
	db          Database
	stats       Stats
	mu          sync.RWMutex
	users       map[int64]*entity.User // telegram_id → User; includes all roles
	minLogLevel slog.Level
	updater     *ext.Updater
	digest      *DigestBuffer
	adminIds    []int64
	config      BotConfig
}

func NewTgBot(apiKey string, db Database, log *slog.Logger, cfg BotConfig) (*TgBot, error) {
	if cfg.DigestIntervalMin == 0 {
		cfg.DigestIntervalMin = 60
	}

	tgBot := &TgBot{
		log:         log.With(sl.Module("tgbot")),
		db:          db,
		minLogLevel: slog.LevelDebug,
		users:       make(map[int64]*entity.User),
		config:      cfg,
	}

	api, err := tgbotapi.NewBot(apiKey, nil)
	if err != nil {
		return nil, fmt.Errorf("creating api instance: %w", err)
	}
	tgBot.api = api
	tgBot.out = api

	return tgBot, nil
}

func (t *TgBot) SetStats(stats Stats) {
	t.stats = stats
}

// Start loads subscribers, registers handlers and blocks while polling.
func (t *TgBot) Start() error {
	t.loadUsers()
	t.sanitizeUserTopics()

	interval := time.Duration(t.config.DigestIntervalMin) * time.Minute
	t.digest = NewDigestBuffer(t, interval)
	t.digest.StartTicker()

	dispatcher := ext.NewDispatcher(&ext.DispatcherOpts{
		Error: func(b *tgbotapi.Bot, ctx *ext.Context, err error) ext.DispatcherAction {
			t.log.Error("handling update", sl.Err(err))
			return ext.DispatcherActionNoop
		},
		MaxRoutines: ext.DefaultMaxRoutines,
	})
	t.updater = ext.NewUpdater(dispatcher, nil)

	dispatcher.AddHandler(handlers.NewCommand("start", t.start))
	dispatcher.AddHandler(handlers.NewCommand("stop", t.stop))
	dispatcher.AddHandler(handlers.NewCommand("level", t.level))
	dispatcher.AddHandler(handlers.NewCommand("topics", t.topics))
	dispatcher.AddHandler(handlers.NewCommand("subscribe", t.subscribe))
	dispatcher.AddHandler(handlers.NewCommand("unsubscribe", t.unsubscribe))
	dispatcher.AddHandler(handlers.NewCommand("tier", t.tier))
	dispatcher.AddHandler(handlers.NewCommand("status", t.status))
	dispatcher.AddHandler(handlers.NewCommand("help", t.help))

	dispatcher.AddHandler(handlers.NewCommand("users", t.usersCmd))
	dispatcher.AddHandler(handlers.NewCommand("approve", t.approve))
	dispatcher.AddHandler(handlers.NewCommand("revoke", t.revoke))
	dispatcher.AddHandler(handlers.NewCommand("admin", t.adminCmd))
	dispatcher.AddHandler(handlers.NewCommand("guilds", t.guildsCmd))
	dispatcher.AddHandler(handlers.NewCommand("top", t.topCmd))
	dispatcher.AddHandler(handlers.NewCommand("total", t.totalCmd))

	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbApprove), t.onApproveCallback))
	dispatcher.AddHandler(handlers.NewCallback(callbackquery.Prefix(cbRevoke), t.onRevokeCallback))

	t.setDefaultCommands()
	t.syncAllUserMenus()

	err := t.updater.StartPolling(t.api, &ext.PollingOpts{
		DropPendingUpdates: true,
		GetUpdatesOpts: &tgbotapi.GetUpdatesOpts{
			Timeout: 9,
			RequestOpts: &tgbotapi.RequestOpts{
				Timeout: time.Second * 10,
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to start polling: %w", err)
	}

	t.updater.Idle()
	return nil
}

func (t *TgBot) Stop() {
	if t.digest != nil {
		t.digest.Stop()
	}
	if t.updater != nil {
		t.log.Info("stopping telegram bot")
		t.updater.Stop()
	}
}

// loadUsers refreshes the in-memory user cache from the database.
// Called on startup and after every state-changing command.
func (t *TgBot) loadUsers() {
	if t.db == nil {
		return
	}
	users, err := t.db.GetAllTelegramUsers()
	if err != nil {
		t.log.Error("loading users", sl.Err(err))
		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.users = make(map[int64]*entity.User)
	t.adminIds = nil
	active := 0
	for _, user := range users {
		t.users[user.TelegramId] = user
		if user.TelegramEnabled {
			active++
		}
		if user.IsAdmin() {
			t.adminIds = append(t.adminIds, user.TelegramId)
		}
	}
	t.log.With(
		slog.Int("count", len(t.users)),
		slog.Int("active", active),
		slog.Int("admins", len(t.adminIds)),
	).Debug("loaded users")
}

func (t *TgBot) findUser(id int64) *entity.User {
	t.mu.RLock()
	defer t.mu.RUnlock()
	user, ok := t.users[id]
	if ok {
		return user
	}
	return nil
}
