package main

import (
	"context"
	"flag"
	"invitetrack/bot"
	"invitetrack/impl/auth"
	"invitetrack/impl/core"
	"invitetrack/internal/attribution"
	"invitetrack/internal/config"
	"invitetrack/internal/database"
	"invitetrack/internal/discord"
	"invitetrack/internal/http-server/api"
	"invitetrack/internal/notify"
	"invitetrack/internal/query"
	"invitetrack/internal/refresh"
	"invitetrack/internal/snapshot"
	"invitetrack/internal/supervisor"
	"invitetrack/lib/logger"
	"invitetrack/lib/sl"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const shutdownTimeout = 30 * time.Second

func main() {
	configPath := flag.String("conf", "config.yml", "path to config file")
	logPath := flag.String("log", "/var/log/", "path to log file directory")
	flag.Parse()

	conf := config.MustLoad(*configPath)
	log := logger.SetupLogger(conf.Env, *logPath)
	log.Info("starting invitetrack", slog.String("config", *configPath), slog.String("env", conf.Env))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	mongo := database.NewMongoClient(conf)
	if mongo != nil {
		if err := mongo.Ping(ctx); err != nil {
			log.Error("mongo ping", sl.Err(err))
		}
		if err := mongo.EnsureIndexes(ctx); err != nil {
			log.Error("mongo indexes", sl.Err(err))
		}
	}

	session, err := discord.NewSession(conf.Discord.Token)
	if err != nil {
		log.Error("discord session", sl.Err(err))
		os.Exit(1)
	}
	client := discord.NewClient(session)

	sinks := notify.NewFanout()
	if ch := discord.NewLogChannel(session, conf.Discord.LogChannelID); ch != nil {
		sinks.Add("discord", ch)
	}
	if mongo != nil {
		sinks.Add("mongo", mongo)
	}

	var tgBot *bot.TgBot
	if conf.Telegram.Enabled {
		if mongo == nil {
			log.Warn("telegram needs mongo for subscribers; telegram disabled")
		} else {
			tgBot, err = bot.NewTgBot(conf.Telegram.ApiKey, mongo, log, bot.BotConfig{
				RequireApproval:   conf.Telegram.RequireApproval,
				DigestIntervalMin: conf.Telegram.DigestIntervalMin,
			})
			if err != nil {
				log.Error("telegram bot", sl.Err(err))
			} else {
				sinks.Add("telegram", tgBot)
				handler := logger.NewTelegramHandler(log.Handler(), tgBot, logger.ParseLevel(conf.Telegram.LogLevel))
				log = slog.New(handler)
			}
		}
	}

	log.With(slog.Int("sinks", sinks.Len())).Info("notification sinks configured")

	store := snapshot.New()
	tasks := supervisor.New(conf.Attribution.MaxConcurrent, log)
	engine := attribution.New(store, client, sinks, attribution.Config{
		Delay:        conf.Attribution.JoinDelay(),
		FetchTimeout: conf.Attribution.FetchTimeout(),
	}, log)
	refresher := refresh.New(store, client, conf.Attribution.FetchTimeout(), log)

	queries := query.New(client)
	if mongo != nil {
		queries.SetJoinLog(mongo)
	}

	handler := core.New(queries, refresher, store, log)
	if mongo != nil {
		handler.SetAuthService(auth.New(mongo))
	}

	commands := discord.NewCommands(conf.Discord.Prefix, queries, handler, session, log)
	router := discord.NewRouter(ctx, engine, refresher, commands, tasks, log)
	router.Register(session)

	if err = session.Open(); err != nil {
		log.Error("discord gateway", sl.Err(err))
		os.Exit(1)
	}
	log.Info("discord gateway connected")

	if tgBot != nil {
		tgBot.SetStats(handler)
		go func() {
			if err := tgBot.Start(); err != nil {
				log.Error("telegram bot", sl.Err(err))
			}
		}()
	}

	var server *api.Server
	if conf.Listen.Enabled {
		server = api.New(conf, log, handler)
		go func() {
			if err := server.Start(); err != nil {
				log.Error("api server", sl.Err(err))
			}
		}()
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn("api shutdown", sl.Err(err))
		}
	}
	if err := session.Close(); err != nil {
		log.Warn("discord close", sl.Err(err))
	}
	if err := tasks.Stop(shutdownCtx); err != nil {
		log.Warn("tasks still running", sl.Err(err))
	}
	if tgBot != nil {
		tgBot.Stop()
	}
	log.With(slog.Int64("failed_tasks", tasks.Failed())).Info("stopped")
}
