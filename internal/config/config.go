package config

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Listen struct {
	Enabled bool   `yaml:"enabled" env-default:"false"`
	BindIp  string `yaml:"bind_ip" env-default:"0.0.0.0"`
	Port    string `yaml:"port" env-default:"8080"`
}

type DiscordConfig struct {
	Token        string `yaml:"token" env:"DISCORD_TOKEN" env-default:""`
	Prefix       string `yaml:"prefix" env-default:"?"`
	LogChannelID string `yaml:"log_channel_id" env-default:""`
}

type AttributionConfig struct {
	JoinDelayMs     int `yaml:"join_delay_ms" env-default:"1000"`
	FetchTimeoutSec int `yaml:"fetch_timeout_sec" env-default:"10"`
	MaxConcurrent   int `yaml:"max_concurrent" env-default:"64"`
}

type TelegramConfig struct {
	Enabled           bool   `yaml:"enabled" env-default:"false"`
	ApiKey            string `yaml:"api_key" env:"TELEGRAM_API_KEY" env-default:""`
	RequireApproval   bool   `yaml:"require_approval" env-default:"true"`
	DigestIntervalMin int    `yaml:"digest_interval_min" env-default:"60"`
	LogLevel          string `yaml:"log_level" env-default:"warn"`
}

type MongoConfig struct {
	Enabled  bool   `yaml:"enabled" env-default:"false"`
	Host     string `yaml:"host" env-default:"127.0.0.1"`
	Port     string `yaml:"port" env-default:"27017"`
	User     string `yaml:"user" env-default:""`
	Password string `yaml:"password" env:"MONGO_PASSWORD" env-default:""`
	Database string `yaml:"database" env-default:"invitetrack"`
}

type Config struct {
	Discord     DiscordConfig     `yaml:"discord"`
	Attribution AttributionConfig `yaml:"attribution"`
	Telegram    TelegramConfig    `yaml:"telegram"`
	Mongo       MongoConfig       `yaml:"mongo"`
	Listen      Listen            `yaml:"listen"`
	Env         string            `yaml:"env" env-default:"local"`
}

func (a AttributionConfig) JoinDelay() time.Duration {
	return time.Duration(a.JoinDelayMs) * time.Millisecond
}

func (a AttributionConfig) FetchTimeout() time.Duration {
	return time.Duration(a.FetchTimeoutSec) * time.Second
}

var instance *Config
var once sync.Once

func MustLoad(path string) *Config {
	once.Do(func() {
		conf, err := Load(path)
		if err != nil {
			log.Fatal(err)
		}
		instance = conf
	})
	return instance
}

// Load reads and checks the config file without caching it.
func Load(path string) (*Config, error) {
	conf := &Config{}
	if err := cleanenv.ReadConfig(path, conf); err != nil {
		desc, _ := cleanenv.GetDescription(conf, nil)
		return nil, fmt.Errorf("config: %s; %s", err, desc)
	}
	if conf.Discord.Token == "" {
		return nil, fmt.Errorf("config: discord.token is required")
	}
	if conf.Attribution.JoinDelayMs < 0 {
		return nil, fmt.Errorf("config: attribution.join_delay_ms must be >= 0")
	}
	if conf.Telegram.Enabled && conf.Telegram.ApiKey == "" {
		return nil, fmt.Errorf("config: telegram.api_key is required when telegram is enabled")
	}
	return conf, nil
}
