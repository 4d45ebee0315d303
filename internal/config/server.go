package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type ServerConfig struct {
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	StoreDriver string `env:"STORE_DRIVER" envDefault:"postgres"`
	PostgresDSN string `env:"POSTGRES_DSN"`
	SQLitePath  string `env:"SQLITE_PATH" envDefault:"roundtable.db"`

	TokenSecret string        `env:"TOKEN_SECRET,required,notEmpty"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"15m"`

	RedisAddr string `env:"REDIS_ADDR"`

	ActorIdleTimeout  time.Duration `env:"ACTOR_IDLE_TIMEOUT" envDefault:"5m"`
	TurnReminderAfter time.Duration `env:"TURN_REMINDER_AFTER" envDefault:"12h"`
	InviteTTL         time.Duration `env:"INVITE_TTL" envDefault:"72h"`
	SessionTimeZone   string        `env:"SESSION_TIME_ZONE" envDefault:"UTC"`

	ArchiveBucket   string `env:"ARCHIVE_BUCKET"`
	ArchivePrefix   string `env:"ARCHIVE_PREFIX" envDefault:"sessions"`
	ArchiveRegion   string `env:"ARCHIVE_REGION" envDefault:"us-east-1"`
	ArchiveEndpoint string `env:"ARCHIVE_ENDPOINT"`
	ArchiveKeyID    string `env:"ARCHIVE_ACCESS_KEY_ID"`
	ArchiveSecret   string `env:"ARCHIVE_SECRET_ACCESS_KEY"`

	NotifyDiscordWebhook string `env:"NOTIFY_DISCORD_WEBHOOK"`
	NotifyFeishuWebhook  string `env:"NOTIFY_FEISHU_WEBHOOK"`
	NotifyFeishuSecret   string `env:"NOTIFY_FEISHU_SECRET"`
	NotifyRetryMax       int    `env:"NOTIFY_RETRY_MAX" envDefault:"3"`

	AdminAPIKey string `env:"ADMIN_API_KEY"`
}

func LoadServer() (ServerConfig, error) {
	var cfg ServerConfig
	err := env.Parse(&cfg)
	return cfg, err
}
