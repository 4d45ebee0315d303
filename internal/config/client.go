package config

import (
	"time"

	"github.com/caarlos0/env/v11"
)

type ClientConfig struct {
	ServerURL      string        `env:"SERVER_URL" envDefault:"http://localhost:8080"`
	SessionID      string        `env:"SESSION_ID"`
	PlayerID       string        `env:"PLAYER_ID" envDefault:"bot"`
	OutboxPath     string        `env:"OUTBOX_PATH"`
	RequestTimeout time.Duration `env:"REQUEST_TIMEOUT" envDefault:"10s"`
}

func LoadClient() (ClientConfig, error) {
	var cfg ClientConfig
	err := env.Parse(&cfg)
	return cfg, err
}
