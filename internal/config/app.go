package config

import (
	"errors"
	"fmt"
	"time"
)

type AppConfig struct {
	Server ServerConfig
	Log    LogConfig
}

// LoadApp parses every server concern and rejects combinations the server
// could only discover after it started accepting sessions.
func LoadApp() (AppConfig, error) {
	logCfg, err := LoadLog("game-server")
	if err != nil {
		return AppConfig{}, err
	}
	serverCfg, err := LoadServer()
	if err != nil {
		return AppConfig{}, err
	}
	app := AppConfig{
		Server: serverCfg,
		Log:    logCfg,
	}
	if err := app.Validate(); err != nil {
		return AppConfig{}, err
	}
	return app, nil
}

func (c AppConfig) Validate() error {
	s := c.Server
	var errs []error
	switch s.StoreDriver {
	case "postgres":
		if s.PostgresDSN == "" {
			errs = append(errs, errors.New("POSTGRES_DSN is required with STORE_DRIVER=postgres"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("STORE_DRIVER %q is not postgres or sqlite", s.StoreDriver))
	}
	if _, err := time.LoadLocation(s.SessionTimeZone); err != nil {
		errs = append(errs, fmt.Errorf("SESSION_TIME_ZONE: %w", err))
	}
	if s.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	if s.NotifyFeishuSecret != "" && s.NotifyFeishuWebhook == "" {
		errs = append(errs, errors.New("NOTIFY_FEISHU_SECRET set without NOTIFY_FEISHU_WEBHOOK"))
	}
	return errors.Join(errs...)
}
