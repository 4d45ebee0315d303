package config

import "github.com/caarlos0/env/v11"

type LogConfig struct {
	Level       string `env:"LOG_LEVEL" envDefault:"info"`
	Pretty      bool   `env:"LOG_PRETTY" envDefault:"false"`
	SampleEvery int    `env:"LOG_SAMPLE_EVERY" envDefault:"0"`
	// Service tags every record; cmd/* set their own default.
	Service string `env:"LOG_SERVICE"`
	File    string `env:"LOG_FILE"`
	MaxMB   int    `env:"LOG_MAX_MB" envDefault:"10"`
	// Backups is how many rotated files are kept next to File.
	Backups int `env:"LOG_BACKUPS" envDefault:"1"`
}

// LoadLog parses the log settings. defaultService is used when LOG_SERVICE is
// unset.
func LoadLog(defaultService string) (LogConfig, error) {
	var cfg LogConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Service == "" {
		cfg.Service = defaultService
	}
	return cfg, nil
}
