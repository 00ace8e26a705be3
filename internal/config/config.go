package config

import (
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"pereryv/internal/settings"
)

type Config struct {
	Telegram struct {
		BotToken string `yaml:"bot_token"`
		ChatID   int64  `yaml:"chat_id"`
		Debug    bool   `yaml:"debug"`
	} `yaml:"telegram"`

	History struct {
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
		MaxEvents     int    `yaml:"max_events"`
	} `yaml:"history"`

	Backup struct {
		Enabled       bool   `yaml:"enabled"`
		Path          string `yaml:"path"`
		RetentionDays int    `yaml:"retention_days"`
	} `yaml:"backup"`

	Redis struct {
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
	} `yaml:"redis"`

	Control struct {
		ListenAddr string `yaml:"listen_addr"`
		AuthToken  string `yaml:"auth_token"`
	} `yaml:"control"`

	Monitoring struct {
		HealthCheckPort   int  `yaml:"health_check_port"`
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
		PrometheusPort    int  `yaml:"prometheus_port"`
	} `yaml:"monitoring"`

	Export struct {
		Dir        string `yaml:"dir"`
		SendToChat bool   `yaml:"send_to_chat"`
	} `yaml:"export"`

	SettingsFile string `yaml:"settings_file"`
}

func Load(path string) (*Config, error) {
	if path == "" {
		path = "configs/config.yaml"
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Support ${ENV_VAR} placeholders in YAML config.
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err = os.MkdirAll(filepath.Dir(cfg.History.Path), 0o755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Default builds a config without reading any file, using the same
// defaults Load applies on top of a parsed YAML document.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.History.Path == "" {
		c.History.Path = "data/reminderd.db"
	}
	if c.History.RetentionDays == 0 {
		c.History.RetentionDays = 14
	}
	if c.History.MaxEvents == 0 {
		c.History.MaxEvents = 10000
	}
	if c.Backup.Path == "" {
		c.Backup.Path = "backups"
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Control.ListenAddr == "" {
		c.Control.ListenAddr = "127.0.0.1:8452"
	}
	if c.Monitoring.HealthCheckPort == 0 {
		c.Monitoring.HealthCheckPort = 8090
	}
	if c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Export.Dir == "" {
		c.Export.Dir = "exports"
	}
	if c.SettingsFile == "" {
		c.SettingsFile = settings.DefaultFileName
	}
}
