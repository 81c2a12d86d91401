package scoreboard

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

func LoadConfig(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer file.Close()

	var cfg Config
	if err = toml.NewDecoder(file).Decode(&cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return &cfg, nil
}

type Config struct {
	Log      LogConfig      `toml:"log"`
	DB       DBConfig       `toml:"db"`
	Maint    MaintConfig    `toml:"maintenance"`
	Platform PlatformConfig `toml:"platform"`
}

type LogConfig struct {
	Level     slog.Level `toml:"level"`
	Format    string     `toml:"format"`
	AddSource bool       `toml:"add_source"`
}

type DBConfig struct {
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	Database     string `toml:"database"`
	PoolSize     int    `toml:"pool_size"`
	MaxIdleConns int    `toml:"max_idle_conns"`
	MaxLifetime  int    `toml:"max_lifetime"`
}

// MaintConfig controls the background maintenance loops. Each loop is a
// singleton scheduled trigger; producers never invoke these directly.
type MaintConfig struct {
	PollInterval         time.Duration `toml:"poll_interval"`
	QuarterCheckInterval time.Duration `toml:"quarter_check_interval"`
	ChallengeSweep       time.Duration `toml:"challenge_sweep_interval"`
	AuditInterval        time.Duration `toml:"audit_interval"`
}

// PlatformConfig identifies the repository on the hosting platform the
// external client watches. The core never talks to the platform itself.
type PlatformConfig struct {
	Owner string `toml:"owner"`
	Repo  string `toml:"repo"`
}

func (c *Config) applyDefaults() {
	if c.Maint.PollInterval <= 0 {
		c.Maint.PollInterval = 5 * time.Minute
	}
	if c.Maint.QuarterCheckInterval <= 0 {
		c.Maint.QuarterCheckInterval = time.Hour
	}
	if c.Maint.ChallengeSweep <= 0 {
		c.Maint.ChallengeSweep = 15 * time.Minute
	}
	if c.Maint.AuditInterval <= 0 {
		c.Maint.AuditInterval = 24 * time.Hour
	}
}
