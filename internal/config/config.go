package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type TwilioConfig struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	From       string `mapstructure:"from"`
	To         string `mapstructure:"to"`
}

type Config struct {
	Mode       string        `mapstructure:"mode"`
	Port       int           `mapstructure:"port"`
	ReadLimit  int64         `mapstructure:"read_limit"`
	PingPeriod time.Duration `mapstructure:"ping_period"`
	Secret     string        `mapstructure:"secret"`

	ClaimWindow    time.Duration `mapstructure:"claim_window"`
	GraceWindow    time.Duration `mapstructure:"grace_window"`
	IdleBound      time.Duration `mapstructure:"idle_bound"`
	SweepSchedule  string        `mapstructure:"sweep_schedule"`
	SubmitLimit    int           `mapstructure:"submit_limit"`
	SubmitInterval time.Duration `mapstructure:"submit_interval"`

	HistoryDB string       `mapstructure:"history_db"`
	Twilio    TwilioConfig `mapstructure:"twilio"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("read_limit", 32768)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("claim_window", "30s")
	v.SetDefault("grace_window", "5m")
	v.SetDefault("idle_bound", "1h")
	v.SetDefault("sweep_schedule", "@every 10m")
	v.SetDefault("submit_limit", 5)
	v.SetDefault("submit_interval", "1m")
	v.SetDefault("history_db", "")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("config file not found (%s), using defaults\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
