package config

import (
	"flag"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Env       string          `yaml:"env" env:"ENV" env-default:"local"`
	HTTP      HTTPConfig      `yaml:"http"`
	Database  DatabaseConfig  `yaml:"database"`
	WebRTC    WebRTCConfig    `yaml:"webrtc"`
	Signaling SignalingConfig `yaml:"signaling"`
	Auth      AuthConfig      `yaml:"auth"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env:"HTTP_ADDRESS" env-default:""`
}

type DatabaseConfig struct {
	// DSN is empty in local development; the service then runs on the
	// in-memory repositories.
	DSN string `yaml:"dsn" env:"DATABASE_DSN" env-default:""`
}

type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers" env-default:""`
}

type SignalingConfig struct {
	// TTL bounds how long an unanswered signal row may linger before the
	// sweeper removes it.
	TTL           time.Duration `yaml:"ttl" env:"SIGNAL_TTL" env-default:"2m"`
	SweepInterval time.Duration `yaml:"sweep_interval" env:"SIGNAL_SWEEP_INTERVAL" env-default:"30s"`
}

type AuthConfig struct {
	Secret   string        `yaml:"secret" env:"AUTH_SECRET" env-default:""`
	TokenTTL time.Duration `yaml:"token_ttl" env:"AUTH_TOKEN_TTL" env-default:"24h"`
}

func MustLoad() *Config {
	configPath := fetchConfigPath()
	if configPath == "" {
		panic("config path is empty")
	}

	return MustLoadPath(configPath)
}

func MustLoadPath(configPath string) *Config {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		panic("config file does not exist: " + configPath)
	}

	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		panic("cannot read config: " + err.Error())
	}

	cfg.setDefaults()

	return &cfg
}

func fetchConfigPath() string {
	var res string

	flag.StringVar(&res, "config", "", "path to config file")
	flag.Parse()

	if res == "" {
		res = os.Getenv("CONFIG_PATH")
	}

	if res == "" {
		res = "config/local.yaml"
	}

	return res
}

func (c *Config) setDefaults() {
	if c.HTTP.Address == "" {
		c.HTTP.Address = ":8080"
	}
	if len(c.WebRTC.STUNServers) == 0 {
		c.WebRTC.STUNServers = []string{"stun:stun.l.google.com:19302"}
	}
	if c.Signaling.TTL <= 0 {
		c.Signaling.TTL = 2 * time.Minute
	}
	if c.Signaling.SweepInterval <= 0 {
		c.Signaling.SweepInterval = 30 * time.Second
	}
}
