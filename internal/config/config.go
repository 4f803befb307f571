// Package config loads process configuration the way the rest of this
// codebase expects it: a YAML file resolved via -config/CONFIG_PATH,
// parsed with cleanenv, overlaid with values from .env.
package config

import (
	"flag"
	"os"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config is the full process configuration. Host-platform concerns such as
// TLS termination and admin authentication provisioning are deliberately
// shallow here (spec.md §1) — only the knobs the core actually reads exist.
type Config struct {
	Env      string         `yaml:"env" env-default:"local"`
	HTTP     HTTPConfig     `yaml:"http"`
	WebRTC   WebRTCConfig   `yaml:"webrtc"`
	Database DatabaseConfig `yaml:"database"`
	Admin    AdminConfig    `yaml:"admin"`
	Sync     SyncConfig     `yaml:"sync"`
}

type HTTPConfig struct {
	Address string `yaml:"address" env-default:""`
}

// WebRTCConfig is handed to clients so their RTCPeerConnection can reach a
// STUN server; the hub itself never terminates ICE (SPEC_FULL.md domain
// stack notes).
type WebRTCConfig struct {
	STUNServers []string `yaml:"stun_servers" env-default:""`
}

type DatabaseConfig struct {
	DSN string `yaml:"dsn" env:"DATABASE_DSN" env-default:""`
}

// AdminConfig carries the distinguished public key whose signed requests
// are privileged for AdminAPI mutators (spec.md §4.7).
type AdminConfig struct {
	PublicKeyHex string `yaml:"public_key" env:"ADMIN_PUBLIC_KEY" env-default:""`
}

// SyncConfig configures the ClientSyncEngine retention window (spec.md §4.9).
type SyncConfig struct {
	RetentionDays int `yaml:"retention_days" env-default:"30"`
}

const minRetentionDays = 2

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
	if c.Sync.RetentionDays < minRetentionDays {
		c.Sync.RetentionDays = minRetentionDays
	}
}
