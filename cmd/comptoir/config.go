package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all comptoir server configuration.
type Config struct {
	Addr     string `yaml:"addr"`
	DataDir  string `yaml:"data_dir"`
	Env      string `yaml:"env"`
	LogLevel string `yaml:"log_level"`

	// SessionSecretEnv names the environment variable holding the session
	// secret, so the secret itself never sits in the config file.
	SessionSecretEnv string `yaml:"session_secret_env"`
	BcryptCost       int    `yaml:"bcrypt_cost"`

	BusyTimeoutMs int `yaml:"busy_timeout_ms"`
	CacheKB       int `yaml:"cache_kb"`

	Audit AuditConfig `yaml:"audit"`
}

// AuditConfig controls the audit trail logger.
type AuditConfig struct {
	BufferSize    int `yaml:"buffer_size"`
	RetentionDays int `yaml:"retention_days"`
}

func (c *Config) defaults() {
	if c.Addr == "" {
		c.Addr = ":8085"
	}
	if c.DataDir == "" {
		c.DataDir = "data"
	}
	if c.Env == "" {
		c.Env = "dev"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.SessionSecretEnv == "" {
		c.SessionSecretEnv = "SESSION_SECRET"
	}
	if c.Audit.BufferSize <= 0 {
		c.Audit.BufferSize = 1000
	}
	if c.Audit.RetentionDays <= 0 {
		c.Audit.RetentionDays = 90
	}
}

// LoadConfigFile reads a YAML config file.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
