// Package config assembles runtime configuration. Environment variables win;
// an optional YAML file (CRM_CONFIG) supplies defaults below them.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is everything the server and MCP entrypoints need.
type Config struct {
	Addr      string `yaml:"addr"`
	DataDir   string `yaml:"data_dir"`
	APIToken  string `yaml:"api_token"`
	UserEmail string `yaml:"user_email"`

	Anthropic struct {
		BaseURL string `yaml:"base_url"`
		APIKey  string `yaml:"api_key"`
		Model   string `yaml:"model"`
	} `yaml:"anthropic"`

	Ollama struct {
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"ollama"`

	Twilio struct {
		AccountSID string `yaml:"account_sid"`
		AuthToken  string `yaml:"auth_token"`
		From       string `yaml:"from"`
	} `yaml:"twilio"`

	SMTP struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		From     string `yaml:"from"`
	} `yaml:"smtp"`
}

// Load reads the optional YAML file named by CRM_CONFIG, then applies
// environment variable overrides, then fills defaults.
func Load() (*Config, error) {
	var cfg Config

	if path := os.Getenv("CRM_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	override(&cfg.Addr, "CRM_ADDR")
	override(&cfg.DataDir, "CRM_DATA_DIR")
	override(&cfg.APIToken, "CRM_API_TOKEN")
	override(&cfg.UserEmail, "CRM_USER_EMAIL")
	override(&cfg.Anthropic.BaseURL, "ANTHROPIC_BASE_URL")
	override(&cfg.Anthropic.APIKey, "ANTHROPIC_API_KEY")
	override(&cfg.Anthropic.Model, "ANTHROPIC_MODEL")
	override(&cfg.Ollama.BaseURL, "OLLAMA_BASE_URL")
	override(&cfg.Ollama.Model, "OLLAMA_EMBED_MODEL")
	override(&cfg.Twilio.AccountSID, "TWILIO_ACCOUNT_SID")
	override(&cfg.Twilio.AuthToken, "TWILIO_AUTH_TOKEN")
	override(&cfg.Twilio.From, "TWILIO_FROM")
	override(&cfg.SMTP.Host, "SMTP_HOST")
	override(&cfg.SMTP.Username, "SMTP_USERNAME")
	override(&cfg.SMTP.Password, "SMTP_PASSWORD")
	override(&cfg.SMTP.From, "SMTP_FROM")
	if port := os.Getenv("SMTP_PORT"); port != "" {
		if _, err := fmt.Sscanf(port, "%d", &cfg.SMTP.Port); err != nil {
			return nil, fmt.Errorf("SMTP_PORT: %w", err)
		}
	}

	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.SMTP.Port == 0 {
		cfg.SMTP.Port = 587
	}
	return &cfg, nil
}

func override(dst *string, env string) {
	if v := os.Getenv(env); v != "" {
		*dst = v
	}
}
