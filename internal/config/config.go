// Package config provides configuration loading for the consent gateway:
// listener addresses, the audit sink, the channel variant, and the
// policy file path. It intentionally excludes the teacher's MCP-proxy,
// multi-tenant, and admin-UI concerns — this gateway has one job.
package config

import (
	"os"
)

// Config is the top-level gateway configuration.
type Config struct {
	// Server configures the shell-gate and HTTP-proxy listeners.
	Server ServerConfig `yaml:"server" mapstructure:"server"`

	// PolicyFile is the path to the YAML policy document (spec §6).
	PolicyFile string `yaml:"policy_file" mapstructure:"policy_file" validate:"required"`

	// HostApprovalTTLSec is the host-approval cache TTL in seconds
	// (ACP_HTTP_HOST_APPROVAL_TTL_SEC, default 180).
	HostApprovalTTLSec int `yaml:"host_approval_ttl_sec" mapstructure:"host_approval_ttl_sec" validate:"omitempty,min=1"`

	// Channel selects and configures the human-approval channel.
	Channel ChannelConfig `yaml:"channel" mapstructure:"channel"`

	// Audit configures the audit sink.
	Audit AuditConfig `yaml:"audit" mapstructure:"audit"`

	// DevMode relaxes defaults for local development: an unset policy file
	// falls back to policy.dev.yaml when present, and an unset channel to
	// the terminal. Audit settings are not changed.
	DevMode bool `yaml:"dev_mode" mapstructure:"dev_mode"`
}

// ServerConfig configures the two inbound listeners (spec §6).
type ServerConfig struct {
	// ShellGateAddr is the shell-gate HTTP listen address. Defaults to
	// "127.0.0.1:8443" (or "0.0.0.0:8443" when the agent lives in a
	// separate network namespace — set explicitly in that case).
	ShellGateAddr string `yaml:"shell_gate_addr" mapstructure:"shell_gate_addr" validate:"omitempty,hostname_port"`

	// ProxyAddr is the HTTP forward-proxy listen address. Defaults to
	// "127.0.0.1:8444".
	ProxyAddr string `yaml:"proxy_addr" mapstructure:"proxy_addr" validate:"omitempty,hostname_port"`

	// LogLevel sets the minimum slog level: debug, info, warn, error.
	LogLevel string `yaml:"log_level" mapstructure:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
}

// ChannelKind selects which Channel variant the gateway constructs.
type ChannelKind string

const (
	ChannelTerminal ChannelKind = "terminal"
	ChannelWebhook  ChannelKind = "webhook"
	ChannelPush     ChannelKind = "push"
)

// ChannelConfig configures the human-approval channel (spec §4.C).
type ChannelConfig struct {
	Kind ChannelKind `yaml:"kind" mapstructure:"kind" validate:"omitempty,oneof=terminal webhook push"`

	// Webhook fields.
	WebhookURL   string `yaml:"webhook_url" mapstructure:"webhook_url" validate:"omitempty,url"`
	SharedSecret string `yaml:"shared_secret" mapstructure:"shared_secret"`

	// Push (Telegram-style) fields.
	PushBaseURL string `yaml:"push_base_url" mapstructure:"push_base_url" validate:"omitempty,url"`
	PushChatID  string `yaml:"push_chat_id" mapstructure:"push_chat_id"`
}

// AuditConfig configures audit persistence. Output "stdout" uses the
// in-memory sink with an stdout writer; "file" uses the rotating
// file-backed sink, rooted at Dir.
type AuditConfig struct {
	Output        string `yaml:"output" mapstructure:"output" validate:"omitempty,oneof=stdout file"`
	Dir           string `yaml:"dir" mapstructure:"dir"`
	RetentionDays int    `yaml:"retention_days" mapstructure:"retention_days" validate:"omitempty,min=1"`
	MaxFileSizeMB int    `yaml:"max_file_size_mb" mapstructure:"max_file_size_mb" validate:"omitempty,min=1"`
	CacheSize     int    `yaml:"cache_size" mapstructure:"cache_size" validate:"omitempty,min=1"`
}

// SetDefaults applies sensible default values (spec §6).
func (c *Config) SetDefaults() {
	if c.Server.ShellGateAddr == "" {
		c.Server.ShellGateAddr = "127.0.0.1:8443"
	}
	if c.Server.ProxyAddr == "" {
		c.Server.ProxyAddr = "127.0.0.1:8444"
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.HostApprovalTTLSec == 0 {
		c.HostApprovalTTLSec = 180
	}
	if c.Channel.Kind == "" {
		c.Channel.Kind = ChannelTerminal
	}
	if c.Audit.Output == "" {
		c.Audit.Output = "stdout"
	}
	if c.Audit.RetentionDays == 0 {
		c.Audit.RetentionDays = 7
	}
	if c.Audit.MaxFileSizeMB == 0 {
		c.Audit.MaxFileSizeMB = 100
	}
	if c.Audit.CacheSize == 0 {
		c.Audit.CacheSize = 1000
	}
}

// SetDevDefaults applies permissive defaults for development mode, mirroring
// a default-allow policy file when none is configured.
func (c *Config) SetDevDefaults() {
	if !c.DevMode {
		return
	}
	if c.PolicyFile == "" {
		c.PolicyFile = devAllowAllPolicyPath()
	}
	if c.Channel.Kind == "" {
		c.Channel.Kind = ChannelTerminal
	}
}

// devAllowAllPolicyPath returns the path to a bundled dev-mode policy file
// if present in the working directory, otherwise an empty string (the
// loader surfaces a clear "policy_file is required" error instead of
// silently running with no rules).
func devAllowAllPolicyPath() string {
	const candidate = "policy.dev.yaml"
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}
