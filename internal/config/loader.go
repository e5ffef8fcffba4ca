package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// InitViper initializes Viper with the configuration file and environment
// variables. If configFile is empty, it searches standard locations for
// acp-gate.yaml/.yml.
func InitViper(configFile string) {
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else if found := findConfigFile(); found != "" {
		viper.SetConfigFile(found)
	} else {
		viper.SetConfigName("acp-gate")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("ACP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	bindNestedEnvKeys()
}

// findConfigFile searches standard locations for an acp-gate config file
// with an explicit YAML extension.
func findConfigFile() string {
	home, _ := os.UserHomeDir()
	paths := []string{
		".",
		filepath.Join(home, ".acp-gate"),
		"/etc/acp-gate",
	}
	return findConfigFileInPaths(paths)
}

func findConfigFileInPaths(paths []string) string {
	for _, dir := range paths {
		for _, ext := range []string{".yaml", ".yml"} {
			path := filepath.Join(dir, "acp-gate"+ext)
			if _, err := os.Stat(path); err == nil {
				return path
			}
		}
	}
	return ""
}

// bindNestedEnvKeys binds the config keys that matter as env var overrides.
// ACP_HTTP_HOST_APPROVAL_TTL_SEC is the one the spec names explicitly
// (§4.D); the rest follow the same SetEnvKeyReplacer convention.
func bindNestedEnvKeys() {
	_ = viper.BindEnv("host_approval_ttl_sec", "ACP_HTTP_HOST_APPROVAL_TTL_SEC")
	_ = viper.BindEnv("server.shell_gate_addr")
	_ = viper.BindEnv("server.proxy_addr")
	_ = viper.BindEnv("server.log_level")
	_ = viper.BindEnv("policy_file")
	_ = viper.BindEnv("channel.kind")
	_ = viper.BindEnv("channel.webhook_url")
	_ = viper.BindEnv("channel.shared_secret")
	_ = viper.BindEnv("channel.push_base_url")
	_ = viper.BindEnv("channel.push_chat_id")
	_ = viper.BindEnv("audit.output")
	_ = viper.BindEnv("audit.dir")
	_ = viper.BindEnv("dev_mode")
}

// LoadConfig reads the configuration file, applies environment overrides,
// sets defaults, and validates.
func LoadConfig() (*Config, error) {
	cfg, err := LoadConfigRaw()
	if err != nil {
		return nil, err
	}

	cfg.SetDevDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// LoadConfigRaw reads the configuration and applies defaults, but does not
// apply dev defaults or validate (useful when CLI flags may still set
// DevMode before validation).
func LoadConfigRaw() (*Config, error) {
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.SetDefaults()
	return &cfg, nil
}

// ConfigFileUsed returns the path to the configuration file that was
// loaded, or "" if running on env vars alone.
func ConfigFileUsed() string {
	return viper.ConfigFileUsed()
}
