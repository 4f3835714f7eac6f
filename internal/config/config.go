package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Simulator SimulatorConfig `mapstructure:"simulator"`
	Hardware  HardwareConfig  `mapstructure:"hardware"`
	Profiles  ProfilesConfig  `mapstructure:"lever_profiles"`
}

type ServerConfig struct {
	HTTPPort        int           `mapstructure:"http_port"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type DatabaseConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	MaxConnections int    `mapstructure:"max_connections"`
}

type AuthConfig struct {
	JWTSecretEnv    string        `mapstructure:"jwt_secret_env"`
	PasscodeHashEnv string        `mapstructure:"passcode_hash_env"`
	TokenTTL        time.Duration `mapstructure:"token_ttl"`
}

type SimulatorConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	AnalyzeInterval time.Duration `mapstructure:"analyze_interval"`
	AnalyzeDuration time.Duration `mapstructure:"analyze_duration"`
}

type HardwareConfig struct {
	SerialPort        string        `mapstructure:"serial_port"`
	BaudRate          int           `mapstructure:"baud_rate"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
}

type ProfilesConfig struct {
	SearchPaths []string `mapstructure:"search_paths"`
}

func Load(path string) (*Config, error) {
	viper.SetConfigFile(path)
	viper.SetConfigType("yaml")

	viper.SetDefault("server.http_port", 4000)
	viper.SetDefault("server.shutdown_timeout", "30s")

	viper.SetDefault("auth.jwt_secret_env", "JWT_SECRET")
	viper.SetDefault("auth.passcode_hash_env", "PANEL_PASSCODE_HASH")
	viper.SetDefault("auth.token_ttl", "12h")

	viper.SetDefault("simulator.base_url", "http://localhost:31270")
	viper.SetDefault("simulator.request_timeout", "2s")
	viper.SetDefault("simulator.analyze_interval", "50ms")
	viper.SetDefault("simulator.analyze_duration", "15s")

	viper.SetDefault("hardware.baud_rate", 115200)
	viper.SetDefault("hardware.reconnect_interval", "3s")

	viper.AutomaticEnv()
	viper.SetEnvPrefix("OCB")

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// GetJWTSecret reads the signing secret from the configured environment
// variable, with a development fallback.
func (a *AuthConfig) GetJWTSecret() string {
	envVar := a.JWTSecretEnv
	if envVar == "" {
		envVar = "JWT_SECRET"
	}

	secret := os.Getenv(envVar)
	if secret == "" {
		return "dev-secret-change-in-production-min-32-chars"
	}
	return secret
}

// GetPasscodeHash reads the operator passcode hash (argon2id encoded) from
// the configured environment variable. Empty means the dev passcode applies.
func (a *AuthConfig) GetPasscodeHash() string {
	envVar := a.PasscodeHashEnv
	if envVar == "" {
		envVar = "PANEL_PASSCODE_HASH"
	}
	return os.Getenv(envVar)
}
