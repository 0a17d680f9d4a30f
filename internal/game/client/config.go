package client

import (
	"fmt"
	"net/http"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SocketConfig holds configuration for the WebSocket transport
type SocketConfig struct {
	DialTimeout    time.Duration
	WriteTimeout   time.Duration
	ReadTimeout    time.Duration
	PingInterval   time.Duration
	MaxMessageSize int64
}

// DefaultSocketConfig returns default WebSocket transport configuration
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		DialTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
		ReadTimeout:    60 * time.Second,
		PingInterval:   30 * time.Second,
		MaxMessageSize: 64 * 1024, // drawing path blobs are the largest frames
	}
}

// Config holds the full client configuration
type Config struct {
	// Endpoint is the ws:// or wss:// URL of the game server
	Endpoint string

	// AuthToken authenticates the socket. Empty or the literal "null"
	// means unauthenticated and is refused at connect time.
	AuthToken string

	// UserID identifies the local player for identity gating and
	// drawer/word recovery.
	UserID string

	Socket    SocketConfig
	Reconnect ReconnectPolicy
}

// DefaultConfig returns a config with all defaults and no endpoint
func DefaultConfig() Config {
	return Config{
		Socket:    DefaultSocketConfig(),
		Reconnect: DefaultReconnectPolicy(),
	}
}

// fileConfig is the YAML shape of the config file. Timing fields are
// whole seconds; unset fields keep their defaults.
type fileConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AuthToken string `yaml:"auth_token"`
	UserID    string `yaml:"user_id"`

	Socket struct {
		DialTimeoutSec  int   `yaml:"dial_timeout_seconds"`
		WriteTimeoutSec int   `yaml:"write_timeout_seconds"`
		ReadTimeoutSec  int   `yaml:"read_timeout_seconds"`
		PingIntervalSec int   `yaml:"ping_interval_seconds"`
		MaxMessageSize  int64 `yaml:"max_message_size"`
	} `yaml:"socket"`

	Reconnect struct {
		MaxAttempts  int     `yaml:"max_attempts"`
		BaseDelaySec float64 `yaml:"base_delay_seconds"`
		Multiplier   float64 `yaml:"multiplier"`
	} `yaml:"reconnect"`
}

// LoadConfig reads a YAML config file, filling unset fields with
// defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var file fileConfig
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	config := DefaultConfig()
	config.Endpoint = file.Endpoint
	config.AuthToken = file.AuthToken
	config.UserID = file.UserID

	if file.Socket.DialTimeoutSec > 0 {
		config.Socket.DialTimeout = time.Duration(file.Socket.DialTimeoutSec) * time.Second
	}
	if file.Socket.WriteTimeoutSec > 0 {
		config.Socket.WriteTimeout = time.Duration(file.Socket.WriteTimeoutSec) * time.Second
	}
	if file.Socket.ReadTimeoutSec > 0 {
		config.Socket.ReadTimeout = time.Duration(file.Socket.ReadTimeoutSec) * time.Second
	}
	if file.Socket.PingIntervalSec > 0 {
		config.Socket.PingInterval = time.Duration(file.Socket.PingIntervalSec) * time.Second
	}
	if file.Socket.MaxMessageSize > 0 {
		config.Socket.MaxMessageSize = file.Socket.MaxMessageSize
	}

	if file.Reconnect.MaxAttempts > 0 {
		config.Reconnect.MaxAttempts = file.Reconnect.MaxAttempts
	}
	if file.Reconnect.BaseDelaySec > 0 {
		config.Reconnect.BaseDelay = time.Duration(file.Reconnect.BaseDelaySec * float64(time.Second))
	}
	if file.Reconnect.Multiplier > 0 {
		config.Reconnect.Multiplier = file.Reconnect.Multiplier
	}

	return &config, nil
}

// authHeader builds the dial headers for the configured token
func authHeader(token string) http.Header {
	h := http.Header{}
	h.Set("Authorization", "Bearer "+token)
	return h
}
