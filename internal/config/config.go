package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"regexp"

	"github.com/joeshaw/envdecode"
	"github.com/life-stream-dev/life-stream-go-mqtt-bridge/internal/keyexpr"
)

const DefaultPath = "config.json"

type DatabaseConfig struct {
	Enabled            bool   `json:"enabled" env:"BRIDGE_DATABASE_ENABLED"`
	Host               string `json:"host" env:"BRIDGE_DATABASE_HOST"`
	Port               uint64 `json:"port" env:"BRIDGE_DATABASE_PORT"`
	Username           string `json:"username" env:"BRIDGE_DATABASE_USERNAME"`
	Password           string `json:"password" env:"BRIDGE_DATABASE_PASSWORD"`
	Database           string `json:"database" env:"BRIDGE_DATABASE_NAME"`
	UseTLS             bool   `json:"use_tls"`
	ConnectTimeout     string `json:"connect_timeout"`
	SocketTimeout      string `json:"socket_timeout"`
	ConnectIdleTimeout string `json:"connect_idle_timeout"`
	OperationTimeout   string `json:"operation_timeout"`
	Heartbeat          string `json:"heartbeat"`
	MinPoolSize        uint64 `json:"min_pool_size"`
	MaxPoolSize        uint64 `json:"max_pool_size"`
}

type MQTTConfig struct {
	Host           string `json:"host" env:"BRIDGE_MQTT_HOST"`
	Port           int    `json:"port" env:"BRIDGE_MQTT_PORT"`
	MaxConnections int    `json:"max_connections"`
	MaxPacketSize  int    `json:"max_packet_size"`
}

// BridgeSection 路由策略原始配置，使用前需要 Compile
type BridgeSection struct {
	Scope string `json:"scope" env:"BRIDGE_SCOPE"`
	Allow string `json:"allow" env:"BRIDGE_ALLOW"`
	Deny  string `json:"deny" env:"BRIDGE_DENY"`
}

type RedisConfig struct {
	Addr          string `json:"addr" env:"BRIDGE_REDIS_ADDR"`
	Password      string `json:"password" env:"BRIDGE_REDIS_PASSWORD"`
	DB            int    `json:"db"`
	ChannelPrefix string `json:"channel_prefix"`
	DialTimeout   string `json:"dial_timeout"`
}

type OverlayConfig struct {
	// Backend is either "local" or "redis".
	Backend string      `json:"backend" env:"BRIDGE_OVERLAY_BACKEND"`
	Redis   RedisConfig `json:"redis"`
}

type Config struct {
	Database  DatabaseConfig `json:"database"`
	MQTT      MQTTConfig     `json:"mqtt"`
	Bridge    BridgeSection  `json:"bridge"`
	Overlay   OverlayConfig  `json:"overlay"`
	DebugMode bool           `json:"debug_mode" env:"BRIDGE_DEBUG"`
	AppName   string         `json:"app_name"`
}

// BridgeConfig is the compiled, read-only view of BridgeSection shared by
// every client session.
type BridgeConfig struct {
	Scope string
	Allow *regexp.Regexp
	Deny  *regexp.Regexp
}

var (
	config      = defaultConfig()
	initialized = false

	ErrConfigCreated = errors.New("the configuration file does not exist and has been created. Please try again after editing the configuration file")
)

func defaultConfig() Config {
	return Config{
		MQTT: MQTTConfig{
			Port:           1883,
			MaxConnections: 10000,
			MaxPacketSize:  1 << 20,
		},
		Overlay: OverlayConfig{
			Backend: "local",
			Redis: RedisConfig{
				Addr:          "localhost:6379",
				ChannelPrefix: "mqtt-bridge:",
				DialTimeout:   "5s",
			},
		},
		Database: DatabaseConfig{
			Port:               27017,
			Database:           "mqtt_bridge",
			ConnectTimeout:     "10s",
			SocketTimeout:      "30s",
			ConnectIdleTimeout: "5m",
			OperationTimeout:   "5s",
			Heartbeat:          "10s",
			MinPoolSize:        1,
			MaxPoolSize:        16,
		},
		AppName: "life-stream-mqtt-bridge",
	}
}

// ReadConfig 读取配置文件，不存在时写出默认配置并返回 ErrConfigCreated
func ReadConfig(path string) (Config, error) {
	if path == "" {
		path = DefaultPath
	}
	cfg := defaultConfig()

	bytes, err := os.ReadFile(path)
	if err != nil {
		data, _ := json.MarshalIndent(cfg, "", "\t")
		_ = os.WriteFile(path, data, 0644)
		return cfg, ErrConfigCreated
	}

	if err := json.Unmarshal(bytes, &cfg); err != nil {
		return cfg, fmt.Errorf("the configuration file does not contain valid JSON, details: %v", err)
	}

	if err := envdecode.Decode(&cfg); err != nil && !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
		return cfg, fmt.Errorf("error occured while reading environment overrides, details: %v", err)
	}

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}

	config = cfg
	initialized = true
	return cfg, nil
}

func GetConfig() (Config, error) {
	if initialized {
		return config, nil
	}
	return ReadConfig(DefaultPath)
}

func (c *Config) Validate() error {
	if c.MQTT.Port <= 0 || c.MQTT.Port > 65535 {
		return fmt.Errorf("invalid mqtt port %d", c.MQTT.Port)
	}
	switch c.Overlay.Backend {
	case "", "local", "redis":
	default:
		return fmt.Errorf("unknown overlay backend %q, expected \"local\" or \"redis\"", c.Overlay.Backend)
	}
	_, err := c.Bridge.Compile()
	return err
}

// Compile checks the scope and compiles the allow/deny expressions.
func (b BridgeSection) Compile() (*BridgeConfig, error) {
	result := &BridgeConfig{Scope: b.Scope}
	if b.Scope != "" {
		if err := keyexpr.CheckScope(b.Scope); err != nil {
			return nil, fmt.Errorf("invalid bridge scope: %w", err)
		}
	}
	if b.Allow != "" {
		re, err := regexp.Compile(b.Allow)
		if err != nil {
			return nil, fmt.Errorf("invalid 'allow' expression %q: %w", b.Allow, err)
		}
		result.Allow = re
	}
	if b.Deny != "" {
		re, err := regexp.Compile(b.Deny)
		if err != nil {
			return nil, fmt.Errorf("invalid 'deny' expression %q: %w", b.Deny, err)
		}
		result.Deny = re
	}
	return result, nil
}
