package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type Config struct {
	LogLevel  string          `mapstructure:"log_level"`
	HubURL    string          `mapstructure:"hub_url"`
	Signaling SignalingConfig `mapstructure:"signaling"`
	ICE       ICEConfig       `mapstructure:"ice"`
	Link      LinkConfig      `mapstructure:"link"`
	Room      RoomConfig      `mapstructure:"room"`
	Hub       HubConfig       `mapstructure:"hub"`
}

type SignalingConfig struct {
	Codec           string          `mapstructure:"codec"`
	SendBuffer      int             `mapstructure:"send_buffer"`
	WriteWait       time.Duration   `mapstructure:"write_wait"`
	PongWait        time.Duration   `mapstructure:"pong_wait"`
	MaxMessageSize  int64           `mapstructure:"max_message_size"`
	WelcomeTimeout  time.Duration   `mapstructure:"welcome_timeout"`
	ReconnectDelays []time.Duration `mapstructure:"reconnect_delays"`
}

type ICEConfig struct {
	STUNURLs    []string     `mapstructure:"stun_urls"`
	TURNServers []TURNServer `mapstructure:"turn_servers"`
	ForceRelay  bool         `mapstructure:"force_relay"`
}

// TURNServer is an optional relay fallback. Without any, NAT traversal
// degrades but nothing fails.
type TURNServer struct {
	URLs       []string `mapstructure:"urls"`
	Username   string   `mapstructure:"username"`
	Credential string   `mapstructure:"credential"`
}

type LinkConfig struct {
	RestartTimeout time.Duration `mapstructure:"restart_timeout"`
}

type RoomConfig struct {
	JoinTimeout  time.Duration `mapstructure:"join_timeout"`
	LeaveTimeout time.Duration `mapstructure:"leave_timeout"`
}

type HubConfig struct {
	Mode          string        `mapstructure:"mode"`
	Port          int           `mapstructure:"port"`
	RelayLimit    int           `mapstructure:"relay_limit"`
	RelayInterval time.Duration `mapstructure:"relay_interval"`
	Backpressure  string        `mapstructure:"backpressure"`
}

var DefaultSTUNURLs = []string{
	"stun:stun.l.google.com:19302",
	"stun:stun1.l.google.com:19302",
	"stun:stun2.l.google.com:19302",
	"stun:stun3.l.google.com:19302",
	"stun:stun4.l.google.com:19302",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("hub_url", "ws://localhost:8080/ws")

	v.SetDefault("signaling.codec", "json")
	v.SetDefault("signaling.send_buffer", 256)
	v.SetDefault("signaling.write_wait", "10s")
	v.SetDefault("signaling.pong_wait", "60s")
	v.SetDefault("signaling.max_message_size", 64*1024)
	v.SetDefault("signaling.welcome_timeout", "10s")
	v.SetDefault("signaling.reconnect_delays", []string{"0s", "2s", "5s", "10s", "30s"})

	v.SetDefault("ice.stun_urls", DefaultSTUNURLs)
	v.SetDefault("ice.force_relay", false)

	v.SetDefault("link.restart_timeout", "15s")
	v.SetDefault("room.join_timeout", "15s")
	v.SetDefault("room.leave_timeout", "5s")

	v.SetDefault("hub.mode", "release")
	v.SetDefault("hub.port", 8080)
	v.SetDefault("hub.relay_limit", 200)
	v.SetDefault("hub.relay_interval", "1s")
	v.SetDefault("hub.backpressure", "kick")
}

// New returns a viper instance with defaults and MESH_ env overrides,
// ready for flag binding before Load.
func New() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("mesh")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	return v
}

// Load reads path, or config/config.$CONFIG_ENV.yaml when path is empty.
// A missing file is not an error; defaults apply.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path == "" {
		env := os.Getenv("CONFIG_ENV")
		if env == "" {
			env = "dev"
		}
		path = fmt.Sprintf("config/config.%s.yaml", env)
	}
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", path).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", path).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Debug().Str("module", "config").Str("hub_url", cfg.HubURL).Str("codec", cfg.Signaling.Codec).Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	switch c.Signaling.Codec {
	case "json", "msgpack":
	default:
		return fmt.Errorf("unknown signaling codec %q", c.Signaling.Codec)
	}
	if c.Signaling.SendBuffer <= 0 {
		return fmt.Errorf("signaling.send_buffer must be positive")
	}
	switch c.Hub.Backpressure {
	case "kick", "lenient":
	default:
		return fmt.Errorf("unknown hub.backpressure %q", c.Hub.Backpressure)
	}
	if c.ICE.ForceRelay && len(c.ICE.TURNServers) == 0 {
		return fmt.Errorf("cannot force relay mode without TURN server configured")
	}
	return nil
}
