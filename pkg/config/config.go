// Package config provides YAML-based configuration loading for linkmesh.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config is the root application configuration.
type Config struct {
	// AppName optional logical name of the node/application
	AppName string `mapstructure:"app_name"`

	// DataDir base directory for persistent data
	DataDir string `mapstructure:"data_dir"`

	// NodeID is the local node identifier used in logs
	NodeID string `mapstructure:"node_id"`

	// Log holds logging configuration
	Log LogConfig `mapstructure:"log"`

	// Transports lists the endpoints link.in traffic is accepted on
	Transports []TransportConfig `mapstructure:"transports"`

	// Identity controls the signing identity used in session hellos.
	Identity IdentityConfig `mapstructure:"identity"`

	// Inbound tunes the inbound processing pipeline.
	Inbound InboundConfig `mapstructure:"inbound"`

	// Sessions configures the in-memory session registry.
	Sessions SessionsConfig `mapstructure:"sessions"`
}

// LogConfig defines logger settings.
type LogConfig struct {
	// Level: debug, info, warn, error
	Level string `mapstructure:"level"`
	// Format: console or json
	Format string `mapstructure:"format"`
	// Outputs: list of outputs: stdout, stderr, or file paths
	Outputs []string `mapstructure:"outputs"`

	// Rotation controls file rotation when writing to files
	Rotation RotationConfig `mapstructure:"rotation"`
	// Development toggles development-friendly logging options
	Development bool `mapstructure:"development"`
}

// RotationConfig controls log file rotation for file outputs.
type RotationConfig struct {
	Enable     bool   `mapstructure:"enable"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// TopicsConfig names the logical bus topics.
type TopicsConfig struct {
	LinkIn            string `mapstructure:"link_in"`
	LinkOut           string `mapstructure:"link_out"`
	P2PIn             string `mapstructure:"p2p_in"`
	P2POutMarkers     string `mapstructure:"p2p_out_markers"`
	SessionPartitions string `mapstructure:"session_partitions"`
}

// InboundConfig tunes the inbound pipeline.
type InboundConfig struct {
	Topics TopicsConfig `mapstructure:"topics"`
	// WireFormat selects the frame encoding for replies: cbor, json.
	WireFormat string `mapstructure:"wire_format"`
	// PublishTimeoutMS bounds how long a batch waits on publish futures.
	PublishTimeoutMS int `mapstructure:"publish_timeout_ms"`
	// ProcessTimeoutMS bounds a synchronous Process call.
	ProcessTimeoutMS int `mapstructure:"process_timeout_ms"`
	// ReplyInline returns handshake replies on the RPC reply instead of link.out.
	ReplyInline bool `mapstructure:"reply_inline"`
	// Partitions is the initial assignment snapshot owned by this node.
	Partitions []int32 `mapstructure:"partitions"`
}

// SessionsConfig configures the in-memory session registry.
type SessionsConfig struct {
	// PendingAckTTLMS is how long an outstanding outbound message id is kept.
	PendingAckTTLMS int `mapstructure:"pending_ack_ttl_ms"`
	// Static lists pre-shared sessions loaded at startup.
	Static []StaticSessionConfig `mapstructure:"static"`
}

// StaticSessionConfig describes one pre-shared session.
type StaticSessionConfig struct {
	ID string `mapstructure:"id"`
	// Direction: inbound or outbound.
	Direction string `mapstructure:"direction"`
	// Mode: mac (authenticated) or aead (authenticated encryption).
	Mode             string `mapstructure:"mode"`
	SourceName       string `mapstructure:"source_name"`
	SourceGroup      string `mapstructure:"source_group"`
	DestinationName  string `mapstructure:"destination_name"`
	DestinationGroup string `mapstructure:"destination_group"`
	// Secret is base64url(no padding) key material fed to HKDF.
	Secret string `mapstructure:"secret"`
}

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		AppName: "linkmesh-node",
		DataDir: "./data",
		NodeID:  "node-1",
		Log: LogConfig{
			Level:       "info",
			Format:      "console",
			Outputs:     []string{"stdout"},
			Development: true,
			Rotation: RotationConfig{
				Enable:     false,
				Filename:   "logs/linkmesh.log",
				MaxSizeMB:  50,
				MaxBackups: 3,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
		Transports: []TransportConfig{
			{
				Kind:   "quic",
				Listen: []string{":4433"},
			},
		},
		Identity: IdentityConfig{Alg: "ed25519", Name: "O=Alice, L=London, C=GB", Group: "default"},
		Inbound: InboundConfig{
			Topics: TopicsConfig{
				LinkIn:            "link.in",
				LinkOut:           "link.out",
				P2PIn:             "p2p.in",
				P2POutMarkers:     "p2p.out.markers",
				SessionPartitions: "session.out.partitions",
			},
			WireFormat:       "cbor",
			PublishTimeoutMS: 5000,
			ProcessTimeoutMS: 10000,
		},
		Sessions: SessionsConfig{PendingAckTTLMS: 60000},
	}
}

// Load reads configuration from the provided path (if non-empty),
// otherwise it searches common locations and supports environment overrides.
// Environment variables use the prefix LINKMESH and `.`/`-` are replaced with `_`.
// Example: LINKMESH_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("LINKMESH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// seed defaults for viper so env-only configs work
	v.SetDefault("app_name", cfg.AppName)
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("node_id", cfg.NodeID)
	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("log.rotation.enable", cfg.Log.Rotation.Enable)
	v.SetDefault("log.rotation.filename", cfg.Log.Rotation.Filename)
	v.SetDefault("log.rotation.max_size_mb", cfg.Log.Rotation.MaxSizeMB)
	v.SetDefault("log.rotation.max_backups", cfg.Log.Rotation.MaxBackups)
	v.SetDefault("log.rotation.max_age_days", cfg.Log.Rotation.MaxAgeDays)
	v.SetDefault("log.rotation.compress", cfg.Log.Rotation.Compress)
	v.SetDefault("transports", cfg.Transports)
	v.SetDefault("identity.alg", cfg.Identity.Alg)
	v.SetDefault("identity.name", cfg.Identity.Name)
	v.SetDefault("identity.group", cfg.Identity.Group)
	v.SetDefault("identity.private_key", cfg.Identity.PrivateKey)
	v.SetDefault("identity.private_key_file", cfg.Identity.PrivateKeyFile)
	v.SetDefault("inbound.topics.link_in", cfg.Inbound.Topics.LinkIn)
	v.SetDefault("inbound.topics.link_out", cfg.Inbound.Topics.LinkOut)
	v.SetDefault("inbound.topics.p2p_in", cfg.Inbound.Topics.P2PIn)
	v.SetDefault("inbound.topics.p2p_out_markers", cfg.Inbound.Topics.P2POutMarkers)
	v.SetDefault("inbound.topics.session_partitions", cfg.Inbound.Topics.SessionPartitions)
	v.SetDefault("inbound.wire_format", cfg.Inbound.WireFormat)
	v.SetDefault("inbound.publish_timeout_ms", cfg.Inbound.PublishTimeoutMS)
	v.SetDefault("inbound.process_timeout_ms", cfg.Inbound.ProcessTimeoutMS)
	v.SetDefault("inbound.reply_inline", cfg.Inbound.ReplyInline)
	v.SetDefault("inbound.partitions", cfg.Inbound.Partitions)
	v.SetDefault("sessions.pending_ack_ttl_ms", cfg.Sessions.PendingAckTTLMS)

	// Choose config file
	if path == "" {
		if envPath := os.Getenv("LINKMESH_CONFIG"); envPath != "" {
			path = envPath
		}
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("linkmesh")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".linkmesh"))
		}
	}

	// Read config file if present; if not found, continue with defaults/env
	if err := v.ReadInConfig(); err != nil {
		var viperConfigFileNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &viperConfigFileNotFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	lvl := strings.ToLower(strings.TrimSpace(c.Log.Level))
	switch lvl {
	case "debug", "info", "warn", "warning", "error":
		// ok
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}

	if c.Log.Format == "" {
		c.Log.Format = "console"
	}
	if len(c.Log.Outputs) == 0 {
		c.Log.Outputs = []string{"stdout"}
	}
	if strings.TrimSpace(c.NodeID) == "" {
		c.NodeID = "node-1"
	}
	for i := range c.Transports {
		c.Transports[i].Kind = strings.ToLower(strings.TrimSpace(c.Transports[i].Kind))
	}

	c.Inbound.WireFormat = strings.ToLower(strings.TrimSpace(c.Inbound.WireFormat))
	switch c.Inbound.WireFormat {
	case "":
		c.Inbound.WireFormat = "cbor"
	case "cbor", "json":
	default:
		return fmt.Errorf("invalid inbound.wire_format: %q", c.Inbound.WireFormat)
	}
	if c.Inbound.PublishTimeoutMS <= 0 {
		c.Inbound.PublishTimeoutMS = 5000
	}
	if c.Inbound.ProcessTimeoutMS <= 0 {
		c.Inbound.ProcessTimeoutMS = 10000
	}
	t := c.Inbound.Topics
	seen := make(map[string]string, 5)
	for name, topic := range map[string]string{
		"link_in":            t.LinkIn,
		"link_out":           t.LinkOut,
		"p2p_in":             t.P2PIn,
		"p2p_out_markers":    t.P2POutMarkers,
		"session_partitions": t.SessionPartitions,
	} {
		if strings.TrimSpace(topic) == "" {
			return fmt.Errorf("inbound.topics.%s must not be empty", name)
		}
		if other, dup := seen[topic]; dup {
			return fmt.Errorf("inbound.topics.%s and inbound.topics.%s share topic %q", name, other, topic)
		}
		seen[topic] = name
	}

	if c.Sessions.PendingAckTTLMS <= 0 {
		c.Sessions.PendingAckTTLMS = 60000
	}
	for i := range c.Sessions.Static {
		s := &c.Sessions.Static[i]
		s.Direction = strings.ToLower(strings.TrimSpace(s.Direction))
		s.Mode = strings.ToLower(strings.TrimSpace(s.Mode))
		if s.Direction != "inbound" && s.Direction != "outbound" {
			return fmt.Errorf("sessions.static[%d].direction: %q", i, s.Direction)
		}
		if s.Mode != "mac" && s.Mode != "aead" {
			return fmt.Errorf("sessions.static[%d].mode: %q", i, s.Mode)
		}
		if strings.TrimSpace(s.Secret) == "" {
			return fmt.Errorf("sessions.static[%d].secret is required", i)
		}
	}
	return nil
}

// MustLoad is a convenience that panics on error.
func MustLoad(path string) *Config {
	cfg, err := Load(path)
	if err != nil {
		panic(err)
	}
	return cfg
}
