package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultValidates(t *testing.T) {
	cfg := Default()
	if err := cfg.validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.Inbound.Topics.LinkIn != "link.in" || cfg.Inbound.Topics.SessionPartitions != "session.out.partitions" {
		t.Fatalf("unexpected topics: %+v", cfg.Inbound.Topics)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "linkmesh.yaml")
	yaml := `
node_id: node-7
log:
  level: debug
inbound:
  wire_format: JSON
  reply_inline: true
  partitions: [1, 2]
sessions:
  pending_ack_ttl_ms: 1500
  static:
    - id: S1
      direction: Inbound
      mode: aead
      source_name: A
      destination_name: B
      secret: c2VjcmV0
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	t.Setenv("LINKMESH_INBOUND_PUBLISH_TIMEOUT_MS", "250")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.NodeID != "node-7" || cfg.Log.Level != "debug" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Inbound.WireFormat != "json" || !cfg.Inbound.ReplyInline {
		t.Fatalf("inbound section: %+v", cfg.Inbound)
	}
	if len(cfg.Inbound.Partitions) != 2 || cfg.Inbound.Partitions[1] != 2 {
		t.Fatalf("partitions: %v", cfg.Inbound.Partitions)
	}
	if cfg.Inbound.PublishTimeoutMS != 250 {
		t.Fatalf("env override not applied: %d", cfg.Inbound.PublishTimeoutMS)
	}
	if len(cfg.Sessions.Static) != 1 || cfg.Sessions.Static[0].Direction != "inbound" {
		t.Fatalf("static sessions: %+v", cfg.Sessions.Static)
	}
	if cfg.Sessions.PendingAckTTLMS != 1500 {
		t.Fatalf("ttl: %d", cfg.Sessions.PendingAckTTLMS)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"log level", func(c *Config) { c.Log.Level = "loud" }},
		{"wire format", func(c *Config) { c.Inbound.WireFormat = "xml" }},
		{"duplicate topic", func(c *Config) { c.Inbound.Topics.P2PIn = c.Inbound.Topics.LinkOut }},
		{"empty topic", func(c *Config) { c.Inbound.Topics.LinkIn = "" }},
		{"session mode", func(c *Config) {
			c.Sessions.Static = []StaticSessionConfig{{Direction: "inbound", Mode: "rot13", Secret: "x"}}
		}},
		{"session secret", func(c *Config) {
			c.Sessions.Static = []StaticSessionConfig{{Direction: "outbound", Mode: "mac"}}
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Default()
			tc.mutate(cfg)
			if err := cfg.validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}
