package config

// TransportConfig describes one transport kind and the endpoints the node
// accepts link.in traffic on.
// Example YAML:
// transports:
//   - kind: quic
//     listen: [":4433"]
//   - kind: tcp
//     listen: [":7777"]
//   - kind: winpipe
//     listen: ["\\\\.\\pipe\\linkmesh"]
//   - kind: mem
//     listen: ["inproc://gateway"]
type TransportConfig struct {
	Kind   string   `mapstructure:"kind"`
	Listen []string `mapstructure:"listen"`
	// MaxFrameBytes caps a single inbound frame; 0 keeps the transport default.
	MaxFrameBytes int `mapstructure:"max_frame_bytes"`
}
