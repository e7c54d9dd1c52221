package config

// IdentityConfig describes the node's signing identity used when answering
// session initiation hellos.
type IdentityConfig struct {
	Alg            string `mapstructure:"alg"`              // only ed25519
	Name           string `mapstructure:"name"`             // holding identity name announced in hellos
	Group          string `mapstructure:"group"`            // holding identity group
	PrivateKey     string `mapstructure:"private_key"`      // base64url(no padding) of raw private key bytes
	PrivateKeyFile string `mapstructure:"private_key_file"` // path to file containing base64 or raw bytes
}
