package types

// BackendConfig configures one storage backend scheme.
type BackendConfig struct {
	// Scheme this backend serves (s3, hf, local, file). Filled from the
	// config map key when empty.
	Scheme string `yaml:"scheme" json:"scheme"`
	Name   string `yaml:"name" json:"name"`

	// S3 settings
	Region  string `yaml:"region" json:"region"`
	Profile string `yaml:"profile" json:"profile"`

	// HuggingFace settings
	Token    string `yaml:"token" json:"token"`
	Revision string `yaml:"revision" json:"revision"`

	// Transfer settings (applies to Open streams)
	Transfer *TransferConfig `yaml:"transfer" json:"transfer"`
}

// TransferConfig bounds download throughput.
type TransferConfig struct {
	RateLimit Bytes `yaml:"rate_limit" json:"rate_limit"`
	RateBurst Bytes `yaml:"rate_burst" json:"rate_burst"`
}

// DefaultTransferConfig returns an unlimited transfer configuration.
func DefaultTransferConfig() TransferConfig {
	return TransferConfig{
		RateLimit: 0, // unlimited
		RateBurst: DefaultRateBurst,
	}
}
