package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/parnexcodes/ferry/internal/transfer"
	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Verbose   bool            `mapstructure:"verbose"`
	Output    string          `mapstructure:"output"`
	Endpoints EndpointsConfig `mapstructure:"endpoints"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	Upload    UploadConfig    `mapstructure:"upload"`
	Options   OptionsConfig   `mapstructure:"options"`
}

// EndpointsConfig holds the URLs of the backend
type EndpointsConfig struct {
	UploadURL string `mapstructure:"upload_url"`
	ChunkURL  string `mapstructure:"chunk_url"`
	MergeURL  string `mapstructure:"merge_url"`
	RemoveURL string `mapstructure:"remove_url"`
}

// LimitsConfig holds the admission rules
type LimitsConfig struct {
	Multiple      bool     `mapstructure:"multiple"`
	MaxFiles      int      `mapstructure:"max_files"`
	MaxSize       int64    `mapstructure:"max_size"`
	MinSize       int64    `mapstructure:"min_size"`
	AcceptedTypes []string `mapstructure:"accepted_types"`
}

// UploadConfig holds transfer-specific configuration
type UploadConfig struct {
	Chunked       bool          `mapstructure:"chunked"`
	ChunkSize     int64         `mapstructure:"chunk_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
	AutoStart     bool          `mapstructure:"auto_start"`
	Concurrency   int           `mapstructure:"concurrency"`
	RetryAttempts int           `mapstructure:"retry_attempts"`
	RetryDelay    time.Duration `mapstructure:"retry_delay"`
	TargetPath    string        `mapstructure:"target_path"`
	RemoveMode    string        `mapstructure:"remove_mode"`
	// RollbackOnFailure deletes the uploaded files of a batch that did not
	// fully succeed
	RollbackOnFailure bool `mapstructure:"rollback_on_failure"`
}

// OptionsConfig is the options.* field set sent with single-shot uploads
type OptionsConfig struct {
	CreateDirectory          bool   `mapstructure:"create_directory"`
	ScanForVirus             bool   `mapstructure:"scan_for_virus"`
	ValidateIntegrity        bool   `mapstructure:"validate_integrity"`
	CustomFileName           string `mapstructure:"custom_file_name"`
	Description              string `mapstructure:"description"`
	HashAlgorithm            string `mapstructure:"hash_algorithm"`
	ExpectedHash             string `mapstructure:"expected_hash"`
	StartWatchingAfterUpload bool   `mapstructure:"start_watching_after_upload"`
	Overwrite                bool   `mapstructure:"overwrite"`
}

// LoadConfig loads configuration from file and environment
func LoadConfig() (*Config, error) {
	config := &Config{}

	setDefaults()

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

func setDefaults() {
	viper.SetDefault("verbose", false)
	viper.SetDefault("output", "text")

	viper.SetDefault("limits.multiple", true)
	viper.SetDefault("limits.max_files", 0)
	viper.SetDefault("limits.max_size", 0)
	viper.SetDefault("limits.min_size", 0)
	viper.SetDefault("limits.accepted_types", []string{})

	viper.SetDefault("upload.chunked", false)
	viper.SetDefault("upload.chunk_size", transfer.DefaultChunkSize)
	viper.SetDefault("upload.timeout", "5m")
	viper.SetDefault("upload.auto_start", true)
	viper.SetDefault("upload.concurrency", 5)
	viper.SetDefault("upload.retry_attempts", 3)
	viper.SetDefault("upload.retry_delay", "2s")
	viper.SetDefault("upload.remove_mode", string(transfer.RemoveByFileID))
	viper.SetDefault("upload.rollback_on_failure", false)

	viper.SetDefault("options.hash_algorithm", "sha256")
}

// Validate checks that the endpoints needed by the selected mode are present
func (c *Config) Validate() error {
	if c.Upload.Chunked {
		if c.Endpoints.ChunkURL == "" || c.Endpoints.MergeURL == "" {
			return fmt.Errorf("chunked mode requires endpoints.chunk_url and endpoints.merge_url")
		}
		if c.Upload.ChunkSize <= 0 {
			return fmt.Errorf("upload.chunk_size must be positive, got %d", c.Upload.ChunkSize)
		}
	} else if c.Endpoints.UploadURL == "" {
		return fmt.Errorf("endpoints.upload_url is required")
	}

	switch transfer.RemoveMode(c.Upload.RemoveMode) {
	case transfer.RemoveByFileID, transfer.RemoveByPath:
	default:
		return fmt.Errorf("unknown upload.remove_mode %q (want %s or %s)",
			c.Upload.RemoveMode, transfer.RemoveByFileID, transfer.RemoveByPath)
	}

	if c.Upload.RollbackOnFailure && c.Endpoints.RemoveURL == "" {
		return fmt.Errorf("upload.rollback_on_failure requires endpoints.remove_url")
	}

	if _, err := ParseHashAlgorithm(c.Options.HashAlgorithm); err != nil {
		return err
	}
	return nil
}

// ParseHashAlgorithm maps a configured algorithm name onto its ordinal
func ParseHashAlgorithm(name string) (transfer.HashAlgorithm, error) {
	switch strings.ToLower(strings.ReplaceAll(name, "-", "")) {
	case "", "sha256":
		return transfer.HashSHA256, nil
	case "sha512":
		return transfer.HashSHA512, nil
	case "md5":
		return transfer.HashMD5, nil
	default:
		return 0, fmt.Errorf("unknown options.hash_algorithm %q", name)
	}
}

// EngineConfig converts the configuration into engine settings
func (c *Config) EngineConfig() transfer.Config {
	hash, _ := ParseHashAlgorithm(c.Options.HashAlgorithm)

	return transfer.Config{
		Endpoints: transfer.Endpoints{
			Upload: c.Endpoints.UploadURL,
			Chunk:  c.Endpoints.ChunkURL,
			Merge:  c.Endpoints.MergeURL,
			Remove: c.Endpoints.RemoveURL,
		},
		Limits: transfer.Limits{
			Multiple:      c.Limits.Multiple,
			MaxFiles:      c.Limits.MaxFiles,
			MaxSize:       c.Limits.MaxSize,
			MinSize:       c.Limits.MinSize,
			AcceptedTypes: c.Limits.AcceptedTypes,
		},
		Chunked:     c.Upload.Chunked,
		ChunkSize:   c.Upload.ChunkSize,
		AutoStart:   c.Upload.AutoStart,
		Timeout:     c.Upload.Timeout,
		Concurrency: c.Upload.Concurrency,
		Options: transfer.UploadOptions{
			CreateDirectory:          c.Options.CreateDirectory,
			ScanForVirus:             c.Options.ScanForVirus,
			ValidateIntegrity:        c.Options.ValidateIntegrity,
			CustomFileName:           c.Options.CustomFileName,
			Description:              c.Options.Description,
			HashAlgorithm:            hash,
			ExpectedHash:             c.Options.ExpectedHash,
			StartWatchingAfterUpload: c.Options.StartWatchingAfterUpload,
			Overwrite:                c.Options.Overwrite,
		},
		TargetPath: c.Upload.TargetPath,
		RemoveMode: transfer.RemoveMode(c.Upload.RemoveMode),
	}
}
