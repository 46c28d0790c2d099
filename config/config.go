// Package config loads drivesync settings from flags, environment, a yaml
// file and defaults, in that order of priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/spf13/viper"

	"github.com/sandeepkandula/drivesync/sync"
)

const (
	EnvPrefix = "DRIVESYNC"
	FileName  = "drivesync"

	DestinationPhotos = "photos"
	DestinationS3     = "s3"
)

type Config struct {
	MainFolderName string
	SyncInterval   time.Duration
	StagingDir     string
	Concurrency    int
	Destination    string
	TokenFile      string

	Google GoogleConfig
	Auth   AuthConfig
	Drive  DriveConfig
	Photos PhotosConfig
	S3     S3Config
	HTTP   HTTPConfig
}

// GoogleConfig is the OAuth client shared by the Drive and Photos APIs.
type GoogleConfig struct {
	User         string
	ClientID     string
	ClientSecret string
}

type AuthConfig struct {
	RedirectPort int
}

type DriveConfig struct {
	RequestsPerSecond float64
}

type PhotosConfig struct {
	BaseURL string
}

type S3Config struct {
	Bucket       string
	Prefix       string
	Region       string
	StorageClass string
}

type HTTPConfig struct {
	Enabled bool
	Addr    string
}

// New returns a viper instance with defaults applied and the config file, if
// any, read in. An explicit cfgFile must exist.
func New(cfgFile string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	if cfgFile != "" {
		if _, err := os.Stat(cfgFile); err != nil {
			return nil, fmt.Errorf("config file: %w", err)
		}
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "drivesync"))
		}
		v.SetConfigName(FileName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}
	return v, nil
}

func SetDefaults(v *viper.Viper) {
	stagingDir := "drive_files"
	if wd, err := os.Getwd(); err == nil {
		stagingDir = filepath.Join(wd, stagingDir)
	}
	tokenFile := "token.json"
	if dir, err := os.UserConfigDir(); err == nil {
		tokenFile = filepath.Join(dir, "drivesync", tokenFile)
	}

	v.SetDefault("main_folder_name", "")
	v.SetDefault("sync_interval_minutes", 5)
	v.SetDefault("staging_dir", stagingDir)
	v.SetDefault("concurrency", 1)
	v.SetDefault("destination", DestinationPhotos)
	v.SetDefault("token_file", tokenFile)
	v.SetDefault("google.user", "")
	v.SetDefault("google.client_id", "")
	v.SetDefault("google.client_secret", "")
	v.SetDefault("auth.redirect_port", 8085)
	v.SetDefault("drive.requests_per_second", 10.0)
	v.SetDefault("photos.base_url", "")
	v.SetDefault("s3.bucket", "")
	v.SetDefault("s3.prefix", "")
	v.SetDefault("s3.region", "us-east-1")
	v.SetDefault("s3.storage_class", string(types.StorageClassGlacierIr))
	v.SetDefault("http.enabled", true)
	v.SetDefault("http.addr", "127.0.0.1:8080")
}

// Load extracts a Config from v.
func Load(v *viper.Viper) *Config {
	return &Config{
		MainFolderName: v.GetString("main_folder_name"),
		SyncInterval:   time.Duration(v.GetInt("sync_interval_minutes")) * time.Minute,
		StagingDir:     v.GetString("staging_dir"),
		Concurrency:    v.GetInt("concurrency"),
		Destination:    strings.ToLower(v.GetString("destination")),
		TokenFile:      v.GetString("token_file"),
		Google: GoogleConfig{
			User:         v.GetString("google.user"),
			ClientID:     v.GetString("google.client_id"),
			ClientSecret: v.GetString("google.client_secret"),
		},
		Auth:   AuthConfig{RedirectPort: v.GetInt("auth.redirect_port")},
		Drive:  DriveConfig{RequestsPerSecond: v.GetFloat64("drive.requests_per_second")},
		Photos: PhotosConfig{BaseURL: v.GetString("photos.base_url")},
		S3: S3Config{
			Bucket:       v.GetString("s3.bucket"),
			Prefix:       v.GetString("s3.prefix"),
			Region:       v.GetString("s3.region"),
			StorageClass: v.GetString("s3.storage_class"),
		},
		HTTP: HTTPConfig{
			Enabled: v.GetBool("http.enabled"),
			Addr:    v.GetString("http.addr"),
		},
	}
}

// Validate reports every invalid setting at once. The main folder name is
// not checked here; a cycle refuses to run without it.
func (c *Config) Validate() error {
	var errs []error
	if c.SyncInterval <= 0 {
		errs = append(errs, errors.New("sync_interval_minutes must be positive"))
	}
	if c.Concurrency < 1 {
		errs = append(errs, errors.New("concurrency must be at least 1"))
	}
	if c.StagingDir == "" {
		errs = append(errs, errors.New("staging_dir is required"))
	}
	if c.Google.ClientID == "" || c.Google.ClientSecret == "" {
		errs = append(errs, errors.New("google.client_id and google.client_secret are required"))
	}
	if c.Auth.RedirectPort < 0 || c.Auth.RedirectPort > 65535 {
		errs = append(errs, fmt.Errorf("auth.redirect_port %d out of range", c.Auth.RedirectPort))
	}

	switch c.Destination {
	case DestinationPhotos:
	case DestinationS3:
		if c.S3.Bucket == "" {
			errs = append(errs, errors.New("s3.bucket is required for the s3 destination"))
		}
		if !slices.Contains(types.StorageClass("").Values(), types.StorageClass(c.S3.StorageClass)) {
			errs = append(errs, fmt.Errorf("unknown s3.storage_class %q", c.S3.StorageClass))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown destination %q, want %s or %s", c.Destination, DestinationPhotos, DestinationS3))
	}

	if c.HTTP.Enabled && c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required when http.enabled is set"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", sync.ErrConfiguration, errors.Join(errs...))
	}
	return nil
}

// SyncOptions maps the settings the cycle needs.
func (c *Config) SyncOptions() sync.Options {
	return sync.Options{
		MainFolder:  c.MainFolderName,
		StagingDir:  c.StagingDir,
		Concurrency: c.Concurrency,
	}
}
