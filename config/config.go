package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fixfeed/errs"
)

type Config struct {
	Fixfeed     FixfeedConfig     `yaml:"fixfeed"`
	Venue       VenueConfig       `yaml:"venue"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Auth        AuthConfig        `yaml:"auth"`
	Subscribe   SubscribeConfig   `yaml:"subscribe"`
	Session     SessionConfig     `yaml:"session"`
	Channels    ChannelsConfig    `yaml:"channels"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type FixfeedConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type VenueConfig struct {
	Name                 string `yaml:"name"`
	Host                 string `yaml:"host"`
	Port                 string `yaml:"port"`
	FixVersion           string `yaml:"fix_version"`
	DefaultApplVerID     string `yaml:"default_appl_ver_id"`
	SenderCompID         string `yaml:"sender_comp_id"`
	TargetCompID         string `yaml:"target_comp_id"`
	HeartBtInt           int    `yaml:"heartbeat_interval"`
	SSL                  bool   `yaml:"ssl"`
	ResetSeqNumOnLogon   bool   `yaml:"reset_seq_num_on_logon"`
	SendingTimePrecision string `yaml:"sending_time_precision"`
}

type CredentialsConfig struct {
	Username       string `yaml:"username"`
	Passphrase     string `yaml:"passphrase"`
	SecretKey      string `yaml:"secret_key"`
	SecretEncoding string `yaml:"secret_encoding"`
}

type AuthConfig struct {
	StrictSigning bool `yaml:"strict_signing"`
}

// SubscribeConfig keeps the raw textual values so that malformed numbers are
// reported as configuration errors by the subscription builder.
type SubscribeConfig struct {
	Products   string `yaml:"products"`
	Type       string `yaml:"type"`
	Depth      string `yaml:"depth"`
	UpdateType string `yaml:"update_type"`
	EntryTypes string `yaml:"entry_types"`
	// SecurityList requests the venue's security list after each logon.
	SecurityList bool `yaml:"security_list"`
}

type SessionConfig struct {
	Store             string        `yaml:"store"`
	StorePath         string        `yaml:"store_path"`
	LogonTimeout      time.Duration `yaml:"logon_timeout"`
	ReconnectInterval time.Duration `yaml:"reconnect_interval"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout"`
}

type ChannelsConfig struct {
	QuoteBuffer int `yaml:"quote_buffer"`
}

type MetricsConfig struct {
	Prometheus     PrometheusConfig `yaml:"prometheus"`
	CloudWatch     CloudWatchConfig `yaml:"cloudwatch"`
	ReportInterval time.Duration    `yaml:"report_interval"`
}

type PrometheusConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

type CloudWatchConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Region    string `yaml:"region"`
	Namespace string `yaml:"namespace"`
	Dashboard string `yaml:"dashboard"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool          `yaml:"enabled"`
	Bucket          string        `yaml:"bucket"`
	Prefix          string        `yaml:"prefix"`
	Region          string        `yaml:"region"`
	Endpoint        string        `yaml:"endpoint"`
	PathStyle       bool          `yaml:"path_style"`
	AccessKeyID     string        `yaml:"access_key_id"`
	SecretAccessKey string        `yaml:"secret_access_key"`
	FlushInterval   time.Duration `yaml:"flush_interval"`
	BatchSize       int           `yaml:"batch_size"`
}

// DashboardConfig controls the HTTP status server.
type DashboardConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Address    string `yaml:"address"`
	LogHistory int    `yaml:"log_history"`
}

type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	Output      string `yaml:"output"`
	MaxAge      int    `yaml:"max_age"`
	LogMessages bool   `yaml:"log_messages"`
}

// Defaults returns the configuration applied before the file is decoded.
func Defaults() Config {
	return Config{
		Venue: VenueConfig{
			FixVersion:           "FIXT.1.1",
			DefaultApplVerID:     "9",
			TargetCompID:         "Coinbase",
			HeartBtInt:           30,
			SSL:                  true,
			SendingTimePrecision: "millis",
		},
		Credentials: CredentialsConfig{SecretEncoding: "base64"},
		Auth:        AuthConfig{StrictSigning: true},
		Subscribe: SubscribeConfig{
			Type:       "1",
			Depth:      "0",
			UpdateType: "0",
			EntryTypes: "0,1",
		},
		Session: SessionConfig{
			Store:             "memory",
			StorePath:         ".sessions",
			LogonTimeout:      30 * time.Second,
			ReconnectInterval: 10 * time.Second,
			ShutdownTimeout:   30 * time.Second,
		},
		Channels: ChannelsConfig{QuoteBuffer: 1024},
		Metrics: MetricsConfig{
			Prometheus:     PrometheusConfig{Listen: "0.0.0.0:2112"},
			ReportInterval: 30 * time.Second,
		},
		Storage:   StorageConfig{S3: S3Config{FlushInterval: time.Minute, BatchSize: 1000}},
		Dashboard: DashboardConfig{Address: "0.0.0.0:8080", LogHistory: 200},
		Logging:   LoggingConfig{Level: "info", Format: "json", Output: "stdout"},
	}
}

func LoadConfig(path string) (*Config, error) {
	path = resolveEnvSpecificPath(path, DefaultPath, environmentPaths)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := Defaults()
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyEnvOverrides(&config)

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &config, nil
}

// envOverrides maps environment variables onto configuration fields.
func envOverrides(cfg *Config) map[string]*string {
	return map[string]*string{
		"API_KEY":             &cfg.Credentials.Username,
		"PASSPHRASE":          &cfg.Credentials.Passphrase,
		"SECRET_KEY":          &cfg.Credentials.SecretKey,
		"SVC_ACCOUNTID":       &cfg.Venue.SenderCompID,
		"TARGET_COMP_ID":      &cfg.Venue.TargetCompID,
		"FIX_HOST":            &cfg.Venue.Host,
		"FIX_PORT":            &cfg.Venue.Port,
		"FIX_VERSION":         &cfg.Venue.FixVersion,
		"DEFAULT_APPL_VER_ID": &cfg.Venue.DefaultApplVerID,
		"SUBSCRIBE_PRODUCTS":  &cfg.Subscribe.Products,
		"SESSION_PATH":        &cfg.Session.StorePath,
	}
}

func applyEnvOverrides(cfg *Config) {
	for env, dst := range envOverrides(cfg) {
		if v := os.Getenv(env); v != "" {
			*dst = strings.TrimSpace(v)
		}
	}

	if cfg.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			cfg.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			cfg.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			cfg.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			cfg.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}
	cfg.Storage.S3.Bucket = strings.TrimSpace(cfg.Storage.S3.Bucket)
}

// placeholderMarker flags template values that were never filled in.
const placeholderMarker = "YOUR_"

func requiredValues(cfg *Config) []struct{ key, value string } {
	return []struct{ key, value string }{
		{"venue.sender_comp_id", cfg.Venue.SenderCompID},
		{"credentials.username", cfg.Credentials.Username},
		{"credentials.passphrase", cfg.Credentials.Passphrase},
		{"credentials.secret_key", cfg.Credentials.SecretKey},
		{"venue.target_comp_id", cfg.Venue.TargetCompID},
		{"venue.host", cfg.Venue.Host},
		{"venue.port", cfg.Venue.Port},
		{"venue.fix_version", cfg.Venue.FixVersion},
		{"venue.default_appl_ver_id", cfg.Venue.DefaultApplVerID},
		{"subscribe.products", cfg.Subscribe.Products},
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Fixfeed.Name == "" {
		return errs.Configuration("fixfeed.name", "is required")
	}

	for _, rv := range requiredValues(cfg) {
		v := strings.TrimSpace(rv.value)
		if v == "" {
			return errs.Configuration(rv.key, "is required")
		}
		if strings.Contains(v, placeholderMarker) {
			return errs.Configuration(rv.key, "still holds a placeholder value")
		}
	}

	if port, err := strconv.Atoi(cfg.Venue.Port); err != nil || port <= 0 || port > 65535 {
		return errs.Configuration("venue.port", fmt.Sprintf("'%s' is not a valid port", cfg.Venue.Port))
	}

	switch cfg.Venue.FixVersion {
	case "FIX.4.2", "FIX.4.4", "FIXT.1.1":
	default:
		return errs.Configuration("venue.fix_version", fmt.Sprintf("unsupported version '%s'", cfg.Venue.FixVersion))
	}

	if cfg.Venue.HeartBtInt <= 0 {
		return errs.Configuration("venue.heartbeat_interval", "must be greater than 0")
	}

	if _, ok := timePrecisions[strings.ToLower(cfg.Venue.SendingTimePrecision)]; !ok {
		return errs.Configuration("venue.sending_time_precision", fmt.Sprintf("unsupported precision '%s'", cfg.Venue.SendingTimePrecision))
	}

	switch strings.ToLower(cfg.Credentials.SecretEncoding) {
	case "base64", "raw":
	default:
		return errs.Configuration("credentials.secret_encoding", fmt.Sprintf("unsupported encoding '%s'", cfg.Credentials.SecretEncoding))
	}

	switch cfg.Session.Store {
	case "memory":
	case "file":
		if cfg.Session.StorePath == "" {
			return errs.Configuration("session.store_path", "is required when session.store is file")
		}
	default:
		return errs.Configuration("session.store", fmt.Sprintf("unsupported store '%s'", cfg.Session.Store))
	}

	if cfg.Channels.QuoteBuffer <= 0 {
		return errs.Configuration("channels.quote_buffer", "must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return errs.Configuration("storage.s3.bucket", "is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return errs.Configuration("storage.s3.region", "is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return errs.Configuration("storage.s3.bucket", fmt.Sprintf("'%s' is invalid", cfg.Storage.S3.Bucket))
		}
		if cfg.Storage.S3.FlushInterval <= 0 {
			return errs.Configuration("storage.s3.flush_interval", "must be greater than 0")
		}
		if cfg.Storage.S3.BatchSize <= 0 {
			return errs.Configuration("storage.s3.batch_size", "must be greater than 0")
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}
