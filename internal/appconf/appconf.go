package appconf

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Environment int

const (
	Development Environment = iota
	Test
	Production
)

func (e Environment) String() string {
	switch e {
	case Test:
		return "test"
	case Production:
		return "production"
	default:
		return "development"
	}
}

// EnvFlagToEnvironment maps the --env flag value to an Environment.
// Unknown values are treated as development.
func EnvFlagToEnvironment(env string) Environment {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "test":
		return Test
	case "production", "prod":
		return Production
	default:
		return Development
	}
}

// Config holds all the configuration settings for the Application.
type Config struct {
	Port      int
	Env       Environment
	ApiKeys   []string
	RateLimit int

	// TrustedProxies is the number of reverse proxies in front of the server.
	// Zero ignores X-Forwarded-For and keys clients by their socket address.
	TrustedProxies int

	// Workers and Threads size the in-flight request limit, mirroring the
	// process-count × thread-count layout of a pre-fork server.
	Workers int
	Threads int

	DatasetPath     string
	DatasetURL      string
	RefreshInterval time.Duration
	MaxPageSize     int

	StoreDriver string
	StoreDSN    string

	BlobBackend    string
	Bucket         string
	BlobDir        string
	GCPCredentials string

	LogLevel        string
	LogFormat       string
	Tracing         string
	ShutdownTimeout time.Duration
}

// Addr is the listen address. The server binds every interface.
func (c Config) Addr() string {
	return net.JoinHostPort("0.0.0.0", strconv.Itoa(c.Port))
}

// MaxInFlight is the number of requests served concurrently.
func (c Config) MaxInFlight() int {
	return c.Workers * c.Threads
}

// Validate reports the first configuration problem found.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Workers < 1 || c.Threads < 1 {
		errs = append(errs, fmt.Errorf("workers and threads must be positive (got %d and %d)", c.Workers, c.Threads))
	}
	if c.TrustedProxies < 0 {
		errs = append(errs, fmt.Errorf("trusted proxies must not be negative (got %d)", c.TrustedProxies))
	}
	if c.MaxPageSize < 1 {
		errs = append(errs, fmt.Errorf("max page size must be positive (got %d)", c.MaxPageSize))
	}
	switch c.StoreDriver {
	case "sqlite", "mysql":
	default:
		errs = append(errs, fmt.Errorf("unsupported store driver %q", c.StoreDriver))
	}
	switch c.BlobBackend {
	case "gcs", "local":
	default:
		errs = append(errs, fmt.Errorf("unsupported blob backend %q", c.BlobBackend))
	}
	switch c.Tracing {
	case "none", "stdout", "otlp":
	default:
		errs = append(errs, fmt.Errorf("unsupported tracing exporter %q", c.Tracing))
	}
	return errors.Join(errs...)
}

// Configuration keys. Environment variables are the upper-cased key unless
// bound explicitly in envAliases.
const (
	KeyPort            = "port"
	KeyEnv             = "env"
	KeyAPIKeys         = "api_keys"
	KeyRateLimit       = "rate_limit"
	KeyTrustedProxies  = "trusted_proxies"
	KeyWorkers         = "workers"
	KeyThreads         = "threads"
	KeyDatasetPath     = "dataset_path"
	KeyDatasetURL      = "dataset_url"
	KeyRefreshInterval = "refresh_interval"
	KeyMaxPageSize     = "max_page_size"
	KeyStoreDriver     = "store_driver"
	KeyStoreDSN        = "store_dsn"
	KeyBlobBackend     = "blob_backend"
	KeyBucket          = "bucket"
	KeyBlobDir         = "blob_dir"
	KeyGCPCredentials  = "gcp_credentials"
	KeyLogLevel        = "log_level"
	KeyLogFormat       = "log_format"
	KeyTracing         = "tracing"
	KeyShutdownTimeout = "shutdown_timeout"
)

var envAliases = map[string]string{
	KeyEnv:            "APP_ENV",
	KeyBucket:         "CLOUD_STORAGE_BUCKET",
	KeyGCPCredentials: "GOOGLE_APPLICATION_CREDENTIALS",
}

// RegisterFlags adds the server flags to fs. Flag names are the keys with
// dashes instead of underscores.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.Int(flagName(KeyPort), 8080, "API server port")
	fs.String(flagName(KeyEnv), "development", "Environment (development|test|production)")
	fs.String(flagName(KeyAPIKeys), "", "Comma separated API keys; empty disables key checks")
	fs.Int(flagName(KeyRateLimit), 100, "Requests per second allowed per API key or client")
	fs.Int(flagName(KeyTrustedProxies), 0, "Reverse proxies in front of the server whose X-Forwarded-For entries are trusted")
	fs.Int(flagName(KeyWorkers), 2, "Worker count used to size the in-flight request limit")
	fs.Int(flagName(KeyThreads), 4, "Threads per worker used to size the in-flight request limit")
	fs.String(flagName(KeyDatasetPath), "US_Accidents_March23.csv", "Path to the accidents CSV file")
	fs.String(flagName(KeyDatasetURL), "", "URL of the accidents CSV; takes precedence over --dataset-path")
	fs.Duration(flagName(KeyRefreshInterval), 0, "Reload interval for --dataset-url (0 disables)")
	fs.Int(flagName(KeyMaxPageSize), 1000, "Largest page size accepted by /accidents/data")
	fs.String(flagName(KeyStoreDriver), "sqlite", "SQL store driver (sqlite|mysql)")
	fs.String(flagName(KeyStoreDSN), "", "SQL store DSN; when set the dataset is loaded from the store")
	fs.String(flagName(KeyBlobBackend), "gcs", "Object storage backend (gcs|local)")
	fs.String(flagName(KeyBucket), "car-accindent-data", "Object storage bucket name")
	fs.String(flagName(KeyBlobDir), "./blobs", "Root directory of the local blob backend")
	fs.String(flagName(KeyGCPCredentials), "", "Service account JSON file for Cloud Storage")
	fs.String(flagName(KeyLogLevel), "info", "Log level (debug|info|warn|error)")
	fs.String(flagName(KeyLogFormat), "json", "Log format (json|text)")
	fs.String(flagName(KeyTracing), "none", "Trace exporter (none|stdout|otlp)")
	fs.Duration(flagName(KeyShutdownTimeout), 15*time.Second, "Graceful shutdown timeout")
}

// Load resolves the configuration from flags, environment and defaults, in
// that order of precedence. fs must have been populated by RegisterFlags.
func Load(v *viper.Viper, fs *pflag.FlagSet) (Config, error) {
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	for key, env := range envAliases {
		if err := v.BindEnv(key, strings.ToUpper(key), env); err != nil {
			return Config{}, fmt.Errorf("binding env for %s: %w", key, err)
		}
	}

	var bindErr error
	fs.VisitAll(func(f *pflag.Flag) {
		key := strings.ReplaceAll(f.Name, "-", "_")
		if err := v.BindPFlag(key, f); err != nil && bindErr == nil {
			bindErr = fmt.Errorf("binding flag %s: %w", f.Name, err)
		}
	})
	if bindErr != nil {
		return Config{}, bindErr
	}

	apiKeys, err := parseAPIKeys(v.Get(KeyAPIKeys))
	if err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}

	cfg := Config{
		Port:            v.GetInt(KeyPort),
		Env:             EnvFlagToEnvironment(v.GetString(KeyEnv)),
		ApiKeys:         apiKeys,
		RateLimit:       v.GetInt(KeyRateLimit),
		TrustedProxies:  v.GetInt(KeyTrustedProxies),
		Workers:         v.GetInt(KeyWorkers),
		Threads:         v.GetInt(KeyThreads),
		DatasetPath:     v.GetString(KeyDatasetPath),
		DatasetURL:      v.GetString(KeyDatasetURL),
		RefreshInterval: v.GetDuration(KeyRefreshInterval),
		MaxPageSize:     v.GetInt(KeyMaxPageSize),
		StoreDriver:     v.GetString(KeyStoreDriver),
		StoreDSN:        v.GetString(KeyStoreDSN),
		BlobBackend:     v.GetString(KeyBlobBackend),
		Bucket:          v.GetString(KeyBucket),
		BlobDir:         v.GetString(KeyBlobDir),
		GCPCredentials:  v.GetString(KeyGCPCredentials),
		LogLevel:        v.GetString(KeyLogLevel),
		LogFormat:       v.GetString(KeyLogFormat),
		Tracing:         v.GetString(KeyTracing),
		ShutdownTimeout: v.GetDuration(KeyShutdownTimeout),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func flagName(key string) string {
	return strings.ReplaceAll(key, "_", "-")
}

// parseAPIKeys accepts a comma separated string (flags, environment) or a
// list (config files). Any other shape is an error so that a malformed value
// can never silently disable key checks.
func parseAPIKeys(raw any) ([]string, error) {
	switch value := raw.(type) {
	case nil:
		return nil, nil
	case string:
		return splitKeys(value), nil
	case []string:
		return splitKeys(strings.Join(value, ",")), nil
	case []any:
		parts := make([]string, 0, len(value))
		for i, item := range value {
			key, ok := item.(string)
			if !ok {
				return nil, fmt.Errorf("%s[%d] must be a string, got %T", KeyAPIKeys, i, item)
			}
			parts = append(parts, key)
		}
		return splitKeys(strings.Join(parts, ",")), nil
	default:
		return nil, fmt.Errorf("%s must be a string or a list of strings, got %T", KeyAPIKeys, raw)
	}
}

func splitKeys(raw string) []string {
	var keys []string
	for _, k := range strings.Split(raw, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
