// Package config resolves server settings from flags, GEZIN_* environment
// variables, an optional .env file, an optional gezin.yaml and defaults, in
// that order of precedence.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/dukerupert/gezin/internal/store"
)

const (
	envPrefix      = "GEZIN"
	configFileName = "gezin"
	configFileType = "yaml"
)

// Config keys.
const (
	KeyHost           = "host"
	KeyPort           = "port"
	KeyDataDir        = "data_dir"
	KeyBackend        = "backend"
	KeySQLitePath     = "sqlite_path"
	KeyDatabaseURL    = "database_url"
	KeyStoreLocking   = "store_locking"
	KeyUniqueIDs      = "unique_ids"
	KeyCORSOrigins    = "cors_origins"
	KeyLogLevel       = "log_level"
	KeyLogFormat      = "log_format"
	KeyRateLimitRPS   = "rate_limit_rps"
	KeyRateLimitBurst = "rate_limit_burst"
	KeyMetricsEnabled = "metrics_enabled"

	KeyBackupBucket        = "backup.bucket"
	KeyBackupRegion        = "backup.region"
	KeyBackupEndpoint      = "backup.endpoint"
	KeyBackupAccessKey     = "backup.access_key"
	KeyBackupSecretKey     = "backup.secret_key"
	KeyBackupPrefix        = "backup.prefix"
	KeyBackupPassphrase    = "backup.passphrase"
	KeyBackupInterval      = "backup.interval"
	KeyBackupRetentionDays = "backup.retention_days"
)

// Storage backends.
const (
	BackendFile     = "file"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Host string
	Port int

	Backend      string
	DataDir      string
	SQLitePath   string
	DatabaseURL  string
	StoreLocking store.Locking
	UniqueIDs    bool

	CORSOrigins    []string
	RateLimitRPS   float64
	RateLimitBurst int
	MetricsEnabled bool

	LogLevel  string
	LogFormat string

	Backup Backup
}

type Backup struct {
	Bucket        string
	Region        string
	Endpoint      string
	AccessKey     string
	SecretKey     string
	Prefix        string
	Passphrase    string
	Interval      time.Duration
	RetentionDays int
}

// Addr returns the listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// New returns a viper instance with defaults and environment binding set up.
// Callers bind their flags into it before calling Load.
func New() *viper.Viper {
	v := viper.New()

	v.SetDefault(KeyHost, "0.0.0.0")
	v.SetDefault(KeyPort, 8000)
	v.SetDefault(KeyDataDir, "./data")
	v.SetDefault(KeyBackend, BackendFile)
	v.SetDefault(KeySQLitePath, "gezin.db")
	v.SetDefault(KeyDatabaseURL, "")
	v.SetDefault(KeyStoreLocking, string(store.LockMutex))
	v.SetDefault(KeyUniqueIDs, false)
	v.SetDefault(KeyCORSOrigins, []string{"http://localhost:3000"})
	v.SetDefault(KeyLogLevel, "info")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyRateLimitRPS, 0.0)
	v.SetDefault(KeyRateLimitBurst, 10)
	v.SetDefault(KeyMetricsEnabled, true)

	v.SetDefault(KeyBackupBucket, "")
	v.SetDefault(KeyBackupRegion, "us-east-1")
	v.SetDefault(KeyBackupEndpoint, "")
	v.SetDefault(KeyBackupAccessKey, "")
	v.SetDefault(KeyBackupSecretKey, "")
	v.SetDefault(KeyBackupPrefix, "gezin/")
	v.SetDefault(KeyBackupPassphrase, "")
	v.SetDefault(KeyBackupInterval, "24h")
	v.SetDefault(KeyBackupRetentionDays, 30)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

// LoadDotEnv copies variables from an env file into the process environment
// without overriding ones already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load reads configFile, or gezin.yaml from the working directory when
// configFile is empty, and resolves the final Config. A missing gezin.yaml is
// not an error; a missing explicit configFile is.
func Load(v *viper.Viper, configFile string) (Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	locking, err := store.ParseLocking(v.GetString(KeyStoreLocking))
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Host:           v.GetString(KeyHost),
		Port:           v.GetInt(KeyPort),
		Backend:        strings.ToLower(v.GetString(KeyBackend)),
		DataDir:        v.GetString(KeyDataDir),
		SQLitePath:     v.GetString(KeySQLitePath),
		DatabaseURL:    v.GetString(KeyDatabaseURL),
		StoreLocking:   locking,
		UniqueIDs:      v.GetBool(KeyUniqueIDs),
		CORSOrigins:    splitList(v.Get(KeyCORSOrigins)),
		RateLimitRPS:   v.GetFloat64(KeyRateLimitRPS),
		RateLimitBurst: v.GetInt(KeyRateLimitBurst),
		MetricsEnabled: v.GetBool(KeyMetricsEnabled),
		LogLevel:       v.GetString(KeyLogLevel),
		LogFormat:      v.GetString(KeyLogFormat),
		Backup: Backup{
			Bucket:        v.GetString(KeyBackupBucket),
			Region:        v.GetString(KeyBackupRegion),
			Endpoint:      v.GetString(KeyBackupEndpoint),
			AccessKey:     v.GetString(KeyBackupAccessKey),
			SecretKey:     v.GetString(KeyBackupSecretKey),
			Prefix:        v.GetString(KeyBackupPrefix),
			Passphrase:    v.GetString(KeyBackupPassphrase),
			Interval:      v.GetDuration(KeyBackupInterval),
			RetentionDays: v.GetInt(KeyBackupRetentionDays),
		},
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	switch c.Backend {
	case BackendFile, BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("database_url is required for the postgres backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q (want file, sqlite or postgres)", c.Backend))
	}
	if c.Port < 1 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.RateLimitRPS < 0 {
		errs = append(errs, errors.New("rate_limit_rps must not be negative"))
	}
	if c.Backup.Bucket != "" && c.Backup.Passphrase == "" {
		errs = append(errs, errors.New("backup.passphrase is required when backup.bucket is set"))
	}
	return errors.Join(errs...)
}

// splitList accepts a YAML list or a comma separated string, the form
// environment variables take.
func splitList(raw any) []string {
	var parts []string
	switch val := raw.(type) {
	case string:
		parts = strings.Split(val, ",")
	case []string:
		parts = val
	case []any:
		for _, p := range val {
			parts = append(parts, fmt.Sprint(p))
		}
	}

	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
