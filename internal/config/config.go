// Package config provides configuration loading and management for the sync service.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/leadengine/instance-sync/internal/telemetry"
)

// EnvPrefix is the prefix of every environment variable read by the service
const EnvPrefix = "INSTANCE_SYNC"

const (
	// StorageTypePostgres persists to PostgreSQL
	StorageTypePostgres = "postgres"
	// StorageTypeSQLite persists to an embedded SQLite file
	StorageTypeSQLite = "sqlite"
	// StorageTypeMemory keeps everything in process memory
	StorageTypeMemory = "memory"
	// StorageTypeDisabled turns persistence off
	StorageTypeDisabled = "disabled"

	// CacheBackendMemory keeps snapshot cache entries in process memory
	CacheBackendMemory = "memory"
	// CacheBackendStore keeps snapshot cache entries in the integration-state table
	CacheBackendStore = "store"
)

const (
	defaultBrokerTimeout      = 20 * time.Second
	defaultCacheTTL           = 30 * time.Second
	defaultSyncTTL            = 30 * time.Second
	defaultCacheWriteTimeout  = 5 * time.Second
	defaultMaxRefreshAttempts = 3
	defaultBackgroundInterval = 2 * time.Minute
	defaultServerAddress      = ":8080"
	defaultSQLitePath         = "data/instance-sync.db"
)

// Option defines the interface for configuration options
type Option func(*loaderConfig) error

// loaderConfig defines the configuration for loading a configuration
type loaderConfig struct {
	path  string
	viper *viper.Viper
}

// WithConfigPath loads configuration from a YAML file
func WithConfigPath(path string) Option {
	return func(cfg *loaderConfig) error {
		if path == "" {
			return fmt.Errorf("path is required")
		}

		// Resolve symlinks; this also cleans the path
		realPath, err := filepath.EvalSymlinks(path)
		if err != nil {
			return fmt.Errorf("failed to evaluate symlinks: %w", err)
		}

		if !filepath.IsAbs(realPath) && !filepath.IsLocal(realPath) {
			return fmt.Errorf("path is not local or contains invalid traversal: %s", path)
		}

		cfg.path = realPath
		return nil
	}
}

// WithViper supplies the viper instance used for environment overrides
func WithViper(v *viper.Viper) Option {
	return func(cfg *loaderConfig) error {
		if v == nil {
			return fmt.Errorf("viper instance is required")
		}
		cfg.viper = v
		return nil
	}
}

// Config represents the root configuration structure
type Config struct {
	Server    ServerConfig      `yaml:"server"`
	Broker    BrokerConfig      `yaml:"broker"`
	Storage   StorageConfig     `yaml:"storage"`
	Database  *DatabaseConfig   `yaml:"database,omitempty"`
	Cache     CacheConfig       `yaml:"cache"`
	Sync      SyncConfig        `yaml:"sync"`
	Telemetry *telemetry.Config `yaml:"telemetry,omitempty"`
}

// ServerConfig configures the operations HTTP server
type ServerConfig struct {
	// Address is the listen address, e.g. ":8080"
	Address string `yaml:"address,omitempty"`
}

// BrokerConfig configures the WhatsApp broker client.
// An empty BaseURL or APIKey disables the integration.
type BrokerConfig struct {
	BaseURL string `yaml:"baseURL,omitempty"`
	APIKey  string `yaml:"apiKey,omitempty"`
	// Timeout is the per-request timeout, e.g. "20s"
	Timeout string `yaml:"timeout,omitempty"`
}

// StorageConfig selects the persistence backend
type StorageConfig struct {
	// Type is one of postgres, sqlite, memory or disabled
	Type string `yaml:"type,omitempty"`
	// SQLitePath is the database file used when Type is sqlite
	SQLitePath string `yaml:"sqlitePath,omitempty"`
}

// CacheConfig configures the snapshot cache
type CacheConfig struct {
	// Backend is memory or store
	Backend string `yaml:"backend,omitempty"`
	// TTL is the snapshot lifetime, e.g. "30s"
	TTL string `yaml:"ttl,omitempty"`
}

// SyncConfig configures the collection orchestrator
type SyncConfig struct {
	// TTL is the minimum age of the last sync before an implicit refresh runs
	TTL string `yaml:"ttl,omitempty"`
	// CacheWriteTimeout bounds post-sync cache writes
	CacheWriteTimeout string `yaml:"cacheWriteTimeout,omitempty"`
	// MaxAttempts bounds refresh attempts on unique-constraint races
	MaxAttempts int `yaml:"maxAttempts,omitempty"`
	// Background enables the periodic refresher
	Background bool `yaml:"background,omitempty"`
	// BackgroundInterval is the base period of the refresher
	BackgroundInterval string `yaml:"backgroundInterval,omitempty"`
}

// DatabaseConfig defines database connection settings
type DatabaseConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	User string `yaml:"user"`

	// PasswordFile is the path to a file containing the database password
	PasswordFile string `yaml:"passwordFile,omitempty"`

	Database string `yaml:"database"`

	// SSLMode is the SSL mode for the connection (disable, require, verify-ca, verify-full)
	SSLMode string `yaml:"sslMode,omitempty"`

	// MaxOpenConns is the maximum number of open connections to the database
	MaxOpenConns int32 `yaml:"maxOpenConns,omitempty"`

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int32 `yaml:"maxIdleConns,omitempty"`

	// ConnMaxLifetime is the maximum lifetime of a connection (e.g., "1h", "30m")
	ConnMaxLifetime string `yaml:"connMaxLifetime,omitempty"`

	// MigrationUser runs schema migrations; defaults to User
	MigrationUser string `yaml:"migrationUser,omitempty"`

	// DynamicAuth replaces static passwords with short-lived tokens
	DynamicAuth *DynamicAuthConfig `yaml:"dynamicAuth,omitempty"`
}

// DynamicAuthConfig selects a token-based database authentication method
type DynamicAuthConfig struct {
	AWSRDSIAM *AWSRDSIAMConfig `yaml:"awsRdsIam,omitempty"`
}

// AWSRDSIAMConfig configures AWS RDS IAM authentication
type AWSRDSIAMConfig struct {
	// Region is the AWS region of the database, or "detect" to ask IMDS
	Region string `yaml:"region,omitempty"`
}

// GetMigrationUser returns the user that runs migrations
func (d *DatabaseConfig) GetMigrationUser() string {
	if d.MigrationUser != "" {
		return d.MigrationUser
	}
	return d.User
}

// BuildConnectionStringWithAuth builds a connection string for user with an
// already resolved password or token. An empty password is left out so libpq
// falls back to pgpass.
func (d *DatabaseConfig) BuildConnectionStringWithAuth(user, password string) string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "require"
	}

	userInfo := url.QueryEscape(user)
	if password != "" {
		userInfo += ":" + url.QueryEscape(password)
	}
	return fmt.Sprintf("postgres://%s@%s:%d/%s?sslmode=%s", userInfo, d.Host, d.Port, d.Database, sslMode)
}

// GetPassword returns the database password from PasswordFile or
// INSTANCE_SYNC_DATABASE_PASSWORD, in that order.
func (d *DatabaseConfig) GetPassword() (string, error) {
	if d.PasswordFile != "" {
		data, err := os.ReadFile(filepath.Clean(d.PasswordFile))
		if err != nil {
			return "", fmt.Errorf("failed to read password from file %s: %w", d.PasswordFile, err)
		}
		return strings.TrimSpace(string(data)), nil
	}

	if envPassword := os.Getenv(EnvPrefix + "_DATABASE_PASSWORD"); envPassword != "" {
		return envPassword, nil
	}

	return "", fmt.Errorf(
		"no database password configured: set passwordFile or %s_DATABASE_PASSWORD environment variable", EnvPrefix,
	)
}

// GetConnectionString builds a PostgreSQL connection string with the password URL-escaped.
// With dynamic auth the password is omitted; the pool injects tokens per connection.
func (d *DatabaseConfig) GetConnectionString() (string, error) {
	if d.DynamicAuth != nil {
		return d.BuildConnectionStringWithAuth(d.User, ""), nil
	}
	password, err := d.GetPassword()
	if err != nil {
		return "", err
	}
	return d.BuildConnectionStringWithAuth(d.User, password), nil
}

// LoadConfig loads the YAML file (when given) and applies environment overrides
func LoadConfig(opts ...Option) (*Config, error) {
	loaderCfg := &loaderConfig{}
	for _, opt := range opts {
		if err := opt(loaderCfg); err != nil {
			return nil, err
		}
	}

	var config Config
	if loaderCfg.path != "" {
		data, err := os.ReadFile(loaderCfg.path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	v := loaderCfg.viper
	if v == nil {
		v = NewViper()
	}
	config.applyEnvOverrides(v)

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// NewViper returns a viper instance bound to the service's environment variables
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	bindings := map[string]string{
		"server.address":     "SERVER_ADDRESS",
		"broker.baseurl":     "BROKER_BASE_URL",
		"broker.apikey":      "BROKER_API_KEY",
		"broker.timeout":     "BROKER_TIMEOUT",
		"storage.type":       "STORAGE_TYPE",
		"storage.sqlitepath": "STORAGE_SQLITE_PATH",
		"database.host":      "DATABASE_HOST",
		"database.port":      "DATABASE_PORT",
		"database.user":      "DATABASE_USER",
		"database.database":  "DATABASE_NAME",
		"database.sslmode":   "DATABASE_SSL_MODE",
		"cache.backend":      "CACHE_BACKEND",
		"cache.ttl":          "CACHE_TTL",
		"sync.ttl":           "SYNC_TTL",
		"sync.background":    "SYNC_BACKGROUND",
	}
	for key, env := range bindings {
		// BindEnv only fails when no key is given
		_ = v.BindEnv(key, EnvPrefix+"_"+env)
	}
	return v
}

func (c *Config) applyEnvOverrides(v *viper.Viper) {
	setString := func(key string, dst *string) {
		if v.IsSet(key) {
			*dst = v.GetString(key)
		}
	}

	setString("server.address", &c.Server.Address)
	setString("broker.baseurl", &c.Broker.BaseURL)
	setString("broker.apikey", &c.Broker.APIKey)
	setString("broker.timeout", &c.Broker.Timeout)
	setString("storage.type", &c.Storage.Type)
	setString("storage.sqlitepath", &c.Storage.SQLitePath)
	setString("cache.backend", &c.Cache.Backend)
	setString("cache.ttl", &c.Cache.TTL)
	setString("sync.ttl", &c.Sync.TTL)
	if v.IsSet("sync.background") {
		c.Sync.Background = v.GetBool("sync.background")
	}

	if v.IsSet("database.host") && c.Database == nil {
		c.Database = &DatabaseConfig{Port: 5432}
	}
	if c.Database != nil {
		setString("database.host", &c.Database.Host)
		setString("database.user", &c.Database.User)
		setString("database.database", &c.Database.Database)
		setString("database.sslmode", &c.Database.SSLMode)
		if v.IsSet("database.port") {
			c.Database.Port = v.GetInt("database.port")
		}
	}
}

// validate performs validation on the configuration
func (c *Config) validate() error {
	if c == nil {
		return fmt.Errorf("config cannot be nil")
	}

	var errs []error

	switch c.GetStorageType() {
	case StorageTypePostgres:
		if c.Database == nil {
			errs = append(errs, fmt.Errorf("storage.type: postgres requires a database section"))
		} else if c.Database.Host == "" || c.Database.Database == "" {
			errs = append(errs, fmt.Errorf("database: host and database are required"))
		} else if auth := c.Database.DynamicAuth; auth != nil && (auth.AWSRDSIAM == nil || auth.AWSRDSIAM.Region == "") {
			errs = append(errs, fmt.Errorf("database.dynamicAuth: awsRdsIam.region is required"))
		}
	case StorageTypeSQLite, StorageTypeMemory, StorageTypeDisabled:
	default:
		errs = append(errs, fmt.Errorf("storage.type: unsupported value %q", c.Storage.Type))
	}

	switch c.GetCacheBackend() {
	case CacheBackendMemory, CacheBackendStore:
	default:
		errs = append(errs, fmt.Errorf("cache.backend: unsupported value %q", c.Cache.Backend))
	}

	durations := map[string]string{
		"broker.timeout":          c.Broker.Timeout,
		"cache.ttl":               c.Cache.TTL,
		"sync.ttl":                c.Sync.TTL,
		"sync.cacheWriteTimeout":  c.Sync.CacheWriteTimeout,
		"sync.backgroundInterval": c.Sync.BackgroundInterval,
	}
	for field, value := range durations {
		if value == "" {
			continue
		}
		d, err := time.ParseDuration(value)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid duration %q: %w", field, value, err))
		} else if d <= 0 {
			errs = append(errs, fmt.Errorf("%s: must be positive", field))
		}
	}

	if c.Sync.MaxAttempts < 0 {
		errs = append(errs, fmt.Errorf("sync.maxAttempts: must not be negative"))
	}

	if c.Broker.BaseURL != "" {
		if u, err := url.Parse(c.Broker.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("broker.baseURL: invalid URL %q", c.Broker.BaseURL))
		}
	}

	if err := c.Telemetry.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("telemetry: %w", err))
	}

	return errors.Join(errs...)
}

// GetServerAddress returns the listen address, defaulting to ":8080"
func (c *Config) GetServerAddress() string {
	if c.Server.Address == "" {
		return defaultServerAddress
	}
	return c.Server.Address
}

// GetStorageType returns the storage backend, defaulting to postgres when a
// database is configured and to memory otherwise
func (c *Config) GetStorageType() string {
	if c.Storage.Type != "" {
		return strings.ToLower(c.Storage.Type)
	}
	if c.Database != nil {
		return StorageTypePostgres
	}
	return StorageTypeMemory
}

// GetSQLitePath returns the SQLite database file
func (c *Config) GetSQLitePath() string {
	if c.Storage.SQLitePath == "" {
		return defaultSQLitePath
	}
	return c.Storage.SQLitePath
}

// GetCacheBackend returns the cache backend, defaulting to memory
func (c *Config) GetCacheBackend() string {
	if c.Cache.Backend == "" {
		return CacheBackendMemory
	}
	return strings.ToLower(c.Cache.Backend)
}

// GetBrokerTimeout returns the broker request timeout
func (c *Config) GetBrokerTimeout() time.Duration {
	return parseDurationOr(c.Broker.Timeout, defaultBrokerTimeout)
}

// GetCacheTTL returns the snapshot cache TTL
func (c *Config) GetCacheTTL() time.Duration {
	return parseDurationOr(c.Cache.TTL, defaultCacheTTL)
}

// GetSyncTTL returns the implicit refresh TTL
func (c *Config) GetSyncTTL() time.Duration {
	return parseDurationOr(c.Sync.TTL, defaultSyncTTL)
}

// GetCacheWriteTimeout returns the bound on post-sync cache writes
func (c *Config) GetCacheWriteTimeout() time.Duration {
	return parseDurationOr(c.Sync.CacheWriteTimeout, defaultCacheWriteTimeout)
}

// GetMaxAttempts returns the refresh attempt budget
func (c *Config) GetMaxAttempts() int {
	if c.Sync.MaxAttempts == 0 {
		return defaultMaxRefreshAttempts
	}
	return c.Sync.MaxAttempts
}

// GetBackgroundInterval returns the base period of the background refresher
func (c *Config) GetBackgroundInterval() time.Duration {
	return parseDurationOr(c.Sync.BackgroundInterval, defaultBackgroundInterval)
}

func parseDurationOr(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}
