package types

import "time"

// Mode constants for gateway operation
const (
	ModeLocal  = "local"  // No Redis/Postgres, in-process collection
	ModeRemote = "remote" // Shared collection backend
)

// Collection backends
const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// AppConfig is the root configuration for the toolshelf gateway
type AppConfig struct {
	Mode       string `key:"mode" json:"mode"` // "local" or "remote"
	DebugMode  bool   `key:"debugMode" json:"debug_mode"`
	PrettyLogs bool   `key:"prettyLogs" json:"pretty_logs"`

	Database DatabaseConfig `key:"database" json:"database"`
	Gateway  GatewayConfig  `key:"gateway" json:"gateway"`
	Catalog  CatalogConfig  `key:"catalog" json:"catalog"`
	Backup   BackupConfig   `key:"backup" json:"backup"`
}

// IsLocalMode returns true if running in local mode (no Redis/Postgres)
func (c *AppConfig) IsLocalMode() bool {
	return c.Mode == ModeLocal
}

// ----------------------------------------------------------------------------
// Database Configuration
// ----------------------------------------------------------------------------

type DatabaseConfig struct {
	Redis    RedisConfig    `key:"redis" json:"redis"`
	Postgres PostgresConfig `key:"postgres" json:"postgres"`
}

type RedisMode string

const (
	RedisModeSingle  RedisMode = "single"
	RedisModeCluster RedisMode = "cluster"
)

type RedisConfig struct {
	Mode               RedisMode     `key:"mode" json:"mode"`
	Addrs              []string      `key:"addrs" json:"addrs"`
	Username           string        `key:"username" json:"username"`
	Password           string        `key:"password" json:"password"`
	ClientName         string        `key:"clientName" json:"client_name"`
	EnableTLS          bool          `key:"enableTLS" json:"enable_tls"`
	InsecureSkipVerify bool          `key:"insecureSkipVerify" json:"insecure_skip_verify"`
	PoolSize           int           `key:"poolSize" json:"pool_size"`
	MinIdleConns       int           `key:"minIdleConns" json:"min_idle_conns"`
	MaxIdleConns       int           `key:"maxIdleConns" json:"max_idle_conns"`
	ConnMaxIdleTime    time.Duration `key:"connMaxIdleTime" json:"conn_max_idle_time"`
	ConnMaxLifetime    time.Duration `key:"connMaxLifetime" json:"conn_max_lifetime"`
	DialTimeout        time.Duration `key:"dialTimeout" json:"dial_timeout"`
	ReadTimeout        time.Duration `key:"readTimeout" json:"read_timeout"`
	WriteTimeout       time.Duration `key:"writeTimeout" json:"write_timeout"`
	MaxRedirects       int           `key:"maxRedirects" json:"max_redirects"`
	MaxRetries         int           `key:"maxRetries" json:"max_retries"`
	RouteByLatency     bool          `key:"routeByLatency" json:"route_by_latency"`
}

type PostgresConfig struct {
	Host            string        `key:"host" json:"host"`
	Port            int           `key:"port" json:"port"`
	User            string        `key:"user" json:"user"`
	Password        string        `key:"password" json:"password"`
	Database        string        `key:"database" json:"database"`
	SSLMode         string        `key:"sslMode" json:"ssl_mode"`
	MaxOpenConns    int           `key:"maxOpenConns" json:"max_open_conns"`
	MaxIdleConns    int           `key:"maxIdleConns" json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `key:"connMaxLifetime" json:"conn_max_lifetime"`
}

// ----------------------------------------------------------------------------
// Gateway Configuration
// ----------------------------------------------------------------------------

type GatewayConfig struct {
	HTTP            HTTPConfig    `key:"http" json:"http"`
	ShutdownTimeout time.Duration `key:"shutdownTimeout" json:"shutdown_timeout"`
	SessionKey      string        `key:"sessionKey" json:"session_key"` // Secret for session cookie signing
}

type HTTPConfig struct {
	Host             string     `key:"host" json:"host"`
	Port             int        `key:"port" json:"port"`
	EnablePrettyLogs bool       `key:"enablePrettyLogs" json:"enable_pretty_logs"`
	CORS             CORSConfig `key:"cors" json:"cors"`
}

type CORSConfig struct {
	AllowedOrigins []string `key:"allowOrigins" json:"allow_origins"`
	AllowedMethods []string `key:"allowMethods" json:"allow_methods"`
	AllowedHeaders []string `key:"allowHeaders" json:"allow_headers"`
}

// ----------------------------------------------------------------------------
// Catalog Configuration
// ----------------------------------------------------------------------------

// CatalogConfig configures the tool collection and the per-session views
type CatalogConfig struct {
	Backend             string        `key:"backend" json:"backend"` // memory, redis or postgres
	Path                string        `key:"path" json:"path"`       // collection path, e.g. "tools"
	CelebrationDuration time.Duration `key:"celebrationDuration" json:"celebration_duration"`
	SessionTTL          time.Duration `key:"sessionTTL" json:"session_ttl"`
	MaxSessions         int           `key:"maxSessions" json:"max_sessions"`
	NotifyDebounce      time.Duration `key:"notifyDebounce" json:"notify_debounce"` // postgres only
}

// ----------------------------------------------------------------------------
// Backup Configuration
// ----------------------------------------------------------------------------

type S3Config struct {
	Bucket         string `key:"bucket" json:"bucket"`
	Region         string `key:"region" json:"region"`
	Endpoint       string `key:"endpoint" json:"endpoint"`
	AccessKey      string `key:"accessKey" json:"access_key"`
	SecretKey      string `key:"secretKey" json:"secret_key"`
	ForcePathStyle bool   `key:"forcePathStyle" json:"force_path_style"`
}

// BackupConfig configures snapshot archiving to S3 (disabled without a bucket)
type BackupConfig struct {
	S3       S3Config      `key:"s3" json:"s3"`
	Prefix   string        `key:"prefix" json:"prefix"`
	Debounce time.Duration `key:"debounce" json:"debounce"`

	// Re-create the archived catalog when the collection is empty at startup
	RestoreOnEmpty bool `key:"restoreOnEmpty" json:"restore_on_empty"`
}

func (c BackupConfig) IsConfigured() bool {
	return c.S3.Bucket != ""
}
