package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App    AppConfig    `mapstructure:"app"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
	DB     DBConfig     `mapstructure:"db"`
	Cron   CronConfig   `mapstructure:"cron"`
	Clint  ClintConfig  `mapstructure:"clint"`
	Sync   SyncConfig   `mapstructure:"sync"`
	Lock   LockConfig   `mapstructure:"lock"`
	Auth   AuthConfig   `mapstructure:"auth"`
	OpsLog OpsLogConfig `mapstructure:"opslog"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is postgres (default) or sqlite.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Sync    string `mapstructure:"sync"`
}

type ClintConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	Token      string        `mapstructure:"token"`
	AuthHeader string        `mapstructure:"auth_header"`
	Timeout    time.Duration `mapstructure:"timeout"`
	PerPage    int           `mapstructure:"per_page"`
}

type SyncConfig struct {
	AutoMaxPages int           `mapstructure:"auto_max_pages"`
	FullMaxPages int           `mapstructure:"full_max_pages"`
	PageDelay    time.Duration `mapstructure:"page_delay"`
	OriginIDs    []string      `mapstructure:"origin_ids"`
}

type LockConfig struct {
	// Backend is memory, redis or none.
	Backend       string        `mapstructure:"backend"`
	TTL           time.Duration `mapstructure:"ttl"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
}

type AuthConfig struct {
	Disabled  bool   `mapstructure:"disabled"`
	Token     string `mapstructure:"token"`
	JWTSecret string `mapstructure:"jwt_secret"`
}

type OpsLogConfig struct {
	BaseURL string `mapstructure:"base_url"`
	APIKey  string `mapstructure:"api_key"`
	Agent   string `mapstructure:"agent"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 20)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.sync", "@every 5m")
	v.SetDefault("clint.base_url", "https://api.clint.digital/v1")
	v.SetDefault("clint.token", "")
	v.SetDefault("clint.auth_header", "api-token")
	v.SetDefault("clint.timeout", "30s")
	v.SetDefault("clint.per_page", 200)
	v.SetDefault("sync.auto_max_pages", 5)
	v.SetDefault("sync.full_max_pages", 1000)
	v.SetDefault("sync.page_delay", "300ms")
	v.SetDefault("sync.origin_ids", []string{})
	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.ttl", "15m")
	v.SetDefault("lock.redis_addr", "")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("auth.disabled", false)
	v.SetDefault("auth.token", "")
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("opslog.base_url", "")
	v.SetDefault("opslog.api_key", "")
	v.SetDefault("opslog.agent", "crmsync")

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
