package conf

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/lk2023060901/file-vault-backend/internal/pkg/database"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/logger"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/minio"
	"github.com/lk2023060901/file-vault-backend/internal/pkg/redis"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  database.Config `mapstructure:"database"`
	Redis     redis.Config    `mapstructure:"redis"`
	MinIO     minio.Config    `mapstructure:"minio"`
	Log       logger.Config   `mapstructure:"log"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Vault     VaultConfig     `mapstructure:"vault"`
	Sweeper   SweeperConfig   `mapstructure:"sweeper"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
}

type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // gin mode: debug, release, test
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	EnableGzip      bool          `mapstructure:"enable_gzip"`
}

// Addr returns host:port for http.Server
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	JWTIssuer string `mapstructure:"jwt_issuer"`
}

// VaultConfig 文件保险库业务参数
type VaultConfig struct {
	MaxFileSize        int64         `mapstructure:"max_file_size"`        // 单文件上限（字节）
	DefaultQuota       int64         `mapstructure:"default_quota"`        // 新用户默认配额（字节）
	UploadURLTTL       time.Duration `mapstructure:"upload_url_ttl"`       // 上传凭证有效期
	DownloadURLTTL     time.Duration `mapstructure:"download_url_ttl"`     // 下载凭证有效期
	DefaultShareTTL    time.Duration `mapstructure:"default_share_ttl"`    // 分享默认有效期
	MaxShareTTL        time.Duration `mapstructure:"max_share_ttl"`        // 分享最长有效期
	AccessLogRetention time.Duration `mapstructure:"access_log_retention"` // 审计日志保留时长
	PublicBaseURL      string        `mapstructure:"public_base_url"`      // 分享链接前缀
	ListDefaultLimit   int           `mapstructure:"list_default_limit"`
	ListMaxLimit       int           `mapstructure:"list_max_limit"`
	ShareMissCacheSize int           `mapstructure:"share_miss_cache_size"`
	ShareMissCacheTTL  time.Duration `mapstructure:"share_miss_cache_ttl"`
}

// SweeperConfig 过期上传清理任务配置
type SweeperConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Interval       time.Duration `mapstructure:"interval"`
	AbandonAfter   time.Duration `mapstructure:"abandon_after"`
	BatchSize      int           `mapstructure:"batch_size"`
	Workers        int           `mapstructure:"workers"`
	LockTTL        time.Duration `mapstructure:"lock_ttl"`
	ReconcileQuota bool          `mapstructure:"reconcile_quota"`
}

// RateLimitConfig 公开分享接口的限流配置
type RateLimitConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	MaxRequests   int  `mapstructure:"max_requests"`
	WindowSeconds int  `mapstructure:"window_seconds"`
}

// secrets 从环境变量覆盖敏感配置，避免写入 YAML
type secrets struct {
	JWTSecret      string `env:"VAULT_JWT_SECRET"`
	DBPassword     string `env:"VAULT_DB_PASSWORD"`
	MinIOAccessKey string `env:"VAULT_MINIO_ACCESS_KEY"`
	MinIOSecretKey string `env:"VAULT_MINIO_SECRET_KEY"`
	RedisPassword  string `env:"VAULT_REDIS_PASSWORD"`
}

// Default returns the configuration used when a key is absent from the file
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			Mode:            "release",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 10 * time.Second,
			EnableGzip:      true,
		},
		Database: *database.DefaultConfig(),
		Redis:    *redis.DefaultConfig(),
		MinIO:    *minio.DefaultConfig(),
		Log:      *logger.DefaultConfig(),
		Auth: AuthConfig{
			JWTIssuer: "file-vault",
		},
		Vault: VaultConfig{
			MaxFileSize:        5 << 30,
			DefaultQuota:       10 << 30,
			UploadURLTTL:       time.Hour,
			DownloadURLTTL:     time.Hour,
			DefaultShareTTL:    time.Hour,
			MaxShareTTL:        720 * time.Hour,
			AccessLogRetention: 2160 * time.Hour,
			ListDefaultLimit:   50,
			ListMaxLimit:       200,
			ShareMissCacheSize: 4096,
			ShareMissCacheTTL:  time.Minute,
		},
		Sweeper: SweeperConfig{
			Enabled:      true,
			Interval:     10 * time.Minute,
			AbandonAfter: 2 * time.Hour,
			BatchSize:    100,
			Workers:      8,
			LockTTL:      5 * time.Minute,
		},
		RateLimit: RateLimitConfig{
			Enabled:       true,
			MaxRequests:   30,
			WindowSeconds: 60,
		},
	}
}

// LoadConfig reads the YAML file at path, then applies VAULT_* environment
// variables and the secrets overlay. A .env file in the working directory
// is loaded first when present.
func LoadConfig(path string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("VAULT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	config := Default()
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.applySecrets(); err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

func (c *Config) applySecrets() error {
	var s secrets
	if err := env.Parse(&s); err != nil {
		return fmt.Errorf("failed to parse secrets from environment: %w", err)
	}

	overlay := func(dst *string, val string) {
		if val != "" {
			*dst = val
		}
	}
	overlay(&c.Auth.JWTSecret, s.JWTSecret)
	overlay(&c.Database.Password, s.DBPassword)
	overlay(&c.MinIO.AccessKeyID, s.MinIOAccessKey)
	overlay(&c.MinIO.SecretAccessKey, s.MinIOSecretKey)
	overlay(&c.Redis.Password, s.RedisPassword)

	return nil
}

// Validate rejects inconsistent settings
func (c *Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required (or VAULT_JWT_SECRET)")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return errors.New("server.port must be between 1 and 65535")
	}

	v := c.Vault
	if v.MaxFileSize <= 0 {
		return errors.New("vault.max_file_size must be > 0")
	}
	if v.DefaultQuota < 0 {
		return errors.New("vault.default_quota must be >= 0")
	}
	if v.UploadURLTTL <= 0 || v.DownloadURLTTL <= 0 {
		return errors.New("vault capability TTLs must be > 0")
	}
	if v.DefaultShareTTL <= 0 || v.MaxShareTTL < v.DefaultShareTTL {
		return errors.New("vault.max_share_ttl must be >= vault.default_share_ttl > 0")
	}
	if v.AccessLogRetention <= 0 {
		return errors.New("vault.access_log_retention must be > 0")
	}
	if v.PublicBaseURL == "" {
		return errors.New("vault.public_base_url is required")
	}
	if v.ListDefaultLimit <= 0 || v.ListMaxLimit < v.ListDefaultLimit {
		return errors.New("vault.list_max_limit must be >= vault.list_default_limit > 0")
	}

	s := c.Sweeper
	if s.Enabled {
		if s.Interval <= 0 {
			return errors.New("sweeper.interval must be > 0")
		}
		if s.BatchSize <= 0 || s.Workers <= 0 {
			return errors.New("sweeper.batch_size and sweeper.workers must be > 0")
		}
		if s.LockTTL <= 0 {
			return errors.New("sweeper.lock_ttl must be > 0")
		}
	}
	// 上传凭证仍有效时不能判定为放弃
	if s.AbandonAfter < v.UploadURLTTL {
		return errors.New("sweeper.abandon_after must not be shorter than vault.upload_url_ttl")
	}

	if c.RateLimit.Enabled && (c.RateLimit.MaxRequests <= 0 || c.RateLimit.WindowSeconds <= 0) {
		return errors.New("ratelimit.max_requests and ratelimit.window_seconds must be > 0")
	}

	return nil
}
