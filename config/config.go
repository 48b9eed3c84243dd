package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	JWT         JWTConfig         `mapstructure:"jwt"`
	OSS         OSSConfig         `mapstructure:"oss"`
	CORS        CORSConfig        `mapstructure:"cors"`
	Log         LogConfig         `mapstructure:"log"`
	Stripe      StripeConfig      `mapstructure:"stripe"`
	Entitlement EntitlementConfig `mapstructure:"entitlement"`
	Watermark   WatermarkConfig   `mapstructure:"watermark"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Admin       AdminConfig       `mapstructure:"admin"`
}

type ServerConfig struct {
	Host                   string `mapstructure:"host"`
	Port                   int    `mapstructure:"port"`
	Mode                   string `mapstructure:"mode"`
	ReadTimeoutSeconds     int    `mapstructure:"read_timeout_seconds"`
	WriteTimeoutSeconds    int    `mapstructure:"write_timeout_seconds"`
	ShutdownTimeoutSeconds int    `mapstructure:"shutdown_timeout_seconds"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	Username     string `mapstructure:"username"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type JWTConfig struct {
	Secret      string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

type OSSConfig struct {
	Endpoint           string `mapstructure:"endpoint"`
	AccessKeyID        string `mapstructure:"access_key_id"`
	AccessKeySecret    string `mapstructure:"access_key_secret"`
	BucketName         string `mapstructure:"bucket_name"`
	CDNDomain          string `mapstructure:"cdn_domain"`
	PlaybackURLTTLSecs int64  `mapstructure:"playback_url_ttl_seconds"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
	AllowedMethods []string `mapstructure:"allowed_methods"`
	AllowedHeaders []string `mapstructure:"allowed_headers"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

type StripeConfig struct {
	SecretKey            string                 `mapstructure:"secret_key"`
	WebhookSecret        string                 `mapstructure:"webhook_secret"`
	WebhookToleranceSecs int                    `mapstructure:"webhook_tolerance_seconds"`
	WebhookTimeoutSecs   int                    `mapstructure:"webhook_timeout_seconds"`
	RequestTimeoutSecs   int                    `mapstructure:"request_timeout_seconds"`
	SuccessURL           string                 `mapstructure:"success_url"`
	CancelURL            string                 `mapstructure:"cancel_url"`
	Offers               map[string]OfferConfig `mapstructure:"offers"`
}

// OfferConfig 可售卖的方案，offer_id -> 支付平台价格
type OfferConfig struct {
	PriceID    string `mapstructure:"price_id"`
	Type       string `mapstructure:"type"` // subscription, ppv, tip
	AccessDays int    `mapstructure:"access_days"`
}

type EntitlementConfig struct {
	CacheSize            int `mapstructure:"cache_size"`
	CacheTTLSeconds      int `mapstructure:"cache_ttl_seconds"`
	SweepIntervalMinutes int `mapstructure:"sweep_interval_minutes"`
}

type WatermarkConfig struct {
	Secret            string  `mapstructure:"secret"`
	SessionTTLMinutes int     `mapstructure:"session_ttl_minutes"`
	Pitch             int     `mapstructure:"pitch"`
	FontSize          int     `mapstructure:"font_size"`
	Opacity           float64 `mapstructure:"opacity"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// Seconds 将配置中的秒数转换为 Duration，未配置时使用默认值
func Seconds(v int, def time.Duration) time.Duration {
	if v <= 0 {
		return def
	}
	return time.Duration(v) * time.Second
}

func Load(configPath string) (*Config, error) {
	// 优先尝试读取 config.local.yaml（包含真实密钥，不提交到git）
	dir := filepath.Dir(configPath)
	localConfigPath := filepath.Join(dir, "config.local.yaml")

	if _, err := os.Stat(localConfigPath); err == nil {
		configPath = localConfigPath
	}

	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")

	// 环境变量覆盖，例如 STRIPE_WEBHOOK_SECRET
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	viper.SetDefault("entitlement.cache_size", 10000)
	viper.SetDefault("entitlement.cache_ttl_seconds", 5)
	viper.SetDefault("watermark.session_ttl_minutes", 240)
	viper.SetDefault("stripe.webhook_timeout_seconds", 10)
	viper.SetDefault("stripe.request_timeout_seconds", 10)
	viper.SetDefault("oss.playback_url_ttl_seconds", 3600)

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
