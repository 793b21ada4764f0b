package config

import (
	"os"
	"strings"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server   ServerConfig
	Redis    RedisConfig
	JWT      JWTConfig
	S3       S3Config
	Catalog  CatalogConfig
	Lyrics   LyricsConfig
	FFmpeg   FFmpegConfig
	Download DownloadConfig
	Quota    QuotaConfig
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
}

type S3Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
}

type CatalogConfig struct {
	PrimaryURL     string
	PrimaryToken   string
	SecondaryURL   string
	SecondaryToken string
	DefaultRegion  string
	Timeout        int // seconds
}

type LyricsConfig struct {
	LrclibURL string
	Mirrors   []string
	Timeout   int // seconds per aggregator call
	CacheSize int
}

type FFmpegConfig struct {
	Binary  string
	Timeout int // seconds per invocation
}

type DownloadConfig struct {
	ScratchDir      string
	Concurrency     int
	MaxRetries      int
	RetryBaseMillis int
	TrackTemplate   string
	ArchiveTemplate string
	PerHour         int
}

type QuotaConfig struct {
	CeilingBytes int64
	WindowDays   int
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("S3_ACCOUNT_ID")
	readSecret("S3_ACCESS_KEY_ID")
	readSecret("S3_SECRET_ACCESS_KEY")
	readSecret("CATALOG_PRIMARY_TOKEN")
	readSecret("CATALOG_SECONDARY_TOKEN")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("s3.account_id", "S3_ACCOUNT_ID")
	_ = viper.BindEnv("s3.access_key_id", "S3_ACCESS_KEY_ID")
	_ = viper.BindEnv("s3.secret_access_key", "S3_SECRET_ACCESS_KEY")
	_ = viper.BindEnv("s3.bucket_name", "S3_BUCKET_NAME")
	_ = viper.BindEnv("s3.public_url", "S3_PUBLIC_URL")
	_ = viper.BindEnv("catalog.primary_url", "CATALOG_PRIMARY_URL")
	_ = viper.BindEnv("catalog.primary_token", "CATALOG_PRIMARY_TOKEN")
	_ = viper.BindEnv("catalog.secondary_url", "CATALOG_SECONDARY_URL")
	_ = viper.BindEnv("catalog.secondary_token", "CATALOG_SECONDARY_TOKEN")
	_ = viper.BindEnv("catalog.default_region", "CATALOG_DEFAULT_REGION")
	_ = viper.BindEnv("catalog.timeout", "CATALOG_TIMEOUT")
	_ = viper.BindEnv("lyrics.lrclib_url", "LYRICS_LRCLIB_URL")
	_ = viper.BindEnv("lyrics.mirrors", "LYRICS_MIRRORS")
	_ = viper.BindEnv("lyrics.timeout", "LYRICS_TIMEOUT")
	_ = viper.BindEnv("lyrics.cache_size", "LYRICS_CACHE_SIZE")
	_ = viper.BindEnv("ffmpeg.binary", "FFMPEG_BINARY")
	_ = viper.BindEnv("ffmpeg.timeout", "FFMPEG_TIMEOUT")
	_ = viper.BindEnv("download.scratch_dir", "DOWNLOAD_SCRATCH_DIR")
	_ = viper.BindEnv("download.concurrency", "DOWNLOAD_CONCURRENCY")
	_ = viper.BindEnv("download.max_retries", "DOWNLOAD_MAX_RETRIES")
	_ = viper.BindEnv("download.retry_base_millis", "DOWNLOAD_RETRY_BASE_MILLIS")
	_ = viper.BindEnv("download.track_template", "DOWNLOAD_TRACK_TEMPLATE")
	_ = viper.BindEnv("download.archive_template", "DOWNLOAD_ARCHIVE_TEMPLATE")
	_ = viper.BindEnv("download.per_hour", "DOWNLOAD_PER_HOUR")
	_ = viper.BindEnv("quota.ceiling_bytes", "QUOTA_CEILING_BYTES")
	_ = viper.BindEnv("quota.window_days", "QUOTA_WINDOW_DAYS")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("catalog.default_region", "US")
	viper.SetDefault("catalog.timeout", 30)
	viper.SetDefault("lyrics.lrclib_url", "https://lrclib.net")
	viper.SetDefault("lyrics.mirrors", []string{"https://lyricsplus.prjktla.workers.dev"})
	viper.SetDefault("lyrics.timeout", 10)
	viper.SetDefault("lyrics.cache_size", 512)
	viper.SetDefault("ffmpeg.binary", "ffmpeg")
	viper.SetDefault("ffmpeg.timeout", 300)
	viper.SetDefault("download.scratch_dir", os.TempDir())
	viper.SetDefault("download.concurrency", 3)
	viper.SetDefault("download.max_retries", 3)
	viper.SetDefault("download.retry_base_millis", 1000)
	viper.SetDefault("download.track_template", "{track} - {name}")
	viper.SetDefault("download.archive_template", "{artist} - {album}")
	viper.SetDefault("download.per_hour", 20)
	viper.SetDefault("quota.ceiling_bytes", int64(30)<<30) // 30 GB
	viper.SetDefault("quota.window_days", 30)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:     viper.GetString("server.port"),
			Env:      viper.GetString("server.env"),
			LogLevel: viper.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret: viper.GetString("jwt.secret"),
		},
		S3: S3Config{
			AccountID:       viper.GetString("s3.account_id"),
			AccessKeyID:     viper.GetString("s3.access_key_id"),
			SecretAccessKey: viper.GetString("s3.secret_access_key"),
			BucketName:      viper.GetString("s3.bucket_name"),
			PublicURL:       viper.GetString("s3.public_url"),
		},
		Catalog: CatalogConfig{
			PrimaryURL:     viper.GetString("catalog.primary_url"),
			PrimaryToken:   viper.GetString("catalog.primary_token"),
			SecondaryURL:   viper.GetString("catalog.secondary_url"),
			SecondaryToken: viper.GetString("catalog.secondary_token"),
			DefaultRegion:  viper.GetString("catalog.default_region"),
			Timeout:        viper.GetInt("catalog.timeout"),
		},
		Lyrics: LyricsConfig{
			LrclibURL: viper.GetString("lyrics.lrclib_url"),
			Mirrors:   viper.GetStringSlice("lyrics.mirrors"),
			Timeout:   viper.GetInt("lyrics.timeout"),
			CacheSize: viper.GetInt("lyrics.cache_size"),
		},
		FFmpeg: FFmpegConfig{
			Binary:  viper.GetString("ffmpeg.binary"),
			Timeout: viper.GetInt("ffmpeg.timeout"),
		},
		Download: DownloadConfig{
			ScratchDir:      viper.GetString("download.scratch_dir"),
			Concurrency:     viper.GetInt("download.concurrency"),
			MaxRetries:      viper.GetInt("download.max_retries"),
			RetryBaseMillis: viper.GetInt("download.retry_base_millis"),
			TrackTemplate:   viper.GetString("download.track_template"),
			ArchiveTemplate: viper.GetString("download.archive_template"),
			PerHour:         viper.GetInt("download.per_hour"),
		},
		Quota: QuotaConfig{
			CeilingBytes: viper.GetInt64("quota.ceiling_bytes"),
			WindowDays:   viper.GetInt("quota.window_days"),
		},
	}

	return cfg, nil
}
