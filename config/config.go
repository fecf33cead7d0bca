package config

import (
	"log/slog"
	"os"
	"path"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env                string            `mapstructure:"env"`
	LogLevel           string            `mapstructure:"log_level"`
	LogType            string            `mapstructure:"log_type"`
	ServiceName        string            `mapstructure:"service_name"`
	Version            string            `mapstructure:"version"`
	ScraperSettings    *ScraperConfig    `mapstructure:"scraper"`
	RendererSettings   *RendererConfig   `mapstructure:"renderer"`
	HistorySettings    *HistoryConfig    `mapstructure:"history"`
	S3Settings         *S3Config         `mapstructure:"s3"`
	KafkaSettings      *KafkaConfig      `mapstructure:"kafka"`
	TelemetrySettings  *TelemetryConfig  `mapstructure:"telemetry"`
	HttpClientSettings *HttpClientConfig `mapstructure:"http_client"`
}

type ScraperConfig struct {
	DataDir         string        `mapstructure:"data_dir"`
	Sites           []string      `mapstructure:"sites"`
	Workers         int           `mapstructure:"workers"`
	ForceRescrape   bool          `mapstructure:"force_rescrape"`
	MaxPages        int           `mapstructure:"max_pages"` // 0 means unlimited
	PolitenessDelay time.Duration `mapstructure:"politeness_delay"`
}

type RendererConfig struct {
	Mechanism       string        `mapstructure:"mechanism"` // browser or curl
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout"`
	RenderSettle    time.Duration `mapstructure:"render_settle"`
	UserAgent       string        `mapstructure:"user_agent"`
	CacheTtl        time.Duration `mapstructure:"cache_ttl"`
	ArchiveFallback bool          `mapstructure:"archive_fallback"`
	ArchiveTimeout  int           `mapstructure:"archive_timeout"`
	ArchiveRetries  int           `mapstructure:"archive_retries"`
	ArchiveIndexes  int           `mapstructure:"archive_indexes"`
}

type HistoryConfig struct {
	Backend    string          `mapstructure:"backend"` // sqlite or postgres
	SqlitePath string          `mapstructure:"sqlite_path"`
	Postgres   *DatabaseConfig `mapstructure:"postgres"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            string        `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
}

type S3Config struct {
	Enabled         bool   `mapstructure:"enabled"`
	AwsBaseEndpoint string `mapstructure:"aws_base_endpoint"`
	Region          string `mapstructure:"region"`
	BucketName      string `mapstructure:"bucket_name"`
	KeyPrefix       string `mapstructure:"key_prefix"`
}

type KafkaConfig struct {
	Enabled  bool            `mapstructure:"enabled"`
	Producer *ProducerConfig `mapstructure:"producer"`
}

type ProducerConfig struct {
	Addr                []string      `mapstructure:"addr"`
	DeadLetterTopicName string        `mapstructure:"dlq_topic_name"`
	MaxAttempts         int           `mapstructure:"max_attempts"`
	BatchSize           int           `mapstructure:"batch_size"`
	BatchTimeout        time.Duration `mapstructure:"batch_timeout"`
	ReadTimeout         time.Duration `mapstructure:"read_timeout"`
	WriteTimeout        time.Duration `mapstructure:"write_timeout"`
	RequiredAsks        int           `mapstructure:"required_acks"`
	Async               bool          `mapstructure:"async"`
}

type TelemetryConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	CollectorUrl string `mapstructure:"collector_url"`
}

type HttpClientConfig struct {
	MaxIdleConnections        int           `mapstructure:"max_idle_connections"`
	MaxIdleConnectionsPerHost int           `mapstructure:"max_idle_connections_per_host"`
	MaxConnectionsPerHost     int           `mapstructure:"max_connections_per_host"`
	IdleConnectionTimeout     time.Duration `mapstructure:"idle_connection_timeout"`
	TlsHandshakeTimeout       time.Duration `mapstructure:"tls_handshake_timeout"`
	DialTimeout               time.Duration `mapstructure:"dial_timeout"`
	DialKeepAlive             time.Duration `mapstructure:"dial_keep_alive"`
	TlsInsecureSkipVerify     bool          `mapstructure:"tls_insecure_skip_verify"`
}

func MustLoad() *Config {
	viper.AddConfigPath(path.Join("."))
	viper.SetConfigName("config")
	viper.AutomaticEnv()

	err := viper.ReadInConfig()
	if err != nil {
		slog.Error("can't initialize config file.", slog.String("err", err.Error()))
		os.Exit(1)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Error("error unmarshalling viper config.", slog.String("err", err.Error()))
		os.Exit(1)
	}
	if cfg.ScraperSettings == nil || len(cfg.ScraperSettings.Sites) == 0 {
		slog.Error("no sites configured: scraper.sites must list at least one seed url.")
		os.Exit(1)
	}

	return &cfg
}
