package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 聚合运行时配置。优先级：STOREFRONT_ 前缀环境变量 > config.toml > 默认值。
type AppConfig struct {
	Env        string
	Debug      bool
	HTTPAddr   string
	AdminToken string

	Database  DatabaseConfig
	Redis     RedisConfig
	Kafka     KafkaConfig
	Notify    NotifyConfig
	Batch     BatchConfig
	Checkout  CheckoutConfig
	Orders    OrderPolicyConfig
	Log       LogConfig
	Telemetry TelemetryConfig

	// MediaBaseURL 用于拼接商品原始图片路径
	MediaBaseURL string
}

type DatabaseConfig struct {
	Driver          string // sqlite | postgres
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return r.Addr != "" }

type KafkaConfig struct {
	Brokers []string
}

type NotifyConfig struct {
	Driver     string // log | kafka
	Topic      string
	AdminEmail string
}

type BatchConfig struct {
	Scheduler    string // memory | redis
	RecentWindow time.Duration
	Delay        time.Duration
	Confirm      time.Duration
	MarkerTTL    time.Duration
	QueueKey     string
	PollInterval time.Duration
}

type CheckoutConfig struct {
	RateLimit  int
	RateWindow time.Duration
}

type OrderPolicyConfig struct {
	StrictTransitions bool
	RestockOnCancel   bool
}

type LogConfig struct {
	Level  string
	Format string
	Output string
}

type TelemetryConfig struct {
	Enabled           bool
	CollectorEndpoint string
	SamplingRatio     float64
	ServiceName       string
	Insecure          bool
	MetricInterval    time.Duration
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.env", "development")
	v.SetDefault("app.debug", false)
	v.SetDefault("app.http_addr", ":8080")
	v.SetDefault("app.admin_token", "dev-admin-token")
	v.SetDefault("app.media_base_url", "")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.dsn", "storefront.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 30*time.Minute)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("kafka.brokers", "localhost:9092")

	v.SetDefault("notify.driver", "log")
	v.SetDefault("notify.topic", "storefront-notifications")
	v.SetDefault("notify.admin_email", "orders@storefront.local")

	v.SetDefault("batch.scheduler", "memory")
	v.SetDefault("batch.recent_window", 10*time.Second)
	v.SetDefault("batch.delay", 3*time.Second)
	v.SetDefault("batch.confirm", 5*time.Second)
	v.SetDefault("batch.marker_ttl", 5*time.Second)
	v.SetDefault("batch.queue_key", "storefront:batch_checks")
	v.SetDefault("batch.poll_interval", 250*time.Millisecond)

	v.SetDefault("checkout.rate_limit", 30)
	v.SetDefault("checkout.rate_window", time.Minute)

	v.SetDefault("orders.strict_transitions", false)
	v.SetDefault("orders.restock_on_cancel", false)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.output", "stdout")

	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("telemetry.collector_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 1.0)
	v.SetDefault("telemetry.service_name", "storefront")
	v.SetDefault("telemetry.insecure", true)
	v.SetDefault("telemetry.metric_interval", time.Minute)
}

// Load 读取并校验配置。
func Load() (AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return AppConfig{}, fmt.Errorf("read config file: %w", err)
		}
	}
	return load(v)
}

func load(v *viper.Viper) (AppConfig, error) {
	setDefaults(v)
	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := AppConfig{
		Env:          v.GetString("app.env"),
		Debug:        v.GetBool("app.debug"),
		HTTPAddr:     v.GetString("app.http_addr"),
		AdminToken:   v.GetString("app.admin_token"),
		MediaBaseURL: v.GetString("app.media_base_url"),
		Database: DatabaseConfig{
			Driver:          strings.ToLower(v.GetString("database.driver")),
			DSN:             v.GetString("database.dsn"),
			MaxOpenConns:    v.GetInt("database.max_open_conns"),
			MaxIdleConns:    v.GetInt("database.max_idle_conns"),
			ConnMaxLifetime: v.GetDuration("database.conn_max_lifetime"),
			AutoMigrate:     v.GetBool("database.auto_migrate"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Kafka: KafkaConfig{
			Brokers: splitCSV(v.GetString("kafka.brokers")),
		},
		Notify: NotifyConfig{
			Driver:     strings.ToLower(v.GetString("notify.driver")),
			Topic:      v.GetString("notify.topic"),
			AdminEmail: v.GetString("notify.admin_email"),
		},
		Batch: BatchConfig{
			Scheduler:    strings.ToLower(v.GetString("batch.scheduler")),
			RecentWindow: v.GetDuration("batch.recent_window"),
			Delay:        v.GetDuration("batch.delay"),
			Confirm:      v.GetDuration("batch.confirm"),
			MarkerTTL:    v.GetDuration("batch.marker_ttl"),
			QueueKey:     v.GetString("batch.queue_key"),
			PollInterval: v.GetDuration("batch.poll_interval"),
		},
		Checkout: CheckoutConfig{
			RateLimit:  v.GetInt("checkout.rate_limit"),
			RateWindow: v.GetDuration("checkout.rate_window"),
		},
		Orders: OrderPolicyConfig{
			StrictTransitions: v.GetBool("orders.strict_transitions"),
			RestockOnCancel:   v.GetBool("orders.restock_on_cancel"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
			Output: v.GetString("log.output"),
		},
		Telemetry: TelemetryConfig{
			Enabled:           v.GetBool("telemetry.enabled"),
			CollectorEndpoint: v.GetString("telemetry.collector_endpoint"),
			SamplingRatio:     v.GetFloat64("telemetry.sampling_ratio"),
			ServiceName:       v.GetString("telemetry.service_name"),
			Insecure:          v.GetBool("telemetry.insecure"),
			MetricInterval:    v.GetDuration("telemetry.metric_interval"),
		},
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

func (c AppConfig) validate() error {
	if c.HTTPAddr == "" {
		return fmt.Errorf("STOREFRONT_APP_HTTP_ADDR must not be empty")
	}
	switch c.Database.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("STOREFRONT_DATABASE_DRIVER must be sqlite or postgres, got %q", c.Database.Driver)
	}
	if c.Database.DSN == "" {
		return fmt.Errorf("STOREFRONT_DATABASE_DSN must not be empty")
	}
	switch c.Notify.Driver {
	case "log":
	case "kafka":
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("STOREFRONT_KAFKA_BROKERS must not be empty when notify driver is kafka")
		}
		if c.Notify.Topic == "" {
			return fmt.Errorf("STOREFRONT_NOTIFY_TOPIC must not be empty")
		}
	default:
		return fmt.Errorf("STOREFRONT_NOTIFY_DRIVER must be log or kafka, got %q", c.Notify.Driver)
	}
	switch c.Batch.Scheduler {
	case "memory":
	case "redis":
		if !c.Redis.Enabled() {
			return fmt.Errorf("STOREFRONT_REDIS_ADDR is required when batch scheduler is redis")
		}
	default:
		return fmt.Errorf("STOREFRONT_BATCH_SCHEDULER must be memory or redis, got %q", c.Batch.Scheduler)
	}
	for name, d := range map[string]time.Duration{
		"STOREFRONT_BATCH_RECENT_WINDOW": c.Batch.RecentWindow,
		"STOREFRONT_BATCH_DELAY":         c.Batch.Delay,
		"STOREFRONT_BATCH_CONFIRM":       c.Batch.Confirm,
		"STOREFRONT_BATCH_MARKER_TTL":    c.Batch.MarkerTTL,
		"STOREFRONT_BATCH_POLL_INTERVAL": c.Batch.PollInterval,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	if c.Checkout.RateLimit <= 0 {
		return fmt.Errorf("STOREFRONT_CHECKOUT_RATE_LIMIT must be > 0")
	}
	if c.Checkout.RateWindow < time.Second {
		return fmt.Errorf("STOREFRONT_CHECKOUT_RATE_WINDOW must be at least 1s")
	}
	if c.Telemetry.SamplingRatio < 0 || c.Telemetry.SamplingRatio > 1 {
		return fmt.Errorf("STOREFRONT_TELEMETRY_SAMPLING_RATIO must be within [0, 1]")
	}
	return nil
}

// IsProduction 生产环境下隐藏 500 错误详情。
func (c AppConfig) IsProduction() bool { return c.Env == "production" }

// splitCSV 将逗号分隔字符串解析为字符串切片。
func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		s := strings.TrimSpace(p)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
