package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// AppConfig 聚合运行时配置，尽量通过环境变量注入，避免硬编码。
// 设置 CONFIG_FILE 时先读取 YAML 文件，环境变量再覆盖文件中的值。
type AppConfig struct {
	HTTPAddr string `yaml:"http_addr"`

	// 持久化：sqlite（默认，本地文件）或 mysql
	DBDriver string `yaml:"db_driver"`
	DBDSN    string `yaml:"db_dsn"`

	// RedisAddr 为空时关闭限流、tick 锁、步进幂等账本与事件 outbox
	RedisAddr string `yaml:"redis_addr"`
	RedisDB   int    `yaml:"redis_db"`

	// Kafka 集群地址（逗号分隔）、Topic、消费者组；为空时事件直接写 auction_logs
	KafkaBrokers []string `yaml:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic"`
	KafkaGroupID string   `yaml:"kafka_group_id"`

	// Redis Stream outbox（引擎写入，Relay 异步转 Kafka）
	EventStream   string `yaml:"event_stream"`
	EventGroup    string `yaml:"event_group"`
	EventConsumer string `yaml:"event_consumer"`

	// Shopify Admin GraphQL
	ShopURL     string `yaml:"shop_url"`
	AccessToken string `yaml:"access_token"`
	APIVersion  string `yaml:"api_version"`

	// 商品目录读写节流参数
	CatalogPageSize    int           `yaml:"catalog_page_size"`
	CatalogBatchSize   int           `yaml:"catalog_batch_size"`
	CatalogConcurrency int           `yaml:"catalog_concurrency"`
	CatalogPageDelay   time.Duration `yaml:"catalog_page_delay"`
	CatalogChunkDelay  time.Duration `yaml:"catalog_chunk_delay"`

	TickInterval time.Duration `yaml:"tick_interval"`

	// 管理接口令牌与限流
	AdminToken      string        `yaml:"admin_token"`
	AdminRateLimit  int           `yaml:"admin_rate_limit"`
	AdminRateWindow time.Duration `yaml:"admin_rate_window"`

	DefaultTimezone      string `yaml:"default_timezone"`
	SchedulePreviewLimit int    `yaml:"schedule_preview_limit"`

	LogLevel       string `yaml:"log_level"`
	LogPretty      bool   `yaml:"log_pretty"`
	JaegerEndpoint string `yaml:"jaeger_endpoint"`
}

// Defaults 返回未读取任何外部来源时的配置。
func Defaults() AppConfig {
	return AppConfig{
		HTTPAddr:             ":8080",
		DBDriver:             "sqlite",
		DBDSN:                "auctions.db",
		RedisDB:              0,
		KafkaTopic:           "reverse-auction-events",
		KafkaGroupID:         "reverse-auction-log-consumer",
		EventStream:          "reverse_auction:events",
		EventGroup:           "reverse-auction-relay-group",
		EventConsumer:        "reverse-auction-relay-1",
		APIVersion:           "2024-04",
		CatalogPageSize:      50,
		CatalogBatchSize:     100,
		CatalogConcurrency:   4,
		CatalogPageDelay:     250 * time.Millisecond,
		CatalogChunkDelay:    500 * time.Millisecond,
		TickInterval:         time.Minute,
		AdminToken:           "dev-admin-token",
		AdminRateLimit:       30,
		AdminRateWindow:      time.Minute,
		DefaultTimezone:      "CET",
		SchedulePreviewLimit: 100,
		LogLevel:             "info",
	}
}

// Load 读取并校验配置，缺失时使用默认值。
func Load() (AppConfig, error) {
	cfg := Defaults()

	if path := getEnv("CONFIG_FILE", ""); path != "" {
		if err := loadFile(path, &cfg); err != nil {
			return AppConfig{}, err
		}
	}

	cfg.HTTPAddr = getEnv("HTTP_ADDR", cfg.HTTPAddr)
	cfg.DBDriver = strings.ToLower(getEnv("DB_DRIVER", cfg.DBDriver))
	cfg.DBDSN = getEnv("DB_DSN", cfg.DBDSN)
	cfg.RedisAddr = getEnv("REDIS_ADDR", cfg.RedisAddr)
	if v := getEnv("KAFKA_BROKERS", ""); v != "" {
		cfg.KafkaBrokers = splitCSV(v)
	}
	cfg.KafkaTopic = getEnv("KAFKA_TOPIC", cfg.KafkaTopic)
	cfg.KafkaGroupID = getEnv("KAFKA_GROUP_ID", cfg.KafkaGroupID)
	cfg.EventStream = getEnv("AUCTION_EVENT_STREAM", cfg.EventStream)
	cfg.EventGroup = getEnv("AUCTION_EVENT_GROUP", cfg.EventGroup)
	cfg.EventConsumer = getEnv("AUCTION_EVENT_CONSUMER", cfg.EventConsumer)
	cfg.ShopURL = normalizeShopURL(getEnv("SHOPIFY_SHOP_URL", cfg.ShopURL))
	cfg.AccessToken = getEnv("SHOPIFY_ACCESS_TOKEN", cfg.AccessToken)
	cfg.APIVersion = getEnv("SHOPIFY_API_VERSION", cfg.APIVersion)
	cfg.AdminToken = getEnv("ADMIN_TOKEN", cfg.AdminToken)
	cfg.DefaultTimezone = getEnv("DEFAULT_TIMEZONE", cfg.DefaultTimezone)
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.JaegerEndpoint = getEnv("JAEGER_ENDPOINT", cfg.JaegerEndpoint)

	var err error
	if cfg.RedisDB, err = getEnvInt("REDIS_DB", cfg.RedisDB); err != nil {
		return AppConfig{}, fmt.Errorf("invalid REDIS_DB: %w", err)
	}
	if cfg.LogPretty, err = getEnvBool("LOG_PRETTY", cfg.LogPretty); err != nil {
		return AppConfig{}, fmt.Errorf("invalid LOG_PRETTY: %w", err)
	}
	if cfg.CatalogPageSize, err = getEnvInt("CATALOG_PAGE_SIZE", cfg.CatalogPageSize); err != nil {
		return AppConfig{}, fmt.Errorf("invalid CATALOG_PAGE_SIZE: %w", err)
	}
	if cfg.CatalogBatchSize, err = getEnvInt("CATALOG_BATCH_SIZE", cfg.CatalogBatchSize); err != nil {
		return AppConfig{}, fmt.Errorf("invalid CATALOG_BATCH_SIZE: %w", err)
	}
	if cfg.CatalogConcurrency, err = getEnvInt("CATALOG_CONCURRENCY", cfg.CatalogConcurrency); err != nil {
		return AppConfig{}, fmt.Errorf("invalid CATALOG_CONCURRENCY: %w", err)
	}
	if cfg.AdminRateLimit, err = getEnvInt("ADMIN_RATE_LIMIT", cfg.AdminRateLimit); err != nil {
		return AppConfig{}, fmt.Errorf("invalid ADMIN_RATE_LIMIT: %w", err)
	}
	if cfg.SchedulePreviewLimit, err = getEnvInt("SCHEDULE_PREVIEW_LIMIT", cfg.SchedulePreviewLimit); err != nil {
		return AppConfig{}, fmt.Errorf("invalid SCHEDULE_PREVIEW_LIMIT: %w", err)
	}

	pageDelayMs, err := getEnvInt("CATALOG_PAGE_DELAY_MS", int(cfg.CatalogPageDelay/time.Millisecond))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CATALOG_PAGE_DELAY_MS: %w", err)
	}
	cfg.CatalogPageDelay = time.Duration(pageDelayMs) * time.Millisecond

	chunkDelayMs, err := getEnvInt("CATALOG_CHUNK_DELAY_MS", int(cfg.CatalogChunkDelay/time.Millisecond))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid CATALOG_CHUNK_DELAY_MS: %w", err)
	}
	cfg.CatalogChunkDelay = time.Duration(chunkDelayMs) * time.Millisecond

	tickSec, err := getEnvInt("TICK_INTERVAL_SEC", int(cfg.TickInterval.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid TICK_INTERVAL_SEC: %w", err)
	}
	cfg.TickInterval = time.Duration(tickSec) * time.Second

	windowSec, err := getEnvInt("ADMIN_RATE_WINDOW_SEC", int(cfg.AdminRateWindow.Seconds()))
	if err != nil {
		return AppConfig{}, fmt.Errorf("invalid ADMIN_RATE_WINDOW_SEC: %w", err)
	}
	cfg.AdminRateWindow = time.Duration(windowSec) * time.Second

	if err := cfg.Validate(); err != nil {
		return AppConfig{}, err
	}
	return cfg, nil
}

// Validate 校验取值范围。
func (c AppConfig) Validate() error {
	if c.DBDriver != "sqlite" && c.DBDriver != "mysql" {
		return fmt.Errorf("DB_DRIVER must be sqlite or mysql, got %q", c.DBDriver)
	}
	if c.DBDSN == "" {
		return fmt.Errorf("DB_DSN must not be empty")
	}
	if c.CatalogPageSize <= 0 || c.CatalogPageSize > 250 {
		return fmt.Errorf("CATALOG_PAGE_SIZE must be in [1,250]")
	}
	if c.CatalogBatchSize <= 0 {
		return fmt.Errorf("CATALOG_BATCH_SIZE must be > 0")
	}
	if c.CatalogConcurrency < 2 || c.CatalogConcurrency > 8 {
		return fmt.Errorf("CATALOG_CONCURRENCY must be in [2,8]")
	}
	if c.CatalogPageDelay < 0 || c.CatalogChunkDelay < 0 {
		return fmt.Errorf("catalog delays must be >= 0")
	}
	if c.TickInterval <= 0 {
		return fmt.Errorf("TICK_INTERVAL_SEC must be > 0")
	}
	if c.AdminRateLimit <= 0 {
		return fmt.Errorf("ADMIN_RATE_LIMIT must be > 0")
	}
	if c.AdminRateWindow <= 0 {
		return fmt.Errorf("ADMIN_RATE_WINDOW_SEC must be > 0")
	}
	if c.SchedulePreviewLimit <= 0 {
		return fmt.Errorf("SCHEDULE_PREVIEW_LIMIT must be > 0")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("DEFAULT_TIMEZONE %q: %w", c.DefaultTimezone, err)
	}
	if len(c.KafkaBrokers) > 0 {
		if c.KafkaTopic == "" {
			return fmt.Errorf("KAFKA_TOPIC must not be empty")
		}
		if c.KafkaGroupID == "" {
			return fmt.Errorf("KAFKA_GROUP_ID must not be empty")
		}
		if c.RedisAddr == "" {
			return fmt.Errorf("KAFKA_BROKERS requires REDIS_ADDR for the event outbox")
		}
	}
	if c.RedisAddr != "" {
		if c.EventStream == "" {
			return fmt.Errorf("AUCTION_EVENT_STREAM must not be empty")
		}
		if c.EventGroup == "" {
			return fmt.Errorf("AUCTION_EVENT_GROUP must not be empty")
		}
		if c.EventConsumer == "" {
			return fmt.Errorf("AUCTION_EVENT_CONSUMER must not be empty")
		}
	}
	return nil
}

// KafkaEnabled 表示是否走 outbox -> Kafka -> consumer 的事件链路。
func (c AppConfig) KafkaEnabled() bool { return len(c.KafkaBrokers) > 0 }

func loadFile(path string, cfg *AppConfig) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read CONFIG_FILE: %w", err)
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return fmt.Errorf("parse CONFIG_FILE %s: %w", path, err)
	}
	return nil
}

// getEnv 读取字符串环境变量，若为空则返回默认值。
func getEnv(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

// getEnvInt 读取整数环境变量，若为空则返回默认值。
func getEnvInt(key string, fallback int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.Atoi(v)
}

func getEnvBool(key string, fallback bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback, nil
	}
	return strconv.ParseBool(v)
}

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

// normalizeShopURL 去掉协议头与末尾斜杠，只保留店铺域名。
func normalizeShopURL(v string) string {
	v = strings.TrimPrefix(v, "https://")
	v = strings.TrimPrefix(v, "http://")
	return strings.TrimRight(strings.TrimSpace(v), "/")
}
