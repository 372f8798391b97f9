package conf

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// 配置加载（webhook密钥、交易所API密钥等）
// 敏感字段支持环境变量覆盖，启动时自动加载 .env

type WebhookConfig struct {
	Secret string `yaml:"secret"`
	// 时间戳新鲜度窗口，超出则判定为重放请求
	FreshnessWindow time.Duration `yaml:"freshness-window"`
	// 是否允许旧版发送端把密钥放在请求体的 secret 字段里
	AllowBodySecret bool `yaml:"allow-body-secret"`
}

type BinanceConfig struct {
	ApiKey    string `yaml:"apiKey"`
	SecretKey string `yaml:"secretKey"`
	Testnet   bool   `yaml:"testnet"`

	// 请求有效期，超过交易所会直接拒绝
	RecvWindowMs int64 `yaml:"recv-window-ms"`

	// ---- 限速与重试 ----
	RateLimit   float64       `yaml:"rate-limit"`   // 每秒请求预算
	RateBurst   int           `yaml:"rate-burst"`   // 突发额度
	MaxAttempts int           `yaml:"max-attempts"` // 瞬时故障的最大尝试次数
	RetryBase   time.Duration `yaml:"retry-base"`   // 退避基数，按 1x,2x,4x 递增

	// 不走真实交易所，用模拟执行器（本地联调）
	DryRun bool `yaml:"dry-run"`
}

type LedgerConfig struct {
	// memory / mysql / redis
	Backend string `yaml:"backend"`
	// 幂等记录保留时长，过期的终态记录会被清理
	Retention     time.Duration `yaml:"retention"`
	SweepInterval time.Duration `yaml:"sweep-interval"`
}

type Db struct {
	DbName   string `yaml:"dbname"`
	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// RedisConfig is used to configure redis
type RedisConfig struct {
	Addr         string `yaml:"address"`
	Password     string `yaml:"password"`
	Db           int    `yaml:"db"`
	PoolSize     int    `yaml:"pool-size"`
	MinIdleConns int    `yaml:"min-idle-conns"`
	IdleTimeout  int    `yaml:"idle-timeout"`
}

type LogConfig struct {
	Level      string `yaml:"level"`
	FileName   string `yaml:"file-name"`
	TimeFormat string `yaml:"time-format"`
	MaxSize    int    `yaml:"max-size"`
	MaxBackups int    `yaml:"max-backups"`
	MaxAge     int    `yaml:"max-age"`
	Compress   bool   `yaml:"compress"`
	LocalTime  bool   `yaml:"local-time"`
	Console    bool   `yaml:"console"`
}

type Config struct {
	AppName      string `yaml:"app_name"`
	Listen       string `yaml:"listen"`
	Mode         string `yaml:"mode"`
	MaxPingCount int    `yaml:"max-ping-count"`

	Webhook WebhookConfig `yaml:"webhook"`
	Binance BinanceConfig `yaml:"binance"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Db      `yaml:"database"`
	Redis   RedisConfig `yaml:"redis"`
	Log     LogConfig   `yaml:"log"`
}

var AppConfig Config

func LoadConfig(path string) error {
	// .env 不存在时静默跳过，直接读进程环境变量
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("Read config file error %w", err)
	}
	if err := yaml.Unmarshal(data, &AppConfig); err != nil {
		return fmt.Errorf("Unmarshal config yaml error: %w", err)
	}

	applyEnvOverrides(&AppConfig)
	applyDefaults(&AppConfig)
	return nil
}

// 环境变量优先级高于yaml，密钥一般只通过环境下发
func applyEnvOverrides(c *Config) {
	if v := os.Getenv("WEBHOOK_SECRET"); v != "" {
		c.Webhook.Secret = v
	}
	if v := os.Getenv("BINANCE_API_KEY"); v != "" {
		c.Binance.ApiKey = v
	}
	if v := os.Getenv("BINANCE_SECRET_KEY"); v != "" {
		c.Binance.SecretKey = v
	}
	if v := os.Getenv("BINANCE_TESTNET"); v != "" {
		c.Binance.Testnet = v == "true" || v == "1"
	}
	if v := os.Getenv("LISTEN"); v != "" {
		c.Listen = v
	}
}

func applyDefaults(c *Config) {
	if c.Listen == "" {
		c.Listen = ":8090"
	}
	if c.MaxPingCount == 0 {
		c.MaxPingCount = 10
	}
	if c.Webhook.FreshnessWindow == 0 {
		c.Webhook.FreshnessWindow = time.Minute
	}
	if c.Binance.RecvWindowMs == 0 {
		c.Binance.RecvWindowMs = 5000
	}
	if c.Binance.RateLimit == 0 {
		c.Binance.RateLimit = 8
	}
	if c.Binance.RateBurst == 0 {
		c.Binance.RateBurst = 4
	}
	if c.Binance.MaxAttempts == 0 {
		c.Binance.MaxAttempts = 5
	}
	if c.Binance.RetryBase == 0 {
		c.Binance.RetryBase = 500 * time.Millisecond
	}
	if c.Ledger.Backend == "" {
		c.Ledger.Backend = "memory"
	}
	if c.Ledger.Retention == 0 {
		c.Ledger.Retention = 24 * time.Hour
	}
	if c.Ledger.SweepInterval == 0 {
		c.Ledger.SweepInterval = 10 * time.Minute
	}
}
