package config

import (
	"fmt"
	"strings"

	"github.com/lingbai-i/springcloud-mall-system-sub001/internal/logger"

	"github.com/spf13/viper"
)

// Config 应用配置结构
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Payment   PaymentConfig   `mapstructure:"payment"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Reconcile ReconcileConfig `mapstructure:"reconcile"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Captcha   CaptchaConfig   `mapstructure:"captcha"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// CORSConfig 跨域配置
type CORSConfig struct {
	AllowedOrigins   []string `mapstructure:"allowed_origins"`
	AllowedMethods   []string `mapstructure:"allowed_methods"`
	AllowedHeaders   []string `mapstructure:"allowed_headers"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
	MaxAge           int      `mapstructure:"max_age"`
}

// RateLimitConfig 频率限制配置
type RateLimitConfig struct {
	WindowSeconds int `mapstructure:"window_seconds"`
	MaxAttempts   int `mapstructure:"max_attempts"`
}

// SecurityConfig 接口安全配置
type SecurityConfig struct {
	LoginRateLimit    RateLimitConfig `mapstructure:"login_rate_limit"`
	CallbackRateLimit RateLimitConfig `mapstructure:"callback_rate_limit"`
}

// ServerConfig 服务器配置
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug / release
}

// LogConfig 日志配置
type LogConfig struct {
	Dir        string `mapstructure:"dir"`
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

// ToLoggerOptions 转换为 logger 配置
func (c LogConfig) ToLoggerOptions() logger.Options {
	return logger.Options{
		Dir:        c.Dir,
		Filename:   c.Filename,
		MaxSizeMB:  c.MaxSizeMB,
		MaxBackups: c.MaxBackups,
		MaxAgeDays: c.MaxAgeDays,
		Compress:   c.Compress,
	}
}

// DatabasePoolConfig 数据库连接池配置
type DatabasePoolConfig struct {
	MaxOpenConns           int `mapstructure:"max_open_conns"`
	MaxIdleConns           int `mapstructure:"max_idle_conns"`
	ConnMaxLifetimeSeconds int `mapstructure:"conn_max_lifetime_seconds"`
	ConnMaxIdleTimeSeconds int `mapstructure:"conn_max_idle_time_seconds"`
}

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Driver string             `mapstructure:"driver"` // 数据库驱动（sqlite/postgres）
	DSN    string             `mapstructure:"dsn"`    // 数据库连接串
	Pool   DatabasePoolConfig `mapstructure:"pool"`
}

// JWTConfig 操作员令牌配置
type JWTConfig struct {
	SecretKey   string `mapstructure:"secret"`
	ExpireHours int    `mapstructure:"expire_hours"`
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

// QueueConfig 异步队列配置
type QueueConfig struct {
	Enabled     bool           `mapstructure:"enabled"`
	Host        string         `mapstructure:"host"`
	Port        int            `mapstructure:"port"`
	Password    string         `mapstructure:"password"`
	DB          int            `mapstructure:"db"`
	Concurrency int            `mapstructure:"concurrency"`
	Queues      map[string]int `mapstructure:"queues"`
}

// PaymentConfig 支付引擎配置
type PaymentConfig struct {
	ExpireMinutes       int     `mapstructure:"expire_minutes"`        // 支付订单有效期
	MaxRetry            int     `mapstructure:"max_retry"`             // 失败重试上限
	AmountTolerance     string  `mapstructure:"amount_tolerance"`      // 回调金额允许偏差（十进制字符串）
	SyncCutoffHours     int     `mapstructure:"sync_cutoff_hours"`     // 主动对账回溯窗口
	RetryCutoffHours    int     `mapstructure:"retry_cutoff_hours"`    // 失败重试回溯窗口
	RetentionDays       int     `mapstructure:"retention_days"`        // 终态订单保留天数
	RetryBackoffSeconds int     `mapstructure:"retry_backoff_seconds"` // 重试退避基数
	DefaultFeePercent   float64 `mapstructure:"default_fee_percent"`   // 渠道未配置费率时的兜底费率
}

// RiskConfig 风控配置
type RiskConfig struct {
	FailClosed           bool   `mapstructure:"fail_closed"`            // 风控数据层不可用时转人工
	ReviewTimeoutHours   int    `mapstructure:"review_timeout_hours"`   // 人工审核超时
	DefaultWindowSeconds int    `mapstructure:"default_window_seconds"` // 规则未配置窗口时的默认窗口
	AutoApproveAmount    string `mapstructure:"auto_approve_amount"`    // 退款免审金额上限
}

// ReconcileConfig 对账调度配置
type ReconcileConfig struct {
	ExpireIntervalSeconds int `mapstructure:"expire_interval_seconds"` // 过期扫描间隔
	RetryIntervalSeconds  int `mapstructure:"retry_interval_seconds"`  // 失败重试扫描间隔
	SyncIntervalSeconds   int `mapstructure:"sync_interval_seconds"`   // 渠道状态同步间隔
	ReviewIntervalSeconds int `mapstructure:"review_interval_seconds"` // 审核超时扫描间隔
}

// NotifyConfig 业务方通知配置
type NotifyConfig struct {
	BusinessOrderBaseURL string `mapstructure:"business_order_base_url"` // 业务订单服务地址，空则跳过校验与通知
	TimeoutMS            int    `mapstructure:"timeout_ms"`
}

// CaptchaConfig 操作员登录验证码配置
type CaptchaConfig struct {
	Enabled       bool `mapstructure:"enabled"`
	Length        int  `mapstructure:"length"`
	Width         int  `mapstructure:"width"`
	Height        int  `mapstructure:"height"`
	NoiseCount    int  `mapstructure:"noise_count"`
	ShowLine      int  `mapstructure:"show_line"`
	ExpireSeconds int  `mapstructure:"expire_seconds"`
	MaxStore      int  `mapstructure:"max_store"`
}

// Load 从 config.yml 加载配置
func Load() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")     // 从当前目录查找
	viper.AddConfigPath("./")    // 备用路径
	viper.AddConfigPath("../")   // 如果从 cmd/server 运行
	viper.AddConfigPath("./etc") // etc 文件夹

	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("log.dir", "")
	viper.SetDefault("log.filename", "app.log")
	viper.SetDefault("log.max_size_mb", 100)
	viper.SetDefault("log.max_backups", 7)
	viper.SetDefault("log.max_age_days", 30)
	viper.SetDefault("log.compress", true)
	viper.SetDefault("database.driver", "sqlite")
	viper.SetDefault("database.dsn", "./db/payeng.db")
	viper.SetDefault("database.pool.max_open_conns", 1)
	viper.SetDefault("database.pool.max_idle_conns", 1)
	viper.SetDefault("database.pool.conn_max_lifetime_seconds", 0)
	viper.SetDefault("database.pool.conn_max_idle_time_seconds", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expire_hours", 24)
	viper.SetDefault("redis.enabled", true)
	viper.SetDefault("redis.host", "127.0.0.1")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.prefix", "payeng")
	viper.SetDefault("queue.enabled", true)
	viper.SetDefault("queue.host", "127.0.0.1")
	viper.SetDefault("queue.port", 6379)
	viper.SetDefault("queue.password", "")
	viper.SetDefault("queue.db", 1)
	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.queues", map[string]int{
		"default":  10,
		"critical": 5,
	})
	viper.SetDefault("payment.expire_minutes", 30)
	viper.SetDefault("payment.max_retry", 3)
	viper.SetDefault("payment.amount_tolerance", "0.00")
	viper.SetDefault("payment.sync_cutoff_hours", 48)
	viper.SetDefault("payment.retry_cutoff_hours", 24)
	viper.SetDefault("payment.retention_days", 90)
	viper.SetDefault("payment.retry_backoff_seconds", 60)
	viper.SetDefault("payment.default_fee_percent", 0.6)
	viper.SetDefault("risk.fail_closed", true)
	viper.SetDefault("risk.review_timeout_hours", 24)
	viper.SetDefault("risk.default_window_seconds", 3600)
	viper.SetDefault("risk.auto_approve_amount", "100.00")
	viper.SetDefault("reconcile.expire_interval_seconds", 300)
	viper.SetDefault("reconcile.retry_interval_seconds", 600)
	viper.SetDefault("reconcile.sync_interval_seconds", 3600)
	viper.SetDefault("reconcile.review_interval_seconds", 1800)
	viper.SetDefault("notify.business_order_base_url", "")
	viper.SetDefault("notify.timeout_ms", 5000)
	viper.SetDefault("captcha.enabled", false)
	viper.SetDefault("captcha.length", 5)
	viper.SetDefault("captcha.width", 240)
	viper.SetDefault("captcha.height", 80)
	viper.SetDefault("captcha.noise_count", 2)
	viper.SetDefault("captcha.show_line", 2)
	viper.SetDefault("captcha.expire_seconds", 300)
	viper.SetDefault("captcha.max_store", 10240)
	viper.SetDefault("cors.allowed_origins", []string{"*"})
	viper.SetDefault("cors.allow_credentials", false)
	viper.SetDefault("cors.max_age", 3600)
	viper.SetDefault("security.login_rate_limit.window_seconds", 60)
	viper.SetDefault("security.login_rate_limit.max_attempts", 5)
	viper.SetDefault("security.callback_rate_limit.window_seconds", 1)
	viper.SetDefault("security.callback_rate_limit.max_attempts", 100)

	// 环境变量支持
	viper.AutomaticEnv()                                   // 自动读取环境变量
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_")) // 将 . 替换为 _ (例如 server.port -> SERVER_PORT)

	// 读取配置文件
	if err := viper.ReadInConfig(); err != nil {
		logger.Warnw("config_file_read_failed",
			"error", err,
			"fallback", "env_or_defaults",
		)
	} else {
		logger.Infow("config_file_loaded", "file", viper.ConfigFileUsed())
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		logger.Errorw("config_unmarshal_failed", "error", err)
		panic(fmt.Errorf("配置解析失败: %w", err))
	}

	return &cfg
}
