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
	Server    ServerConfig
	Redis     RedisConfig
	JWT       JWTConfig
	RateLimit RateLimitConfig
	Gateway   GatewayConfig
	Evaluator EvaluatorConfig
	Telegram  TelegramConfig
	Backtest  BacktestConfig
	Logging   LoggingConfig
}

type ServerConfig struct {
	Port      string
	Env       string
	ApiDomain string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration int // hours
}

type RateLimitConfig struct {
	RunPerMin    int
	BatchPerHour int
	QueryPerMin  int
}

type GatewayConfig struct {
	Enabled bool
}

type EvaluatorConfig struct {
	BaseURL string
	APIKey  string
	Timeout int // seconds
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
}

type BacktestConfig struct {
	MaxConcurrent   int
	MaxBatchSize    int
	CleanupAgeHours int
}

type LoggingConfig struct {
	Level   string
	Format  string // "json" or "text"
	File    string // empty means stdout only
	MaxSize int    // megabytes, per rotated file
	MaxAge  int    // days
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("JWT_SECRET")
	readSecret("EVALUATOR_API_KEY")
	readSecret("TELEGRAM_BOT_TOKEN")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.api_domain", "API_DOMAIN")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("jwt.secret", "JWT_SECRET")
	_ = viper.BindEnv("jwt.expiration", "JWT_EXPIRATION")
	_ = viper.BindEnv("gateway.enabled", "GATEWAY_ENABLED")
	_ = viper.BindEnv("evaluator.base_url", "EVALUATOR_BASE_URL")
	_ = viper.BindEnv("evaluator.api_key", "EVALUATOR_API_KEY")
	_ = viper.BindEnv("evaluator.timeout", "EVALUATOR_TIMEOUT")
	_ = viper.BindEnv("telegram.bot_token", "TELEGRAM_BOT_TOKEN")
	_ = viper.BindEnv("telegram.chat_id", "TELEGRAM_CHAT_ID")
	_ = viper.BindEnv("backtest.max_concurrent", "BACKTEST_MAX_CONCURRENT")
	_ = viper.BindEnv("backtest.max_batch_size", "BACKTEST_MAX_BATCH_SIZE")
	_ = viper.BindEnv("backtest.cleanup_age_hours", "BACKTEST_CLEANUP_AGE_HOURS")
	_ = viper.BindEnv("logging.level", "LOG_LEVEL")
	_ = viper.BindEnv("logging.format", "LOG_FORMAT")
	_ = viper.BindEnv("logging.file", "LOG_FILE")

	// Defaults
	viper.SetDefault("server.port", "8000")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("jwt.secret", "change-me-in-production")
	viper.SetDefault("jwt.expiration", 24)
	viper.SetDefault("ratelimit.run_per_min", 30)
	viper.SetDefault("ratelimit.batch_per_hour", 10)
	viper.SetDefault("ratelimit.query_per_min", 120)

	// Gateway defaults
	viper.SetDefault("gateway.enabled", false)

	// Evaluator engine defaults
	viper.SetDefault("evaluator.base_url", "http://localhost:8001")
	viper.SetDefault("evaluator.timeout", 300)

	// Batch execution defaults
	viper.SetDefault("backtest.max_concurrent", 5)
	viper.SetDefault("backtest.max_batch_size", 1000)
	viper.SetDefault("backtest.cleanup_age_hours", 24)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.max_size", 100)
	viper.SetDefault("logging.max_age", 7)

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:      viper.GetString("server.port"),
			Env:       viper.GetString("server.env"),
			ApiDomain: viper.GetString("server.api_domain"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		JWT: JWTConfig{
			Secret:     viper.GetString("jwt.secret"),
			Expiration: viper.GetInt("jwt.expiration"),
		},
		RateLimit: RateLimitConfig{
			RunPerMin:    viper.GetInt("ratelimit.run_per_min"),
			BatchPerHour: viper.GetInt("ratelimit.batch_per_hour"),
			QueryPerMin:  viper.GetInt("ratelimit.query_per_min"),
		},
		Gateway: GatewayConfig{
			Enabled: viper.GetBool("gateway.enabled"),
		},
		Evaluator: EvaluatorConfig{
			BaseURL: viper.GetString("evaluator.base_url"),
			APIKey:  viper.GetString("evaluator.api_key"),
			Timeout: viper.GetInt("evaluator.timeout"),
		},
		Telegram: TelegramConfig{
			BotToken: viper.GetString("telegram.bot_token"),
			ChatID:   viper.GetString("telegram.chat_id"),
		},
		Backtest: BacktestConfig{
			MaxConcurrent:   viper.GetInt("backtest.max_concurrent"),
			MaxBatchSize:    viper.GetInt("backtest.max_batch_size"),
			CleanupAgeHours: viper.GetInt("backtest.cleanup_age_hours"),
		},
		Logging: LoggingConfig{
			Level:   viper.GetString("logging.level"),
			Format:  viper.GetString("logging.format"),
			File:    viper.GetString("logging.file"),
			MaxSize: viper.GetInt("logging.max_size"),
			MaxAge:  viper.GetInt("logging.max_age"),
		},
	}

	return cfg, nil
}
