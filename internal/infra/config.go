package infra

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/xela07ax/rootgw/internal/actions"
)

// Config - корневая структура конфигурации шлюза и консоли.
type Config struct {
	Server   ServerConfig    `mapstructure:"server"`
	Database DatabaseConfig  `mapstructure:"database"`
	SQLite   SQLiteConfig    `mapstructure:"sqlite"`
	Redis    RedisConfig     `mapstructure:"redis"`
	Auth     AuthConfig      `mapstructure:"auth"`
	Engine   EngineConfig    `mapstructure:"engine"`
	Targets  actions.Targets `mapstructure:"targets"`
	Logger   LoggerConfig    `mapstructure:"logger"`
}

// ServerConfig описывает слушатели шлюза.
type ServerConfig struct {
	HTTPAddr     string        `mapstructure:"http_addr"`   // TCP, удаленный агент (JWT)
	UnixSocket   string        `mapstructure:"unix_socket"` // локальный агент, без токена
	GRPCAddr     string        `mapstructure:"grpc_addr"`
	MetricsAddr  string        `mapstructure:"metrics_addr"`
	ConsoleAddr  string        `mapstructure:"console_addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// DatabaseConfig описывает подключение к PostgreSQL.
type DatabaseConfig struct {
	URL      string `mapstructure:"url"`
	MaxConns int32  `mapstructure:"max_conns"`
	MinConns int32  `mapstructure:"min_conns"`
}

// SQLiteConfig - журнал на устройстве, если Postgres не настроен.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig описывает подключение к Redis (флаги и HITL).
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// AuthConfig содержит пути к RSA ключам и настройки JWT.
type AuthConfig struct {
	PublicKeyPath  string        `mapstructure:"public_key_path"`
	PrivateKeyPath string        `mapstructure:"private_key_path"` // Только для Console API
	TokenTTL       time.Duration `mapstructure:"token_ttl"`
	BcryptCost     int           `mapstructure:"bcrypt_cost"`
	PublicKey      []byte
	PrivateKey     []byte
}

// EngineConfig - настройки пайплайна и привилегированной сессии.
type EngineConfig struct {
	Backend        string        `mapstructure:"backend"` // su, sudo, direct
	ExecTimeout    time.Duration `mapstructure:"exec_timeout"`
	ProbeTimeout   time.Duration `mapstructure:"probe_timeout"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
	ExtraDenylist  []string      `mapstructure:"extra_denylist"`

	// Флаги, которыми засевается пустой Redis
	DefaultFlags map[string]bool `mapstructure:"default_flags"`

	AuditCapacity      int           `mapstructure:"audit_capacity"`
	AuditBufferSize    int           `mapstructure:"audit_buffer_size"`
	AuditFlushInterval time.Duration `mapstructure:"audit_flush_interval"`

	RateLimit float64 `mapstructure:"rate_limit"` // исполнений в секунду
	RateBurst int     `mapstructure:"rate_burst"`

	// Настройки Circuit Breaker вокруг механизма повышения прав
	CBMaxRequests      uint32        `mapstructure:"cb_max_requests"`
	CBInterval         time.Duration `mapstructure:"cb_interval"`
	CBTimeout          time.Duration `mapstructure:"cb_timeout"`
	CBFailureThreshold uint32        `mapstructure:"cb_failure_threshold"`
}

// LoggerConfig настраивает поведение zap логгера.
type LoggerConfig struct {
	Level  string `mapstructure:"level"`  // debug, info, warn, error
	Format string `mapstructure:"format"` // json, console, auto
}

// LoadConfig инициализирует конфигурацию, объединяя значения из файла и ENV.
func LoadConfig() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")

	// SERVER_HTTP_ADDR=:9000 перекроет server.http_addr
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Если файла нет - работаем на ENV и дефолтах
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Сначала проверяем, не лежит ли сам PEM-ключ в ENV (для Docker/K8s)
	cfg.Auth.PublicKey = loadKeyResource(cfg.Auth.PublicKeyPath, "AUTH_PUBLIC_KEY_DATA")
	cfg.Auth.PrivateKey = loadKeyResource(cfg.Auth.PrivateKeyPath, "AUTH_PRIVATE_KEY_DATA")

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("server.unix_socket", "/data/local/tmp/rootgw.sock")
	v.SetDefault("server.grpc_addr", ":50052")
	v.SetDefault("server.metrics_addr", ":9090")
	v.SetDefault("server.console_addr", ":8081")
	v.SetDefault("server.read_timeout", 5*time.Second)
	v.SetDefault("server.write_timeout", 6*time.Minute) // ожидание оператора укладывается в ответ

	v.SetDefault("database.max_conns", 15)
	v.SetDefault("database.min_conns", 5)
	v.SetDefault("sqlite.path", "rootgw-audit.db")
	v.SetDefault("redis.addr", "localhost:6379")

	v.SetDefault("auth.token_ttl", 1*time.Hour)
	v.SetDefault("auth.bcrypt_cost", 12)

	v.SetDefault("engine.backend", "su")
	v.SetDefault("engine.exec_timeout", 15*time.Second)
	v.SetDefault("engine.probe_timeout", 20*time.Second) // на Android ждем диалог менеджера root
	v.SetDefault("engine.confirm_timeout", 5*time.Minute)
	v.SetDefault("engine.default_flags", map[string]bool{"local_ai_control": true, "cloud_ai_control": false})
	v.SetDefault("engine.audit_capacity", 100)
	v.SetDefault("engine.audit_buffer_size", 1000)
	v.SetDefault("engine.audit_flush_interval", 1*time.Second)
	v.SetDefault("engine.rate_limit", 5.0)
	v.SetDefault("engine.rate_burst", 5)
	v.SetDefault("engine.cb_max_requests", 1)
	v.SetDefault("engine.cb_interval", 60*time.Second)
	v.SetDefault("engine.cb_timeout", 30*time.Second)
	v.SetDefault("engine.cb_failure_threshold", 5)

	d := actions.DefaultTargets()
	v.SetDefault("targets.read_paths", d.ReadPaths)
	v.SetDefault("targets.read_properties", d.ReadProperties)
	v.SetDefault("targets.write_properties", d.WriteProperties)

	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "auto")
}

// loadKeyResource - ключ из ENV (PEM) или из файла по пути из конфига.
func loadKeyResource(path string, envDataKey string) []byte {
	if data := os.Getenv(envDataKey); data != "" {
		return []byte(data)
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err == nil {
			return data
		}
	}
	return nil
}
