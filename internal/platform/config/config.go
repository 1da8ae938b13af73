package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // mysql | sqlite
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	Path     string `yaml:"path"` // sqlite only
}

type Certs struct {
	Cert string `yaml:"cert"`
	Key  string `yaml:"key"`
}

type ServerConfig struct {
	Addr           string   `yaml:"addr"`
	AllowedOrigins []string `yaml:"allowed_origins"`
	Certificate    Certs    `yaml:"certificate"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type AlertsConfig struct {
	LowStockThreshold int    `yaml:"low_stock_threshold"`
	SweepThresholds   []int  `yaml:"sweep_thresholds"`
	LowStockCron      string `yaml:"low_stock_cron"`
	OverdueCron       string `yaml:"overdue_cron"`
}

type MailConfig struct {
	AdminEmail string `yaml:"admin_email"`
	From       string `yaml:"from"`
}

type RabbitConfig struct {
	URL       string `yaml:"url"`
	Exchange  string `yaml:"exchange"`
	MailQueue string `yaml:"mail_queue"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json | text
}

type ReturnsConfig struct {
	// StrictBalance checks a return against what is still outstanding on the
	// release instead of the originally released quantity.
	StrictBalance bool `yaml:"strict_balance"`
}

type Config struct {
	Version  string         `yaml:"version"`
	Mode     string         `yaml:"mode"`
	Server   ServerConfig   `yaml:"server"`
	DB       DatabaseConfig `yaml:"database"`
	Auth     AuthConfig     `yaml:"auth"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Mail     MailConfig     `yaml:"mail"`
	RabbitMQ RabbitConfig   `yaml:"rabbitmq"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      LogConfig      `yaml:"log"`
	Returns  ReturnsConfig  `yaml:"returns"`
}

// Default is the configuration used for anything the file leaves out.
func Default() Config {
	return Config{
		Version: "1",
		Mode:    "dev",
		Server: ServerConfig{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:5173"},
		},
		DB: DatabaseConfig{
			Driver: "sqlite",
			Path:   "storeroom.sqlite3",
			Port:   3306,
		},
		Auth: AuthConfig{TokenTTL: 24 * time.Hour},
		Alerts: AlertsConfig{
			LowStockThreshold: 20,
			SweepThresholds:   []int{20, 10, 5},
			LowStockCron:      "0 1 * * *",
			OverdueCron:       "0 2 * * *",
		},
		Mail: MailConfig{From: "storeroom@localhost"},
		RabbitMQ: RabbitConfig{
			Exchange:  "storeroom.events",
			MailQueue: "storeroom.mail",
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads .env (if present), the YAML file at path, then applies
// STOREROOM_* environment overrides. A missing file is not an error; the
// defaults plus environment are enough to run in dev mode.
func Load(path string) (*Config, error) {
	_ = godotenv.Load()

	cfg := Default()
	buf, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(buf, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) {
	str := func(key string, dst *string) {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	str("STOREROOM_MODE", &cfg.Mode)
	str("STOREROOM_ADDR", &cfg.Server.Addr)
	str("STOREROOM_DB_DRIVER", &cfg.DB.Driver)
	str("STOREROOM_DB_HOST", &cfg.DB.Host)
	str("STOREROOM_DB_USER", &cfg.DB.Username)
	str("STOREROOM_DB_PASSWORD", &cfg.DB.Password)
	str("STOREROOM_DB_NAME", &cfg.DB.DBName)
	str("STOREROOM_DB_PATH", &cfg.DB.Path)
	str("STOREROOM_JWT_SECRET", &cfg.Auth.JWTSecret)
	str("STOREROOM_ADMIN_EMAIL", &cfg.Mail.AdminEmail)
	str("STOREROOM_RABBITMQ_URL", &cfg.RabbitMQ.URL)
	str("STOREROOM_REDIS_ADDR", &cfg.Redis.Addr)
	str("STOREROOM_REDIS_PASSWORD", &cfg.Redis.Password)
	str("STOREROOM_LOG_LEVEL", &cfg.Log.Level)

	if v := os.Getenv("STOREROOM_DB_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.DB.Port = p
		}
	}
	if v := os.Getenv("STOREROOM_LOW_STOCK_THRESHOLD"); v != "" {
		if t, err := strconv.Atoi(v); err == nil {
			cfg.Alerts.LowStockThreshold = t
		}
	}
	if v := os.Getenv("STOREROOM_ALLOWED_ORIGINS"); v != "" {
		cfg.Server.AllowedOrigins = strings.Split(v, ",")
	}
}

// devJWTSecret signs tokens in dev mode when no secret is configured.
// Validate refuses to start release mode without one.
const devJWTSecret = "storeroom-dev-secret"

func (c *Config) JWTKey() []byte {
	if c.Auth.JWTSecret == "" {
		return []byte(devJWTSecret)
	}
	return []byte(c.Auth.JWTSecret)
}

func (c *Config) Validate() error {
	if c.Mode != "dev" && c.Mode != "release" {
		return fmt.Errorf("config: mode must be dev or release, got %q", c.Mode)
	}
	switch c.DB.Driver {
	case "mysql":
		if c.DB.Host == "" || c.DB.DBName == "" {
			return fmt.Errorf("config: database.host and database.dbname are required for mysql")
		}
	case "sqlite":
		if c.DB.Path == "" {
			return fmt.Errorf("config: database.path is required for sqlite")
		}
	default:
		return fmt.Errorf("config: unknown database.driver %q", c.DB.Driver)
	}
	if c.Mode == "release" && c.Auth.JWTSecret == "" {
		return fmt.Errorf("config: auth.jwt_secret (or STOREROOM_JWT_SECRET) is required in release mode")
	}
	if c.Alerts.LowStockThreshold <= 0 {
		return fmt.Errorf("config: alerts.low_stock_threshold must be > 0")
	}
	for _, t := range c.Alerts.SweepThresholds {
		if t <= 0 {
			return fmt.Errorf("config: alerts.sweep_thresholds must be positive, got %d", t)
		}
	}
	return nil
}
