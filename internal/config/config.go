package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"
	// Availability windows must resolve their timezone on minimal images too.
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env         string            `mapstructure:"bridge_env"`
	PollSeconds int               `mapstructure:"poll_seconds"`
	DB          DBConfig          `mapstructure:"db"`
	GLPI        GLPIConfig        `mapstructure:"glpi"`
	Retell      RetellConfig      `mapstructure:"retell"`
	Diagnostics DiagnosticsConfig `mapstructure:"diagnostics"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	OnCall      OnCallConfig      `mapstructure:"oncall"`
	Log         LogConfig         `mapstructure:"log"`
	HTTP        HTTPConfig        `mapstructure:"http"`
	Redis       RedisConfig       `mapstructure:"redis"`
	OTel        OTelConfig        `mapstructure:"otel"`
}

type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	SSLMode  string `mapstructure:"sslmode"`
	// Path is only used by the sqlite driver.
	Path       string `mapstructure:"path"`
	BatchLimit int    `mapstructure:"batch_limit"`
}

type GLPIConfig struct {
	APIURL      string `mapstructure:"api_url"`
	UserToken   string `mapstructure:"user_token"`
	AppToken    string `mapstructure:"app_token"`
	Urgency     int    `mapstructure:"urgency"`
	Impact      int    `mapstructure:"impact"`
	RequestType int    `mapstructure:"request_type"`
}

type RetellConfig struct {
	APIKey     string `mapstructure:"api_key"`
	BaseURL    string `mapstructure:"base_url"`
	FromNumber string `mapstructure:"from_number"`
	AgentID    string `mapstructure:"agent_id"`
	DefaultCC  string `mapstructure:"default_cc"`
}

type DiagnosticsConfig struct {
	PingCount    int           `mapstructure:"ping_count"`
	PingTimeout  time.Duration `mapstructure:"ping_timeout"`
	TraceMaxHops int           `mapstructure:"trace_max_hops"`
	TraceTimeout time.Duration `mapstructure:"trace_timeout"`
	PortTimeout  time.Duration `mapstructure:"port_timeout"`
}

type PipelineConfig struct {
	Idempotent bool `mapstructure:"idempotent"`
}

type OnCallConfig struct {
	Timezone string `mapstructure:"timezone"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type HTTPConfig struct {
	Addr          string `mapstructure:"addr"`
	JWTSecret     string `mapstructure:"jwt_secret"`
	OperatorsPath string `mapstructure:"operators_path"`
}

type RedisConfig struct {
	URL      string        `mapstructure:"url"`
	LeaseKey string        `mapstructure:"lease_key"`
	LeaseTTL time.Duration `mapstructure:"lease_ttl"`
}

type OTelConfig struct {
	Endpoint    string `mapstructure:"endpoint"`
	Headers     string `mapstructure:"headers"`
	ServiceName string `mapstructure:"service_name"`
}

var ErrIncompleteGLPI = errors.New("incomplete GLPI config (GLPI_API_URL/GLPI_USER_TOKEN/GLPI_APP_TOKEN)")

// Load reads and validates configuration once at startup.
func Load() (Config, error) {
	cfg, err := Read()
	if err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Read loads configuration without validating it, for commands that only need the
// database. In development a .env file in the working directory is loaded first;
// real environment variables always win. An optional ticketbridge.yaml is read
// from ., ./configs or /etc/ticketbridge.
func Read() (Config, error) {
	if getenv("BRIDGE_ENV", "development") == "development" {
		_ = godotenv.Load()
	}

	v := viper.New()
	v.SetConfigName("ticketbridge")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/ticketbridge")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bridge_env", "development")
	v.SetDefault("poll_seconds", 10)

	v.SetDefault("db.driver", "mysql")
	v.SetDefault("db.host", "127.0.0.1")
	v.SetDefault("db.port", 3306)
	v.SetDefault("db.user", "glpi")
	v.SetDefault("db.password", "glpi")
	v.SetDefault("db.name", "epistech")
	v.SetDefault("db.sslmode", "disable")
	v.SetDefault("db.path", "ticketbridge.db")
	v.SetDefault("db.batch_limit", 0)

	v.SetDefault("glpi.api_url", "")
	v.SetDefault("glpi.user_token", "")
	v.SetDefault("glpi.app_token", "")
	v.SetDefault("glpi.urgency", 3)
	v.SetDefault("glpi.impact", 2)
	v.SetDefault("glpi.request_type", 2)

	v.SetDefault("retell.api_key", "")
	v.SetDefault("retell.base_url", "https://api.retellai.com/v2")
	v.SetDefault("retell.from_number", "")
	v.SetDefault("retell.agent_id", "")
	v.SetDefault("retell.default_cc", "+57")

	v.SetDefault("diagnostics.ping_count", 4)
	v.SetDefault("diagnostics.ping_timeout", 20*time.Second)
	v.SetDefault("diagnostics.trace_max_hops", 15)
	v.SetDefault("diagnostics.trace_timeout", 60*time.Second)
	v.SetDefault("diagnostics.port_timeout", 5*time.Second)

	v.SetDefault("pipeline.idempotent", true)
	v.SetDefault("oncall.timezone", "UTC")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("http.addr", "")
	v.SetDefault("http.jwt_secret", "")
	v.SetDefault("http.operators_path", "config/operators.yaml")

	v.SetDefault("redis.url", "")
	v.SetDefault("redis.lease_key", "ticketbridge:lease")
	v.SetDefault("redis.lease_ttl", 30*time.Second)

	v.SetDefault("otel.endpoint", "")
	v.SetDefault("otel.headers", "")
	v.SetDefault("otel.service_name", "ticketbridge")
}

func (c Config) Validate() error {
	if c.GLPI.APIURL == "" || c.GLPI.UserToken == "" || c.GLPI.AppToken == "" {
		return ErrIncompleteGLPI
	}
	if c.PollSeconds < 1 {
		return fmt.Errorf("poll_seconds must be >= 1, got %d", c.PollSeconds)
	}
	if c.HTTP.Enabled() && c.HTTP.JWTSecret == "" {
		return errors.New("http.jwt_secret is required when http.addr is set")
	}
	return nil
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Location resolves the availability-window timezone, falling back to UTC.
func (c OnCallConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil || c.Timezone == "" {
		return time.UTC
	}
	return loc
}

func (c RetellConfig) Enabled() bool {
	return c.APIKey != ""
}

func (c HTTPConfig) Enabled() bool {
	return c.Addr != ""
}

func (c RedisConfig) Enabled() bool {
	return c.URL != ""
}

func (c OTelConfig) Enabled() bool {
	return c.Endpoint != ""
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
