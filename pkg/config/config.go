// Package config loads the service configuration: embedded defaults, then an
// optional TOML file, then environment variables (a .env file is honored).
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

//go:embed config.example.toml
var exampleConf []byte

// FileEnv names the variable holding the path of the TOML config file.
const FileEnv = "CITYINFO_CONFIG"

type Config struct {
	Server        ServerConfig        `toml:"server"`
	Database      DatabaseConfig      `toml:"database"`
	Auth          AuthConfig          `toml:"auth"`
	Mail          MailConfig          `toml:"mail"`
	Observability ObservabilityConfig `toml:"observability"`
}

type ServerConfig struct {
	Host               string        `toml:"host"`
	Port               int           `toml:"port"`
	MaxCitiesPageSize  int           `toml:"max_cities_page_size"`
	RateLimitPerSecond float64       `toml:"rate_limit_per_second"`
	RateLimitBurst     int           `toml:"rate_limit_burst"`
	ReadTimeout        time.Duration `toml:"read_timeout"`
	WriteTimeout       time.Duration `toml:"write_timeout"`
	ShutdownTimeout    time.Duration `toml:"shutdown_timeout"`
	CORSAllowedOrigins []string      `toml:"cors_allowed_origins"`
}

func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

type DatabaseConfig struct {
	// URL wins over the discrete fields when set.
	URL           string `toml:"url"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	Name          string `toml:"name"`
	SSLMode       string `toml:"ssl_mode"`
	MaxConns      int32  `toml:"max_conns"`
	MinConns      int32  `toml:"min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

// DSN renders the connection string understood by pgx.
func (d DatabaseConfig) DSN() string {
	if d.URL != "" {
		return d.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(d.User, d.Password),
		Host:   net.JoinHostPort(d.Host, strconv.Itoa(d.Port)),
		Path:   "/" + d.Name,
	}
	if d.SSLMode != "" {
		u.RawQuery = url.Values{"sslmode": {d.SSLMode}}.Encode()
	}
	return u.String()
}

type AuthConfig struct {
	JWTSecret string `toml:"jwt_secret"`
	Issuer    string `toml:"issuer"`
	Audience  string `toml:"audience"`
	// PolicyClaim and PolicyValue gate the points of interest routes.
	PolicyClaim     string `toml:"policy_claim"`
	PolicyValue     string `toml:"policy_value"`
	StrictCityMatch bool   `toml:"strict_city_match"`
}

type MailConfig struct {
	// Transport is "local" (log only) or "amqp".
	Transport  string `toml:"transport"`
	From       string `toml:"from"`
	To         string `toml:"to"`
	AMQPURL    string `toml:"amqp_url"`
	Exchange   string `toml:"exchange"`
	RoutingKey string `toml:"routing_key"`
}

type ObservabilityConfig struct {
	ServiceName    string `toml:"service_name"`
	LogLevel       string `toml:"log_level"`
	LogFormat      string `toml:"log_format"`
	MetricsEnabled bool   `toml:"metrics_enabled"`
}

// Default returns the configuration embedded in the binary.
func Default() *Config {
	var cfg Config
	if err := toml.Unmarshal(exampleConf, &cfg); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &cfg
}

// Load builds the configuration. path may be empty, in which case FileEnv is
// consulted.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = os.Getenv(FileEnv)
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	if err := applyEnv(cfg, os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.MaxCitiesPageSize < 1 {
		errs = append(errs, errors.New("server.max_cities_page_size must be positive"))
	}
	switch c.Mail.Transport {
	case "local":
	case "amqp":
		if c.Mail.AMQPURL == "" {
			errs = append(errs, errors.New("mail.amqp_url is required for the amqp transport"))
		}
	default:
		errs = append(errs, fmt.Errorf("mail.transport %q must be local or amqp", c.Mail.Transport))
	}
	switch strings.ToLower(c.Observability.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("observability.log_format %q must be text or json", c.Observability.LogFormat))
	}
	return errors.Join(errs...)
}

type lookupFunc func(string) (string, bool)

// applyEnv overlays environment variables onto cfg.
func applyEnv(cfg *Config, lookup lookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok {
			*dst = v
		}
	}

	var errs []error
	num := func(key string, set func(int64)) {
		if v, ok := lookup(key); ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			set(n)
		}
	}
	flag := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", key, err))
				return
			}
			*dst = b
		}
	}

	str("CITYINFO_HOST", &cfg.Server.Host)
	num("CITYINFO_PORT", func(n int64) { cfg.Server.Port = int(n) })
	num("CITYINFO_MAX_CITIES_PAGE_SIZE", func(n int64) { cfg.Server.MaxCitiesPageSize = int(n) })

	str("DATABASE_URL", &cfg.Database.URL)
	str("DB_HOST", &cfg.Database.Host)
	num("DB_PORT", func(n int64) { cfg.Database.Port = int(n) })
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Password)
	str("DB_NAME", &cfg.Database.Name)
	str("DB_SSLMODE", &cfg.Database.SSLMode)
	flag("DB_RUN_MIGRATIONS", &cfg.Database.RunMigrations)

	str("JWT_SECRET", &cfg.Auth.JWTSecret)
	str("JWT_ISSUER", &cfg.Auth.Issuer)
	str("JWT_AUDIENCE", &cfg.Auth.Audience)
	flag("CITYINFO_STRICT_CITY_MATCH", &cfg.Auth.StrictCityMatch)

	str("MAIL_TRANSPORT", &cfg.Mail.Transport)
	str("MAIL_FROM", &cfg.Mail.From)
	str("MAIL_TO", &cfg.Mail.To)
	str("AMQP_URL", &cfg.Mail.AMQPURL)

	str("LOG_LEVEL", &cfg.Observability.LogLevel)
	str("LOG_FORMAT", &cfg.Observability.LogFormat)
	flag("METRICS_ENABLED", &cfg.Observability.MetricsEnabled)

	return errors.Join(errs...)
}
