package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"time"

	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/weather-snapshot-etl/internal/domain"
)

const (
	defaultWeatherBaseURL = "https://api.openweathermap.org/data/2.5/weather"
	defaultDBPort         = 3306
)

// Database holds MySQL connection settings. Host and port have defaults;
// name, user and password must be supplied before a connection is attempted.
type Database struct {
	Host     string
	Port     int
	Name     string
	User     string
	Password string
}

// Complete reports whether every setting needed to connect is present.
func (d Database) Complete() bool {
	return d.Host != "" && d.Name != "" && d.User != "" && d.Password != ""
}

// DSN renders the settings as a go-sql-driver/mysql data source name.
// Timestamps are parsed into time.Time in UTC.
func (d Database) DSN() string {
	c := mysqldriver.NewConfig()
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(d.Host, strconv.Itoa(d.Port))
	c.DBName = d.Name
	c.User = d.User
	c.Passwd = d.Password
	c.ParseTime = true
	c.Loc = time.UTC
	return c.FormatDSN()
}

// Config holds all service settings, populated from environment variables.
// It is built once at start-up and passed by value into constructors.
type Config struct {
	DB Database

	WeatherAPIKey           string
	WeatherBaseURL          string
	WeatherTimeout          time.Duration
	WeatherBreakerThreshold int
	PacingDelay             time.Duration
	Cities                  []domain.City

	// QualityChecksPath points at the quality-check SQL template. Empty means
	// the embedded default script.
	QualityChecksPath string
	MigrateOnStart    bool

	RunInterval time.Duration
	HTTPAddr    string

	// Snapshot notifications are disabled when KafkaBrokers is empty.
	KafkaBrokers       []string
	KafkaSnapshotTopic string

	LogLevel        string
	LogFormat       string
	LogFile         string
	ShutdownTimeout time.Duration
}

// Load reads an optional .env file, then configuration from environment
// variables, applying defaults where unset. Missing credentials are not an
// error here; the stage that needs them refuses to run.
func Load() (*Config, error) {
	// A missing .env file is the normal case in containers.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	shutdownTimeout, err := sharedcfg.ParseShutdownTimeout()
	if err != nil {
		return nil, err
	}

	dbPort, err := parsePort("DB_PORT", defaultDBPort)
	if err != nil {
		return nil, err
	}

	weatherTimeout, err := parsePositiveDuration("WEATHER_TIMEOUT", "10s")
	if err != nil {
		return nil, err
	}

	pacingDelay, err := parseDuration("PACING_DELAY", "1s")
	if err != nil {
		return nil, err
	}

	runInterval, err := parsePositiveDuration("RUN_INTERVAL", "1h")
	if err != nil {
		return nil, err
	}

	breakerThreshold, err := parseNonNegativeInt("WEATHER_BREAKER_THRESHOLD", 0)
	if err != nil {
		return nil, err
	}

	cities := domain.DefaultCities()
	if v := os.Getenv("TARGET_CITIES"); v != "" {
		cities, err = domain.ParseCities(v)
		if err != nil {
			return nil, fmt.Errorf("invalid TARGET_CITIES: %w", err)
		}
	}

	cfg := &Config{
		DB: Database{
			Host:     sharedcfg.EnvOrDefault("DB_HOST", "localhost"),
			Port:     dbPort,
			Name:     os.Getenv("DB_NAME"),
			User:     os.Getenv("DB_USER"),
			Password: os.Getenv("DB_PASSWORD"),
		},

		WeatherAPIKey:           os.Getenv("OPENWEATHERMAP_API_KEY"),
		WeatherBaseURL:          sharedcfg.EnvOrDefault("WEATHER_BASE_URL", defaultWeatherBaseURL),
		WeatherTimeout:          weatherTimeout,
		WeatherBreakerThreshold: breakerThreshold,
		PacingDelay:             pacingDelay,
		Cities:                  cities,

		QualityChecksPath: os.Getenv("QUALITY_CHECKS_PATH"),
		MigrateOnStart:    os.Getenv("DB_MIGRATE") == "true",

		RunInterval: runInterval,
		HTTPAddr:    sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),

		KafkaBrokers:       sharedcfg.ParseBrokers(os.Getenv("KAFKA_BROKERS")),
		KafkaSnapshotTopic: sharedcfg.EnvOrDefault("KAFKA_SNAPSHOT_TOPIC", "weather-snapshots"),

		LogLevel:        sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:       sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
		LogFile:         os.Getenv("LOG_FILE"),
		ShutdownTimeout: shutdownTimeout,
	}

	if len(cfg.KafkaBrokers) > 0 && cfg.KafkaSnapshotTopic == "" {
		return nil, errors.New("KAFKA_SNAPSHOT_TOPIC is required when KAFKA_BROKERS is set")
	}

	return cfg, nil
}

// NotificationsEnabled reports whether snapshot events should be published.
func (c *Config) NotificationsEnabled() bool {
	return len(c.KafkaBrokers) > 0
}

func parsePort(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 || n > 65535 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}

func parseDuration(key, def string) (time.Duration, error) {
	s := sharedcfg.EnvOrDefault(key, def)
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return d, nil
}

func parsePositiveDuration(key, def string) (time.Duration, error) {
	d, err := parseDuration(key, def)
	if err != nil {
		return 0, err
	}
	if d == 0 {
		return 0, fmt.Errorf("invalid %s: must be greater than zero", key)
	}
	return d, nil
}

func parseNonNegativeInt(key string, def int) (int, error) {
	s := os.Getenv(key)
	if s == "" {
		return def, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, s)
	}
	return n, nil
}
