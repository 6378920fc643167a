package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Database configuration
	Database DatabaseConfig

	// Blog display and search settings
	Blog BlogConfig

	// Comment moderation policy
	Moderation ModerationConfig

	// Background notification jobs
	Notification NotificationConfig

	// Outgoing mail transport
	Mail MailConfig

	// Bearer token verification
	Auth AuthConfig

	// Featured image storage
	Storage StorageConfig

	// Allowed browser origins
	CORS CORSConfig

	// Logging configuration
	Log LogConfig
}

// ServerConfig holds HTTP server settings
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	Host           string
	Port           string
	User           string
	Password       string
	Name           string
	SSLMode        string
	MaxOpenConns   int
	MaxIdleConns   int
	MaxLifetime    time.Duration
	MigrationsPath string
}

// BlogConfig holds listing and search settings
type BlogConfig struct {
	PostsPerPage     int
	SearchMinLength  int
	SearchMaxResults int
	SiteBaseURL      string
}

// ModerationConfig holds the comment moderation policy. When Enabled is
// true every new comment starts out pending.
type ModerationConfig struct {
	Enabled          bool
	CommentMinLength int
	CommentMaxLength int
}

// NotificationConfig holds job runner settings for comment notifications
type NotificationConfig struct {
	MaxAttempts  int
	RetryDelay   time.Duration
	PollInterval time.Duration
	Workers      int
}

// MailConfig holds SMTP settings. The transport is disabled unless all of
// host, port and from are set.
type MailConfig struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// AuthConfig holds JWT verification settings. OperatorIDs lists the user
// IDs allowed to inspect background jobs.
type AuthConfig struct {
	JWTSecret   string
	Issuer      string
	OperatorIDs []string
}

// StorageConfig holds featured image storage settings
type StorageConfig struct {
	FeaturedImageDir string
}

// CORSConfig holds cross-origin settings
type CORSConfig struct {
	AllowedOrigins []string
}

// LogConfig holds logging settings
type LogConfig struct {
	Level  string
	Format string // "json" or "pretty"
}

// Load reads configuration from the environment. Values from a .env file in
// the working directory are loaded first when present.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:            getEnv("PORT", "8080"),
			ReadTimeout:     getDurationEnv("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationEnv("SERVER_WRITE_TIMEOUT", 30*time.Second),
			ShutdownTimeout: getDurationEnv("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:           getEnv("DB_HOST", "localhost"),
			Port:           getEnv("DB_PORT", "5432"),
			User:           getEnv("DB_USER", "postgres"),
			Password:       getEnv("DB_PASSWORD", "postgres"),
			Name:           getEnv("DB_NAME", "blog"),
			SSLMode:        getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:   getIntEnv("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:   getIntEnv("DB_MAX_IDLE_CONNS", 5),
			MaxLifetime:    getDurationEnv("DB_MAX_LIFETIME", 5*time.Minute),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "./migrations"),
		},
		Blog: BlogConfig{
			PostsPerPage:     getIntEnv("BLOG_POSTS_PER_PAGE", 10),
			SearchMinLength:  getIntEnv("BLOG_SEARCH_MIN_LENGTH", 3),
			SearchMaxResults: getIntEnv("BLOG_SEARCH_MAX_RESULTS", 50),
			SiteBaseURL:      strings.TrimRight(getEnv("SITE_BASE_URL", "http://localhost:8080"), "/"),
		},
		Moderation: ModerationConfig{
			Enabled:          getBoolEnv("BLOG_COMMENT_MODERATION", true),
			CommentMinLength: getIntEnv("COMMENT_MIN_LENGTH", 3),
			CommentMaxLength: getIntEnv("COMMENT_MAX_LENGTH", 1000),
		},
		Notification: NotificationConfig{
			MaxAttempts:  getIntEnv("NOTIFY_MAX_ATTEMPTS", 3),
			RetryDelay:   getDurationEnv("NOTIFY_RETRY_DELAY", 60*time.Second),
			PollInterval: getDurationEnv("JOB_POLL_INTERVAL", 2*time.Second),
			Workers:      getIntEnv("JOB_WORKERS", 0),
		},
		Mail: MailConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USER", ""),
			Password: getEnv("SMTP_PASS", ""),
			From:     getEnv("SMTP_FROM", ""),
			FromName: getEnv("MAIL_FROM_NAME", "Blog"),
		},
		Auth: AuthConfig{
			JWTSecret:   getEnv("JWT_SECRET", ""),
			Issuer:      getEnv("JWT_ISSUER", ""),
			OperatorIDs: getListEnv("OPERATOR_USER_IDS", nil),
		},
		Storage: StorageConfig{
			FeaturedImageDir: getEnv("FEATURED_IMAGE_DIR", "./data/featured-images"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getListEnv("CORS_ALLOWED_ORIGINS", []string{"http://localhost:3000"}),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	// Validate required configuration
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("DB_HOST is required")
	}
	if c.Database.Name == "" {
		return fmt.Errorf("DB_NAME is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.Moderation.CommentMinLength < 1 {
		return fmt.Errorf("COMMENT_MIN_LENGTH must be at least 1")
	}
	if c.Moderation.CommentMaxLength < c.Moderation.CommentMinLength {
		return fmt.Errorf("COMMENT_MAX_LENGTH must not be below COMMENT_MIN_LENGTH")
	}
	if c.Notification.MaxAttempts < 1 {
		return fmt.Errorf("NOTIFY_MAX_ATTEMPTS must be at least 1")
	}
	if c.Blog.PostsPerPage < 1 {
		return fmt.Errorf("BLOG_POSTS_PER_PAGE must be at least 1")
	}
	return nil
}

// GetDSN returns the PostgreSQL connection string
func (c *DatabaseConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

// Enabled reports whether enough SMTP settings are present to send mail
func (c *MailConfig) Enabled() bool {
	return c.Host != "" && c.Port != "" && c.From != ""
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	if len(items) == 0 {
		return defaultValue
	}
	return items
}
