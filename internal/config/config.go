package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds runtime configuration for the evalsync client and the development server.
type Config struct {
	AppName       string
	AppEnv        string
	APIBaseURL    string
	PollInterval  time.Duration
	HTTPTimeout   time.Duration
	HTTPRateLimit float64
	LogLevel      string
	LogFormat     string
	LogFile       string
	SessionRedis  string
	SessionKey    string
	NATSURL       string
	NoticeSubject string

	ServerPort             string
	DatabaseURL            string
	JWTSecret              string
	GradingDelay           time.Duration
	GradingWorkers         int
	OpenAIAPIKey           string
	OpenAIModel            string
	CloudinaryCloudName    string
	CloudinaryAPIKey       string
	CloudinaryAPISecret    string
	CloudinaryUploadFolder string
}

// flagKeys maps configuration keys to the command line flags that may override them.
var flagKeys = map[string]string{
	"api.base_url":          "api-url",
	"poll.interval":         "poll-interval",
	"log.level":             "log-level",
	"log.format":            "log-format",
	"log.file":              "log-file",
	"server.port":           "port",
	"server.database_url":   "database-url",
	"server.grading_delay":  "grading-delay",
	"server.openai_api_key": "openai-api-key",
}

// HTTPAddress returns the address the development server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.ServerPort, ":") {
		return c.ServerPort
	}

	return fmt.Sprintf(":%s", c.ServerPort)
}

// Load reads configuration values from environment variables, an optional .env file and
// any flags bound from the command line.
func Load(flags *pflag.FlagSet) (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("EVALSYNC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("app.name", "evalsync")
	v.SetDefault("app.env", "development")
	v.SetDefault("api.base_url", "http://localhost:3001")
	v.SetDefault("poll.interval", "3s")
	v.SetDefault("http.timeout", "30s")
	v.SetDefault("http.rate_limit", 0)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("session.key", "evalsync:session")
	v.SetDefault("notify.subject", "evalsync.notices")
	v.SetDefault("server.port", "3001")
	v.SetDefault("server.database_url", "file:evalsync.db")
	v.SetDefault("server.grading_delay", "2s")
	v.SetDefault("server.grading_workers", 4)
	v.SetDefault("server.openai_model", "gpt-4o-mini")
	v.SetDefault("cloudinary.folder", "evalsync/submissions")

	if flags != nil {
		for key, name := range flagKeys {
			flag := flags.Lookup(name)
			if flag == nil {
				continue
			}
			if err := v.BindPFlag(key, flag); err != nil {
				return Config{}, fmt.Errorf("bind flag %s: %w", name, err)
			}
		}
	}

	pollInterval, err := parseDuration(v, "poll.interval", 3*time.Second)
	if err != nil {
		return Config{}, err
	}
	timeout, err := parseDuration(v, "http.timeout", 30*time.Second)
	if err != nil {
		return Config{}, err
	}
	gradingDelay, err := parseDuration(v, "server.grading_delay", 2*time.Second)
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:                v.GetString("app.name"),
		AppEnv:                 v.GetString("app.env"),
		APIBaseURL:             strings.TrimRight(v.GetString("api.base_url"), "/"),
		PollInterval:           pollInterval,
		HTTPTimeout:            timeout,
		HTTPRateLimit:          v.GetFloat64("http.rate_limit"),
		LogLevel:               strings.ToLower(v.GetString("log.level")),
		LogFormat:              strings.ToLower(v.GetString("log.format")),
		LogFile:                v.GetString("log.file"),
		SessionRedis:           v.GetString("session.redis_url"),
		SessionKey:             v.GetString("session.key"),
		NATSURL:                v.GetString("notify.nats_url"),
		NoticeSubject:          v.GetString("notify.subject"),
		ServerPort:             v.GetString("server.port"),
		DatabaseURL:            v.GetString("server.database_url"),
		JWTSecret:              v.GetString("server.jwt_secret"),
		GradingDelay:           gradingDelay,
		GradingWorkers:         v.GetInt("server.grading_workers"),
		OpenAIAPIKey:           v.GetString("server.openai_api_key"),
		OpenAIModel:            v.GetString("server.openai_model"),
		CloudinaryCloudName:    v.GetString("cloudinary.cloud_name"),
		CloudinaryAPIKey:       v.GetString("cloudinary.api_key"),
		CloudinaryAPISecret:    v.GetString("cloudinary.api_secret"),
		CloudinaryUploadFolder: v.GetString("cloudinary.folder"),
	}

	if cfg.APIBaseURL == "" {
		return Config{}, fmt.Errorf("api base url must be provided")
	}

	if cfg.PollInterval <= 0 {
		return Config{}, fmt.Errorf("poll interval must be positive")
	}

	if cfg.GradingWorkers <= 0 {
		cfg.GradingWorkers = 4
	}

	return cfg, nil
}

// ValidateServer checks the settings only the development server needs.
func (c Config) ValidateServer() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("jwt secret must be provided")
	}
	if c.DatabaseURL == "" {
		return fmt.Errorf("database url must be provided")
	}
	return nil
}

func parseDuration(v *viper.Viper, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return fallback, nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}

	return parsed, nil
}
