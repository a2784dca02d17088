package config

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds everything the service reads from the environment.
type Config struct {
	Env      string
	LogLevel string

	// Twilio account
	TwilioAccountSID  string
	TwilioAuthToken   string
	TwilioPhoneNumber string

	BaseURL             string
	OperatorPhoneNumber string
	AssistantName       string

	HTTPPort    string
	MetricsPort string
	GrpcPort    string

	// Optional infrastructure; empty disables the component.
	RedisURL    string
	RabbitMQURL string
	PostgresURL string

	StateTTL           time.Duration
	StateSweepInterval time.Duration

	VoiceName           string
	VoiceLanguage       string
	MaxRecordingSeconds int
}

// Load reads the configuration from a .env file (if present) and the environment.
func Load() (*Config, error) {
	godotenv.Load()

	cfg := &Config{
		Env:      getEnvWithDefault("ENV", "production"),
		LogLevel: getEnvWithDefault("LOG_LEVEL", "info"),

		TwilioAccountSID:  getEnv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:   getEnv("TWILIO_AUTH_TOKEN"),
		TwilioPhoneNumber: getEnv("TWILIO_PHONE_NUMBER"),

		BaseURL:             strings.TrimRight(getEnv("BASE_URL"), "/"),
		OperatorPhoneNumber: getEnv("USER_PHONE_NUMBER"),
		AssistantName:       getEnvWithDefault("ASSISTANT_NAME", "DEVI AI"),

		HTTPPort:    getEnvWithDefault("PORT", "3000"),
		MetricsPort: getEnvWithDefault("METRICS_PORT", "9091"),
		GrpcPort:    getEnv("GRPC_PORT"),

		RedisURL:    getEnv("REDIS_URL"),
		RabbitMQURL: getEnv("RABBITMQ_URL"),
		PostgresURL: getEnv("POSTGRES_URL"),

		VoiceName:     getEnvWithDefault("VOICE_NAME", "Polly.Aditi"),
		VoiceLanguage: getEnvWithDefault("VOICE_LANGUAGE", "hi-IN"),
	}

	var err error
	if cfg.StateTTL, err = getDurationWithDefault("STATE_TTL", time.Hour); err != nil {
		return nil, err
	}
	if cfg.StateSweepInterval, err = getDurationWithDefault("STATE_SWEEP_INTERVAL", 5*time.Minute); err != nil {
		return nil, err
	}
	if cfg.MaxRecordingSeconds, err = getIntWithDefault("MAX_RECORDING_SECONDS", 120); err != nil {
		return nil, err
	}

	// Vendor credentials and callback URLs are needed by every webhook.
	var missing []string
	for key, val := range map[string]string{
		"TWILIO_ACCOUNT_SID":  cfg.TwilioAccountSID,
		"TWILIO_AUTH_TOKEN":   cfg.TwilioAuthToken,
		"TWILIO_PHONE_NUMBER": cfg.TwilioPhoneNumber,
		"BASE_URL":            cfg.BaseURL,
		"USER_PHONE_NUMBER":   cfg.OperatorPhoneNumber,
	} {
		if val == "" {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}

// CallbackURL joins a webhook path onto the public base URL.
func (c *Config) CallbackURL(path string) string {
	return c.BaseURL + path
}

func getEnv(key string) string {
	return os.Getenv(key)
}

func getEnvWithDefault(key, defaultValue string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue
	}
	return val
}

func getDurationWithDefault(key string, defaultValue time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, val, err)
	}
	return d, nil
}

func getIntWithDefault(key string, defaultValue int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultValue, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive integer", key, val)
	}
	return n, nil
}
