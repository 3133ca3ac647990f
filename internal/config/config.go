package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	PublicBaseURL string
	LogLevel      string
	DatabaseURL   string

	// UseMemoryStore keeps sessions, the patient directory and appointments
	// in process memory. Intended for local runs without Postgres or Redis.
	UseMemoryStore bool
	RedisAddr      string
	RedisPassword  string
	RedisTLS       bool
	SessionTTL     time.Duration

	ClinicTimezone      string
	DefaultCountryCode  string
	AutoRegisterCallers bool
	DoctorShortcuts     map[string]string
	SpeechLanguage      string

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioFromNumber        string
	TwilioValidateSignature bool

	AdminJWTSecret       string
	CORSAllowedOrigins   []string
	DebugEndpointEnabled bool
	DebugRecentLimit     int

	// OutboundRatePerSecond and OutboundRateBurst throttle the endpoints
	// that place phone calls, per client IP.
	OutboundRatePerSecond float64
	OutboundRateBurst     int

	RemindersEnabled   bool
	ReminderDailySpec  string
	ReminderHourlySpec string
	ReminderCallGap    time.Duration
	ReminderLanguage   string

	EmailProvider    string
	SendGridAPIKey   string
	SESRegion        string
	EmailFrom        string
	EmailFromName    string
	SMSConfirmations bool
	CallHistoryTable string

	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		PublicBaseURL: strings.TrimRight(getEnv("PUBLIC_BASE_URL", ""), "/"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		UseMemoryStore: getEnvAsBool("USE_MEMORY_STORE", false),
		RedisAddr:      getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword:  getEnv("REDIS_PASSWORD", ""),
		RedisTLS:       getEnvAsBool("REDIS_TLS", false),
		SessionTTL:     getEnvAsDuration("SESSION_TTL", 30*time.Minute),

		ClinicTimezone:      getEnv("CLINIC_TIMEZONE", "Asia/Kolkata"),
		DefaultCountryCode:  strings.TrimPrefix(getEnv("DEFAULT_COUNTRY_CODE", "91"), "+"),
		AutoRegisterCallers: getEnvAsBool("AUTO_REGISTER_CALLERS", true),
		DoctorShortcuts:     parseShortcuts(getEnv("DOCTOR_SHORTCUTS", "1=Vinayak,2=Alok Gupta")),
		SpeechLanguage:      getEnv("SPEECH_LANGUAGE", "en-US"),

		TwilioAccountSID:        getEnv("TWILIO_ACCOUNT_SID", ""),
		TwilioAuthToken:         getEnv("TWILIO_AUTH_TOKEN", ""),
		TwilioFromNumber:        getEnv("TWILIO_FROM_NUMBER", ""),
		TwilioValidateSignature: getEnvAsBool("TWILIO_VALIDATE_SIGNATURE", true),

		AdminJWTSecret:       getEnv("ADMIN_JWT_SECRET", ""),
		CORSAllowedOrigins:   splitList(getEnv("CORS_ALLOWED_ORIGINS", "")),
		DebugEndpointEnabled: getEnvAsBool("DEBUG_ENDPOINT_ENABLED", true),
		DebugRecentLimit:     getEnvAsInt("DEBUG_RECENT_LIMIT", 5),

		OutboundRatePerSecond: getEnvAsFloat("OUTBOUND_RATE_PER_SECOND", 0.2),
		OutboundRateBurst:     getEnvAsInt("OUTBOUND_RATE_BURST", 5),

		RemindersEnabled:   getEnvAsBool("REMINDERS_ENABLED", true),
		ReminderDailySpec:  getEnv("REMINDER_DAILY_SPEC", "0 8 * * *"),
		ReminderHourlySpec: getEnv("REMINDER_HOURLY_SPEC", "0 * * * *"),
		ReminderCallGap:    getEnvAsDuration("REMINDER_CALL_GAP", 5*time.Second),
		ReminderLanguage:   getEnv("REMINDER_LANGUAGE", "en"),

		EmailProvider:    strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", "stub"))),
		SendGridAPIKey:   getEnv("SENDGRID_API_KEY", ""),
		SESRegion:        getEnv("SES_REGION", ""),
		EmailFrom:        getEnv("EMAIL_FROM", ""),
		EmailFromName:    getEnv("EMAIL_FROM_NAME", "CareSync Healthcare"),
		SMSConfirmations: getEnvAsBool("SMS_CONFIRMATIONS", true),
		CallHistoryTable: getEnv("CALL_HISTORY_TABLE", ""),

		AWSRegion:           getEnv("AWS_REGION", "ap-south-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),
	}
}

// Location resolves ClinicTimezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: clinic timezone %q: %w", c.ClinicTimezone, err)
	}
	return loc, nil
}

// TwilioEnabled reports whether outbound calling and SMS can be used.
func (c *Config) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != ""
}

// Validate checks settings that would otherwise fail at first use.
func (c *Config) Validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.TwilioAccountSID != "" && strings.TrimSpace(c.TwilioFromNumber) == "" {
		return fmt.Errorf("config: TWILIO_FROM_NUMBER is required when TWILIO_ACCOUNT_SID is set")
	}
	if c.AdminJWTSecret != "" && len(c.AdminJWTSecret) < 16 {
		return fmt.Errorf("config: ADMIN_JWT_SECRET must be at least 16 bytes")
	}
	if !c.UseMemoryStore && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required unless USE_MEMORY_STORE is set")
	}
	return nil
}

// parseShortcuts reads "1=Vinayak,2=Alok Gupta" into a digit -> name map.
func parseShortcuts(raw string) map[string]string {
	out := make(map[string]string)
	for _, pair := range strings.Split(raw, ",") {
		digit, name, ok := strings.Cut(pair, "=")
		digit, name = strings.TrimSpace(digit), strings.TrimSpace(name)
		if !ok || digit == "" || name == "" {
			continue
		}
		out[digit] = name
	}
	return out
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if value, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
