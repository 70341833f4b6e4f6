package config

import (
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port        string   `mapstructure:"PORT"`
	Env         string   `mapstructure:"ENV"`
	DatabaseURL string   `mapstructure:"DATABASE_URL"`
	DBMaxConns  int32    `mapstructure:"DB_MAX_CONNS"`
	DBMinConns  int32    `mapstructure:"DB_MIN_CONNS"`
	CORSOrigins []string `mapstructure:"CORS_ORIGINS"`

	AuthTokenSecret string  `mapstructure:"AUTH_TOKEN_SECRET"`
	RateLimitRPS    float64 `mapstructure:"RATE_LIMIT_RPS"`
	RateLimitBurst  int     `mapstructure:"RATE_LIMIT_BURST"`

	ClinicTimezone          string `mapstructure:"CLINIC_TIMEZONE"`
	ClinicOpening           string `mapstructure:"CLINIC_OPENING"`
	ClinicClosing           string `mapstructure:"CLINIC_CLOSING"`
	SlotIntervalMinutes     int    `mapstructure:"SLOT_INTERVAL_MINUTES"`
	RescheduleMinNoticeDays int    `mapstructure:"RESCHEDULE_MIN_NOTICE_DAYS"`

	PlatformFeeRate float64 `mapstructure:"PLATFORM_FEE_RATE"`
	AdminShare      float64 `mapstructure:"ADMIN_SHARE"`
	TherapistShare  float64 `mapstructure:"THERAPIST_SHARE"`

	KafkaBrokers       string        `mapstructure:"KAFKA_BROKERS"`
	OutboxPollInterval time.Duration `mapstructure:"OUTBOX_POLL_INTERVAL"`
	OutboxBatchSize    int           `mapstructure:"OUTBOX_BATCH_SIZE"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8080")
	v.SetDefault("ENV", "development")
	v.SetDefault("DB_MAX_CONNS", 10)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("CORS_ORIGINS", "*")
	v.SetDefault("RATE_LIMIT_RPS", 50)
	v.SetDefault("RATE_LIMIT_BURST", 100)
	v.SetDefault("CLINIC_TIMEZONE", "UTC")
	v.SetDefault("CLINIC_OPENING", "08:00")
	v.SetDefault("CLINIC_CLOSING", "20:30")
	v.SetDefault("SLOT_INTERVAL_MINUTES", 30)
	v.SetDefault("RESCHEDULE_MIN_NOTICE_DAYS", 1)
	v.SetDefault("PLATFORM_FEE_RATE", 0.03)
	v.SetDefault("ADMIN_SHARE", 0.40)
	v.SetDefault("THERAPIST_SHARE", 0.40)
	v.SetDefault("OUTBOX_POLL_INTERVAL", "5s")
	v.SetDefault("OUTBOX_BATCH_SIZE", 50)

	// Bind env vars explicitly so Unmarshal picks them up
	v.BindEnv("PORT")
	v.BindEnv("ENV")
	v.BindEnv("DATABASE_URL")
	v.BindEnv("DB_MAX_CONNS")
	v.BindEnv("DB_MIN_CONNS")
	v.BindEnv("CORS_ORIGINS")
	v.BindEnv("AUTH_TOKEN_SECRET")
	v.BindEnv("RATE_LIMIT_RPS")
	v.BindEnv("RATE_LIMIT_BURST")
	v.BindEnv("CLINIC_TIMEZONE")
	v.BindEnv("CLINIC_OPENING")
	v.BindEnv("CLINIC_CLOSING")
	v.BindEnv("SLOT_INTERVAL_MINUTES")
	v.BindEnv("RESCHEDULE_MIN_NOTICE_DAYS")
	v.BindEnv("PLATFORM_FEE_RATE")
	v.BindEnv("ADMIN_SHARE")
	v.BindEnv("THERAPIST_SHARE")
	v.BindEnv("KAFKA_BROKERS")
	v.BindEnv("OUTBOX_POLL_INTERVAL")
	v.BindEnv("OUTBOX_BATCH_SIZE")

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if cfg.CORSOrigins == nil {
		origins := v.GetString("CORS_ORIGINS")
		if origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: ============================================================")
		log.Println("WARNING: Server is running in DEVELOPMENT mode (ENV=development).")
		log.Println("WARNING: Requests without a bearer token get admin access.")
		log.Println("WARNING: Do NOT use this configuration in production.")
		log.Println("WARNING: Set ENV=production and configure AUTH_TOKEN_SECRET.")
		log.Println("WARNING: ============================================================")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// OpeningMinutes returns the clinic opening time as minutes since midnight.
// Call Validate first; an unparseable value returns 0.
func (c *Config) OpeningMinutes() int {
	m, _ := ClockMinutes(c.ClinicOpening)
	return m
}

// ClosingMinutes returns the end-of-day boundary as minutes since midnight.
// Call Validate first; an unparseable value returns 0.
func (c *Config) ClosingMinutes() int {
	m, _ := ClockMinutes(c.ClinicClosing)
	return m
}

// Location returns the clinic's wall-clock timezone, falling back to UTC.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.ClinicTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Brokers splits KAFKA_BROKERS into individual addresses. An empty value
// yields nil, which disables the outbox relay.
func (c *Config) Brokers() []string {
	var out []string
	for _, b := range strings.Split(c.KafkaBrokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// Validate checks that the configuration is safe to run. Outside development
// AUTH_TOKEN_SECRET must be set so bearer tokens are actually verified, the
// clinic day window must parse and be ordered, and the revenue split rates
// must stay inside sane bounds.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthTokenSecret == "" {
		return fmt.Errorf("AUTH_TOKEN_SECRET is required when ENV=%q. "+
			"Refusing to start with unauthenticated endpoints outside development", c.Env)
	}

	opening, err := ClockMinutes(c.ClinicOpening)
	if err != nil {
		return fmt.Errorf("CLINIC_OPENING: %w", err)
	}
	closing, err := ClockMinutes(c.ClinicClosing)
	if err != nil {
		return fmt.Errorf("CLINIC_CLOSING: %w", err)
	}
	if opening >= closing {
		return fmt.Errorf("CLINIC_OPENING %q must be before CLINIC_CLOSING %q", c.ClinicOpening, c.ClinicClosing)
	}
	if _, err := time.LoadLocation(c.ClinicTimezone); err != nil {
		return fmt.Errorf("CLINIC_TIMEZONE %q is not a valid IANA zone: %w", c.ClinicTimezone, err)
	}
	if c.SlotIntervalMinutes <= 0 {
		return fmt.Errorf("SLOT_INTERVAL_MINUTES must be positive, got %d", c.SlotIntervalMinutes)
	}
	if c.RescheduleMinNoticeDays < 0 {
		return fmt.Errorf("RESCHEDULE_MIN_NOTICE_DAYS must not be negative, got %d", c.RescheduleMinNoticeDays)
	}

	if c.PlatformFeeRate < 0 || c.PlatformFeeRate >= 1 {
		return fmt.Errorf("PLATFORM_FEE_RATE must be in [0, 1), got %v", c.PlatformFeeRate)
	}
	if c.AdminShare < 0 || c.TherapistShare < 0 {
		return fmt.Errorf("revenue shares must not be negative (ADMIN_SHARE=%v, THERAPIST_SHARE=%v)", c.AdminShare, c.TherapistShare)
	}
	if c.AdminShare+c.TherapistShare > 1 {
		return fmt.Errorf("ADMIN_SHARE + THERAPIST_SHARE must not exceed 1, got %v", c.AdminShare+c.TherapistShare)
	}

	if c.OutboxBatchSize <= 0 {
		return fmt.Errorf("OUTBOX_BATCH_SIZE must be positive, got %d", c.OutboxBatchSize)
	}
	if c.OutboxPollInterval <= 0 {
		return fmt.Errorf("OUTBOX_POLL_INTERVAL must be positive, got %v", c.OutboxPollInterval)
	}

	return nil
}

// ClockMinutes parses a wall-clock "HH:MM" string into minutes since midnight.
func ClockMinutes(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q, want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	return h*60 + m, nil
}
