package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	//App
	Env string `validate:"required,oneof=dev test staging prod"`
	//HTTP
	HTTPAddr         string        `validate:"required"`
	HTTPReadTimeout  time.Duration `validate:"gt=0"`
	HTTPWriteTimeout time.Duration `validate:"gt=0"`
	HTTPIdleTimeout  time.Duration `validate:"gt=0"`
	RateLimitPerMin  int           `validate:"gte=0"`

	// Storage backend; memory is for local runs and tests.
	Store   string `validate:"oneof=postgres memory"`
	DBAddr  string `validate:"required_if=Store postgres"`
	DBDebug bool

	// Infrastructure. Empty values select the in-process fallbacks.
	RedisAddr      string
	RedisPassword  string
	RedisDB        int `validate:"gte=0"`
	RabbitURL      string
	RabbitExchange string `validate:"required"`

	//Auth / Security
	JWTSecret      string        `validate:"required,min=16"`
	JWTIssuer      string        `validate:"required"`
	AccessTokenTTL time.Duration `validate:"gt=0"`
	SessionTTL     time.Duration `validate:"gt=0"`
	BcryptCost     int           `validate:"gte=4,lte=31"`

	// Lockout
	LockoutThreshold int           `validate:"gte=1"`
	LockoutDuration  time.Duration `validate:"gt=0"`

	// One-time token flows (email verify / password reset)
	VerifyEmailBaseURL    string        `validate:"required,url,contains=token="`
	PasswordResetBaseURL  string        `validate:"required,url,contains=token="`
	VerifyEmailTokenTTL   time.Duration `validate:"gt=0"`
	PasswordResetTokenTTL time.Duration `validate:"gt=0"`
	PurgeInterval         time.Duration `validate:"gt=0"`

	// Account policy
	AutoEnable  bool
	HardDelete  bool
	DefaultRole string `validate:"required"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads an optional .env file and then the environment. It fails fast on
// anything missing or malformed.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:            getEnv("ENV", "dev"),
		HTTPAddr:       getEnv("HTTP_ADDR", ":8080"),
		Store:          strings.ToLower(getEnv("STORE", StorePostgres)),
		DBAddr:         os.Getenv("DB_ADDR"),
		RedisAddr:      os.Getenv("REDIS_ADDR"),
		RedisPassword:  os.Getenv("REDIS_PASSWORD"),
		RabbitURL:      os.Getenv("RABBIT_URL"),
		RabbitExchange: getEnv("RABBIT_EXCHANGE", "account.events"),
		JWTSecret:      os.Getenv("JWT_SECRET"),
		JWTIssuer:      getEnv("JWT_ISSUER", "account-service"),
		DefaultRole:    getEnv("DEFAULT_ROLE", "ROLE_USER"),

		// Must include `token=` because the service appends the token.
		VerifyEmailBaseURL:   os.Getenv("VERIFY_EMAIL_BASE_URL"),
		PasswordResetBaseURL: os.Getenv("PASSWORD_RESET_BASE_URL"),
	}

	var errs []error
	dur := func(key string, def time.Duration) time.Duration {
		d, err := getDuration(key, def)
		errs = append(errs, err)
		return d
	}
	num := func(key string, def int) int {
		n, err := getInt(key, def)
		errs = append(errs, err)
		return n
	}
	flag := func(key string, def bool) bool {
		b, err := getBool(key, def)
		errs = append(errs, err)
		return b
	}

	cfg.HTTPReadTimeout = dur("HTTP_READ_TIMEOUT", 10*time.Second)
	cfg.HTTPWriteTimeout = dur("HTTP_WRITE_TIMEOUT", 30*time.Second)
	cfg.HTTPIdleTimeout = dur("HTTP_IDLE_TIMEOUT", time.Minute)
	cfg.RateLimitPerMin = num("RATE_LIMIT_PER_MIN", 30)

	cfg.DBDebug = flag("DB_DEBUG", false)
	cfg.RedisDB = num("REDIS_DB", 0)

	cfg.AccessTokenTTL = dur("ACCESS_TOKEN_TTL", 15*time.Minute)
	cfg.SessionTTL = dur("SESSION_TTL", 24*time.Hour)
	cfg.BcryptCost = num("BCRYPT_COST", 12)

	cfg.LockoutThreshold = num("LOCKOUT_THRESHOLD", 10)
	cfg.LockoutDuration = dur("LOCKOUT_DURATION", 30*time.Minute)

	cfg.VerifyEmailTokenTTL = dur("VERIFY_TOKEN_TTL", 24*time.Hour)
	cfg.PasswordResetTokenTTL = dur("RESET_TOKEN_TTL", 30*time.Minute)
	cfg.PurgeInterval = dur("PURGE_INTERVAL", time.Hour)

	cfg.AutoEnable = flag("REGISTRATION_AUTO_ENABLE", false)
	cfg.HardDelete = flag("ACTUALLY_DELETE_ACCOUNT", false)

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, describe(err)
	}
	return cfg, nil
}

func (c *Config) IsDev() bool { return c.Env == "dev" || c.Env == "test" }

// describe turns validator output into one line per offending field.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			msgs = append(msgs, fmt.Sprintf("%s failed %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
	}
	return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
}

func getEnv(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func getDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid duration for %s: %q: %w", key, v, err)
	}
	return d, nil
}

func getInt(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid int for %s: %q: %w", key, v, err)
	}
	return n, nil
}

func getBool(key string, def bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid bool for %s: %q: %w", key, v, err)
	}
	return b, nil
}
