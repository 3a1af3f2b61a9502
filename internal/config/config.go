package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration required by the agent process.
// All values must come from env (or env-file loaded by the process runner).
// No business logic should depend on raw environment variables.
type Config struct {
	App     AppConfig
	DB      DBConfig
	Redis   RedisConfig
	Auth    AuthConfig
	Twilio  TwilioConfig
	Backend BackendConfig
	Session SessionConfig
}

type AppConfig struct {
	Env  string
	Port int
}

type DBConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Name     string

	// SSLMode is kept explicit for managed-Postgres posture.
	// Accepts: disable, require, verify-ca, verify-full
	SSLMode string
}

type RedisConfig struct {
	Host string
	Port int
}

type AuthConfig struct {
	JWTSecret       string
	JWTIssuer       string
	JWTAudience     string
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
}

// TwilioConfig carries the call-control credentials used by the remote
// terminator. Both fields are optional: when either is absent the
// terminator reports failure without attempting the request.
type TwilioConfig struct {
	AccountSID string
	AuthToken  string
}

// BackendConfig configures the conversational backend client.
type BackendConfig struct {
	OpenAIAPIKey string
	Model        string

	// BaseURL overrides the API endpoint; useful for proxies and tests.
	BaseURL string
}

// SessionConfig carries the per-call orchestration knobs. Every value has
// a conservative default applied in Validate(); env overrides use
// time.ParseDuration syntax.
type SessionConfig struct {
	// TurnDeadline bounds one conversational turn end to end.
	TurnDeadline time.Duration
	// TerminationGrace is observed after a termination trigger before
	// teardown starts, so in-flight audio can finish.
	TerminationGrace time.Duration
	// FarewellTimeout bounds the goodbye utterance; it never blocks teardown.
	FarewellTimeout time.Duration
	// IdentityRetryDelay separates the two caller-identity lookup attempts.
	IdentityRetryDelay time.Duration
	// InactivityTimeout ends the call when the caller stays silent.
	InactivityTimeout time.Duration
	// MaxCallDuration sizes the per-call dedup latch TTL.
	MaxCallDuration time.Duration
	// SpeechEnabled gates greeting/farewell generation (ENABLE_SPEECH).
	SpeechEnabled bool
	// StreamPublicURL is the externally reachable wss:// endpoint the
	// telephony bridge is told to stream media to.
	StreamPublicURL string
}

func Load() (Config, error) {
	c := Config{}
	var parseErrs []error

	c.App.Env = strings.TrimSpace(os.Getenv("APP_ENV"))
	{
		n, err := mustInt("APP_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.App.Port = n
	}

	c.DB.Host = strings.TrimSpace(os.Getenv("DB_HOST"))
	{
		n, err := mustInt("DB_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.DB.Port = n
	}
	c.DB.User = strings.TrimSpace(os.Getenv("DB_USER"))
	c.DB.Password = os.Getenv("DB_PASSWORD")
	c.DB.Name = strings.TrimSpace(os.Getenv("DB_NAME"))
	c.DB.SSLMode = strings.TrimSpace(os.Getenv("DB_SSLMODE"))

	c.Redis.Host = strings.TrimSpace(os.Getenv("REDIS_HOST"))
	{
		n, err := mustInt("REDIS_PORT")
		n, parseErrs = appendParseErr(parseErrs, n, err)
		c.Redis.Port = n
	}

	c.Auth.JWTSecret = os.Getenv("JWT_SECRET")
	c.Auth.JWTIssuer = strings.TrimSpace(os.Getenv("JWT_ISSUER"))
	c.Auth.JWTAudience = strings.TrimSpace(os.Getenv("JWT_AUDIENCE"))
	// Duration env vars are optional; defaults applied in Validate().
	c.Auth.AccessTokenTTL = optionalDuration("JWT_ACCESS_TTL")
	c.Auth.RefreshTokenTTL = optionalDuration("JWT_REFRESH_TTL")

	c.Twilio.AccountSID = strings.TrimSpace(os.Getenv("TWILIO_ACCOUNT_SID"))
	c.Twilio.AuthToken = os.Getenv("TWILIO_AUTH_TOKEN")

	c.Backend.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	c.Backend.Model = strings.TrimSpace(os.Getenv("BACKEND_MODEL"))
	c.Backend.BaseURL = strings.TrimSpace(os.Getenv("BACKEND_BASE_URL"))

	c.Session.TurnDeadline = optionalDuration("TURN_DEADLINE")
	c.Session.TerminationGrace = optionalDuration("TERMINATION_GRACE")
	c.Session.FarewellTimeout = optionalDuration("FAREWELL_TIMEOUT")
	c.Session.IdentityRetryDelay = optionalDuration("IDENTITY_RETRY_DELAY")
	c.Session.InactivityTimeout = optionalDuration("INACTIVITY_TIMEOUT")
	c.Session.MaxCallDuration = optionalDuration("MAX_CALL_DURATION")
	c.Session.SpeechEnabled = os.Getenv("ENABLE_SPEECH") != "0"
	c.Session.StreamPublicURL = strings.TrimSpace(os.Getenv("STREAM_PUBLIC_URL"))

	if err := joinErrors(parseErrs); err != nil {
		return Config{}, err
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c *Config) Validate() error {
	var errs []error

	if !isValidEnv(c.App.Env) {
		errs = append(errs, fmt.Errorf("APP_ENV must be one of local|dev|staging|production, got %q", c.App.Env))
	}
	if c.App.Port <= 0 || c.App.Port > 65535 {
		errs = append(errs, errors.New("APP_PORT must be a valid TCP port"))
	}

	if c.DB.Host == "" {
		errs = append(errs, errors.New("DB_HOST is required"))
	}
	if c.DB.User == "" {
		errs = append(errs, errors.New("DB_USER is required"))
	}
	if c.DB.Name == "" {
		errs = append(errs, errors.New("DB_NAME is required"))
	}
	if c.DB.SSLMode == "" && !c.IsProduction() {
		c.DB.SSLMode = "disable"
	}
	if !isValidSSLMode(c.DB.SSLMode) {
		errs = append(errs, fmt.Errorf("DB_SSLMODE must be one of disable|require|verify-ca|verify-full, got %q", c.DB.SSLMode))
	}

	if c.Redis.Host == "" {
		errs = append(errs, errors.New("REDIS_HOST is required"))
	}

	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.IsProduction() {
		if c.Auth.JWTIssuer == "" {
			errs = append(errs, errors.New("JWT_ISSUER is required in production"))
		}
		if c.Auth.JWTAudience == "" {
			errs = append(errs, errors.New("JWT_AUDIENCE is required in production"))
		}
	}
	if c.Auth.AccessTokenTTL <= 0 {
		c.Auth.AccessTokenTTL = 15 * time.Minute
	}
	if c.Auth.RefreshTokenTTL <= 0 {
		c.Auth.RefreshTokenTTL = 30 * 24 * time.Hour
	}
	if c.Auth.RefreshTokenTTL <= c.Auth.AccessTokenTTL {
		errs = append(errs, errors.New("JWT_REFRESH_TTL must be greater than JWT_ACCESS_TTL"))
	}

	if c.Backend.OpenAIAPIKey == "" {
		errs = append(errs, errors.New("OPENAI_API_KEY is required"))
	}
	if c.Backend.Model == "" {
		c.Backend.Model = "gpt-4o-mini"
	}

	// Timing defaults; the exact values are tunable, not contractual.
	if c.Session.TurnDeadline <= 0 {
		c.Session.TurnDeadline = 3 * time.Second
	}
	if c.Session.TerminationGrace <= 0 {
		c.Session.TerminationGrace = 5 * time.Second
	}
	if c.Session.FarewellTimeout <= 0 {
		c.Session.FarewellTimeout = 4 * time.Second
	}
	if c.Session.IdentityRetryDelay <= 0 {
		c.Session.IdentityRetryDelay = 300 * time.Millisecond
	}
	if c.Session.InactivityTimeout <= 0 {
		c.Session.InactivityTimeout = 45 * time.Second
	}
	if c.Session.MaxCallDuration <= 0 {
		c.Session.MaxCallDuration = 30 * time.Minute
	}
	if c.IsProduction() && c.Session.StreamPublicURL == "" {
		errs = append(errs, errors.New("STREAM_PUBLIC_URL is required in production"))
	}

	return joinErrors(errs)
}

func (c Config) IsProduction() bool {
	return c.App.Env == "production"
}

func (c Config) HTTPAddr() string {
	return fmt.Sprintf(":%d", c.App.Port)
}

func (c Config) PostgresDSN() string {
	// Avoid logging this string; it contains secrets.
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.DB.Host,
		c.DB.Port,
		c.DB.User,
		c.DB.Password,
		c.DB.Name,
		c.DB.SSLMode,
	)
}

func (c Config) RedisAddr() string {
	return fmt.Sprintf("%s:%d", c.Redis.Host, c.Redis.Port)
}

func mustInt(key string) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0, fmt.Errorf("%s is required", key)
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, v)
	}
	return n, nil
}

func optionalDuration(key string) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return 0
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0
	}
	return d
}

func appendParseErr(errs []error, n int, err error) (int, []error) {
	if err != nil {
		errs = append(errs, err)
	}
	return n, errs
}

func isValidEnv(v string) bool {
	switch v {
	case "local", "dev", "staging", "production":
		return true
	default:
		return false
	}
}

func isValidSSLMode(v string) bool {
	switch v {
	case "disable", "require", "verify-ca", "verify-full":
		return true
	default:
		return false
	}
}

func joinErrors(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	var b strings.Builder
	for i, e := range errs {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(e.Error())
	}
	return errors.New(b.String())
}
