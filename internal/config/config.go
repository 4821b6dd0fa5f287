package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
type Config struct {
	AppPort        string
	AppEnv         string
	AWSRegion      string
	AWSEndpointURL string // empty in prod, set to LocalStack URL in dev
	AWSAccessKeyID string
	AWSSecretKey   string
	DynamoTables   DynamoTables

	JWTPrivateKeyPath string
	JWTPublicKeyPath  string
	JWTExpiry         time.Duration

	SMTPHost     string
	SMTPPort     string
	SMTPFrom     string
	SMTPUsername string
	SMTPPassword string
	SNSRegion    string

	AMQPURL   string // empty disables audit publishing
	AMQPQueue string

	AllowedOrigins []string // CORS allowed origins

	Staging Staging
}

// DynamoTables holds the DynamoDB table name for each entity.
type DynamoTables struct {
	Users      string
	Watermarks string
	Activity   string
}

// Staging holds the timing policy of the in-memory staged-action stores.
type Staging struct {
	CodeTTL          time.Duration
	ResendCooldown   time.Duration
	MaxCodeAttempts  int
	PendingSignupTTL time.Duration
	SweepInterval    time.Duration
	ApprovalTTL      time.Duration
}

// DefaultStaging returns the policy values the platform has always shipped with.
func DefaultStaging() Staging {
	return Staging{
		CodeTTL:          10 * time.Minute,
		ResendCooldown:   60 * time.Second,
		MaxCodeAttempts:  3,
		PendingSignupTTL: 24 * time.Hour,
		SweepInterval:    10 * time.Minute,
		ApprovalTTL:      5 * time.Minute,
	}
}

// Load reads all configuration from environment variables.
func Load() *Config {
	def := DefaultStaging()
	return &Config{
		AppPort:        getEnv("APP_PORT", "3000"),
		AppEnv:         getEnv("APP_ENV", "development"),
		AWSRegion:      getEnv("AWS_REGION", "us-east-1"),
		AWSEndpointURL: getEnv("AWS_ENDPOINT_URL", ""),
		AWSAccessKeyID: getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		DynamoTables: DynamoTables{
			Users:      getEnv("DYNAMO_TABLE_USERS", "users"),
			Watermarks: getEnv("DYNAMO_TABLE_WATERMARKS", "dashboard_watermarks"),
			Activity:   getEnv("DYNAMO_TABLE_ACTIVITY", "activity"),
		},
		JWTPrivateKeyPath: getEnv("JWT_PRIVATE_KEY_PATH", "./private_key.pem"),
		JWTPublicKeyPath:  getEnv("JWT_PUBLIC_KEY_PATH", "./public_key.pem"),
		JWTExpiry:         time.Duration(getEnvInt("JWT_EXPIRY_DAYS", 7)) * 24 * time.Hour,
		SMTPHost:          getEnv("SMTP_HOST", "localhost"),
		SMTPPort:          getEnv("SMTP_PORT", "1025"),
		SMTPFrom:          getEnv("SMTP_FROM", "noreply@example.com"),
		SMTPUsername:      getEnv("SMTP_USERNAME", ""),
		SMTPPassword:      getEnv("SMTP_PASSWORD", ""),
		SNSRegion:         getEnv("SNS_REGION", "us-east-1"),
		AMQPURL:           getEnv("AMQP_URL", ""),
		AMQPQueue:         getEnv("AMQP_QUEUE", "login.approvals"),
		AllowedOrigins:    strings.Split(getEnv("ALLOWED_ORIGINS", "*"), ","),
		Staging: Staging{
			CodeTTL:          getEnvDuration("VERIFICATION_CODE_TTL", def.CodeTTL),
			ResendCooldown:   getEnvDuration("VERIFICATION_RESEND_COOLDOWN", def.ResendCooldown),
			MaxCodeAttempts:  getEnvInt("VERIFICATION_MAX_ATTEMPTS", def.MaxCodeAttempts),
			PendingSignupTTL: getEnvDuration("PENDING_SIGNUP_TTL", def.PendingSignupTTL),
			SweepInterval:    getEnvDuration("STAGING_SWEEP_INTERVAL", def.SweepInterval),
			ApprovalTTL:      getEnvDuration("LOGIN_APPROVAL_TTL", def.ApprovalTTL),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// getEnvDuration accepts Go duration syntax ("90s", "10m").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}
