package config

import (
	"context"
	"strings"
	"time"

	"github.com/sethvargo/go-envconfig"
)

type Config struct {
	HTTPAddr        string        `env:"HTTP_ADDR,default=:8000"`
	AllowedOrigins  []string      `env:"ALLOWED_ORIGINS,default=*"`
	UpstreamTimeout time.Duration `env:"UPSTREAM_TIMEOUT,default=30s"`
	RateLimit       int           `env:"RATE_LIMIT_PER_MINUTE,default=10"`

	SupabaseURL        string `env:"SUPABASE_URL,required"`
	SupabaseKey        string `env:"SUPABASE_KEY,required"`
	SupabaseServiceKey string `env:"SUPABASE_SERVICE_ROLE_KEY"`
	DatabaseURL        string `env:"DATABASE_URL"`

	OpenAIAPIKey  string `env:"OPENAI_API_KEY,required"`
	OpenAIBaseURL string `env:"OPENAI_BASE_URL,default=https://api.openai.com/v1"`
	OpenAIModel   string `env:"OPENAI_MODEL,default=gpt-4"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB,default=0"`

	CodeTTL         time.Duration `env:"CODE_TTL,default=10m"`
	VerifiedCodeTTL time.Duration `env:"VERIFIED_CODE_TTL,default=30m"`
	CodeRetention   time.Duration `env:"CODE_RETENTION,default=1h"`

	SMTP     SMTPConfig     `env:",prefix=SMTP_"`
	SendGrid SendGridConfig `env:",prefix=SENDGRID_"`

	FeedbackEmail string `env:"FEEDBACK_EMAIL,default=sgqaiapp@gmail.com"`

	Environment      string  `env:"APP_ENV,default=development"`
	OTLPEndpoint     string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRatio float64 `env:"OTEL_TRACES_SAMPLER_ARG,default=1"`
	LogLevel         string  `env:"LOG_LEVEL,default=info"`
	LogFormat        string  `env:"LOG_FORMAT,default=json"`
	LogCodes         bool    `env:"LOG_VERIFICATION_CODES,default=false"`
}

type SMTPConfig struct {
	Enabled   bool   `env:"ENABLED,default=false"`
	Server    string `env:"SERVER,default=smtp.gmail.com"`
	Port      int    `env:"PORT,default=587"`
	Username  string `env:"USERNAME"`
	Password  string `env:"PASSWORD"`
	FromEmail string `env:"FROM_EMAIL"`
}

type SendGridConfig struct {
	Enabled   bool   `env:"ENABLED,default=false"`
	APIKey    string `env:"API_KEY"`
	FromEmail string `env:"FROM_EMAIL,default=noreply@yourapp.com"`
}

func Load(ctx context.Context) (Config, error) {
	var cfg Config
	if err := envconfig.Process(ctx, &cfg); err != nil {
		return Config{}, err
	}
	cfg.SupabaseURL = strings.TrimRight(strings.TrimSpace(cfg.SupabaseURL), "/")
	if cfg.SMTP.FromEmail == "" {
		cfg.SMTP.FromEmail = cfg.SMTP.Username
	}
	for i, origin := range cfg.AllowedOrigins {
		cfg.AllowedOrigins[i] = strings.TrimSpace(origin)
	}
	return cfg, nil
}
