package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"sgq/backend/internal/auth"
	"sgq/backend/internal/codes"
	"sgq/backend/internal/config"
	"sgq/backend/internal/db"
	internalhttp "sgq/backend/internal/http"
	"sgq/backend/internal/identity"
	"sgq/backend/internal/llm"
	"sgq/backend/internal/logging"
	"sgq/backend/internal/mail"
	"sgq/backend/internal/metrics"
	"sgq/backend/internal/telemetry"
)

const serviceName = "sgq-backend"

// Set with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load()

	cfg, err := config.Load(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("load config")
	}
	logger := logging.Setup(cfg.LogLevel, cfg.LogFormat)

	tracing, err := telemetry.Setup(ctx, telemetry.Options{
		Service:     serviceName,
		Version:     version,
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("init telemetry")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracing.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("flush traces")
		}
	}()

	if cfg.SupabaseServiceKey == "" {
		logger.Warn().Msg("SUPABASE_SERVICE_ROLE_KEY not set; authenticated and admin routes will fail")
	}

	m := metrics.New()

	var kv codes.KV
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			cancel()
			logger.Fatal().Err(err).Msg("redis ping failed")
		}
		cancel()
		defer func() {
			if err := redisClient.Close(); err != nil {
				logger.Error().Err(err).Msg("redis close")
			}
		}()
		kv = codes.NewRedisKV(redisClient)
	} else {
		memory := codes.NewMemoryKV()
		memory.Start()
		defer memory.Stop()
		kv = memory
	}
	store := codes.NewStore(kv, codes.Options{
		CodeTTL:     cfg.CodeTTL,
		VerifiedTTL: cfg.VerifiedCodeTTL,
		Retention:   cfg.CodeRetention,
	})

	upstream := &http.Client{
		Timeout:   cfg.UpstreamTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	keys := identity.Keys{Restricted: cfg.SupabaseKey, Elevated: cfg.SupabaseServiceKey}
	var profiles identity.Profiles
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("db connection failed")
		}
		defer pool.Close()
		profiles = identity.NewPGProfiles(pool)
	} else {
		profiles = identity.NewRESTProfiles(cfg.SupabaseURL, keys)
	}
	directory := identity.NewDirectory(identity.NewAuthAdmin(cfg.SupabaseURL, keys, upstream), profiles)

	mailer := mail.NewChain(logger, m.MailAttempt,
		mail.NewSendGrid(mail.SendGridConfig{
			Enabled:   cfg.SendGrid.Enabled,
			APIKey:    cfg.SendGrid.APIKey,
			FromEmail: cfg.SendGrid.FromEmail,
		}),
		mail.NewSMTP(mail.SMTPConfig{
			Enabled:   cfg.SMTP.Enabled,
			Server:    cfg.SMTP.Server,
			Port:      cfg.SMTP.Port,
			Username:  cfg.SMTP.Username,
			Password:  cfg.SMTP.Password,
			FromEmail: cfg.SMTP.FromEmail,
		}),
	)

	completer := llm.NewClient(llm.Config{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		Model:      cfg.OpenAIModel,
		HTTPClient: upstream,
	})

	server := internalhttp.NewServer(cfg, internalhttp.Deps{
		Auth:     auth.NewVerifier(directory),
		Codes:    store,
		Mail:     mailer,
		LLM:      completer,
		Accounts: directory,
		Metrics:  m,
		Logger:   logger,
	})
	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           otelhttp.NewHandler(server.Router(), serviceName),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("sgq http listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server error")
		}
	}()

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("shutdown error")
	}
}
