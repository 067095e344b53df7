package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/rs/zerolog"

	"sgq/backend/internal/auth"
	"sgq/backend/internal/config"
	"sgq/backend/internal/identity"
	"sgq/backend/internal/llm"
	"sgq/backend/internal/mail"
	"sgq/backend/internal/metrics"
)

const maxBodyBytes = 1 << 20

type Authenticator interface {
	Resolve(ctx context.Context, token string) (auth.Identity, error)
}

type CodeStore interface {
	Issue(ctx context.Context, email string) (string, error)
	Check(ctx context.Context, email, code string) error
	ConsumeForReset(ctx context.Context, email, code string) error
}

type Mailer interface {
	Send(ctx context.Context, msg mail.Message) (mail.Result, error)
}

// Accounts is the elevated view of the identity provider used by the
// account management routes.
type Accounts interface {
	UserByEmail(ctx context.Context, email string) (identity.User, error)
	Profile(ctx context.Context, id string) (identity.User, error)
	UpdatePassword(ctx context.Context, id, password string) error
	UpdateEmail(ctx context.Context, id, email string) error
	EmailInUse(ctx context.Context, email, exceptID string) (bool, error)
	StudentIDs(ctx context.Context) ([]string, error)
	FilterStudentIDs(ctx context.Context, ids []string) ([]string, error)
}

type Deps struct {
	Auth     Authenticator
	Codes    CodeStore
	Mail     Mailer
	LLM      llm.Completer
	Accounts Accounts
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger
}

type Server struct {
	cfg      config.Config
	auth     Authenticator
	codes    CodeStore
	mail     Mailer
	llm      llm.Completer
	accounts Accounts
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
}

func NewServer(cfg config.Config, deps Deps) *Server {
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Server{
		cfg:      cfg,
		auth:     deps.Auth,
		codes:    deps.Codes,
		mail:     deps.Mail,
		llm:      deps.LLM,
		accounts: deps.Accounts,
		metrics:  m,
		logger:   deps.Logger,
		now:      time.Now,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	allowed := s.cfg.AllowedOrigins
	if len(allowed) == 0 {
		allowed = []string{"*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowed,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
		MaxAge:           int((10 * time.Minute).Seconds()),
	}))

	limited := func(next http.Handler) http.Handler { return next }
	if s.cfg.RateLimit > 0 {
		limited = httprate.Limit(
			s.cfg.RateLimit,
			time.Minute,
			httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
			httprate.WithLimitHandler(func(w http.ResponseWriter, _ *http.Request) {
				writeError(w, http.StatusTooManyRequests, "rate_limited", "請求過於頻繁，請稍後再試")
			}),
		)
	}

	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"message": "SGQ API Server"})
	})
	r.Get("/api/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
	})
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.With(s.authenticate).Post("/api/chatgpt/scaffolding", s.handleScaffolding)
	r.With(s.authenticate).Post("/api/chatgpt/additional", s.handleFollowUp)

	r.With(limited).Post("/api/send-verification-code", s.handleSendVerificationCode)
	r.Post("/api/verify-code", s.handleVerifyCode)
	r.Post("/api/reset-password", s.handleResetPassword)
	r.With(limited).Post("/api/send-feedback", s.handleSendFeedback)

	r.With(s.authenticate, s.requireTeacher).Post("/api/admin/reset-student-password", s.handleAdminResetPassword)
	r.With(s.authenticate).Post("/api/admin/update-student-email", s.handleUpdateStudentEmail)
	r.With(s.authenticate, s.requireTeacher).Post("/api/send-notification", s.handleSendNotification)

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		logger := s.logger.With().
			Str("request_id", middleware.GetReqID(r.Context())).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Logger()

		next.ServeHTTP(ww, r.WithContext(logger.WithContext(r.Context())))

		logger.Info().
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}

// Auth

func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, "missing_token", "無效的認證 token")
			return
		}
		id, err := s.auth.Resolve(r.Context(), token)
		if err != nil {
			logger := zerolog.Ctx(r.Context())
			switch {
			case errors.Is(err, identity.ErrMisconfigured):
				logger.Error().Msg("elevated identity key missing")
				writeMisconfigured(w)
			case errors.Is(err, auth.ErrInvalidToken):
				writeError(w, http.StatusUnauthorized, "invalid_token", "無效的認證 token")
			case errors.Is(err, auth.ErrProfileMissing):
				writeError(w, http.StatusUnauthorized, "profile_missing", "找不到用戶資料")
			default:
				logger.Warn().Err(err).Msg("resolve caller")
				writeError(w, http.StatusUnauthorized, "unauthenticated", "認證失敗，請重新登入")
			}
			return
		}
		next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), id)))
	})
}

func (s *Server) requireTeacher(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := auth.FromContext(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, "unauthenticated", "認證失敗，請重新登入")
			return
		}
		if err := auth.RequireRole(id, identity.RoleTeacher); err != nil {
			writeError(w, http.StatusForbidden, "forbidden", "此操作僅限老師使用")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Helpers

type errorResponse struct {
	Error  string `json:"error"`
	Detail string `json:"detail"`
}

type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func decodeJSON(r *http.Request, out interface{}) error {
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	return decoder.Decode(out)
}

// blank reports whether any required field is empty after trimming.
func blank(fields ...string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) == "" {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	writeJSON(w, status, errorResponse{Error: code, Detail: detail})
}

func writeSuccess(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: message})
}

func writeInvalidRequest(w http.ResponseWriter) {
	writeError(w, http.StatusBadRequest, "invalid_request", "請求格式錯誤")
}

func writeMisconfigured(w http.ResponseWriter) {
	writeError(w, http.StatusInternalServerError, "server_misconfigured", "服務器配置錯誤：缺少 SUPABASE_SERVICE_ROLE_KEY")
}
