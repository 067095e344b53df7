package http

import (
	"errors"
	"net/http"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"sgq/backend/internal/codes"
	"sgq/backend/internal/identity"
	"sgq/backend/internal/mail"
)

const minPasswordLength = 6

type sendCodeRequest struct {
	Email string `json:"email"`
}

type verifyCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

type feedbackRequest struct {
	Subject    string `json:"subject"`
	Content    string `json:"content"`
	AppVersion string `json:"app_version"`
}

func (s *Server) handleSendVerificationCode(w http.ResponseWriter, r *http.Request) {
	var req sendCodeRequest
	if err := decodeJSON(r, &req); err != nil || blank(req.Email) {
		writeInvalidRequest(w)
		return
	}
	email := codes.NormalizeEmail(req.Email)
	if !codes.ValidEmailShape(email) {
		writeError(w, http.StatusBadRequest, "invalid_email", "無效的電子郵件格式")
		return
	}

	logger := zerolog.Ctx(r.Context())
	code, err := s.codes.Issue(r.Context(), email)
	if err != nil {
		logger.Error().Err(err).Msg("issue verification code")
		writeError(w, http.StatusInternalServerError, "server_error", "伺服器錯誤，請稍後再試")
		return
	}
	s.metrics.CodeIssued()
	if s.cfg.LogCodes {
		logger.Debug().Str("email", email).Str("code", code).Msg("verification code issued")
	}

	msg, err := mail.VerificationCodeMessage(email, code, s.cfg.CodeTTL)
	if err == nil {
		var result mail.Result
		result, err = s.mail.Send(r.Context(), msg)
		if err == nil {
			logger.Info().Str("email", email).Str("provider", result.Provider).Msg("verification code sent")
		}
	}
	// Delivery is best-effort; the caller always sees success.
	if err != nil {
		logger.Warn().Err(err).Str("email", email).Msg("verification code delivery failed")
	}
	writeSuccess(w, "驗證碼已發送到您的電子郵件")
}

func (s *Server) handleVerifyCode(w http.ResponseWriter, r *http.Request) {
	var req verifyCodeRequest
	if err := decodeJSON(r, &req); err != nil || blank(req.Email, req.Code) {
		writeInvalidRequest(w)
		return
	}
	err := s.codes.Check(r.Context(), codes.NormalizeEmail(req.Email), req.Code)
	s.metrics.CodeChecked(checkOutcome(err))
	if err != nil {
		switch {
		case errors.Is(err, codes.ErrNotFound):
			writeError(w, http.StatusBadRequest, "code_not_found", "驗證碼不存在或已過期")
		case errors.Is(err, codes.ErrExpired):
			writeError(w, http.StatusBadRequest, "code_expired", "驗證碼已過期")
		case errors.Is(err, codes.ErrMismatch):
			writeError(w, http.StatusBadRequest, "code_mismatch", "驗證碼錯誤")
		default:
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("check verification code")
			writeError(w, http.StatusInternalServerError, "server_error", "伺服器錯誤，請稍後再試")
		}
		return
	}
	writeSuccess(w, "驗證碼正確")
}

// handleResetPassword consumes the code before the provider password is
// touched.
func (s *Server) handleResetPassword(w http.ResponseWriter, r *http.Request) {
	var req resetPasswordRequest
	if err := decodeJSON(r, &req); err != nil || blank(req.Email, req.Code) {
		writeInvalidRequest(w)
		return
	}
	if utf8.RuneCountInString(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password_too_short", "密碼長度至少需要6個字符")
		return
	}
	if s.cfg.SupabaseServiceKey == "" {
		writeMisconfigured(w)
		return
	}

	logger := zerolog.Ctx(r.Context())
	email := codes.NormalizeEmail(req.Email)
	if err := s.codes.ConsumeForReset(r.Context(), email, req.Code); err != nil {
		switch {
		case errors.Is(err, codes.ErrNotFound):
			writeError(w, http.StatusBadRequest, "code_not_found", "驗證碼不存在或已過期")
		case errors.Is(err, codes.ErrNotVerified):
			writeError(w, http.StatusBadRequest, "code_not_verified", "請先驗證驗證碼")
		case errors.Is(err, codes.ErrExpired):
			writeError(w, http.StatusBadRequest, "code_expired", "驗證碼已過期，請重新發送")
		case errors.Is(err, codes.ErrMismatch):
			writeError(w, http.StatusBadRequest, "code_mismatch", "驗證碼錯誤")
		default:
			logger.Error().Err(err).Msg("consume verification code")
			writeError(w, http.StatusInternalServerError, "server_error", "重設密碼失敗，請稍後再試")
		}
		return
	}

	user, err := s.accounts.UserByEmail(r.Context(), email)
	if err != nil {
		switch {
		case errors.Is(err, identity.ErrNotFound):
			writeError(w, http.StatusNotFound, "user_not_found", "找不到該電子郵件地址的用戶")
		case errors.Is(err, identity.ErrMisconfigured):
			writeMisconfigured(w)
		default:
			logger.Error().Err(err).Msg("lookup user by email")
			writeError(w, http.StatusInternalServerError, "upstream_error", "重設密碼失敗，請稍後再試")
		}
		return
	}
	if err := s.accounts.UpdatePassword(r.Context(), user.ID, req.NewPassword); err != nil {
		if errors.Is(err, identity.ErrMisconfigured) {
			writeMisconfigured(w)
			return
		}
		logger.Error().Err(err).Str("user_id", user.ID).Msg("update password")
		writeError(w, http.StatusInternalServerError, "upstream_error", "更新密碼失敗，請稍後再試")
		return
	}
	logger.Info().Str("user_id", user.ID).Msg("password reset")
	writeSuccess(w, "密碼重設成功")
}

func (s *Server) handleSendFeedback(w http.ResponseWriter, r *http.Request) {
	var req feedbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}
	if strings.TrimSpace(req.Subject) == "" || strings.TrimSpace(req.Content) == "" {
		writeError(w, http.StatusBadRequest, "invalid_feedback", "主旨和內容不能為空")
		return
	}

	logger := zerolog.Ctx(r.Context())
	msg, err := mail.FeedbackMessage(s.cfg.FeedbackEmail, req.Subject, req.Content, req.AppVersion)
	if err == nil {
		_, err = s.mail.Send(r.Context(), msg)
	}
	if err != nil {
		logger.Error().Err(err).Msg("send feedback")
		writeError(w, http.StatusInternalServerError, "feedback_failed", "發送反饋失敗，請稍後再試")
		return
	}
	writeSuccess(w, "反饋已成功發送")
}

func checkOutcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, codes.ErrNotFound):
		return "not_found"
	case errors.Is(err, codes.ErrExpired):
		return "expired"
	case errors.Is(err, codes.ErrMismatch):
		return "mismatch"
	default:
		return "error"
	}
}
