package http

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"sgq/backend/internal/auth"
	"sgq/backend/internal/codes"
	"sgq/backend/internal/identity"
)

type adminResetPasswordRequest struct {
	StudentEmail string `json:"student_email"`
	NewPassword  string `json:"new_password"`
}

type updateEmailRequest struct {
	StudentID string `json:"student_id"`
	NewEmail  string `json:"new_email"`
}

type updateEmailResponse struct {
	Success  bool   `json:"success"`
	Message  string `json:"message"`
	OldEmail string `json:"old_email"`
	NewEmail string `json:"new_email"`
}

type notificationRequest struct {
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	StudentIDs    []string `json:"student_ids"`
	ScheduledTime *string  `json:"scheduled_time"`
}

type notification struct {
	ID            string   `json:"id"`
	Title         string   `json:"title"`
	Body          string   `json:"body"`
	StudentCount  int      `json:"student_count"`
	StudentIDs    []string `json:"student_ids"`
	ScheduledTime *string  `json:"scheduled_time"`
	SentAt        string   `json:"sent_at"`
	SentBy        string   `json:"sent_by"`
}

type notificationResponse struct {
	Success      bool         `json:"success"`
	Message      string       `json:"message"`
	Notification notification `json:"notification"`
}

// Timestamps from clients may omit the zone offset.
var scheduleLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02T15:04:05",
}

func (s *Server) handleAdminResetPassword(w http.ResponseWriter, r *http.Request) {
	var req adminResetPasswordRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}
	if utf8.RuneCountInString(req.NewPassword) < minPasswordLength {
		writeError(w, http.StatusBadRequest, "password_too_short", "密碼長度至少需要6個字符")
		return
	}

	logger := zerolog.Ctx(r.Context())
	email := codes.NormalizeEmail(req.StudentEmail)
	user, err := s.accounts.UserByEmail(r.Context(), email)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student_not_found", "找不到該電子郵件地址的學生")
			return
		}
		s.writeAccountFailure(w, r, err, "lookup student by email", "重置密碼失敗，請稍後再試")
		return
	}

	profile, err := s.accounts.Profile(r.Context(), user.ID)
	if err != nil && !errors.Is(err, identity.ErrNotFound) {
		s.writeAccountFailure(w, r, err, "lookup student profile", "重置密碼失敗，請稍後再試")
		return
	}
	if err != nil || profile.Role != identity.RoleStudent {
		writeError(w, http.StatusForbidden, "not_student", "該帳號不是學生帳號")
		return
	}

	if err := s.accounts.UpdatePassword(r.Context(), user.ID, req.NewPassword); err != nil {
		s.writeAccountFailure(w, r, err, "update student password", "重置密碼失敗，請稍後再試")
		return
	}
	caller, _ := auth.FromContext(r.Context())
	logger.Info().Str("student_id", user.ID).Str("teacher_id", caller.SubjectID).Msg("student password reset")
	writeSuccess(w, "學生密碼已重置")
}

// handleUpdateStudentEmail lets a teacher update any student, and a student
// update only their own record.
func (s *Server) handleUpdateStudentEmail(w http.ResponseWriter, r *http.Request) {
	var req updateEmailRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}
	studentID := strings.TrimSpace(req.StudentID)
	newEmail := codes.NormalizeEmail(req.NewEmail)

	caller, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthenticated", "認證失敗，請重新登入")
		return
	}
	switch caller.Role {
	case identity.RoleTeacher:
	case identity.RoleStudent:
		if caller.SubjectID != studentID {
			writeError(w, http.StatusForbidden, "forbidden", "您只能更新自己的電子郵件")
			return
		}
	default:
		writeError(w, http.StatusForbidden, "forbidden", "此操作僅限老師使用")
		return
	}

	if !codes.ValidEmailStrict(newEmail) {
		writeError(w, http.StatusBadRequest, "invalid_email", "電子郵件格式不正確")
		return
	}
	if _, err := uuid.Parse(studentID); err != nil {
		writeError(w, http.StatusNotFound, "student_not_found", "找不到該學生帳號")
		return
	}

	logger := zerolog.Ctx(r.Context())
	profile, err := s.accounts.Profile(r.Context(), studentID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			writeError(w, http.StatusNotFound, "student_not_found", "找不到該學生帳號")
			return
		}
		s.writeAccountFailure(w, r, err, "lookup student profile", "更新電子郵件失敗，請稍後再試")
		return
	}
	if profile.Role != identity.RoleStudent {
		writeError(w, http.StatusForbidden, "not_student", "該帳號不是學生帳號")
		return
	}

	taken, err := s.accounts.EmailInUse(r.Context(), newEmail, studentID)
	switch {
	case errors.Is(err, identity.ErrMisconfigured):
		writeMisconfigured(w)
		return
	case err != nil:
		logger.Warn().Err(err).Msg("check email availability")
	case taken:
		writeError(w, http.StatusBadRequest, "email_in_use", "該電子郵件已被其他用戶使用")
		return
	}

	if err := s.accounts.UpdateEmail(r.Context(), studentID, newEmail); err != nil {
		s.writeAccountFailure(w, r, err, "update student email", "更新電子郵件失敗，請稍後再試")
		return
	}
	logger.Info().
		Str("student_id", studentID).
		Str("old_email", profile.Email).
		Str("new_email", newEmail).
		Str("updated_by", caller.SubjectID).
		Msg("student email updated")
	writeJSON(w, http.StatusOK, updateEmailResponse{
		Success:  true,
		Message:  "學生電子郵件已更新",
		OldEmail: profile.Email,
		NewEmail: newEmail,
	})
}

// handleSendNotification resolves and validates recipients and records the
// notification. Delivery and scheduling are left to the client.
func (s *Server) handleSendNotification(w http.ResponseWriter, r *http.Request) {
	var req notificationRequest
	if err := decodeJSON(r, &req); err != nil {
		writeInvalidRequest(w)
		return
	}
	if strings.TrimSpace(req.Title) == "" || strings.TrimSpace(req.Body) == "" {
		writeError(w, http.StatusBadRequest, "invalid_notification", "標題和內容不能為空")
		return
	}
	if req.ScheduledTime != nil && strings.TrimSpace(*req.ScheduledTime) != "" {
		if _, ok := parseSchedule(*req.ScheduledTime); !ok {
			writeError(w, http.StatusBadRequest, "invalid_scheduled_time", "排程時間格式不正確")
			return
		}
	}

	var (
		studentIDs []string
		err        error
	)
	if len(req.StudentIDs) == 0 {
		studentIDs, err = s.accounts.StudentIDs(r.Context())
		if err != nil {
			s.writeAccountFailure(w, r, err, "list students", "發送通知失敗，請稍後再試")
			return
		}
	} else {
		var ok bool
		studentIDs, ok = normalizeIDs(req.StudentIDs)
		if !ok {
			writeError(w, http.StatusBadRequest, "invalid_student_ids", "部分學生 ID 無效")
			return
		}
	}

	if len(studentIDs) > 0 {
		valid, err := s.accounts.FilterStudentIDs(r.Context(), studentIDs)
		if err != nil {
			s.writeAccountFailure(w, r, err, "validate students", "發送通知失敗，請稍後再試")
			return
		}
		if len(valid) != len(studentIDs) {
			writeError(w, http.StatusBadRequest, "invalid_student_ids", "部分學生 ID 無效")
			return
		}
	}
	if studentIDs == nil {
		studentIDs = []string{}
	}

	caller, _ := auth.FromContext(r.Context())
	record := notification{
		ID:            uuid.NewString(),
		Title:         req.Title,
		Body:          req.Body,
		StudentCount:  len(studentIDs),
		StudentIDs:    studentIDs,
		ScheduledTime: req.ScheduledTime,
		SentAt:        s.now().UTC().Format(time.RFC3339),
		SentBy:        caller.SubjectID,
	}
	zerolog.Ctx(r.Context()).Info().
		Str("notification_id", record.ID).
		Str("title", record.Title).
		Int("student_count", record.StudentCount).
		Strs("student_ids", record.StudentIDs).
		Str("sent_by", record.SentBy).
		Msg("notification sent")

	writeJSON(w, http.StatusOK, notificationResponse{
		Success:      true,
		Message:      fmt.Sprintf("通知已發送給 %d 位學生", record.StudentCount),
		Notification: record,
	})
}

// writeAccountFailure maps an identity provider failure to a generic 500.
func (s *Server) writeAccountFailure(w http.ResponseWriter, r *http.Request, err error, op, detail string) {
	if errors.Is(err, identity.ErrMisconfigured) {
		writeMisconfigured(w)
		return
	}
	zerolog.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("identity provider call failed")
	writeError(w, http.StatusInternalServerError, "upstream_error", detail)
}

func parseSchedule(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	for _, layout := range scheduleLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

// normalizeIDs trims and de-duplicates ids, keeping the first occurrence.
// It fails if any id is not a UUID.
func normalizeIDs(ids []string) ([]string, bool) {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		parsed, err := uuid.Parse(strings.TrimSpace(raw))
		if err != nil {
			return nil, false
		}
		id := parsed.String()
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, true
}
