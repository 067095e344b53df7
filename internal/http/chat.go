package http

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"sgq/backend/internal/llm"
	"sgq/backend/internal/scaffold"
)

type scaffoldingRequest struct {
	Question      string   `json:"question"`
	QuestionType  string   `json:"question_type"`
	Options       []string `json:"options"`
	CorrectAnswer string   `json:"correct_answer"`
	Stage         int      `json:"stage"`
}

func (r scaffoldingRequest) question() scaffold.Question {
	return scaffold.Question{
		Text:          r.Question,
		Type:          r.QuestionType,
		Options:       r.Options,
		CorrectAnswer: r.CorrectAnswer,
	}
}

type historyEntry struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

type followUpRequest struct {
	scaffoldingRequest
	UserMessage         string         `json:"user_message"`
	ConversationHistory []historyEntry `json:"conversation_history"`
}

type completionResponse struct {
	Response string `json:"response"`
}

func (s *Server) handleScaffolding(w http.ResponseWriter, r *http.Request) {
	var req scaffoldingRequest
	if err := decodeJSON(r, &req); err != nil || blank(req.Question) {
		writeInvalidRequest(w)
		return
	}
	if !scaffold.ValidStage(req.Stage) {
		writeError(w, http.StatusBadRequest, "invalid_stage", "Invalid stage")
		return
	}
	messages, err := scaffold.StageMessages(req.Stage, req.question())
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_stage", "Invalid stage")
		return
	}
	s.respondWithCompletion(w, r, "scaffolding", messages)
}

func (s *Server) handleFollowUp(w http.ResponseWriter, r *http.Request) {
	var req followUpRequest
	if err := decodeJSON(r, &req); err != nil || blank(req.Question, req.UserMessage) {
		writeInvalidRequest(w)
		return
	}
	if !scaffold.ValidStage(req.Stage) {
		writeError(w, http.StatusBadRequest, "invalid_stage", "Invalid stage")
		return
	}
	history := make([]scaffold.HistoryEntry, 0, len(req.ConversationHistory))
	for _, entry := range req.ConversationHistory {
		history = append(history, scaffold.HistoryEntry{Type: entry.Type, Content: entry.Content})
	}
	messages, err := scaffold.FollowUpMessages(req.Stage, req.question(), history, req.UserMessage)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_stage", "Invalid stage")
		return
	}
	s.respondWithCompletion(w, r, "follow_up", messages)
}

// respondWithCompletion never forwards provider error text to the caller.
func (s *Server) respondWithCompletion(w http.ResponseWriter, r *http.Request, kind string, messages []llm.Message) {
	text, err := s.complete(r.Context(), kind, messages)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Str("kind", kind).Msg("chat completion failed")
		writeError(w, http.StatusInternalServerError, "llm_unavailable", "無法取得 ChatGPT 回應，請稍後再試")
		return
	}
	writeJSON(w, http.StatusOK, completionResponse{Response: text})
}

func (s *Server) complete(ctx context.Context, kind string, messages []llm.Message) (string, error) {
	start := time.Now()
	text, err := s.llm.Complete(ctx, messages)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	s.metrics.LLMRequest(kind, outcome, time.Since(start))
	return text, err
}
