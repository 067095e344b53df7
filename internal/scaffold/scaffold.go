package scaffold

import (
	"errors"
	"fmt"
	"strings"

	"sgq/backend/internal/llm"
)

var ErrInvalidStage = errors.New("invalid_stage")

const (
	TypeMultipleChoice = "multipleChoice"
	TypeShortAnswer    = "shortAnswer"

	// questionMarker is how the client tags a history entry that already
	// carries the question text.
	questionMarker = "題目為:"
)

// Question is the student's draft item as sent by the client.
type Question struct {
	Text          string
	Type          string
	Options       []string
	CorrectAnswer string
}

// HistoryEntry is one message of the client-side conversation. Type is
// "user", "assistant" or "system".
type HistoryEntry struct {
	Type    string
	Content string
}

func ValidStage(stage int) bool {
	_, ok := stageTemplates[stage]
	return ok
}

// StageMessages returns the system instruction and composed user prompt for
// a staged scaffolding request.
func StageMessages(stage int, q Question) ([]llm.Message, error) {
	prompt, err := ComposeStagePrompt(stage, q)
	if err != nil {
		return nil, err
	}
	return []llm.Message{
		{Role: llm.RoleSystem, Content: stagedSystemPrompt},
		{Role: llm.RoleUser, Content: prompt},
	}, nil
}

func ComposeStagePrompt(stage int, q Question) (string, error) {
	tmpl, ok := stageTemplates[stage]
	if !ok {
		return "", ErrInvalidStage
	}
	base := fmt.Sprintf(tmpl, q.Text)

	switch {
	case q.Type == TypeMultipleChoice && len(q.Options) > 0:
		return fmt.Sprintf("%s\n\n選項：\n%s\n%s", base, letteredOptions(q.Options), answerLine(q.CorrectAnswer)), nil
	case q.Type == TypeShortAnswer:
		return fmt.Sprintf("%s\n\n%s", base, answerLine(q.CorrectAnswer)), nil
	default:
		return base, nil
	}
}

// FollowUpMessages builds the conversation for a follow-up question. The
// question context is injected once, only when no history entry carries it.
func FollowUpMessages(stage int, q Question, history []HistoryEntry, userMessage string) ([]llm.Message, error) {
	if !ValidStage(stage) {
		return nil, ErrInvalidStage
	}

	messages := make([]llm.Message, 0, len(history)+3)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: fmt.Sprintf(followUpSystemPrompt, stage)})

	if !hasQuestionContext(history, q.Text) {
		messages = append(messages, llm.Message{Role: llm.RoleUser, Content: questionContext(q)})
	}

	for _, entry := range history {
		switch entry.Type {
		case "user":
			messages = append(messages, llm.Message{Role: llm.RoleUser, Content: entry.Content})
		case "assistant":
			messages = append(messages, llm.Message{Role: llm.RoleAssistant, Content: entry.Content})
		case "system":
			if strings.Contains(entry.Content, questionMarker) {
				messages = append(messages, llm.Message{Role: llm.RoleUser, Content: entry.Content})
			}
		}
	}

	messages = append(messages, llm.Message{Role: llm.RoleUser, Content: stageReminder(stage) + userMessage})
	return messages, nil
}

func hasQuestionContext(history []HistoryEntry, question string) bool {
	for _, entry := range history {
		if strings.Contains(entry.Content, questionMarker) {
			return true
		}
		if strings.Contains(entry.Content, question) {
			return true
		}
	}
	return false
}

func questionContext(q Question) string {
	var b strings.Builder
	b.WriteString("原始題目：")
	b.WriteString(q.Text)
	if q.Type == TypeMultipleChoice && len(q.Options) > 0 {
		b.WriteString("\n選項：\n")
		b.WriteString(letteredOptions(q.Options))
	}
	if q.CorrectAnswer != "" {
		b.WriteString("\n正確答案：")
		b.WriteString(q.CorrectAnswer)
	}
	return b.String()
}

func stageReminder(stage int) string {
	return fmt.Sprintf("【當前階段：Stage %d】\n請根據 Stage %d 的焦點回答，但不需要遵循特定格式，自然回答即可。\n\n", stage, stage)
}

func letteredOptions(options []string) string {
	lines := make([]string, 0, len(options))
	for i, opt := range options {
		lines = append(lines, fmt.Sprintf("%c. %s", rune('A'+i), opt))
	}
	return strings.Join(lines, "\n")
}

func answerLine(answer string) string {
	if answer == "" {
		return "正確答案：未提供"
	}
	return "正確答案：" + answer
}
