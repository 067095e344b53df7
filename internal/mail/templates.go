package mail

import (
	"bytes"
	"fmt"
	"html/template"
	"strings"
	"time"
)

const (
	verificationSubject = "註冊驗證碼"
	feedbackPrefix      = "[應用程式回報] "
)

var verificationHTML = template.Must(template.New("verification").Parse(`<html>
  <body>
    <h2>註冊驗證碼</h2>
    <p>您的驗證碼是：<strong style="font-size: 24px; color: #4CAF50;">{{.Code}}</strong></p>
    <p>此驗證碼將在 <strong>{{.Minutes}} 分鐘</strong> 後過期。</p>
    <p>如果您沒有請求此驗證碼，請忽略此郵件。</p>
  </body>
</html>
`))

var feedbackHTML = template.Must(template.New("feedback").Parse(`<html>
  <body>
    <h2>應用程式回報</h2>
    <p><strong>主旨：</strong>{{.Subject}}</p>
    {{- if .AppVersion}}
    <p><strong>應用程式版本：</strong>{{.AppVersion}}</p>
    {{- end}}
    <hr>
    <h3>詳細內容：</h3>
    <p style="white-space: pre-wrap;">{{.Content}}</p>
  </body>
</html>
`))

// VerificationCodeMessage renders the one-time code email.
func VerificationCodeMessage(to, code string, ttl time.Duration) (Message, error) {
	minutes := int(ttl.Minutes())
	var html bytes.Buffer
	if err := verificationHTML.Execute(&html, struct {
		Code    string
		Minutes int
	}{code, minutes}); err != nil {
		return Message{}, err
	}
	text := fmt.Sprintf("註冊驗證碼\n\n您的驗證碼是：%s\n\n此驗證碼將在 %d 分鐘後過期。\n\n如果您沒有請求此驗證碼，請忽略此郵件。\n", code, minutes)
	return Message{To: to, Subject: verificationSubject, HTML: html.String(), Text: text}, nil
}

// FeedbackMessage renders a user report for the feedback mailbox. User
// content is HTML escaped.
func FeedbackMessage(to, subject, content, appVersion string) (Message, error) {
	var html bytes.Buffer
	if err := feedbackHTML.Execute(&html, struct {
		Subject    string
		Content    string
		AppVersion string
	}{subject, content, appVersion}); err != nil {
		return Message{}, err
	}

	var text strings.Builder
	text.WriteString("應用程式回報\n\n")
	fmt.Fprintf(&text, "主旨：%s\n", subject)
	if appVersion != "" {
		fmt.Fprintf(&text, "應用程式版本：%s\n", appVersion)
	}
	fmt.Fprintf(&text, "\n詳細內容：\n%s\n", content)

	return Message{To: to, Subject: feedbackPrefix + subject, HTML: html.String(), Text: text.String()}, nil
}
