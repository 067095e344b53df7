package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"sgq/backend/internal/auth"
	"sgq/backend/internal/codes"
	"sgq/backend/internal/config"
	"sgq/backend/internal/identity"
	"sgq/backend/internal/llm"
	"sgq/backend/internal/mail"
	"sgq/backend/internal/metrics"
)

const (
	teacherID      = "22222222-2222-2222-2222-222222222222"
	studentID      = "22222222-2222-2222-2222-222222222223"
	otherStudentID = "22222222-2222-2222-2222-222222222224"
	thirdStudentID = "22222222-2222-2222-2222-222222222225"

	teacherToken      = "teacher-token"
	studentToken      = "student-token"
	strangerToken     = "stranger-token"
	misconfiguredAuth = "misconfigured-token"
)

type fakeAuth struct{}

func (fakeAuth) Resolve(_ context.Context, token string) (auth.Identity, error) {
	switch token {
	case teacherToken:
		return auth.Identity{SubjectID: teacherID, Role: identity.RoleTeacher}, nil
	case studentToken:
		return auth.Identity{SubjectID: studentID, Role: identity.RoleStudent}, nil
	case strangerToken:
		return auth.Identity{}, auth.ErrUnauthenticated
	case misconfiguredAuth:
		return auth.Identity{}, identity.ErrMisconfigured
	default:
		return auth.Identity{}, auth.ErrInvalidToken
	}
}

type countingCodes struct {
	CodeStore
	mu       sync.Mutex
	checks   int
	consumes int
}

func (c *countingCodes) Check(ctx context.Context, email, code string) error {
	c.mu.Lock()
	c.checks++
	c.mu.Unlock()
	return c.CodeStore.Check(ctx, email, code)
}

func (c *countingCodes) ConsumeForReset(ctx context.Context, email, code string) error {
	c.mu.Lock()
	c.consumes++
	c.mu.Unlock()
	return c.CodeStore.ConsumeForReset(ctx, email, code)
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeMailer) Send(_ context.Context, msg mail.Message) (mail.Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, msg)
	if f.err != nil {
		return mail.Result{Attempts: 1}, f.err
	}
	return mail.Result{Provider: "fake", Attempts: 1}, nil
}

type fakeLLM struct {
	mu       sync.Mutex
	calls    int
	messages []llm.Message
	reply    string
	err      error
}

func (f *fakeLLM) Complete(_ context.Context, messages []llm.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.messages = messages
	return f.reply, f.err
}

type fakeAccounts struct {
	mu        sync.Mutex
	users     map[string]identity.User
	passwords map[string]string
	updateErr error
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		users: map[string]identity.User{
			teacherID:      {ID: teacherID, Email: "teacher@school.edu", Role: identity.RoleTeacher},
			studentID:      {ID: studentID, Email: "a@b.com", Role: identity.RoleStudent},
			otherStudentID: {ID: otherStudentID, Email: "other@b.com", Role: identity.RoleStudent},
			thirdStudentID: {ID: thirdStudentID, Email: "third@b.com", Role: identity.RoleStudent},
		},
		passwords: map[string]string{},
	}
}

func (f *fakeAccounts) UserByEmail(_ context.Context, email string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, u := range f.users {
		if strings.EqualFold(u.Email, email) {
			return identity.User{ID: u.ID, Email: u.Email}, nil
		}
	}
	return identity.User{}, identity.ErrNotFound
}

func (f *fakeAccounts) Profile(_ context.Context, id string) (identity.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[id]
	if !ok {
		return identity.User{}, identity.ErrNotFound
	}
	return u, nil
}

func (f *fakeAccounts) UpdatePassword(_ context.Context, id, password string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	f.passwords[id] = password
	return nil
}

func (f *fakeAccounts) UpdateEmail(_ context.Context, id, email string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	u := f.users[id]
	u.Email = email
	f.users[id] = u
	return nil
}

func (f *fakeAccounts) EmailInUse(_ context.Context, email, exceptID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for id, u := range f.users {
		if id != exceptID && strings.EqualFold(u.Email, email) {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeAccounts) StudentIDs(_ context.Context) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var ids []string
	for id, u := range f.users {
		if u.Role == identity.RoleStudent {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (f *fakeAccounts) FilterStudentIDs(_ context.Context, ids []string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, id := range ids {
		if u, ok := f.users[id]; ok && u.Role == identity.RoleStudent {
			out = append(out, id)
		}
	}
	return out, nil
}

func (c *countingCodes) checkCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.checks
}

func (c *countingCodes) consumeCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.consumes
}

func (f *fakeMailer) fail(err error) {
	f.mu.Lock()
	f.err = err
	f.mu.Unlock()
}

func (f *fakeMailer) messages() []mail.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mail.Message(nil), f.sent...)
}

func (f *fakeLLM) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeLLM) lastMessages() []llm.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.messages
}

func (f *fakeAccounts) password(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.passwords[id]
}

func (f *fakeAccounts) passwordSnapshot() map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]string, len(f.passwords))
	for id, pw := range f.passwords {
		out[id] = pw
	}
	return out
}

func (f *fakeAccounts) email(id string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.users[id].Email
}

type testApp struct {
	url      string
	codes    *countingCodes
	mailer   *fakeMailer
	llm      *fakeLLM
	accounts *fakeAccounts
}

func testConfig() config.Config {
	return config.Config{
		SupabaseServiceKey: "service-key",
		CodeTTL:            10 * time.Minute,
		FeedbackEmail:      "sgqaiapp@gmail.com",
	}
}

func newTestApp(t *testing.T, cfg config.Config, generated ...string) *testApp {
	t.Helper()
	generate := codes.GenerateCode
	if len(generated) > 0 {
		next := 0
		generate = func() (string, error) {
			code := generated[next%len(generated)]
			next++
			return code, nil
		}
	}
	app := &testApp{
		codes:    &countingCodes{CodeStore: codes.NewStore(codes.NewMemoryKV(), codes.Options{Generate: generate})},
		mailer:   &fakeMailer{},
		llm:      &fakeLLM{reply: "建議：加入情境"},
		accounts: newFakeAccounts(),
	}
	server := NewServer(cfg, Deps{
		Auth:     fakeAuth{},
		Codes:    app.codes,
		Mail:     app.mailer,
		LLM:      app.llm,
		Accounts: app.accounts,
		Metrics:  metrics.New(),
		Logger:   zerolog.Nop(),
	})
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	app.url = srv.URL
	return app
}

func doReq(t *testing.T, method, url, token string, body interface{}) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatalf("request error: %v", err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("http error: %v", err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return out
}

func expectStatus(t *testing.T, resp *http.Response, want int) map[string]interface{} {
	t.Helper()
	body := decodeBody(t, resp)
	if resp.StatusCode != want {
		t.Fatalf("expected %d, got %d: %v", want, resp.StatusCode, body)
	}
	return body
}

func expectError(t *testing.T, resp *http.Response, want int, code string) {
	t.Helper()
	body := expectStatus(t, resp, want)
	if body["error"] != code {
		t.Fatalf("expected error %q, got %v", code, body["error"])
	}
}

func TestHealthAndRoot(t *testing.T) {
	app := newTestApp(t, testConfig())

	body := expectStatus(t, doReq(t, http.MethodGet, app.url+"/api/health", "", nil), http.StatusOK)
	require.Equal(t, "healthy", body["status"])

	body = expectStatus(t, doReq(t, http.MethodGet, app.url+"/", "", nil), http.StatusOK)
	require.Equal(t, "SGQ API Server", body["message"])

	resp := doReq(t, http.MethodGet, app.url+"/metrics", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAuthenticationPrecedesRoleCheck(t *testing.T) {
	app := newTestApp(t, testConfig())
	payload := map[string]interface{}{"title": "t", "body": "b"}

	expectError(t, doReq(t, http.MethodPost, app.url+"/api/send-notification", "", payload), http.StatusUnauthorized, "missing_token")
	expectError(t, doReq(t, http.MethodPost, app.url+"/api/send-notification", "garbage", payload), http.StatusUnauthorized, "invalid_token")
	expectError(t, doReq(t, http.MethodPost, app.url+"/api/send-notification", strangerToken, payload), http.StatusUnauthorized, "unauthenticated")
	expectError(t, doReq(t, http.MethodPost, app.url+"/api/send-notification", misconfiguredAuth, payload), http.StatusInternalServerError, "server_misconfigured")
}

func TestTeacherRoutesRejectStudents(t *testing.T) {
	app := newTestApp(t, testConfig())

	expectError(t, doReq(t, http.MethodPost, app.url+"/api/send-notification", studentToken, map[string]interface{}{
		"title": "t", "body": "b",
	}), http.StatusForbidden, "forbidden")
	expectError(t, doReq(t, http.MethodPost, app.url+"/api/admin/reset-student-password", studentToken, map[string]interface{}{
		"student_email": "other@b.com", "new_password": "longenough",
	}), http.StatusForbidden, "forbidden")
	require.Empty(t, app.accounts.passwordSnapshot())
}

func TestScaffoldingInvalidStageSkipsProvider(t *testing.T) {
	app := newTestApp(t, testConfig())

	resp := doReq(t, http.MethodPost, app.url+"/api/chatgpt/scaffolding", teacherToken, map[string]interface{}{
		"question": "She ___ to school every day.",
		"stage":    5,
	})
	expectError(t, resp, http.StatusBadRequest, "invalid_stage")
	require.Equal(t, 0, app.llm.callCount())
}

func TestScaffoldingReturnsCompletion(t *testing.T) {
	app := newTestApp(t, testConfig())

	body := expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/chatgpt/scaffolding", studentToken, map[string]interface{}{
		"question":       "She ___ to school every day.",
		"question_type":  "multipleChoice",
		"options":        []string{"go", "goes"},
		"correct_answer": "B",
		"stage":          2,
	}), http.StatusOK)
	require.Equal(t, "建議：加入情境", body["response"])
	require.Equal(t, 1, app.llm.callCount())
	require.Len(t, app.llm.lastMessages(), 2)
	require.Equal(t, llm.RoleSystem, app.llm.lastMessages()[0].Role)
	require.Contains(t, app.llm.lastMessages()[1].Content, "She ___ to school every day.")
	require.Contains(t, app.llm.lastMessages()[1].Content, "B. goes")
}

func TestScaffoldingHidesProviderError(t *testing.T) {
	app := newTestApp(t, testConfig())
	app.llm.err = errors.New("upstream said: invalid api key sk-123")

	resp := doReq(t, http.MethodPost, app.url+"/api/chatgpt/scaffolding", teacherToken, map[string]interface{}{
		"question": "q", "stage": 1,
	})
	body := expectStatus(t, resp, http.StatusInternalServerError)
	require.Equal(t, "llm_unavailable", body["error"])
	require.NotContains(t, body["detail"], "sk-123")
}

func TestFollowUpForwardsConversation(t *testing.T) {
	app := newTestApp(t, testConfig())

	expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/chatgpt/additional", studentToken, map[string]interface{}{
		"user_message": "為什麼選項太簡單？",
		"question":     "She ___ to school every day.",
		"stage":        3,
		"conversation_history": []map[string]string{
			{"type": "user", "content": "題目為: She ___ to school every day."},
			{"type": "assistant", "content": "語句：結構較單一"},
			{"type": "system", "content": "loading"},
		},
	}), http.StatusOK)

	require.Len(t, app.llm.lastMessages(), 4)
	require.Equal(t, llm.RoleSystem, app.llm.lastMessages()[0].Role)
	require.Equal(t, llm.RoleUser, app.llm.lastMessages()[1].Role)
	require.Equal(t, llm.RoleAssistant, app.llm.lastMessages()[2].Role)
	require.Contains(t, app.llm.lastMessages()[3].Content, "Stage 3")
	require.True(t, strings.HasSuffix(app.llm.lastMessages()[3].Content, "為什麼選項太簡單？"))
}

func TestChatRequiresQuestionAndMessage(t *testing.T) {
	app := newTestApp(t, testConfig())

	cases := []struct {
		path string
		body map[string]interface{}
	}{
		{"/api/chatgpt/scaffolding", map[string]interface{}{"stage": 1}},
		{"/api/chatgpt/scaffolding", map[string]interface{}{"question": "   ", "stage": 1}},
		{"/api/chatgpt/additional", map[string]interface{}{"question": "q", "stage": 1}},
		{"/api/chatgpt/additional", map[string]interface{}{"user_message": "why?", "stage": 1}},
		{"/api/chatgpt/additional", map[string]interface{}{"question": "q", "user_message": "", "stage": 1}},
	}
	for _, tc := range cases {
		expectError(t, doReq(t, http.MethodPost, app.url+tc.path, studentToken, tc.body), http.StatusBadRequest, "invalid_request")
	}
	require.Equal(t, 0, app.llm.callCount())
}

func TestAccountRoutesRequireEmailAndCode(t *testing.T) {
	app := newTestApp(t, testConfig())

	expectError(t, doReq(t, http.MethodPost, app.url+"/api/send-verification-code", "", map[string]string{}), http.StatusBadRequest, "invalid_request")
	expectError(t, doReq(t, http.MethodPost, app.url+"/api/verify-code", "", map[string]string{"email": "a@b.com"}), http.StatusBadRequest, "invalid_request")
	expectError(t, doReq(t, http.MethodPost, app.url+"/api/verify-code", "", map[string]string{"email": " ", "code": "123456"}), http.StatusBadRequest, "invalid_request")
	expectError(t, doReq(t, http.MethodPost, app.url+"/api/reset-password", "", map[string]string{
		"email": "a@b.com", "new_password": "longenough",
	}), http.StatusBadRequest, "invalid_request")
	expectError(t, doReq(t, http.MethodPost, app.url+"/api/reset-password", "", map[string]string{
		"code": "123456", "new_password": "longenough",
	}), http.StatusBadRequest, "invalid_request")

	require.Empty(t, app.mailer.messages())
	require.Equal(t, 0, app.codes.checkCount())
	require.Equal(t, 0, app.codes.consumeCount())
}

func TestPasswordResetScenario(t *testing.T) {
	app := newTestApp(t, testConfig(), "123456")

	body := expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/send-verification-code", "", map[string]string{
		"email": " A@B.com ",
	}), http.StatusOK)
	require.Equal(t, true, body["success"])
	require.NotContains(t, body, "code")
	require.Len(t, app.mailer.messages(), 1)
	require.Equal(t, "a@b.com", app.mailer.messages()[0].To)
	require.Contains(t, app.mailer.messages()[0].Text, "123456")

	expectError(t, doReq(t, http.MethodPost, app.url+"/api/verify-code", "", map[string]string{
		"email": "a@b.com", "code": "000000",
	}), http.StatusBadRequest, "code_mismatch")
	expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/verify-code", "", map[string]string{
		"email": "a@b.com", "code": "123456",
	}), http.StatusOK)

	expectError(t, doReq(t, http.MethodPost, app.url+"/api/reset-password", "", map[string]string{
		"email": "a@b.com", "code": "123456", "new_password": "short",
	}), http.StatusBadRequest, "password_too_short")
	require.Equal(t, 0, app.codes.consumeCount())

	expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/reset-password", "", map[string]string{
		"email": "a@b.com", "code": "123456", "new_password": "longenough",
	}), http.StatusOK)
	require.Equal(t, "longenough", app.accounts.password(studentID))

	expectError(t, doReq(t, http.MethodPost, app.url+"/api/reset-password", "", map[string]string{
		"email": "a@b.com", "code": "123456", "new_password": "longenough",
	}), http.StatusBadRequest, "code_not_found")
}

func TestResetPasswordRequiresVerifiedCode(t *testing.T) {
	app := newTestApp(t, testConfig(), "654321")

	expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/send-verification-code", "", map[string]string{
		"email": "a@b.com",
	}), http.StatusOK)
	expectError(t, doReq(t, http.MethodPost, app.url+"/api/reset-password", "", map[string]string{
		"email": "a@b.com", "code": "654321", "new_password": "longenough",
	}), http.StatusBadRequest, "code_not_verified")
	require.Empty(t, app.accounts.passwordSnapshot())
}

func TestResetPasswordFailsClosedWithoutElevatedKey(t *testing.T) {
	cfg := testConfig()
	cfg.SupabaseServiceKey = ""
	app := newTestApp(t, cfg)

	expectError(t, doReq(t, http.MethodPost, app.url+"/api/reset-password", "", map[string]string{
		"email": "a@b.com", "code": "123456", "new_password": "longenough",
	}), http.StatusInternalServerError, "server_misconfigured")
	require.Equal(t, 0, app.codes.consumeCount())
}

func TestResetPasswordUnknownUser(t *testing.T) {
	app := newTestApp(t, testConfig(), "111111")

	expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/send-verification-code", "", map[string]string{"email": "ghost@b.com"}), http.StatusOK)
	expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/verify-code", "", map[string]string{"email": "ghost@b.com", "code": "111111"}), http.StatusOK)
	expectError(t, doReq(t, http.MethodPost, app.url+"/api/reset-password", "", map[string]string{
		"email": "ghost@b.com", "code": "111111", "new_password": "longenough",
	}), http.StatusNotFound, "user_not_found")
}

func TestSendCodeIgnoresDeliveryFailure(t *testing.T) {
	app := newTestApp(t, testConfig())
	app.mailer.fail(mail.ErrUnconfigured)

	body := expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/send-verification-code", "", map[string]string{
		"email": "a@b.com",
	}), http.StatusOK)
	require.Equal(t, true, body["success"])

	expectError(t, doReq(t, http.MethodPost, app.url+"/api/send-verification-code", "", map[string]string{
		"email": "not-an-email",
	}), http.StatusBadRequest, "invalid_email")
}

func TestSendCodeRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.RateLimit = 2
	app := newTestApp(t, cfg)

	for i := 0; i < 2; i++ {
		expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/send-verification-code", "", map[string]string{"email": "a@b.com"}), http.StatusOK)
	}
	expectError(t, doReq(t, http.MethodPost, app.url+"/api/send-verification-code", "", map[string]string{"email": "a@b.com"}), http.StatusTooManyRequests, "rate_limited")
	// Other endpoints keep their own budget.
	expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/send-feedback", "", map[string]string{"subject": "s", "content": "c"}), http.StatusOK)
}

func TestAdminResetStudentPassword(t *testing.T) {
	app := newTestApp(t, testConfig())
	url := app.url + "/api/admin/reset-student-password"

	expectError(t, doReq(t, http.MethodPost, url, teacherToken, map[string]string{
		"student_email": "other@b.com", "new_password": "12345",
	}), http.StatusBadRequest, "password_too_short")
	expectError(t, doReq(t, http.MethodPost, url, teacherToken, map[string]string{
		"student_email": "nobody@b.com", "new_password": "longenough",
	}), http.StatusNotFound, "student_not_found")
	expectError(t, doReq(t, http.MethodPost, url, teacherToken, map[string]string{
		"student_email": "teacher@school.edu", "new_password": "longenough",
	}), http.StatusForbidden, "not_student")

	body := expectStatus(t, doReq(t, http.MethodPost, url, teacherToken, map[string]string{
		"student_email": " Other@B.com", "new_password": "longenough",
	}), http.StatusOK)
	require.Equal(t, "學生密碼已重置", body["message"])
	require.Equal(t, map[string]string{otherStudentID: "longenough"}, app.accounts.passwordSnapshot())
}

func TestUpdateStudentEmail(t *testing.T) {
	app := newTestApp(t, testConfig())
	url := app.url + "/api/admin/update-student-email"

	body := expectStatus(t, doReq(t, http.MethodPost, url, studentToken, map[string]string{
		"student_id": studentID, "new_email": "New@B.com",
	}), http.StatusOK)
	require.Equal(t, "a@b.com", body["old_email"])
	require.Equal(t, "new@b.com", body["new_email"])

	expectError(t, doReq(t, http.MethodPost, url, studentToken, map[string]string{
		"student_id": otherStudentID, "new_email": "x@b.com",
	}), http.StatusForbidden, "forbidden")
	expectError(t, doReq(t, http.MethodPost, url, teacherToken, map[string]string{
		"student_id": otherStudentID, "new_email": "not valid@",
	}), http.StatusBadRequest, "invalid_email")
	expectError(t, doReq(t, http.MethodPost, url, teacherToken, map[string]string{
		"student_id": otherStudentID, "new_email": "third@b.com",
	}), http.StatusBadRequest, "email_in_use")
	expectError(t, doReq(t, http.MethodPost, url, teacherToken, map[string]string{
		"student_id": teacherID, "new_email": "t2@school.edu",
	}), http.StatusForbidden, "not_student")
	expectError(t, doReq(t, http.MethodPost, url, teacherToken, map[string]string{
		"student_id": "33333333-3333-3333-3333-333333333333", "new_email": "t2@school.edu",
	}), http.StatusNotFound, "student_not_found")

	expectStatus(t, doReq(t, http.MethodPost, url, teacherToken, map[string]string{
		"student_id": otherStudentID, "new_email": "fresh@b.com",
	}), http.StatusOK)
	require.Equal(t, "fresh@b.com", app.accounts.email(otherStudentID))
}

func TestSendNotificationToAllStudents(t *testing.T) {
	app := newTestApp(t, testConfig())

	body := expectStatus(t, doReq(t, http.MethodPost, app.url+"/api/send-notification", teacherToken, map[string]interface{}{
		"title":          "考試提醒",
		"body":           "明天考文法",
		"scheduled_time": "2024-05-01T08:00:00.000",
	}), http.StatusOK)
	require.Equal(t, "通知已發送給 3 位學生", body["message"])
	note := body["notification"].(map[string]interface{})
	require.Equal(t, float64(3), note["student_count"])
	require.Len(t, note["student_ids"], 3)
	require.Equal(t, teacherID, note["sent_by"])
	require.Equal(t, "2024-05-01T08:00:00.000", note["scheduled_time"])
	require.NotEmpty(t, note["id"])
}

func TestSendNotificationValidatesRecipients(t *testing.T) {
	app := newTestApp(t, testConfig())
	url := app.url + "/api/send-notification"

	expectError(t, doReq(t, http.MethodPost, url, teacherToken, map[string]interface{}{
		"title": "t", "body": "b", "student_ids": []string{studentID, "not-a-uuid"},
	}), http.StatusBadRequest, "invalid_student_ids")
	expectError(t, doReq(t, http.MethodPost, url, teacherToken, map[string]interface{}{
		"title": "t", "body": "b", "student_ids": []string{studentID, teacherID},
	}), http.StatusBadRequest, "invalid_student_ids")
	expectError(t, doReq(t, http.MethodPost, url, teacherToken, map[string]interface{}{
		"title": "t", "body": "b", "scheduled_time": "tomorrow",
	}), http.StatusBadRequest, "invalid_scheduled_time")

	body := expectStatus(t, doReq(t, http.MethodPost, url, teacherToken, map[string]interface{}{
		"title": "t", "body": "b", "student_ids": []string{studentID, studentID, otherStudentID},
	}), http.StatusOK)
	note := body["notification"].(map[string]interface{})
	require.Equal(t, float64(2), note["student_count"])
}

func TestSendFeedback(t *testing.T) {
	app := newTestApp(t, testConfig())
	url := app.url + "/api/send-feedback"

	expectStatus(t, doReq(t, http.MethodPost, url, "", map[string]string{
		"subject": "閃退", "content": "<b>按下送出後閃退</b>", "app_version": "1.2.0",
	}), http.StatusOK)
	require.Len(t, app.mailer.messages(), 1)
	require.Equal(t, "sgqaiapp@gmail.com", app.mailer.messages()[0].To)
	require.Equal(t, "[應用程式回報] 閃退", app.mailer.messages()[0].Subject)
	require.NotContains(t, app.mailer.messages()[0].HTML, "<b>按下")

	expectError(t, doReq(t, http.MethodPost, url, "", map[string]string{"subject": " ", "content": "c"}), http.StatusBadRequest, "invalid_feedback")

	app.mailer.fail(mail.ErrDeliveryFailed)
	expectError(t, doReq(t, http.MethodPost, url, "", map[string]string{"subject": "s", "content": "c"}), http.StatusInternalServerError, "feedback_failed")
}
