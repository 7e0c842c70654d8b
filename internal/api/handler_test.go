//nolint:revive // "api" package name is intentionally concise for this layer.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/sciencebuddy/internal/auth"
	"github.com/ashureev/sciencebuddy/internal/blob"
	"github.com/ashureev/sciencebuddy/internal/completion"
	"github.com/ashureev/sciencebuddy/internal/content"
	"github.com/ashureev/sciencebuddy/internal/dialogue"
	"github.com/ashureev/sciencebuddy/internal/logsink"
	"github.com/ashureev/sciencebuddy/internal/session"
	"github.com/ashureev/sciencebuddy/internal/store"
)

const unitMetal = "金属のあたたまり方"

func TestJSON(t *testing.T) {
	w := httptest.NewRecorder()
	data := map[string]string{"foo": "bar"}

	JSON(w, http.StatusOK, data)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("Expected status 200, got %d", resp.StatusCode)
	}

	var got map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&got); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}

	if got["foo"] != "bar" {
		t.Errorf("Expected foo=bar, got %v", got["foo"])
	}
}

type testEnv struct {
	router  http.Handler
	backend *completion.StubBackend
}

func newTestEnv(t *testing.T, rateLimit int) *testEnv {
	t.Helper()

	files, err := blob.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	progress := store.NewDocumentStore(files, nil)
	logs := logsink.New(files, nil)
	provider, err := content.NewFileProvider("", nil)
	if err != nil {
		t.Fatalf("NewFileProvider: %v", err)
	}

	backend := completion.NewStubBackend()
	backend.Fallback = "どうしてそう思ったのかな？"
	gateway := completion.NewGateway(backend, completion.GatewayConfig{MaxAttempts: 3}, nil)

	engine := dialogue.NewEngine(dialogue.Deps{
		Progress:    progress,
		Content:     provider,
		Completer:   gateway,
		Logs:        logs,
		Transcripts: logs,
	}, dialogue.DefaultPolicy(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := NewHandler(Deps{
		Engine:  engine,
		Content: provider,
		Guard:   session.NewGuard(nil),
		Auth: auth.New(auth.Config{
			Credentials: map[string]string{"teacher": "science2025", "tanaka": "pw"},
			Classes:     map[string][]string{"tanaka": {"1"}},
		}, nil),
		Logs:     logs,
		Progress: progress,
		Limiter:  NewRateLimiter(ctx, rateLimit, time.Minute),
		IsDev:    true,
	})

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	return &testEnv{router: r, backend: backend}
}

type call struct {
	method string
	path   string
	body   any
	token  string
	bearer string
	agent  string
}

func (e *testEnv) do(t *testing.T, c call) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if c.body != nil {
		if err := json.NewEncoder(&buf).Encode(c.body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(c.method, c.path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("X-Session-Token", c.token)
	}
	if c.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+c.bearer)
	}
	if c.agent != "" {
		req.Header.Set("User-Agent", c.agent)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) login(t *testing.T, class, student, agent string) sessionResponse {
	t.Helper()
	rec := e.do(t, call{
		method: http.MethodPost,
		path:   "/api/session",
		body:   sessionRequest{ClassNumber: class, StudentNumber: student},
		agent:  agent,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("create session: status %d: %s", rec.Code, rec.Body.String())
	}
	var resp sessionResponse
	decodeBody(t, rec, &resp)
	return resp
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

func unitPath(suffix string) string {
	return "/api/units/" + url.PathEscape(unitMetal) + suffix
}

func TestLearnerFlow(t *testing.T) {
	env := newTestEnv(t, 100)
	s := env.login(t, "1", "7", "tablet")
	if s.Token == "" || s.Notice != "" {
		t.Fatalf("unexpected session response: %+v", s)
	}

	rec := env.do(t, call{method: http.MethodGet, path: unitPath("/resume"), token: s.Token})
	if rec.Code != http.StatusOK {
		t.Fatalf("resume: %d %s", rec.Code, rec.Body.String())
	}
	var resume dialogue.ResumeState
	decodeBody(t, rec, &resume)
	if resume.OpeningQuestion == "" || resume.Progress.CurrentStage != "prediction" {
		t.Errorf("unexpected resume state: %+v", resume)
	}

	var turn dialogue.TurnResult
	for i, msg := range []string{"熱くなると思う", "触ったら熱かったから"} {
		rec = env.do(t, call{
			method: http.MethodPost,
			path:   unitPath("/chat"),
			body:   chatRequest{Stage: "prediction", Message: msg},
			token:  s.Token,
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("chat %d: %d %s", i, rec.Code, rec.Body.String())
		}
		decodeBody(t, rec, &turn)
	}
	if turn.ConversationCount != 2 || !turn.SuggestSummary || turn.Reply == "" {
		t.Errorf("unexpected turn: %+v", turn)
	}

	rec = env.do(t, call{method: http.MethodPost, path: unitPath("/experiment"), token: s.Token})
	if rec.Code != http.StatusConflict {
		t.Errorf("experiment before summary: status %d, want 409", rec.Code)
	}

	env.backend.Push(completion.StubResponse{Text: "熱いところから冷たいところへ伝わると思います。"})
	rec = env.do(t, call{
		method: http.MethodPost,
		path:   unitPath("/summary"),
		body:   summaryRequest{Stage: "prediction"},
		token:  s.Token,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("summary: %d %s", rec.Code, rec.Body.String())
	}
	var summary map[string]string
	decodeBody(t, rec, &summary)
	if summary["summary"] != "熱いところから冷たいところへ伝わると思います。" {
		t.Errorf("summary = %q", summary["summary"])
	}

	for _, step := range []struct {
		path  string
		stage string
	}{
		{"/experiment", "experiment"},
		{"/experiment/complete", "experiment"},
		{"/reflection", "reflection"},
	} {
		rec = env.do(t, call{method: http.MethodPost, path: unitPath(step.path), token: s.Token})
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: %d %s", step.path, rec.Code, rec.Body.String())
		}
		var progress struct {
			CurrentStage string `json:"current_stage"`
		}
		decodeBody(t, rec, &progress)
		if progress.CurrentStage != step.stage {
			t.Errorf("%s: current_stage = %q, want %q", step.path, progress.CurrentStage, step.stage)
		}
	}

	rec = env.do(t, call{method: http.MethodDelete, path: "/api/session", token: s.Token})
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete session: %d", rec.Code)
	}
	rec = env.do(t, call{method: http.MethodGet, path: unitPath("/resume"), token: s.Token})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("resume after logout: %d, want 401", rec.Code)
	}
}

func TestSessionTakeover(t *testing.T) {
	env := newTestEnv(t, 100)
	first := env.login(t, "1", "7", "tablet-a")
	second := env.login(t, "1", "7", "tablet-b")

	if second.Notice == "" {
		t.Error("expected a takeover notice")
	}

	rec := env.do(t, call{method: http.MethodGet, path: unitPath("/resume"), token: first.Token})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "session_terminated" {
		t.Errorf("error = %q, want session_terminated", body["error"])
	}

	rec = env.do(t, call{method: http.MethodGet, path: unitPath("/resume"), token: second.Token})
	if rec.Code != http.StatusOK {
		t.Errorf("new session should work, got %d", rec.Code)
	}
}

func TestRequestValidation(t *testing.T) {
	env := newTestEnv(t, 100)

	rec := env.do(t, call{
		method: http.MethodPost,
		path:   "/api/session",
		body:   sessionRequest{ClassNumber: "一組", StudentNumber: "7"},
	})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid identity: status %d, want 400", rec.Code)
	}

	s := env.login(t, "1", "7", "tablet")
	tests := []struct {
		name string
		c    call
		want int
	}{
		{"unknown unit", call{method: http.MethodGet, path: "/api/units/" + url.PathEscape("宇宙") + "/resume"}, http.StatusNotFound},
		{"bad stage", call{method: http.MethodPost, path: unitPath("/chat"), body: chatRequest{Stage: "lunch", Message: "a"}}, http.StatusBadRequest},
		{"empty message", call{method: http.MethodPost, path: unitPath("/chat"), body: chatRequest{Stage: "prediction", Message: "  "}}, http.StatusBadRequest},
		{"experiment chat", call{method: http.MethodPost, path: unitPath("/chat"), body: chatRequest{Stage: "experiment", Message: "a"}}, http.StatusBadRequest},
		{"locked stage", call{method: http.MethodPost, path: unitPath("/chat"), body: chatRequest{Stage: "reflection", Message: "a"}}, http.StatusConflict},
		{"reflection too early", call{method: http.MethodPost, path: unitPath("/reflection")}, http.StatusConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.c.token = s.Token
			if rec := env.do(t, tt.c); rec.Code != tt.want {
				t.Errorf("status = %d, want %d: %s", rec.Code, tt.want, rec.Body.String())
			}
		})
	}
}

func TestGatewayErrorMapping(t *testing.T) {
	env := newTestEnv(t, 100)
	env.backend.Fallback = ""
	s := env.login(t, "1", "7", "tablet")
	chat := call{method: http.MethodPost, path: unitPath("/chat"), body: chatRequest{Stage: "prediction", Message: "熱くなる"}, token: s.Token}

	env.backend.Push(completion.StubResponse{Err: &completion.StatusError{StatusCode: http.StatusUnauthorized, Message: "bad key"}})
	rec := env.do(t, chat)
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("auth failure: status %d, want 502", rec.Code)
	}
	var body map[string]string
	decodeBody(t, rec, &body)
	if body["error"] != "auth" || body["message"] == "" {
		t.Errorf("unexpected body: %v", body)
	}

	// The empty stub answers 503 on every attempt.
	rec = env.do(t, chat)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unreachable: status %d, want 503", rec.Code)
	}
	decodeBody(t, rec, &body)
	if body["error"] != "unreachable" {
		t.Errorf("error = %q, want unreachable", body["error"])
	}
}

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, 2)
	s := env.login(t, "1", "7", "tablet")
	chat := call{method: http.MethodPost, path: unitPath("/chat"), body: chatRequest{Stage: "prediction", Message: "熱くなる"}, token: s.Token}

	for i := 0; i < 2; i++ {
		if rec := env.do(t, chat); rec.Code != http.StatusOK {
			t.Fatalf("chat %d: %d", i, rec.Code)
		}
	}
	if rec := env.do(t, chat); rec.Code != http.StatusTooManyRequests {
		t.Errorf("status = %d, want 429", rec.Code)
	}
}

func TestTeacherRoutes(t *testing.T) {
	env := newTestEnv(t, 100)

	if rec := env.do(t, call{method: http.MethodGet, path: "/api/teacher/logs"}); rec.Code != http.StatusUnauthorized {
		t.Fatalf("logs without login: %d, want 401", rec.Code)
	}
	rec := env.do(t, call{method: http.MethodPost, path: "/api/teacher/login", body: loginRequest{TeacherID: "tanaka", Password: "nope"}})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("bad login: %d, want 401", rec.Code)
	}

	for _, learner := range []struct{ class, student string }{{"1", "7"}, {"2", "3"}} {
		s := env.login(t, learner.class, learner.student, "tablet-"+learner.class)
		rec := env.do(t, call{method: http.MethodPost, path: unitPath("/chat"), body: chatRequest{Stage: "prediction", Message: "熱くなる"}, token: s.Token})
		if rec.Code != http.StatusOK {
			t.Fatalf("chat: %d", rec.Code)
		}
	}

	rec = env.do(t, call{method: http.MethodPost, path: "/api/teacher/login", body: loginRequest{TeacherID: "tanaka", Password: "pw"}})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d", rec.Code)
	}
	var login map[string]string
	decodeBody(t, rec, &login)
	token := login["token"]

	rec = env.do(t, call{method: http.MethodGet, path: "/api/teacher/logs", bearer: token})
	if rec.Code != http.StatusOK {
		t.Fatalf("logs: %d", rec.Code)
	}
	var logs struct {
		Day     string `json:"day"`
		Entries []struct {
			ClassNumber string `json:"class_number"`
			LogType     string `json:"log_type"`
		} `json:"entries"`
	}
	decodeBody(t, rec, &logs)
	if len(logs.Entries) != 1 || logs.Entries[0].ClassNumber != "1" || logs.Entries[0].LogType != "prediction_chat" {
		t.Errorf("tanaka should see only class 1: %+v", logs.Entries)
	}

	rec = env.do(t, call{method: http.MethodGet, path: "/api/teacher/days", bearer: token})
	var days map[string][]string
	decodeBody(t, rec, &days)
	if len(days["days"]) != 1 || days["days"][0] != logs.Day {
		t.Errorf("days = %v, want [%s]", days["days"], logs.Day)
	}

	rec = env.do(t, call{method: http.MethodGet, path: "/api/teacher/progress", bearer: token})
	var progress struct {
		Records []store.Record `json:"records"`
	}
	decodeBody(t, rec, &progress)
	if len(progress.Records) != 1 || progress.Records[0].Identity.ClassNumber != "1" {
		t.Errorf("progress = %+v", progress.Records)
	}

	if rec := env.do(t, call{method: http.MethodPost, path: "/api/teacher/logout", bearer: token}); rec.Code != http.StatusNoContent {
		t.Errorf("logout: %d", rec.Code)
	}
	if rec := env.do(t, call{method: http.MethodGet, path: "/api/teacher/days", bearer: token}); rec.Code != http.StatusUnauthorized {
		t.Errorf("days after logout: %d, want 401", rec.Code)
	}
}

func TestHealthAndUnits(t *testing.T) {
	env := newTestEnv(t, 100)

	rec := env.do(t, call{method: http.MethodGet, path: "/health"})
	if rec.Code != http.StatusOK {
		t.Errorf("health: %d", rec.Code)
	}

	rec = env.do(t, call{method: http.MethodGet, path: "/api/units"})
	var units map[string][]string
	decodeBody(t, rec, &units)
	if len(units["units"]) != 4 || units["units"][0] != unitMetal {
		t.Errorf("units = %v", units["units"])
	}
}
