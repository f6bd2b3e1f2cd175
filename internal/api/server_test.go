package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/evscmms/assistant/internal/calltrace"
	"github.com/evscmms/assistant/internal/conversation"
	"github.com/evscmms/assistant/internal/log"
	"github.com/evscmms/assistant/internal/model"
	"github.com/evscmms/assistant/internal/orchestrator"
)

// stubRunner returns a canned response or error.
type stubRunner struct {
	resp *orchestrator.TurnResponse
	err  error
	last orchestrator.TurnRequest
}

func (s *stubRunner) Turn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResponse, error) {
	s.last = req
	if s.err != nil {
		return nil, s.err
	}
	return s.resp, nil
}

func newTestServer(t *testing.T, runner TurnRunner, store *conversation.Store, traceLog *calltrace.Log) *Server {
	t.Helper()
	if store == nil {
		store = conversation.NewStore(conversation.Config{Logger: log.NewNop()})
	}
	if traceLog == nil {
		traceLog = calltrace.NewLog()
	}
	srv, err := NewServer(ServerConfig{
		Logger: log.NewNop(),
		Runner: runner,
		Store:  store,
		Trace:  traceLog,
	})
	if err != nil {
		t.Fatalf("NewServer() unexpected error: %v", err)
	}
	return srv
}

func doJSON(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestChat_Success(t *testing.T) {
	runner := &stubRunner{resp: &orchestrator.TurnResponse{
		ConversationID: "conv-1",
		Answer:         "Stock is healthy.",
		Invoked:        []string{"get_inventory"},
		CreatedAt:      time.Now().UTC(),
	}}
	srv := newTestServer(t, runner, nil, nil)

	rec := doJSON(t, srv, http.MethodPost, "/api/ai/chat", `{"message":"how is stock?","user_id":"u1"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}

	var resp orchestrator.TurnResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Answer != "Stock is healthy." || resp.ConversationID != "conv-1" {
		t.Errorf("resp = %+v", resp)
	}
	if runner.last.Message != "how is stock?" || runner.last.UserID != "u1" {
		t.Errorf("runner saw %+v", runner.last)
	}
}

func TestChat_BadJSON(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, nil, nil)
	rec := doJSON(t, srv, http.MethodPost, "/api/ai/chat", `{"message":`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestChat_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"empty message", orchestrator.ErrEmptyMessage, http.StatusBadRequest, "invalid_request"},
		{"busy", orchestrator.ErrConversationBusy, http.StatusTooManyRequests, "conversation_busy"},
		{"iteration cap", orchestrator.ErrMaxIterations, http.StatusBadGateway, "max_iterations"},
		{"model down", model.ErrModelUnavailable, http.StatusServiceUnavailable, "model_unavailable"},
		{"circuit open", model.ErrCircuitOpen, http.StatusServiceUnavailable, "model_unavailable"},
		{"malformed reply", model.ErrMalformedReply, http.StatusBadGateway, "malformed_reply"},
		{"cancelled", context.Canceled, http.StatusRequestTimeout, "request_cancelled"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &stubRunner{err: tt.err}, nil, nil)
			rec := doJSON(t, srv, http.MethodPost, "/api/ai/chat", `{"message":"hi"}`)
			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body errorBody
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatalf("decoding error body: %v", err)
			}
			if body.Error != tt.wantCode {
				t.Errorf("error code = %s, want %s", body.Error, tt.wantCode)
			}
		})
	}
}

func TestGetConversation(t *testing.T) {
	store := conversation.NewStore(conversation.Config{Logger: log.NewNop()})
	info := store.GetOrCreate("conv-7", "u1")
	if err := store.Append(info.ID,
		conversation.NewUserMessage("hello"),
		conversation.NewModelMessage("hi there"),
	); err != nil {
		t.Fatalf("Append() unexpected error: %v", err)
	}
	srv := newTestServer(t, &stubRunner{}, store, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/ai/conversations/conv-7", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp conversationResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if resp.Conversation.ID != "conv-7" || len(resp.Messages) != 2 {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGetConversation_NotFound(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, nil, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/ai/conversations/nope", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetTrace(t *testing.T) {
	store := conversation.NewStore(conversation.Config{Logger: log.NewNop()})
	store.GetOrCreate("conv-9", "u1")
	traceLog := calltrace.NewLog()
	traceLog.Record("conv-9", calltrace.Entry{Function: "get_inventory", Success: true})
	srv := newTestServer(t, &stubRunner{}, store, traceLog)

	rec := doJSON(t, srv, http.MethodGet, "/api/ai/conversations/conv-9/trace", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
	}
	var resp traceResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if len(resp.Entries) != 1 || resp.Entries[0].Function != "get_inventory" {
		t.Errorf("resp = %+v", resp)
	}
}

func TestGetTrace_EmptyForKnownConversation(t *testing.T) {
	store := conversation.NewStore(conversation.Config{Logger: log.NewNop()})
	store.GetOrCreate("conv-quiet", "u1")
	srv := newTestServer(t, &stubRunner{}, store, nil)

	rec := doJSON(t, srv, http.MethodGet, "/api/ai/conversations/conv-quiet/trace", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"entries":[]`) {
		t.Errorf("body = %s, want empty entries array", rec.Body.String())
	}
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, nil, nil)
	rec := doJSON(t, srv, http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t, &stubRunner{}, nil, nil)
	rec := doJSON(t, srv, http.MethodGet, "/api/ai/chat", "")
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	})
	handler := recoveryMiddleware(log.NewNop())(panicky)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
