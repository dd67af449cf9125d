package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

func newTestClient(t *testing.T, baseURL string) Client {
	t.Helper()
	t.Setenv("OPENAI_API_KEY", "test-key")
	t.Setenv("OPENAI_BASE_URL", baseURL)
	t.Setenv("OPENAI_MODEL", "primary-model")
	t.Setenv("OPENAI_MAX_RETRIES", "0")
	c, err := NewClient(logger.Nop())
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return c
}

func TestCompleteExtractsOutputText(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/responses" {
			t.Errorf("path: want=/v1/responses got=%s", r.URL.Path)
		}
		var req responsesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Instructions != "sys" || len(req.Input) != 1 || req.Input[0].Content != "hi" {
			t.Errorf("unexpected request: %+v", req)
		}
		fmt.Fprint(w, `{"model":"primary-model","output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"hello "},{"type":"output_text","text":"world"}]}],"usage":{"input_tokens":3,"output_tokens":2}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.Complete(context.Background(), Request{System: "sys", Messages: []Message{{Role: "user", Content: "hi"}}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "hello world" || resp.Model != "primary-model" {
		t.Fatalf("resp: want=hello world/primary-model got=%q/%q", resp.Text, resp.Model)
	}
}

func TestCompleteModelNotFoundIsRecognized(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusNotFound)
		fmt.Fprint(w, `{"error":{"code":"model_not_found","message":"nope"}}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	_, err := c.Complete(context.Background(), Request{Messages: []Message{{Content: "hi"}}})
	if !IsModelNotFound(err) {
		t.Fatalf("IsModelNotFound: want=true got=false (err=%v)", err)
	}
	if got := atomic.LoadInt32(&calls); got != 1 {
		t.Fatalf("calls: want=1 got=%d", got)
	}
}

func TestCompleteDropsRejectedTemperature(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		var req responsesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if n == 1 {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error":{"message":"Unsupported parameter: 'temperature' is not supported with this model."}}`)
			return
		}
		if req.Temperature != nil {
			t.Errorf("second call still sent temperature")
		}
		fmt.Fprint(w, `{"output":[{"type":"message","role":"assistant","content":[{"type":"output_text","text":"ok"}]}]}`)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	resp, err := c.Complete(context.Background(), Request{Messages: []Message{{Content: "hi"}}})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if resp.Text != "ok" || resp.Model != "primary-model" {
		t.Fatalf("resp: got=%+v", resp)
	}
}

func TestIsModelNotFoundIgnoresOtherErrors(t *testing.T) {
	if IsModelNotFound(&openAIHTTPError{StatusCode: 500, Body: "boom"}) {
		t.Fatalf("500 should not be model-not-found")
	}
	if IsModelNotFound(fmt.Errorf("plain")) {
		t.Fatalf("plain error should not be model-not-found")
	}
	if !IsModelNotFound(fmt.Errorf("wrapped: %w", NewModelNotFoundError("x"))) {
		t.Fatalf("wrapped not-found should be recognized")
	}
}
