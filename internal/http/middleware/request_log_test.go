package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

func TestRequestLoggerFields(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, observed := observer.New(zapcore.DebugLevel)
	r := gin.New()
	r.Use(TraceContext(), RequestLogger(&logger.Logger{SugaredLogger: zap.New(core).Sugar()}))
	r.GET("/api/sessions/:id", func(c *gin.Context) { c.Status(http.StatusNotFound) })

	req := httptest.NewRequest(http.MethodGet, "/api/sessions/abc", nil)
	req.Header.Set(HeaderTraceID, "trace-1")
	r.ServeHTTP(httptest.NewRecorder(), req)

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("log lines: want=%d got=%d", 1, len(entries))
	}
	e := entries[0]
	if e.Level != zapcore.WarnLevel || e.Message != "request rejected" {
		t.Fatalf("entry: want=warn/request rejected got=%s/%s", e.Level, e.Message)
	}
	fields := e.ContextMap()
	if fields["route"] != "/api/sessions/:id" || fields["resource_id"] != "abc" || fields["trace_id"] != "trace-1" {
		t.Fatalf("fields: got=%v", fields)
	}
	if _, ok := fields["user_id"]; ok {
		t.Fatalf("user_id: want absent got=%v", fields["user_id"])
	}
}

func TestRequestLoggerNilLogger(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestLogger(nil))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: want=%d got=%d", http.StatusOK, rec.Code)
	}
}
