package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/yungbote/planforge-backend/internal/platform/ctxutil"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

func signed(t *testing.T, secret string, method jwt.SigningMethod, claims jwt.RegisteredClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func serveAuth(am *AuthMiddleware, header string) (*httptest.ResponseRecorder, uuid.UUID) {
	var seen uuid.UUID
	r := gin.New()
	r.Use(am.RequireAuth())
	r.GET("/api/me", func(c *gin.Context) {
		if rd := ctxutil.GetRequestData(c.Request.Context()); rd != nil {
			seen = rd.UserID
		}
		c.Status(http.StatusOK)
	})
	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec, seen
}

func TestRequireAuth(t *testing.T) {
	gin.SetMode(gin.TestMode)
	am := NewAuthMiddleware(logger.Nop(), "s3cret")
	user := uuid.New()
	valid := signed(t, "s3cret", jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user.String(),
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})

	rec, seen := serveAuth(am, "Bearer "+valid)
	if rec.Code != http.StatusOK || seen != user {
		t.Fatalf("valid token: want=200/%s got=%d/%s", user, rec.Code, seen)
	}

	cases := map[string]string{
		"missing":     "",
		"wrong key":   "Bearer " + signed(t, "other", jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: user.String()}),
		"expired":     "Bearer " + signed(t, "s3cret", jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: user.String(), ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute))}),
		"bad subject": "Bearer " + signed(t, "s3cret", jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: "alice"}),
		"wrong alg":   "Bearer " + signed(t, "s3cret", jwt.SigningMethodHS512, jwt.RegisteredClaims{Subject: user.String()}),
	}
	for name, header := range cases {
		if rec, _ := serveAuth(am, header); rec.Code != http.StatusUnauthorized {
			t.Fatalf("%s: want=401 got=%d", name, rec.Code)
		}
	}
}
