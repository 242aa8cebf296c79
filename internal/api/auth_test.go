package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

const testSecret = "test-secret"

func authRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/protected", AuthMiddleware(testSecret), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"user": CurrentUserID(c)})
	})
	return r
}

func TestTokenRoundTrip(t *testing.T) {
	token, err := GenerateToken("u1", testSecret, time.Now().Add(time.Hour))
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	userID, err := parseToken(token, testSecret)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if userID != "u1" {
		t.Fatalf("user id = %q, want u1", userID)
	}
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	token, _ := GenerateToken("u1", testSecret, time.Now().Add(time.Hour))
	if _, err := parseToken(token, "other-secret"); err == nil {
		t.Fatal("wrong secret accepted")
	}
}

func TestParseTokenRejectsExpired(t *testing.T) {
	token, _ := GenerateToken("u1", testSecret, time.Now().Add(-time.Minute))
	if _, err := parseToken(token, testSecret); err == nil {
		t.Fatal("expired token accepted")
	}
}

func TestAuthMiddleware(t *testing.T) {
	router := authRouter()
	valid, _ := GenerateToken("u1", testSecret, time.Now().Add(time.Hour))

	tests := []struct {
		name       string
		header     string
		wantStatus int
	}{
		{"no header", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc123", http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + valid, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, req)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
		})
	}
}

func TestAuthMiddlewareSetsUser(t *testing.T) {
	router := authRouter()
	token, _ := GenerateToken("alice", testSecret, time.Now().Add(time.Hour))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if body := rec.Body.String(); body != `{"user":"alice"}` {
		t.Fatalf("body = %s", body)
	}
}
