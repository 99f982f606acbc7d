package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMiddleware(t *testing.T) {
	auth := NewAPIKeyAuthenticator([]APIKey{{Key: "secret", Name: "ops"}})

	var sawToken string
	handler := Middleware(auth)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawToken = GetToken(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	tests := []struct {
		name       string
		setHeader  func(*http.Request)
		wantStatus int
		wantToken  string
	}{
		{
			name:       "bearer header",
			setHeader:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer secret") },
			wantStatus: http.StatusOK,
			wantToken:  "secret",
		},
		{
			name:       "api key header",
			setHeader:  func(r *http.Request) { r.Header.Set("X-API-Key", "secret") },
			wantStatus: http.StatusOK,
			wantToken:  "secret",
		},
		{
			name:       "wrong key",
			setHeader:  func(r *http.Request) { r.Header.Set("Authorization", "Bearer nope") },
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "no credential",
			setHeader:  func(*http.Request) {},
			wantStatus: http.StatusUnauthorized,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sawToken = ""
			req := httptest.NewRequest(http.MethodPost, "/", nil)
			tt.setHeader(req)
			rec := httptest.NewRecorder()

			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, tt.wantToken, sawToken)
			}
		})
	}
}

func TestMiddleware_NilAuthenticatorPropagatesToken(t *testing.T) {
	var sawToken string
	handler := Middleware(nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawToken = GetToken(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, "anything", sawToken)
}
