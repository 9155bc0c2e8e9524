package middleware

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClaims struct {
	role    string
	subject string
}

func (c testClaims) GetRole() string { return c.role }
func (c testClaims) GetSubject() (string, error) { return c.subject, nil }

// testTokenValidator accepts tokens registered in a map.
type testTokenValidator map[string]testClaims

func (v testTokenValidator) ValidateToken(tokenString string) (RoleClaims, error) {
	c, ok := v[tokenString]
	if !ok {
		return nil, fmt.Errorf("invalid token")
	}
	return c, nil
}

func protected(t *testing.T, validator TokenValidator) (http.Handler, *string) {
	t.Helper()
	var seen string
	h := OperatorAuth(validator)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s, err := GetSubject(r); err == nil {
			seen = s
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	return h, &seen
}

func TestOperatorAuth(t *testing.T) {
	validator := testTokenValidator{
		"op-token":     {role: RoleOperator, subject: "alice"},
		"viewer-token": {role: "viewer", subject: "bob"},
	}

	tests := []struct {
		name        string
		header      string
		wantStatus  int
		wantSubject string
	}{
		{"operator", "Bearer op-token", http.StatusNoContent, "alice"},
		{"lowercase scheme", "bearer op-token", http.StatusNoContent, "alice"},
		{"wrong role", "Bearer viewer-token", http.StatusForbidden, ""},
		{"unknown token", "Bearer nope", http.StatusUnauthorized, ""},
		{"missing header", "", http.StatusUnauthorized, ""},
		{"basic scheme", "Basic op-token", http.StatusUnauthorized, ""},
		{"extra fields", "Bearer op-token extra", http.StatusUnauthorized, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, seen := protected(t, validator)
			req := httptest.NewRequest(http.MethodPost, "/jobs/1/rescue", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Equal(t, tt.wantSubject, *seen)
		})
	}
}

func TestOperatorAuth_NilValidatorIsOpen(t *testing.T) {
	h, _ := protected(t, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/jobs/1/reset", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestGetSubject_Missing(t *testing.T) {
	_, err := GetSubject(httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)
}
