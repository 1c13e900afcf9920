package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"procurement/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var secret = []byte("test-secret")

func sign(t *testing.T, claims jwt.MapClaims, key []byte) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(key)
	require.NoError(t, err)
	return s
}

func TestParseToken(t *testing.T) {
	id := uuid.New()

	claims, err := ParseToken(secret, sign(t, jwt.MapClaims{"sub": id.String(), "role": "manager"}, secret))
	require.NoError(t, err)
	assert.Equal(t, id, claims.UserID)
	assert.Equal(t, model.RoleManager, claims.Role)

	bad := map[string]string{
		"wrong key":    sign(t, jwt.MapClaims{"sub": id.String(), "role": "manager"}, []byte("other")),
		"unknown role": sign(t, jwt.MapClaims{"sub": id.String(), "role": "auditor"}, secret),
		"bad subject":  sign(t, jwt.MapClaims{"sub": "42", "role": "manager"}, secret),
		"expired":      sign(t, jwt.MapClaims{"sub": id.String(), "role": "manager", "exp": time.Now().Add(-time.Hour).Unix()}, secret),
		"garbage":      "not.a.token",
	}
	for name, token := range bad {
		t.Run(name, func(t *testing.T) {
			_, err := ParseToken(secret, token)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestAuthenticateAndRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/approvals", Authenticate(secret), RequireRole(model.RoleManager), func(c *gin.Context) {
		user, ok := CurrentUser(c)
		require.True(t, ok)
		c.String(http.StatusOK, user.UserID.String())
	})

	call := func(header string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/approvals", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	id := uuid.New()
	rec := call("Bearer " + sign(t, jwt.MapClaims{"sub": id.String(), "role": "manager"}, secret))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, id.String(), rec.Body.String())

	assert.Equal(t, http.StatusForbidden, call("Bearer "+sign(t, jwt.MapClaims{"sub": id.String(), "role": "requester"}, secret)).Code)
	assert.Equal(t, http.StatusUnauthorized, call("").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Token abc").Code)
	assert.Equal(t, http.StatusUnauthorized, call("Bearer abc").Code)
}
