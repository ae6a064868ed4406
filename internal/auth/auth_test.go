package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	a := NewAuthenticator("jwt-secret")
	tok, err := a.Issue(Caller{UserID: 42, Role: "student"}, time.Hour)
	require.NoError(t, err)

	caller, err := a.Parse(tok)
	require.NoError(t, err)
	assert.Equal(t, Caller{UserID: 42, Role: "student"}, caller)
	assert.False(t, caller.IsAdmin())
	assert.True(t, caller.CanAccess(42))
	assert.False(t, caller.CanAccess(43))
	assert.True(t, Caller{UserID: 1, Role: RoleAdmin}.CanAccess(43))
}

func TestParse_Rejects(t *testing.T) {
	a := NewAuthenticator("jwt-secret")

	other, err := NewAuthenticator("other").Issue(Caller{UserID: 1}, time.Hour)
	require.NoError(t, err)
	_, err = a.Parse(other)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired, err := a.Issue(Caller{UserID: 1}, -time.Minute)
	require.NoError(t, err)
	_, err = a.Parse(expired)
	assert.ErrorIs(t, err, ErrInvalidToken)

	noID, err := a.Issue(Caller{Role: RoleAdmin}, time.Hour)
	require.NoError(t, err)
	_, err = a.Parse(noID)
	assert.ErrorIs(t, err, ErrInvalidToken)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{ID: 1})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = a.Parse(unsigned)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = NewAuthenticator("").Parse(other)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func newRouter(a *Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", a.Middleware(), func(c *gin.Context) {
		caller, _ := FromGin(c)
		c.JSON(http.StatusOK, gin.H{"id": caller.UserID})
	})
	r.GET("/admin", a.Middleware(), RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestMiddleware(t *testing.T) {
	a := NewAuthenticator("jwt-secret")
	r := newRouter(a)
	student, _ := a.Issue(Caller{UserID: 7, Role: "student"}, time.Hour)
	admin, _ := a.Issue(Caller{UserID: 1, Role: RoleAdmin}, time.Hour)

	cases := []struct {
		name   string
		path   string
		header string
		want   int
	}{
		{"no header", "/me", "", http.StatusUnauthorized},
		{"bad scheme", "/me", "Basic abc", http.StatusUnauthorized},
		{"bad token", "/me", "Bearer nope", http.StatusUnauthorized},
		{"ok", "/me", "Bearer " + student, http.StatusOK},
		{"student on admin route", "/admin", "Bearer " + student, http.StatusForbidden},
		{"admin", "/admin", "Bearer " + admin, http.StatusNoContent},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tc.want, w.Code)
			if tc.want == http.StatusOK {
				assert.JSONEq(t, `{"id":7}`, w.Body.String())
			}
		})
	}
}
