package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"invigilation/internal/apperrors"
)

func TestIssueAndParse(t *testing.T) {
	iss := NewIssuer("invigilation", "secret", time.Minute)
	tok, err := iss.Issue(42, true)
	require.NoError(t, err)

	claims, err := iss.Parse(tok.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, int64(42), claims.FacultyID)
	assert.True(t, claims.Admin)
}

func TestParseExpiredIsUnauthenticated(t *testing.T) {
	iss := NewIssuer("invigilation", "secret", time.Minute)
	past := time.Now().Add(-time.Hour)
	iss.Now = func() time.Time { return past }
	tok, err := iss.Issue(1, false)
	require.NoError(t, err)

	iss.Now = time.Now
	_, err = iss.Parse(tok.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperrors.ErrUnauthenticated))
	assert.Equal(t, "Token has expired", apperrors.Message(err))
}

func TestParseWrongKeyIsInvalid(t *testing.T) {
	tok, err := NewIssuer("invigilation", "secret", time.Minute).Issue(1, false)
	require.NoError(t, err)

	_, err = NewIssuer("invigilation", "other", time.Minute).Parse(tok.AccessToken)
	assert.True(t, errors.Is(err, apperrors.ErrInvalidToken))
	assert.Equal(t, http.StatusUnprocessableEntity, apperrors.HTTPStatus(err))
}

func TestBearerMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	iss := NewIssuer("invigilation", "secret", time.Minute)
	tok, err := iss.Issue(7, false)
	require.NoError(t, err)

	r := gin.New()
	r.GET("/me", Bearer(iss), func(c *gin.Context) {
		claims, _ := ClaimsFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": claims.FacultyID})
	})

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing", "", http.StatusUnauthorized},
		{"not bearer", "Basic abc", http.StatusUnauthorized},
		{"garbage", "Bearer abc", http.StatusUnprocessableEntity},
		{"valid", "Bearer " + tok.AccessToken, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}
