package main

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/imrishuroy/course-orderflow/internal/auth"
	"github.com/imrishuroy/course-orderflow/internal/config"
	"github.com/imrishuroy/course-orderflow/internal/gateway"
	"github.com/imrishuroy/course-orderflow/internal/handlers"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestSelectGateway(t *testing.T) {
	live := selectGateway(config.GatewayConfig{Mode: config.ModeLive, KeyID: "rzp_live", KeySecret: "s3cret", Timeout: time.Second}, discard())
	assert.IsType(t, &gateway.Razorpay{}, live.client)
	assert.Equal(t, "s3cret", live.paySecret)
	assert.False(t, live.allowMock)

	mock := selectGateway(config.GatewayConfig{Mode: config.ModeMock, MockSecret: "mock_key_secret"}, discard())
	assert.IsType(t, &gateway.Mock{}, mock.client)
	assert.Equal(t, "rzp_test_mock", mock.client.KeyID())
	assert.Equal(t, "mock_key_secret", mock.paySecret)
	assert.True(t, mock.allowMock)

	missing := selectGateway(config.GatewayConfig{Mode: config.ModeLive}, discard())
	assert.IsType(t, gateway.Unavailable{}, missing.client)
	assert.Empty(t, missing.paySecret)
}

func TestSetupRouter_Health(t *testing.T) {
	r := setupRouter(discard(), handlers.HandlerConfig{Auth: auth.NewAuthenticator("secret")})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/orders", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
