package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/fluentvoice/server/internal/auth"
	"github.com/fluentvoice/server/internal/websocket"
)

// InitRoutes initializes all API routes
func InitRoutes(e *echo.Echo, hub *websocket.Hub, issuer *auth.TokenIssuer, logger *zap.Logger) {
	// Health check
	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"service": "fluentvoice-server",
		})
	})

	// API v1 routes
	v1 := e.Group("/api/v1")

	v1.POST("/auth/anonymous", func(c echo.Context) error {
		return anonymousAuth(c, issuer, logger)
	})

	// WebSocket endpoint with JWT validation
	e.GET("/ws", func(c echo.Context) error {
		return websocketWithAuth(hub, c, issuer, logger)
	})
}

// anonymousAuth issues a session token for an anonymous speaker. No
// credentials are involved; the anonymous ID only keys the speaker's history.
func anonymousAuth(c echo.Context, issuer *auth.TokenIssuer, logger *zap.Logger) error {
	var req AnonymousAuthRequest
	if err := c.Bind(&req); err != nil {
		logger.Error("Failed to bind auth request", zap.Error(err))
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_request",
			Message: "Invalid request format",
		})
	}

	userID := req.AnonymousID
	if userID == "" {
		userID = uuid.NewString()
	}

	token, err := issuer.GenerateUserToken(userID)
	if err != nil {
		logger.Error("Failed to generate user token",
			zap.String("user_id", userID),
			zap.Error(err))
		return c.JSON(http.StatusInternalServerError, ErrorResponse{
			Error:   "token_generation_failed",
			Message: "Failed to generate authentication token",
		})
	}

	logger.Info("Anonymous user authenticated", zap.String("user_id", userID))

	return c.JSON(http.StatusOK, AnonymousAuthResponse{
		Token:     token,
		ExpiresAt: time.Now().Add(24 * time.Hour),
		UserID:    userID,
	})
}

// websocketWithAuth handles WebSocket connections with JWT authentication.
// Browsers cannot set headers on WebSocket upgrades, so a token query
// parameter is accepted alongside the Authorization header.
func websocketWithAuth(hub *websocket.Hub, c echo.Context, issuer *auth.TokenIssuer, logger *zap.Logger) error {
	var token string
	authHeader := c.Request().Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		token = strings.TrimPrefix(authHeader, "Bearer ")
	}
	if token == "" {
		token = c.QueryParam("token")
	}

	if token == "" {
		logger.Warn("WebSocket connection rejected: missing token")
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "missing_token",
			Message: "JWT token is required",
		})
	}

	claims, err := issuer.ValidateToken(token)
	if err != nil {
		logger.Warn("WebSocket connection rejected: invalid token", zap.Error(err))
		return c.JSON(http.StatusUnauthorized, ErrorResponse{
			Error:   "invalid_token",
			Message: "Invalid or expired JWT token",
		})
	}

	if claims.Role != "user" {
		logger.Warn("WebSocket connection rejected: invalid role",
			zap.String("role", claims.Role))
		return c.JSON(http.StatusForbidden, ErrorResponse{
			Error:   "invalid_role",
			Message: "Only user tokens are allowed for WebSocket connections",
		})
	}

	if claims.UserID == "" {
		logger.Error("WebSocket connection rejected: missing user ID in token")
		return c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "invalid_token_claims",
			Message: "User ID not found in token",
		})
	}

	logger.Info("WebSocket connection authenticated",
		zap.String("user_id", claims.UserID))

	return websocket.HandleWebSocket(hub, c, claims.UserID, logger)
}
