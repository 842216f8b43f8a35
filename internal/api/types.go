package api

import "time"

// AnonymousAuthRequest is the payload for anonymous token issuance. The
// client supplies its stable anonymous ID, or leaves it empty to be assigned
// one.
type AnonymousAuthRequest struct {
	AnonymousID string `json:"anonymousId"`
}

// AnonymousAuthResponse carries the signed token the WebSocket endpoint
// expects.
type AnonymousAuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
	UserID    string    `json:"userId"`
}

// ErrorResponse is the uniform REST error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}
