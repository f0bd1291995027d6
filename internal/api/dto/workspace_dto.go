package dto

import "time"

// StartRequest asks for a fresh workspace container.
type StartRequest struct {
	Username   string `json:"username"`
	Assignment string `json:"assignment"`
}

// PublishRequest is sent by a freshly booted container reporting its IP.
type PublishRequest struct {
	Auth string `json:"auth"`
	IP   string `json:"ip"`
}

// HeartbeatRequest refreshes a workspace's liveness record.
type HeartbeatRequest struct {
	Username string `json:"username"`
}

// OperatorLoginRequest exchanges the operator password for a bearer token.
type OperatorLoginRequest struct {
	Password string `json:"password"`
}

// AuthResponse standard response for auth endpoints.
type AuthResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}
