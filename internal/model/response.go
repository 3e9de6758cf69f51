package model

type APIResponse struct {
	Success bool      `json:"success"`
	Data    any       `json:"data,omitempty"`
	Error   *APIError `json:"error,omitempty"`
}

type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Session is the login response. ExpiresIn is seconds until the token
// expires; 0 means the token never expires (admin sessions may be
// configured unbounded).
type Session struct {
	Token     string `json:"token"`
	Role      string `json:"role"`
	ExpiresIn int64  `json:"expires_in"`
}

// AnswerResponse mirrors OfferRequest for the signaling reply.
type AnswerResponse struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

type PingResponse struct {
	TS int64 `json:"ts"`
}

type StatusResponse struct {
	ActiveSessions int    `json:"active_sessions"`
	TotalSessions  int64  `json:"total_sessions"`
	LastEvent      string `json:"last_event,omitempty"`
	UptimeSeconds  int64  `json:"uptime_seconds"`
}
