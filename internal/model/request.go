package model

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// OfferRequest mirrors the browser-side RTCSessionDescription shape.
type OfferRequest struct {
	SDP  string `json:"sdp"`
	Type string `json:"type"`
}

type AdminUpdateRequest struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	Password string `json:"password,omitempty"`
}

type AdminDeleteRequest struct {
	ID string `json:"id"`
}
