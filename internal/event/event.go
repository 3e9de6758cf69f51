package event

type Type string

const (
	TypeLoginSucceeded Type = "auth.login"
	TypeLoginFailed    Type = "auth.login_failed"
	TypeSessionStarted Type = "media.session_started"
	TypeSessionEnded   Type = "media.session_ended"
	TypeSessionFailed  Type = "media.session_failed"
)

type Event struct {
	ID        string `json:"id"`
	Type      Type   `json:"type"`
	Payload   any    `json:"payload,omitempty"`
	Timestamp string `json:"timestamp"`
	Actor     string `json:"actor,omitempty"` // username that triggered the event
}

type Bus interface {
	Publish(e Event)
	Subscribe() (<-chan Event, func())
}
