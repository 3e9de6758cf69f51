package media

import (
	"context"
	"errors"
)

// Description is the wire shape of an SDP offer or answer, kept free of
// pion types so handlers and the go2rtc proxy share it.
type Description struct {
	SDP  string
	Type string
}

var (
	// ErrMalformedOffer means the SDP failed to parse or was not an offer.
	ErrMalformedOffer = errors.New("media: malformed offer")

	// ErrSourceBusy means the single camera producer is saturated.
	ErrSourceBusy = errors.New("media: source busy")

	// ErrSourceUnavailable means the media source could not be reached
	// or is shut down.
	ErrSourceUnavailable = errors.New("media: source unavailable")
)

// Source answers SDP offers with SDP answers. Exactly one backend is
// active per process, selected by configuration: the in-process pion
// engine or a go2rtc relay.
type Source interface {
	Negotiate(ctx context.Context, offer Description) (Description, error)
	Close() error
}

// SessionCounter is implemented by sources that track their own peer
// connections. The status endpoint upgrades to it when available.
type SessionCounter interface {
	ActiveSessions() int
}

// EndNotifier is implemented by sources that can report a live session
// going away on its own, such as a peer reaped after disconnect.
type EndNotifier interface {
	OnSessionEnded(fn func())
}
