package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"camwatch/internal/event"
	"camwatch/internal/media"
	"camwatch/internal/model"
)

// SignalService relays one SDP offer to the media source and returns
// the answer. Each call is an independent negotiation; the service
// holds no per-client state and never tracks caller-side cleanup.
type SignalService struct {
	source media.Source
	bus    event.Bus
}

func NewSignalService(source media.Source, bus event.Bus) *SignalService {
	s := &SignalService{source: source, bus: bus}

	// Sources that reap their own peers report it here, so the bus
	// carries the ended half of the session lifecycle too.
	if notifier, ok := source.(media.EndNotifier); ok {
		notifier.OnSessionEnded(func() {
			s.publish(event.TypeSessionEnded, "")
		})
	}

	return s
}

func (s *SignalService) Negotiate(ctx context.Context, actor string, offer model.OfferRequest) (model.AnswerResponse, error) {
	answer, err := s.source.Negotiate(ctx, media.Description{SDP: offer.SDP, Type: offer.Type})
	if err != nil {
		t := event.TypeSessionFailed
		if errors.Is(err, media.ErrMalformedOffer) {
			// Bad input is the caller's problem, not a session failure.
			t = ""
		}
		if t != "" {
			s.publish(t, actor)
		}
		slog.Warn("negotiation failed", "actor", actor, "error", err)
		return model.AnswerResponse{}, err
	}

	s.publish(event.TypeSessionStarted, actor)
	return model.AnswerResponse{SDP: answer.SDP, Type: answer.Type}, nil
}

// ActiveSessions reports the source's live peer count when the backend
// tracks one (the in-process engine does, the go2rtc relay does not).
func (s *SignalService) ActiveSessions() (int, bool) {
	counter, ok := s.source.(media.SessionCounter)
	if !ok {
		return 0, false
	}
	return counter.ActiveSessions(), true
}

func (s *SignalService) publish(t event.Type, actor string) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.Event{
		ID:        uuid.NewString(),
		Type:      t,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Actor:     actor,
	})
}
