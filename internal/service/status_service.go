package service

import (
	"sync"
	"time"

	"camwatch/internal/event"
	"camwatch/internal/model"
)

// StatusService aggregates bus events into the numbers the dashboard
// HUD shows next to the stream.
type StatusService struct {
	signal  *SignalService
	started time.Time

	mu        sync.Mutex
	total     int64
	lastEvent string

	unsubscribe func()
}

func NewStatusService(bus event.Bus, signal *SignalService) *StatusService {
	s := &StatusService{
		signal:  signal,
		started: time.Now().UTC(),
	}

	events, unsubscribe := bus.Subscribe()
	s.unsubscribe = unsubscribe

	go func() {
		for e := range events {
			s.mu.Lock()
			if e.Type == event.TypeSessionStarted {
				s.total++
			}
			s.lastEvent = string(e.Type)
			s.mu.Unlock()
		}
	}()

	return s
}

func (s *StatusService) Snapshot() model.StatusResponse {
	s.mu.Lock()
	total := s.total
	last := s.lastEvent
	s.mu.Unlock()

	active, _ := s.signal.ActiveSessions()

	return model.StatusResponse{
		ActiveSessions: active,
		TotalSessions:  total,
		LastEvent:      last,
		UptimeSeconds:  int64(time.Since(s.started).Seconds()),
	}
}

func (s *StatusService) Stop() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}
