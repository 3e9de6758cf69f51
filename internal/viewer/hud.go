package viewer

import (
	"context"
	"sync"
	"time"
)

// HUDSample is one periodic reading of connection health.
type HUDSample struct {
	PingMillis    int64
	FPS           float64
	SessionLeft   time.Duration
	SessionNoTTL  bool
	SampledAt     time.Time
}

// HUD periodically samples ping, frame rate and session countdown. It
// only observes: it never drives the controller, and a failed ping is
// simply an empty reading until the next tick.
type HUD struct {
	api      *APIClient
	interval time.Duration

	// streams and expiry come from the controller, read fresh each tick.
	streams func() []*Stream
	expiry  func() (time.Time, bool)

	mu         sync.Mutex
	sample     HUDSample
	lastFrames int64
	lastTick   time.Time

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

func NewHUD(api *APIClient, interval time.Duration, streams func() []*Stream, expiry func() (time.Time, bool)) *HUD {
	if interval <= 0 {
		interval = time.Second
	}
	h := &HUD{
		api:      api,
		interval: interval,
		streams:  streams,
		expiry:   expiry,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go h.run()
	return h
}

func (h *HUD) Snapshot() HUDSample {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.sample
}

func (h *HUD) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
}

func (h *HUD) run() {
	defer close(h.done)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	for {
		select {
		case <-h.stop:
			return
		case now := <-ticker.C:
			h.tick(now)
		}
	}
}

func (h *HUD) tick(now time.Time) {
	var sample HUDSample
	sample.SampledAt = now

	ctx, cancel := context.WithTimeout(context.Background(), h.interval)
	if rtt, err := h.api.Ping(ctx); err == nil {
		sample.PingMillis = rtt.Milliseconds()
	}
	cancel()

	var frames int64
	for _, s := range h.streams() {
		frames += s.Frames()
	}

	h.mu.Lock()
	if !h.lastTick.IsZero() {
		elapsed := now.Sub(h.lastTick).Seconds()
		if elapsed > 0 && frames >= h.lastFrames {
			sample.FPS = float64(frames-h.lastFrames) / elapsed
		}
	}
	h.lastFrames = frames
	h.lastTick = now

	if at, ok := h.expiry(); ok {
		if at.IsZero() {
			sample.SessionNoTTL = true
		} else if left := at.Sub(now); left > 0 {
			sample.SessionLeft = left
		}
	}

	h.sample = sample
	h.mu.Unlock()
}
