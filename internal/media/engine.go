package media

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/pion/sdp/v3"
	"github.com/pion/webrtc/v4"
)

// Engine answers offers with in-process pion peer connections, one per
// negotiation. Peers are reaped when their connection fails or closes.
// A session cap models the Pi camera's limited fan-out; beyond it the
// engine reports busy instead of degrading every stream.
type Engine struct {
	cfg         webrtc.Configuration
	provider    TrackProvider
	maxSessions int

	mu       sync.Mutex
	sessions map[string]*peerSession
	closed   bool
	onEnded  func()
}

type peerSession struct {
	pc      *webrtc.PeerConnection
	release func()
}

func NewEngine(stunServers []string, provider TrackProvider, maxSessions int) *Engine {
	var iceServers []webrtc.ICEServer
	if len(stunServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: stunServers})
	}

	return &Engine{
		cfg:         webrtc.Configuration{ICEServers: iceServers},
		provider:    provider,
		maxSessions: maxSessions,
		sessions:    make(map[string]*peerSession),
	}
}

func (e *Engine) Negotiate(ctx context.Context, offer Description) (Description, error) {
	if err := validateOffer(offer); err != nil {
		return Description{}, err
	}

	id := uuid.NewString()

	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return Description{}, ErrSourceUnavailable
	}
	if len(e.sessions) >= e.maxSessions {
		e.mu.Unlock()
		return Description{}, ErrSourceBusy
	}
	// Reserve the slot before the (slow) negotiation so concurrent
	// offers cannot overshoot the cap.
	e.sessions[id] = nil
	e.mu.Unlock()

	answer, err := e.negotiate(ctx, id, offer)
	if err != nil {
		e.drop(id)
		return Description{}, err
	}

	return answer, nil
}

func (e *Engine) negotiate(ctx context.Context, id string, offer Description) (Description, error) {
	pc, err := webrtc.NewPeerConnection(e.cfg)
	if err != nil {
		return Description{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	track, release, err := e.provider.Subscribe()
	if err != nil {
		_ = pc.Close()
		return Description{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	sender, err := pc.AddTrack(track)
	if err != nil {
		release()
		_ = pc.Close()
		return Description{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	// Drain incoming RTCP so the interceptor chain keeps running.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				if err != io.EOF && err != io.ErrClosedPipe {
					slog.Debug("rtcp reader stopped", "session", id, "error", err)
				}
				return
			}
		}
	}()

	e.mu.Lock()
	// The engine may have shut down while this negotiation was in
	// flight; registering now would leak a peer nothing ever closes.
	if e.closed {
		e.mu.Unlock()
		release()
		_ = pc.Close()
		return Description{}, ErrSourceUnavailable
	}
	e.sessions[id] = &peerSession{pc: pc, release: release}
	e.mu.Unlock()

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		slog.Info("peer connection state", "session", id, "state", state.String())
		switch state {
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateClosed,
			webrtc.PeerConnectionStateDisconnected:
			e.drop(id)
		}
	})

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}
	if err := pc.SetRemoteDescription(remote); err != nil {
		return Description{}, fmt.Errorf("%w: %v", ErrMalformedOffer, err)
	}

	answer, err := pc.CreateAnswer(nil)
	if err != nil {
		return Description{}, fmt.Errorf("create answer: %w", err)
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(answer); err != nil {
		return Description{}, fmt.Errorf("set local description: %w", err)
	}

	// Non-trickle: wait for ICE gathering so the answer carries all
	// candidates, the same contract the browser client expects.
	select {
	case <-gathered:
	case <-ctx.Done():
		return Description{}, ctx.Err()
	}

	local := pc.LocalDescription()
	return Description{SDP: local.SDP, Type: local.Type.String()}, nil
}

// OnSessionEnded registers a hook fired each time a live session is
// reaped. Failed negotiations that never produced a session do not
// count.
func (e *Engine) OnSessionEnded(fn func()) {
	e.mu.Lock()
	e.onEnded = fn
	e.mu.Unlock()
}

func (e *Engine) drop(id string) {
	e.mu.Lock()
	sess, ok := e.sessions[id]
	delete(e.sessions, id)
	onEnded := e.onEnded
	e.mu.Unlock()

	if !ok || sess == nil {
		return
	}

	sess.release()
	if err := sess.pc.Close(); err != nil {
		slog.Warn("closing peer connection", "session", id, "error", err)
	}

	if onEnded != nil {
		onEnded()
	}
}

func (e *Engine) ActiveSessions() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	n := 0
	for _, sess := range e.sessions {
		if sess != nil {
			n++
		}
	}
	return n
}

func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	sessions := e.sessions
	e.sessions = make(map[string]*peerSession)
	e.mu.Unlock()

	for _, sess := range sessions {
		if sess == nil {
			continue
		}
		sess.release()
		_ = sess.pc.Close()
	}

	return nil
}

func validateOffer(offer Description) error {
	if !strings.EqualFold(offer.Type, "offer") {
		return fmt.Errorf("%w: type %q", ErrMalformedOffer, offer.Type)
	}

	var parsed sdp.SessionDescription
	if err := parsed.UnmarshalString(offer.SDP); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedOffer, err)
	}

	return nil
}
