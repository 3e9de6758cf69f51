package viewer

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"

	"camwatch/internal/model"
)

// newFakeStream builds a Stream over a real, unconnected peer
// connection so Close behaves like the production path.
func newFakeStream(t *testing.T) *Stream {
	t.Helper()
	pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
	require.NoError(t, err)
	return &Stream{pc: pc}
}

func streamClosed(s *Stream) bool {
	return s.pc.ConnectionState() == webrtc.PeerConnectionStateClosed
}

// fakeTransport hands out fresh streams and remembers every stream it
// ever opened, in order.
type fakeTransport struct {
	t *testing.T

	mu     sync.Mutex
	opened []*Stream
	opens  int
	err    error
	failOn int           // when > 0, the Nth Open fails
	gate   chan struct{} // when set, Open blocks until the gate closes
}

func (f *fakeTransport) Open(ctx context.Context) (*Stream, error) {
	if f.gate != nil {
		select {
		case <-f.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.err != nil {
		return nil, f.err
	}
	if f.failOn > 0 && f.opens == f.failOn {
		return nil, model.ErrSignalingFailed
	}

	s := newFakeStream(f.t)
	f.opened = append(f.opened, s)
	return s, nil
}

func (f *fakeTransport) openedStreams() []*Stream {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]*Stream, len(f.opened))
	copy(out, f.opened)
	return out
}

func newTestController(t *testing.T, transport Transport, grace time.Duration) (*Controller, *SessionCache) {
	t.Helper()
	cache, _ := tempCache(t)
	api := NewAPIClient("http://127.0.0.1:1")
	factory := func(ViewMode) (Transport, error) { return transport, nil }
	return NewController(api, factory, cache, grace), cache
}

func restoreWithExpiry(t *testing.T, ctrl *Controller, cache *SessionCache, ttl time.Duration) {
	t.Helper()
	session := CachedSession{Token: "tok", Role: "user"}
	if ttl > 0 {
		session.ExpiresAt = time.Now().Add(ttl)
	}
	require.NoError(t, cache.Save(session))
	require.NoError(t, ctrl.RestoreSession())
	require.Equal(t, StateIdle, ctrl.State())
}

func waitForState(t *testing.T, ctrl *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if ctrl.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	require.Equal(t, want, ctrl.State())
}

func TestRestoreSessionNoCache(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeTransport{t: t}, 0)
	defer ctrl.Close()

	require.ErrorIs(t, ctrl.RestoreSession(), ErrNoCachedAuth)
	require.Equal(t, StateLoggedOut, ctrl.State())
}

func TestRestoreSessionFromCache(t *testing.T) {
	ctrl, cache := newTestController(t, &fakeTransport{t: t}, 0)
	defer ctrl.Close()

	restoreWithExpiry(t, ctrl, cache, time.Hour)

	at, ok := ctrl.Expiry()
	require.True(t, ok)
	require.False(t, at.IsZero())
}

func TestStartRequiresLogin(t *testing.T) {
	ctrl, _ := newTestController(t, &fakeTransport{t: t}, 0)
	defer ctrl.Close()

	require.ErrorIs(t, ctrl.Start(context.Background()), ErrNotLoggedIn)
}

func TestStartConnects(t *testing.T) {
	transport := &fakeTransport{t: t}
	ctrl, cache := newTestController(t, transport, 0)
	defer ctrl.Close()

	restoreWithExpiry(t, ctrl, cache, time.Hour)
	require.NoError(t, ctrl.Start(context.Background()))
	require.Equal(t, StateConnected, ctrl.State())
	require.Len(t, ctrl.Streams(), 1)
}

func TestStartTransportFailureReturnsToIdle(t *testing.T) {
	transport := &fakeTransport{t: t, err: model.ErrSignalingFailed}
	ctrl, cache := newTestController(t, transport, 0)
	defer ctrl.Close()

	restoreWithExpiry(t, ctrl, cache, time.Hour)
	require.ErrorIs(t, ctrl.Start(context.Background()), model.ErrSignalingFailed)
	require.Equal(t, StateIdle, ctrl.State())
	require.Empty(t, ctrl.Streams())
}

func TestStartRejectsConcurrentAttempt(t *testing.T) {
	gate := make(chan struct{})
	transport := &fakeTransport{t: t, gate: gate}
	ctrl, cache := newTestController(t, transport, 0)
	defer ctrl.Close()

	restoreWithExpiry(t, ctrl, cache, time.Hour)

	done := make(chan error, 1)
	go func() { done <- ctrl.Start(context.Background()) }()
	waitForState(t, ctrl, StateConnecting)

	require.ErrorIs(t, ctrl.Start(context.Background()), ErrWrongState)

	close(gate)
	require.NoError(t, <-done)
	require.Equal(t, StateConnected, ctrl.State())
}

func TestToggleTearsDownBeforeConnecting(t *testing.T) {
	transport := &fakeTransport{t: t}
	ctrl, cache := newTestController(t, transport, 0)
	defer ctrl.Close()

	restoreWithExpiry(t, ctrl, cache, time.Hour)
	require.NoError(t, ctrl.Start(context.Background()))

	first := ctrl.Streams()[0]
	require.NoError(t, ctrl.ToggleView(context.Background()))
	require.Equal(t, StateVRConnected, ctrl.State())

	// The single-view stream died before the VR pair came up, and VR
	// owns exactly two live consumers, one per eye.
	require.True(t, streamClosed(first))
	require.Len(t, ctrl.Streams(), 2)
	for _, s := range ctrl.Streams() {
		require.False(t, streamClosed(s))
	}
}

func TestToggleTwiceReturnsToOriginalView(t *testing.T) {
	transport := &fakeTransport{t: t}
	ctrl, cache := newTestController(t, transport, 0)
	defer ctrl.Close()

	restoreWithExpiry(t, ctrl, cache, time.Hour)
	require.NoError(t, ctrl.Start(context.Background()))

	require.NoError(t, ctrl.ToggleView(context.Background()))
	vrStreams := ctrl.Streams()
	require.Len(t, vrStreams, 2)

	require.NoError(t, ctrl.ToggleView(context.Background()))
	require.Equal(t, StateConnected, ctrl.State())
	require.Len(t, ctrl.Streams(), 1)

	// Both VR consumers were torn down on the way back.
	for _, s := range vrStreams {
		require.True(t, streamClosed(s))
	}

	// 1 single + 2 VR + 1 single; only the last one is still live.
	opened := transport.openedStreams()
	require.Len(t, opened, 4)
	for _, s := range opened[:3] {
		require.True(t, streamClosed(s))
	}
	require.False(t, streamClosed(opened[3]))
}

func TestToggleVRPartialFailureClosesFirstEye(t *testing.T) {
	// Open #1 is the single view, opens #2 and #3 are the VR pair;
	// the second eye fails.
	transport := &fakeTransport{t: t, failOn: 3}
	ctrl, cache := newTestController(t, transport, 0)
	defer ctrl.Close()

	restoreWithExpiry(t, ctrl, cache, time.Hour)
	require.NoError(t, ctrl.Start(context.Background()))

	require.ErrorIs(t, ctrl.ToggleView(context.Background()), model.ErrSignalingFailed)
	require.Equal(t, StateIdle, ctrl.State())
	require.Empty(t, ctrl.Streams())

	// The eye that did connect was closed, not leaked.
	for _, s := range transport.openedStreams() {
		require.True(t, streamClosed(s))
	}
}

func TestToggleRequiresActiveView(t *testing.T) {
	ctrl, cache := newTestController(t, &fakeTransport{t: t}, 0)
	defer ctrl.Close()

	restoreWithExpiry(t, ctrl, cache, time.Hour)
	require.ErrorIs(t, ctrl.ToggleView(context.Background()), ErrWrongState)
}

func TestStopReturnsToIdle(t *testing.T) {
	transport := &fakeTransport{t: t}
	ctrl, cache := newTestController(t, transport, 0)
	defer ctrl.Close()

	restoreWithExpiry(t, ctrl, cache, time.Hour)
	require.NoError(t, ctrl.Start(context.Background()))

	stream := ctrl.Streams()[0]
	require.NoError(t, ctrl.Stop())
	require.Equal(t, StateIdle, ctrl.State())
	require.True(t, streamClosed(stream))
	require.Empty(t, ctrl.Streams())
}

func TestExpiryForcesLogout(t *testing.T) {
	transport := &fakeTransport{t: t}
	ctrl, cache := newTestController(t, transport, 50*time.Millisecond)
	defer ctrl.Close()

	expired := make(chan struct{})
	ctrl.OnExpired = func() { close(expired) }

	restoreWithExpiry(t, ctrl, cache, 100*time.Millisecond)
	require.NoError(t, ctrl.Start(context.Background()))
	stream := ctrl.Streams()[0]

	select {
	case <-expired:
	case <-time.After(2 * time.Second):
		t.Fatal("expiry never fired")
	}

	// Streams die with the token and the cache is wiped.
	require.True(t, streamClosed(stream))
	_, ok := cache.Load()
	require.False(t, ok)

	// After the grace window the controller settles at logged out.
	waitForState(t, ctrl, StateLoggedOut)
}

func TestExpiryDuringConnectClosesNewStream(t *testing.T) {
	gate := make(chan struct{})
	transport := &fakeTransport{t: t, gate: gate}
	ctrl, cache := newTestController(t, transport, time.Minute)
	defer ctrl.Close()

	restoreWithExpiry(t, ctrl, cache, 100*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- ctrl.Start(context.Background()) }()
	waitForState(t, ctrl, StateConnecting)

	waitForState(t, ctrl, StateTokenExpired)
	close(gate)

	require.ErrorIs(t, <-done, ErrWrongState)

	// The stream the transport produced after expiry must not leak.
	opened := transport.openedStreams()
	require.Len(t, opened, 1)
	require.True(t, streamClosed(opened[0]))
	require.Empty(t, ctrl.Streams())
}

func TestLoginAgainstServer(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/login", r.URL.Path)

		var req model.LoginRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		if req.Password != "hunter2" {
			w.WriteHeader(http.StatusForbidden)
			_ = json.NewEncoder(w).Encode(model.APIResponse{
				Success: false,
				Error:   &model.APIError{Code: "INVALID_CREDENTIALS", Message: "invalid credentials"},
			})
			return
		}

		_ = json.NewEncoder(w).Encode(model.APIResponse{
			Success: true,
			Data:    model.Session{Token: "tok", Role: model.RoleUser, ExpiresIn: 7200},
		})
	}))
	defer srv.Close()

	cache, _ := tempCache(t)
	api := NewAPIClient(srv.URL)
	transport := &fakeTransport{t: t}
	ctrl := NewController(api, func(ViewMode) (Transport, error) { return transport, nil }, cache, 0)
	defer ctrl.Close()

	require.ErrorIs(t, ctrl.Login(context.Background(), "alice", "wrong"), model.ErrInvalidCredentials)
	require.Equal(t, StateLoggedOut, ctrl.State())

	require.NoError(t, ctrl.Login(context.Background(), "alice", "hunter2"))
	require.Equal(t, StateIdle, ctrl.State())
	require.Equal(t, "tok", api.Token())

	// The session landed in the cache for the next start.
	cached, ok := cache.Load()
	require.True(t, ok)
	require.Equal(t, "tok", cached.Token)
}

func TestLogoutClearsSession(t *testing.T) {
	transport := &fakeTransport{t: t}
	ctrl, cache := newTestController(t, transport, 0)
	defer ctrl.Close()

	restoreWithExpiry(t, ctrl, cache, time.Hour)
	require.NoError(t, ctrl.Start(context.Background()))
	stream := ctrl.Streams()[0]

	ctrl.Logout()
	require.Equal(t, StateLoggedOut, ctrl.State())
	require.True(t, streamClosed(stream))

	_, ok := cache.Load()
	require.False(t, ok)
}
