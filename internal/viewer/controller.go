package viewer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the controller's lifecycle position. All transitions happen
// inside the controller; everything else (HUD, CLI) only reads it.
type State int

const (
	StateLoggedOut State = iota
	StateAuthenticating
	StateIdle
	StateConnecting
	StateConnected
	StateVRConnecting
	StateVRConnected
	StateTokenExpired
)

func (s State) String() string {
	switch s {
	case StateLoggedOut:
		return "logged_out"
	case StateAuthenticating:
		return "authenticating"
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateVRConnecting:
		return "vr_connecting"
	case StateVRConnected:
		return "vr_connected"
	case StateTokenExpired:
		return "token_expired"
	default:
		return "unknown"
	}
}

// ViewMode selects how many streams the controller owns at once.
type ViewMode int

const (
	ViewSingle ViewMode = iota
	ViewVR
)

// streamCount is the consumer-set size per mode: VR renders two
// side by side streams, one per eye.
func streamCount(mode ViewMode) int {
	if mode == ViewVR {
		return 2
	}
	return 1
}

var (
	ErrNotLoggedIn  = errors.New("not logged in")
	ErrBusy         = errors.New("another connection attempt is in progress")
	ErrWrongState   = errors.New("operation not valid in current state")
	ErrNoCachedAuth = errors.New("no cached session")
)

// TransportFactory builds the transport for a view mode. Split out so
// tests can substitute fakes and so relayed and direct signaling stay
// interchangeable.
type TransportFactory func(mode ViewMode) (Transport, error)

// Controller owns the session token, the view state and every open
// stream. It is the single writer of all of them.
type Controller struct {
	api        *APIClient
	transports TransportFactory
	cache      *SessionCache
	grace      time.Duration

	// OnExpired, if set, fires once when the session token lapses.
	// Called without the lock held.
	OnExpired func()

	mu         sync.Mutex
	state      State
	streams    []*Stream
	expiresAt  time.Time
	hasSession bool
	connecting bool

	expiryTimer *time.Timer
	graceTimer  *time.Timer
}

func NewController(api *APIClient, transports TransportFactory, cache *SessionCache, grace time.Duration) *Controller {
	if grace <= 0 {
		grace = 5 * time.Second
	}
	return &Controller{
		api:        api,
		transports: transports,
		cache:      cache,
		grace:      grace,
		state:      StateLoggedOut,
	}
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Streams returns the current consumer set for observers. The slice is
// a copy; the streams themselves are shared.
func (c *Controller) Streams() []*Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Stream, len(c.streams))
	copy(out, c.streams)
	return out
}

// Expiry reports when the session lapses. A zero time with ok true
// means the session never expires.
func (c *Controller) Expiry() (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expiresAt, c.hasSession
}

// RestoreSession resurrects a cached token. The cache layer already
// rejected expired entries, so a hit goes straight to idle.
func (c *Controller) RestoreSession() error {
	cached, ok := c.cache.Load()
	if !ok {
		return ErrNoCachedAuth
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateLoggedOut {
		return ErrWrongState
	}

	c.api.SetToken(cached.Token)
	c.hasSession = true
	c.expiresAt = cached.ExpiresAt
	c.state = StateIdle
	c.scheduleExpiryLocked()
	return nil
}

func (c *Controller) Login(ctx context.Context, username, password string) error {
	c.mu.Lock()
	if c.state != StateLoggedOut && c.state != StateTokenExpired {
		c.mu.Unlock()
		return ErrWrongState
	}
	c.stopGraceLocked()
	c.state = StateAuthenticating
	c.mu.Unlock()

	session, err := c.api.Login(ctx, username, password)

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		c.state = StateLoggedOut
		return err
	}

	c.api.SetToken(session.Token)
	c.hasSession = true
	c.expiresAt = time.Time{}
	if session.ExpiresIn > 0 {
		c.expiresAt = time.Now().Add(time.Duration(session.ExpiresIn) * time.Second)
	}

	// A broken cache only costs the next restore.
	_ = c.cache.Save(CachedSession{
		Token:     session.Token,
		Role:      session.Role,
		ExpiresAt: c.expiresAt,
	})

	c.state = StateIdle
	c.scheduleExpiryLocked()
	return nil
}

// Start opens the single-view stream. Only one connection attempt may
// be in flight at a time; concurrent calls fail fast with ErrBusy.
func (c *Controller) Start(ctx context.Context) error {
	return c.connect(ctx, ViewSingle, StateIdle, StateConnecting, StateConnected)
}

// ToggleView switches between single and VR view. The current streams
// are torn down before the new connect begins, so the media source
// never sees both consumer sets at once. Toggling twice lands back on
// the original mode.
func (c *Controller) ToggleView(ctx context.Context) error {
	c.mu.Lock()
	var target ViewMode
	switch c.state {
	case StateConnected:
		target = ViewVR
	case StateVRConnected:
		target = ViewSingle
	default:
		c.mu.Unlock()
		return ErrWrongState
	}
	if c.connecting {
		c.mu.Unlock()
		return ErrBusy
	}
	c.teardownStreamsLocked()
	c.state = StateIdle
	c.mu.Unlock()

	if target == ViewVR {
		return c.connect(ctx, ViewVR, StateIdle, StateVRConnecting, StateVRConnected)
	}
	return c.connect(ctx, ViewSingle, StateIdle, StateConnecting, StateConnected)
}

func (c *Controller) connect(ctx context.Context, mode ViewMode, from, during, to State) error {
	c.mu.Lock()
	if c.state != from {
		c.mu.Unlock()
		if c.state == StateLoggedOut || c.state == StateTokenExpired {
			return ErrNotLoggedIn
		}
		return ErrWrongState
	}
	if c.connecting {
		c.mu.Unlock()
		return ErrBusy
	}
	c.connecting = true
	c.state = during
	c.mu.Unlock()

	streams, err := c.openStreams(ctx, mode)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.connecting = false

	// The session may have expired while the handshake ran. The new
	// streams must not outlive the token that authorized them.
	if c.state != during {
		for _, s := range streams {
			_ = s.Close()
		}
		return ErrWrongState
	}
	if err != nil {
		c.state = from
		return err
	}

	c.streams = streams
	c.state = to
	return nil
}

// openStreams establishes the full consumer set for a mode. A partial
// failure closes whatever already connected and reports the error.
func (c *Controller) openStreams(ctx context.Context, mode ViewMode) ([]*Stream, error) {
	transport, err := c.transports(mode)
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}

	want := streamCount(mode)
	streams := make([]*Stream, 0, want)
	for i := 0; i < want; i++ {
		s, err := transport.Open(ctx)
		if err != nil {
			for _, open := range streams {
				_ = open.Close()
			}
			return nil, err
		}
		streams = append(streams, s)
	}

	return streams, nil
}

// Stop tears down the active streams and returns to idle.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateConnected, StateVRConnected:
	default:
		return ErrWrongState
	}
	c.teardownStreamsLocked()
	c.state = StateIdle
	return nil
}

// Logout drops the session deliberately: streams closed, cache
// cleared, token forgotten.
func (c *Controller) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.teardownStreamsLocked()
	c.stopTimersLocked()
	c.dropSessionLocked()
	c.state = StateLoggedOut
}

// Close releases everything. The controller is unusable afterwards.
func (c *Controller) Close() {
	c.Logout()
}

func (c *Controller) scheduleExpiryLocked() {
	if c.expiryTimer != nil {
		c.expiryTimer.Stop()
		c.expiryTimer = nil
	}
	if c.expiresAt.IsZero() {
		return
	}
	d := time.Until(c.expiresAt)
	if d < 0 {
		d = 0
	}
	c.expiryTimer = time.AfterFunc(d, c.expire)
}

// expire is the forced-logout path: streams die with the token, and
// after a short grace in the expired state the controller settles at
// logged out so the UI can prompt again.
func (c *Controller) expire() {
	c.mu.Lock()
	switch c.state {
	case StateLoggedOut, StateTokenExpired:
		c.mu.Unlock()
		return
	}
	c.teardownStreamsLocked()
	c.dropSessionLocked()
	c.state = StateTokenExpired
	c.graceTimer = time.AfterFunc(c.grace, c.graceElapsed)
	notify := c.OnExpired
	c.mu.Unlock()

	if notify != nil {
		notify()
	}
}

func (c *Controller) graceElapsed() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateTokenExpired {
		c.state = StateLoggedOut
	}
}

func (c *Controller) teardownStreamsLocked() {
	for _, s := range c.streams {
		_ = s.Close()
	}
	c.streams = nil
}

func (c *Controller) dropSessionLocked() {
	c.api.SetToken("")
	c.hasSession = false
	c.expiresAt = time.Time{}
	c.cache.Clear()
}

func (c *Controller) stopTimersLocked() {
	if c.expiryTimer != nil {
		c.expiryTimer.Stop()
		c.expiryTimer = nil
	}
	c.stopGraceLocked()
}

func (c *Controller) stopGraceLocked() {
	if c.graceTimer != nil {
		c.graceTimer.Stop()
		c.graceTimer = nil
	}
}
