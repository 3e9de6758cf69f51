package viewer

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pion/webrtc/v4"

	"camwatch/internal/model"
)

// Stream is one active media consumer: a receiving peer connection
// plus a frame counter the HUD samples.
type Stream struct {
	pc     *webrtc.PeerConnection
	frames atomic.Int64

	closeOnce sync.Once
	closeErr  error
}

func (s *Stream) Frames() int64 {
	return s.frames.Load()
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.pc.Close()
	})
	return s.closeErr
}

func (s *Stream) countTrack(track *webrtc.TrackRemote) {
	for {
		pkt, _, err := track.ReadRTP()
		if err != nil {
			return
		}
		// The marker bit closes a video frame, so counting markers
		// approximates frames without decoding anything.
		if pkt.Marker {
			s.frames.Add(1)
		}
	}
}

// Transport establishes a media stream against some backend. The
// controller does not care whether signaling goes through the camwatch
// server or straight to a go2rtc relay.
type Transport interface {
	Open(ctx context.Context) (*Stream, error)
}

// newReceivingPeer builds a recvonly peer connection and returns the
// fully gathered local offer, non-trickle like the server side.
func newReceivingPeer(ctx context.Context, cfg webrtc.Configuration) (*Stream, webrtc.SessionDescription, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, webrtc.SessionDescription{}, err
	}

	if _, err := pc.AddTransceiverFromKind(
		webrtc.RTPCodecTypeVideo,
		webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly},
	); err != nil {
		_ = pc.Close()
		return nil, webrtc.SessionDescription{}, err
	}

	stream := &Stream{pc: pc}
	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		go stream.countTrack(track)
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		_ = pc.Close()
		return nil, webrtc.SessionDescription{}, err
	}

	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		_ = pc.Close()
		return nil, webrtc.SessionDescription{}, err
	}

	select {
	case <-gathered:
	case <-ctx.Done():
		_ = pc.Close()
		return nil, webrtc.SessionDescription{}, ctx.Err()
	}

	return stream, *pc.LocalDescription(), nil
}

// DirectTransport signals through the camwatch server's /offer
// endpoint with the controller's bearer token.
type DirectTransport struct {
	api *APIClient
	cfg webrtc.Configuration
}

func NewDirectTransport(api *APIClient, stunServers []string) *DirectTransport {
	return &DirectTransport{api: api, cfg: peerConfig(stunServers)}
}

func (t *DirectTransport) Open(ctx context.Context) (*Stream, error) {
	stream, offer, err := newReceivingPeer(ctx, t.cfg)
	if err != nil {
		return nil, err
	}

	answer, err := t.api.Offer(ctx, model.OfferRequest{SDP: offer.SDP, Type: "offer"})
	if err != nil {
		_ = stream.Close()
		return nil, err
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP}
	if err := stream.pc.SetRemoteDescription(remote); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("apply answer: %w", err)
	}

	return stream, nil
}

// RelayTransport signals straight against a go2rtc server, bypassing
// the camwatch signaling endpoint. Authentication still happened at
// login; the relay itself is on a trusted LAN.
type RelayTransport struct {
	endpoint string
	client   *http.Client
	cfg      webrtc.Configuration
}

func NewRelayTransport(baseURL string, stream string, stunServers []string) (*RelayTransport, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse relay URL: %w", err)
	}

	base.Path += "/api/webrtc"
	q := base.Query()
	q.Set("src", stream)
	base.RawQuery = q.Encode()

	return &RelayTransport{
		endpoint: base.String(),
		client:   &http.Client{Timeout: 15 * time.Second},
		cfg:      peerConfig(stunServers),
	}, nil
}

func (t *RelayTransport) Open(ctx context.Context) (*Stream, error) {
	stream, offer, err := newReceivingPeer(ctx, t.cfg)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, strings.NewReader(offer.SDP))
	if err != nil {
		_ = stream.Close()
		return nil, err
	}
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := t.client.Do(req)
	if err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: %v", ErrServerUnreachable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil || resp.StatusCode != http.StatusOK {
		_ = stream.Close()
		return nil, fmt.Errorf("%w: relay status %d", model.ErrSignalingFailed, resp.StatusCode)
	}

	remote := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: string(body)}
	if err := stream.pc.SetRemoteDescription(remote); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("apply relay answer: %w", err)
	}

	return stream, nil
}

func peerConfig(stunServers []string) webrtc.Configuration {
	var cfg webrtc.Configuration
	if len(stunServers) > 0 {
		cfg.ICEServers = []webrtc.ICEServer{{URLs: stunServers}}
	}
	return cfg
}
