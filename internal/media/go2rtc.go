package media

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Go2RTCSource relays offers to an external go2rtc server instead of
// negotiating in-process. go2rtc's WebRTC API takes the raw offer SDP
// and replies with the answer SDP.
type Go2RTCSource struct {
	endpoint string
	client   *http.Client
}

func NewGo2RTCSource(baseURL string, stream string) (*Go2RTCSource, error) {
	base, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse go2rtc URL: %w", err)
	}

	base.Path += "/api/webrtc"
	q := base.Query()
	q.Set("src", stream)
	base.RawQuery = q.Encode()

	return &Go2RTCSource{
		endpoint: base.String(),
		client:   &http.Client{Timeout: 15 * time.Second},
	}, nil
}

func (s *Go2RTCSource) Negotiate(ctx context.Context, offer Description) (Description, error) {
	if !strings.EqualFold(offer.Type, "offer") {
		return Description{}, fmt.Errorf("%w: type %q", ErrMalformedOffer, offer.Type)
	}
	if strings.TrimSpace(offer.SDP) == "" {
		return Description{}, fmt.Errorf("%w: empty sdp", ErrMalformedOffer)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, strings.NewReader(offer.SDP))
	if err != nil {
		return Description{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/sdp")

	resp, err := s.client.Do(req)
	if err != nil {
		return Description{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Description{}, fmt.Errorf("%w: %v", ErrSourceUnavailable, err)
	}

	switch {
	case resp.StatusCode == http.StatusOK:
		return Description{SDP: string(body), Type: "answer"}, nil
	case resp.StatusCode == http.StatusBadRequest:
		return Description{}, fmt.Errorf("%w: go2rtc rejected offer", ErrMalformedOffer)
	default:
		return Description{}, fmt.Errorf("%w: go2rtc status %d", ErrSourceUnavailable, resp.StatusCode)
	}
}

func (s *Go2RTCSource) Close() error {
	s.client.CloseIdleConnections()
	return nil
}
