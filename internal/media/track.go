package media

import (
	"sync"

	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
)

// TrackProvider hands out the camera's local track to negotiations.
// Release of the returned func must be idempotent-safe for callers
// that tear down on multiple paths.
type TrackProvider interface {
	Subscribe() (webrtc.TrackLocal, func(), error)
}

// CameraTrack is one shared H.264 sample track fed by the capture
// layer. Every viewer subscribes to the same track; pion fans samples
// out per peer connection, which is what keeps the camera a single
// producer.
type CameraTrack struct {
	track *webrtc.TrackLocalStaticSample

	mu          sync.Mutex
	subscribers int
}

func NewCameraTrack(streamID string) (*CameraTrack, error) {
	track, err := webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264},
		"video", streamID,
	)
	if err != nil {
		return nil, err
	}

	return &CameraTrack{track: track}, nil
}

func (c *CameraTrack) Subscribe() (webrtc.TrackLocal, func(), error) {
	c.mu.Lock()
	c.subscribers++
	c.mu.Unlock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			c.mu.Lock()
			c.subscribers--
			c.mu.Unlock()
		})
	}

	return c.track, release, nil
}

func (c *CameraTrack) Subscribers() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subscribers
}

// WriteSample is the feed point for the camera capture layer.
func (c *CameraTrack) WriteSample(s pionmedia.Sample) error {
	return c.track.WriteSample(s)
}
