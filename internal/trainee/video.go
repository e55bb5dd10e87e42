package trainee

import (
	"strings"

	"github.com/pion/rtp/codecs"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
)

// newSampleBuilder returns a depacketizer for the negotiated video codec,
// or nil when the codec is not one we can reassemble.
func newSampleBuilder(mimeType string) *samplebuilder.SampleBuilder {
	switch {
	case strings.EqualFold(mimeType, "video/VP8"):
		return samplebuilder.New(64, &codecs.VP8Packet{}, 90000)
	case strings.EqualFold(mimeType, "video/VP9"):
		return samplebuilder.New(64, &codecs.VP9Packet{}, 90000)
	case strings.EqualFold(mimeType, "video/H264"):
		return samplebuilder.New(64, &codecs.H264Packet{}, 90000)
	default:
		return nil
	}
}
