package trainee

import "time"

const (
	SampleRate    = 48000
	Channels      = 1
	FrameDuration = 20
	FrameSize     = SampleRate * FrameDuration / 1000
)

// Frame durations in milliseconds indexed by the TOC config number
// (RFC 6716 section 3.1).
var opusFrameMs = [32]float64{
	10, 20, 40, 60,
	10, 20, 40, 60,
	10, 20, 40, 60,
	10, 20,
	10, 20,
	2.5, 5, 10, 20,
	2.5, 5, 10, 20,
	2.5, 5, 10, 20,
	2.5, 5, 10, 20,
}

// PacketDuration reads the TOC byte of an opus packet and returns the
// sample count and wall duration it covers. Unreadable packets fall back to
// a standard 20ms frame so pacing never stalls.
func PacketDuration(packet []byte, sampleRate int) (samples int, duration time.Duration) {
	if len(packet) < 1 {
		return FrameSize, 20 * time.Millisecond
	}

	toc := packet[0]
	config := (toc >> 3) & 0x1F
	frameCountCode := toc & 0x03

	frameMs := opusFrameMs[config]

	frameCount := 1
	switch frameCountCode {
	case 0:
		frameCount = 1
	case 1, 2:
		frameCount = 2
	case 3:
		// Code 3 packets carry the frame count in the next byte.
		if len(packet) > 1 {
			frameCount = int(packet[1] & 0x3F)
			if frameCount == 0 {
				frameCount = 1
			}
		}
	}

	totalMs := frameMs * float64(frameCount)
	samples = int(totalMs * float64(sampleRate) / 1000)
	duration = time.Duration(totalMs * float64(time.Millisecond))
	return samples, duration
}
