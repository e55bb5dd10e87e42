package trainee

import (
	"testing"
	"time"
)

func TestPacketDuration_EmptyPacket(t *testing.T) {
	samples, duration := PacketDuration([]byte{}, 48000)
	if samples != 960 {
		t.Errorf("expected 960 samples for empty packet, got %d", samples)
	}
	if duration != 20*time.Millisecond {
		t.Errorf("expected 20ms fallback, got %v", duration)
	}
}

func TestPacketDuration_20msSingleFrame(t *testing.T) {
	toc := byte((16 + 3) << 3)
	samples, duration := PacketDuration([]byte{toc, 0x00}, 48000)
	if samples != 960 {
		t.Errorf("expected 960 samples for 20ms frame, got %d", samples)
	}
	if duration != 20*time.Millisecond {
		t.Errorf("expected 20ms, got %v", duration)
	}
}

func TestPacketDuration_10msSingleFrame(t *testing.T) {
	toc := byte((16 + 2) << 3)
	samples, duration := PacketDuration([]byte{toc}, 48000)
	if samples != 480 {
		t.Errorf("expected 480 samples for 10ms frame, got %d", samples)
	}
	if duration != 10*time.Millisecond {
		t.Errorf("expected 10ms, got %v", duration)
	}
}

func TestPacketDuration_TwoFrames(t *testing.T) {
	toc := byte((16+3)<<3) | 1
	samples, duration := PacketDuration([]byte{toc}, 48000)
	if samples != 1920 {
		t.Errorf("expected 1920 samples for two 20ms frames, got %d", samples)
	}
	if duration != 40*time.Millisecond {
		t.Errorf("expected 40ms, got %v", duration)
	}
}

func TestPacketDuration_Code3FrameCount(t *testing.T) {
	toc := byte((16+3)<<3) | 3
	samples, _ := PacketDuration([]byte{toc, 3}, 48000)
	if samples != 2880 {
		t.Errorf("expected 2880 samples for three 20ms frames, got %d", samples)
	}
}

func TestPacketDuration_Code3ZeroCount(t *testing.T) {
	toc := byte((16+3)<<3) | 3
	samples, _ := PacketDuration([]byte{toc, 0}, 48000)
	if samples != 960 {
		t.Errorf("expected fallback to one frame, got %d samples", samples)
	}
}
