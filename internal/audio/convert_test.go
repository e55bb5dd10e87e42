package audio

import (
	"bytes"
	"encoding/binary"
	"testing"
)

func TestPCMRoundTrip(t *testing.T) {
	samples := []int16{0, 1, -1, 32767, -32768, 12345}
	got := PCMBytesToInt16(Int16ToPCMBytes(samples))
	if len(got) != len(samples) {
		t.Fatalf("length mismatch: %d vs %d", len(got), len(samples))
	}
	for i := range samples {
		if got[i] != samples[i] {
			t.Errorf("sample %d: expected %d, got %d", i, samples[i], got[i])
		}
	}
}

func TestEncodeWAV(t *testing.T) {
	samples := make([]int16, 480)
	for i := range samples {
		samples[i] = int16(i)
	}

	wav := EncodeWAV(samples, 48000)

	if len(wav) != 44+len(samples)*2 {
		t.Fatalf("unexpected WAV size: %d", len(wav))
	}
	if !bytes.Equal(wav[0:4], []byte("RIFF")) {
		t.Error("missing RIFF magic")
	}
	if !bytes.Equal(wav[8:12], []byte("WAVE")) {
		t.Error("missing WAVE magic")
	}

	rate := binary.LittleEndian.Uint32(wav[24:28])
	if rate != 48000 {
		t.Errorf("expected sample rate 48000, got %d", rate)
	}

	dataLen := binary.LittleEndian.Uint32(wav[40:44])
	if int(dataLen) != len(samples)*2 {
		t.Errorf("expected data length %d, got %d", len(samples)*2, dataLen)
	}
}

func TestEncodeWAV_Empty(t *testing.T) {
	wav := EncodeWAV(nil, 48000)
	if len(wav) != 44 {
		t.Errorf("expected header-only WAV, got %d bytes", len(wav))
	}
}
