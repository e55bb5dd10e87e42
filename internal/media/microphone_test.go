package media

import (
	"testing"
	"time"
)

func TestMicrophone_MuteDropsFrames(t *testing.T) {
	src := make(chan []byte, 8)
	mic := newMicrophone(src)
	defer mic.Stop()

	var tapped int
	tapDone := make(chan struct{}, 8)
	mic.AddTap(func([]byte) {
		tapped++
		tapDone <- struct{}{}
	})

	src <- []byte{1}
	select {
	case <-mic.Frames():
	case <-time.After(time.Second):
		t.Fatal("unmuted frame did not arrive")
	}
	<-tapDone

	mic.SetMuted(true)
	src <- []byte{2}
	select {
	case <-mic.Frames():
		t.Fatal("muted frame must not arrive")
	case <-time.After(50 * time.Millisecond):
	}
	if tapped != 1 {
		t.Errorf("muted frames must not reach taps, tapped=%d", tapped)
	}

	mic.SetMuted(false)
	src <- []byte{3}
	select {
	case frame := <-mic.Frames():
		if frame[0] != 3 {
			t.Errorf("expected frame 3, got %d", frame[0])
		}
	case <-time.After(time.Second):
		t.Fatal("frame after unmute did not arrive")
	}
}

func TestMicrophone_StopClosesOutput(t *testing.T) {
	src := make(chan []byte)
	mic := newMicrophone(src)

	mic.Stop()
	mic.Stop()

	select {
	case _, ok := <-mic.Frames():
		if ok {
			t.Error("expected closed output channel")
		}
	case <-time.After(time.Second):
		t.Fatal("output channel did not close")
	}
}

func TestMicrophone_SourceCloseEndsPump(t *testing.T) {
	src := make(chan []byte)
	mic := newMicrophone(src)
	close(src)

	select {
	case _, ok := <-mic.Frames():
		if ok {
			t.Error("expected closed output channel")
		}
	case <-time.After(time.Second):
		t.Fatal("output channel did not close after source close")
	}
}
