// Package transport defines the interfaces between the session engine and
// the trainee's media connection, so the engine can be tested without a live
// peer connection.
package transport

// Connection is the trainee leg of a call: uplink microphone audio in, paced
// partner audio out, and an optional video feed for screen sharing.
type Connection interface {
	// AudioIn delivers opus frames from the trainee's microphone. The
	// channel closes when the connection closes.
	AudioIn() <-chan []byte

	// HasAudio reports whether the trainee published a microphone track.
	// False maps to the trainee having refused the microphone permission.
	HasAudio() bool

	// WriteAudio queues one opus frame for paced downlink playback.
	WriteAudio(frame []byte) error

	// OnVideo registers a callback for depacketized video payloads. The
	// callback may never fire if the trainee publishes no video.
	OnVideo(fn func(payload []byte, mimeType string))

	// HasVideo reports whether the trainee negotiated a video track.
	HasVideo() bool

	IsConnected() bool

	// Done closes when the connection has been torn down for any reason.
	Done() <-chan struct{}

	Close() error
}

// AudioSink receives the partner's downlink audio.
type AudioSink interface {
	WriteAudio(frame []byte) error
}
