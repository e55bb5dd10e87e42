package practice

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/parley-labs/parley/internal/abandon"
	"github.com/parley-labs/parley/internal/credential"
	"github.com/parley-labs/parley/internal/partner"
	"github.com/parley-labs/parley/internal/shared"
	"github.com/parley-labs/parley/internal/transcript"
	"github.com/parley-labs/parley/internal/transport"
)

type fakeConn struct {
	audio    chan []byte
	hasAudio bool
	done     chan struct{}
}

func newFakeConn(hasAudio bool) *fakeConn {
	return &fakeConn{audio: make(chan []byte, 8), hasAudio: hasAudio, done: make(chan struct{})}
}

func (c *fakeConn) AudioIn() <-chan []byte                        { return c.audio }
func (c *fakeConn) HasAudio() bool                                { return c.hasAudio }
func (c *fakeConn) WriteAudio([]byte) error                       { return nil }
func (c *fakeConn) OnVideo(func(payload []byte, mimeType string)) {}
func (c *fakeConn) HasVideo() bool                                { return false }
func (c *fakeConn) IsConnected() bool                             { return true }
func (c *fakeConn) Done() <-chan struct{}                         { return c.done }
func (c *fakeConn) Close() error                                  { return nil }

type fakeMic struct {
	mu     sync.Mutex
	frames chan []byte
	muted  bool
}

func (m *fakeMic) Frames() <-chan []byte { return m.frames }
func (m *fakeMic) SetMuted(v bool) {
	m.mu.Lock()
	m.muted = v
	m.mu.Unlock()
}
func (m *fakeMic) Muted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.muted
}

type fakeResources struct {
	mu          sync.Mutex
	acquireErr  error
	mic         *fakeMic
	acquired    int
	recording   bool
	wav         []byte
	releaseAlls int
	capturing   bool
	captureStop int
}

func (r *fakeResources) AcquireMicrophone(conn transport.Connection) (Mic, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.acquireErr != nil {
		return nil, r.acquireErr
	}
	r.acquired++
	r.mic = &fakeMic{frames: make(chan []byte, 8)}
	return r.mic, nil
}

func (r *fakeResources) StartRecording() {
	r.mu.Lock()
	r.recording = true
	r.mu.Unlock()
}

func (r *fakeResources) StopRecording() []byte {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.recording {
		return nil
	}
	r.recording = false
	return r.wav
}

func (r *fakeResources) StartFrameCapture(onFrame func(string, int64), interval time.Duration, maxWidth int) error {
	r.mu.Lock()
	r.capturing = true
	r.mu.Unlock()
	return nil
}

func (r *fakeResources) StopFrameCapture() {
	r.mu.Lock()
	r.capturing = false
	r.captureStop++
	r.mu.Unlock()
}

func (r *fakeResources) captureStops() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.captureStop
}

func (r *fakeResources) capturingNow() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.capturing
}

func (r *fakeResources) ReleaseAll() {
	r.mu.Lock()
	r.releaseAlls++
	r.recording = false
	r.capturing = false
	r.mu.Unlock()
}

func (r *fakeResources) releases() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.releaseAlls
}

type fakeTransport struct {
	mu         sync.Mutex
	connectErr error
	connected  bool
	closed     int
	sent       [][]byte
	onMessage  func([]byte)
	onQuality  func(partner.Quality)
}

func (t *fakeTransport) Connect(ctx context.Context, grant *credential.Grant, mic partner.MicSource, sink transport.AudioSink) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.connectErr != nil {
		return t.connectErr
	}
	t.connected = true
	return nil
}

func (t *fakeTransport) Send(data []byte) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.connected {
		return shared.ErrTransportFailed
	}
	t.sent = append(t.sent, data)
	return nil
}

func (t *fakeTransport) OnMessage(fn func([]byte)) {
	t.mu.Lock()
	t.onMessage = fn
	t.mu.Unlock()
}

func (t *fakeTransport) OnQuality(fn func(partner.Quality)) {
	t.mu.Lock()
	t.onQuality = fn
	t.mu.Unlock()
}

func (t *fakeTransport) Close() error {
	t.mu.Lock()
	t.closed++
	t.connected = false
	t.mu.Unlock()
	return nil
}

func (t *fakeTransport) inject(msg map[string]any) {
	data, _ := json.Marshal(msg)
	t.mu.Lock()
	fn := t.onMessage
	t.mu.Unlock()
	fn(data)
}

func (t *fakeTransport) sentMessages() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.sent))
	copy(out, t.sent)
	return out
}

type fakeIssuer struct {
	err error
}

func (i *fakeIssuer) Issue(ctx context.Context, req credential.Request) (*credential.Grant, error) {
	if i.err != nil {
		return nil, i.err
	}
	return &credential.Grant{
		SessionID:    "provider-sess",
		ClientSecret: "ek_test",
		ExpiresAt:    time.Now().Add(time.Minute),
		Partner:      credential.PartnerConfig{Model: "partner-realtime"},
	}, nil
}

type fakeStore struct {
	mu       sync.Mutex
	creates  int
	last     *transcript.Record
	attached string
}

func (s *fakeStore) CreateOrUpdate(ctx context.Context, rec *transcript.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creates++
	s.last = rec
	return nil
}

func (s *fakeStore) AttachRecordingURL(ctx context.Context, sessionID, url string) error {
	s.mu.Lock()
	s.attached = url
	s.mu.Unlock()
	return nil
}

func (s *fakeStore) createCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.creates
}

type fakeGrader struct {
	graded chan string
}

func (g *fakeGrader) Grade(ctx context.Context, sessionID string) error {
	g.graded <- sessionID
	return nil
}

type fakeUploader struct {
	uploaded chan string
	mu       sync.Mutex
	trainee  string
}

func (u *fakeUploader) Upload(ctx context.Context, traineeID, sessionID string, wav []byte) (string, error) {
	u.mu.Lock()
	u.trainee = traineeID
	u.mu.Unlock()
	u.uploaded <- sessionID
	return "https://recordings.example/" + sessionID + ".wav", nil
}

func (u *fakeUploader) traineeID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.trainee
}

type fakeReporter struct {
	mu      sync.Mutex
	reports []abandon.Report
}

func (r *fakeReporter) Notify(ctx context.Context, rep abandon.Report) {
	r.mu.Lock()
	r.reports = append(r.reports, rep)
	r.mu.Unlock()
}

func (r *fakeReporter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.reports)
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureSink) Publish(evt Event) {
	c.mu.Lock()
	c.events = append(c.events, evt)
	c.mu.Unlock()
}

func (c *captureSink) kinds() []EventKind {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]EventKind, len(c.events))
	for i, e := range c.events {
		out[i] = e.Kind
	}
	return out
}

type fixture struct {
	session   *Session
	res       *fakeResources
	tp        *fakeTransport
	store     *fakeStore
	grader    *fakeGrader
	uploader  *fakeUploader
	reporter  *fakeReporter
	sink      *captureSink
	clockNow  time.Time
	clockLock sync.Mutex
}

func (f *fixture) now() time.Time {
	f.clockLock.Lock()
	defer f.clockLock.Unlock()
	return f.clockNow
}

func (f *fixture) advance(d time.Duration) {
	f.clockLock.Lock()
	f.clockNow = f.clockNow.Add(d)
	f.clockLock.Unlock()
}

func newFixture(t *testing.T, mutate func(cfg *SessionConfig)) *fixture {
	t.Helper()
	f := &fixture{
		res:      &fakeResources{wav: []byte("RIFFx")},
		tp:       &fakeTransport{},
		store:    &fakeStore{},
		grader:   &fakeGrader{graded: make(chan string, 1)},
		uploader: &fakeUploader{uploaded: make(chan string, 1)},
		reporter: &fakeReporter{},
		sink:     &captureSink{},
		clockNow: time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
	}
	cfg := SessionConfig{
		TraineeID:  "trainee-1",
		ScenarioID: "scenario-1",
		PersonaID:  "persona-1",
		Issuer:     &fakeIssuer{},
		NewTransport: func() PartnerTransport {
			return f.tp
		},
		Resources: f.res,
		Store:     f.store,
		Grader:    f.grader,
		Uploader:  f.uploader,
		Reporter:  f.reporter,
		Sink:      f.sink,
		Now:       f.now,
	}
	if mutate != nil {
		mutate(&cfg)
	}
	f.session = NewSession(cfg)
	return f
}

func (f *fixture) startConnected(t *testing.T) {
	t.Helper()
	if err := f.session.Start(context.Background(), newFakeConn(true)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
}

func TestSessionStartHappyPath(t *testing.T) {
	f := newFixture(t, nil)

	if got := f.session.Snapshot().Status; got != StatusBriefing {
		t.Fatalf("initial status = %v", got)
	}
	f.startConnected(t)

	snap := f.session.Snapshot()
	if snap.Status != StatusConnected {
		t.Errorf("status = %v, want connected", snap.Status)
	}
	if !f.res.recording {
		t.Error("recording not started")
	}
	if f.res.acquired != 1 {
		t.Errorf("microphone acquires = %d", f.res.acquired)
	}
}

func TestSessionStartRejectsWhileActive(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)

	err := f.session.Start(context.Background(), newFakeConn(true))
	if !errors.Is(err, shared.ErrConflict) {
		t.Fatalf("second Start() error = %v, want ErrConflict", err)
	}
}

func TestSessionStartFailureReleasesEverything(t *testing.T) {
	f := newFixture(t, nil)
	f.res.acquireErr = shared.ErrPermissionDenied

	err := f.session.Start(context.Background(), newFakeConn(false))
	if !errors.Is(err, shared.ErrPermissionDenied) {
		t.Fatalf("Start() error = %v, want ErrPermissionDenied", err)
	}
	if f.res.releases() != 1 {
		t.Errorf("ReleaseAll calls = %d, want 1", f.res.releases())
	}
	if got := f.session.Snapshot().Status; got != StatusIdle {
		t.Errorf("status after failed start = %v, want idle", got)
	}

	// A retry starts clean.
	f.res.acquireErr = nil
	if err := f.session.Start(context.Background(), newFakeConn(true)); err != nil {
		t.Fatalf("retry Start() error = %v", err)
	}
}

func TestSessionConnectFailureClosesTransport(t *testing.T) {
	f := newFixture(t, nil)
	f.tp.connectErr = shared.ErrHandshakeTimeout

	err := f.session.Start(context.Background(), newFakeConn(true))
	if !errors.Is(err, shared.ErrHandshakeTimeout) {
		t.Fatalf("Start() error = %v, want ErrHandshakeTimeout", err)
	}
	if f.tp.closed != 1 {
		t.Errorf("transport Close calls = %d, want 1", f.tp.closed)
	}
	if f.res.releases() != 1 {
		t.Errorf("ReleaseAll calls = %d, want 1", f.res.releases())
	}
}

func TestSessionStatusFollowsControlMessages(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)

	f.tp.inject(map[string]any{"type": "partner.delta", "text": "Hel"})
	if got := f.session.Snapshot().Status; got != StatusSpeaking {
		t.Errorf("status after delta = %v, want speaking", got)
	}

	f.tp.inject(map[string]any{"type": "trainee.started"})
	if got := f.session.Snapshot().Status; got != StatusListening {
		t.Errorf("status after trainee.started = %v, want listening", got)
	}

	f.tp.inject(map[string]any{"type": "response.complete"})
	if got := f.session.Snapshot().Status; got != StatusConnected {
		t.Errorf("status after response.complete = %v, want connected", got)
	}
}

func TestSessionFinalTextBeatsDeltas(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)

	f.tp.inject(map[string]any{"type": "partner.delta", "text": "Hel"})
	f.tp.inject(map[string]any{"type": "partner.delta", "text": "lo the"})
	f.tp.inject(map[string]any{"type": "partner.final", "text": "Hello there, welcome back."})

	entries := f.session.Transcript()
	if len(entries) != 1 {
		t.Fatalf("transcript entries = %d, want 1", len(entries))
	}
	if entries[0].Text != "Hello there, welcome back." {
		t.Errorf("final text = %q", entries[0].Text)
	}
	if entries[0].Role != transcript.RolePartner {
		t.Errorf("role = %q", entries[0].Role)
	}
}

func TestSessionFinalWithoutTextUsesAccumulatedDeltas(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)

	f.tp.inject(map[string]any{"type": "partner.delta", "text": "Good "})
	f.tp.inject(map[string]any{"type": "partner.delta", "text": "morning"})
	f.tp.inject(map[string]any{"type": "partner.final"})

	entries := f.session.Transcript()
	if len(entries) != 1 || entries[0].Text != "Good morning" {
		t.Fatalf("transcript = %+v", entries)
	}
}

func TestSessionMalformedMessagesIgnored(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)

	f.tp.onMessage([]byte("{not json"))
	f.tp.onMessage([]byte(`{"type":"something.unknown","text":"x"}`))

	if got := f.session.Snapshot().Status; got != StatusConnected {
		t.Errorf("status = %v, want connected", got)
	}
	if len(f.session.Transcript()) != 0 {
		t.Error("malformed input reached the transcript")
	}
}

func TestSessionPauseMutesAndCancels(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)
	f.advance(10 * time.Second)

	if err := f.session.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if !f.res.mic.Muted() {
		t.Error("microphone not muted on pause")
	}
	sent := f.tp.sentMessages()
	if len(sent) != 1 {
		t.Fatalf("sent messages = %d, want 1 cancel", len(sent))
	}
	var msg map[string]string
	if err := json.Unmarshal(sent[0], &msg); err != nil || msg["type"] != "response.cancel" {
		t.Errorf("sent = %s", sent[0])
	}

	// Paused time never counts toward elapsed.
	f.advance(5 * time.Minute)
	if got := f.session.Snapshot().ElapsedSeconds; got != 10 {
		t.Errorf("elapsed while paused = %d, want 10", got)
	}

	if err := f.session.Resume(); err != nil {
		t.Fatalf("Resume() error = %v", err)
	}
	if f.res.mic.Muted() {
		t.Error("microphone still muted after resume")
	}
	f.advance(7 * time.Second)
	if got := f.session.Snapshot().ElapsedSeconds; got != 17 {
		t.Errorf("elapsed after resume = %d, want 17", got)
	}
}

func TestSessionPauseIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)

	if err := f.session.Pause(); err != nil {
		t.Fatalf("Pause() error = %v", err)
	}
	if err := f.session.Pause(); err != nil {
		t.Fatalf("second Pause() error = %v", err)
	}
	if got := len(f.tp.sentMessages()); got != 1 {
		t.Errorf("cancel messages = %d, want 1", got)
	}
}

func TestSessionQualityIsAdvisoryOnly(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)

	f.tp.onQuality(partner.QualityFailed)

	if got := f.session.Snapshot().Status; got != StatusConnected {
		t.Errorf("status after quality failure = %v, want connected", got)
	}
	var advisories int
	for _, k := range f.sink.kinds() {
		if k == EventQuality {
			advisories++
		}
	}
	if advisories != 1 {
		t.Errorf("quality events = %d, want 1", advisories)
	}
}

func TestSessionEndIdempotent(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)
	f.advance(20 * time.Second)

	if err := f.session.End(context.Background(), "trainee_request"); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if err := f.session.End(context.Background(), "trainee_request"); err != nil {
		t.Fatalf("second End() error = %v", err)
	}

	if f.store.createCount() != 1 {
		t.Errorf("persisted records = %d, want 1", f.store.createCount())
	}
	if f.res.releases() != 1 {
		t.Errorf("ReleaseAll calls = %d, want 1", f.res.releases())
	}
	if f.tp.closed != 1 {
		t.Errorf("transport Close calls = %d, want 1", f.tp.closed)
	}
	if got := f.session.Snapshot().Status; got != StatusEnded {
		t.Errorf("status = %v, want ended", got)
	}
}

func TestSessionEndAboveThresholdGrades(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)
	f.advance(20 * time.Second)

	if err := f.session.End(context.Background(), "trainee_request"); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	select {
	case id := <-f.uploader.uploaded:
		if id != f.session.ID() {
			t.Errorf("uploaded session = %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("recording never uploaded")
	}
	if got := f.uploader.traineeID(); got != "trainee-1" {
		t.Errorf("uploaded trainee = %q", got)
	}
	select {
	case id := <-f.grader.graded:
		if id != f.session.ID() {
			t.Errorf("graded session = %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("grading never requested")
	}

	f.store.mu.Lock()
	duration := f.store.last.DurationSeconds
	f.store.mu.Unlock()
	if duration != 20 {
		t.Errorf("persisted duration = %d, want 20", duration)
	}
}

func TestSessionEndBelowThresholdSkipsGrading(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)
	f.advance(12 * time.Second)

	if err := f.session.End(context.Background(), "trainee_request"); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	// The recording still uploads; only grading is gated on the threshold.
	select {
	case id := <-f.uploader.uploaded:
		if id != f.session.ID() {
			t.Errorf("uploaded session = %q", id)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("short session recording never uploaded")
	}
	select {
	case <-f.grader.graded:
		t.Fatal("short session was graded")
	case <-time.After(200 * time.Millisecond):
	}
	// The record itself still persists.
	if f.store.createCount() != 1 {
		t.Errorf("persisted records = %d, want 1", f.store.createCount())
	}
}

func TestSessionAbandonFiresOnce(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)
	f.advance(30 * time.Second)

	f.session.Abandon(context.Background())
	f.session.Abandon(context.Background())

	if f.reporter.count() != 1 {
		t.Fatalf("abandonment reports = %d, want 1", f.reporter.count())
	}
	rep := f.reporter.reports[0]
	if rep.SessionID != f.session.ID() || rep.TraineeID != "trainee-1" {
		t.Errorf("report = %+v", rep)
	}
	if rep.ElapsedSeconds != 30 {
		t.Errorf("report elapsed = %d, want 30", rep.ElapsedSeconds)
	}
	if f.res.releases() != 1 {
		t.Errorf("ReleaseAll calls = %d, want 1", f.res.releases())
	}

	f.store.mu.Lock()
	abandoned := f.store.last.Abandoned
	f.store.mu.Unlock()
	if !abandoned {
		t.Error("record not flagged abandoned")
	}
}

func TestSessionAbandonSuppressedAfterEnd(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)

	if err := f.session.End(context.Background(), "trainee_request"); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	f.session.Abandon(context.Background())

	if f.reporter.count() != 0 {
		t.Errorf("abandonment reports = %d, want 0", f.reporter.count())
	}
}

func TestSessionAbandonSuppressedWhenInactive(t *testing.T) {
	f := newFixture(t, nil)

	f.session.Abandon(context.Background())

	if f.reporter.count() != 0 {
		t.Errorf("abandonment reports before start = %d, want 0", f.reporter.count())
	}
	if f.res.releases() != 0 {
		t.Errorf("ReleaseAll calls = %d, want 0", f.res.releases())
	}
}

func TestSessionTimeCeilingEndsSession(t *testing.T) {
	f := newFixture(t, func(cfg *SessionConfig) {
		cfg.WarnAfter = 10 * time.Second
		cfg.Ceiling = 20 * time.Second
	})
	f.startConnected(t)

	f.advance(11 * time.Second)
	f.session.tracker.Tick()
	var warned bool
	for _, k := range f.sink.kinds() {
		if k == EventTimeWarning {
			warned = true
		}
	}
	if !warned {
		t.Error("time warning never surfaced")
	}

	f.advance(10 * time.Second)
	f.session.tracker.Tick()
	if got := f.session.Snapshot().Status; got != StatusEnded {
		t.Errorf("status after ceiling = %v, want ended", got)
	}
	if f.store.createCount() != 1 {
		t.Errorf("persisted records = %d, want 1", f.store.createCount())
	}
}

func TestSessionReadyTransitions(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.session.Ready(); err != nil {
		t.Fatalf("Ready() error = %v", err)
	}
	if got := f.session.Snapshot().Status; got != StatusIdle {
		t.Errorf("status = %v, want idle", got)
	}
	if err := f.session.Ready(); !errors.Is(err, shared.ErrConflict) {
		t.Errorf("second Ready() error = %v, want ErrConflict", err)
	}
}

func TestSessionStopScreenShareAfterEndLeavesBundleAlone(t *testing.T) {
	f := newFixture(t, nil)
	f.startConnected(t)

	if err := f.session.StartScreenShare(); err != nil {
		t.Fatalf("StartScreenShare() error = %v", err)
	}
	if !f.res.capturingNow() {
		t.Fatal("frame capture not running")
	}
	f.session.StopScreenShare()
	if f.res.capturingNow() {
		t.Error("frame capture still running after stop")
	}
	if f.res.captureStops() != 1 {
		t.Errorf("StopFrameCapture calls = %d, want 1", f.res.captureStops())
	}

	if err := f.session.End(context.Background(), "trainee_request"); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	// The bundle is released; a late screen-share-off must not touch it.
	f.session.StopScreenShare()
	if f.res.captureStops() != 1 {
		t.Errorf("StopFrameCapture calls after end = %d, want 1", f.res.captureStops())
	}
}

func TestSessionEndBeforeConnectLeavesNoRecord(t *testing.T) {
	f := newFixture(t, nil)

	if err := f.session.End(context.Background(), "trainee_request"); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	if f.store.createCount() != 0 {
		t.Errorf("persisted records = %d, want 0", f.store.createCount())
	}
	if got := f.session.Snapshot().Status; got != StatusEnded {
		t.Errorf("status = %v, want ended", got)
	}
}

func TestSessionEndAfterFailedStartLeavesNoRecord(t *testing.T) {
	f := newFixture(t, nil)
	f.tp.connectErr = shared.ErrHandshakeTimeout

	if err := f.session.Start(context.Background(), newFakeConn(true)); !errors.Is(err, shared.ErrHandshakeTimeout) {
		t.Fatalf("Start() error = %v, want ErrHandshakeTimeout", err)
	}
	if err := f.session.End(context.Background(), "trainee_request"); err != nil {
		t.Fatalf("End() error = %v", err)
	}

	if f.store.createCount() != 0 {
		t.Errorf("persisted records = %d, want 0", f.store.createCount())
	}
}

func TestSessionTimeWarningReflectsConfiguredBudget(t *testing.T) {
	f := newFixture(t, func(cfg *SessionConfig) {
		cfg.WarnAfter = 8 * time.Minute
		cfg.Ceiling = 10 * time.Minute
	})
	f.startConnected(t)

	f.advance(8 * time.Minute)
	f.session.tracker.Tick()

	f.sink.mu.Lock()
	var warning string
	for _, e := range f.sink.events {
		if e.Kind == EventTimeWarning {
			warning = e.Text
		}
	}
	f.sink.mu.Unlock()
	if warning != "2 minutes remaining" {
		t.Errorf("warning = %q, want budget-derived text", warning)
	}
}
