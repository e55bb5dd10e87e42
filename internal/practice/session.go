// Package practice implements the lifecycle of one spoken practice
// session: connect, converse, pause, end, and the cleanup paths that make
// every exit look the same.
package practice

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/parley-labs/parley/internal/abandon"
	"github.com/parley-labs/parley/internal/clock"
	"github.com/parley-labs/parley/internal/credential"
	"github.com/parley-labs/parley/internal/partner"
	"github.com/parley-labs/parley/internal/protocol"
	"github.com/parley-labs/parley/internal/shared"
	"github.com/parley-labs/parley/internal/transcript"
	"github.com/parley-labs/parley/internal/transport"
)

const (
	DefaultMinGradeSeconds = 15
	defaultFrameInterval   = time.Second
	defaultFrameMaxWidth   = 1024
)

// Mic is the live microphone handle the session mutes on pause.
type Mic interface {
	Frames() <-chan []byte
	SetMuted(muted bool)
	Muted() bool
}

// Resources is the per-session media bundle. Every resource it hands out
// is reclaimed by the one ReleaseAll call.
type Resources interface {
	AcquireMicrophone(conn transport.Connection) (Mic, error)
	StartRecording()
	StopRecording() []byte
	StartFrameCapture(onFrame func(encoded string, capturedAtMs int64), interval time.Duration, maxWidth int) error
	StopFrameCapture()
	ReleaseAll()
}

// CredentialIssuer mints the ephemeral partner credential.
type CredentialIssuer interface {
	Issue(ctx context.Context, req credential.Request) (*credential.Grant, error)
}

// PartnerTransport is the real-time leg to the conversation partner. One
// transport serves one connect; the session builds a fresh one per Start.
type PartnerTransport interface {
	Connect(ctx context.Context, grant *credential.Grant, mic partner.MicSource, sink transport.AudioSink) error
	Send(data []byte) error
	OnMessage(fn func(data []byte))
	OnQuality(fn func(q partner.Quality))
	Close() error
}

// RecordStore persists the session outcome.
type RecordStore interface {
	CreateOrUpdate(ctx context.Context, rec *transcript.Record) error
	AttachRecordingURL(ctx context.Context, sessionID, recordingURL string) error
}

// Grader evaluates a persisted session.
type Grader interface {
	Grade(ctx context.Context, sessionID string) error
}

// Uploader ships the WAV capture and returns its URL.
type Uploader interface {
	Upload(ctx context.Context, traineeID, sessionID string, wav []byte) (string, error)
}

// AbandonNotifier fires the walked-away report.
type AbandonNotifier interface {
	Notify(ctx context.Context, rep abandon.Report)
}

type SessionConfig struct {
	TraineeID      string
	ScenarioID     string
	PersonaID      string
	ScenarioPrompt string
	ScreenShare    bool

	Issuer       CredentialIssuer
	NewTransport func() PartnerTransport
	Resources    Resources
	Store        RecordStore
	Grader       Grader
	Uploader     Uploader
	Reporter     AbandonNotifier
	Sink         EventSink
	Logger       *slog.Logger

	WarnAfter        time.Duration
	Ceiling          time.Duration
	MinGradeSeconds  int64
	HandshakeTimeout time.Duration
	FrameInterval    time.Duration
	FrameMaxWidth    int

	// OnFinished runs after the session reaches Ended, outside the lock.
	OnFinished func(id string)

	// Now overrides the time source for tests.
	Now func() time.Time
}

// Session drives one practice conversation from briefing to a persisted,
// optionally graded record. All methods are safe for concurrent use.
type Session struct {
	cfg    SessionConfig
	id     string
	holder *Holder
	log    *slog.Logger
	now    func() time.Time

	tracker *clock.Tracker
	sink    EventSink

	mu          sync.Mutex
	status      Status
	connected   bool
	mic         Mic
	tp          PartnerTransport
	partial     strings.Builder
	entries     transcript.Transcript
	intentional bool
	abandoned   bool
	finished    bool
	cancelRun   context.CancelFunc
}

func NewSession(cfg SessionConfig) *Session {
	if cfg.MinGradeSeconds <= 0 {
		cfg.MinGradeSeconds = DefaultMinGradeSeconds
	}
	if cfg.FrameInterval <= 0 {
		cfg.FrameInterval = defaultFrameInterval
	}
	if cfg.FrameMaxWidth <= 0 {
		cfg.FrameMaxWidth = defaultFrameMaxWidth
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = partner.DefaultHandshakeTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Sink == nil {
		cfg.Sink = nopSink{}
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	id := shared.NewID("ps_")
	s := &Session{
		cfg:    cfg,
		id:     id,
		holder: NewHolder(id, cfg.TraineeID, cfg.ScenarioID),
		log:    cfg.Logger.With("session_id", id),
		now:    cfg.Now,
		sink:   cfg.Sink,
		status: StatusBriefing,
	}
	s.tracker = clock.New(clock.Config{
		WarnAfter: cfg.WarnAfter,
		Ceiling:   cfg.Ceiling,
		Now:       cfg.Now,
		OnWarning: s.onTimeWarning,
		OnCeiling: s.onTimeCeiling,
	})
	return s
}

func (s *Session) ID() string        { return s.id }
func (s *Session) TraineeID() string { return s.cfg.TraineeID }

// Abandoned reports whether the session finished through the abandonment
// path rather than an intentional end.
func (s *Session) Abandoned() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.abandoned
}

// Snapshot merges the published state with the live elapsed time.
func (s *Session) Snapshot() Snapshot {
	snap := s.holder.Snapshot()
	snap.ElapsedSeconds = int(s.tracker.ElapsedSeconds())
	return snap
}

// Ready moves a briefed session onto the practice screen.
func (s *Session) Ready() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != StatusBriefing {
		return shared.ErrConflict
	}
	s.setStatusLocked(StatusIdle)
	return nil
}

// Start acquires the microphone, mints a credential, and connects the
// partner leg. On any failure every acquired resource is released and the
// session returns to Idle, so a retry starts from a clean slate.
func (s *Session) Start(ctx context.Context, conn transport.Connection) error {
	s.mu.Lock()
	if s.finished {
		s.mu.Unlock()
		return shared.ErrConflict
	}
	if s.status != StatusBriefing && s.status != StatusIdle {
		s.mu.Unlock()
		return shared.ErrConflict
	}
	s.setStatusLocked(StatusConnecting)
	s.mu.Unlock()

	mic, tp, err := s.connect(ctx, conn)
	if err != nil {
		s.cfg.Resources.ReleaseAll()
		s.mu.Lock()
		if !s.finished {
			s.setStatusLocked(StatusIdle)
		}
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	if s.finished {
		// End or Abandon raced the handshake; tear down what we built.
		s.mu.Unlock()
		tp.Close()
		s.cfg.Resources.ReleaseAll()
		return shared.ErrConflict
	}
	s.mic = mic
	s.tp = tp
	s.connected = true
	s.cfg.Resources.StartRecording()
	s.tracker.Start()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelRun = cancel
	s.holder.update(func(sn *Snapshot) { sn.StartedAt = s.now().UTC() })
	s.setStatusLocked(StatusConnected)
	s.mu.Unlock()

	go s.tracker.Run(runCtx)
	s.log.Info("practice session connected", "trainee_id", s.cfg.TraineeID, "scenario_id", s.cfg.ScenarioID)
	return nil
}

func (s *Session) connect(ctx context.Context, conn transport.Connection) (Mic, PartnerTransport, error) {
	mic, err := s.cfg.Resources.AcquireMicrophone(conn)
	if err != nil {
		return nil, nil, err
	}

	grant, err := s.cfg.Issuer.Issue(ctx, credential.Request{
		PersonaID:       s.cfg.PersonaID,
		SessionKind:     "practice",
		ScreenShare:     s.cfg.ScreenShare,
		ScenarioPrompt:  s.cfg.ScenarioPrompt,
		TraineeIdentity: s.cfg.TraineeID,
	})
	if err != nil {
		return nil, nil, err
	}

	tp := s.cfg.NewTransport()
	tp.OnMessage(s.handleMessage)
	tp.OnQuality(s.handleQuality)

	hctx, cancel := context.WithTimeout(ctx, s.cfg.HandshakeTimeout)
	defer cancel()
	if err := tp.Connect(hctx, grant, mic, conn); err != nil {
		tp.Close()
		return nil, nil, err
	}
	return mic, tp, nil
}

// handleMessage applies one control-channel message from the partner.
// Malformed input produces an empty effect and is dropped here.
func (s *Session) handleMessage(data []byte) {
	eff := protocol.Interpret(data)
	if eff.None() {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}

	if eff.AppendPartial != "" {
		s.partial.WriteString(eff.AppendPartial)
		s.publishLocked(Event{Kind: EventPartnerPartial, Text: s.partial.String()})
	}
	if eff.FinalizePartner {
		text := eff.FinalText
		if text == "" {
			text = s.partial.String()
		}
		s.partial.Reset()
		if text != "" {
			s.entries = append(s.entries, transcript.Entry{Role: transcript.RolePartner, Text: text, At: s.now().UTC()})
			s.publishLocked(Event{Kind: EventPartnerFinal, Text: text})
		}
	}
	if eff.TraineeText != "" {
		s.entries = append(s.entries, transcript.Entry{Role: transcript.RoleTrainee, Text: eff.TraineeText, At: s.now().UTC()})
		s.publishLocked(Event{Kind: EventTraineeFinal, Text: eff.TraineeText})
	}
	if eff.Warning != "" {
		// Surfaced even while paused. The call itself is unaffected.
		s.publishLocked(Event{Kind: EventAdvisory, Text: eff.Warning})
	}
	if eff.Request != protocol.StatusNone && s.status.InCall() {
		switch eff.Request {
		case protocol.StatusSpeaking:
			s.setStatusLocked(StatusSpeaking)
		case protocol.StatusListening:
			s.setStatusLocked(StatusListening)
		case protocol.StatusConnected:
			s.setStatusLocked(StatusConnected)
		}
	}
}

// handleQuality surfaces transport degradation as an advisory. The status
// machine never moves on quality; leaving a bad call stays the trainee's
// decision.
func (s *Session) handleQuality(q partner.Quality) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.publishLocked(Event{Kind: EventQuality, Text: q.String()})
	s.log.Warn("partner transport degraded", "quality", q.String())
}

// Pause mutes the microphone, freezes the elapsed clock, and asks the
// partner to drop its in-flight response.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.InCall() {
		return shared.ErrConflict
	}
	if s.tracker.Paused() {
		return nil
	}
	s.tracker.Pause()
	if s.mic != nil {
		s.mic.SetMuted(true)
	}
	if s.tp != nil {
		if err := s.tp.Send(protocol.CancelResponse()); err != nil {
			s.log.Debug("response cancel not delivered", "error", err)
		}
	}
	s.holder.update(func(sn *Snapshot) { sn.Paused = true })
	s.publishLocked(Event{Kind: EventStatus, Status: s.status})
	return nil
}

// Resume unmutes and lets the clock run again.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.InCall() {
		return shared.ErrConflict
	}
	if !s.tracker.Paused() {
		return nil
	}
	s.tracker.Resume()
	if s.mic != nil {
		s.mic.SetMuted(false)
	}
	s.holder.update(func(sn *Snapshot) { sn.Paused = false })
	s.publishLocked(Event{Kind: EventStatus, Status: s.status})
	return nil
}

// StartScreenShare begins forwarding periodic still frames to the partner.
func (s *Session) StartScreenShare() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.status.InCall() {
		return shared.ErrConflict
	}
	tp := s.tp
	return s.cfg.Resources.StartFrameCapture(func(encoded string, capturedAtMs int64) {
		if err := tp.Send(protocol.FrameMessage(encoded, capturedAtMs)); err != nil {
			s.log.Debug("frame not delivered", "error", err)
		}
	}, s.cfg.FrameInterval, s.cfg.FrameMaxWidth)
}

// StopScreenShare halts the frame loop. The bundle is only ever touched
// under s.mu, so a concurrent End cannot race the capturer teardown.
func (s *Session) StopScreenShare() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.finished {
		return
	}
	s.cfg.Resources.StopFrameCapture()
}

func (s *Session) onTimeWarning() {
	remaining := s.tracker.Remaining()
	s.mu.Lock()
	if !s.finished {
		s.publishLocked(Event{Kind: EventTimeWarning, Text: remainingText(remaining)})
	}
	s.mu.Unlock()
}

func remainingText(d time.Duration) string {
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes < 1 {
		return "less than a minute remaining"
	}
	if minutes == 1 {
		return "1 minute remaining"
	}
	return fmt.Sprintf("%d minutes remaining", minutes)
}

func (s *Session) onTimeCeiling() {
	s.log.Info("time ceiling reached, ending session")
	if err := s.End(context.Background(), "time_limit"); err != nil {
		s.log.Error("ceiling end failed", "error", err)
	}
}

// End finishes the session intentionally. Idempotent: the first call wins,
// later ones return nil without touching anything. Persistence failures
// are logged and do not block teardown.
func (s *Session) End(ctx context.Context, reason string) error {
	s.mu.Lock()
	s.intentional = true
	if s.finished {
		s.mu.Unlock()
		return nil
	}
	if s.status == StatusEnded || s.status == StatusEnding {
		s.mu.Unlock()
		return nil
	}
	wasActive := s.status.Active()
	s.setStatusLocked(StatusEnding)
	s.holder.update(func(sn *Snapshot) { sn.IntentionalLeave = true })

	elapsed := s.tracker.ElapsedSeconds()
	entries := s.entries
	wav := s.cfg.Resources.StopRecording()
	s.finishLocked(reason, elapsed, entries, false)
	s.mu.Unlock()

	if wasActive {
		s.gradeAsync(ctx, elapsed, wav)
	}
	return nil
}

// Abandon reports a trainee who left without ending. Suppressed when End
// already ran, when the leave was intentional, or when nothing live was
// held. Fires at most once.
func (s *Session) Abandon(ctx context.Context) {
	s.mu.Lock()
	if s.finished || s.abandoned || s.intentional || !s.status.Active() {
		s.mu.Unlock()
		return
	}
	s.abandoned = true
	rep := abandon.Report{
		SessionID:      s.id,
		TraineeID:      s.cfg.TraineeID,
		Status:         string(s.status),
		ElapsedSeconds: s.tracker.ElapsedSeconds(),
	}
	s.setStatusLocked(StatusEnding)

	elapsed := rep.ElapsedSeconds
	entries := s.entries
	s.cfg.Resources.StopRecording()
	s.finishLocked("abandoned", elapsed, entries, true)
	s.mu.Unlock()

	if s.cfg.Reporter != nil {
		s.cfg.Reporter.Notify(ctx, rep)
	}
}

// finishLocked is the single teardown path. Both End and Abandon land
// here, so resources are released exactly one way.
func (s *Session) finishLocked(reason string, elapsed int64, entries transcript.Transcript, abandoned bool) {
	s.finished = true

	if s.tp != nil {
		s.tp.Close()
		s.tp = nil
	}
	s.cfg.Resources.ReleaseAll()
	s.mic = nil
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}

	// Sessions that never reached the partner hold nothing worth a record;
	// to the collaborators they never existed.
	if s.cfg.Store != nil && s.connected {
		pctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		rec := &transcript.Record{
			SessionID:       s.id,
			TraineeID:       s.cfg.TraineeID,
			ScenarioID:      s.cfg.ScenarioID,
			Transcript:      entries,
			DurationSeconds: elapsed,
			EndReason:       reason,
			Abandoned:       abandoned,
		}
		if err := s.cfg.Store.CreateOrUpdate(pctx, rec); err != nil {
			s.log.Error("session record not persisted", "error", err)
			s.publishLocked(Event{Kind: EventAdvisory, Text: "session record could not be saved"})
		}
		cancel()
	}

	s.setStatusLocked(StatusEnded)
	s.publishLocked(Event{Kind: EventEnded, Text: reason})
	s.log.Info("practice session ended", "reason", reason, "elapsed_seconds", elapsed)

	if s.cfg.OnFinished != nil {
		go s.cfg.OnFinished(s.id)
	}
}

// gradeAsync uploads the capture and requests grading after the session is
// already Ended. The upload happens for every recorded session; only the
// grading call is gated on the minimum-duration threshold.
func (s *Session) gradeAsync(ctx context.Context, elapsed int64, wav []byte) {
	gradable := elapsed >= s.cfg.MinGradeSeconds
	if !gradable {
		s.log.Info("session below grading threshold", "elapsed_seconds", elapsed)
	}
	bctx := context.WithoutCancel(ctx)
	go func() {
		gctx, cancel := context.WithTimeout(bctx, 3*time.Minute)
		defer cancel()

		if len(wav) > 0 && s.cfg.Uploader != nil && s.cfg.Store != nil {
			url, err := s.cfg.Uploader.Upload(gctx, s.cfg.TraineeID, s.id, wav)
			if err != nil {
				s.log.Error("recording upload failed", "error", err)
			} else if err := s.cfg.Store.AttachRecordingURL(gctx, s.id, url); err != nil {
				s.log.Error("recording url not attached", "error", err)
			}
		}
		if gradable && s.cfg.Grader != nil {
			if err := s.cfg.Grader.Grade(gctx, s.id); err != nil {
				s.log.Error("grading request failed", "error", err)
			}
		}
	}()
}

func (s *Session) setStatusLocked(next Status) {
	if s.status == next {
		return
	}
	s.status = next
	s.holder.update(func(sn *Snapshot) { sn.Status = next })
	s.publishLocked(Event{Kind: EventStatus, Status: next})
}

func (s *Session) publishLocked(evt Event) {
	evt.SessionID = s.id
	evt.At = s.now().UTC()
	s.sink.Publish(evt)
}

// Transcript returns a copy of the finalized entries so far.
func (s *Session) Transcript() transcript.Transcript {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(transcript.Transcript, len(s.entries))
	copy(out, s.entries)
	return out
}
