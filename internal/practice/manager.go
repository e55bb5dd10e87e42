package practice

import (
	"context"
	"log/slog"
	"sync"

	"github.com/parley-labs/parley/internal/shared"
)

// Presence tracks live sessions in shared storage for other instances and
// for usage counters.
type Presence interface {
	Register(ctx context.Context, snap Snapshot) error
	Unregister(ctx context.Context, sessionID string) error
}

// Usage records per-scenario counters when a session finishes. Presence
// implementations may also satisfy it; Remove checks with a type assertion.
type Usage interface {
	IncrementMinutes(ctx context.Context, scenarioID string, minutes int64) error
	IncrementAbandoned(ctx context.Context, scenarioID string) error
}

// Manager owns the live session set. One active session per trainee; a
// second Create while the first still holds resources is rejected.
type Manager struct {
	newSession func(traineeID, scenarioID, personaID, prompt string, screenShare bool) *Session
	presence   Presence
	log        *slog.Logger

	mu        sync.Mutex
	sessions  map[string]*Session
	byTrainee map[string]string
}

func NewManager(newSession func(traineeID, scenarioID, personaID, prompt string, screenShare bool) *Session, presence Presence, log *slog.Logger) *Manager {
	if log == nil {
		log = slog.Default()
	}
	return &Manager{
		newSession: newSession,
		presence:   presence,
		log:        log,
		sessions:   make(map[string]*Session),
		byTrainee:  make(map[string]string),
	}
}

func (m *Manager) Create(ctx context.Context, traineeID, scenarioID, personaID, prompt string, screenShare bool) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existingID, ok := m.byTrainee[traineeID]; ok {
		if existing, ok := m.sessions[existingID]; ok && existing.Snapshot().Status != StatusEnded {
			return nil, shared.ErrConflict
		}
		delete(m.byTrainee, traineeID)
		delete(m.sessions, existingID)
	}

	s := m.newSession(traineeID, scenarioID, personaID, prompt, screenShare)
	m.sessions[s.ID()] = s
	m.byTrainee[traineeID] = s.ID()

	if m.presence != nil {
		if err := m.presence.Register(ctx, s.Snapshot()); err != nil {
			m.log.Warn("session presence not registered", "session_id", s.ID(), "error", err)
		}
	}
	return s, nil
}

func (m *Manager) Get(sessionID string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return s, nil
}

// Remove drops a finished session from the live set. Wired as the
// session's OnFinished hook.
func (m *Manager) Remove(sessionID string) {
	m.mu.Lock()
	s, ok := m.sessions[sessionID]
	if ok {
		delete(m.sessions, sessionID)
		if m.byTrainee[s.TraineeID()] == sessionID {
			delete(m.byTrainee, s.TraineeID())
		}
	}
	m.mu.Unlock()

	if !ok || m.presence == nil {
		return
	}
	ctx := context.Background()
	if err := m.presence.Unregister(ctx, sessionID); err != nil {
		m.log.Warn("session presence not unregistered", "session_id", sessionID, "error", err)
	}
	usage, isUsage := m.presence.(Usage)
	if !isUsage {
		return
	}
	snap := s.Snapshot()
	if minutes := (int64(snap.ElapsedSeconds) + 59) / 60; minutes > 0 {
		if err := usage.IncrementMinutes(ctx, snap.ScenarioID, minutes); err != nil {
			m.log.Warn("usage minutes not recorded", "session_id", sessionID, "error", err)
		}
	}
	if s.Abandoned() {
		if err := usage.IncrementAbandoned(ctx, snap.ScenarioID); err != nil {
			m.log.Warn("abandon counter not recorded", "session_id", sessionID, "error", err)
		}
	}
}

// Shutdown ends every live session, used on server stop.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	live := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		live = append(live, s)
	}
	m.mu.Unlock()

	for _, s := range live {
		if err := s.End(ctx, "server_shutdown"); err != nil {
			m.log.Error("session shutdown end failed", "session_id", s.ID(), "error", err)
		}
	}
}

func (m *Manager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}
