package practice

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/parley-labs/parley/internal/shared"
)

type fakePresence struct {
	mu         sync.Mutex
	registered []string
	removed    []string
}

func (p *fakePresence) Register(ctx context.Context, snap Snapshot) error {
	p.mu.Lock()
	p.registered = append(p.registered, snap.ID)
	p.mu.Unlock()
	return nil
}

func (p *fakePresence) Unregister(ctx context.Context, sessionID string) error {
	p.mu.Lock()
	p.removed = append(p.removed, sessionID)
	p.mu.Unlock()
	return nil
}

func newTestManager(presence Presence) *Manager {
	return NewManager(func(traineeID, scenarioID, personaID, prompt string, screenShare bool) *Session {
		return NewSession(SessionConfig{
			TraineeID:  traineeID,
			ScenarioID: scenarioID,
			PersonaID:  personaID,
			Issuer:     &fakeIssuer{},
			NewTransport: func() PartnerTransport {
				return &fakeTransport{}
			},
			Resources: &fakeResources{},
			Store:     &fakeStore{},
			Reporter:  &fakeReporter{},
		})
	}, presence, nil)
}

func TestManagerCreateAndGet(t *testing.T) {
	presence := &fakePresence{}
	m := newTestManager(presence)

	s, err := m.Create(context.Background(), "trainee-1", "scenario-1", "persona-1", "", false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	got, err := m.Get(s.ID())
	if err != nil || got != s {
		t.Fatalf("Get() = %v, %v", got, err)
	}
	if len(presence.registered) != 1 || presence.registered[0] != s.ID() {
		t.Errorf("presence registered = %v", presence.registered)
	}
}

func TestManagerRejectsSecondLiveSession(t *testing.T) {
	m := newTestManager(nil)

	if _, err := m.Create(context.Background(), "trainee-1", "s1", "p1", "", false); err != nil {
		t.Fatalf("first Create() error = %v", err)
	}
	_, err := m.Create(context.Background(), "trainee-1", "s2", "p1", "", false)
	if !errors.Is(err, shared.ErrConflict) {
		t.Fatalf("second Create() error = %v, want ErrConflict", err)
	}

	// A different trainee is unaffected.
	if _, err := m.Create(context.Background(), "trainee-2", "s1", "p1", "", false); err != nil {
		t.Fatalf("other trainee Create() error = %v", err)
	}
}

func TestManagerRemoveFreesTrainee(t *testing.T) {
	presence := &fakePresence{}
	m := newTestManager(presence)

	s, err := m.Create(context.Background(), "trainee-1", "s1", "p1", "", false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	m.Remove(s.ID())

	if _, err := m.Get(s.ID()); !errors.Is(err, shared.ErrNotFound) {
		t.Errorf("Get() after Remove error = %v, want ErrNotFound", err)
	}
	if _, err := m.Create(context.Background(), "trainee-1", "s2", "p1", "", false); err != nil {
		t.Errorf("Create() after Remove error = %v", err)
	}
	if len(presence.removed) != 1 {
		t.Errorf("presence removals = %d, want 1", len(presence.removed))
	}
}

type usagePresence struct {
	fakePresence
	minutes   []int64
	abandoned []string
}

func (p *usagePresence) IncrementMinutes(ctx context.Context, scenarioID string, minutes int64) error {
	p.mu.Lock()
	p.minutes = append(p.minutes, minutes)
	p.mu.Unlock()
	return nil
}

func (p *usagePresence) IncrementAbandoned(ctx context.Context, scenarioID string) error {
	p.mu.Lock()
	p.abandoned = append(p.abandoned, scenarioID)
	p.mu.Unlock()
	return nil
}

func TestManagerRemoveRecordsAbandonCounter(t *testing.T) {
	presence := &usagePresence{}
	m := newTestManager(presence)

	s, err := m.Create(context.Background(), "trainee-1", "s1", "p1", "", false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Start(context.Background(), newFakeConn(true)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	s.Abandon(context.Background())
	m.Remove(s.ID())

	if len(presence.abandoned) != 1 || presence.abandoned[0] != "s1" {
		t.Errorf("abandoned counter = %v, want [s1]", presence.abandoned)
	}
}

func TestManagerShutdownEndsSessions(t *testing.T) {
	m := newTestManager(nil)

	s, err := m.Create(context.Background(), "trainee-1", "s1", "p1", "", false)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Start(context.Background(), newFakeConn(true)); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	m.Shutdown(context.Background())

	if got := s.Snapshot().Status; got != StatusEnded {
		t.Errorf("status after shutdown = %v, want ended", got)
	}
}
