package practice

import (
	"sync"
	"time"
)

// Snapshot is the externally visible view of a session, safe to read from
// any goroutine.
type Snapshot struct {
	ID               string    `json:"id"`
	TraineeID        string    `json:"trainee_id"`
	ScenarioID       string    `json:"scenario_id"`
	Status           Status    `json:"status"`
	Paused           bool      `json:"paused"`
	IntentionalLeave bool      `json:"intentional_leave"`
	ElapsedSeconds   int       `json:"elapsed_seconds"`
	StartedAt        time.Time `json:"started_at,omitempty"`
}

// Holder publishes session snapshots. The session updates it synchronously
// with every state change so readers never observe a stale status.
type Holder struct {
	mu   sync.RWMutex
	snap Snapshot
}

func NewHolder(id, traineeID, scenarioID string) *Holder {
	return &Holder{snap: Snapshot{
		ID:         id,
		TraineeID:  traineeID,
		ScenarioID: scenarioID,
		Status:     StatusBriefing,
	}}
}

func (h *Holder) Snapshot() Snapshot {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.snap
}

func (h *Holder) update(fn func(s *Snapshot)) {
	h.mu.Lock()
	fn(&h.snap)
	h.mu.Unlock()
}
