package abandon

import (
	"context"
	"errors"
	"sync"
	"testing"
)

type fakeMarker struct {
	mu       sync.Mutex
	sessions []string
	err      error
}

func (m *fakeMarker) MarkAbandoned(ctx context.Context, sessionID, traineeID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sessions = append(m.sessions, sessionID)
	return nil
}

func TestReporterMarksRecord(t *testing.T) {
	marker := &fakeMarker{}
	r := NewReporter(nil, marker, nil)

	r.Notify(context.Background(), Report{
		SessionID:      "ps_1",
		TraineeID:      "trainee-1",
		Status:         "listening",
		ElapsedSeconds: 42,
	})

	if len(marker.sessions) != 1 || marker.sessions[0] != "ps_1" {
		t.Fatalf("marked sessions = %v", marker.sessions)
	}
}

func TestReporterSwallowsMarkerFailure(t *testing.T) {
	marker := &fakeMarker{err: errors.New("db down")}
	r := NewReporter(nil, marker, nil)

	// Must not panic or propagate; teardown never depends on the report.
	r.Notify(context.Background(), Report{SessionID: "ps_2", TraineeID: "trainee-1"})
}

func TestReporterSurvivesCanceledContext(t *testing.T) {
	marker := &fakeMarker{}
	r := NewReporter(nil, marker, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r.Notify(ctx, Report{SessionID: "ps_3", TraineeID: "trainee-1"})

	if len(marker.sessions) != 1 {
		t.Fatalf("marked sessions = %v, want the report to outlive the request", marker.sessions)
	}
}
