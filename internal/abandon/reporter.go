// Package abandon records sessions the trainee walked away from without
// ending. Reports are best effort and ride short timeouts so a dying
// request can still land one.
package abandon

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	queueKey      = "practice:abandoned"
	reportTimeout = 2 * time.Second
)

// RecordMarker flags the persisted session record as abandoned.
type RecordMarker interface {
	MarkAbandoned(ctx context.Context, sessionID, traineeID string) error
}

type Report struct {
	SessionID      string    `json:"session_id"`
	TraineeID      string    `json:"trainee_id"`
	Status         string    `json:"status"`
	ElapsedSeconds int64     `json:"elapsed_seconds"`
	ReportedAt     time.Time `json:"reported_at"`
}

type Reporter struct {
	redis  redis.UniversalClient
	marker RecordMarker
	log    *slog.Logger
}

func NewReporter(rdb redis.UniversalClient, marker RecordMarker, log *slog.Logger) *Reporter {
	if log == nil {
		log = slog.Default()
	}
	return &Reporter{redis: rdb, marker: marker, log: log}
}

// Notify pushes one report and flags the record. Failures are logged and
// swallowed; an abandonment report never blocks teardown.
func (r *Reporter) Notify(ctx context.Context, rep Report) {
	rep.ReportedAt = time.Now().UTC()

	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), reportTimeout)
	defer cancel()

	if r.redis != nil {
		payload, _ := json.Marshal(rep)
		if err := r.redis.LPush(rctx, queueKey, payload).Err(); err != nil {
			r.log.Warn("abandonment report enqueue failed",
				"session_id", rep.SessionID, "error", err)
		}
	}
	if r.marker != nil {
		if err := r.marker.MarkAbandoned(rctx, rep.SessionID, rep.TraineeID); err != nil {
			r.log.Warn("abandonment record mark failed",
				"session_id", rep.SessionID, "error", err)
		}
	}
	r.log.Info("session abandoned",
		"session_id", rep.SessionID,
		"trainee_id", rep.TraineeID,
		"status", rep.Status,
		"elapsed_seconds", rep.ElapsedSeconds)
}
