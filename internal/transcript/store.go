package transcript

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/parley-labs/parley/internal/shared"
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Record{})
}

// CreateOrUpdate upserts the record keyed by session ID, so a retried End
// cannot produce a second row.
func (s *Store) CreateOrUpdate(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = shared.NewID("rec_")
	}
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "session_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"transcript", "duration_seconds", "end_reason", "abandoned", "updated_at",
		}),
	}).Create(rec).Error
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	return nil
}

func (s *Store) GetBySessionID(ctx context.Context, sessionID string) (*Record, error) {
	var rec Record
	err := s.db.WithContext(ctx).Where("session_id = ?", sessionID).First(&rec).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	return &rec, nil
}

func (s *Store) ListByTrainee(ctx context.Context, traineeID string, limit int) ([]Record, error) {
	if limit <= 0 || limit > 100 {
		limit = 50
	}
	var recs []Record
	err := s.db.WithContext(ctx).
		Where("trainee_id = ?", traineeID).
		Order("created_at DESC").
		Limit(limit).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	return recs, nil
}

func (s *Store) AttachRecordingURL(ctx context.Context, sessionID, recordingURL string) error {
	err := s.db.WithContext(ctx).Model(&Record{}).
		Where("session_id = ?", sessionID).
		Update("recording_url", recordingURL).Error
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	return nil
}

// MarkAbandoned flags an existing record, or creates a stub when the
// session never got far enough to persist one.
func (s *Store) MarkAbandoned(ctx context.Context, sessionID, traineeID string) error {
	res := s.db.WithContext(ctx).Model(&Record{}).
		Where("session_id = ?", sessionID).
		Update("abandoned", true)
	if res.Error != nil {
		return fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, res.Error)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	rec := &Record{
		ID:        shared.NewID("rec_"),
		SessionID: sessionID,
		TraineeID: traineeID,
		EndReason: "abandoned",
		Abandoned: true,
	}
	if err := s.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("%w: %v", shared.ErrPersistenceFailed, err)
	}
	return nil
}
