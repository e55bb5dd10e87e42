// Package transcript persists the conversation record of a practice
// session and hands finished sessions to the grading service.
package transcript

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

const (
	RolePartner = "partner"
	RoleTrainee = "trainee"
)

// Entry is one finalized utterance. Partials never reach the transcript;
// the session folds them into a final entry first.
type Entry struct {
	Role string    `json:"role"`
	Text string    `json:"text"`
	At   time.Time `json:"at"`
}

// Transcript is the ordered utterance list, stored as a JSON column.
type Transcript []Entry

func (t Transcript) Value() (driver.Value, error) {
	if t == nil {
		return "[]", nil
	}
	data, err := json.Marshal(t)
	if err != nil {
		return nil, err
	}
	return string(data), nil
}

func (t *Transcript) Scan(value any) error {
	if value == nil {
		*t = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("transcript: cannot scan %T", value)
	}
	if len(data) == 0 {
		*t = nil
		return nil
	}
	return json.Unmarshal(data, t)
}

// Record is the persisted outcome of one practice session.
type Record struct {
	ID              string     `gorm:"primaryKey" json:"id"`
	SessionID       string     `gorm:"uniqueIndex;not null" json:"session_id"`
	TraineeID       string     `gorm:"index;not null" json:"trainee_id"`
	ScenarioID      string     `gorm:"index" json:"scenario_id"`
	Transcript      Transcript `gorm:"type:text" json:"transcript"`
	DurationSeconds int64      `json:"duration_seconds"`
	RecordingURL    string     `json:"recording_url,omitempty"`
	EndReason       string     `json:"end_reason,omitempty"`
	Abandoned       bool       `json:"abandoned"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (Record) TableName() string {
	return "practice_records"
}
