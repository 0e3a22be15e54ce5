package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Exchange is one relay invocation. Message content is never stored.
type Exchange struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	RequestID    string    `json:"request_id" gorm:"type:varchar(255);index"`
	Streamed     bool      `json:"streamed" gorm:"not null;default:false"`
	MessageCount int       `json:"message_count" gorm:"not null"`
	FileCount    int       `json:"file_count" gorm:"not null"`
	Outcome      string    `json:"outcome" gorm:"type:varchar(50);not null"`
	Status       int       `json:"upstream_status"`
	LatencyMS    int64     `json:"latency_ms" gorm:"not null"`
	CreatedAt    time.Time `json:"created_at" gorm:"not null"`
}

func (e *Exchange) BeforeCreate(tx *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}
