package model

import (
	"time"

	"gorm.io/datatypes"
)

// GradingCacheEntry is the durable layer of the grading cache: one row per
// content hash, written with replace-by-key upsert semantics so concurrent
// identical-key writes are safe.
type GradingCacheEntry struct {
	CacheKey  string         `gorm:"primaryKey;type:varchar(64)" json:"cache_key"` // sha256 hex
	ExamID    uint           `gorm:"index" json:"exam_id"`
	Scores    datatypes.JSON `gorm:"type:jsonb;not null" json:"scores"`
	HitCount  int            `gorm:"default:0" json:"hit_count"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
