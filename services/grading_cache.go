package services

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"sync"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/scriptgrade/scriptgrade/model"
)

// defaultCacheEntries bounds the in-process layer. The durable table is the
// real cache; the map only short-circuits repeats within one process life.
const defaultCacheEntries = 256

// cacheKeyQuestion is the stable serialized form of one question for hashing.
// Field order matters: changing it invalidates every existing key.
type cacheKeyQuestion struct {
	Number   int                `json:"n"`
	MaxMarks float64            `json:"m"`
	Text     string             `json:"t,omitempty"`
	Subs     []cacheKeySubEntry `json:"s,omitempty"`
}

type cacheKeySubEntry struct {
	SubID    string  `json:"id"`
	MaxMarks float64 `json:"m"`
}

// GradingCacheKey hashes everything that can change a grading outcome:
// ordered student image bytes, the question list, the grading mode, and the
// model answer (text form preferred, image bytes otherwise). Identical
// inputs always produce identical keys, which is what makes regrading
// repeatable.
func GradingCacheKey(images [][]byte, questions []model.Question, mode model.GradingMode, modelAnswerText string, modelAnswerImages [][]byte) string {
	h := sha256.New()

	for _, img := range images {
		h.Write(img)
	}

	keyQuestions := make([]cacheKeyQuestion, 0, len(questions))
	for _, q := range questions {
		kq := cacheKeyQuestion{Number: q.Number, MaxMarks: q.MaxMarks, Text: q.Text}
		for _, sub := range q.SubQuestions {
			kq.Subs = append(kq.Subs, cacheKeySubEntry{SubID: sub.SubID, MaxMarks: sub.MaxMarks})
		}
		keyQuestions = append(keyQuestions, kq)
	}
	sort.Slice(keyQuestions, func(i, j int) bool { return keyQuestions[i].Number < keyQuestions[j].Number })

	serialized, _ := json.Marshal(keyQuestions)
	h.Write(serialized)

	h.Write([]byte(mode))

	if modelAnswerText != "" {
		h.Write([]byte(modelAnswerText))
	} else {
		for _, img := range modelAnswerImages {
			h.Write(img)
		}
	}

	return hex.EncodeToString(h.Sum(nil))
}

// ScoreStore is the durable cache layer behind the in-process map
type ScoreStore interface {
	Get(key string) ([]model.QuestionScore, bool, error)
	Put(key string, examID uint, scores []model.QuestionScore) error
}

// GormScoreStore persists cache entries in the grading_cache_entries table
type GormScoreStore struct {
	db *gorm.DB
}

// NewGormScoreStore creates the durable layer
func NewGormScoreStore(db *gorm.DB) *GormScoreStore {
	return &GormScoreStore{db: db}
}

// Get loads a cached score list and bumps its hit counter
func (s *GormScoreStore) Get(key string) ([]model.QuestionScore, bool, error) {
	var entry model.GradingCacheEntry
	err := s.db.Where("cache_key = ?", key).First(&entry).Error
	if err == gorm.ErrRecordNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("cache lookup: %w", err)
	}

	var scores []model.QuestionScore
	if err := json.Unmarshal(entry.Scores, &scores); err != nil {
		return nil, false, fmt.Errorf("cache entry %s corrupted: %w", key[:12], err)
	}

	s.db.Model(&model.GradingCacheEntry{}).
		Where("cache_key = ?", key).
		UpdateColumn("hit_count", gorm.Expr("hit_count + 1"))

	return scores, true, nil
}

// Put upserts by key. Replace-by-key semantics keep concurrent identical
// writes safe without locking.
func (s *GormScoreStore) Put(key string, examID uint, scores []model.QuestionScore) error {
	serialized, err := json.Marshal(scores)
	if err != nil {
		return fmt.Errorf("serialize scores: %w", err)
	}

	entry := model.GradingCacheEntry{
		CacheKey: key,
		ExamID:   examID,
		Scores:   serialized,
	}

	return s.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "cache_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"exam_id", "scores", "updated_at"}),
	}).Create(&entry).Error
}

// GradingCache is a two-layer score cache: a bounded in-process map in front
// of a durable store. Lookups check the map first; a durable hit promotes
// into the map. Entries are stored as serialized JSON so callers can never
// mutate a cached list in place.
type GradingCache struct {
	mu         sync.Mutex
	mem        map[string][]byte
	order      []string
	maxEntries int

	durable ScoreStore
}

// NewGradingCache creates a cache. durable may be nil, leaving only the
// in-process layer (tests, cache-less deployments).
func NewGradingCache(durable ScoreStore, maxEntries int) *GradingCache {
	if maxEntries <= 0 {
		maxEntries = defaultCacheEntries
	}
	return &GradingCache{
		mem:        make(map[string][]byte),
		maxEntries: maxEntries,
		durable:    durable,
	}
}

// Get returns the cached score list for key, if any
func (c *GradingCache) Get(key string) ([]model.QuestionScore, bool) {
	c.mu.Lock()
	raw, ok := c.mem[key]
	c.mu.Unlock()

	if ok {
		var scores []model.QuestionScore
		if err := json.Unmarshal(raw, &scores); err == nil {
			return scores, true
		}
	}

	if c.durable == nil {
		return nil, false
	}

	scores, found, err := c.durable.Get(key)
	if err != nil {
		log.Printf("GradingCache: durable lookup failed for %s: %v", key[:12], err)
		return nil, false
	}
	if !found {
		return nil, false
	}

	c.promote(key, scores)
	return scores, true
}

// Put stores a score list in both layers
func (c *GradingCache) Put(key string, examID uint, scores []model.QuestionScore) {
	c.promote(key, scores)

	if c.durable != nil {
		if err := c.durable.Put(key, examID, scores); err != nil {
			log.Printf("GradingCache: durable write failed for %s: %v", key[:12], err)
		}
	}
}

// promote inserts into the in-process layer, evicting oldest-first once the
// bound is reached.
func (c *GradingCache) promote(key string, scores []model.QuestionScore) {
	raw, err := json.Marshal(scores)
	if err != nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.mem[key]; !exists {
		for len(c.order) >= c.maxEntries {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.mem, oldest)
		}
		c.order = append(c.order, key)
	}
	c.mem[key] = raw
}
