package cron

import (
	"fmt"
	"time"

	"github.com/scriptgrade/scriptgrade/model"
)

const (
	// A submission grading longer than this is stuck: the job loop that owned
	// it died without updating its status.
	stuckSubmissionAge = 2 * time.Hour

	cronLogRetention = 30 * 24 * time.Hour

	// Cache entries never read since creation get dropped after this long.
	coldCacheRetention = 90 * 24 * time.Hour
)

// RecoverStuckSubmissions marks submissions abandoned mid-grading as failed
// so they can be regraded.
func (m *CronManager) RecoverStuckSubmissions() {
	jobName := "recover_stuck_submissions"

	cutoff := time.Now().Add(-stuckSubmissionAge)
	result := m.db.Model(&model.Submission{}).
		Where("status = ? AND updated_at < ?", model.SubmissionGrading, cutoff).
		Updates(map[string]interface{}{
			"status":        model.SubmissionFailed,
			"grading_error": "grading timed out; submission recovered by cleanup job",
		})

	if result.Error != nil {
		m.logJobError(jobName, result.Error)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Recovered %d stuck submissions", result.RowsAffected))
}

// ReportCacheStatistics records grading cache size and hit totals
func (m *CronManager) ReportCacheStatistics() {
	jobName := "cache_statistics"

	var entryCount int64
	if err := m.db.Model(&model.GradingCacheEntry{}).Count(&entryCount).Error; err != nil {
		m.logJobError(jobName, err)
		return
	}

	var totalHits int64
	m.db.Model(&model.GradingCacheEntry{}).
		Select("COALESCE(SUM(hit_count), 0)").
		Scan(&totalHits)

	m.logJobComplete(jobName, fmt.Sprintf("%d cache entries, %d total hits", entryCount, totalHits))
}

// CleanupOldData prunes cron logs and cold cache entries. Cache entries that
// have been hit stay forever: identical inputs always deserve the identical
// cached answer.
func (m *CronManager) CleanupOldData() {
	jobName := "cleanup_old_data"

	logCutoff := time.Now().Add(-cronLogRetention)
	logs := m.db.Unscoped().Where("created_at < ?", logCutoff).Delete(&model.CronJobLog{})
	if logs.Error != nil {
		m.logJobError(jobName, logs.Error)
		return
	}

	cacheCutoff := time.Now().Add(-coldCacheRetention)
	cold := m.db.Where("hit_count = 0 AND created_at < ?", cacheCutoff).
		Delete(&model.GradingCacheEntry{})
	if cold.Error != nil {
		m.logJobError(jobName, cold.Error)
		return
	}

	m.logJobComplete(jobName, fmt.Sprintf("Deleted %d old cron logs, %d cold cache entries",
		logs.RowsAffected, cold.RowsAffected))
}
