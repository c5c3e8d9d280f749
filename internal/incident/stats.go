package incident

import (
	"context"
	"time"

	"github.com/suPer8Hu/bi-assistant/internal/warehouse"
	"gorm.io/gorm"
)

type Stats struct {
	TotalFailures  int64 `json:"total_failures"`
	RecentFailures int64 `json:"recent_failures"` // last 24h
	FailingJobs    int64 `json:"failing_jobs"`
}

type FailureSummary struct {
	LogID        int64     `json:"log_id"`
	JobName      string    `json:"job_name"`
	RunTimestamp time.Time `json:"run_timestamp"`
}

const DefaultFailureLimit = 50

// Failures lists the most recent failed runs.
func (t *Tools) Failures(ctx context.Context, limit int) ([]FailureSummary, error) {
	if limit <= 0 {
		limit = DefaultFailureLimit
	}
	var out []FailureSummary
	err := t.db.WithContext(ctx).
		Model(&warehouse.JobLog{}).
		Select("log_id, job_name, run_timestamp").
		Where("status = ?", warehouse.StatusFailure).
		Order("run_timestamp DESC").
		Limit(limit).
		Scan(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (t *Tools) Stats(ctx context.Context, now time.Time) (Stats, error) {
	var s Stats
	base := func() *gorm.DB {
		return t.db.WithContext(ctx).Model(&warehouse.JobLog{}).Where("status = ?", warehouse.StatusFailure)
	}
	if err := base().Count(&s.TotalFailures).Error; err != nil {
		return Stats{}, err
	}
	if err := base().Where("run_timestamp >= ?", now.Add(-24*time.Hour)).Count(&s.RecentFailures).Error; err != nil {
		return Stats{}, err
	}
	if err := base().Distinct("job_name").Count(&s.FailingJobs).Error; err != nil {
		return Stats{}, err
	}
	return s, nil
}
