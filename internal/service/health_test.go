package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"go-digest/config"
	"go-digest/internal/model"
)

func seedError(t *testing.T, db *gorm.DB, sourceID uint, at time.Time) {
	t.Helper()
	require.NoError(t, db.Create(&model.ContentError{
		FeedSourceID: sourceID,
		ErrorType:    model.ErrorFetch,
		Message:      "connection refused",
		Timestamp:    at,
	}).Error)
}

func TestShouldDisableBurst(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)
	svc := NewHealthService(db, config.RetentionConfig{})

	// 最近5条错误里有3条在一小时内
	now := time.Now()
	seedError(t, db, source.ID, now.Add(-3*24*time.Hour))
	seedError(t, db, source.ID, now.Add(-2*24*time.Hour))
	seedError(t, db, source.ID, now.Add(-30*time.Minute))
	seedError(t, db, source.ID, now.Add(-20*time.Minute))
	seedError(t, db, source.ID, now.Add(-10*time.Minute))

	assert.True(t, svc.ShouldDisable(source.ID))
}

func TestShouldDisableSpreadOverDays(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)
	svc := NewHealthService(db, config.RetentionConfig{})

	// 5条错误分散在5天,属于偶发抖动,不暂停
	now := time.Now()
	for day := 1; day <= 5; day++ {
		seedError(t, db, source.ID, now.Add(-time.Duration(day)*24*time.Hour))
	}

	assert.False(t, svc.ShouldDisable(source.ID))
}

func TestShouldDisableNoHistory(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)
	svc := NewHealthService(db, config.RetentionConfig{})

	// 没有错误历史就是健康
	assert.False(t, svc.ShouldDisable(source.ID))

	seedError(t, db, source.ID, time.Now())
	seedError(t, db, source.ID, time.Now())
	assert.False(t, svc.ShouldDisable(source.ID))
}

func TestShouldDisableBurstOutsideWindow(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)
	svc := NewHealthService(db, config.RetentionConfig{})

	// 最近5条里只有2条落在滚动一小时内,不够3条
	now := time.Now()
	seedError(t, db, source.ID, now.Add(-95*time.Minute))
	seedError(t, db, source.ID, now.Add(-90*time.Minute))
	seedError(t, db, source.ID, now.Add(-85*time.Minute))
	seedError(t, db, source.ID, now.Add(-10*time.Minute))
	seedError(t, db, source.ID, now.Add(-5*time.Minute))

	assert.False(t, svc.ShouldDisable(source.ID))
}

func TestCheckAndSuspend(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)
	svc := NewHealthService(db, config.RetentionConfig{})

	now := time.Now()
	for i := 0; i < 3; i++ {
		seedError(t, db, source.ID, now.Add(-time.Duration(i)*time.Minute))
	}

	svc.CheckAndSuspend(source.ID)

	var reloaded model.FeedSource
	require.NoError(t, db.First(&reloaded, source.ID).Error)
	assert.False(t, reloaded.IsActive)
}

func TestRecordError(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)
	svc := NewHealthService(db, config.RetentionConfig{})

	require.NoError(t, svc.RecordError(source.ID, model.ErrorRateLimit, "too many requests", 2))

	var recorded model.ContentError
	require.NoError(t, db.Where("feed_source_id = ?", source.ID).First(&recorded).Error)
	assert.Equal(t, model.ErrorRateLimit, recorded.ErrorType)
	assert.Equal(t, "too many requests", recorded.Message)
	assert.Equal(t, 2, recorded.RetryCount)
	assert.WithinDuration(t, time.Now(), recorded.Timestamp, time.Minute)
}

func TestCleanupExpired(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)
	svc := NewHealthService(db, config.RetentionConfig{ContentDays: 30, ErrorDays: 7})

	now := time.Now()
	seedError(t, db, source.ID, now.Add(-8*24*time.Hour))  // 过期
	seedError(t, db, source.ID, now.Add(-time.Hour))       // 保留
	seedItem(t, db, source.ID, "old", "http://example.com/old", now.Add(-31*24*time.Hour))
	seedItem(t, db, source.ID, "fresh", "http://example.com/fresh", now)

	require.NoError(t, svc.CleanupExpired())

	var errorCount, itemCount int64
	db.Model(&model.ContentError{}).Count(&errorCount)
	db.Model(&model.ContentItem{}).Count(&itemCount)
	assert.EqualValues(t, 1, errorCount)
	assert.EqualValues(t, 1, itemCount)
}
