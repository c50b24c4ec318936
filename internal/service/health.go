package service

import (
	"log"
	"time"

	"gorm.io/gorm"

	"go-digest/config"
	"go-digest/internal/model"
)

// 暂停判定:最近5条错误里,滚动一小时内出现达到3条
const (
	healthWindowSize  = 5
	healthBurstCount  = 3
	healthBurstWindow = time.Hour
)

// HealthService 跟踪订阅源健康状态并负责数据保留清理
type HealthService struct {
	db               *gorm.DB
	contentRetention time.Duration
	errorRetention   time.Duration
}

func NewHealthService(db *gorm.DB, cfg config.RetentionConfig) *HealthService {
	contentDays := cfg.ContentDays
	if contentDays <= 0 {
		contentDays = 30
	}
	errorDays := cfg.ErrorDays
	if errorDays <= 0 {
		errorDays = 7
	}
	return &HealthService{
		db:               db,
		contentRetention: time.Duration(contentDays) * 24 * time.Hour,
		errorRetention:   time.Duration(errorDays) * 24 * time.Hour,
	}
}

// RecordError 追加一条失败记录
func (s *HealthService) RecordError(feedSourceID uint, errType model.ErrorType, message string, retryCount int) error {
	record := model.ContentError{
		FeedSourceID: feedSourceID,
		ErrorType:    errType,
		Message:      message,
		Timestamp:    time.Now(),
		RetryCount:   retryCount,
	}
	if err := s.db.Create(&record).Error; err != nil {
		return err
	}
	log.Printf("[Health] source=%d %s: %s", feedSourceID, errType, message)
	return nil
}

// ShouldDisable 判断订阅源是否应被暂停
// 没有错误历史视为健康;查询失败也按健康处理,不向外抛错
func (s *HealthService) ShouldDisable(feedSourceID uint) bool {
	var recent []model.ContentError
	err := s.db.Where("feed_source_id = ?", feedSourceID).
		Order("timestamp DESC").
		Limit(healthWindowSize).
		Find(&recent).Error
	if err != nil || len(recent) < healthBurstCount {
		return false
	}

	cutoff := time.Now().Add(-healthBurstWindow)
	inWindow := 0
	for _, e := range recent {
		if e.Timestamp.After(cutoff) {
			inWindow++
		}
	}

	return inWindow >= healthBurstCount
}

// CheckAndSuspend 达到暂停条件时停用订阅源
// 恢复是人工操作,不自动重新启用,避免反复震荡
func (s *HealthService) CheckAndSuspend(feedSourceID uint) {
	if !s.ShouldDisable(feedSourceID) {
		return
	}

	err := s.db.Model(&model.FeedSource{}).
		Where("id = ? AND is_active = ?", feedSourceID, true).
		Update("is_active", false).Error
	if err != nil {
		log.Printf("[Health] 停用订阅源失败 source=%d: %v", feedSourceID, err)
		return
	}
	log.Printf("[Health] 订阅源 %d 因连续失败被暂停", feedSourceID)
}

// CleanupExpired 清理超过保留期限的错误记录和内容
func (s *HealthService) CleanupExpired() error {
	errorCutoff := time.Now().Add(-s.errorRetention)
	result := s.db.Where("timestamp < ?", errorCutoff).Delete(&model.ContentError{})
	if result.Error != nil {
		return result.Error
	}
	removedErrors := result.RowsAffected

	contentCutoff := time.Now().Add(-s.contentRetention)
	result = s.db.Where("published_at < ?", contentCutoff).Delete(&model.ContentItem{})
	if result.Error != nil {
		return result.Error
	}

	log.Printf("[Health] 清理完成: %d条错误记录, %d条过期内容", removedErrors, result.RowsAffected)
	return nil
}
