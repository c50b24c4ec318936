package service

import (
	"time"

	"gorm.io/gorm"

	"go-digest/internal/model"
)

type StatusService struct {
	db *gorm.DB
}

type SystemStatus struct {
	// 订阅源统计
	TotalSources  int64 `json:"total_sources"`
	ActiveSources int64 `json:"active_sources"`

	// 内容统计
	TotalItems  int64 `json:"total_items"`
	ItemsLast24 int64 `json:"items_last_24h"`

	// 错误统计
	ErrorsLast24 int64 `json:"errors_last_24h"`

	// 摘要统计
	TotalDigests      int64 `json:"total_digests"`
	ActiveSubscribers int64 `json:"active_subscribers"`

	// 定时任务信息
	NextFetchTime  time.Time `json:"next_fetch_time"`
	NextDigestTime time.Time `json:"next_digest_time"`
}

func NewStatusService(db *gorm.DB) *StatusService {
	return &StatusService{db: db}
}

// GetSystemStatus 获取系统状态
func (s *StatusService) GetSystemStatus() (*SystemStatus, error) {
	status := &SystemStatus{}
	dayAgo := time.Now().Add(-24 * time.Hour)

	// 统计订阅源
	s.db.Model(&model.FeedSource{}).Count(&status.TotalSources)
	s.db.Model(&model.FeedSource{}).Where("is_active = ?", true).Count(&status.ActiveSources)

	// 统计内容和错误
	s.db.Model(&model.ContentItem{}).Count(&status.TotalItems)
	s.db.Model(&model.ContentItem{}).Where("created_at > ?", dayAgo).Count(&status.ItemsLast24)
	s.db.Model(&model.ContentError{}).Where("timestamp > ?", dayAgo).Count(&status.ErrorsLast24)

	// 统计摘要和订阅者
	s.db.Model(&model.Digest{}).Count(&status.TotalDigests)
	s.db.Model(&model.UserFeedSubscription{}).Where("is_active = ?", true).
		Distinct("subscriber_id").Count(&status.ActiveSubscribers)

	return status, nil
}
