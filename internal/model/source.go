package model

import "time"

type SourceType string

const (
	SourceRSS     SourceType = "rss"
	SourceReddit  SourceType = "reddit"
	SourceYouTube SourceType = "youtube"
	SourceSocial  SourceType = "social"
)

// ValidSourceType 判断来源类型是否合法
func ValidSourceType(t SourceType) bool {
	switch t {
	case SourceRSS, SourceReddit, SourceYouTube, SourceSocial:
		return true
	}
	return false
}

// FeedSource 订阅源,按URL唯一,被历史记录引用时只停用不删除
type FeedSource struct {
	ID         uint       `gorm:"primaryKey" json:"id"`
	Name       string     `gorm:"size:255;not null" json:"name"`
	URL        string     `gorm:"size:500;uniqueIndex;not null" json:"url"`
	Type       SourceType `gorm:"size:20;not null" json:"type"`
	Category   *string    `gorm:"size:100" json:"category,omitempty"`
	IsActive   bool       `gorm:"default:true" json:"is_active"`
	FaviconURL string     `gorm:"size:500" json:"favicon_url,omitempty"`
	ChannelID  string     `gorm:"size:100" json:"channel_id,omitempty"` // YouTube频道ID解析缓存
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
}

// UserFeedSubscription 用户与订阅源的关联,(subscriber_id, feed_source_id)唯一
type UserFeedSubscription struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	SubscriberID uint       `gorm:"uniqueIndex:idx_subscriber_source;not null" json:"subscriber_id"`
	FeedSourceID uint       `gorm:"uniqueIndex:idx_subscriber_source;not null" json:"feed_source_id"`
	FeedSource   FeedSource `gorm:"foreignKey:FeedSourceID" json:"feed_source,omitempty"`
	IsActive     bool       `gorm:"default:true" json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
}

func (UserFeedSubscription) TableName() string {
	return "user_feeds"
}
