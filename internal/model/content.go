package model

import "time"

// ContentItem 从订阅源抓取并归一化后的内容条目
// 同一订阅源内URL唯一,入库后不再修改
type ContentItem struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	FeedSourceID uint       `gorm:"uniqueIndex:idx_source_url;not null" json:"feed_source_id"`
	FeedSource   FeedSource `gorm:"foreignKey:FeedSourceID" json:"feed_source,omitempty"`
	Title        string     `gorm:"size:500;not null" json:"title"`
	URL          string     `gorm:"size:500;uniqueIndex:idx_source_url;not null" json:"url"`
	Description  string     `gorm:"type:text" json:"description"`
	ImageURL     string     `gorm:"size:500" json:"image_url,omitempty"`
	PublishedAt  time.Time  `gorm:"index" json:"published_at"`
	ContentType  SourceType `gorm:"size:20;not null" json:"content_type"`

	// 类型相关字段,仅对应类型的条目才有值
	Score       *int    `json:"score,omitempty"`
	NumComments *int    `json:"num_comments,omitempty"`
	Author      *string `gorm:"size:255" json:"author,omitempty"`
	Subreddit   *string `gorm:"size:100" json:"subreddit,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

type ErrorType string

const (
	ErrorFetch     ErrorType = "fetch_error"
	ErrorParse     ErrorType = "parse_error"
	ErrorRateLimit ErrorType = "rate_limit"
	ErrorAuth      ErrorType = "auth_error"
	ErrorUnknown   ErrorType = "unknown"
)

// ContentError 单次抓取/解析失败记录,只追加,定期清理
type ContentError struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	FeedSourceID uint      `gorm:"index;not null" json:"feed_source_id"`
	ErrorType    ErrorType `gorm:"size:20;not null" json:"error_type"`
	Message      string    `gorm:"type:text" json:"message"`
	Timestamp    time.Time `gorm:"index" json:"timestamp"`
	RetryCount   int       `gorm:"default:0" json:"retry_count"`
}
