package model

import "time"

// Digest 每个(订阅者, 日期)至多一份,重新生成时整体替换
type Digest struct {
	ID                uint         `gorm:"primaryKey" json:"id"`
	SubscriberID      uint         `gorm:"uniqueIndex:idx_subscriber_date;not null" json:"subscriber_id"`
	Date              string       `gorm:"size:10;uniqueIndex:idx_subscriber_date;not null" json:"date"` // YYYY-MM-DD
	Summary           string       `gorm:"type:text" json:"summary"`
	TotalItems        int          `json:"total_items"`
	EstimatedReadTime int          `json:"estimated_read_time"`
	Items             []DigestItem `gorm:"foreignKey:DigestID" json:"items,omitempty"`
	CreatedAt         time.Time    `json:"created_at"`
	UpdatedAt         time.Time    `json:"updated_at"`
}

func (Digest) TableName() string {
	return "daily_digests"
}

// DigestItem 摘要内的单条内容,display_order为0..n-1的连续序列
type DigestItem struct {
	ID                uint        `gorm:"primaryKey" json:"id"`
	DigestID          uint        `gorm:"index;not null" json:"digest_id"`
	ContentItemID     uint        `gorm:"not null" json:"content_item_id"`
	ContentItem       ContentItem `gorm:"foreignKey:ContentItemID" json:"content_item,omitempty"`
	RelevanceScore    float64     `json:"relevance_score"`
	Category          string      `gorm:"size:100" json:"category"`
	Summary           string      `gorm:"type:text" json:"summary"`
	KeyPoints         string      `gorm:"type:text" json:"key_points,omitempty"` // JSON数组
	EstimatedReadTime int         `json:"estimated_read_time"`
	DisplayOrder      int         `json:"display_order"`
}

func (DigestItem) TableName() string {
	return "daily_digest_items"
}
