package service

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"time"

	"gorm.io/gorm"

	"go-digest/config"
	"go-digest/internal/model"
)

var (
	// ErrNoDigest 指定日期还没有生成摘要,是正常结果不是存储故障
	ErrNoDigest = errors.New("摘要不存在")
	// ErrNoSubscriptions 订阅者没有任何启用的订阅源,无法生成摘要
	ErrNoSubscriptions = errors.New("没有启用的订阅源")
)

// DigestService 负责摘要的组装、持久化和查询
type DigestService struct {
	db         *gorm.DB
	processor  *RelevanceProcessor
	events     *Events
	topStories int
	timeWindow time.Duration
}

// DigestFilter 取材过滤条件,在内容层生效,组装前过滤
// 组装后再过滤会导致总数和阅读时长统计错误
type DigestFilter struct {
	Category        string
	Search          string
	TimeWindowHours int
}

// IsEmpty 没有任何过滤条件时查询可直接走已落库的摘要
func (f DigestFilter) IsEmpty() bool {
	return f.Category == "" && f.Search == "" && f.TimeWindowHours == 0
}

// DigestView 对外返回的摘要视图,带头条和分类分组
type DigestView struct {
	model.Digest
	TopStories []model.DigestItem            `json:"top_stories"`
	Categories map[string][]model.DigestItem `json:"categories"`
}

func NewDigestService(db *gorm.DB, processor *RelevanceProcessor, events *Events, cfg config.DigestConfig) *DigestService {
	topStories := cfg.TopStories
	if topStories <= 0 {
		topStories = 10
	}
	windowHours := cfg.TimeWindowHours
	if windowHours <= 0 {
		windowHours = 24
	}
	return &DigestService{
		db:         db,
		processor:  processor,
		events:     events,
		topStories: topStories,
		timeWindow: time.Duration(windowHours) * time.Hour,
	}
}

// Generate 为订阅者生成指定日期的摘要并整体替换旧版本
func (s *DigestService) Generate(ctx context.Context, subscriberID uint, date time.Time) (*DigestView, error) {
	digest, items, err := s.build(ctx, subscriberID, date, DigestFilter{})
	if err != nil {
		return nil, err
	}

	if err := s.replace(digest, items); err != nil {
		return nil, err
	}

	if s.events != nil {
		s.events.Publish(DigestAssembled{
			SubscriberID: subscriberID,
			Type:         EventTypeDailyDigest,
			Summary:      digest.Summary,
		})
	}

	digest.Items = items
	return s.view(digest), nil
}

// Preview 按过滤条件走完整的评分+组装流程,但不落库
// 带过滤条件的查询都走这里,保证统计值与筛选后的内容一致
func (s *DigestService) Preview(ctx context.Context, subscriberID uint, date time.Time, filter DigestFilter) (*DigestView, error) {
	digest, items, err := s.build(ctx, subscriberID, date, filter)
	if err != nil {
		return nil, err
	}
	digest.Items = items
	return s.view(digest), nil
}

// build 选材 → 评分 → 组装
func (s *DigestService) build(ctx context.Context, subscriberID uint, date time.Time, filter DigestFilter) (*model.Digest, []model.DigestItem, error) {
	candidates, err := s.candidateItems(subscriberID, date, filter)
	if err != nil {
		return nil, nil, err
	}

	scored := s.processor.Score(ctx, candidates)
	digest, items := s.assemble(subscriberID, date.Format("2006-01-02"), scored)
	digest.Summary = s.processor.Summarize(ctx, summarySeeds(scored, s.topStories))

	return digest, items, nil
}

// candidateItems 按订阅关系和时间窗口选材
func (s *DigestService) candidateItems(subscriberID uint, date time.Time, filter DigestFilter) ([]model.ContentItem, error) {
	var subscriptions int64
	err := s.db.Model(&model.UserFeedSubscription{}).
		Where("subscriber_id = ? AND is_active = ?", subscriberID, true).
		Count(&subscriptions).Error
	if err != nil {
		return nil, err
	}
	if subscriptions == 0 {
		return nil, ErrNoSubscriptions
	}

	window := s.timeWindow
	if filter.TimeWindowHours > 0 {
		window = time.Duration(filter.TimeWindowHours) * time.Hour
	}

	dayEnd := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()).Add(24 * time.Hour)
	start := dayEnd.Add(-window)

	query := s.db.
		Joins("JOIN user_feeds ON user_feeds.feed_source_id = content_items.feed_source_id").
		Joins("JOIN feed_sources ON feed_sources.id = content_items.feed_source_id").
		Where("user_feeds.subscriber_id = ? AND user_feeds.is_active = ?", subscriberID, true).
		Where("content_items.published_at >= ? AND content_items.published_at < ?", start, dayEnd)

	if filter.Category != "" {
		query = query.Where("feed_sources.category = ?", filter.Category)
	}
	if filter.Search != "" {
		pattern := "%" + filter.Search + "%"
		query = query.Where("content_items.title LIKE ? OR content_items.description LIKE ?", pattern, pattern)
	}

	var items []model.ContentItem
	if err := query.Order("content_items.published_at DESC").Find(&items).Error; err != nil {
		return nil, err
	}

	return items, nil
}

// assemble 排序、编号、汇总
// 排序:分数降序,平分按发布时间新者优先,再按ID升序保证全序
func (s *DigestService) assemble(subscriberID uint, day string, scored []ScoredItem) (*model.Digest, []model.DigestItem) {
	return assembleDigest(subscriberID, day, scored)
}

func assembleDigest(subscriberID uint, day string, scored []ScoredItem) (*model.Digest, []model.DigestItem) {
	sorted := sortScored(scored)

	totalReadTime := 0
	items := make([]model.DigestItem, 0, len(sorted))
	for order, entry := range sorted {
		keyPoints := ""
		if len(entry.KeyPoints) > 0 {
			if raw, err := json.Marshal(entry.KeyPoints); err == nil {
				keyPoints = string(raw)
			}
		}

		items = append(items, model.DigestItem{
			ContentItemID:     entry.Item.ID,
			ContentItem:       entry.Item,
			RelevanceScore:    entry.RelevanceScore,
			Category:          entry.Category,
			Summary:           entry.Summary,
			KeyPoints:         keyPoints,
			EstimatedReadTime: entry.EstimatedReadTime,
			DisplayOrder:      order,
		})
		totalReadTime += entry.EstimatedReadTime
	}

	digest := &model.Digest{
		SubscriberID:      subscriberID,
		Date:              day,
		TotalItems:        len(items),
		EstimatedReadTime: totalReadTime,
	}

	return digest, items
}

// sortScored 摘要的全序:分数降序,平分按发布时间新者优先,再按ID升序
// 组装和导语素材都用这一个排序,头条口径保持一致
func sortScored(scored []ScoredItem) []ScoredItem {
	sorted := make([]ScoredItem, len(scored))
	copy(sorted, scored)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.RelevanceScore != b.RelevanceScore {
			return a.RelevanceScore > b.RelevanceScore
		}
		if !a.Item.PublishedAt.Equal(b.Item.PublishedAt) {
			return a.Item.PublishedAt.After(b.Item.PublishedAt)
		}
		return a.Item.ID < b.Item.ID
	})
	return sorted
}

// summarySeeds 头条的标题作为导语生成的素材
func summarySeeds(scored []ScoredItem, limit int) []string {
	sorted := sortScored(scored)

	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	seeds := make([]string, 0, len(sorted))
	for _, entry := range sorted {
		seeds = append(seeds, entry.Item.Title)
	}
	return seeds
}

// replace 删旧插新在一个事务里完成,读者看不到半成品
func (s *DigestService) replace(digest *model.Digest, items []model.DigestItem) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var existing model.Digest
		err := tx.Where("subscriber_id = ? AND date = ?", digest.SubscriberID, digest.Date).
			First(&existing).Error

		switch {
		case err == nil:
			if err := tx.Where("digest_id = ?", existing.ID).Delete(&model.DigestItem{}).Error; err != nil {
				return err
			}
			updates := map[string]interface{}{
				"summary":             digest.Summary,
				"total_items":         digest.TotalItems,
				"estimated_read_time": digest.EstimatedReadTime,
			}
			if err := tx.Model(&existing).Updates(updates).Error; err != nil {
				return err
			}
			digest.ID = existing.ID
			digest.CreatedAt = existing.CreatedAt
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(digest).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if len(items) == 0 {
			return nil
		}

		for i := range items {
			items[i].DigestID = digest.ID
		}
		return tx.Create(&items).Error
	})
}

// Get 查询已生成的摘要,不存在返回ErrNoDigest
func (s *DigestService) Get(subscriberID uint, date string) (*DigestView, error) {
	var digest model.Digest
	err := s.db.
		Preload("Items", func(db *gorm.DB) *gorm.DB {
			return db.Order("display_order ASC")
		}).
		Preload("Items.ContentItem").
		Where("subscriber_id = ? AND date = ?", subscriberID, date).
		First(&digest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoDigest
	}
	if err != nil {
		return nil, err
	}

	return s.view(&digest), nil
}

// ListRecent 最近的摘要列表,不带条目明细
func (s *DigestService) ListRecent(subscriberID uint, limit int) ([]model.Digest, error) {
	if limit <= 0 {
		limit = 7
	}
	var digests []model.Digest
	err := s.db.Where("subscriber_id = ?", subscriberID).
		Order("date DESC").
		Limit(limit).
		Find(&digests).Error
	return digests, err
}

// Exists 指定日期是否已有摘要
func (s *DigestService) Exists(subscriberID uint, date string) (bool, error) {
	var count int64
	err := s.db.Model(&model.Digest{}).
		Where("subscriber_id = ? AND date = ?", subscriberID, date).
		Count(&count).Error
	return count > 0, err
}

// Delete 删除摘要及其条目
func (s *DigestService) Delete(digestID uint) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("digest_id = ?", digestID).Delete(&model.DigestItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Digest{}, digestID).Error
	})
}

func (s *DigestService) view(digest *model.Digest) *DigestView {
	view := &DigestView{
		Digest:     *digest,
		Categories: make(map[string][]model.DigestItem),
	}

	top := len(digest.Items)
	if top > s.topStories {
		top = s.topStories
	}
	view.TopStories = digest.Items[:top]

	// 分类分组保持全局排序
	for _, item := range digest.Items {
		view.Categories[item.Category] = append(view.Categories[item.Category], item)
	}

	return view
}
