package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"gorm.io/gorm"

	"go-digest/config"
	"go-digest/internal/fetcher"
	"go-digest/internal/model"
)

// ErrSourceInactive 订阅源已停用或被健康检查暂停,不允许抓取
var ErrSourceInactive = errors.New("订阅源已停用")

// FeedService 订阅源抓取流水线:适配器 → 错误分类 → 健康跟踪 → 查重 → 入库
type FeedService struct {
	db         *gorm.DB
	registry   *fetcher.Registry
	dedup      *DedupService
	health     *HealthService
	timeout    time.Duration
	maxRetries int

	// 同一订阅源的抓取串行化,不同订阅源可并发
	locks sync.Map
}

// FetchResult 单次抓取的处理统计
type FetchResult struct {
	Processed int `json:"processed"`
	NewItems  int `json:"new_items"`
}

func NewFeedService(db *gorm.DB, registry *fetcher.Registry, dedup *DedupService, health *HealthService, cfg config.FetchConfig) *FeedService {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &FeedService{
		db:         db,
		registry:   registry,
		dedup:      dedup,
		health:     health,
		timeout:    timeout,
		maxRetries: cfg.MaxRetries,
	}
}

func (s *FeedService) sourceLock(feedSourceID uint) *sync.Mutex {
	mu, _ := s.locks.LoadOrStore(feedSourceID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

// FetchSource 抓取单个订阅源
// 抓取失败记入健康跟踪后吞掉,不向兄弟任务传播
func (s *FeedService) FetchSource(ctx context.Context, source *model.FeedSource) (FetchResult, error) {
	if !source.IsActive {
		return FetchResult{}, ErrSourceInactive
	}

	mu := s.sourceLock(source.ID)
	mu.Lock()
	defer mu.Unlock()

	adapter, err := s.registry.Resolve(source.Type)
	if err != nil {
		return FetchResult{}, err
	}

	items, attempts, fetchErr := s.fetchWithRetry(ctx, adapter, source)
	if fetchErr != nil {
		errType := fetcher.Classify(fetchErr)
		if err := s.health.RecordError(source.ID, errType, fetchErr.Error(), attempts-1); err != nil {
			log.Printf("[Fetch] 记录错误失败 source=%d: %v", source.ID, err)
		}
		s.health.CheckAndSuspend(source.ID)
		return FetchResult{}, nil
	}

	result := s.storeBatch(source, items)
	log.Printf("[Fetch] source=%d (%s) 处理%d条, 新增%d条",
		source.ID, source.Name, result.Processed, result.NewItems)
	return result, nil
}

// fetchWithRetry 带超时和有限重试的适配器调用
func (s *FeedService) fetchWithRetry(ctx context.Context, adapter fetcher.Adapter, source *model.FeedSource) ([]fetcher.RawItem, int, error) {
	var items []fetcher.RawItem
	var err error

	attempts := 0
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		attempts++
		cctx, cancel := context.WithTimeout(ctx, s.timeout)
		items, err = adapter.Fetch(cctx, source)
		cancel()
		if err == nil {
			return items, attempts, nil
		}
	}

	return nil, attempts, err
}

// storeBatch 查重后按来源返回顺序入库,单条失败跳过不中断
func (s *FeedService) storeBatch(source *model.FeedSource, items []fetcher.RawItem) FetchResult {
	result := FetchResult{}

	for _, raw := range items {
		result.Processed++

		item := toContentItem(source, raw)
		dup, err := s.dedup.Check(&item, source.ID)
		if err != nil {
			log.Printf("[Fetch] 查重失败 source=%d url=%s: %v", source.ID, item.URL, err)
			continue
		}
		if dup.IsDuplicate {
			continue
		}

		// 按(feed_source_id, url)做幂等写入,并发抓取重叠时重复写是安全的
		res := s.db.Where("feed_source_id = ? AND url = ?", item.FeedSourceID, item.URL).
			FirstOrCreate(&item)
		if res.Error != nil {
			log.Printf("[Fetch] 入库失败 source=%d url=%s: %v", source.ID, item.URL, res.Error)
			continue
		}
		if res.RowsAffected > 0 {
			result.NewItems++
		}
	}

	return result
}

func toContentItem(source *model.FeedSource, raw fetcher.RawItem) model.ContentItem {
	return model.ContentItem{
		FeedSourceID: source.ID,
		Title:        raw.Title,
		URL:          raw.URL,
		Description:  raw.Description,
		ImageURL:     raw.ImageURL,
		PublishedAt:  raw.PublishedAt,
		ContentType:  source.Type,
		Score:        raw.Score,
		NumComments:  raw.NumComments,
		Author:       raw.Author,
		Subreddit:    raw.Subreddit,
	}
}

// DueSources 所有启用且至少有一个启用订阅关系的订阅源
func (s *FeedService) DueSources() ([]model.FeedSource, error) {
	var sources []model.FeedSource
	err := s.db.
		Joins("JOIN user_feeds ON user_feeds.feed_source_id = feed_sources.id").
		Where("feed_sources.is_active = ? AND user_feeds.is_active = ?", true, true).
		Distinct("feed_sources.*").
		Find(&sources).Error
	return sources, err
}

// ActiveSubscribers 所有存在启用订阅关系的订阅者
func (s *FeedService) ActiveSubscribers() ([]uint, error) {
	var ids []uint
	err := s.db.Model(&model.UserFeedSubscription{}).
		Where("is_active = ?", true).
		Distinct().
		Pluck("subscriber_id", &ids).Error
	return ids, err
}

// SourceRequest 新建订阅时的订阅源描述
type SourceRequest struct {
	Name     string           `json:"name"`
	URL      string           `json:"url" binding:"required"`
	Type     model.SourceType `json:"type" binding:"required"`
	Category *string          `json:"category"`
}

// Subscribe 建立订阅关系,订阅源按URL复用
// 返回订阅源是否为首次创建,首次创建的订阅源应立即抓取一次
func (s *FeedService) Subscribe(subscriberID uint, req SourceRequest) (*model.UserFeedSubscription, bool, error) {
	if !model.ValidSourceType(req.Type) {
		return nil, false, fmt.Errorf("不支持的来源类型: %s", req.Type)
	}

	source := model.FeedSource{
		Name:     req.Name,
		URL:      req.URL,
		Type:     req.Type,
		Category: req.Category,
		IsActive: true,
	}
	res := s.db.Where("url = ?", req.URL).FirstOrCreate(&source)
	if res.Error != nil {
		return nil, false, res.Error
	}
	newSource := res.RowsAffected > 0

	sub := model.UserFeedSubscription{
		SubscriberID: subscriberID,
		FeedSourceID: source.ID,
		IsActive:     true,
	}
	res = s.db.Where("subscriber_id = ? AND feed_source_id = ?", subscriberID, source.ID).
		FirstOrCreate(&sub)
	if res.Error != nil {
		return nil, false, res.Error
	}

	// 之前退订过的重新启用
	if !sub.IsActive {
		if err := s.db.Model(&sub).Update("is_active", true).Error; err != nil {
			return nil, false, err
		}
		sub.IsActive = true
	}

	sub.FeedSource = source
	return &sub, newSource, nil
}

// Unsubscribe 解除订阅关系
// 订阅源本身保留,被历史记录引用时只停用不删除
func (s *FeedService) Unsubscribe(subscriberID, feedSourceID uint) error {
	res := s.db.Where("subscriber_id = ? AND feed_source_id = ?", subscriberID, feedSourceID).
		Delete(&model.UserFeedSubscription{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// GetSource 按ID取订阅源
func (s *FeedService) GetSource(id uint) (*model.FeedSource, error) {
	var source model.FeedSource
	if err := s.db.First(&source, id).Error; err != nil {
		return nil, err
	}
	return &source, nil
}

// ListSources 全部订阅源
func (s *FeedService) ListSources() ([]model.FeedSource, error) {
	var sources []model.FeedSource
	err := s.db.Order("id ASC").Find(&sources).Error
	return sources, err
}

// UpdateSource 订阅源的人工维护入口(分类、图标、重新启用)
func (s *FeedService) UpdateSource(id uint, updates map[string]interface{}) (*model.FeedSource, error) {
	allowed := map[string]bool{"name": true, "category": true, "is_active": true, "favicon_url": true}
	filtered := make(map[string]interface{})
	for k, v := range updates {
		if allowed[k] {
			filtered[k] = v
		}
	}
	if len(filtered) == 0 {
		return s.GetSource(id)
	}

	if err := s.db.Model(&model.FeedSource{}).Where("id = ?", id).Updates(filtered).Error; err != nil {
		return nil, err
	}
	return s.GetSource(id)
}
