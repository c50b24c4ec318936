package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"go-digest/config"
	"go-digest/internal/fetcher"
	"go-digest/internal/model"
)

// stubAdapter 测试用适配器,按订阅源ID返回预设批次
type stubAdapter struct {
	typ     model.SourceType
	batches map[uint][]fetcher.RawItem
	err     error
	calls   int
}

func (s *stubAdapter) Name() model.SourceType {
	return s.typ
}

func (s *stubAdapter) Fetch(ctx context.Context, source *model.FeedSource) ([]fetcher.RawItem, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.batches[source.ID], nil
}

func rawItem(title, url string, publishedAt time.Time) fetcher.RawItem {
	return fetcher.RawItem{
		Title:       title,
		URL:         url,
		Description: "description of " + title,
		PublishedAt: publishedAt,
	}
}

func newFeedService(db *gorm.DB, adapter fetcher.Adapter) *FeedService {
	registry := fetcher.NewRegistry()
	registry.Register(adapter)
	dedup := NewDedupService(db, config.DedupConfig{})
	health := NewHealthService(db, config.RetentionConfig{})
	return NewFeedService(db, registry, dedup, health, config.FetchConfig{TimeoutSeconds: 5, MaxRetries: 1})
}

func TestIngestIdempotence(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)
	seedSubscription(t, db, 1, source.ID)

	now := time.Now()
	adapter := &stubAdapter{typ: model.SourceRSS, batches: map[uint][]fetcher.RawItem{
		source.ID: {
			rawItem("first", "http://example.com/1", now),
			rawItem("second", "http://example.com/2", now),
			rawItem("third", "http://example.com/3", now),
		},
	}}
	svc := newFeedService(db, adapter)

	first, err := svc.FetchSource(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Processed: 3, NewItems: 3}, first)

	// 同一批次重复抓取不产生新条目
	second, err := svc.FetchSource(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{Processed: 3, NewItems: 0}, second)

	var count int64
	db.Model(&model.ContentItem{}).Count(&count)
	assert.EqualValues(t, 3, count)
}

func TestFetchFailureRecordedNotPropagated(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)

	adapter := &stubAdapter{
		typ: model.SourceRSS,
		err: &fetcher.FetchError{Type: model.ErrorRateLimit, Err: errors.New("429")},
	}
	svc := newFeedService(db, adapter)

	// 抓取失败记入健康跟踪后吞掉
	result, err := svc.FetchSource(context.Background(), source)
	require.NoError(t, err)
	assert.Equal(t, FetchResult{}, result)

	// 按配置重试过(1次重试 = 2次调用)
	assert.Equal(t, 2, adapter.calls)

	var recorded model.ContentError
	require.NoError(t, db.Where("feed_source_id = ?", source.ID).First(&recorded).Error)
	assert.Equal(t, model.ErrorRateLimit, recorded.ErrorType)
	assert.Equal(t, 1, recorded.RetryCount)
}

func TestFetchSuspendsAfterBurst(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)

	// 已有2条近期错误,这次失败凑满3条
	now := time.Now()
	seedError(t, db, source.ID, now.Add(-10*time.Minute))
	seedError(t, db, source.ID, now.Add(-5*time.Minute))

	adapter := &stubAdapter{
		typ: model.SourceRSS,
		err: &fetcher.FetchError{Type: model.ErrorFetch, Err: errors.New("connection refused")},
	}
	svc := newFeedService(db, adapter)

	_, err := svc.FetchSource(context.Background(), source)
	require.NoError(t, err)

	var reloaded model.FeedSource
	require.NoError(t, db.First(&reloaded, source.ID).Error)
	assert.False(t, reloaded.IsActive)
}

func TestFetchInactiveSourceRejected(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)
	require.NoError(t, db.Model(source).Update("is_active", false).Error)
	source.IsActive = false

	adapter := &stubAdapter{typ: model.SourceRSS}
	svc := newFeedService(db, adapter)

	_, err := svc.FetchSource(context.Background(), source)
	assert.ErrorIs(t, err, ErrSourceInactive)
	assert.Equal(t, 0, adapter.calls)
}

func TestSubscribeReusesSourceByURL(t *testing.T) {
	db := newTestDB(t)
	svc := newFeedService(db, &stubAdapter{typ: model.SourceRSS})

	req := SourceRequest{Name: "blog", URL: "http://example.com/feed", Type: model.SourceRSS}

	sub1, newSource, err := svc.Subscribe(1, req)
	require.NoError(t, err)
	assert.True(t, newSource)

	// 第二个订阅者复用同一订阅源
	sub2, newSource, err := svc.Subscribe(2, req)
	require.NoError(t, err)
	assert.False(t, newSource)
	assert.Equal(t, sub1.FeedSourceID, sub2.FeedSourceID)

	var sourceCount int64
	db.Model(&model.FeedSource{}).Count(&sourceCount)
	assert.EqualValues(t, 1, sourceCount)
}

func TestSubscribeRejectsInvalidType(t *testing.T) {
	db := newTestDB(t)
	svc := newFeedService(db, &stubAdapter{typ: model.SourceRSS})

	_, _, err := svc.Subscribe(1, SourceRequest{URL: "http://x", Type: "telegram"})
	assert.Error(t, err)
}

func TestUnsubscribe(t *testing.T) {
	db := newTestDB(t)
	source := seedSource(t, db, "http://example.com/feed", model.SourceRSS)
	seedSubscription(t, db, 1, source.ID)

	svc := newFeedService(db, &stubAdapter{typ: model.SourceRSS})

	require.NoError(t, svc.Unsubscribe(1, source.ID))
	assert.ErrorIs(t, svc.Unsubscribe(1, source.ID), gorm.ErrRecordNotFound)

	// 订阅源本身保留
	var sourceCount int64
	db.Model(&model.FeedSource{}).Count(&sourceCount)
	assert.EqualValues(t, 1, sourceCount)
}

func TestDueSourcesRequireActiveSubscription(t *testing.T) {
	db := newTestDB(t)
	subscribed := seedSource(t, db, "http://example.com/a", model.SourceRSS)
	seedSource(t, db, "http://example.com/orphan", model.SourceRSS)
	suspended := seedSource(t, db, "http://example.com/suspended", model.SourceRSS)
	require.NoError(t, db.Model(suspended).Update("is_active", false).Error)

	seedSubscription(t, db, 1, subscribed.ID)
	seedSubscription(t, db, 1, suspended.ID)

	svc := newFeedService(db, &stubAdapter{typ: model.SourceRSS})

	due, err := svc.DueSources()
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, subscribed.ID, due[0].ID)
}

// 端到端:两个RSS源共7条,其中2条与已存内容URL重复,
// 评分服务不可用走降级,当天摘要应有5条
func TestEndToEndDigestPipeline(t *testing.T) {
	db := newTestDB(t)
	now := time.Date(2026, 9, 1, 15, 0, 0, 0, time.UTC)

	sourceA := seedSource(t, db, "http://example.com/a", model.SourceRSS)
	sourceB := seedSource(t, db, "http://example.com/b", model.SourceRSS)
	seedSubscription(t, db, 1, sourceA.ID)
	seedSubscription(t, db, 1, sourceB.ID)

	// 已存的2条,与本次抓取的部分URL重复
	seedItem(t, db, sourceA.ID, "existing one", "http://example.com/a/1", now.Add(-2*time.Hour))
	seedItem(t, db, sourceB.ID, "existing two", "http://example.com/b/1", now.Add(-2*time.Hour))

	adapter := &stubAdapter{typ: model.SourceRSS, batches: map[uint][]fetcher.RawItem{
		sourceA.ID: {
			rawItem("existing one", "http://example.com/a/1", now.Add(-2*time.Hour)), // 重复
			rawItem("fresh a2", "http://example.com/a/2", now.Add(-time.Hour)),
			rawItem("fresh a3", "http://example.com/a/3", now.Add(-time.Hour)),
			rawItem("fresh a4", "http://example.com/a/4", now.Add(-time.Hour)),
		},
		sourceB.ID: {
			rawItem("existing two", "http://example.com/b/1", now.Add(-2*time.Hour)), // 重复
			rawItem("fresh b2", "http://example.com/b/2", now.Add(-time.Hour)),
			rawItem("fresh b3", "http://example.com/b/3", now.Add(-time.Hour)),
		},
	}}
	feedSvc := newFeedService(db, adapter)

	resultA, err := feedSvc.FetchSource(context.Background(), sourceA)
	require.NoError(t, err)
	resultB, err := feedSvc.FetchSource(context.Background(), sourceB)
	require.NoError(t, err)

	assert.Equal(t, 7, resultA.Processed+resultB.Processed)
	assert.Equal(t, 5, resultA.NewItems+resultB.NewItems)

	// 没有新增错误记录
	var errorCount int64
	db.Model(&model.ContentError{}).Count(&errorCount)
	assert.EqualValues(t, 0, errorCount)

	digestSvc := newDigestService(db, nil)
	view, err := digestSvc.Generate(context.Background(), 1, now)
	require.NoError(t, err)

	// 已存2条 + 新增5条都在24小时窗口内
	assert.Equal(t, 7, view.TotalItems)
	assert.LessOrEqual(t, len(view.TopStories), 10)
	assert.NotEmpty(t, view.Summary)

	for _, item := range view.Items {
		assert.Equal(t, 0.5, item.RelevanceScore)
		assert.Equal(t, "General", item.Category)
	}
}
