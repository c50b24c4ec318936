package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"go-digest/config"
	"go-digest/internal/service"
)

// Scheduler 周期任务:内容抓取、摘要生成、过期清理
// 抓取任务按订阅源扇出,并发上限由配置控制
type Scheduler struct {
	cron    *cron.Cron
	feed    *service.FeedService
	digest  *service.DigestService
	health  *service.HealthService
	config  config.Config
	workers int

	fetchEntryID   cron.EntryID
	digestEntryID  cron.EntryID
	cleanupEntryID cron.EntryID
}

func NewScheduler(feed *service.FeedService, digest *service.DigestService, health *service.HealthService, cfg config.Config) *Scheduler {
	workers := cfg.Fetch.Workers
	if workers <= 0 {
		workers = 4
	}
	return &Scheduler{
		cron:    cron.New(),
		feed:    feed,
		digest:  digest,
		health:  health,
		config:  cfg,
		workers: workers,
	}
}

func (s *Scheduler) Start() {
	// 内容抓取任务
	s.fetchEntryID, _ = s.cron.AddFunc(s.config.Cron.FetchInterval, func() {
		log.Println("[Cron] Fetching sources...")
		s.RunFetch(context.Background())
	})

	// 摘要生成任务
	s.digestEntryID, _ = s.cron.AddFunc(s.config.Cron.DigestInterval, func() {
		log.Println("[Cron] Generating digests...")
		s.RunDigests(context.Background())
	})

	// 过期清理任务
	s.cleanupEntryID, _ = s.cron.AddFunc(s.config.Cron.CleanupInterval, func() {
		log.Println("[Cron] Cleaning up expired data...")
		if err := s.health.CleanupExpired(); err != nil {
			log.Printf("[Cron] 清理失败: %v", err)
		}
	})

	s.cron.Start()
	log.Printf("[Cron] Scheduler started (fetch: %s, digest: %s, cleanup: %s)",
		s.config.Cron.FetchInterval, s.config.Cron.DigestInterval, s.config.Cron.CleanupInterval)
}

// RunFetch 对所有到期订阅源做一轮抓取
// 各订阅源相互独立,单个失败不影响其他
func (s *Scheduler) RunFetch(ctx context.Context) {
	sources, err := s.feed.DueSources()
	if err != nil {
		log.Printf("[Cron] 查询订阅源失败: %v", err)
		return
	}

	g := new(errgroup.Group)
	g.SetLimit(s.workers)

	for i := range sources {
		source := sources[i]
		g.Go(func() error {
			if _, err := s.feed.FetchSource(ctx, &source); err != nil {
				log.Printf("[Cron] 抓取失败 source=%d: %v", source.ID, err)
			}
			return nil
		})
	}

	_ = g.Wait()
	log.Printf("[Cron] 抓取完成, 共%d个订阅源", len(sources))
}

// RunDigests 为所有活跃订阅者生成当天摘要
func (s *Scheduler) RunDigests(ctx context.Context) {
	subscribers, err := s.feed.ActiveSubscribers()
	if err != nil {
		log.Printf("[Cron] 查询订阅者失败: %v", err)
		return
	}

	now := time.Now()
	for _, subscriberID := range subscribers {
		if _, err := s.digest.Generate(ctx, subscriberID, now); err != nil {
			log.Printf("[Cron] 生成摘要失败 subscriber=%d: %v", subscriberID, err)
		}
	}
	log.Printf("[Cron] 摘要生成完成, 共%d个订阅者", len(subscribers))
}

// GetNextFetchTime 获取下次抓取时间
func (s *Scheduler) GetNextFetchTime() time.Time {
	return s.cron.Entry(s.fetchEntryID).Next
}

// GetNextDigestTime 获取下次摘要生成时间
func (s *Scheduler) GetNextDigestTime() time.Time {
	return s.cron.Entry(s.digestEntryID).Next
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
}
