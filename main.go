package main

import (
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"go-digest/config"
	"go-digest/internal/fetcher"
	"go-digest/internal/handler"
	"go-digest/internal/model"
	"go-digest/internal/scheduler"
	"go-digest/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load("config.yaml")
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	// 初始化数据库
	db, err := gorm.Open(sqlite.Open(cfg.Database.Path), &gorm.Config{})
	if err != nil {
		log.Fatal("Failed to connect database:", err)
	}

	// 自动迁移
	db.AutoMigrate(
		&model.FeedSource{},
		&model.UserFeedSubscription{},
		&model.ContentItem{},
		&model.ContentError{},
		&model.Digest{},
		&model.DigestItem{},
		&model.Config{},
	)

	// 初始化默认配置
	initDefaultConfig(db)

	// 注册来源适配器
	registry := fetcher.NewRegistry()
	registry.Register(fetcher.NewRSSAdapter())
	registry.Register(fetcher.NewRedditAdapter())
	registry.Register(fetcher.NewYouTubeAdapter(db))
	registry.Register(fetcher.NewSocialAdapter())

	// 初始化服务
	llmSvc := service.NewLLMService(db)
	dedupSvc := service.NewDedupService(db, cfg.Dedup)
	healthSvc := service.NewHealthService(db, cfg.Retention)
	feedSvc := service.NewFeedService(db, registry, dedupSvc, healthSvc, cfg.Fetch)
	events := service.NewEvents()
	processor := service.NewRelevanceProcessor(llmSvc, time.Duration(cfg.Fetch.TimeoutSeconds)*time.Second)
	digestSvc := service.NewDigestService(db, processor, events, cfg.Digest)
	statusSvc := service.NewStatusService(db)

	// 通知协作方通过事件流接收摘要完成事件
	go consumeDigestEvents(events.Subscribe())

	// 启动定时任务
	sched := scheduler.NewScheduler(feedSvc, digestSvc, healthSvc, *cfg)
	sched.Start()
	defer sched.Stop()

	// 初始化Gin
	gin.SetMode(cfg.Server.Mode)
	r := gin.Default()

	// 注册路由
	h := handler.NewHandler(db, feedSvc, digestSvc, statusSvc)
	h.SetScheduler(sched)
	h.RegisterRoutes(r)

	// 启动服务
	log.Println("Server starting on", cfg.GetServerAddress())
	r.Run(cfg.GetServerAddress())
}

// consumeDigestEvents 摘要完成事件的默认消费者
// 投递通道由外部通知服务负责,这里只记录
func consumeDigestEvents(events <-chan service.DigestAssembled) {
	for event := range events {
		log.Printf("[Notify] subscriber=%d type=%s summary=%q",
			event.SubscriberID, event.Type, event.Summary)
	}
}

func initDefaultConfig(db *gorm.DB) {
	defaults := map[string]string{
		model.ConfigLLMProvider: "openai",
		model.ConfigLLMApiURL:   "https://api.openai.com/v1",
		model.ConfigLLMModel:    "gpt-4o-mini",
		model.ConfigPromptScore: `你是一个内容评分助手。请对输入的每条内容打分并生成摘要。
输入是JSON数组,每条有id、title、description。
返回JSON数组,每条格式:{"id":1,"relevance_score":0.8,"category":"科技","summary":"两句话摘要","key_points":["要点1","要点2"],"estimated_read_time":3}
relevance_score取0到1,重要的科技新闻、行业动态分数高,广告、招聘信息分数低。
只返回JSON,不要其他内容。`,
		model.ConfigPromptDigest: `请根据以下内容标题,用一段话总结今天的内容要点,要求:
1. 控制在100字以内
2. 突出最重要的事件
3. 语言简洁易懂`,
	}

	for key, value := range defaults {
		db.Where("key = ?", key).FirstOrCreate(&model.Config{Key: key, Value: value})
	}
}
