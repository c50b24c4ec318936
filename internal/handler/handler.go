package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"go-digest/internal/model"
	"go-digest/internal/service"
)

type Handler struct {
	db        *gorm.DB
	feed      *service.FeedService
	digest    *service.DigestService
	status    *service.StatusService
	scheduler interface {
		GetNextFetchTime() time.Time
		GetNextDigestTime() time.Time
	}
}

func NewHandler(db *gorm.DB, feed *service.FeedService, digest *service.DigestService, status *service.StatusService) *Handler {
	return &Handler{
		db:     db,
		feed:   feed,
		digest: digest,
		status: status,
	}
}

// SetScheduler 设置调度器引用
func (h *Handler) SetScheduler(scheduler interface {
	GetNextFetchTime() time.Time
	GetNextDigestTime() time.Time
}) {
	h.scheduler = scheduler
}

func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api")
	{
		// Sources
		api.GET("/sources", h.ListSources)
		api.POST("/sources", h.CreateSource)
		api.PATCH("/sources/:id", h.UpdateSource)

		// Fetch
		api.POST("/fetch/:sourceType", h.TriggerFetch)

		// Subscriptions
		api.POST("/subscriptions", h.CreateSubscription)
		api.DELETE("/subscriptions", h.DeleteSubscription)

		// Digest
		api.GET("/digest", h.GetDigest)
		api.POST("/digest/generate", h.GenerateDigest)
		api.GET("/digests", h.ListDigests)
		api.DELETE("/digests/:id", h.DeleteDigest)

		// Config
		api.GET("/config", h.GetConfig)
		api.POST("/config", h.SaveConfig)

		// Status
		api.GET("/status", h.GetStatus)
	}
}

// ===== Source相关 =====

func (h *Handler) ListSources(c *gin.Context) {
	sources, err := h.feed.ListSources()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sources)
}

func (h *Handler) CreateSource(c *gin.Context) {
	var req service.SourceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if !model.ValidSourceType(req.Type) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不支持的来源类型"})
		return
	}

	// 按URL复用已有订阅源
	source := model.FeedSource{
		Name:     req.Name,
		URL:      req.URL,
		Type:     req.Type,
		Category: req.Category,
		IsActive: true,
	}
	if err := h.db.Where("url = ?", req.URL).FirstOrCreate(&source).Error; err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, source)
}

func (h *Handler) UpdateSource(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的ID"})
		return
	}

	var updates map[string]interface{}
	if err := c.ShouldBindJSON(&updates); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source, err := h.feed.UpdateSource(uint(id), updates)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, source)
}

// ===== Fetch相关 =====

type fetchRequest struct {
	FeedSourceID uint `json:"feed_source_id" binding:"required"`
	Immediate    bool `json:"immediate"`
}

// TriggerFetch 触发抓取
// immediate=true同步执行,否则等下一轮调度
func (h *Handler) TriggerFetch(c *gin.Context) {
	sourceType := model.SourceType(c.Param("sourceType"))
	if !model.ValidSourceType(sourceType) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "不支持的来源类型"})
		return
	}

	var req fetchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	source, err := h.feed.GetSource(req.FeedSourceID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "source not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if source.Type != sourceType {
		c.JSON(http.StatusBadRequest, gin.H{"error": "来源类型不匹配"})
		return
	}

	if !req.Immediate {
		c.JSON(http.StatusAccepted, gin.H{"message": "已加入下一轮调度"})
		return
	}

	result, err := h.feed.FetchSource(c.Request.Context(), source)
	if errors.Is(err, service.ErrSourceInactive) {
		c.JSON(http.StatusConflict, gin.H{"error": "订阅源已停用"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

// ===== Subscription相关 =====

type subscriptionRequest struct {
	SubscriberID uint `json:"subscriber_id" binding:"required"`
	service.SourceRequest
}

// CreateSubscription 建立订阅,订阅源首次创建时立即抓一次
func (h *Handler) CreateSubscription(c *gin.Context) {
	var req subscriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	sub, newSource, err := h.feed.Subscribe(req.SubscriberID, req.SourceRequest)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result := service.FetchResult{}
	if newSource {
		result, _ = h.feed.FetchSource(c.Request.Context(), &sub.FeedSource)
	}

	c.JSON(http.StatusOK, gin.H{
		"subscription": sub,
		"fetch":        result,
	})
}

func (h *Handler) DeleteSubscription(c *gin.Context) {
	subscriberID, err1 := strconv.Atoi(c.Query("subscriber_id"))
	feedSourceID, err2 := strconv.Atoi(c.Query("feed_source_id"))
	if err1 != nil || err2 != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "需要subscriber_id和feed_source_id"})
		return
	}

	err := h.feed.Unsubscribe(uint(subscriberID), uint(feedSourceID))
	if errors.Is(err, gorm.ErrRecordNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "subscription not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ===== Digest相关 =====

// GetDigest 查询摘要
// 带过滤条件时重新选材组装(不落库),保证统计值和筛选一致
func (h *Handler) GetDigest(c *gin.Context) {
	subscriberID, err := strconv.Atoi(c.Query("subscriber_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "需要subscriber_id"})
		return
	}

	date := c.Query("date")
	if date == "" {
		date = time.Now().Format("2006-01-02")
	}
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的日期格式"})
		return
	}

	filter := service.DigestFilter{
		Category: c.Query("category"),
		Search:   c.Query("search"),
	}
	if hours := c.Query("time_window_hours"); hours != "" {
		parsed, err := strconv.Atoi(hours)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的时间窗口"})
			return
		}
		filter.TimeWindowHours = parsed
	}

	var view *service.DigestView
	if filter.IsEmpty() {
		view, err = h.digest.Get(uint(subscriberID), date)
	} else {
		view, err = h.digest.Preview(c.Request.Context(), uint(subscriberID), day, filter)
	}

	switch {
	case errors.Is(err, service.ErrNoDigest), errors.Is(err, service.ErrNoSubscriptions):
		c.JSON(http.StatusNotFound, gin.H{"error": "no digest"})
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusOK, view)
	}
}

type generateRequest struct {
	SubscriberID uint   `json:"subscriber_id" binding:"required"`
	Date         string `json:"date"`
}

func (h *Handler) GenerateDigest(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	day := time.Now()
	if req.Date != "" {
		parsed, err := time.Parse("2006-01-02", req.Date)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "无效的日期格式"})
			return
		}
		day = parsed
	}

	view, err := h.digest.Generate(c.Request.Context(), req.SubscriberID, day)
	if errors.Is(err, service.ErrNoSubscriptions) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no digest"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, view)
}

func (h *Handler) ListDigests(c *gin.Context) {
	subscriberID, err := strconv.Atoi(c.Query("subscriber_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "需要subscriber_id"})
		return
	}

	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "7"))
	digests, err := h.digest.ListRecent(uint(subscriberID), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, digests)
}

func (h *Handler) DeleteDigest(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的ID"})
		return
	}

	if err := h.digest.Delete(uint(id)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "deleted"})
}

// ===== Config相关 =====

func (h *Handler) GetConfig(c *gin.Context) {
	var configs []model.Config
	h.db.Find(&configs)

	result := make(map[string]string)
	for _, cfg := range configs {
		// 密钥不回显
		if cfg.Key == model.ConfigLLMApiKey && cfg.Value != "" {
			result[cfg.Key] = "******"
			continue
		}
		result[cfg.Key] = cfg.Value
	}

	c.JSON(http.StatusOK, result)
}

func (h *Handler) SaveConfig(c *gin.Context) {
	var configs map[string]string
	if err := c.ShouldBindJSON(&configs); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	for key, value := range configs {
		h.db.Where("key = ?", key).
			Assign(model.Config{Key: key, Value: value}).
			FirstOrCreate(&model.Config{})
	}

	c.JSON(http.StatusOK, gin.H{"message": "saved"})
}

// ===== Status相关 =====

func (h *Handler) GetStatus(c *gin.Context) {
	status, err := h.status.GetSystemStatus()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	if h.scheduler != nil {
		status.NextFetchTime = h.scheduler.GetNextFetchTime()
		status.NextDigestTime = h.scheduler.GetNextDigestTime()
	}

	c.JSON(http.StatusOK, status)
}
