package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"go-digest/internal/model"
)

// 降级策略的各项默认值
const (
	fallbackScore       = 0.5
	fallbackCategory    = "General"
	fallbackSummaryLen  = 200
	readTimeCharsPerMin = 200
)

// ScoredItem 评分后的内容条目
type ScoredItem struct {
	Item              model.ContentItem
	RelevanceScore    float64
	Category          string
	Summary           string
	KeyPoints         []string
	EstimatedReadTime int
}

// Scorer 可插拔的评分器:远程LLM实现 + 确定性降级实现
type Scorer interface {
	Score(ctx context.Context, items []model.ContentItem) ([]ScoredItem, error)
	Summarize(ctx context.Context, seeds []string) (string, error)
}

// ChatClient 评分器依赖的对话能力,由LLMService提供
type ChatClient interface {
	Chat(ctx context.Context, prompt, content string) (string, error)
	GetPrompt(key string) string
}

// ---- LLM评分器 ----

// LLMScorer 把整批条目打包发给LLM,要求按条目ID返回JSON数组
type LLMScorer struct {
	llm ChatClient
}

func NewLLMScorer(llm ChatClient) *LLMScorer {
	return &LLMScorer{llm: llm}
}

type scoreRequestItem struct {
	ID          uint   `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

type scoreResponseItem struct {
	ID                uint     `json:"id"`
	RelevanceScore    float64  `json:"relevance_score"`
	Category          string   `json:"category"`
	Summary           string   `json:"summary"`
	KeyPoints         []string `json:"key_points"`
	EstimatedReadTime int      `json:"estimated_read_time"`
}

// Score 调用LLM评分
// 响应里出现输入中不存在的ID是协议漂移,必须报错而不是忽略
func (s *LLMScorer) Score(ctx context.Context, items []model.ContentItem) ([]ScoredItem, error) {
	payload := make([]scoreRequestItem, 0, len(items))
	for _, item := range items {
		payload = append(payload, scoreRequestItem{
			ID:          item.ID,
			Title:       item.Title,
			Description: item.Description,
		})
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	resp, err := s.llm.Chat(ctx, s.llm.GetPrompt(model.ConfigPromptScore), string(body))
	if err != nil {
		return nil, err
	}

	var parsed []scoreResponseItem
	if err := json.Unmarshal([]byte(stripCodeFence(resp)), &parsed); err != nil {
		return nil, fmt.Errorf("解析评分结果失败: %v", err)
	}

	byID := make(map[uint]*model.ContentItem, len(items))
	for i := range items {
		byID[items[i].ID] = &items[i]
	}

	scoredByID := make(map[uint]scoreResponseItem, len(parsed))
	for _, entry := range parsed {
		if _, ok := byID[entry.ID]; !ok {
			return nil, fmt.Errorf("评分结果包含未知条目ID %d", entry.ID)
		}
		scoredByID[entry.ID] = entry
	}

	// 按输入顺序输出;LLM漏掉的条目用降级值补齐
	result := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		entry, ok := scoredByID[item.ID]
		if !ok {
			result = append(result, fallbackScoreItem(item))
			continue
		}
		result = append(result, ScoredItem{
			Item:              item,
			RelevanceScore:    clampScore(entry.RelevanceScore),
			Category:          defaultString(entry.Category, fallbackCategory),
			Summary:           defaultString(entry.Summary, truncateSummary(item.Description)),
			KeyPoints:         entry.KeyPoints,
			EstimatedReadTime: entry.EstimatedReadTime,
		})
	}

	return result, nil
}

// Summarize 根据头条标题和摘要生成整份摘要的导语
func (s *LLMScorer) Summarize(ctx context.Context, seeds []string) (string, error) {
	return s.llm.Chat(ctx, s.llm.GetPrompt(model.ConfigPromptDigest), strings.Join(seeds, "\n"))
}

// ---- 确定性降级评分器 ----

// FallbackScorer LLM不可用时的确定性降级实现
type FallbackScorer struct{}

func NewFallbackScorer() *FallbackScorer {
	return &FallbackScorer{}
}

func (s *FallbackScorer) Score(ctx context.Context, items []model.ContentItem) ([]ScoredItem, error) {
	result := make([]ScoredItem, 0, len(items))
	for _, item := range items {
		result = append(result, fallbackScoreItem(item))
	}
	return result, nil
}

func (s *FallbackScorer) Summarize(ctx context.Context, seeds []string) (string, error) {
	if len(seeds) == 0 {
		return "今日暂无新内容", nil
	}
	return fmt.Sprintf("今日为你精选了%d条内容,头条:%s", len(seeds), seeds[0]), nil
}

func fallbackScoreItem(item model.ContentItem) ScoredItem {
	return ScoredItem{
		Item:              item,
		RelevanceScore:    fallbackScore,
		Category:          fallbackCategory,
		Summary:           truncateSummary(item.Description),
		EstimatedReadTime: estimateReadTime(item.Description),
	}
}

// ---- 处理器 ----

// RelevanceProcessor 优先走LLM评分,失败时整批降级
type RelevanceProcessor struct {
	primary  Scorer
	fallback Scorer
	timeout  time.Duration
}

func NewRelevanceProcessor(llm ChatClient, timeout time.Duration) *RelevanceProcessor {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RelevanceProcessor{
		primary:  NewLLMScorer(llm),
		fallback: NewFallbackScorer(),
		timeout:  timeout,
	}
}

// Score 给一批内容评分,永远不失败
func (p *RelevanceProcessor) Score(ctx context.Context, items []model.ContentItem) []ScoredItem {
	if len(items) == 0 {
		return nil
	}

	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	scored, err := p.primary.Score(cctx, items)
	if err != nil {
		log.Printf("[Relevance] 评分服务不可用,使用降级策略: %v", err)
		scored, _ = p.fallback.Score(ctx, items)
	}
	return scored
}

// Summarize 生成摘要导语,失败时降级
func (p *RelevanceProcessor) Summarize(ctx context.Context, seeds []string) string {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	summary, err := p.primary.Summarize(cctx, seeds)
	if err != nil || strings.TrimSpace(summary) == "" {
		summary, _ = p.fallback.Summarize(ctx, seeds)
	}
	return summary
}

// ---- 辅助函数 ----

// truncateSummary 截断到词边界并追加省略号
func truncateSummary(description string) string {
	if len(description) <= fallbackSummaryLen {
		return description
	}

	cut := description[:fallbackSummaryLen]
	if idx := strings.LastIndex(cut, " "); idx > 0 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "..."
}

// estimateReadTime 按每分钟200字符向上取整
func estimateReadTime(description string) int {
	return (len(description) + readTimeCharsPerMin - 1) / readTimeCharsPerMin
}

func clampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 1 {
		return 1
	}
	return score
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}

// stripCodeFence 去掉LLM偶尔带上的markdown代码块包装
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "```") {
		s = strings.TrimPrefix(s, "```json")
		s = strings.TrimPrefix(s, "```")
		s = strings.TrimSuffix(s, "```")
	}
	return strings.TrimSpace(s)
}
