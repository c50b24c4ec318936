package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-digest/internal/model"
)

type fakeChat struct {
	response string
	err      error
}

func (f *fakeChat) Chat(ctx context.Context, prompt, content string) (string, error) {
	return f.response, f.err
}

func (f *fakeChat) GetPrompt(key string) string {
	return "prompt"
}

func TestFallbackScorerDefaults(t *testing.T) {
	t.Parallel()

	items := []model.ContentItem{
		{ID: 1, Title: "a", Description: "short description"},
		{ID: 2, Title: "b", Description: strings.Repeat("word ", 100)}, // 500字符
	}

	scored, err := NewFallbackScorer().Score(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, scored, 2)

	for _, s := range scored {
		assert.Equal(t, 0.5, s.RelevanceScore)
		assert.Equal(t, "General", s.Category)
	}

	// 短描述原样保留
	assert.Equal(t, "short description", scored[0].Summary)
	assert.Equal(t, 1, scored[0].EstimatedReadTime)

	// 长描述截断到词边界并带省略号
	assert.True(t, strings.HasSuffix(scored[1].Summary, "..."))
	prefix := strings.TrimSuffix(scored[1].Summary, "...")
	assert.True(t, strings.HasPrefix(items[1].Description, prefix))
	assert.LessOrEqual(t, len(scored[1].Summary), fallbackSummaryLen+3)
	assert.Equal(t, 3, scored[1].EstimatedReadTime) // ceil(500/200)
}

func TestTruncateSummaryBoundary(t *testing.T) {
	t.Parallel()

	exact := strings.Repeat("a", fallbackSummaryLen)
	assert.Equal(t, exact, truncateSummary(exact))

	over := strings.Repeat("ab ", 100) // 300字符
	got := truncateSummary(over)
	assert.True(t, strings.HasSuffix(got, "..."))
	assert.NotContains(t, strings.TrimSuffix(got, "..."), "  ")
}

func TestProcessorFallsBackWhenOracleDown(t *testing.T) {
	t.Parallel()

	processor := NewRelevanceProcessor(&fakeChat{err: errors.New("connection refused")}, time.Second)

	items := []model.ContentItem{
		{ID: 1, Title: "a", Description: "desc a"},
		{ID: 2, Title: "b", Description: "desc b"},
	}

	scored := processor.Score(context.Background(), items)
	require.Len(t, scored, 2)
	for i, s := range scored {
		assert.Equal(t, items[i].ID, s.Item.ID)
		assert.Equal(t, 0.5, s.RelevanceScore)
		assert.Equal(t, "General", s.Category)
	}
}

func TestProcessorFallsBackOnMalformedResponse(t *testing.T) {
	t.Parallel()

	processor := NewRelevanceProcessor(&fakeChat{response: "这不是JSON"}, time.Second)

	scored := processor.Score(context.Background(), []model.ContentItem{{ID: 1, Description: "d"}})
	require.Len(t, scored, 1)
	assert.Equal(t, 0.5, scored[0].RelevanceScore)
}

func TestLLMScorerParsesResponse(t *testing.T) {
	t.Parallel()

	resp := `[{"id":1,"relevance_score":0.9,"category":"科技","summary":"s1","key_points":["k1","k2"],"estimated_read_time":4},
	          {"id":2,"relevance_score":1.5,"category":"","summary":"","estimated_read_time":1}]`
	scorer := NewLLMScorer(&fakeChat{response: resp})

	items := []model.ContentItem{
		{ID: 1, Title: "a", Description: "desc a"},
		{ID: 2, Title: "b", Description: "desc b"},
		{ID: 3, Title: "c", Description: "desc c"},
	}

	scored, err := scorer.Score(context.Background(), items)
	require.NoError(t, err)
	require.Len(t, scored, 3)

	assert.Equal(t, 0.9, scored[0].RelevanceScore)
	assert.Equal(t, "科技", scored[0].Category)
	assert.Equal(t, []string{"k1", "k2"}, scored[0].KeyPoints)

	// 超出[0,1]的分数被收敛,空字段回退默认值
	assert.Equal(t, 1.0, scored[1].RelevanceScore)
	assert.Equal(t, "General", scored[1].Category)
	assert.Equal(t, "desc b", scored[1].Summary)

	// LLM漏掉的条目用降级值补齐
	assert.Equal(t, 0.5, scored[2].RelevanceScore)
}

func TestLLMScorerRejectsUnknownID(t *testing.T) {
	t.Parallel()

	// 响应里出现输入中不存在的ID说明协议漂移,必须报错
	resp := `[{"id":999,"relevance_score":0.9,"category":"x","summary":"s"}]`
	scorer := NewLLMScorer(&fakeChat{response: resp})

	_, err := scorer.Score(context.Background(), []model.ContentItem{{ID: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "999")
}

func TestLLMScorerStripsCodeFence(t *testing.T) {
	t.Parallel()

	resp := "```json\n[{\"id\":1,\"relevance_score\":0.7,\"category\":\"c\",\"summary\":\"s\"}]\n```"
	scorer := NewLLMScorer(&fakeChat{response: resp})

	scored, err := scorer.Score(context.Background(), []model.ContentItem{{ID: 1}})
	require.NoError(t, err)
	assert.Equal(t, 0.7, scored[0].RelevanceScore)
}

func TestProcessorSummarizeFallback(t *testing.T) {
	t.Parallel()

	processor := NewRelevanceProcessor(&fakeChat{err: errors.New("down")}, time.Second)

	summary := processor.Summarize(context.Background(), []string{"头条标题", "次条"})
	assert.NotEmpty(t, summary)
	assert.Contains(t, summary, "头条标题")

	empty := processor.Summarize(context.Background(), nil)
	assert.NotEmpty(t, empty)
}
