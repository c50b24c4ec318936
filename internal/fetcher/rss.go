package fetcher

import (
	"context"
	"errors"
	"time"

	"github.com/mmcdole/gofeed"

	"go-digest/internal/model"
)

// RSSAdapter 抓取RSS/Atom订阅源
type RSSAdapter struct {
	parser *gofeed.Parser
}

func NewRSSAdapter() *RSSAdapter {
	return &RSSAdapter{parser: gofeed.NewParser()}
}

func (a *RSSAdapter) Name() model.SourceType {
	return model.SourceRSS
}

// Fetch 解析订阅源并归一化条目,缺少标题或链接的条目直接跳过
func (a *RSSAdapter) Fetch(ctx context.Context, source *model.FeedSource) ([]RawItem, error) {
	parsed, err := a.parser.ParseURLWithContext(source.URL, ctx)
	if err != nil {
		return nil, classifyFeedError(err)
	}

	items := make([]RawItem, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item.Title == "" || item.Link == "" {
			continue
		}

		raw := RawItem{
			Title:       item.Title,
			URL:         item.Link,
			Description: item.Description,
			PublishedAt: itemTime(item),
		}
		if item.Image != nil {
			raw.ImageURL = item.Image.URL
		}
		if item.Author != nil && item.Author.Name != "" {
			author := item.Author.Name
			raw.Author = &author
		}

		items = append(items, raw)
	}

	return items, nil
}

// classifyFeedError gofeed的HTTP错误按状态码分类,其余视为解析失败
func classifyFeedError(err error) error {
	var httpErr gofeed.HTTPError
	if errors.As(err, &httpErr) {
		return newFetchError(classifyStatus(httpErr.StatusCode), err)
	}
	if errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return newFetchError(model.ErrorParse, err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return newFetchError(model.ErrorFetch, err)
	}
	// 网络层错误交给Classify兜底
	return err
}

func itemTime(item *gofeed.Item) time.Time {
	if item.PublishedParsed != nil {
		return *item.PublishedParsed
	}
	if item.UpdatedParsed != nil {
		return *item.UpdatedParsed
	}
	return time.Now()
}
