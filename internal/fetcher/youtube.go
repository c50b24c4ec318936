package fetcher

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"gorm.io/gorm"

	"go-digest/internal/model"
)

const youtubeFeedBase = "https://www.youtube.com/feeds/videos.xml?channel_id="

// YouTubeAdapter 抓取频道的上传列表
// 频道handle到channelID的解析结果缓存在FeedSource上,不每次重解析
type YouTubeAdapter struct {
	client   *http.Client
	parser   *gofeed.Parser
	db       *gorm.DB
	feedBase string
}

func NewYouTubeAdapter(db *gorm.DB) *YouTubeAdapter {
	return &YouTubeAdapter{
		client:   &http.Client{Timeout: 20 * time.Second},
		parser:   gofeed.NewParser(),
		db:       db,
		feedBase: youtubeFeedBase,
	}
}

func (a *YouTubeAdapter) Name() model.SourceType {
	return model.SourceYouTube
}

// Fetch 先确保拿到channelID,再解析上传feed
// 解析channelID失败时记录日志并返回空批次,不让整批失败
func (a *YouTubeAdapter) Fetch(ctx context.Context, source *model.FeedSource) ([]RawItem, error) {
	channelID := source.ChannelID
	if channelID == "" {
		resolved, err := a.resolveChannel(ctx, source)
		if err != nil {
			log.Printf("[Fetch] 解析YouTube频道失败 source=%d url=%s: %v", source.ID, source.URL, err)
			return []RawItem{}, nil
		}
		channelID = resolved
	}

	parsed, err := a.parser.ParseURLWithContext(a.feedBase+channelID, ctx)
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

// resolveChannel 抓频道页面,从canonical链接或identifier元信息拿channelID
// 顺带补全订阅源缺失的图标
func (a *YouTubeAdapter) resolveChannel(ctx context.Context, source *model.FeedSource) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, source.URL, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("User-Agent", "go-digest/1.0")

	resp, err := a.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("频道页面返回 %s", resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return "", err
	}

	channelID := ""
	if href, ok := doc.Find(`link[rel="canonical"]`).First().Attr("href"); ok {
		if idx := strings.LastIndex(href, "/channel/"); idx >= 0 {
			channelID = href[idx+len("/channel/"):]
		}
	}
	if channelID == "" {
		channelID, _ = doc.Find(`meta[itemprop="identifier"]`).First().Attr("content")
	}
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return "", fmt.Errorf("页面中找不到channelID")
	}

	updates := map[string]interface{}{"channel_id": channelID}
	if source.FaviconURL == "" {
		if icon, ok := doc.Find(`meta[property="og:image"]`).First().Attr("content"); ok && icon != "" {
			updates["favicon_url"] = icon
			source.FaviconURL = icon
		}
	}

	if a.db != nil {
		if err := a.db.Model(&model.FeedSource{}).Where("id = ?", source.ID).Updates(updates).Error; err != nil {
			log.Printf("[Fetch] 缓存channelID失败 source=%d: %v", source.ID, err)
		}
	}
	source.ChannelID = channelID

	return channelID, nil
}
