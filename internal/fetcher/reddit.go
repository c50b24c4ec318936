package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go-digest/internal/model"
)

const redditBaseURL = "https://www.reddit.com"

// RedditAdapter 通过公开的listing接口抓取subreddit
type RedditAdapter struct {
	client    *http.Client
	userAgent string
}

func NewRedditAdapter() *RedditAdapter {
	return &RedditAdapter{
		client:    &http.Client{Timeout: 20 * time.Second},
		userAgent: "go-digest/1.0",
	}
}

func (a *RedditAdapter) Name() model.SourceType {
	return model.SourceReddit
}

type redditListing struct {
	Data struct {
		Children []struct {
			Data redditPost `json:"data"`
		} `json:"children"`
	} `json:"data"`
}

type redditPost struct {
	Title       string  `json:"title"`
	Permalink   string  `json:"permalink"`
	Selftext    string  `json:"selftext"`
	Thumbnail   string  `json:"thumbnail"`
	Author      string  `json:"author"`
	Subreddit   string  `json:"subreddit"`
	Score       int     `json:"score"`
	NumComments int     `json:"num_comments"`
	CreatedUTC  float64 `json:"created_utc"`
}

// Fetch 拉取subreddit最新帖子
// 401/403归为auth_error,429归为rate_limit
func (a *RedditAdapter) Fetch(ctx context.Context, source *model.FeedSource) ([]RawItem, error) {
	listingURL := strings.TrimSuffix(source.URL, "/") + "/new.json?limit=50&raw_json=1"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, listingURL, nil)
	if err != nil {
		return nil, newFetchError(model.ErrorFetch, err)
	}
	// reddit对默认UA限流很严格
	req.Header.Set("User-Agent", a.userAgent)

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, newFetchError(model.ErrorFetch, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, newFetchError(classifyStatus(resp.StatusCode),
			fmt.Errorf("reddit返回 %s", resp.Status))
	}

	var listing redditListing
	if err := json.NewDecoder(resp.Body).Decode(&listing); err != nil {
		return nil, newFetchError(model.ErrorParse, err)
	}

	items := make([]RawItem, 0, len(listing.Data.Children))
	for _, child := range listing.Data.Children {
		post := child.Data
		if post.Title == "" || post.Permalink == "" {
			continue
		}

		score := post.Score
		comments := post.NumComments
		raw := RawItem{
			Title:       post.Title,
			URL:         redditBaseURL + post.Permalink,
			Description: post.Selftext,
			PublishedAt: time.Unix(int64(post.CreatedUTC), 0),
			Score:       &score,
			NumComments: &comments,
		}
		if post.Author != "" {
			author := post.Author
			raw.Author = &author
		}
		if post.Subreddit != "" {
			sub := post.Subreddit
			raw.Subreddit = &sub
		}
		// thumbnail可能是"self"/"default"这类占位值
		if strings.HasPrefix(post.Thumbnail, "http") {
			raw.ImageURL = post.Thumbnail
		}

		items = append(items, raw)
	}

	return items, nil
}
