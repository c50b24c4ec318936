package fetcher

import (
	"context"
	"fmt"
	"time"

	"go-digest/internal/model"
)

// RawItem 适配器抓到的原始条目,归一化前的统一形态
type RawItem struct {
	Title       string
	URL         string
	Description string
	ImageURL    string
	PublishedAt time.Time

	// 类型相关字段
	Score       *int
	NumComments *int
	Author      *string
	Subreddit   *string
}

// Adapter 单一来源类型的抓取适配器
// Fetch必须无状态且幂等:没有新内容算成功,单条脏数据跳过不报错
type Adapter interface {
	Name() model.SourceType
	Fetch(ctx context.Context, source *model.FeedSource) ([]RawItem, error)
}

// Registry 按来源类型注册适配器
type Registry struct {
	adapters map[model.SourceType]Adapter
}

func NewRegistry() *Registry {
	return &Registry{adapters: make(map[model.SourceType]Adapter)}
}

func (r *Registry) Register(a Adapter) {
	r.adapters[a.Name()] = a
}

// Resolve 按来源类型查找适配器
func (r *Registry) Resolve(t model.SourceType) (Adapter, error) {
	if a, ok := r.adapters[t]; ok {
		return a, nil
	}
	return nil, fmt.Errorf("未注册的来源类型: %s", t)
}
