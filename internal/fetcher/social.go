package fetcher

import (
	"context"

	"go-digest/internal/model"
)

// SocialAdapter 社交平台占位适配器
// 尚未接入具体平台,始终返回空批次(空批次是成功,不是错误)
type SocialAdapter struct{}

func NewSocialAdapter() *SocialAdapter {
	return &SocialAdapter{}
}

func (a *SocialAdapter) Name() model.SourceType {
	return model.SourceSocial
}

func (a *SocialAdapter) Fetch(ctx context.Context, source *model.FeedSource) ([]RawItem, error) {
	return []RawItem{}, nil
}
