package service

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"go-digest/internal/model"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.ReplaceAll(t.Name(), "/", "_")
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", name)
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.AutoMigrate(
		&model.FeedSource{},
		&model.UserFeedSubscription{},
		&model.ContentItem{},
		&model.ContentError{},
		&model.Digest{},
		&model.DigestItem{},
		&model.Config{},
	))

	return db
}

func seedSource(t *testing.T, db *gorm.DB, url string, sourceType model.SourceType) *model.FeedSource {
	t.Helper()

	source := &model.FeedSource{
		Name:     "test source",
		URL:      url,
		Type:     sourceType,
		IsActive: true,
	}
	require.NoError(t, db.Create(source).Error)
	return source
}

func seedSubscription(t *testing.T, db *gorm.DB, subscriberID, feedSourceID uint) {
	t.Helper()

	sub := &model.UserFeedSubscription{
		SubscriberID: subscriberID,
		FeedSourceID: feedSourceID,
		IsActive:     true,
	}
	require.NoError(t, db.Create(sub).Error)
}

func seedItem(t *testing.T, db *gorm.DB, sourceID uint, title, url string, publishedAt time.Time) *model.ContentItem {
	t.Helper()

	item := &model.ContentItem{
		FeedSourceID: sourceID,
		Title:        title,
		URL:          url,
		Description:  "description of " + title,
		PublishedAt:  publishedAt,
		ContentType:  model.SourceRSS,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}
