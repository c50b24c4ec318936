package service

import (
	"errors"
	"strings"

	"gorm.io/gorm"

	"go-digest/config"
	"go-digest/internal/model"
)

// 模糊匹配预筛选用的标题前缀长度(按rune计)
const dedupPrefixLen = 20

// DedupService 判断候选条目是否与同源已存条目重复
// 先精确匹配URL,再对标题做词重叠模糊匹配
type DedupService struct {
	db            *gorm.DB
	threshold     float64
	maxCandidates int
}

type DedupResult struct {
	IsDuplicate bool    `json:"is_duplicate"`
	ExistingID  uint    `json:"existing_id,omitempty"`
	Similarity  float64 `json:"similarity,omitempty"`
}

func NewDedupService(db *gorm.DB, cfg config.DedupConfig) *DedupService {
	threshold := cfg.SimilarityThreshold
	if threshold <= 0 {
		threshold = 0.8
	}
	maxCandidates := cfg.MaxCandidates
	if maxCandidates <= 0 {
		maxCandidates = 5
	}
	return &DedupService{db: db, threshold: threshold, maxCandidates: maxCandidates}
}

// Check 查重,命中第一个匹配即返回
func (s *DedupService) Check(candidate *model.ContentItem, feedSourceID uint) (DedupResult, error) {
	// 1. URL精确匹配
	var existing model.ContentItem
	err := s.db.Select("id").
		Where("feed_source_id = ? AND url = ?", feedSourceID, candidate.URL).
		First(&existing).Error
	if err == nil {
		return DedupResult{IsDuplicate: true, ExistingID: existing.ID, Similarity: 1.0}, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return DedupResult{}, err
	}

	// 2. 标题模糊匹配,没有标题的条目不参与
	title := strings.TrimSpace(candidate.Title)
	if title == "" {
		return DedupResult{}, nil
	}

	// 用标题前缀做廉价预筛选,限定候选集规模
	var candidates []model.ContentItem
	err = s.db.Select("id", "title").
		Where("feed_source_id = ? AND LOWER(title) LIKE ? ESCAPE '\\'", feedSourceID, "%"+likePrefix(title)+"%").
		Order("id ASC"). // 按入库顺序扫描,保证匹配结果稳定
		Limit(s.maxCandidates).
		Find(&candidates).Error
	if err != nil {
		return DedupResult{}, err
	}

	for _, c := range candidates {
		sim := TitleSimilarity(title, c.Title)
		if sim >= s.threshold {
			return DedupResult{IsDuplicate: true, ExistingID: c.ID, Similarity: sim}, nil
		}
	}

	return DedupResult{}, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePrefix 构造预筛选的LIKE模式片段
// 按rune截断,不能把多字节字符切成半个,否则模式永远匹配不上;
// 大小写只折叠ASCII,与SQLite的LOWER口径一致;
// 标题里出现的通配符转义,防止挤占有限的候选名额
func likePrefix(title string) string {
	runes := []rune(asciiLower(title))
	if len(runes) > dedupPrefixLen {
		runes = runes[:dedupPrefixLen]
	}
	return likeEscaper.Replace(string(runes))
}

func asciiLower(s string) string {
	return strings.Map(func(r rune) rune {
		if r >= 'A' && r <= 'Z' {
			return r + ('a' - 'A')
		}
		return r
	}, s)
}

// TitleSimilarity 词重叠相似度: |公共词| / max(|词A|, |词B|)
// 小写空白分词,不做词干化
func TitleSimilarity(a, b string) float64 {
	wordsA := strings.Fields(strings.ToLower(a))
	wordsB := strings.Fields(strings.ToLower(b))
	if len(wordsA) == 0 || len(wordsB) == 0 {
		return 0
	}

	setA := make(map[string]struct{}, len(wordsA))
	for _, w := range wordsA {
		setA[w] = struct{}{}
	}

	seen := make(map[string]struct{}, len(wordsB))
	common := 0
	for _, w := range wordsB {
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		if _, ok := setA[w]; ok {
			common++
		}
	}

	max := len(setA)
	if len(seen) > max {
		max = len(seen)
	}

	return float64(common) / float64(max)
}
