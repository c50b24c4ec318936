package config

import (
	"log"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Cron      CronConfig      `yaml:"cron"`
	Fetch     FetchConfig     `yaml:"fetch"`
	Dedup     DedupConfig     `yaml:"dedup"`
	Digest    DigestConfig    `yaml:"digest"`
	Retention RetentionConfig `yaml:"retention"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Mode string `yaml:"mode"` // debug, release
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type CronConfig struct {
	FetchInterval   string `yaml:"fetch_interval"`   // 内容抓取间隔
	DigestInterval  string `yaml:"digest_interval"`  // 摘要生成间隔
	CleanupInterval string `yaml:"cleanup_interval"` // 过期数据清理间隔
}

type FetchConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"` // 单次抓取超时
	Workers        int `yaml:"workers"`         // 并发抓取上限
	MaxRetries     int `yaml:"max_retries"`     // 单次调度内的重试次数
}

type DedupConfig struct {
	SimilarityThreshold float64 `yaml:"similarity_threshold"` // 标题相似度判重阈值
	MaxCandidates       int     `yaml:"max_candidates"`       // 模糊匹配候选上限
}

type DigestConfig struct {
	TopStories      int `yaml:"top_stories"`       // 头条数量
	TimeWindowHours int `yaml:"time_window_hours"` // 默认取材时间窗口
}

type RetentionConfig struct {
	ContentDays int `yaml:"content_days"` // 内容保留天数
	ErrorDays   int `yaml:"error_days"`   // 错误记录保留天数
}

// Load 加载配置文件
func Load(configPath string) (*Config, error) {
	// 默认配置
	cfg := &Config{
		Server: ServerConfig{
			Port: "3000",
			Mode: "debug",
		},
		Database: DatabaseConfig{
			Path: "data/digest.db",
		},
		Cron: CronConfig{
			FetchInterval:   "*/30 * * * *", // 每30分钟
			DigestInterval:  "0 7 * * *",    // 每天早上7点
			CleanupInterval: "0 3 * * *",    // 每天凌晨3点
		},
		Fetch: FetchConfig{
			TimeoutSeconds: 30,
			Workers:        4,
			MaxRetries:     2,
		},
		Dedup: DedupConfig{
			SimilarityThreshold: 0.8,
			MaxCandidates:       5,
		},
		Digest: DigestConfig{
			TopStories:      10,
			TimeWindowHours: 24,
		},
		Retention: RetentionConfig{
			ContentDays: 30,
			ErrorDays:   7,
		},
	}

	// 如果配置文件存在,读取配置
	if _, err := os.Stat(configPath); err == nil {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, err
		}

		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, err
		}
	} else {
		log.Printf("配置文件不存在: %s, 使用默认配置", configPath)
	}

	// 环境变量覆盖配置
	if port := os.Getenv("PORT"); port != "" {
		cfg.Server.Port = port
	}

	if mode := os.Getenv("GIN_MODE"); mode != "" {
		cfg.Server.Mode = mode
	}

	if dbPath := os.Getenv("DB_PATH"); dbPath != "" {
		cfg.Database.Path = dbPath
	}

	return cfg, nil
}

// GetServerAddress 获取服务器监听地址
func (c *Config) GetServerAddress() string {
	// 如果端口是纯数字,加上冒号前缀
	if _, err := strconv.Atoi(c.Server.Port); err == nil {
		return ":" + c.Server.Port
	}
	return c.Server.Port
}
