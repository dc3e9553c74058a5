// 包 config 负责加载与校验应用配置（settings.yaml），
// 对外提供结构体 Config 及默认值/合法性校验。
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config 对应 settings.yaml 的顶层键。
type Config struct {
	Market            string      `yaml:"MARKET"`       // 国家/市场代码，默认 ph
	Lang              string      `yaml:"LANG"`         // 语言代码，默认 en
	Source            string      `yaml:"SOURCE"`       // play|appstore
	MaxReviews        int         `yaml:"MAX_REVIEWS"`  // 每个应用抓取上限，0 表示不限（耗时很长）
	OutputDir         string      `yaml:"OUTPUT_DIR"`   // CSV 与数据库输出目录
	RollingWindowDays int         `yaml:"ROLLING_WINDOW_DAYS"`
	PacingMillis      int         `yaml:"PACING_MS"` // 翻页间隔（毫秒），成功也要等待
	Database          Database    `yaml:"DATABASE"`
	Concurrency       Concurrency `yaml:"CONCURRENCY"`
	Proxy             Proxy       `yaml:"PROXY"`
	LogLevel          string      `yaml:"LOG_LEVEL"`
	LogFormat         string      `yaml:"LOG_FORMAT"` // text|json|pretty
	LogLocale         string      `yaml:"LOG_LOCALE"` // zh-CN|en
	LogColor          string      `yaml:"LOG_COLOR"`  // auto|always|never
}

type Database struct {
	Type string `yaml:"type"` // sqlite (default)
	DSN  string `yaml:"dsn"`  // 默认 <OUTPUT_DIR>/reviews.db
}

type Concurrency struct {
	// Apps：同时抓取的应用数；默认 1（串行），上限 3 以免触发限流
	Apps int `yaml:"apps"`
	// Attempts：单页请求的总尝试次数（含首次）
	Attempts int `yaml:"attempts"`
}

type Proxy struct {
	HTTP  string `yaml:"http"`
	HTTPS string `yaml:"https"`
}

// Load 从文件读取 YAML 并反序列化为 Config，同时进行基础校验与默认值填充。
// 文件不存在时返回全默认配置，便于零配置运行。
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			c := &Config{}
			if err := c.Validate(); err != nil {
				return nil, fmt.Errorf("validate config: %w", err)
			}
			return c, nil
		}
		return nil, fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()
	b, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("unmarshal config %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &c, nil
}

// Validate 负责合法性检查与默认值设置。
func (c *Config) Validate() error {
	if c.Market == "" {
		c.Market = "ph"
	}
	if c.Lang == "" {
		c.Lang = "en"
	}
	if c.Source == "" {
		c.Source = "play"
	}
	if c.Source != "play" && c.Source != "appstore" {
		return fmt.Errorf("unsupported source: %s", c.Source)
	}
	if c.MaxReviews < 0 {
		return errors.New("MAX_REVIEWS must be >= 0")
	}
	if c.OutputDir == "" {
		c.OutputDir = "app_reviews"
	}
	if c.RollingWindowDays < 0 {
		return errors.New("ROLLING_WINDOW_DAYS must be >= 0")
	}
	if c.RollingWindowDays == 0 {
		c.RollingWindowDays = 30
	}
	if c.PacingMillis < 0 {
		return errors.New("PACING_MS must be >= 0")
	}
	if c.PacingMillis == 0 {
		c.PacingMillis = 1000
	}
	if c.Database.Type == "" {
		c.Database.Type = "sqlite"
	}
	if c.Database.Type != "sqlite" {
		return fmt.Errorf("unsupported database type: %s", c.Database.Type)
	}
	if c.Database.DSN == "" {
		c.Database.DSN = filepath.Join(c.OutputDir, "reviews.db")
	}
	if c.Concurrency.Apps <= 0 {
		c.Concurrency.Apps = 1
	}
	if c.Concurrency.Apps > 3 {
		c.Concurrency.Apps = 3
	}
	if c.Concurrency.Attempts <= 0 {
		c.Concurrency.Attempts = 4
	}
	if c.LogFormat == "" {
		c.LogFormat = "pretty"
	}
	if c.LogLocale == "" {
		c.LogLocale = "zh-CN"
	}
	if c.LogColor == "" {
		c.LogColor = "auto"
	}
	return nil
}
