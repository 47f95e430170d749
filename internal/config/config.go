package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"AutoPublisher/internal/domain"
)

const (
	defaultTimezone    = "Asia/Seoul"
	configPathEnv      = "AUTOPUBLISHER_CONFIG"
	databaseDSNEnv     = "DATABASE_DSN"
	logLevelEnv        = "LOG_LEVEL"
	chatGPTAPIKeyEnv   = "CHATGPT_API_KEY"
	chatGPTModelEnv    = "CHATGPT_MODEL"
	imagesAPIKeyEnv    = "IMAGES_API_KEY"
	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChatIDEnv  = "TELEGRAM_CHAT_ID"
	wpPasswordEnvFmt   = "WP_%s_APP_PASSWORD"

	defaultPoolPriority = 5
)

// Config holds high-level settings required across the application.
type Config struct {
	Logging       LoggingConfig      `yaml:"logging"`
	Database      DatabaseConfig     `yaml:"database"`
	Scheduler     SchedulerConfig    `yaml:"scheduler"`
	Publishing    PublishingConfig   `yaml:"publishing"`
	Notifications NotificationConfig `yaml:"notifications"`
	Images        ImagesConfig       `yaml:"images"`
	ChatGPT       ChatGPTConfig      `yaml:"chatgpt"`
	Sites         []SiteConfig       `yaml:"sites" validate:"dive"`
}

// LoggingConfig selects the slog handler.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format" validate:"omitempty,oneof=text json"`
}

// DatabaseConfig describes Postgres connection details. An empty DSN selects the in-memory store.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// SchedulerConfig controls the dispatcher and maintenance jobs.
type SchedulerConfig struct {
	Timezone     string         `yaml:"timezone"`
	Workers      int            `yaml:"workers" validate:"gte=0"`
	MisfireGrace time.Duration  `yaml:"misfireGrace"`
	DailyReport  string         `yaml:"dailyReport"`
	PoolRefresh  string         `yaml:"poolRefresh"`
	MonthlyPlan  string         `yaml:"monthlyPlan"`
	location     *time.Location `yaml:"-"`
}

// Location resolves the scheduler timezone string to a time.Location.
func (s SchedulerConfig) Location() *time.Location {
	if s.location != nil {
		return s.location
	}
	loc, err := time.LoadLocation(defaultTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// PublishingConfig tunes the orchestrator.
type PublishingConfig struct {
	MaxRetries         int           `yaml:"maxRetries" validate:"gte=0"`
	RetryDelay         time.Duration `yaml:"retryDelay"`
	DuplicateThreshold float64       `yaml:"duplicateThreshold" validate:"gte=0,lte=1"`
	HistoryWindow      int           `yaml:"historyWindow" validate:"gte=0"`
	AvoidTitles        int           `yaml:"avoidTitles" validate:"gte=0"`
	ImageCount         int           `yaml:"imageCount" validate:"gte=0"`
}

// NotificationConfig encapsulates outbound channels (Telegram, etc.).
type NotificationConfig struct {
	Telegram TelegramConfig `yaml:"telegram"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken string `yaml:"botToken"`
	ChatID   string `yaml:"chatId"`
}

// ImagesConfig describes the image rendering service.
type ImagesConfig struct {
	Endpoint string `yaml:"endpoint"`
	APIKey   string `yaml:"apiKey"`
}

// ChatGPTConfig defines how to contact the ChatGPT API.
type ChatGPTConfig struct {
	Endpoint     string `yaml:"endpoint"`
	Model        string `yaml:"model"`
	APIKey       string `yaml:"apiKey"`
	SystemPrompt string `yaml:"systemPrompt"`
}

// SiteConfig describes one blog: its editorial profile, publisher and schedule.
type SiteConfig struct {
	Key            string              `yaml:"key" validate:"required"`
	Name           string              `yaml:"name"`
	Platform       string              `yaml:"platform"`
	ContentStyle   string              `yaml:"contentStyle"`
	TargetAudience string              `yaml:"targetAudience"`
	WordPress      WordPressConfig     `yaml:"wordpress"`
	Draft          bool                `yaml:"draft"`
	RequireImages  bool                `yaml:"requireImages"`
	Slots          []SlotConfig        `yaml:"slots" validate:"dive"`
	Categories     CategoriesConfig    `yaml:"categories"`
	Plan           PlanConfig          `yaml:"plan"`
	TopicSources   []TopicSourceConfig `yaml:"topicSources" validate:"dive"`
}

// PlanConfig maps a category to its rotating calendar topics.
type PlanConfig map[string][]PlanTopicConfig

// WordPressConfig holds REST credentials for one site.
type WordPressConfig struct {
	URL               string  `yaml:"url" validate:"omitempty,url"`
	Username          string  `yaml:"username"`
	AppPassword       string  `yaml:"appPassword"`
	RequestsPerMinute float64 `yaml:"requestsPerMinute" validate:"gte=0"`
}

// SlotConfig is a recurring publish time ("12:00") on the listed weekdays ("mon".."sun").
type SlotConfig struct {
	Time     string   `yaml:"time" validate:"required"`
	Days     []string `yaml:"days"`
	Category string   `yaml:"category"`
}

// CategoriesConfig names the categories planned daily.
type CategoriesConfig struct {
	Primary   string `yaml:"primary"`
	Secondary string `yaml:"secondary"`
}

// PlanTopicConfig is one rotating calendar topic.
type PlanTopicConfig struct {
	Topic        string   `yaml:"topic" validate:"required"`
	Keywords     []string `yaml:"keywords"`
	TargetLength string   `yaml:"targetLength"`
}

// TopicSourceConfig selects a pool topic scanner and its parameters.
type TopicSourceConfig struct {
	Scanner  string            `yaml:"scanner" validate:"required"`
	URL      string            `yaml:"url" validate:"omitempty,url"`
	Selector string            `yaml:"selector"`
	Category string            `yaml:"category"`
	Priority int               `yaml:"priority"`
	Topics   []string          `yaml:"topics"`
	Options  map[string]string `yaml:"options"`
}

var weekdays = map[string]int{"mon": 0, "tue": 1, "wed": 2, "thu": 3, "fri": 4, "sat": 5, "sun": 6}

// ParseTime splits "HH:MM".
func (s SlotConfig) ParseTime() (hour, minute int, err error) {
	h, m, ok := strings.Cut(strings.TrimSpace(s.Time), ":")
	if !ok {
		return 0, 0, fmt.Errorf("slot time %q: want HH:MM", s.Time)
	}
	hour, err = strconv.Atoi(h)
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("slot time %q: bad hour", s.Time)
	}
	minute, err = strconv.Atoi(m)
	if err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("slot time %q: bad minute", s.Time)
	}
	return hour, minute, nil
}

// Weekdays returns Monday=0 indexes; an empty list means every day.
func (s SlotConfig) Weekdays() ([]int, error) {
	if len(s.Days) == 0 {
		return []int{0, 1, 2, 3, 4, 5, 6}, nil
	}
	out := make([]int, 0, len(s.Days))
	for _, d := range s.Days {
		idx, ok := weekdays[strings.ToLower(strings.TrimSpace(d))]
		if !ok {
			return nil, fmt.Errorf("unknown weekday %q", d)
		}
		out = append(out, idx)
	}
	return out, nil
}

// Site finds a site by key.
func (c Config) Site(key string) (SiteConfig, bool) {
	for _, s := range c.Sites {
		if s.Key == key {
			return s, true
		}
	}
	return SiteConfig{}, false
}

var configValidator = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct constraints plus slot syntax and key uniqueness.
func (c Config) Validate() error {
	if err := configValidator.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	var errs []error
	seen := map[string]struct{}{}
	for _, site := range c.Sites {
		if _, dup := seen[site.Key]; dup {
			errs = append(errs, fmt.Errorf("site %s defined twice", site.Key))
		}
		seen[site.Key] = struct{}{}
		for _, slot := range site.Slots {
			if _, _, err := slot.ParseTime(); err != nil {
				errs = append(errs, fmt.Errorf("site %s: %w", site.Key, err))
			}
			if _, err := slot.Weekdays(); err != nil {
				errs = append(errs, fmt.Errorf("site %s: %w", site.Key, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Load reads YAML configuration named by AUTOPUBLISHER_CONFIG (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.finish()
	return cfg
}

// LoadFile is Load with an explicit path; unlike Load it fails on a bad file.
func LoadFile(path string) (Config, error) {
	fileCfg, err := readFile(path)
	if err != nil {
		return Config{}, err
	}
	cfg := mergeConfig(defaultConfig(), fileCfg)
	cfg.finish()
	return cfg, nil
}

func readFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return fileCfg, nil
}

func (c *Config) finish() {
	c.applyEnvOverrides()
	c.bindTimezone()
	if len(c.Sites) == 0 {
		c.Sites = defaultConfig().Sites
	}
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Notifications.Telegram.BotToken = v
	}

	if v := os.Getenv(telegramChatIDEnv); v != "" {
		c.Notifications.Telegram.ChatID = v
	}

	if v := os.Getenv(chatGPTAPIKeyEnv); v != "" {
		c.ChatGPT.APIKey = v
	}

	if v := os.Getenv(chatGPTModelEnv); v != "" {
		c.ChatGPT.Model = v
	}

	if v := os.Getenv(imagesAPIKeyEnv); v != "" {
		c.Images.APIKey = v
	}

	for i := range c.Sites {
		if v := os.Getenv(fmt.Sprintf(wpPasswordEnvFmt, strings.ToUpper(c.Sites[i].Key))); v != "" {
			c.Sites[i].WordPress.AppPassword = v
		}
	}
}

func (c *Config) bindTimezone() {
	tz := c.Scheduler.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		log.Printf("config: unknown timezone %s, reverting to UTC", tz)
		loc = time.UTC
	}
	c.Scheduler.location = loc
}

func mergeConfig(base, override Config) Config {
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	if override.Database.DSN != "" {
		base.Database = override.Database
	}

	if override.Scheduler.Timezone != "" {
		base.Scheduler.Timezone = override.Scheduler.Timezone
	}
	if override.Scheduler.Workers > 0 {
		base.Scheduler.Workers = override.Scheduler.Workers
	}
	if override.Scheduler.MisfireGrace > 0 {
		base.Scheduler.MisfireGrace = override.Scheduler.MisfireGrace
	}
	if override.Scheduler.DailyReport != "" {
		base.Scheduler.DailyReport = override.Scheduler.DailyReport
	}
	if override.Scheduler.PoolRefresh != "" {
		base.Scheduler.PoolRefresh = override.Scheduler.PoolRefresh
	}
	if override.Scheduler.MonthlyPlan != "" {
		base.Scheduler.MonthlyPlan = override.Scheduler.MonthlyPlan
	}

	if override.Publishing.MaxRetries > 0 {
		base.Publishing.MaxRetries = override.Publishing.MaxRetries
	}
	if override.Publishing.RetryDelay > 0 {
		base.Publishing.RetryDelay = override.Publishing.RetryDelay
	}
	if override.Publishing.DuplicateThreshold > 0 {
		base.Publishing.DuplicateThreshold = override.Publishing.DuplicateThreshold
	}
	if override.Publishing.HistoryWindow > 0 {
		base.Publishing.HistoryWindow = override.Publishing.HistoryWindow
	}
	if override.Publishing.AvoidTitles > 0 {
		base.Publishing.AvoidTitles = override.Publishing.AvoidTitles
	}
	if override.Publishing.ImageCount > 0 {
		base.Publishing.ImageCount = override.Publishing.ImageCount
	}

	if override.Notifications.Telegram.BotToken != "" {
		base.Notifications.Telegram.BotToken = override.Notifications.Telegram.BotToken
	}
	if override.Notifications.Telegram.ChatID != "" {
		base.Notifications.Telegram.ChatID = override.Notifications.Telegram.ChatID
	}

	if override.Images.Endpoint != "" {
		base.Images.Endpoint = override.Images.Endpoint
	}
	if override.Images.APIKey != "" {
		base.Images.APIKey = override.Images.APIKey
	}

	if override.ChatGPT.Endpoint != "" {
		base.ChatGPT.Endpoint = override.ChatGPT.Endpoint
	}
	if override.ChatGPT.Model != "" {
		base.ChatGPT.Model = override.ChatGPT.Model
	}
	if override.ChatGPT.APIKey != "" {
		base.ChatGPT.APIKey = override.ChatGPT.APIKey
	}
	if override.ChatGPT.SystemPrompt != "" {
		base.ChatGPT.SystemPrompt = override.ChatGPT.SystemPrompt
	}

	if len(override.Sites) > 0 {
		base.Sites = override.Sites
	}

	return base
}

func defaultConfig() Config {
	everyDay := []string{"mon", "tue", "wed", "thu", "fri", "sat", "sun"}
	return Config{
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Scheduler: SchedulerConfig{
			Timezone:     defaultTimezone,
			Workers:      20,
			MisfireGrace: time.Hour,
			DailyReport:  "50 23 * * *",
			PoolRefresh:  "0 0 * * 0",
			MonthlyPlan:  "0 1 25 * *",
		},
		Publishing: PublishingConfig{
			MaxRetries:         3,
			RetryDelay:         5 * time.Minute,
			DuplicateThreshold: 0.7,
			HistoryWindow:      100,
			AvoidTitles:        10,
			ImageCount:         3,
		},
		ChatGPT: ChatGPTConfig{
			Endpoint:     "https://api.openai.com/v1/chat/completions",
			Model:        "gpt-4o-mini",
			SystemPrompt: "You are a professional Korean blog writer.",
		},
		Sites: []SiteConfig{
			{
				Key:            "unpre",
				Name:           "unpre.co.kr",
				Platform:       "wordpress",
				ContentStyle:   "기술적이고 실용적인 톤, 코드 예제 포함",
				TargetAudience: "주니어 개발자, IT 취준생, 어학 학습자",
				WordPress:      WordPressConfig{URL: "https://unpre.co.kr", Username: "admin"},
				Slots:          []SlotConfig{{Time: "12:00", Days: everyDay}},
				Categories:     CategoriesConfig{Primary: "프로그래밍", Secondary: "언어학습"},
				Plan: PlanConfig{
					"프로그래밍": {{Topic: "JWT 토큰 기반 시큐리티 구현", Keywords: []string{"JWT", "보안"}}, {Topic: "REST API 설계 패턴"}},
					"언어학습":  {{Topic: "토익 파트별 공략법"}, {Topic: "JLPT N2 문법 정리"}},
				},
				TopicSources: []TopicSourceConfig{{
					Scanner:  "seed",
					Category: "프로그래밍",
					Priority: defaultPoolPriority,
					Topics:   []string{"Python 프로그래밍", "백엔드 아키텍처", "데이터베이스 최적화", "API 설계 패턴"},
				}},
			},
			{
				Key:            "untab",
				Name:           "untab.co.kr",
				Platform:       "wordpress",
				ContentStyle:   "전문적이고 신뢰감 있는 톤, 데이터와 통계 중심",
				TargetAudience: "부동산 투자자, 경매 관심자",
				WordPress:      WordPressConfig{URL: "https://untab.co.kr", Username: "admin"},
				Slots:          []SlotConfig{{Time: "09:00", Days: everyDay}},
				Categories:     CategoriesConfig{Primary: "부동산", Secondary: "경매/공매"},
				Plan: PlanConfig{
					"부동산":   {{Topic: "지역별 부동산 시장 동향"}, {Topic: "임대수익률 계산법"}},
					"경매/공매": {{Topic: "이번 주 경매 추천 물건"}, {Topic: "공매 vs 경매 차이점"}},
				},
				TopicSources: []TopicSourceConfig{{
					Scanner:  "seed",
					Category: "부동산",
					Priority: defaultPoolPriority,
					Topics:   []string{"경매 초보자 가이드", "부동산 세금 절세 전략", "권리분석 방법"},
				}},
			},
			{
				Key:            "skewese",
				Name:           "skewese.com",
				Platform:       "wordpress",
				ContentStyle:   "스토리텔링 중심, 흥미롭고 교육적인 톤",
				TargetAudience: "역사 애호가, 학생, 교육자",
				WordPress:      WordPressConfig{URL: "https://skewese.com", Username: "admin"},
				Slots:          []SlotConfig{{Time: "15:00", Days: everyDay}},
				Categories:     CategoriesConfig{Primary: "한국사", Secondary: "라이프"},
				Plan: PlanConfig{
					"한국사": {{Topic: "오늘의 역사"}, {Topic: "조선시대 이야기"}},
				},
				TopicSources: []TopicSourceConfig{{
					Scanner:  "seed",
					Category: "한국사",
					Priority: defaultPoolPriority,
					Topics:   []string{"조선시대 이야기", "역사 인물 탐구", "문화재 이야기"},
				}},
			},
		},
	}
}

// LoadTopicFile reads pool topics from a YAML document with a top-level "topics" list.
func LoadTopicFile(path string) ([]domain.TopicCandidate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read topic file %s: %w", path, err)
	}
	var doc struct {
		Topics []domain.TopicCandidate `yaml:"topics"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("parse topic file %s: %w", path, err)
	}
	for i := range doc.Topics {
		if doc.Topics[i].Priority == 0 {
			doc.Topics[i].Priority = defaultPoolPriority
		}
	}
	return doc.Topics, nil
}
