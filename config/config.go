package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"inkink/generator"
)

// Server 控制 HTTP 监听与跨域。
type Server struct {
	Addr                  string `toml:"addr"`
	StaticDir             string `toml:"static_dir"`
	CORSOrigin            string `toml:"cors_origin"`
	RequestTimeoutSeconds int    `toml:"request_timeout_seconds"`
}

// Provider 描述一个 OpenAI 兼容服务商（文本或图片）。
type Provider struct {
	Name        string  `toml:"provider"`
	Type        string  `toml:"type"`
	Model       string  `toml:"model"`
	BaseURL     string  `toml:"base_url"`
	APIKey      string  `toml:"api_key"`
	Temperature float64 `toml:"temperature"`
	MaxRetries  int     `toml:"max_retries"`
}

// Settings converts p into the generator's client settings.
func (p Provider) Settings() generator.LLMSettings {
	return generator.LLMSettings{
		Provider:    p.Name,
		Type:        p.Type,
		Model:       p.Model,
		APIKey:      p.APIKey,
		BaseURL:     p.BaseURL,
		Temperature: p.Temperature,
		MaxRetries:  p.MaxRetries,
	}
}

// Pipeline 控制逐页生成与重试。
type Pipeline struct {
	RateIntervalMS   int `toml:"rate_interval_ms"`
	RetryConcurrency int `toml:"retry_concurrency"`
	TaskTTLMinutes   int `toml:"task_ttl_minutes"`
}

// History 选择历史记录的存储后端。
type History struct {
	Backend string `toml:"backend"`
	Dir     string `toml:"dir"`
}

// Logging 日志输出设置。
type Logging struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config 是整个应用的配置。
type Config struct {
	Server   Server   `toml:"server"`
	Text     Provider `toml:"text"`
	Image    Provider `toml:"image"`
	Pipeline Pipeline `toml:"pipeline"`
	History  History  `toml:"history"`
	Logging  Logging  `toml:"logging"`
}

// Load 读取 TOML 配置（文件可缺省），叠加环境变量后校验。
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		if _, err := os.Stat(expanded); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}
	projectPath, err := filepath.Abs("inkink.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

// applyEnv 环境变量优先于配置文件；AI_* 为边缘部署变体，优先级更低。
func (c *Config) applyEnv() {
	lookup := func(keys ...string) (string, bool) {
		for _, k := range keys {
			if v := strings.TrimSpace(os.Getenv(k)); v != "" {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := lookup("OPENAI_API_KEY", "AI_API_KEY"); ok {
		c.Text.APIKey = v
		c.Image.APIKey = v
	}
	if v, ok := lookup("OPENAI_BASE_URL", "AI_BASE_URL"); ok {
		c.Text.BaseURL = v
		c.Image.BaseURL = v
	}
	if v, ok := lookup("OPENAI_TEXT_MODEL", "AI_TEXT_MODEL"); ok {
		c.Text.Model = v
	}
	if v, ok := lookup("OPENAI_IMAGE_MODEL", "AI_IMAGE_MODEL"); ok {
		c.Image.Model = v
	}
	if v, ok := lookup("APP_DATA_DIR"); ok {
		c.History.Dir = v
	}
	port, hasPort := lookup("PORT")
	host, _ := lookup("HOST")
	if hasPort {
		c.Server.Addr = host + ":" + port
	}
}

func (c *Config) normalize() error {
	var err error
	if c.History.Dir, err = expandPath(c.History.Dir); err != nil {
		return fmt.Errorf("history.dir: %w", err)
	}
	if c.Server.StaticDir != "" {
		if c.Server.StaticDir, err = expandPath(c.Server.StaticDir); err != nil {
			return fmt.Errorf("server.static_dir: %w", err)
		}
	}
	if strings.TrimSpace(c.Server.Addr) == "" {
		c.Server.Addr = defaultAddr
	}
	if strings.TrimSpace(c.Server.CORSOrigin) == "" {
		c.Server.CORSOrigin = "*"
	}
	normalizeProvider(&c.Text, Default().Text)
	normalizeProvider(&c.Image, Default().Image)
	c.Image.Type = strings.ToLower(c.Image.Type)
	c.History.Backend = strings.ToLower(strings.TrimSpace(c.History.Backend))
	if c.History.Backend == "" {
		c.History.Backend = defaultHistoryBackend
	}
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	if c.Pipeline.RetryConcurrency == 0 {
		c.Pipeline.RetryConcurrency = defaultRetryConcurrency
	}
	if c.Pipeline.TaskTTLMinutes == 0 {
		c.Pipeline.TaskTTLMinutes = defaultTaskTTLMinutes
	}
	return nil
}

func normalizeProvider(p *Provider, def Provider) {
	p.APIKey = strings.TrimSpace(p.APIKey)
	p.BaseURL = strings.TrimRight(strings.TrimSpace(p.BaseURL), "/")
	p.Model = strings.TrimSpace(p.Model)
	if p.Name == "" {
		p.Name = def.Name
	}
	if p.Type == "" {
		p.Type = def.Type
	}
	if p.Model == "" {
		p.Model = def.Model
	}
	if p.BaseURL == "" {
		p.BaseURL = def.BaseURL
	}
}

// Validate 检查配置可用性。缺少 API Key 不在这里报错，而是在每次请求时返回。
func (c *Config) Validate() error {
	switch c.Image.Type {
	case ImageTypeAPI, ImageTypeChat:
	default:
		return fmt.Errorf("image.type: unsupported value %q (want %q or %q)", c.Image.Type, ImageTypeAPI, ImageTypeChat)
	}
	switch c.History.Backend {
	case HistoryBackendFile, HistoryBackendSQLite, HistoryBackendMemory:
	default:
		return fmt.Errorf("history.backend: unsupported value %q", c.History.Backend)
	}
	switch c.Logging.Format {
	case "console", "json", "auto":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	if c.Pipeline.RateIntervalMS < 0 {
		return errors.New("pipeline.rate_interval_ms must be >= 0")
	}
	if c.Pipeline.RetryConcurrency < 0 {
		return errors.New("pipeline.retry_concurrency must be >= 0")
	}
	if c.Pipeline.TaskTTLMinutes < 0 {
		return errors.New("pipeline.task_ttl_minutes must be >= 0")
	}
	if c.Text.MaxRetries < 0 || c.Image.MaxRetries < 0 {
		return errors.New("max_retries must be >= 0")
	}
	if c.Server.RequestTimeoutSeconds < 0 {
		return errors.New("server.request_timeout_seconds must be >= 0")
	}
	return nil
}

// MaskKey 只保留前后 4 位，便于排查问题。
func MaskKey(key string) string {
	if key == "" {
		return ""
	}
	prefix := key
	if len(prefix) > 4 {
		prefix = prefix[:4]
	}
	suffix := key
	if len(suffix) > 4 {
		suffix = suffix[len(suffix)-4:]
	}
	return prefix + "****" + suffix
}

func expandPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", nil
	}
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}
	return filepath.Abs(path)
}
