package apiclient

import (
	"context"
	"net/http"
)

// ProviderView 是服务端回显的服务商配置，密钥已脱敏。
type ProviderView struct {
	Type         string `json:"type"`
	Model        string `json:"model"`
	BaseURL      string `json:"base_url"`
	APIKeyMasked string `json:"api_key_masked"`
}

// PurposeView groups providers for one purpose.
type PurposeView struct {
	ActiveProvider string                  `json:"active_provider"`
	Providers      map[string]ProviderView `json:"providers"`
}

// Config is the server configuration echo.
type Config struct {
	TextGeneration  PurposeView `json:"text_generation"`
	ImageGeneration PurposeView `json:"image_generation"`
}

// Active returns the active provider of p.
func (p PurposeView) Active() ProviderView {
	return p.Providers[p.ActiveProvider]
}

func (c *Client) GetConfig(ctx context.Context) (Config, error) {
	var out struct {
		Config Config `json:"config"`
	}
	if err := c.do(ctx, http.MethodGet, "/config", nil, &out); err != nil {
		return Config{}, err
	}
	return out.Config, nil
}

// UpdateConfig 提交配置。服务端只回显，不持久化。
func (c *Client) UpdateConfig(ctx context.Context, cfg any) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/config", cfg, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}

// ConnectionTest 描述一次连接测试，留空的字段使用服务端当前配置。
type ConnectionTest struct {
	Type         string `json:"type"`
	ProviderName string `json:"provider_name,omitempty"`
	APIKey       string `json:"api_key,omitempty"`
	BaseURL      string `json:"base_url,omitempty"`
	Model        string `json:"model"`
}

func (c *Client) TestConnection(ctx context.Context, t ConnectionTest) (string, error) {
	var out struct {
		Message string `json:"message"`
	}
	if err := c.do(ctx, http.MethodPost, "/config/test", t, &out); err != nil {
		return "", err
	}
	return out.Message, nil
}
