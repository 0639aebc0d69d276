package generator

import (
	"context"
	"errors"
	"strings"

	"inkink/dataurl"
)

// Adapter 把 UI 的请求翻译成模型调用，并把响应整理成统一结构。
// 构造后只读，可在多个请求间共享。
type Adapter struct {
	text     LLMClient
	textCfg  LLMSettings
	image    ImageClient
	imageCfg LLMSettings
}

// AdapterOption customizes the adapter.
type AdapterOption func(*Adapter)

// WithTextClient overrides the text model client.
func WithTextClient(c LLMClient) AdapterOption {
	return func(a *Adapter) {
		if c != nil {
			a.text = c
		}
	}
}

// WithImageClient overrides the image model client.
func WithImageClient(c ImageClient) AdapterOption {
	return func(a *Adapter) {
		if c != nil {
			a.image = c
		}
	}
}

// NewAdapter 使用 OpenAI 兼容客户端构造 Adapter；Provider 为 "mock" 时使用离线实现。
func NewAdapter(textCfg, imageCfg LLMSettings, opts ...AdapterOption) (*Adapter, error) {
	a := &Adapter{textCfg: textCfg, imageCfg: imageCfg}
	for _, opt := range opts {
		opt(a)
	}
	if a.text == nil {
		if textCfg.Provider == "mock" {
			a.text = MockLLM{}
		} else {
			llm, err := NewOpenAILLMFromConfig(&textCfg)
			if err != nil {
				return nil, err
			}
			a.text = llm
		}
	}
	if a.image == nil {
		if imageCfg.Provider == "mock" {
			a.image = MockLLM{}
		} else {
			img, err := NewOpenAIImageFromConfig(&imageCfg)
			if err != nil {
				return nil, err
			}
			a.image = img
		}
	}
	return a, nil
}

// TextSettings returns the text provider settings.
func (a *Adapter) TextSettings() LLMSettings { return a.textCfg }

// ImageSettings returns the image provider settings.
func (a *Adapter) ImageSettings() LLMSettings { return a.imageCfg }

// GenerateOutline 返回模型原始输出，不做任何加工。
func (a *Adapter) GenerateOutline(ctx context.Context, req OutlineRequest) (OutlineResult, error) {
	if strings.TrimSpace(a.textCfg.APIKey) == "" && a.textCfg.Provider != "mock" {
		return OutlineResult{}, ErrMissingCredential
	}
	if req.Topic == "" {
		return OutlineResult{}, &ValidationError{Field: "topic"}
	}

	raw, err := a.text.Complete(ctx, BuildOutlinePrompt(req))
	if err != nil {
		return OutlineResult{}, upstream("generate outline", err)
	}
	return OutlineResult{
		Outline:   strings.TrimSpace(raw),
		HasImages: len(req.Images) > 0,
		Provider:  a.textCfg.Provider,
		Model:     a.textCfg.Model,
	}, nil
}

// GenerateImage 生成单页图片，返回 base64 与 data URL。
func (a *Adapter) GenerateImage(ctx context.Context, req ImageRequest) (ImageResult, error) {
	if strings.TrimSpace(a.imageCfg.APIKey) == "" && a.imageCfg.Provider != "mock" {
		return ImageResult{}, ErrMissingCredential
	}
	if req.Prompt == "" {
		return ImageResult{}, &ValidationError{Field: "prompt"}
	}

	prompt := BuildImagePrompt(req)
	b64, err := a.image.GenerateImage(ctx, prompt)
	if err != nil {
		return ImageResult{}, upstream("generate image", err)
	}
	if b64 == "" {
		return ImageResult{}, upstream("generate image", ErrNoImageData)
	}
	return ImageResult{
		Base64:   b64,
		URL:      dataurl.Wrap(dataurl.DefaultImageMIME, b64),
		Size:     prompt.Size,
		Provider: a.imageCfg.Provider,
		Model:    a.imageCfg.Model,
	}, nil
}

// IsConfigError reports whether err means no credential was configured.
func IsConfigError(err error) bool {
	return errors.Is(err, ErrMissingCredential)
}
