package generator

import (
	"context"
	"errors"
	"strings"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
)

// OpenAILLM implements LLMClient using the official openai-go SDK (chat completions).
type OpenAILLM struct {
	Model       string
	Temperature float64
	Opts        []option.RequestOption
}

func NewOpenAILLMFromConfig(cfg *LLMSettings) (*OpenAILLM, error) {
	if cfg == nil {
		return nil, errors.New("llm config is nil")
	}
	if cfg.Model == "" {
		return nil, errors.New("llm model is required")
	}
	return &OpenAILLM{Model: cfg.Model, Temperature: cfg.Temperature, Opts: requestOptions(cfg)}, nil
}

func (o *OpenAILLM) Complete(ctx context.Context, prompt Prompt) (string, error) {
	client := openai.NewClient(o.Opts...)

	var msgs []openai.ChatCompletionMessageParamUnion
	if prompt.System != "" {
		msgs = append(msgs, openai.SystemMessage(prompt.System))
	}
	msgs = append(msgs, userMessage(prompt.User, prompt.Images))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(o.Model),
		Messages:    msgs,
		Temperature: openai.Float(o.Temperature),
	})
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai: empty choices")
	}
	return resp.Choices[0].Message.Content, nil
}

// OpenAIImage implements ImageClient. In image_api mode it calls
// images/generations; in chat mode it asks a multimodal chat model for an
// image and scans the raw response with ChatImageExtractors.
type OpenAIImage struct {
	Mode        string
	Model       string
	Temperature float64
	Opts        []option.RequestOption
}

const imageModeChat = "chat"

func NewOpenAIImageFromConfig(cfg *LLMSettings) (*OpenAIImage, error) {
	if cfg == nil {
		return nil, errors.New("image config is nil")
	}
	if cfg.Model == "" {
		return nil, errors.New("image model is required")
	}
	return &OpenAIImage{
		Mode:        cfg.Type,
		Model:       cfg.Model,
		Temperature: cfg.Temperature,
		Opts:        requestOptions(cfg),
	}, nil
}

func (o *OpenAIImage) GenerateImage(ctx context.Context, prompt ImagePrompt) (string, error) {
	client := openai.NewClient(o.Opts...)
	var raw []byte

	if o.Mode == imageModeChat {
		params := openai.ChatCompletionNewParams{
			Model:       openai.ChatModel(o.Model),
			Messages:    []openai.ChatCompletionMessageParamUnion{userMessage(chatImageText(prompt), prompt.References)},
			Modalities:  []string{"text", "image"},
			Temperature: openai.Float(o.Temperature),
		}
		_, err := client.Chat.Completions.New(ctx, params, option.WithResponseBodyInto(&raw))
		if err != nil {
			return "", err
		}
		return Extract(raw, ChatImageExtractors)
	}

	params := openai.ImageGenerateParams{
		Model:  o.Model,
		Prompt: prompt.Text,
		Size:   openai.ImageGenerateParamsSize(prompt.Size),
	}
	// gpt-image 系列总是返回 b64_json，且不接受 response_format。
	if !strings.HasPrefix(o.Model, "gpt-image") {
		params.ResponseFormat = openai.ImageGenerateParamsResponseFormatB64JSON
	}
	if _, err := client.Images.Generate(ctx, params, option.WithResponseBodyInto(&raw)); err != nil {
		return "", err
	}
	return Extract(raw, ImagesAPIExtractors)
}

// chatImageText 把尺寸写进提示词；chat 接口没有尺寸参数。
func chatImageText(prompt ImagePrompt) string {
	if prompt.Size == "" {
		return prompt.Text
	}
	return prompt.Text + "\n图片尺寸：" + prompt.Size
}

// TestConnection issues the cheapest call that proves key, base URL and model
// are usable: a one-word chat for text providers, a model lookup otherwise.
func TestConnection(ctx context.Context, cfg LLMSettings) error {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return ErrMissingCredential
	}
	if cfg.Model == "" {
		return &ValidationError{Field: "model"}
	}
	client := openai.NewClient(requestOptions(&cfg)...)
	if cfg.Type == "image_api" {
		if _, err := client.Models.Get(ctx, cfg.Model); err != nil {
			return upstream("test connection", err)
		}
		return nil
	}
	_, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(cfg.Model),
		Messages: []openai.ChatCompletionMessageParamUnion{openai.UserMessage("ping")},
	})
	return upstream("test connection", err)
}

func userMessage(text string, images []string) openai.ChatCompletionMessageParamUnion {
	if len(images) == 0 {
		return openai.UserMessage(text)
	}
	parts := []openai.ChatCompletionContentPartUnionParam{openai.TextContentPart(text)}
	for _, img := range images {
		parts = append(parts, openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: img}))
	}
	return openai.UserMessage(parts)
}

func requestOptions(cfg *LLMSettings) []option.RequestOption {
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(max(cfg.MaxRetries, 0)),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return opts
}

// remoteMessage 取出服务商返回的 error.message。
func remoteMessage(err error) string {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return ""
}
