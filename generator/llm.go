package generator

import "context"

// LLMClient 抽象文本模型客户端，便于替换/Mock。
type LLMClient interface {
	Complete(ctx context.Context, prompt Prompt) (string, error)
}

// ImageClient 抽象图片模型客户端，返回 base64 编码的图片。
type ImageClient interface {
	GenerateImage(ctx context.Context, prompt ImagePrompt) (string, error)
}

// LLMSettings 提供给具体实现的基础配置。值类型，构造后不再修改。
type LLMSettings struct {
	Provider    string
	Type        string
	Model       string
	APIKey      string
	BaseURL     string
	Temperature float64
	MaxRetries  int
}
