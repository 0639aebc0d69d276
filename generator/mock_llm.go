package generator

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
)

// MockLLM 一个简单的占位实现，便于本地调试，不调用外部模型。
type MockLLM struct{}

func (m MockLLM) Complete(_ context.Context, prompt Prompt) (string, error) {
	topic := strings.TrimPrefix(strings.SplitN(prompt.User, "\n", 2)[0], "主题：")
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("1. %s：封面\n", topic))
	sb.WriteString("2. 为什么值得关注\n")
	sb.WriteString("3. 三个关键要点\n")
	sb.WriteString("4. 实操步骤\n")
	sb.WriteString("5. 常见误区\n")
	sb.WriteString("6. 总结与行动建议\n")
	return sb.String(), nil
}

// GenerateImage 返回一段固定的 1x1 PNG，尺寸信息不影响结果。
func (m MockLLM) GenerateImage(_ context.Context, _ ImagePrompt) (string, error) {
	return base64.StdEncoding.EncodeToString(placeholderPNG), nil
}

var placeholderPNG = []byte{
	0x89, 0x50, 0x4e, 0x47, 0x0d, 0x0a, 0x1a, 0x0a, 0x00, 0x00, 0x00, 0x0d,
	0x49, 0x48, 0x44, 0x52, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00, 0x01,
	0x08, 0x04, 0x00, 0x00, 0x00, 0xb5, 0x1c, 0x0c, 0x02, 0x00, 0x00, 0x00,
	0x0b, 0x49, 0x44, 0x41, 0x54, 0x78, 0xda, 0x63, 0x64, 0x60, 0x00, 0x00,
	0x00, 0x06, 0x00, 0x02, 0x30, 0x81, 0xd0, 0x2f, 0x00, 0x00, 0x00, 0x00,
	0x49, 0x45, 0x4e, 0x44, 0xae, 0x42, 0x60, 0x82,
}
