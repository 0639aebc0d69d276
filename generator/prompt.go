package generator

import (
	"fmt"
	"strings"
)

const (
	outlineSystemPrompt = "你是小红书图文助手，输出 6-9 行短句式大纲，每行一个要点。不要添加多余解释。"
	hintWithImages      = "用户上传了参考图片，请在文案中体现风格一致性。"
	hintWithoutImages   = "没有参考图片。"

	// 嵌入图片提示词的大纲最多保留的字符数。
	outlineExcerptLimit = 500
)

// Prompt 表示发送给 LLM 的一轮对话。
type Prompt struct {
	System string
	User   string
	// Images 作为多模态 image_url 片段附加在用户消息后。
	Images []string
}

// ImagePrompt 是交给图片模型的最终请求。
type ImagePrompt struct {
	Text       string
	Size       string
	References []string
}

// BuildOutlinePrompt 生成大纲提示词。
func BuildOutlinePrompt(req OutlineRequest) Prompt {
	hint := hintWithoutImages
	if len(req.Images) > 0 {
		hint = hintWithImages
	}
	return Prompt{
		System: outlineSystemPrompt,
		User:   fmt.Sprintf("主题：%s\n%s", req.Topic, hint),
		Images: req.Images,
	}
}

// BuildImagePrompt enriches the page prompt with page type, topic and an
// outline excerpt, then resolves the pixel size.
func BuildImagePrompt(req ImageRequest) ImagePrompt {
	var extras []string
	if req.PageType != "" {
		extras = append(extras, fmt.Sprintf("当前页面类型：%s", req.PageType))
	}
	if req.UserTopic != "" {
		extras = append(extras, fmt.Sprintf("用户主题：%s", req.UserTopic))
	}
	if req.FullOutline != "" {
		extras = append(extras, fmt.Sprintf("整体大纲：%s", truncateRunes(req.FullOutline, outlineExcerptLimit)))
	}
	return ImagePrompt{
		Text:       req.Prompt + "\n" + strings.Join(extras, "\n"),
		Size:       SizeForAspectRatio(req.AspectRatio),
		References: req.UserImages,
	}
}

func truncateRunes(s string, limit int) string {
	r := []rune(s)
	if len(r) <= limit {
		return s
	}
	return string(r[:limit])
}
