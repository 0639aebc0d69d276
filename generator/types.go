package generator

// PageType 页面类型：封面、正文、总结。
type PageType string

const (
	PageCover   PageType = "cover"
	PageContent PageType = "content"
	PageSummary PageType = "summary"
)

// Page 是大纲中的一页，Index 为稳定序号。
type Page struct {
	Index   int      `json:"index"`
	Type    PageType `json:"type"`
	Content string   `json:"content"`
}

// OutlineRequest 文本生成入参。Images 为 data URL 形式的参考图。
type OutlineRequest struct {
	Topic  string
	Images []string
}

// OutlineResult 原样返回模型输出的大纲文本。
type OutlineResult struct {
	Outline   string
	HasImages bool
	Provider  string
	Model     string
}

// ImageRequest 图片生成入参；除 Prompt 外都是可选的上下文。
type ImageRequest struct {
	Prompt      string   `json:"prompt"`
	AspectRatio string   `json:"aspect_ratio,omitempty"`
	UserTopic   string   `json:"user_topic,omitempty"`
	FullOutline string   `json:"full_outline,omitempty"`
	PageType    PageType `json:"page_type,omitempty"`
	UserImages  []string `json:"user_images,omitempty"`
	TaskID      string   `json:"task_id,omitempty"`
}

// ImageResult 统一后的图片结果。
type ImageResult struct {
	Base64   string
	URL      string
	Size     string
	Provider string
	Model    string
}

// SizeForAspectRatio maps the UI aspect ratio to a fixed pixel size.
func SizeForAspectRatio(ratio string) string {
	switch ratio {
	case "16:9":
		return "1536x1024"
	case "3:4":
		return "1024x1536"
	default:
		return "1024x1024"
	}
}
