package publisher

import (
	"bytes"
	"fmt"
	"html"
	"os"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"

	"inkink/generator"
	"inkink/history"
)

var pageLabels = map[generator.PageType]string{
	generator.PageCover:   "封面",
	generator.PageContent: "内容",
	generator.PageSummary: "总结",
}

// Markdown 把一条历史记录整理成 Markdown：标题、分页大纲、已生成的图片。
func Markdown(d history.Detail) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escapeInline(d.Title))

	b.WriteString("## 大纲\n\n")
	for i, p := range d.Outline.Pages {
		label := pageLabels[p.Type]
		if label == "" {
			label = string(p.Type)
		}
		fmt.Fprintf(&b, "%d. 【%s】%s\n", i+1, label, escapeInline(p.Content))
	}
	if len(d.Outline.Pages) == 0 && strings.TrimSpace(d.Outline.Raw) != "" {
		b.WriteString(d.Outline.Raw)
		b.WriteString("\n")
	}

	if len(d.Images.Generated) > 0 {
		b.WriteString("\n## 图片\n\n")
		for i, u := range d.Images.Generated {
			fmt.Fprintf(&b, "![第%d页](%s)\n\n", i+1, u)
		}
	}
	return b.String()
}

// HTML 渲染为完整的 HTML 页面。标题与列表会转换成带样式的段落，
// 粘贴到富文本编辑器时排版更稳定。
func HTML(d history.Detail) ([]byte, error) {
	body, err := mdToHTML(Markdown(d))
	if err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	body = normalizeForPaste(body)

	var buf bytes.Buffer
	buf.WriteString("<!DOCTYPE html>\n<html lang=\"zh-CN\">\n<head>\n<meta charset=\"utf-8\">\n")
	fmt.Fprintf(&buf, "<title>%s</title>\n", html.EscapeString(d.Title))
	buf.WriteString("<style>body{max-width:720px;margin:2em auto;padding:0 1em;line-height:1.7}img{max-width:100%;border-radius:8px}</style>\n")
	buf.WriteString("</head>\n<body>\n")
	buf.WriteString(body)
	fmt.Fprintf(&buf, "<p style=\"color:#999;font-size:12px;\">%s · %s</p>\n",
		html.EscapeString(d.Status), d.UpdatedAt.Format("2006-01-02 15:04"))
	buf.WriteString("</body>\n</html>\n")
	return buf.Bytes(), nil
}

// WriteFile writes the HTML export of d to path.
func WriteFile(path string, d history.Detail) error {
	out, err := HTML(d)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o644)
}

func mdToHTML(md string) (string, error) {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return "", err
	}
	return buf.String(), nil
}

var (
	olRe = regexp.MustCompile(`(?s)<ol[^>]*>(.*?)</ol>`)
	ulRe = regexp.MustCompile(`(?s)<ul[^>]*>(.*?)</ul>`)
	liRe = regexp.MustCompile(`(?s)<li[^>]*>(.*?)</li>`)
	hRe  = regexp.MustCompile(`(?s)<h([1-6])[^>]*>(.*?)</h[1-6]>`)
)

var headingSizes = map[string]string{
	"1": "24px",
	"2": "20px",
	"3": "18px",
	"4": "16px",
	"5": "15px",
	"6": "14px",
}

// 有序列表展开成带序号的段落，无序列表用圆点。
func flattenLists(s string) string {
	s = olRe.ReplaceAllStringFunc(s, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for i, item := range items {
			fmt.Fprintf(&b, "<p>%d. %s</p>", i+1, strings.TrimSpace(item[1]))
		}
		return b.String()
	})
	return ulRe.ReplaceAllStringFunc(s, func(block string) string {
		items := liRe.FindAllStringSubmatch(block, -1)
		if len(items) == 0 {
			return block
		}
		var b strings.Builder
		for _, item := range items {
			fmt.Fprintf(&b, "<p>• %s</p>", strings.TrimSpace(item[1]))
		}
		return b.String()
	})
}

func convertHeadings(s string) string {
	return hRe.ReplaceAllStringFunc(s, func(block string) string {
		parts := hRe.FindStringSubmatch(block)
		if len(parts) != 3 {
			return block
		}
		size := headingSizes[parts[1]]
		if size == "" {
			size = "16px"
		}
		return fmt.Sprintf(`<p style="font-size:%s;font-weight:700;margin:1em 0 0.6em;">%s</p>`, size, strings.TrimSpace(parts[2]))
	})
}

func normalizeForPaste(s string) string {
	return flattenLists(convertHeadings(s))
}

var inlineSpecial = regexp.MustCompile("([\\\\`*_\\[\\]<>#])")

// escapeInline 防止标题或页面文字被当成 Markdown 语法。
func escapeInline(s string) string {
	return inlineSpecial.ReplaceAllString(strings.TrimSpace(s), `\$1`)
}
