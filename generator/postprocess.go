package generator

import (
	"regexp"
	"strings"
)

var (
	lineSplit     = regexp.MustCompile(`\n+`)
	listNumbering = regexp.MustCompile(`^\d+[.)、]\s*`)
)

// BuildPages 把大纲按行切分为页面：第一行是封面，最后一行（至少两行时）是总结。
// 行首的 "1." "2)" "3、" 编号会被去掉。
func BuildPages(outline string) []Page {
	var lines []string
	for _, raw := range lineSplit.Split(outline, -1) {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		// 只有编号的行保留原文，保证 N 个非空行得到 N 页。
		if stripped := strings.TrimSpace(listNumbering.ReplaceAllString(line, "")); stripped != "" {
			line = stripped
		}
		lines = append(lines, line)
	}

	pages := make([]Page, len(lines))
	for i, text := range lines {
		pages[i] = Page{Index: i, Type: pageTypeAt(i, len(lines)), Content: text}
	}
	return pages
}

// SplitPages 是客户端兜底逻辑：只按行切分，不处理编号。
func SplitPages(outline string) []Page {
	var lines []string
	for _, raw := range lineSplit.Split(outline, -1) {
		if line := strings.TrimSpace(raw); line != "" {
			lines = append(lines, line)
		}
	}
	pages := make([]Page, len(lines))
	for i, text := range lines {
		pages[i] = Page{Index: i, Type: pageTypeAt(i, len(lines)), Content: text}
	}
	return pages
}

func pageTypeAt(i, n int) PageType {
	switch {
	case i == 0:
		return PageCover
	case i == n-1:
		return PageSummary
	default:
		return PageContent
	}
}
