package generator

import (
	"strings"
	"testing"
)

func TestSizeForAspectRatio(t *testing.T) {
	cases := map[string]string{
		"16:9": "1536x1024",
		"3:4":  "1024x1536",
		"1:1":  "1024x1024",
		"":     "1024x1024",
		"4:3":  "1024x1024",
	}
	for ratio, want := range cases {
		if got := SizeForAspectRatio(ratio); got != want {
			t.Fatalf("SizeForAspectRatio(%q) = %s, want %s", ratio, got, want)
		}
	}
}

func TestBuildOutlinePromptHint(t *testing.T) {
	p := BuildOutlinePrompt(OutlineRequest{Topic: "露营"})
	if !strings.HasPrefix(p.User, "主题：露营\n") || !strings.Contains(p.User, hintWithoutImages) {
		t.Fatalf("unexpected user prompt %q", p.User)
	}
	if p.System != outlineSystemPrompt {
		t.Fatalf("unexpected system prompt %q", p.System)
	}

	p = BuildOutlinePrompt(OutlineRequest{Topic: "露营", Images: []string{"data:image/png;base64,AAAA"}})
	if !strings.Contains(p.User, hintWithImages) || len(p.Images) != 1 {
		t.Fatalf("expected image hint and attachment, got %+v", p)
	}
}

func TestBuildImagePromptEnrichment(t *testing.T) {
	outline := strings.Repeat("大", 600)
	p := BuildImagePrompt(ImageRequest{
		Prompt:      "一杯咖啡",
		AspectRatio: "3:4",
		UserTopic:   "早餐",
		FullOutline: outline,
		PageType:    PageCover,
		UserImages:  []string{"data:image/png;base64,AAAA"},
	})
	lines := strings.Split(p.Text, "\n")
	if lines[0] != "一杯咖啡" {
		t.Fatalf("prompt should start with page content, got %q", lines[0])
	}
	if lines[1] != "当前页面类型：cover" || lines[2] != "用户主题：早餐" {
		t.Fatalf("unexpected enrichment lines %q", lines[1:3])
	}
	excerpt := strings.TrimPrefix(lines[3], "整体大纲：")
	if n := len([]rune(excerpt)); n != outlineExcerptLimit {
		t.Fatalf("outline excerpt has %d runes, want %d", n, outlineExcerptLimit)
	}
	if p.Size != "1024x1536" || len(p.References) != 1 {
		t.Fatalf("unexpected size/references: %s %d", p.Size, len(p.References))
	}
}
