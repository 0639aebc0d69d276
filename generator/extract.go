package generator

import (
	"strings"

	"github.com/tidwall/gjson"

	"inkink/dataurl"
)

// Extractor pulls base64 image data out of a raw response body. It returns
// false when the body does not have the shape it understands.
type Extractor func(body []byte) (string, bool)

// ChatImageExtractors are tried in order against a chat completion response.
var ChatImageExtractors = []Extractor{
	extractInlineData,
	extractContentParts,
	extractContentString,
}

// ImagesAPIExtractors handle the images/generations response.
var ImagesAPIExtractors = []Extractor{
	extractB64JSON,
}

// Extract runs extractors in priority order and returns the first hit.
func Extract(body []byte, extractors []Extractor) (string, error) {
	for _, ex := range extractors {
		if b64, ok := ex(body); ok {
			return b64, nil
		}
	}
	return "", ErrNoImageData
}

const messagePath = "choices.0.message"

// extractInlineData 读取 multi_mod_content / multi_modal_content 中的 inline_data。
func extractInlineData(body []byte) (string, bool) {
	msg := gjson.GetBytes(body, messagePath)
	for _, key := range []string{"multi_mod_content", "multi_modal_content"} {
		parts := msg.Get(key)
		if !parts.IsArray() {
			continue
		}
		for _, part := range parts.Array() {
			if data, ok := inlineData(part); ok {
				return data, true
			}
		}
	}
	return "", false
}

// extractContentParts 读取 content 数组中 type=image_url 且为 data:image 的片段。
func extractContentParts(body []byte) (string, bool) {
	content := gjson.GetBytes(body, messagePath+".content")
	if !content.IsArray() {
		return "", false
	}
	for _, part := range content.Array() {
		if part.Get("type").String() == "image_url" {
			u := part.Get("image_url.url").String()
			if dataurl.IsImage(u) {
				if _, payload, err := dataurl.Parse(u); err == nil && payload != "" {
					return payload, true
				}
			}
		}
		if data, ok := inlineData(part); ok {
			return data, true
		}
	}
	return "", false
}

// extractContentString handles content that is itself a data:image URL.
func extractContentString(body []byte) (string, bool) {
	content := gjson.GetBytes(body, messagePath+".content")
	if content.Type != gjson.String {
		return "", false
	}
	u := strings.TrimSpace(content.String())
	if !dataurl.IsImage(u) {
		return "", false
	}
	_, payload, err := dataurl.Parse(u)
	if err != nil || payload == "" {
		return "", false
	}
	return payload, true
}

func extractB64JSON(body []byte) (string, bool) {
	b64 := gjson.GetBytes(body, "data.0.b64_json").String()
	return b64, b64 != ""
}

func inlineData(part gjson.Result) (string, bool) {
	for _, key := range []string{"inline_data.data", "inlineData.data"} {
		if data := part.Get(key).String(); data != "" {
			return data, true
		}
	}
	return "", false
}
