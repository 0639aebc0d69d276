// Package dataurl converts reference images to and from base64 data URLs.
package dataurl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// DefaultImageMIME is used when a generated payload carries no type.
const DefaultImageMIME = "image/png"

// ErrNotDataURL is returned by Parse for strings without the data: scheme.
var ErrNotDataURL = errors.New("not a data url")

// Encode builds data:<mime>;base64,<payload>.
func Encode(mimeType string, data []byte) string {
	return Wrap(mimeType, base64.StdEncoding.EncodeToString(data))
}

// Wrap 把已经是 base64 的内容包装成 data URL。
func Wrap(mimeType, b64 string) string {
	if mimeType == "" {
		mimeType = DefaultImageMIME
	}
	return "data:" + mimeType + ";base64," + b64
}

// FromFile reads a local file into a data URL, sniffing its MIME type.
func FromFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	mimeType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
	}
	if i := strings.Index(mimeType, ";"); i >= 0 {
		mimeType = mimeType[:i]
	}
	return Encode(mimeType, data), nil
}

// FromFiles converts every path in order; the first failure aborts.
func FromFiles(paths []string) ([]string, error) {
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		u, err := FromFile(p)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

// Parse splits a data URL into its media type and payload. The payload is the
// substring after the first comma.
func Parse(u string) (mimeType, payload string, err error) {
	if !strings.HasPrefix(u, "data:") {
		return "", "", ErrNotDataURL
	}
	head, payload, ok := strings.Cut(u, ",")
	if !ok {
		return "", "", fmt.Errorf("data url without payload: %w", ErrNotDataURL)
	}
	mimeType = strings.TrimPrefix(head, "data:")
	mimeType = strings.TrimSuffix(mimeType, ";base64")
	return mimeType, payload, nil
}

// IsImage reports whether u is a data:image URL.
func IsImage(u string) bool {
	return strings.HasPrefix(u, "data:image")
}
